package userstore

import (
	"context"
	"strings"
	"sync"

	"github.com/google/uuid"

	"github.com/MrEthical07/deviceauth"
)

// Memory is a concurrency-safe in-process user table.
type Memory struct {
	mu      sync.RWMutex
	byID    map[string]deviceauth.UserRecord
	byLogin map[string]string
}

func NewMemory() *Memory {
	return &Memory{
		byID:    make(map[string]deviceauth.UserRecord),
		byLogin: make(map[string]string),
	}
}

// Create stores a new user under a generated id.
func (m *Memory) Create(_ context.Context, login, email, passwordHash string) (deviceauth.UserRecord, error) {
	u := deviceauth.UserRecord{
		UserID:       uuid.NewString(),
		Login:        login,
		Email:        email,
		PasswordHash: passwordHash,
	}
	if err := m.Put(u); err != nil {
		return deviceauth.UserRecord{}, err
	}
	return u, nil
}

// Put inserts or replaces u. A login owned by a different id is rejected.
func (m *Memory) Put(u deviceauth.UserRecord) error {
	key := normalizeLogin(u.Login)

	m.mu.Lock()
	defer m.mu.Unlock()

	if owner, ok := m.byLogin[key]; ok && owner != u.UserID {
		return ErrDuplicateLogin
	}
	if prev, ok := m.byID[u.UserID]; ok {
		delete(m.byLogin, normalizeLogin(prev.Login))
	}
	m.byID[u.UserID] = u
	m.byLogin[key] = u.UserID
	return nil
}

func (m *Memory) Remove(userID string) {
	m.mu.Lock()
	defer m.mu.Unlock()

	if u, ok := m.byID[userID]; ok {
		delete(m.byLogin, normalizeLogin(u.Login))
		delete(m.byID, userID)
	}
}

func (m *Memory) GetUserByLogin(_ context.Context, login string) (deviceauth.UserRecord, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	id, ok := m.byLogin[normalizeLogin(login)]
	if !ok {
		return deviceauth.UserRecord{}, deviceauth.ErrUserNotFound
	}
	return m.byID[id], nil
}

func (m *Memory) GetUserByID(_ context.Context, userID string) (deviceauth.UserRecord, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	u, ok := m.byID[userID]
	if !ok {
		return deviceauth.UserRecord{}, deviceauth.ErrUserNotFound
	}
	return u, nil
}

// UpdatePasswordHash implements [deviceauth.PasswordHashUpdater].
func (m *Memory) UpdatePasswordHash(_ context.Context, userID, newHash string) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	u, ok := m.byID[userID]
	if !ok {
		return deviceauth.ErrUserNotFound
	}
	u.PasswordHash = newHash
	m.byID[userID] = u
	return nil
}

func (m *Memory) Len() int {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return len(m.byID)
}

func normalizeLogin(login string) string {
	return strings.ToLower(strings.TrimSpace(login))
}
