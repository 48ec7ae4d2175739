// Package badgerstore persists device sessions in an embedded Badger
// database. It satisfies the same contract as the Redis-backed
// session.Store and is intended for single-node deployments that want
// durable sessions without an external Redis.
//
// Compare-and-swap relies on Badger's optimistic transactions: a
// read-compare-write runs inside one transaction, and a concurrent commit
// touching the same device key aborts the loser with badger.ErrConflict,
// which is reported as session.ErrIssuedAtMismatch.
package badgerstore

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/dgraph-io/badger/v3"

	"github.com/MrEthical07/deviceauth/session"
)

// Config controls how the database is opened.
type Config struct {
	// Dir is the on-disk location. Ignored when InMemory is set.
	Dir        string
	InMemory   bool
	SyncWrites bool
	Logger     *slog.Logger
	Now        func() time.Time
}

// Store is a Badger-backed session store.
type Store struct {
	db  *badger.DB
	now func() time.Time
}

type storedRecord struct {
	UserID    string `json:"uid"`
	IssuedAt  int64  `json:"iat"`
	ExpiresAt int64  `json:"exp"`
	IP        string `json:"ip,omitempty"`
	Title     string `json:"title,omitempty"`
}

// Open opens (or creates) the database described by cfg.
func Open(cfg Config) (*Store, error) {
	if !cfg.InMemory && cfg.Dir == "" {
		return nil, errors.New("badgerstore: dir is required")
	}
	logger := cfg.Logger
	if logger == nil {
		logger = slog.Default()
	}

	opts := badger.DefaultOptions(cfg.Dir)
	if cfg.InMemory {
		opts = badger.DefaultOptions("").WithInMemory(true)
	}
	opts.Logger = &badgerLogger{logger: logger}
	opts.SyncWrites = cfg.SyncWrites
	opts.DetectConflicts = true

	db, err := badger.Open(opts)
	if err != nil {
		return nil, fmt.Errorf("badgerstore: open db: %w", err)
	}

	now := cfg.Now
	if now == nil {
		now = time.Now
	}
	return &Store{db: db, now: now}, nil
}

// Close flushes and closes the database.
func (s *Store) Close() error {
	if err := s.db.Close(); err != nil {
		return fmt.Errorf("badgerstore: close db: %w", err)
	}
	return nil
}

func deviceKey(deviceID string) []byte {
	return []byte("d/" + deviceID)
}

func userPrefix(userID string) []byte {
	return []byte("u/" + userID + "/")
}

func indexKey(userID, deviceID string) []byte {
	return []byte("u/" + userID + "/" + deviceID)
}

// Create writes rec as the session for its device, replacing any previous row.
func (s *Store) Create(ctx context.Context, rec session.Record) error {
	rec = rec.Truncate()
	err := s.db.Update(func(txn *badger.Txn) error {
		return s.put(txn, rec)
	})
	return wrap(err)
}

// Get returns the session for deviceID or session.ErrSessionNotFound.
func (s *Store) Get(ctx context.Context, deviceID string) (session.Record, error) {
	var rec session.Record
	err := s.db.View(func(txn *badger.Txn) error {
		var err error
		rec, err = load(txn, deviceID)
		return err
	})
	if err != nil {
		return session.Record{}, wrap(err)
	}
	return rec, nil
}

// Rotate replaces the session for next.DeviceID if it is owned by
// next.UserID and still carries expectedIssuedAt.
func (s *Store) Rotate(ctx context.Context, expectedIssuedAt time.Time, next session.Record) error {
	next = next.Truncate()
	err := s.db.Update(func(txn *badger.Txn) error {
		current, err := load(txn, next.DeviceID)
		if err != nil {
			return err
		}
		if current.UserID != next.UserID {
			return session.ErrOwnerMismatch
		}
		if current.IssuedAt.Unix() != expectedIssuedAt.Unix() {
			return session.ErrIssuedAtMismatch
		}
		return s.put(txn, next)
	})
	return wrap(err)
}

// Delete removes the session for deviceID if owned by userID and, when
// issuedAt is non-zero, still current.
func (s *Store) Delete(ctx context.Context, userID, deviceID string, issuedAt time.Time) error {
	missing := false
	err := s.update(func(txn *badger.Txn) error {
		missing = false
		current, err := load(txn, deviceID)
		if errors.Is(err, session.ErrSessionNotFound) {
			missing = true
			return txn.Delete(indexKey(userID, deviceID))
		}
		if err != nil {
			return err
		}
		if current.UserID != userID {
			return session.ErrOwnerMismatch
		}
		if !issuedAt.IsZero() && current.IssuedAt.Unix() != issuedAt.Unix() {
			return session.ErrIssuedAtMismatch
		}
		if err := txn.Delete(deviceKey(deviceID)); err != nil {
			return err
		}
		return txn.Delete(indexKey(userID, deviceID))
	})
	if err == nil && missing {
		return session.ErrSessionNotFound
	}
	return wrap(err)
}

// DeleteAllExcept removes every session of userID other than keepDeviceID.
func (s *Store) DeleteAllExcept(ctx context.Context, userID, keepDeviceID string) (int, error) {
	removed := 0
	err := s.update(func(txn *badger.Txn) error {
		removed = 0
		deviceIDs := listIndex(txn, userID)
		for _, deviceID := range deviceIDs {
			if deviceID == keepDeviceID {
				continue
			}
			current, err := load(txn, deviceID)
			switch {
			case errors.Is(err, session.ErrSessionNotFound):
			case err != nil:
				return err
			case current.UserID == userID:
				if err := txn.Delete(deviceKey(deviceID)); err != nil {
					return err
				}
				removed++
			}
			if err := txn.Delete(indexKey(userID, deviceID)); err != nil {
				return err
			}
		}
		return nil
	})
	if err != nil {
		return 0, wrap(err)
	}
	return removed, nil
}

// ListByUser returns all live sessions owned by userID, newest first.
func (s *Store) ListByUser(ctx context.Context, userID string) ([]session.Record, error) {
	records := make([]session.Record, 0)
	err := s.db.View(func(txn *badger.Txn) error {
		for _, deviceID := range listIndex(txn, userID) {
			rec, err := load(txn, deviceID)
			if errors.Is(err, session.ErrSessionNotFound) {
				continue
			}
			if err != nil {
				return err
			}
			if rec.UserID == userID {
				records = append(records, rec)
			}
		}
		return nil
	})
	if err != nil {
		return nil, wrap(err)
	}

	session.SortNewestFirst(records)
	return records, nil
}

func (s *Store) put(txn *badger.Txn, rec session.Record) error {
	data, err := json.Marshal(storedRecord{
		UserID:    rec.UserID,
		IssuedAt:  rec.IssuedAt.Unix(),
		ExpiresAt: rec.ExpiresAt.Unix(),
		IP:        rec.IP,
		Title:     rec.Title,
	})
	if err != nil {
		return err
	}

	ttl := rec.TTL(s.now())
	if err := txn.SetEntry(badger.NewEntry(deviceKey(rec.DeviceID), data).WithTTL(ttl)); err != nil {
		return err
	}
	return txn.SetEntry(badger.NewEntry(indexKey(rec.UserID, rec.DeviceID), nil).WithTTL(ttl))
}

func load(txn *badger.Txn, deviceID string) (session.Record, error) {
	item, err := txn.Get(deviceKey(deviceID))
	if err != nil {
		if errors.Is(err, badger.ErrKeyNotFound) {
			return session.Record{}, session.ErrSessionNotFound
		}
		return session.Record{}, err
	}

	raw, err := item.ValueCopy(nil)
	if err != nil {
		return session.Record{}, err
	}

	var stored storedRecord
	if err := json.Unmarshal(raw, &stored); err != nil {
		return session.Record{}, fmt.Errorf("corrupt session for device %s: %v", deviceID, err)
	}

	return session.Record{
		UserID:    stored.UserID,
		DeviceID:  deviceID,
		IssuedAt:  time.Unix(stored.IssuedAt, 0).UTC(),
		ExpiresAt: time.Unix(stored.ExpiresAt, 0).UTC(),
		IP:        stored.IP,
		Title:     stored.Title,
	}, nil
}

func listIndex(txn *badger.Txn, userID string) []string {
	prefix := userPrefix(userID)
	opts := badger.DefaultIteratorOptions
	opts.Prefix = prefix
	opts.PrefetchValues = false

	it := txn.NewIterator(opts)
	defer it.Close()

	deviceIDs := make([]string, 0)
	for it.Rewind(); it.Valid(); it.Next() {
		key := it.Item().KeyCopy(nil)
		deviceIDs = append(deviceIDs, string(key[len(prefix):]))
	}
	return deviceIDs
}

// maxConflictRetries bounds how often update re-runs a transaction that
// lost to a concurrent writer.
const maxConflictRetries = 5

// update runs fn in a read-write transaction and re-runs it when the commit
// reports badger.ErrConflict. fn must reset any state it captures. Only
// operations whose outcome is decided by re-reading the row use it; Rotate
// keeps a conflict as a lost compare-and-swap.
func (s *Store) update(fn func(txn *badger.Txn) error) error {
	var err error
	for attempt := 0; attempt <= maxConflictRetries; attempt++ {
		err = s.db.Update(fn)
		if !errors.Is(err, badger.ErrConflict) {
			return err
		}
	}
	return err
}

// wrap maps Badger failures onto session sentinels. Domain sentinels pass
// through untouched; a transaction conflict means another writer rotated
// or deleted the row first.
func wrap(err error) error {
	switch {
	case err == nil:
		return nil
	case errors.Is(err, session.ErrSessionNotFound),
		errors.Is(err, session.ErrOwnerMismatch),
		errors.Is(err, session.ErrIssuedAtMismatch):
		return err
	case errors.Is(err, badger.ErrConflict):
		return session.ErrIssuedAtMismatch
	default:
		return fmt.Errorf("%w: %v", session.ErrStoreUnavailable, err)
	}
}

// badgerLogger adapts slog.Logger to Badger's Logger interface.
type badgerLogger struct {
	logger *slog.Logger
}

func (l *badgerLogger) Errorf(format string, args ...interface{}) {
	l.logger.Error(fmt.Sprintf(format, args...))
}

func (l *badgerLogger) Warningf(format string, args ...interface{}) {
	l.logger.Warn(fmt.Sprintf(format, args...))
}

func (l *badgerLogger) Infof(format string, args ...interface{}) {
	l.logger.Debug(fmt.Sprintf(format, args...))
}

func (l *badgerLogger) Debugf(format string, args ...interface{}) {
	l.logger.Debug(fmt.Sprintf(format, args...))
}
