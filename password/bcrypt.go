package password

import (
	"errors"

	"golang.org/x/crypto/bcrypt"
)

// DefaultBcryptCost matches the cost used by the legacy user store.
const DefaultBcryptCost = 10

// bcryptMaxBytes is the input limit of the bcrypt algorithm itself.
const bcryptMaxBytes = 72

// Bcrypt verifies (and, for seeding, produces) bcrypt hashes. New
// passwords should be hashed with [Argon2]; Bcrypt exists so rows written
// by the previous system keep working.
type Bcrypt struct {
	cost int
}

// NewBcrypt returns a [Bcrypt] with the given cost, or DefaultBcryptCost
// when cost is zero.
func NewBcrypt(cost int) (*Bcrypt, error) {
	if cost == 0 {
		cost = DefaultBcryptCost
	}
	if cost < bcrypt.MinCost || cost > bcrypt.MaxCost {
		return nil, errors.New("bcrypt cost out of range")
	}
	return &Bcrypt{cost: cost}, nil
}

// Hash returns a bcrypt hash of password.
func (b *Bcrypt) Hash(password string) (string, error) {
	if len(password) < MinPasswordBytes {
		return "", ErrPasswordTooShort
	}
	if len(password) > bcryptMaxBytes {
		return "", ErrPasswordTooLong
	}
	out, err := bcrypt.GenerateFromPassword([]byte(password), b.cost)
	if err != nil {
		return "", err
	}
	return string(out), nil
}

// Verify reports whether password matches encodedHash.
func (b *Bcrypt) Verify(password string, encodedHash string) (bool, error) {
	err := bcrypt.CompareHashAndPassword([]byte(encodedHash), []byte(password))
	switch {
	case err == nil:
		return true, nil
	case errors.Is(err, bcrypt.ErrMismatchedHashAndPassword), errors.Is(err, bcrypt.ErrPasswordTooLong):
		return false, nil
	default:
		return false, err
	}
}

func isBcryptHash(encodedHash string) bool {
	if len(encodedHash) < 4 || encodedHash[0] != '$' || encodedHash[1] != '2' {
		return false
	}
	switch encodedHash[2] {
	case 'a', 'b', 'y':
		return encodedHash[3] == '$'
	default:
		return false
	}
}
