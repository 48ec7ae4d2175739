package password

import "strings"

// Auto hashes new passwords with Argon2id and verifies either Argon2id or
// bcrypt hashes, choosing by the encoded prefix.
type Auto struct {
	argon  *Argon2
	bcrypt *Bcrypt
}

// NewAuto builds an [Auto] hasher from Argon2id parameters. bcryptCost only
// matters for [Auto.HashLegacy]; zero selects DefaultBcryptCost.
func NewAuto(cfg Config, bcryptCost int) (*Auto, error) {
	argon, err := NewArgon2(cfg)
	if err != nil {
		return nil, err
	}
	legacy, err := NewBcrypt(bcryptCost)
	if err != nil {
		return nil, err
	}
	return &Auto{argon: argon, bcrypt: legacy}, nil
}

// Hash returns an Argon2id PHC string.
func (a *Auto) Hash(password string) (string, error) {
	return a.argon.Hash(password)
}

// HashLegacy returns a bcrypt hash. Used only to seed fixtures that mimic
// rows written by the previous system.
func (a *Auto) HashLegacy(password string) (string, error) {
	return a.bcrypt.Hash(password)
}

// Verify dispatches on the hash prefix.
func (a *Auto) Verify(password string, encodedHash string) (bool, error) {
	switch {
	case strings.HasPrefix(encodedHash, argon2Prefix):
		return a.argon.Verify(password, encodedHash)
	case isBcryptHash(encodedHash):
		return a.bcrypt.Verify(password, encodedHash)
	default:
		return false, ErrUnsupportedHash
	}
}

// NeedsUpgrade reports true for every bcrypt hash and for Argon2id hashes
// made with weaker parameters.
func (a *Auto) NeedsUpgrade(encodedHash string) (bool, error) {
	if isBcryptHash(encodedHash) {
		return true, nil
	}
	return a.argon.NeedsUpgrade(encodedHash)
}
