package password

import (
	"errors"
	"strings"
	"testing"

	"golang.org/x/crypto/bcrypt"
)

func newTestAuto(t *testing.T) *Auto {
	t.Helper()
	auto, err := NewAuto(fastConfig(), bcrypt.MinCost)
	if err != nil {
		t.Fatalf("NewAuto error: %v", err)
	}
	return auto
}

func TestAutoHashesWithArgon2(t *testing.T) {
	auto := newTestAuto(t)

	hash, err := auto.Hash("secret-pass")
	if err != nil {
		t.Fatalf("Hash error: %v", err)
	}
	if !strings.HasPrefix(hash, argon2Prefix) {
		t.Fatalf("expected argon2id hash, got %s", hash)
	}
	if ok, err := auto.Verify("secret-pass", hash); err != nil || !ok {
		t.Fatalf("expected argon2 verify success: ok=%v err=%v", ok, err)
	}
	if up, err := auto.NeedsUpgrade(hash); err != nil || up {
		t.Fatalf("expected current argon2 hash to need no upgrade: up=%v err=%v", up, err)
	}
}

func TestAutoVerifiesLegacyBcrypt(t *testing.T) {
	auto := newTestAuto(t)

	legacy, err := auto.HashLegacy("qwerty1")
	if err != nil {
		t.Fatalf("HashLegacy error: %v", err)
	}
	if !isBcryptHash(legacy) {
		t.Fatalf("expected bcrypt prefix, got %s", legacy)
	}

	if ok, err := auto.Verify("qwerty1", legacy); err != nil || !ok {
		t.Fatalf("expected bcrypt verify success: ok=%v err=%v", ok, err)
	}
	if ok, err := auto.Verify("qwerty2", legacy); err != nil || ok {
		t.Fatalf("expected bcrypt mismatch to be false without error: ok=%v err=%v", ok, err)
	}
	if up, _ := auto.NeedsUpgrade(legacy); !up {
		t.Fatal("expected bcrypt hashes to need upgrade")
	}
}

func TestAutoRejectsUnknownFormat(t *testing.T) {
	auto := newTestAuto(t)

	if _, err := auto.Verify("whatever", "$md5$abc"); !errors.Is(err, ErrUnsupportedHash) {
		t.Fatalf("expected ErrUnsupportedHash, got %v", err)
	}
}

func TestNewBcryptCostBounds(t *testing.T) {
	if _, err := NewBcrypt(bcrypt.MaxCost + 1); err == nil {
		t.Fatal("expected out-of-range cost rejected")
	}
	b, err := NewBcrypt(0)
	if err != nil {
		t.Fatalf("NewBcrypt(0): %v", err)
	}
	if b.cost != DefaultBcryptCost {
		t.Fatalf("expected default cost %d, got %d", DefaultBcryptCost, b.cost)
	}
}
