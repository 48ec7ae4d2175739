package main

import (
	"bytes"
	"fmt"
	"os"
	"strings"
	"testing"
	"time"

	"github.com/MrEthical07/deviceauth/password"
)

const fastPasswordYAML = `
password:
  memory_kib: 8192
  time: 1
  parallelism: 1
  bcrypt_cost: 4
`

func runApp(t *testing.T, args ...string) (string, error) {
	t.Helper()
	var out bytes.Buffer
	app := App()
	app.Writer = &out
	app.ErrWriter = &out
	err := app.Run(append([]string{"deviceauth"}, args...))
	return strings.TrimSpace(out.String()), err
}

func fastHasher(t *testing.T) *password.Auto {
	t.Helper()
	h, err := newHasher(PasswordSection{MemoryKiB: 8192, Time: 1, Parallelism: 1, BcryptCost: 4})
	if err != nil {
		t.Fatalf("hasher: %v", err)
	}
	return h
}

func TestHashPasswordFromFlag(t *testing.T) {
	path := writeConfig(t, fastPasswordYAML)
	out, err := runApp(t, "--config", path, "hash-password", "--password", "pw-123456")
	if err != nil {
		t.Fatalf("hash-password: %v", err)
	}
	if !strings.HasPrefix(out, "$argon2id$") {
		t.Fatalf("expected argon2id hash, got %q", out)
	}
	if !strings.Contains(out, "m=8192,t=1,p=1") {
		t.Fatalf("configured parameters not used: %q", out)
	}
	ok, err := fastHasher(t).Verify("pw-123456", out)
	if err != nil || !ok {
		t.Fatalf("hash does not verify: ok=%v err=%v", ok, err)
	}
}

func TestHashPasswordFromStdinBcrypt(t *testing.T) {
	prev := stdinReader
	stdinReader = strings.NewReader("from-stdin\n")
	defer func() { stdinReader = prev }()

	path := writeConfig(t, fastPasswordYAML)
	out, err := runApp(t, "--config", path, "hash-password", "--bcrypt")
	if err != nil {
		t.Fatalf("hash-password: %v", err)
	}
	if !strings.HasPrefix(out, "$2") {
		t.Fatalf("expected bcrypt hash, got %q", out)
	}
	ok, err := fastHasher(t).Verify("from-stdin", out)
	if err != nil || !ok {
		t.Fatalf("hash does not verify: ok=%v err=%v", ok, err)
	}
}

func TestHashPasswordRequiresInput(t *testing.T) {
	prev := stdinReader
	stdinReader = strings.NewReader("")
	defer func() { stdinReader = prev }()

	path := writeConfig(t, fastPasswordYAML)
	if _, err := runApp(t, "--config", path, "hash-password"); err == nil {
		t.Fatal("expected error for empty password")
	}
}

func TestSeedUserRequiresPostgres(t *testing.T) {
	path := writeConfig(t, fastPasswordYAML)
	_, err := runApp(t, "--config", path, "seed-user", "--login", "alice", "--password", "pw-123456")
	if err == nil || !strings.Contains(err.Error(), "postgres.dsn") {
		t.Fatalf("expected postgres.dsn error, got %v", err)
	}
}

func TestSeedUserPostgres(t *testing.T) {
	dsn := os.Getenv("DEVICEAUTH_TEST_POSTGRES_DSN")
	if dsn == "" {
		t.Skip("DEVICEAUTH_TEST_POSTGRES_DSN not set")
	}
	table := fmt.Sprintf("seed_users_%d", time.Now().UnixNano())
	t.Setenv("DEVICEAUTH_POSTGRES__DSN", dsn)
	t.Setenv("DEVICEAUTH_POSTGRES__TABLE", table)

	path := writeConfig(t, fastPasswordYAML)
	out, err := runApp(t, "--config", path, "seed-user", "--login", "seeded", "--email", "s@example.com", "--password", "pw-123456")
	if err != nil {
		t.Fatalf("seed-user: %v", err)
	}
	if out == "" {
		t.Fatal("expected the new user id on stdout")
	}

	if _, err := runApp(t, "--config", path, "seed-user", "--login", "SEEDED", "--password", "pw-123456"); err == nil {
		t.Fatal("expected duplicate login to fail")
	}
}
