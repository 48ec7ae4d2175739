package userstore

import (
	"context"
	"errors"
	"os"
	"strings"
	"testing"
	"time"

	sq "github.com/Masterminds/squirrel"
	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/MrEthical07/deviceauth"
)

// Postgres tests are opt-in and require DEVICEAUTH_TEST_POSTGRES_DSN.

var _ deviceauth.UserProvider = (*Postgres)(nil)

func openTestPostgres(t *testing.T) *Postgres {
	t.Helper()

	dsn := strings.TrimSpace(os.Getenv("DEVICEAUTH_TEST_POSTGRES_DSN"))
	if dsn == "" {
		t.Skip("postgres test skipped: DEVICEAUTH_TEST_POSTGRES_DSN is not set")
	}

	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()

	pool, err := pgxpool.New(ctx, dsn)
	if err != nil {
		t.Fatalf("connect postgres: %v", err)
	}
	if err := pool.Ping(ctx); err != nil {
		pool.Close()
		t.Fatalf("ping postgres: %v", err)
	}

	table := "users_it_" + strings.ReplaceAll(uuid.NewString()[:8], "-", "")
	store := NewPostgres(pool, WithTable(table))
	if err := store.EnsureSchema(ctx); err != nil {
		pool.Close()
		t.Fatalf("EnsureSchema: %v", err)
	}

	t.Cleanup(func() {
		_, _ = pool.Exec(context.Background(), `DROP TABLE IF EXISTS `+pgx.Identifier{table}.Sanitize())
		pool.Close()
	})
	return store
}

func TestPostgresCreateAndLookup(t *testing.T) {
	store := openTestPostgres(t)
	ctx := context.Background()

	u, err := store.Create(ctx, "Alice", "alice@example.com", "hash-1")
	if err != nil {
		t.Fatalf("Create: %v", err)
	}

	byLogin, err := store.GetUserByLogin(ctx, "ALICE")
	if err != nil {
		t.Fatalf("GetUserByLogin: %v", err)
	}
	if byLogin != u {
		t.Fatalf("expected %+v, got %+v", u, byLogin)
	}

	byID, err := store.GetUserByID(ctx, u.UserID)
	if err != nil {
		t.Fatalf("GetUserByID: %v", err)
	}
	if byID.Email != "alice@example.com" {
		t.Fatalf("unexpected user %+v", byID)
	}

	if _, err := store.Create(ctx, "alice", "", "hash-2"); !errors.Is(err, ErrDuplicateLogin) {
		t.Fatalf("expected ErrDuplicateLogin, got %v", err)
	}
}

func TestPostgresUpdateAndMissing(t *testing.T) {
	store := openTestPostgres(t)
	ctx := context.Background()

	if _, err := store.GetUserByLogin(ctx, "ghost"); !errors.Is(err, deviceauth.ErrUserNotFound) {
		t.Fatalf("expected ErrUserNotFound, got %v", err)
	}
	if err := store.UpdatePasswordHash(ctx, "missing", "x"); !errors.Is(err, deviceauth.ErrUserNotFound) {
		t.Fatalf("expected ErrUserNotFound, got %v", err)
	}

	u, err := store.Create(ctx, "bob", "", "old")
	if err != nil {
		t.Fatalf("Create: %v", err)
	}
	if err := store.UpdatePasswordHash(ctx, u.UserID, "new"); err != nil {
		t.Fatalf("UpdatePasswordHash: %v", err)
	}
	got, err := store.GetUserByID(ctx, u.UserID)
	if err != nil || got.PasswordHash != "new" {
		t.Fatalf("expected updated hash, got %+v err=%v", got, err)
	}
}

func TestPostgresQueriesUseDollarPlaceholders(t *testing.T) {
	p := NewPostgres(nil, WithTable("accounts"))
	sqlStr, args, err := p.sb.Select(colID).From(p.ident()).Where(sq.Eq{colID: "x"}).ToSql()
	if err != nil {
		t.Fatalf("ToSql: %v", err)
	}
	if sqlStr != `SELECT id FROM "accounts" WHERE id = $1` || len(args) != 1 {
		t.Fatalf("unexpected query %q %v", sqlStr, args)
	}
}
