package userstore

import (
	"context"
	"errors"
	"fmt"
	"time"

	sq "github.com/Masterminds/squirrel"
	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/MrEthical07/deviceauth"
)

const (
	defaultTable    = "users"
	colID           = "id"
	colLogin        = "login"
	colEmail        = "email"
	colPasswordHash = "password_hash"
	colCreatedAt    = "created_at"
)

// Postgres reads users from a single table. Queries are built with squirrel
// using $n placeholders.
type Postgres struct {
	pool  *pgxpool.Pool
	sb    sq.StatementBuilderType
	table string
	now   func() time.Time
}

type PostgresOption func(*Postgres)

// WithTable overrides the table name. The name is quoted as an identifier.
func WithTable(name string) PostgresOption {
	return func(p *Postgres) {
		if name != "" {
			p.table = name
		}
	}
}

func NewPostgres(pool *pgxpool.Pool, opts ...PostgresOption) *Postgres {
	p := &Postgres{
		pool:  pool,
		sb:    sq.StatementBuilder.PlaceholderFormat(sq.Dollar),
		table: defaultTable,
		now:   time.Now,
	}
	for _, opt := range opts {
		opt(p)
	}
	return p
}

func (p *Postgres) ident() string {
	return pgx.Identifier{p.table}.Sanitize()
}

// EnsureSchema creates the users table and its case-insensitive login index
// when they do not exist.
func (p *Postgres) EnsureSchema(ctx context.Context) error {
	table := p.ident()
	index := pgx.Identifier{p.table + "_login_lower_key"}.Sanitize()
	stmts := []string{
		`CREATE TABLE IF NOT EXISTS ` + table + ` (
			id            TEXT PRIMARY KEY,
			login         TEXT NOT NULL,
			email         TEXT NOT NULL DEFAULT '',
			password_hash TEXT NOT NULL,
			created_at    TIMESTAMPTZ NOT NULL DEFAULT now()
		)`,
		`CREATE UNIQUE INDEX IF NOT EXISTS ` + index + ` ON ` + table + ` (lower(login))`,
	}
	for _, stmt := range stmts {
		if _, err := p.pool.Exec(ctx, stmt); err != nil {
			return fmt.Errorf("ensure schema: %w", err)
		}
	}
	return nil
}

// Create inserts a user with a generated id.
func (p *Postgres) Create(ctx context.Context, login, email, passwordHash string) (deviceauth.UserRecord, error) {
	u := deviceauth.UserRecord{
		UserID:       uuid.NewString(),
		Login:        login,
		Email:        email,
		PasswordHash: passwordHash,
	}

	query := p.sb.Insert(p.ident()).
		Columns(colID, colLogin, colEmail, colPasswordHash, colCreatedAt).
		Values(u.UserID, u.Login, u.Email, u.PasswordHash, p.now().UTC())

	sqlStr, args, err := query.ToSql()
	if err != nil {
		return deviceauth.UserRecord{}, err
	}
	if _, err := p.pool.Exec(ctx, sqlStr, args...); err != nil {
		if isUniqueViolation(err) {
			return deviceauth.UserRecord{}, ErrDuplicateLogin
		}
		return deviceauth.UserRecord{}, err
	}
	return u, nil
}

func (p *Postgres) GetUserByLogin(ctx context.Context, login string) (deviceauth.UserRecord, error) {
	return p.getOne(ctx, sq.Expr("lower("+colLogin+") = lower(?)", login))
}

func (p *Postgres) GetUserByID(ctx context.Context, userID string) (deviceauth.UserRecord, error) {
	return p.getOne(ctx, sq.Eq{colID: userID})
}

func (p *Postgres) getOne(ctx context.Context, pred sq.Sqlizer) (deviceauth.UserRecord, error) {
	query := p.sb.Select(colID, colLogin, colEmail, colPasswordHash).
		From(p.ident()).
		Where(pred).
		Limit(1)

	sqlStr, args, err := query.ToSql()
	if err != nil {
		return deviceauth.UserRecord{}, err
	}

	var u deviceauth.UserRecord
	err = p.pool.QueryRow(ctx, sqlStr, args...).Scan(&u.UserID, &u.Login, &u.Email, &u.PasswordHash)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return deviceauth.UserRecord{}, deviceauth.ErrUserNotFound
		}
		return deviceauth.UserRecord{}, err
	}
	return u, nil
}

// UpdatePasswordHash implements [deviceauth.PasswordHashUpdater].
func (p *Postgres) UpdatePasswordHash(ctx context.Context, userID, newHash string) error {
	query := p.sb.Update(p.ident()).
		Set(colPasswordHash, newHash).
		Where(sq.Eq{colID: userID})

	sqlStr, args, err := query.ToSql()
	if err != nil {
		return err
	}

	tag, err := p.pool.Exec(ctx, sqlStr, args...)
	if err != nil {
		return err
	}
	if tag.RowsAffected() == 0 {
		return deviceauth.ErrUserNotFound
	}
	return nil
}

func isUniqueViolation(err error) bool {
	var pgErr *pgconn.PgError
	if !errors.As(err, &pgErr) {
		return false
	}
	return pgErr.Code == "23505" // unique_violation
}
