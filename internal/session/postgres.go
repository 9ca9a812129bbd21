package session

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"reportmitra.org/internal/upstream"
)

// PostgresStore persists sessions so that logins survive gateway restarts.
// Works through database/sql with the pgx stdlib driver.
type PostgresStore struct {
	db *sql.DB
}

func NewPostgresStore(db *sql.DB) *PostgresStore {
	return &PostgresStore{db: db}
}

// EnsureSchema creates the session table when missing.
func (s *PostgresStore) EnsureSchema(ctx context.Context) error {
	_, err := s.db.ExecContext(ctx, `
create table if not exists admin_sessions (
    id            text primary key,
    access_token  text not null default '',
    refresh_token text not null default '',
    created_at    timestamptz not null,
    expires_at    timestamptz not null
)`)
	if err != nil {
		return fmt.Errorf("session: ensure schema: %w", err)
	}
	return nil
}

func (s *PostgresStore) Create(ctx context.Context, sess Session) error {
	_, err := s.db.ExecContext(ctx,
		`insert into admin_sessions (id, access_token, refresh_token, created_at, expires_at) values ($1, $2, $3, $4, $5)`,
		sess.ID, sess.Tokens.Access, sess.Tokens.Refresh, sess.CreatedAt, sess.ExpiresAt)
	if err != nil {
		return fmt.Errorf("session: create: %w", err)
	}
	return nil
}

func (s *PostgresStore) Get(ctx context.Context, id string) (Session, error) {
	row := s.db.QueryRowContext(ctx,
		`select id, access_token, refresh_token, created_at, expires_at from admin_sessions where id = $1`, id)

	var sess Session
	err := row.Scan(&sess.ID, &sess.Tokens.Access, &sess.Tokens.Refresh, &sess.CreatedAt, &sess.ExpiresAt)
	if errors.Is(err, sql.ErrNoRows) {
		return Session{}, ErrNotFound
	}
	if err != nil {
		return Session{}, fmt.Errorf("session: get: %w", err)
	}
	if !sess.ExpiresAt.IsZero() && time.Now().After(sess.ExpiresAt) {
		_ = s.Delete(ctx, id)
		return Session{}, ErrNotFound
	}
	return sess, nil
}

func (s *PostgresStore) SetTokens(ctx context.Context, id string, pair upstream.TokenPair) error {
	res, err := s.db.ExecContext(ctx, `
update admin_sessions
   set access_token  = coalesce(nullif($2, ''), access_token),
       refresh_token = coalesce(nullif($3, ''), refresh_token)
 where id = $1`, id, pair.Access, pair.Refresh)
	if err != nil {
		return fmt.Errorf("session: set tokens: %w", err)
	}
	return requireRow(res)
}

func (s *PostgresStore) ClearTokens(ctx context.Context, id string) error {
	res, err := s.db.ExecContext(ctx,
		`update admin_sessions set access_token = '', refresh_token = '' where id = $1`, id)
	if err != nil {
		return fmt.Errorf("session: clear tokens: %w", err)
	}
	return requireRow(res)
}

func (s *PostgresStore) Delete(ctx context.Context, id string) error {
	_, err := s.db.ExecContext(ctx, `delete from admin_sessions where id = $1`, id)
	if err != nil {
		return fmt.Errorf("session: delete: %w", err)
	}
	return nil
}

// PurgeExpired removes dead sessions; intended for a periodic caller.
func (s *PostgresStore) PurgeExpired(ctx context.Context) error {
	_, err := s.db.ExecContext(ctx, `delete from admin_sessions where expires_at < now()`)
	if err != nil {
		return fmt.Errorf("session: purge: %w", err)
	}
	return nil
}

func requireRow(res sql.Result) error {
	n, err := res.RowsAffected()
	if err != nil {
		return nil
	}
	if n == 0 {
		return ErrNotFound
	}
	return nil
}
