// Package sqlite provides a SQLite-backed token cache. Token values are sealed
// before they reach disk.
package sqlite

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"path/filepath"
	"strings"
	"time"

	"github.com/jrsteele09/go-auth-session/token"
	_ "modernc.org/sqlite"
)

const schema = `CREATE TABLE IF NOT EXISTS token_cache (
	cache_key     TEXT PRIMARY KEY,
	access_token  BLOB NOT NULL,
	refresh_token BLOB NOT NULL,
	id_token      BLOB NOT NULL,
	expiry        INTEGER NOT NULL,
	updated_at    INTEGER NOT NULL
)`

var _ token.Cache = (*Store)(nil)

// Store persists identity-client tokens in SQLite.
type Store struct {
	sqlDB  *sql.DB
	sealer *token.Sealer
}

func toMillis(value time.Time) int64 {
	if value.IsZero() {
		return 0
	}
	return value.UTC().UnixMilli()
}

func fromMillis(value int64) time.Time {
	if value == 0 {
		return time.Time{}
	}
	return time.UnixMilli(value).UTC()
}

// Open opens (creating if needed) a SQLite token cache at path.
func Open(path string, sealer *token.Sealer) (*Store, error) {
	if strings.TrimSpace(path) == "" {
		return nil, fmt.Errorf("storage path is required")
	}
	if sealer == nil {
		return nil, fmt.Errorf("token sealer is required")
	}
	cleanPath := filepath.Clean(path)
	dsn := cleanPath + "?_pragma=journal_mode(WAL)&_pragma=busy_timeout(5000)"
	sqlDB, err := sql.Open("sqlite", dsn)
	if err != nil {
		return nil, fmt.Errorf("open sqlite db: %w", err)
	}
	if err := sqlDB.Ping(); err != nil {
		_ = sqlDB.Close()
		return nil, fmt.Errorf("ping sqlite db: %w", err)
	}
	if _, err := sqlDB.Exec(schema); err != nil {
		_ = sqlDB.Close()
		return nil, fmt.Errorf("create token_cache table: %w", err)
	}
	return &Store{sqlDB: sqlDB, sealer: sealer}, nil
}

// Close closes the SQLite handle.
func (s *Store) Close() error {
	if s == nil || s.sqlDB == nil {
		return nil
	}
	return s.sqlDB.Close()
}

// Ping reports whether the database is reachable.
func (s *Store) Ping(ctx context.Context) error {
	if s == nil || s.sqlDB == nil {
		return fmt.Errorf("storage is not configured")
	}
	return s.sqlDB.PingContext(ctx)
}

// Get loads and unseals the entry for key.
func (s *Store) Get(ctx context.Context, key string) (*token.Entry, error) {
	if err := s.check(ctx, key); err != nil {
		return nil, err
	}

	var access, refresh, id []byte
	var expiry, updatedAt int64
	err := s.sqlDB.QueryRowContext(ctx,
		`SELECT access_token, refresh_token, id_token, expiry, updated_at
		   FROM token_cache WHERE cache_key = ?`, key,
	).Scan(&access, &refresh, &id, &expiry, &updatedAt)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, token.ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("get token entry: %w", err)
	}

	entry := &token.Entry{
		Expiry:    fromMillis(expiry),
		UpdatedAt: fromMillis(updatedAt),
	}
	if entry.AccessToken, err = s.open(access); err != nil {
		return nil, err
	}
	if entry.RefreshToken, err = s.open(refresh); err != nil {
		return nil, err
	}
	if entry.IDToken, err = s.open(id); err != nil {
		return nil, err
	}
	return entry, nil
}

// Upsert seals and stores entry under key.
func (s *Store) Upsert(ctx context.Context, key string, entry token.Entry) error {
	if err := s.check(ctx, key); err != nil {
		return err
	}

	access, err := s.sealer.Seal([]byte(entry.AccessToken))
	if err != nil {
		return err
	}
	refresh, err := s.sealer.Seal([]byte(entry.RefreshToken))
	if err != nil {
		return err
	}
	id, err := s.sealer.Seal([]byte(entry.IDToken))
	if err != nil {
		return err
	}
	updatedAt := entry.UpdatedAt
	if updatedAt.IsZero() {
		updatedAt = time.Now()
	}

	_, err = s.sqlDB.ExecContext(ctx,
		`INSERT INTO token_cache (cache_key, access_token, refresh_token, id_token, expiry, updated_at)
		 VALUES (?, ?, ?, ?, ?, ?)
		 ON CONFLICT(cache_key) DO UPDATE SET
		   access_token = excluded.access_token,
		   refresh_token = excluded.refresh_token,
		   id_token = excluded.id_token,
		   expiry = excluded.expiry,
		   updated_at = excluded.updated_at`,
		key, access, refresh, id, toMillis(entry.Expiry), toMillis(updatedAt),
	)
	if err != nil {
		return fmt.Errorf("upsert token entry: %w", err)
	}
	return nil
}

// Delete removes the entry for key; deleting a missing key is not an error.
func (s *Store) Delete(ctx context.Context, key string) error {
	if err := s.check(ctx, key); err != nil {
		return err
	}
	if _, err := s.sqlDB.ExecContext(ctx, `DELETE FROM token_cache WHERE cache_key = ?`, key); err != nil {
		return fmt.Errorf("delete token entry: %w", err)
	}
	return nil
}

func (s *Store) check(ctx context.Context, key string) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	if s == nil || s.sqlDB == nil {
		return fmt.Errorf("storage is not configured")
	}
	if strings.TrimSpace(key) == "" {
		return fmt.Errorf("key is required")
	}
	return nil
}

func (s *Store) open(sealed []byte) (string, error) {
	plain, err := s.sealer.Open(sealed)
	if err != nil {
		return "", fmt.Errorf("unseal token entry: %w", err)
	}
	return string(plain), nil
}
