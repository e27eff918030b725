// Package sqlite provides a SQLite-backed PhotoStore.
package sqlite

import (
	"context"
	"database/sql"
	_ "embed"
	"encoding/json"
	"fmt"
	"path/filepath"
	"strings"
	"time"

	"github.com/bryanchriswhite/photobooth/internal/logger"
	"github.com/bryanchriswhite/photobooth/internal/store"
	_ "modernc.org/sqlite"
)

//go:embed schema.sql
var schema string

// Store persists reference lists in a single SQLite table
type Store struct {
	sqlDB *sql.DB
}

var _ store.PhotoStore = (*Store)(nil)

// Open opens and migrates a photo store. ":memory:" opens a private
// in-memory database.
func Open(path string) (*Store, error) {
	if strings.TrimSpace(path) == "" {
		return nil, fmt.Errorf("storage path is required")
	}

	dsn := ":memory:"
	if path != ":memory:" {
		dsn = filepath.Clean(path) + "?_journal_mode=WAL&_foreign_keys=ON&_busy_timeout=5000&_synchronous=NORMAL"
	}
	sqlDB, err := sql.Open("sqlite", dsn)
	if err != nil {
		return nil, fmt.Errorf("open sqlite db: %w", err)
	}
	if path == ":memory:" {
		// each connection would otherwise get its own empty database
		sqlDB.SetMaxOpenConns(1)
	}

	if err := sqlDB.Ping(); err != nil {
		_ = sqlDB.Close()
		return nil, fmt.Errorf("ping sqlite db: %w", err)
	}

	s := &Store{sqlDB: sqlDB}
	if err := s.migrate(); err != nil {
		_ = sqlDB.Close()
		return nil, fmt.Errorf("run migrations: %w", err)
	}

	logger.WithComponent("store").Info().Str("path", path).Msg("Photo store opened")
	return s, nil
}

// Close releases the underlying SQLite connection.
func (s *Store) Close() error {
	if s == nil || s.sqlDB == nil {
		return nil
	}
	return s.sqlDB.Close()
}

// Get loads the ordered list stored under session and key
func (s *Store) Get(ctx context.Context, session, key string) ([]string, error) {
	if s == nil || s.sqlDB == nil {
		return nil, fmt.Errorf("storage is not configured")
	}
	if _, err := store.ListID(session, key); err != nil {
		return nil, err
	}

	row := s.sqlDB.QueryRowContext(
		ctx,
		`SELECT refs_json FROM photo_lists WHERE session_id = ? AND list_key = ?`,
		strings.TrimSpace(session), strings.TrimSpace(key),
	)

	var payload string
	if err := row.Scan(&payload); err != nil {
		if err == sql.ErrNoRows {
			return []string{}, nil
		}
		return nil, fmt.Errorf("get photo list: %w", err)
	}

	var refs []string
	if err := json.Unmarshal([]byte(payload), &refs); err != nil {
		return nil, fmt.Errorf("decode photo list: %w", err)
	}
	if refs == nil {
		refs = []string{}
	}
	return refs, nil
}

// Put replaces the ordered list stored under session and key
func (s *Store) Put(ctx context.Context, session, key string, refs []string) error {
	if s == nil || s.sqlDB == nil {
		return fmt.Errorf("storage is not configured")
	}
	if _, err := store.ListID(session, key); err != nil {
		return err
	}
	if refs == nil {
		refs = []string{}
	}

	payload, err := json.Marshal(refs)
	if err != nil {
		return fmt.Errorf("encode photo list: %w", err)
	}

	_, err = s.sqlDB.ExecContext(
		ctx,
		`INSERT INTO photo_lists (session_id, list_key, refs_json, updated_at)
		 VALUES (?, ?, ?, ?)
		 ON CONFLICT(session_id, list_key) DO UPDATE SET
		    refs_json = excluded.refs_json,
		    updated_at = excluded.updated_at`,
		strings.TrimSpace(session), strings.TrimSpace(key), string(payload), time.Now().UTC().UnixMilli(),
	)
	if err != nil {
		return fmt.Errorf("put photo list: %w", err)
	}
	return nil
}

func (s *Store) migrate() error {
	for _, stmt := range strings.Split(schema, ";") {
		stmt = strings.TrimSpace(stmt)
		if stmt == "" {
			continue
		}
		if _, err := s.sqlDB.Exec(stmt); err != nil {
			return fmt.Errorf("exec %q: %w", firstLine(stmt), err)
		}
	}
	return nil
}

func firstLine(stmt string) string {
	if i := strings.IndexByte(stmt, '\n'); i >= 0 {
		return stmt[:i]
	}
	return stmt
}
