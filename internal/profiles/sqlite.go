package profiles

import (
	"context"
	"database/sql"
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"

	"github.com/dlps55195/x-bot-worker/internal/logging"
	"github.com/dlps55195/x-bot-worker/internal/types"

	"go.uber.org/zap"
	_ "modernc.org/sqlite"
)

// SQLiteSource reads the profiles table:
// profiles(id, is_active, target_lists JSON, x_cookies JSON).
type SQLiteSource struct {
	db *sql.DB
}

const profilesSchema = `
CREATE TABLE IF NOT EXISTS profiles (
	id TEXT PRIMARY KEY,
	is_active INTEGER NOT NULL DEFAULT 1,
	target_lists TEXT NOT NULL DEFAULT '[]',
	x_cookies TEXT NOT NULL DEFAULT '[]',
	created_at DATETIME DEFAULT CURRENT_TIMESTAMP
);
`

// OpenSQLiteSource opens (or creates) the profile database at path.
func OpenSQLiteSource(path string) (*SQLiteSource, error) {
	if path != ":memory:" {
		if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
			return nil, fmt.Errorf("create database directory: %w", err)
		}
	}
	db, err := sql.Open("sqlite", path)
	if err != nil {
		return nil, fmt.Errorf("open profile database: %w", err)
	}
	db.SetMaxOpenConns(1)
	if _, err := db.Exec("PRAGMA busy_timeout = 5000"); err != nil {
		db.Close()
		return nil, fmt.Errorf("open profile database: %w", err)
	}
	if _, err := db.Exec(profilesSchema); err != nil {
		db.Close()
		return nil, fmt.Errorf("create profiles schema: %w", err)
	}
	return &SQLiteSource{db: db}, nil
}

// Upsert inserts or replaces a profile. Used by tooling and tests.
func (s *SQLiteSource) Upsert(ctx context.Context, p types.Profile) error {
	lists, err := json.Marshal(p.TargetListURLs)
	if err != nil {
		return fmt.Errorf("encode target lists: %w", err)
	}
	active := 0
	if p.Active {
		active = 1
	}
	_, err = s.db.ExecContext(ctx, `
		INSERT INTO profiles (id, is_active, target_lists, x_cookies) VALUES (?, ?, ?, ?)
		ON CONFLICT(id) DO UPDATE SET
			is_active = excluded.is_active,
			target_lists = excluded.target_lists,
			x_cookies = excluded.x_cookies`,
		p.ID, active, string(lists), p.Cookies)
	if err != nil {
		return fmt.Errorf("upsert profile %s: %w", p.ID, err)
	}
	return nil
}

// ActiveProfiles returns active rows in insertion order. A row whose target
// lists cannot be decoded is skipped.
func (s *SQLiteSource) ActiveProfiles(ctx context.Context) ([]types.Profile, error) {
	timer := logging.StartTimer(logging.CategoryProfiles, "ActiveProfiles")
	defer timer.Stop()
	log := logging.Get(logging.CategoryProfiles)

	rows, err := s.db.QueryContext(ctx,
		`SELECT id, target_lists, x_cookies FROM profiles WHERE is_active = 1 ORDER BY rowid`)
	if err != nil {
		return nil, fmt.Errorf("query profiles: %w", err)
	}
	defer rows.Close()

	var out []types.Profile
	for rows.Next() {
		var id, lists, cookies string
		if err := rows.Scan(&id, &lists, &cookies); err != nil {
			return nil, fmt.Errorf("scan profile row: %w", err)
		}
		urls, err := decodeListsText(lists)
		if err != nil {
			log.Warn("skipping profile with unreadable target lists", zap.String("profile", id), zap.Error(err))
			continue
		}
		out = append(out, types.Profile{ID: id, Active: true, TargetListURLs: urls, Cookies: cookies})
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate profiles: %w", err)
	}
	return out, nil
}

// Close closes the database.
func (s *SQLiteSource) Close() error {
	return s.db.Close()
}
