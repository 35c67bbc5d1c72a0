// ABOUTME: SQLite implementation of the Store interface using modernc.org/sqlite
// ABOUTME: Provides summary/session/exchange persistence with automatic schema creation

package store

import (
	"context"
	"database/sql"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"time"

	"github.com/google/uuid"
	_ "modernc.org/sqlite"
)

// SQLiteStore implements the Store interface using SQLite
type SQLiteStore struct {
	db     *sql.DB
	logger *slog.Logger
}

var _ Store = (*SQLiteStore)(nil)

// NewSQLiteStore creates a new SQLite store at the given path.
// The schema is automatically created if it doesn't exist.
// Parent directories are created if needed.
func NewSQLiteStore(path string) (*SQLiteStore, error) {
	logger := slog.Default().With("component", "store")

	// Ensure parent directory exists
	dir := filepath.Dir(path)
	if err := os.MkdirAll(dir, 0755); err != nil {
		return nil, fmt.Errorf("creating database directory: %w", err)
	}

	db, err := sql.Open("sqlite", path)
	if err != nil {
		return nil, fmt.Errorf("opening database: %w", err)
	}

	// Enable WAL mode for better concurrent performance
	if _, err := db.Exec("PRAGMA journal_mode=WAL"); err != nil {
		db.Close()
		return nil, fmt.Errorf("enabling WAL mode: %w", err)
	}

	// Enable foreign keys
	if _, err := db.Exec("PRAGMA foreign_keys=ON"); err != nil {
		db.Close()
		return nil, fmt.Errorf("enabling foreign keys: %w", err)
	}

	s := &SQLiteStore{
		db:     db,
		logger: logger,
	}

	if err := s.createSchema(); err != nil {
		db.Close()
		return nil, fmt.Errorf("creating schema: %w", err)
	}

	logger.Info("SQLite store initialized", "path", path)
	return s, nil
}

// createSchema creates the database tables if they don't exist
func (s *SQLiteStore) createSchema() error {
	schema := `
		CREATE TABLE IF NOT EXISTS repo_summaries (
			repo_key   TEXT PRIMARY KEY,
			summary    TEXT NOT NULL,
			updated_at DATETIME NOT NULL
		);

		CREATE TABLE IF NOT EXISTS repo_sessions (
			repo_key   TEXT PRIMARY KEY,
			session_id TEXT NOT NULL,
			updated_at DATETIME NOT NULL
		);

		CREATE TABLE IF NOT EXISTS exchanges (
			id         TEXT PRIMARY KEY,
			repo_key   TEXT NOT NULL,
			session_id TEXT NOT NULL,
			question   TEXT NOT NULL,
			answer     TEXT NOT NULL,
			reasoning  TEXT NOT NULL DEFAULT '',
			created_at DATETIME NOT NULL
		);

		CREATE INDEX IF NOT EXISTS idx_exchanges_repo_created
			ON exchanges(repo_key, created_at);
	`

	if _, err := s.db.Exec(schema); err != nil {
		return err
	}
	return nil
}

// Close closes the database connection
func (s *SQLiteStore) Close() error {
	return s.db.Close()
}

// LoadSummary returns the stored summary for a repository, or "" when none exists.
func (s *SQLiteStore) LoadSummary(ctx context.Context, repoKey string) (string, error) {
	var summary string
	err := s.db.QueryRowContext(ctx,
		"SELECT summary FROM repo_summaries WHERE repo_key = ?", repoKey,
	).Scan(&summary)
	if err == sql.ErrNoRows {
		return "", nil
	}
	if err != nil {
		return "", fmt.Errorf("loading summary: %w", err)
	}
	return summary, nil
}

// SaveSummary upserts the summary for a repository. Last writer wins.
func (s *SQLiteStore) SaveSummary(ctx context.Context, repoKey, summary string) error {
	_, err := s.db.ExecContext(ctx, `
		INSERT INTO repo_summaries (repo_key, summary, updated_at)
		VALUES (?, ?, ?)
		ON CONFLICT(repo_key) DO UPDATE SET
			summary = excluded.summary,
			updated_at = excluded.updated_at
	`, repoKey, summary, time.Now().UTC())
	if err != nil {
		return fmt.Errorf("saving summary: %w", err)
	}
	return nil
}

// LoadSession returns the most recent session id for a repository, or "".
func (s *SQLiteStore) LoadSession(ctx context.Context, repoKey string) (string, error) {
	var sessionID string
	err := s.db.QueryRowContext(ctx,
		"SELECT session_id FROM repo_sessions WHERE repo_key = ?", repoKey,
	).Scan(&sessionID)
	if err == sql.ErrNoRows {
		return "", nil
	}
	if err != nil {
		return "", fmt.Errorf("loading session: %w", err)
	}
	return sessionID, nil
}

// SaveSession upserts the current session id for a repository.
func (s *SQLiteStore) SaveSession(ctx context.Context, repoKey, sessionID string) error {
	_, err := s.db.ExecContext(ctx, `
		INSERT INTO repo_sessions (repo_key, session_id, updated_at)
		VALUES (?, ?, ?)
		ON CONFLICT(repo_key) DO UPDATE SET
			session_id = excluded.session_id,
			updated_at = excluded.updated_at
	`, repoKey, sessionID, time.Now().UTC())
	if err != nil {
		return fmt.Errorf("saving session: %w", err)
	}
	return nil
}

// SaveExchange records one question/answer pair. A missing ID or timestamp
// is filled in.
func (s *SQLiteStore) SaveExchange(ctx context.Context, ex *Exchange) error {
	if ex.ID == "" {
		ex.ID = uuid.New().String()
	}
	if ex.CreatedAt.IsZero() {
		ex.CreatedAt = time.Now().UTC()
	}

	_, err := s.db.ExecContext(ctx, `
		INSERT INTO exchanges (id, repo_key, session_id, question, answer, reasoning, created_at)
		VALUES (?, ?, ?, ?, ?, ?, ?)
	`, ex.ID, ex.RepoKey, ex.SessionID, ex.Question, ex.Answer, ex.Reasoning, ex.CreatedAt)
	if err != nil {
		return fmt.Errorf("saving exchange: %w", err)
	}
	return nil
}

// ListExchanges returns up to limit exchanges for a repository, newest last.
func (s *SQLiteStore) ListExchanges(ctx context.Context, repoKey string, limit int) ([]*Exchange, error) {
	query := `
		SELECT id, repo_key, session_id, question, answer, reasoning, created_at
		FROM exchanges
		WHERE repo_key = ?
		ORDER BY created_at DESC, id DESC
	`
	args := []any{repoKey}
	if limit > 0 {
		query += " LIMIT ?"
		args = append(args, limit)
	}

	rows, err := s.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("listing exchanges: %w", err)
	}
	defer rows.Close()

	var exchanges []*Exchange
	for rows.Next() {
		ex := &Exchange{}
		if err := rows.Scan(&ex.ID, &ex.RepoKey, &ex.SessionID, &ex.Question, &ex.Answer, &ex.Reasoning, &ex.CreatedAt); err != nil {
			return nil, fmt.Errorf("scanning exchange: %w", err)
		}
		exchanges = append(exchanges, ex)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterating exchanges: %w", err)
	}

	// Query returns newest first for the LIMIT; present oldest first.
	for i, j := 0, len(exchanges)-1; i < j; i, j = i+1, j-1 {
		exchanges[i], exchanges[j] = exchanges[j], exchanges[i]
	}
	return exchanges, nil
}
