// ABOUTME: Store interface and data types for kctx local persistence
// ABOUTME: Repository summaries, last session ids, and the exchange ledger

package store

import (
	"context"
	"time"
)

// Exchange is one question/answer pair recorded for history and export.
type Exchange struct {
	ID        string
	RepoKey   string
	SessionID string
	Question  string
	Answer    string
	Reasoning string
	CreatedAt time.Time
}

// Store is the persistence surface consumed by the query engine and the CLI.
//
// Summaries and sessions are keyed by repository: the manifest name when the
// repository comes from a manifest, its absolute path otherwise. Loads
// return "" with a nil error when nothing is stored; saves are
// last-writer-wins upserts, which is acceptable for concurrent queries.
type Store interface {
	LoadSummary(ctx context.Context, repoKey string) (string, error)
	SaveSummary(ctx context.Context, repoKey, summary string) error

	// LoadSession returns the most recent session id for a repository so
	// follow-up questions continue the same conversation.
	LoadSession(ctx context.Context, repoKey string) (string, error)
	SaveSession(ctx context.Context, repoKey, sessionID string) error

	SaveExchange(ctx context.Context, ex *Exchange) error
	// ListExchanges returns up to limit exchanges for a repository, newest
	// last. limit <= 0 means no limit.
	ListExchanges(ctx context.Context, repoKey string, limit int) ([]*Exchange, error)

	Close() error
}
