// Package store provides local persistence for kctx.
//
// # Overview
//
// Three small tables back the CLI and the query engine:
//
//   - repo_summaries: one agent-written summary per repository, reused to
//     seed context for new conversations
//   - repo_sessions: the most recent remote session id per repository, so
//     follow-up questions continue the same conversation
//   - exchanges: a question/answer ledger per repository for history and
//     transcript export
//
// Repositories are keyed by manifest name when one exists, otherwise by
// absolute path.
//
// # Concurrency
//
// Summary and session writes are upserts with last-writer-wins semantics;
// concurrent queries against the same repository may race on them without
// corrupting unrelated rows.
//
// # Implementation
//
// SQLiteStore uses modernc.org/sqlite (pure Go, no cgo) with WAL mode. The
// schema is created on open.
package store
