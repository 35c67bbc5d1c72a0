// Package query is the orchestration engine that turns a question about a
// repository into an answer from a remote coding agent.
//
// # Overview
//
// One call flows through five stages:
//
//  1. Session gateway: reuse the caller's session id or create a fresh
//     session and prime it with a hidden system instruction (persona,
//     repository location, optional stored summary).
//  2. Question dispatch: the question is posted to the session.
//  3. Event stream interpreter: when the server exposes a live event feed,
//     heterogeneous events are folded into answer-text deltas and a growing
//     reasoning trace.
//  4. Liveness supervision: a heartbeat watchdog and an overall deadline
//     wrap the feed so silent stalls become explicit errors.
//  5. Fallback poller: when no feed exists, or the send reply already
//     carried the answer inline, recent messages are fetched until an
//     assistant answer appears.
//
// # Entry points
//
//	engine := query.New(client, summaries, query.DefaultOptions(), logger)
//	answer, err := engine.Query(ctx, query.Request{RepoPath: dir, Question: q})
//	results, err := engine.QueryStream(ctx, query.Request{RepoPath: dir, Question: q})
//
// QueryStream yields a channel of Result values: zero or more text deltas
// and reasoning snapshots followed by exactly one Final element. A Result
// with Err set is terminal and replaces the Final element.
//
// # Protocol quirk
//
// The remote server resends the full accumulated text of a part on every
// update rather than a delta. The interpreter diffs each update against
// what it has already emitted, so callers see each character exactly once.
// Session idle is the only trusted completion signal; part timestamps are
// not, because a turn may continue with tool calls after a text part ends.
//
// # Side effect
//
// After the first answer in a brand-new session for a repository with no
// stored summary, the engine asks the agent for a short repository summary
// in a detached goroutine and persists it for reuse as future context.
// That task never blocks or fails the caller's result path.
package query
