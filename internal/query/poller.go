// ABOUTME: Polling fallback: fetch recent session messages on an interval
// ABOUTME: until an assistant answer with text appears, within a fixed budget.

package query

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/christopher-kapic/kinetic-context/internal/opencode"
)

// pollPageSize bounds each fetch to the most recent few messages; the
// answer being waited on is always at the tail of the conversation.
const pollPageSize = 5

// pollForAnswer fetches the session's recent messages until one with role
// assistant and non-empty text appears. Each fetch is individually bounded
// by FetchTimeout; a fetch that times out propagates immediately, because a
// slow remote is not the same condition as a not-yet-ready answer. Other
// fetch errors are retried within the attempt budget.
func (e *Engine) pollForAnswer(ctx context.Context, sessionID, repoPath string) (*Answer, error) {
	attempts := e.opts.MaxPollAttempts

	for attempt := 1; attempt <= attempts; attempt++ {
		fetchCtx, cancel := context.WithTimeout(ctx, e.opts.FetchTimeout)
		msgs, err := e.client.ListMessages(fetchCtx, sessionID, repoPath, pollPageSize)
		cancel()

		switch {
		case err == nil:
			if text := lastAssistantText(msgs); text != "" {
				e.logger.Debug("poll found answer", "session_id", sessionID, "attempt", attempt)
				return &Answer{Text: text, SessionID: sessionID}, nil
			}
		case ctx.Err() != nil:
			return nil, ctx.Err()
		case errors.Is(err, context.DeadlineExceeded):
			return nil, fmt.Errorf("query: fetching messages for session %s: %w", sessionID, err)
		default:
			e.logger.Warn("message fetch failed, retrying",
				"session_id", sessionID, "attempt", attempt, "error", err)
		}

		if attempt == attempts {
			break
		}
		select {
		case <-time.After(e.opts.PollInterval):
		case <-ctx.Done():
			return nil, ctx.Err()
		}
	}

	return nil, &NoAnswerFoundError{SessionID: sessionID, Attempts: attempts}
}

// lastAssistantText returns the newest assistant text in the page, or "".
func lastAssistantText(msgs []opencode.Message) string {
	for i := len(msgs) - 1; i >= 0; i-- {
		if msgs[i].Info.Role != opencode.RoleAssistant {
			continue
		}
		if text := msgs[i].TextContent(); text != "" {
			return text
		}
	}
	return ""
}
