// ABOUTME: Typed error taxonomy for the query engine.
// ABOUTME: Each error carries enough context to tell a broken remote from a slow one.

package query

import (
	"fmt"
	"time"
)

// SessionCreationError reports that a new remote session could not be
// created. Fatal for the call; never retried locally.
type SessionCreationError struct {
	RepoPath string
	Err      error
}

func (e *SessionCreationError) Error() string {
	return fmt.Sprintf("query: creating session for %s: %v", e.RepoPath, e.Err)
}

func (e *SessionCreationError) Unwrap() error { return e.Err }

// RemoteAgentError is a failure the remote service reported for the
// session or its current message. Fatal for the query.
type RemoteAgentError struct {
	SessionID string
	Name      string
	Message   string
}

func (e *RemoteAgentError) Error() string {
	msg := e.Message
	if msg == "" {
		msg = e.Name
	}
	if msg == "" {
		msg = "unspecified error"
	}
	return fmt.Sprintf("query: remote agent error in session %s: %s", e.SessionID, msg)
}

// StreamStallError reports that the live event feed went silent for longer
// than the heartbeat window.
type StreamStallError struct {
	SessionID string
	Window    time.Duration
}

func (e *StreamStallError) Error() string {
	return fmt.Sprintf("query: event stream for session %s stalled: no events within %s", e.SessionID, e.Window)
}

// OverallTimeoutError reports that the whole call exceeded its deadline.
type OverallTimeoutError struct {
	SessionID string
	Timeout   time.Duration
	Err       error
}

func (e *OverallTimeoutError) Error() string {
	return fmt.Sprintf("query: no complete answer for session %s within %s", e.SessionID, e.Timeout)
}

func (e *OverallTimeoutError) Unwrap() error { return e.Err }

// NoAnswerFoundError reports that the polling fallback exhausted its
// attempt budget without seeing an assistant answer.
type NoAnswerFoundError struct {
	SessionID string
	Attempts  int
}

func (e *NoAnswerFoundError) Error() string {
	return fmt.Sprintf("query: no assistant answer for session %s after %d fetches", e.SessionID, e.Attempts)
}

// SystemPromptDeliveryError reports that the hidden system instruction for
// a fresh session could not be delivered. It is logged and swallowed: the
// user's question is still attempted.
type SystemPromptDeliveryError struct {
	SessionID string
	Err       error
}

func (e *SystemPromptDeliveryError) Error() string {
	return fmt.Sprintf("query: delivering system prompt to session %s: %v", e.SessionID, e.Err)
}

func (e *SystemPromptDeliveryError) Unwrap() error { return e.Err }
