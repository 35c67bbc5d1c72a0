// ABOUTME: Request, Result, Answer value types and the engine's tuning knobs.
// ABOUTME: Collaborator contracts consumed by the engine are defined here too.

package query

import (
	"context"
	"time"

	"github.com/christopher-kapic/kinetic-context/internal/opencode"
)

// Model selects a provider/model pair on the remote service. Both fields
// empty means the server default.
type Model struct {
	ProviderID string
	ModelID    string
}

// Request is one question about one repository. Immutable once submitted.
type Request struct {
	// RepoPath is the absolute local checkout the agent should ground its
	// file operations in. Required.
	RepoPath string

	// RepoKey identifies the repository for summary persistence. Defaults
	// to RepoPath.
	RepoKey string

	// Question is the natural-language question. Required.
	Question string

	Model Model

	// SessionID continues an existing conversation. Empty means a new
	// session is created for this question.
	SessionID string

	// Summary is a prior repository summary used to seed the new session's
	// context. When empty the engine consults its SummaryStore.
	Summary string

	// Timeout overrides the engine's overall timeout for this call.
	Timeout time.Duration
}

// Result is one increment of a streaming answer.
//
// A sequence of Results forms one answer: text arrives as append-only
// deltas, Reasoning is a full snapshot replacing any earlier one, and
// exactly one element has Final set, always the last successful one. A
// Result with Err set is terminal and ends the sequence instead.
type Result struct {
	TextDelta string
	Reasoning string
	Final     bool
	SessionID string
	Err       error
}

// Answer is the completed response to one question.
type Answer struct {
	Text      string
	SessionID string
}

// Options are the engine's timing knobs. Zero fields take defaults.
type Options struct {
	// OverallTimeout bounds one whole call, subscribe through completion.
	OverallTimeout time.Duration

	// FetchTimeout bounds a single message-list fetch in the poller.
	FetchTimeout time.Duration

	// PollInterval separates consecutive poll fetches.
	PollInterval time.Duration

	// MaxPollAttempts caps poll fetches before giving up.
	MaxPollAttempts int

	// HeartbeatWindow is the longest silence tolerated on a live feed.
	HeartbeatWindow time.Duration

	// SummaryTimeoutMultiplier scales OverallTimeout for the detached
	// summary-generation task, which runs long and unattended.
	SummaryTimeoutMultiplier int
}

// DefaultOptions returns the deployment defaults.
func DefaultOptions() Options {
	return Options{
		OverallTimeout:           5 * time.Minute,
		FetchTimeout:             30 * time.Second,
		PollInterval:             2 * time.Second,
		MaxPollAttempts:          30,
		HeartbeatWindow:          90 * time.Second,
		SummaryTimeoutMultiplier: 3,
	}
}

func (o Options) withDefaults() Options {
	def := DefaultOptions()
	if o.OverallTimeout <= 0 {
		o.OverallTimeout = def.OverallTimeout
	}
	if o.FetchTimeout <= 0 {
		o.FetchTimeout = def.FetchTimeout
	}
	if o.PollInterval <= 0 {
		o.PollInterval = def.PollInterval
	}
	if o.MaxPollAttempts <= 0 {
		o.MaxPollAttempts = def.MaxPollAttempts
	}
	if o.HeartbeatWindow <= 0 {
		o.HeartbeatWindow = def.HeartbeatWindow
	}
	if o.SummaryTimeoutMultiplier <= 0 {
		o.SummaryTimeoutMultiplier = def.SummaryTimeoutMultiplier
	}
	return o
}

// AgentClient defines what the engine needs from the remote agent service.
// Implemented by *opencode.Client.
type AgentClient interface {
	CreateSession(ctx context.Context, title, directory string) (*opencode.Session, error)
	SendMessage(ctx context.Context, req opencode.SendMessageRequest) (*opencode.Message, error)
	SubscribeEvents(ctx context.Context, sessionID, directory string) (<-chan opencode.Event, func(), error)
	ListMessages(ctx context.Context, sessionID, directory string, limit int) ([]opencode.Message, error)
}

var _ AgentClient = (*opencode.Client)(nil)

// SummaryStore persists repository summaries between conversations.
// LoadSummary returns "" with a nil error when none is stored. Concurrent
// saves are last-writer-wins.
type SummaryStore interface {
	LoadSummary(ctx context.Context, repoKey string) (string, error)
	SaveSummary(ctx context.Context, repoKey, summary string) error
}
