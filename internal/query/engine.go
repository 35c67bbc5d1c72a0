// ABOUTME: Orchestrator: session lifecycle, question dispatch, stream-first
// ABOUTME: answer delivery with polling fallback, and the one-shot entry point.

package query

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"github.com/christopher-kapic/kinetic-context/internal/opencode"
)

// resultBufferSize smooths bursts between the interpreter and a caller
// that renders slower than events arrive.
const resultBufferSize = 16

// Engine is the public entry point of the query orchestration core. It is
// safe for concurrent use; queries for different sessions share nothing but
// the summary store.
type Engine struct {
	client    AgentClient
	summaries SummaryStore
	opts      Options
	logger    *slog.Logger
}

// New creates an engine. summaries may be nil, which disables summary
// seeding and the detached summary side effect.
func New(client AgentClient, summaries SummaryStore, opts Options, logger *slog.Logger) *Engine {
	if logger == nil {
		logger = slog.Default()
	}
	return &Engine{
		client:    client,
		summaries: summaries,
		opts:      opts.withDefaults(),
		logger:    logger.With("component", "query"),
	}
}

// Query asks one question and blocks until the complete answer is
// available. When the send reply already carries the answer inline it is
// returned without any polling.
func (e *Engine) Query(ctx context.Context, req Request) (*Answer, error) {
	if err := e.prepare(ctx, &req); err != nil {
		return nil, err
	}

	overall := e.overallTimeout(req)
	ctx, cancel := context.WithTimeout(ctx, overall)
	defer cancel()

	sessionID, created, err := e.ensureSession(ctx, req)
	if err != nil {
		return nil, err
	}

	msg, err := e.client.SendMessage(ctx, sendRequest(sessionID, req.RepoPath, req.Question, req.Model))
	if err != nil {
		return nil, e.timeoutOr(ctx, sessionID, overall, fmt.Errorf("sending question: %w", err))
	}

	answer := &Answer{Text: msg.TextContent(), SessionID: sessionID}
	if answer.Text == "" {
		answer, err = e.pollForAnswer(ctx, sessionID, req.RepoPath)
		if err != nil {
			return nil, e.timeoutOr(ctx, sessionID, overall, err)
		}
	}

	e.maybeGenerateSummary(created, req, sessionID)
	return answer, nil
}

// QueryStream asks one question and returns a channel of incremental
// results. The channel closes after the terminal element: either the single
// Final result or a Result carrying a fatal error. When the server exposes
// no event feed the stream degrades to the one-shot path and yields a
// single Final result.
func (e *Engine) QueryStream(ctx context.Context, req Request) (<-chan Result, error) {
	if err := e.prepare(ctx, &req); err != nil {
		return nil, err
	}

	overall := e.overallTimeout(req)

	sessionID, created, err := e.ensureSession(ctx, req)
	if err != nil {
		return nil, err
	}

	out := make(chan Result, resultBufferSize)

	// Subscribe before sending, so events emitted while the send is still
	// in flight are not missed.
	streamCtx, cancel := context.WithCancel(ctx)
	events, release, err := e.client.SubscribeEvents(streamCtx, sessionID, req.RepoPath)
	if err != nil {
		cancel()
		if errors.Is(err, opencode.ErrEventsUnsupported) {
			e.logger.Info("no event feed, answering via polling", "session_id", sessionID)
			go e.streamViaPolling(ctx, req, sessionID, created, overall, out)
			return out, nil
		}
		return nil, fmt.Errorf("subscribing to session events: %w", err)
	}

	go e.runStream(streamCtx, cancel, release, events, req, sessionID, created, overall, out)
	return out, nil
}

// prepare validates the request, fills derived defaults, and seeds the
// summary from the store when the caller supplied none.
func (e *Engine) prepare(ctx context.Context, req *Request) error {
	if req.RepoPath == "" {
		return errors.New("query: repository path is required")
	}
	if strings.TrimSpace(req.Question) == "" {
		return errors.New("query: question is required")
	}
	if req.RepoKey == "" {
		req.RepoKey = req.RepoPath
	}
	if req.Summary == "" && e.summaries != nil {
		summary, err := e.summaries.LoadSummary(ctx, req.RepoKey)
		if err != nil {
			e.logger.Warn("loading stored summary failed", "repo", req.RepoKey, "error", err)
		} else {
			req.Summary = summary
		}
	}
	return nil
}

func (e *Engine) overallTimeout(req Request) time.Duration {
	if req.Timeout > 0 {
		return req.Timeout
	}
	return e.opts.OverallTimeout
}

// timeoutOr maps a failure that coincides with the call deadline to an
// OverallTimeoutError, so callers can tell "pathologically slow" from
// "remote is broken".
func (e *Engine) timeoutOr(ctx context.Context, sessionID string, overall time.Duration, err error) error {
	if ctx.Err() == context.DeadlineExceeded {
		return &OverallTimeoutError{SessionID: sessionID, Timeout: overall, Err: err}
	}
	return err
}

// runStream relays the supervised, interpreted event feed into out. The
// question itself is sent fire-and-forget once the subscription is live.
func (e *Engine) runStream(ctx context.Context, cancel, release func(), events <-chan opencode.Event, req Request, sessionID string, created bool, overall time.Duration, out chan<- Result) {
	defer close(out)
	defer release()
	defer cancel()

	sendErr := make(chan error, 1)
	go func() {
		sendCtx, sendCancel := context.WithTimeout(ctx, overall)
		defer sendCancel()
		// Inline parts in the reply are ignored here: the event feed
		// carries the same content and the interpreter deduplicates.
		_, err := e.client.SendMessage(sendCtx, sendRequest(sessionID, req.RepoPath, req.Question, req.Model))
		if err != nil {
			e.logger.Warn("sending question failed", "session_id", sessionID, "error", err)
			sendErr <- err
		}
	}()

	interp := newInterpreter(sessionID)
	finished := false
	sawEvent := false

	for g := range guardEvents(ctx, events, e.opts.HeartbeatWindow, overall, sessionID) {
		if g.err != nil {
			// The feed is server-wide and stays open when one POST fails,
			// so a guard firing before any event almost always means the
			// send itself failed. Surface that instead of a stall.
			if !sawEvent {
				select {
				case err := <-sendErr:
					e.emit(ctx, out, Result{SessionID: sessionID, Err: fmt.Errorf("sending question: %w", err)})
					return
				default:
				}
			}
			e.emit(ctx, out, Result{SessionID: sessionID, Err: g.err})
			return
		}
		sawEvent = true
		res, done, err := interp.observe(g.event)
		if err != nil {
			e.emit(ctx, out, Result{SessionID: sessionID, Err: err})
			return
		}
		if res != nil && !e.emit(ctx, out, *res) {
			return
		}
		if done {
			finished = true
			break
		}
	}

	if !finished {
		// The feed ended without an idle event: recover what we can.
		if final := interp.flush(); final != nil {
			if !e.emit(ctx, out, *final) {
				return
			}
		} else {
			select {
			case err := <-sendErr:
				e.emit(ctx, out, Result{SessionID: sessionID, Err: fmt.Errorf("sending question: %w", err)})
				return
			default:
			}
			pollCtx, pollCancel := context.WithTimeout(ctx, overall)
			answer, err := e.pollForAnswer(pollCtx, sessionID, req.RepoPath)
			pollCancel()
			if err != nil {
				e.emit(ctx, out, Result{SessionID: sessionID, Err: err})
				return
			}
			if !e.emit(ctx, out, Result{SessionID: sessionID, TextDelta: answer.Text, Final: true}) {
				return
			}
		}
	}

	e.maybeGenerateSummary(created, req, sessionID)
}

// streamViaPolling is the degraded stream: one-shot semantics delivered as
// a single Final result on the channel.
func (e *Engine) streamViaPolling(ctx context.Context, req Request, sessionID string, created bool, overall time.Duration, out chan<- Result) {
	defer close(out)

	ctx, cancel := context.WithTimeout(ctx, overall)
	defer cancel()

	msg, err := e.client.SendMessage(ctx, sendRequest(sessionID, req.RepoPath, req.Question, req.Model))
	if err != nil {
		err = e.timeoutOr(ctx, sessionID, overall, fmt.Errorf("sending question: %w", err))
		e.emit(ctx, out, Result{SessionID: sessionID, Err: err})
		return
	}

	text := msg.TextContent()
	if text == "" {
		answer, err := e.pollForAnswer(ctx, sessionID, req.RepoPath)
		if err != nil {
			e.emit(ctx, out, Result{SessionID: sessionID, Err: e.timeoutOr(ctx, sessionID, overall, err)})
			return
		}
		text = answer.Text
	}

	if e.emit(ctx, out, Result{SessionID: sessionID, TextDelta: text, Final: true}) {
		e.maybeGenerateSummary(created, req, sessionID)
	}
}

func sendRequest(sessionID, repoPath, text string, model Model) opencode.SendMessageRequest {
	return opencode.SendMessageRequest{
		SessionID:  sessionID,
		Directory:  repoPath,
		Text:       text,
		ProviderID: model.ProviderID,
		ModelID:    model.ModelID,
	}
}

// emit delivers one result, giving up when the caller is gone. Reports
// whether the result was delivered.
func (e *Engine) emit(ctx context.Context, out chan<- Result, res Result) bool {
	select {
	case out <- res:
		return true
	case <-ctx.Done():
		return false
	}
}
