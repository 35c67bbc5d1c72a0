// ABOUTME: Repository summary generation: a detached best-effort side effect
// ABOUTME: after the first answer in a new session, plus an explicit variant.

package query

import (
	"context"
	"time"
)

const summaryPrompt = `Write a summary of this repository for a developer seeing it for the first time: what it is, what the major components are, and where the interesting entry points live. One to three short paragraphs, plain prose, no headings.`

// maybeGenerateSummary spawns the detached summary task after the first
// question in a brand-new session for a repository with no prior summary.
// The task reuses the session (its context is already primed), runs under
// its own longer deadline, and never reports failure to the caller.
func (e *Engine) maybeGenerateSummary(created bool, req Request, sessionID string) {
	if !created || req.Summary != "" || e.summaries == nil {
		return
	}
	timeout := e.opts.OverallTimeout * time.Duration(e.opts.SummaryTimeoutMultiplier)
	go e.generateSummary(sessionID, req.RepoPath, req.RepoKey, req.Model, timeout)
}

func (e *Engine) generateSummary(sessionID, repoPath, repoKey string, model Model, timeout time.Duration) {
	ctx, cancel := context.WithTimeout(context.Background(), timeout)
	defer cancel()

	text, err := e.askForSummary(ctx, sessionID, repoPath, model)
	if err != nil {
		e.logger.Warn("summary generation failed", "session_id", sessionID, "repo", repoKey, "error", err)
		return
	}
	if err := e.summaries.SaveSummary(ctx, repoKey, text); err != nil {
		e.logger.Warn("storing summary failed", "repo", repoKey, "error", err)
		return
	}
	e.logger.Info("repository summary stored", "repo", repoKey, "session_id", sessionID)
}

// Summarize asks the agent for a repository summary synchronously, stores
// it, and returns it. Used when a caller wants to refresh the stored
// summary on demand rather than waiting for the detached side effect.
func (e *Engine) Summarize(ctx context.Context, req Request) (string, error) {
	req.Question = summaryPrompt
	if err := e.prepare(ctx, &req); err != nil {
		return "", err
	}

	overall := e.overallTimeout(req)
	ctx, cancel := context.WithTimeout(ctx, overall)
	defer cancel()

	sessionID, _, err := e.ensureSession(ctx, req)
	if err != nil {
		return "", err
	}

	text, err := e.askForSummary(ctx, sessionID, req.RepoPath, req.Model)
	if err != nil {
		return "", e.timeoutOr(ctx, sessionID, overall, err)
	}
	if e.summaries != nil {
		if err := e.summaries.SaveSummary(ctx, req.RepoKey, text); err != nil {
			return "", err
		}
	}
	return text, nil
}

// askForSummary sends the summary prompt to an existing session and waits
// for the answer, inline or via polling.
func (e *Engine) askForSummary(ctx context.Context, sessionID, repoPath string, model Model) (string, error) {
	msg, err := e.client.SendMessage(ctx, sendRequest(sessionID, repoPath, summaryPrompt, model))
	if err != nil {
		return "", err
	}
	if text := msg.TextContent(); text != "" {
		return text, nil
	}
	answer, err := e.pollForAnswer(ctx, sessionID, repoPath)
	if err != nil {
		return "", err
	}
	return answer.Text, nil
}
