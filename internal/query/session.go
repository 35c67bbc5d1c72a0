// ABOUTME: Session gateway: reuse or create the remote session and prime new
// ABOUTME: sessions with the hidden system instruction the user never sees.

package query

import (
	"context"
	"fmt"
	"strings"

	"github.com/christopher-kapic/kinetic-context/internal/opencode"
)

// sessionTitleMax is how much of the question becomes the session title.
const sessionTitleMax = 50

const agentPersona = `You are a code analysis assistant answering questions about a single repository checkout. Ground every answer in the actual source: read files, cite paths and symbol names, and say so plainly when something is not present in the repository. Do not modify, create, or delete any files.`

// ensureSession returns the session id for this request and whether a new
// session was created. A caller-supplied id is trusted as-is, with no
// validation round-trip.
func (e *Engine) ensureSession(ctx context.Context, req Request) (string, bool, error) {
	if req.SessionID != "" {
		return req.SessionID, false, nil
	}

	sess, err := e.client.CreateSession(ctx, sessionTitle(req.Question), req.RepoPath)
	if err != nil {
		return "", false, &SessionCreationError{RepoPath: req.RepoPath, Err: err}
	}
	e.logger.Info("session created", "session_id", sess.ID, "repo", req.RepoPath)

	// One system message primes the fresh session. It must not produce a
	// visible answer, and its failure must not fail the query: the user's
	// question is still worth attempting against an unprimed session.
	_, err = e.client.SendMessage(ctx, opencode.SendMessageRequest{
		SessionID: sess.ID,
		Directory: req.RepoPath,
		Text:      systemPrompt(req.RepoPath, req.Summary),
		NoReply:   true,
	})
	if err != nil {
		derr := &SystemPromptDeliveryError{SessionID: sess.ID, Err: err}
		e.logger.Warn("system prompt not delivered, continuing", "session_id", sess.ID, "error", derr)
	}

	return sess.ID, true, nil
}

// sessionTitle derives a short human-readable title from the question.
func sessionTitle(question string) string {
	title := strings.Join(strings.Fields(question), " ")
	runes := []rune(title)
	if len(runes) <= sessionTitleMax {
		return title
	}
	return string(runes[:sessionTitleMax]) + "..."
}

func systemPrompt(repoPath, summary string) string {
	var b strings.Builder
	if summary != "" {
		b.WriteString("Prior summary of this repository, for context:\n\n")
		b.WriteString(summary)
		b.WriteString("\n\n")
	}
	b.WriteString(agentPersona)
	fmt.Fprintf(&b, "\n\nThe repository under discussion is located at %s. Resolve every file read and search relative to that directory.", repoPath)
	return b.String()
}
