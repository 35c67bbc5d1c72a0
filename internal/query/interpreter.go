// ABOUTME: Folds the session's heterogeneous event feed into answer deltas
// ABOUTME: and a deduplicated reasoning trace, and decides when the turn is done.

package query

import (
	"fmt"
	"strings"

	"github.com/christopher-kapic/kinetic-context/internal/opencode"
)

// reasoningMetadataKeys are provider-specific keys under which structured
// reasoning text has been observed on non-text parts.
var reasoningMetadataKeys = []string{"reasoning", "thinking", "thought"}

// interpreter accumulates one answer from one session's event feed.
//
// The server resends the full text of a part on every update, so the
// interpreter diffs incoming text against what it already holds and emits
// only the new suffix. Reasoning arrives either as growing full strings or
// as wholly new fragments; distinct fragments are kept in first-seen order
// with prefix growth collapsed into the longest observed form.
type interpreter struct {
	sessionID string

	answerText         string
	reasoning          []string
	assistantMessageID string
	awaitingAssistant  bool
}

func newInterpreter(sessionID string) *interpreter {
	return &interpreter{
		sessionID:         sessionID,
		awaitingAssistant: true,
	}
}

// observe folds one event into the interpreter's state. It returns a Result
// to emit (or nil), whether the answer is complete, and a terminal error.
func (it *interpreter) observe(evt opencode.Event) (*Result, bool, error) {
	switch ev := evt.(type) {
	case opencode.MessageUpdated:
		return it.observeMessage(ev.Info)
	case opencode.PartUpdated:
		return it.observePart(ev.Part)
	case opencode.SessionIdle:
		if ev.SessionID != it.sessionID {
			return nil, false, nil
		}
		// The authoritative completion signal. A turn may end with a tool
		// call and no trailing text, so part timestamps never decide this.
		return &Result{
			SessionID: it.sessionID,
			Final:     true,
			Reasoning: it.snapshot(),
		}, true, nil
	case opencode.SessionError:
		if ev.SessionID != it.sessionID {
			return nil, false, nil
		}
		return nil, false, &RemoteAgentError{
			SessionID: it.sessionID,
			Name:      ev.Name,
			Message:   ev.Message,
		}
	}
	return nil, false, nil
}

// flush synthesizes the final Result when the feed ended without an idle
// event but text was already collected. Returns nil when there is nothing
// to recover.
func (it *interpreter) flush() *Result {
	if it.answerText == "" {
		return nil
	}
	return &Result{
		SessionID: it.sessionID,
		Final:     true,
		Reasoning: it.snapshot(),
	}
}

func (it *interpreter) observeMessage(info opencode.MessageInfo) (*Result, bool, error) {
	if info.SessionID != it.sessionID {
		return nil, false, nil
	}
	if info.Role != opencode.RoleAssistant {
		return nil, false, nil
	}
	if info.Error != nil && (it.awaitingAssistant || info.ID == it.assistantMessageID) {
		return nil, false, &RemoteAgentError{
			SessionID: it.sessionID,
			Name:      info.Error.Name,
			Message:   info.Error.String(),
		}
	}
	if it.awaitingAssistant {
		it.latch(info.ID)
	}
	return nil, false, nil
}

func (it *interpreter) observePart(p opencode.Part) (*Result, bool, error) {
	if p.SessionID != it.sessionID {
		return nil, false, nil
	}

	if it.awaitingAssistant {
		switch {
		case partRole(p) == opencode.RoleAssistant:
			it.latch(p.MessageID)
		case p.Type == opencode.PartTypeReasoning, p.Type == opencode.PartTypeTool, p.Type == opencode.PartTypeFile:
			// Some deployments emit no lifecycle event before the first
			// reasoning or tool part; the part's kind is proof enough that
			// the assistant's turn has started.
			it.latch(p.MessageID)
		default:
			return nil, false, nil
		}
	}
	if p.MessageID != it.assistantMessageID {
		// Cross-talk from other in-flight turns (prior tool results, the
		// user's own message parts) is ignored wholesale.
		return nil, false, nil
	}

	switch p.Type {
	case opencode.PartTypeText:
		return it.observeText(p.Text), false, nil
	case opencode.PartTypeReasoning:
		changed := it.mergeReasoning(strings.TrimSpace(p.Text))
		return it.reasoningResult(changed), false, nil
	case opencode.PartTypeTool:
		changed := it.mergeReasoning(toolLine(p))
		if it.foldMetadata(p) {
			changed = true
		}
		return it.reasoningResult(changed), false, nil
	case opencode.PartTypeFile:
		changed := it.mergeReasoning(fileLine(p))
		if it.foldMetadata(p) {
			changed = true
		}
		return it.reasoningResult(changed), false, nil
	default:
		return it.reasoningResult(it.foldMetadata(p)), false, nil
	}
}

// observeText diffs a full-text update against the accumulated answer and
// returns the new suffix as a delta, or nil when nothing new arrived.
func (it *interpreter) observeText(incoming string) *Result {
	switch {
	case incoming == "" || incoming == it.answerText:
		// Empty resends keep the accumulated text rather than adopting "":
		// adopting would make the next full resend re-emit everything as a
		// fresh delta, double-counting the whole answer.
		return nil
	case strings.HasPrefix(incoming, it.answerText):
		delta := incoming[len(it.answerText):]
		it.answerText = incoming
		return &Result{SessionID: it.sessionID, TextDelta: delta}
	default:
		// Shorter or diverged update: out-of-order delivery or a rewritten
		// turn. Adopt it without emitting, so deltas never double-count.
		it.answerText = incoming
		return nil
	}
}

// mergeReasoning applies the trace merge rule: growth of the last entry
// replaces it, an exact duplicate of any entry is dropped, anything else is
// a new entry. Reports whether the trace changed.
func (it *interpreter) mergeReasoning(incoming string) bool {
	if incoming == "" {
		return false
	}
	if n := len(it.reasoning); n > 0 {
		last := it.reasoning[n-1]
		if incoming == last {
			return false
		}
		if strings.HasPrefix(incoming, last) {
			it.reasoning[n-1] = incoming
			return true
		}
	}
	for _, entry := range it.reasoning {
		if entry == incoming {
			return false
		}
	}
	it.reasoning = append(it.reasoning, incoming)
	return true
}

// foldMetadata folds provider-specific reasoning text embedded on non-text
// parts into the trace. Reports whether anything novel appeared.
func (it *interpreter) foldMetadata(p opencode.Part) bool {
	changed := false
	for _, meta := range []map[string]any{p.Metadata, stateMetadata(p)} {
		for _, key := range reasoningMetadataKeys {
			if text, ok := meta[key].(string); ok {
				if it.mergeReasoning(strings.TrimSpace(text)) {
					changed = true
				}
			}
		}
	}
	return changed
}

func (it *interpreter) reasoningResult(changed bool) *Result {
	if !changed {
		return nil
	}
	return &Result{SessionID: it.sessionID, Reasoning: it.snapshot()}
}

func (it *interpreter) snapshot() string {
	return strings.Join(it.reasoning, "\n\n")
}

func (it *interpreter) latch(messageID string) {
	it.assistantMessageID = messageID
	it.awaitingAssistant = false
}

func partRole(p opencode.Part) string {
	role, _ := p.Metadata["role"].(string)
	return role
}

func stateMetadata(p opencode.Part) map[string]any {
	if p.State == nil {
		return nil
	}
	return p.State.Metadata
}

// toolLine renders a tool part as one human-readable trace line so callers
// can show agent activity even when no reasoning text exists.
func toolLine(p opencode.Part) string {
	name := p.Tool
	if p.State != nil && p.State.Title != "" {
		name = p.State.Title
	}
	if name == "" {
		name = "tool"
	}

	status := opencode.ToolStatusRunning
	if p.State != nil && p.State.Status != "" {
		status = p.State.Status
	}
	switch status {
	case opencode.ToolStatusCompleted:
		return fmt.Sprintf("[tool] %s: completed", name)
	case opencode.ToolStatusError:
		return fmt.Sprintf("[tool] %s: failed", name)
	default:
		return fmt.Sprintf("[tool] %s: running", name)
	}
}

func fileLine(p opencode.Part) string {
	if p.Filename == "" {
		return ""
	}
	return fmt.Sprintf("[file] %s", p.Filename)
}
