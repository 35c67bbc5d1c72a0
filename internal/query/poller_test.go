// ABOUTME: Tests for the polling fallback: answer discovery, retry budget,
// ABOUTME: exhaustion, and the slow-fetch versus not-yet-ready distinction.

package query

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/christopher-kapic/kinetic-context/internal/opencode"
)

func fastOptions() Options {
	return Options{
		OverallTimeout:  5 * time.Second,
		FetchTimeout:    time.Second,
		PollInterval:    time.Millisecond,
		MaxPollAttempts: 4,
		HeartbeatWindow: time.Second,
	}
}

func userMessage(sessionID, text string) opencode.Message {
	return opencode.Message{
		Info: opencode.MessageInfo{ID: "msg_user", SessionID: sessionID, Role: opencode.RoleUser},
		Parts: []opencode.Part{{
			MessageID: "msg_user", SessionID: sessionID,
			Type: opencode.PartTypeText, Text: text,
		}},
	}
}

func TestPollForAnswer_FindsNewestAssistantText(t *testing.T) {
	client := &fakeClient{pages: []listPage{
		{msgs: []opencode.Message{userMessage("ses_1", "question?")}},
		{msgs: []opencode.Message{
			userMessage("ses_1", "question?"),
			*assistantMessage("ses_1", "the answer"),
		}},
	}}
	engine := New(client, nil, fastOptions(), testLogger())

	answer, err := engine.pollForAnswer(t.Context(), "ses_1", "/tmp/repo")
	require.NoError(t, err)
	assert.Equal(t, "the answer", answer.Text)
	assert.Equal(t, "ses_1", answer.SessionID)
	assert.Equal(t, 2, client.fetchCount())
}

func TestPollForAnswer_AssistantWithoutTextKeepsWaiting(t *testing.T) {
	// An assistant message that only holds tool parts is not an answer.
	toolOnly := opencode.Message{
		Info: opencode.MessageInfo{ID: "msg_1", SessionID: "ses_1", Role: opencode.RoleAssistant},
		Parts: []opencode.Part{{
			MessageID: "msg_1", SessionID: "ses_1",
			Type: opencode.PartTypeTool, Tool: "read",
		}},
	}
	client := &fakeClient{pages: []listPage{
		{msgs: []opencode.Message{toolOnly}},
		{msgs: []opencode.Message{toolOnly, *assistantMessage("ses_1", "done now")}},
	}}
	engine := New(client, nil, fastOptions(), testLogger())

	answer, err := engine.pollForAnswer(t.Context(), "ses_1", "/repo")
	require.NoError(t, err)
	assert.Equal(t, "done now", answer.Text)
}

func TestPollForAnswer_ExhaustionCountsEveryFetch(t *testing.T) {
	client := &fakeClient{pages: []listPage{
		{msgs: []opencode.Message{userMessage("ses_1", "question?")}},
	}}
	engine := New(client, nil, fastOptions(), testLogger())

	_, err := engine.pollForAnswer(t.Context(), "ses_1", "/repo")

	var notFound *NoAnswerFoundError
	require.ErrorAs(t, err, &notFound)
	assert.Equal(t, 4, notFound.Attempts)
	assert.Equal(t, 4, client.fetchCount())
}

func TestPollForAnswer_TransientFetchErrorsRetried(t *testing.T) {
	client := &fakeClient{pages: []listPage{
		{err: errors.New("connection reset")},
		{msgs: []opencode.Message{*assistantMessage("ses_1", "after retry")}},
	}}
	engine := New(client, nil, fastOptions(), testLogger())

	answer, err := engine.pollForAnswer(t.Context(), "ses_1", "/repo")
	require.NoError(t, err)
	assert.Equal(t, "after retry", answer.Text)
	assert.Equal(t, 2, client.fetchCount())
}

func TestPollForAnswer_FetchTimeoutPropagatesImmediately(t *testing.T) {
	client := &fakeClient{listFn: func(ctx context.Context) ([]opencode.Message, error) {
		<-ctx.Done()
		return nil, ctx.Err()
	}}
	opts := fastOptions()
	opts.FetchTimeout = 20 * time.Millisecond
	engine := New(client, nil, opts, testLogger())

	_, err := engine.pollForAnswer(t.Context(), "ses_1", "/repo")
	require.ErrorIs(t, err, context.DeadlineExceeded)

	// A slow server is not retried: one fetch, then out.
	assert.Equal(t, 1, client.fetchCount())
}

func TestPollForAnswer_CallerCancelWins(t *testing.T) {
	ctx, cancel := context.WithCancel(t.Context())
	cancel()

	client := &fakeClient{pages: []listPage{{err: errors.New("should not matter")}}}
	engine := New(client, nil, fastOptions(), testLogger())

	_, err := engine.pollForAnswer(ctx, "ses_1", "/repo")
	require.ErrorIs(t, err, context.Canceled)
}
