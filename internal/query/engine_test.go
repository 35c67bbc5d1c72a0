// ABOUTME: End-to-end engine tests over the fake client: streaming, inline
// ABOUTME: answers, degraded polling, stalls, and the summary side effect.

package query

import (
	"errors"
	"fmt"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/christopher-kapic/kinetic-context/internal/opencode"
)

// drainResults collects the full result sequence, failing the test if the
// channel does not close in time.
func drainResults(t *testing.T, results <-chan Result) []Result {
	t.Helper()
	var got []Result
	timeout := time.After(5 * time.Second)
	for {
		select {
		case res, ok := <-results:
			if !ok {
				return got
			}
			got = append(got, res)
		case <-timeout:
			t.Fatalf("result channel did not close; got %d results", len(got))
		}
	}
}

func TestQueryStream_RelaysInterpretedFeed(t *testing.T) {
	client := &fakeClient{events: make(chan opencode.Event, 8)}
	client.events <- assistantTurn("ses_1", "msg_1")
	client.events <- textPart("ses_1", "msg_1", "The")
	client.events <- textPart("ses_1", "msg_1", "The function")
	client.events <- textPart("ses_1", "msg_1", "The function adds.")
	client.events <- opencode.SessionIdle{SessionID: "ses_1"}

	engine := New(client, nil, fastOptions(), testLogger())
	results, err := engine.QueryStream(t.Context(), Request{
		RepoPath:  "/repo",
		Question:  "What does this function do?",
		SessionID: "ses_1",
	})
	require.NoError(t, err)

	got := drainResults(t, results)
	require.Len(t, got, 4)

	var text strings.Builder
	finals := 0
	for _, res := range got {
		require.NoError(t, res.Err)
		assert.Equal(t, "ses_1", res.SessionID)
		text.WriteString(res.TextDelta)
		if res.Final {
			finals++
		}
	}
	assert.Equal(t, "The function adds.", text.String())
	assert.Equal(t, 1, finals)
	assert.True(t, got[len(got)-1].Final, "the final result must be last")

	// The question went out exactly once, and the subscription was released.
	sent := client.sentRequests()
	require.Len(t, sent, 1)
	assert.Equal(t, "What does this function do?", sent[0].Text)
	assert.False(t, sent[0].NoReply)
	assert.Equal(t, 1, client.releaseCount())
}

func TestQueryStream_FeedEndWithoutIdleSynthesizesFinal(t *testing.T) {
	client := &fakeClient{events: make(chan opencode.Event, 4)}
	client.events <- assistantTurn("ses_1", "msg_1")
	client.events <- textPart("ses_1", "msg_1", "Partial but real answer")
	close(client.events)

	engine := New(client, nil, fastOptions(), testLogger())
	results, err := engine.QueryStream(t.Context(), Request{
		RepoPath: "/repo", Question: "q", SessionID: "ses_1",
	})
	require.NoError(t, err)

	got := drainResults(t, results)
	require.Len(t, got, 2)
	assert.Equal(t, "Partial but real answer", got[0].TextDelta)
	assert.True(t, got[1].Final)
	assert.Zero(t, client.fetchCount(), "recovered answer needs no polling")
}

func TestQueryStream_StallBeforeDeadline(t *testing.T) {
	client := &fakeClient{events: make(chan opencode.Event)}
	opts := fastOptions()
	opts.HeartbeatWindow = 30 * time.Millisecond
	opts.OverallTimeout = 10 * time.Second
	engine := New(client, nil, opts, testLogger())

	start := time.Now()
	results, err := engine.QueryStream(t.Context(), Request{
		RepoPath: "/repo", Question: "q", SessionID: "ses_1",
	})
	require.NoError(t, err)

	got := drainResults(t, results)
	require.Len(t, got, 1)

	var stall *StreamStallError
	require.ErrorAs(t, got[0].Err, &stall)
	assert.Less(t, time.Since(start), 10*time.Second)
	assert.Equal(t, 1, client.releaseCount())
}

func TestQueryStream_SendFailureSurfacesInsteadOfStall(t *testing.T) {
	// The event feed is server-wide: it stays open and silent when the
	// question POST fails. The caller must see the send failure, not a
	// misleading stall.
	client := &fakeClient{
		events:  make(chan opencode.Event),
		sendErr: errors.New("404 session not found"),
	}
	opts := fastOptions()
	opts.HeartbeatWindow = 30 * time.Millisecond
	opts.OverallTimeout = 10 * time.Second
	engine := New(client, nil, opts, testLogger())

	results, err := engine.QueryStream(t.Context(), Request{
		RepoPath: "/repo", Question: "q", SessionID: "ses_1",
	})
	require.NoError(t, err)

	got := drainResults(t, results)
	require.Len(t, got, 1)
	require.Error(t, got[0].Err)
	assert.Contains(t, got[0].Err.Error(), "404 session not found")

	var stall *StreamStallError
	assert.False(t, errors.As(got[0].Err, &stall), "send failure must not masquerade as a stall")
	assert.Equal(t, 1, client.releaseCount())
}

func TestQueryStream_RemoteErrorEndsStream(t *testing.T) {
	client := &fakeClient{events: make(chan opencode.Event, 4)}
	client.events <- assistantTurn("ses_1", "msg_1")
	client.events <- textPart("ses_1", "msg_1", "Half an ans")
	client.events <- opencode.SessionError{SessionID: "ses_1", Name: "ProviderError", Message: "overloaded"}

	engine := New(client, nil, fastOptions(), testLogger())
	results, err := engine.QueryStream(t.Context(), Request{
		RepoPath: "/repo", Question: "q", SessionID: "ses_1",
	})
	require.NoError(t, err)

	got := drainResults(t, results)
	require.Len(t, got, 2)
	assert.Equal(t, "Half an ans", got[0].TextDelta)

	var remoteErr *RemoteAgentError
	require.ErrorAs(t, got[1].Err, &remoteErr)
	assert.Contains(t, remoteErr.Error(), "overloaded")
}

func TestQueryStream_NoFeedDegradesToSingleFinal(t *testing.T) {
	client := &fakeClient{
		subscribeErr: fmt.Errorf("%w: 404", opencode.ErrEventsUnsupported),
		sendReply:    assistantMessage("ses_1", "Answer A"),
	}
	engine := New(client, nil, fastOptions(), testLogger())

	results, err := engine.QueryStream(t.Context(), Request{
		RepoPath: "/repo", Question: "q", SessionID: "ses_1",
	})
	require.NoError(t, err)

	got := drainResults(t, results)
	require.Len(t, got, 1)
	require.NoError(t, got[0].Err)
	assert.Equal(t, "Answer A", got[0].TextDelta)
	assert.True(t, got[0].Final)
	assert.Zero(t, client.fetchCount())
}

func TestQueryStream_SubscribeFailureSurfaces(t *testing.T) {
	client := &fakeClient{subscribeErr: errors.New("connection refused")}
	engine := New(client, nil, fastOptions(), testLogger())

	_, err := engine.QueryStream(t.Context(), Request{
		RepoPath: "/repo", Question: "q", SessionID: "ses_1",
	})
	require.Error(t, err)
	assert.Contains(t, err.Error(), "connection refused")
}

func TestQuery_InlineAnswerSkipsPolling(t *testing.T) {
	client := &fakeClient{sendReply: assistantMessage("ses_1", "Answer A")}
	engine := New(client, nil, fastOptions(), testLogger())

	answer, err := engine.Query(t.Context(), Request{
		RepoPath: "/repo", Question: "q", SessionID: "ses_1",
	})
	require.NoError(t, err)
	assert.Equal(t, "Answer A", answer.Text)
	assert.Equal(t, "ses_1", answer.SessionID)
	assert.Zero(t, client.fetchCount())
}

func TestQuery_PollsWhenReplyIsEmpty(t *testing.T) {
	client := &fakeClient{pages: []listPage{
		{msgs: []opencode.Message{userMessage("ses_test", "q")}},
		{msgs: []opencode.Message{*assistantMessage("ses_test", "polled answer")}},
	}}
	engine := New(client, nil, fastOptions(), testLogger())

	answer, err := engine.Query(t.Context(), Request{RepoPath: "/repo", Question: "q"})
	require.NoError(t, err)
	assert.Equal(t, "polled answer", answer.Text)
	assert.Equal(t, 2, client.fetchCount())

	// New session: a system prompt preceded the question.
	sent := client.sentRequests()
	require.Len(t, sent, 2)
	assert.True(t, sent[0].NoReply)
	assert.False(t, sent[1].NoReply)
}

func TestQuery_ValidatesRequest(t *testing.T) {
	engine := New(&fakeClient{}, nil, fastOptions(), testLogger())

	_, err := engine.Query(t.Context(), Request{Question: "q"})
	require.Error(t, err)

	_, err = engine.Query(t.Context(), Request{RepoPath: "/repo", Question: "   "})
	require.Error(t, err)
}

func TestQuery_FirstAnswerTriggersDetachedSummary(t *testing.T) {
	client := &fakeClient{sendReply: assistantMessage("ses_test", "Answer A")}
	summaries := newFakeSummaries()
	engine := New(client, summaries, fastOptions(), testLogger())

	answer, err := engine.Query(t.Context(), Request{
		RepoPath: "/repo", RepoKey: "chi", Question: "q",
	})
	require.NoError(t, err)
	assert.Equal(t, "Answer A", answer.Text)

	// The detached task reuses the session and stores whatever the agent
	// produced for the summary prompt.
	require.Eventually(t, func() bool {
		return summaries.get("chi") != ""
	}, 5*time.Second, 10*time.Millisecond)

	sent := client.sentRequests()
	require.Len(t, sent, 3)
	assert.Contains(t, sent[2].Text, "summary of this repository")
}

func TestQuery_NoSummaryTaskWhenSessionReused(t *testing.T) {
	client := &fakeClient{sendReply: assistantMessage("ses_1", "Answer A")}
	summaries := newFakeSummaries()
	engine := New(client, summaries, fastOptions(), testLogger())

	_, err := engine.Query(t.Context(), Request{
		RepoPath: "/repo", RepoKey: "chi", Question: "q", SessionID: "ses_1",
	})
	require.NoError(t, err)

	time.Sleep(50 * time.Millisecond)
	assert.Empty(t, summaries.get("chi"))
	assert.Len(t, client.sentRequests(), 1)
}

func TestQuery_StoredSummarySeedsSystemPromptAndSkipsRegeneration(t *testing.T) {
	client := &fakeClient{sendReply: assistantMessage("ses_test", "Answer A")}
	summaries := newFakeSummaries()
	require.NoError(t, summaries.SaveSummary(t.Context(), "chi", "chi routes HTTP."))
	engine := New(client, summaries, fastOptions(), testLogger())

	_, err := engine.Query(t.Context(), Request{RepoPath: "/repo", RepoKey: "chi", Question: "q"})
	require.NoError(t, err)

	sent := client.sentRequests()
	require.Len(t, sent, 2, "no summary generation for an already-summarized repo")
	assert.Contains(t, sent[0].Text, "chi routes HTTP.")
}

func TestSummarize_StoresAndReturns(t *testing.T) {
	client := &fakeClient{sendReply: assistantMessage("ses_test", "A tidy summary.")}
	summaries := newFakeSummaries()
	engine := New(client, summaries, fastOptions(), testLogger())

	text, err := engine.Summarize(t.Context(), Request{RepoPath: "/repo", RepoKey: "chi"})
	require.NoError(t, err)
	assert.Equal(t, "A tidy summary.", text)
	assert.Equal(t, "A tidy summary.", summaries.get("chi"))
}
