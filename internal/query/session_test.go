// ABOUTME: Tests for the session gateway: reuse, creation, title derivation,
// ABOUTME: and the swallowed system-prompt failure.

package query

import (
	"errors"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestEnsureSession_ReusesCallerSession(t *testing.T) {
	client := &fakeClient{}
	engine := New(client, nil, fastOptions(), testLogger())

	id, created, err := engine.ensureSession(t.Context(), Request{
		RepoPath:  "/repo",
		Question:  "why?",
		SessionID: "ses_existing",
	})
	require.NoError(t, err)
	assert.Equal(t, "ses_existing", id)
	assert.False(t, created)

	// Trusted as-is: no create call, no validation round-trip.
	assert.Equal(t, 0, client.createCount())
	assert.Empty(t, client.sentRequests())
}

func TestEnsureSession_CreatesAndPrimes(t *testing.T) {
	client := &fakeClient{sessionID: "ses_new"}
	engine := New(client, nil, fastOptions(), testLogger())

	id, created, err := engine.ensureSession(t.Context(), Request{
		RepoPath: "/home/dev/src/chi",
		Question: "how does the router match wildcards?",
		Summary:  "chi is an HTTP router.",
	})
	require.NoError(t, err)
	assert.Equal(t, "ses_new", id)
	assert.True(t, created)

	sent := client.sentRequests()
	require.Len(t, sent, 1)
	prompt := sent[0]
	assert.True(t, prompt.NoReply, "system message must not produce a visible answer")
	assert.Equal(t, "ses_new", prompt.SessionID)
	assert.Contains(t, prompt.Text, "/home/dev/src/chi")
	assert.Contains(t, prompt.Text, "chi is an HTTP router.")
	assert.Contains(t, prompt.Text, "code analysis assistant")
}

func TestEnsureSession_CreateFailureIsFatal(t *testing.T) {
	client := &fakeClient{createErr: errors.New("503 from server")}
	engine := New(client, nil, fastOptions(), testLogger())

	_, _, err := engine.ensureSession(t.Context(), Request{RepoPath: "/repo", Question: "q"})

	var createErr *SessionCreationError
	require.ErrorAs(t, err, &createErr)
	assert.Equal(t, "/repo", createErr.RepoPath)
}

func TestEnsureSession_SystemPromptFailureSwallowed(t *testing.T) {
	client := &fakeClient{sendErr: errors.New("transient 500")}
	engine := New(client, nil, fastOptions(), testLogger())

	id, created, err := engine.ensureSession(t.Context(), Request{RepoPath: "/repo", Question: "q"})
	require.NoError(t, err, "the question must still be attempted")
	assert.Equal(t, "ses_test", id)
	assert.True(t, created)
}

func TestSessionTitle(t *testing.T) {
	assert.Equal(t, "short question", sessionTitle("short  question"))

	long := strings.Repeat("why ", 30)
	title := sessionTitle(long)
	assert.Len(t, []rune(title), sessionTitleMax+3)
	assert.True(t, strings.HasSuffix(title, "..."))

	// Rune-safe truncation of multibyte questions.
	wide := strings.Repeat("何", 60)
	assert.Equal(t, strings.Repeat("何", sessionTitleMax)+"...", sessionTitle(wide))
}
