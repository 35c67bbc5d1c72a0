// ABOUTME: In-memory AgentClient and SummaryStore fakes for engine tests.
// ABOUTME: Records calls and plays back scripted replies, events, and pages.

package query

import (
	"context"
	"io"
	"log/slog"
	"sync"

	"github.com/christopher-kapic/kinetic-context/internal/opencode"
)

func testLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

func assistantMessage(sessionID, text string) *opencode.Message {
	msg := &opencode.Message{
		Info: opencode.MessageInfo{ID: "msg_inline", SessionID: sessionID, Role: opencode.RoleAssistant},
	}
	if text != "" {
		msg.Parts = []opencode.Part{{
			ID:        "prt_inline",
			MessageID: "msg_inline",
			SessionID: sessionID,
			Type:      opencode.PartTypeText,
			Text:      text,
		}}
	}
	return msg
}

type listPage struct {
	msgs []opencode.Message
	err  error
}

var (
	_ AgentClient  = (*fakeClient)(nil)
	_ SummaryStore = (*fakeSummaries)(nil)
)

// fakeClient is a scriptable AgentClient. Zero value behaves like a server
// with a session named ses_test, no inline answers, and a working feed.
type fakeClient struct {
	mu sync.Mutex

	sessionID string
	createErr error
	created   []string // titles, in call order

	sendErr   error
	sendReply *opencode.Message // reply for non-noReply sends
	sent      []opencode.SendMessageRequest

	subscribeErr error
	events       chan opencode.Event
	released     int

	pages   []listPage // consumed in order; last page repeats
	listFn  func(ctx context.Context) ([]opencode.Message, error)
	fetches int
}

func (f *fakeClient) CreateSession(ctx context.Context, title, directory string) (*opencode.Session, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.createErr != nil {
		return nil, f.createErr
	}
	f.created = append(f.created, title)
	id := f.sessionID
	if id == "" {
		id = "ses_test"
	}
	return &opencode.Session{ID: id, Title: title, Directory: directory}, nil
}

func (f *fakeClient) SendMessage(ctx context.Context, req opencode.SendMessageRequest) (*opencode.Message, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.sent = append(f.sent, req)
	if f.sendErr != nil {
		return nil, f.sendErr
	}
	if !req.NoReply && f.sendReply != nil {
		return f.sendReply, nil
	}
	return &opencode.Message{}, nil
}

func (f *fakeClient) SubscribeEvents(ctx context.Context, sessionID, directory string) (<-chan opencode.Event, func(), error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.subscribeErr != nil {
		return nil, nil, f.subscribeErr
	}
	if f.events == nil {
		f.events = make(chan opencode.Event, 64)
	}
	release := func() {
		f.mu.Lock()
		defer f.mu.Unlock()
		f.released++
	}
	return f.events, release, nil
}

func (f *fakeClient) ListMessages(ctx context.Context, sessionID, directory string, limit int) ([]opencode.Message, error) {
	f.mu.Lock()
	f.fetches++
	listFn := f.listFn
	var page listPage
	if len(f.pages) > 0 {
		page = f.pages[0]
		if len(f.pages) > 1 {
			f.pages = f.pages[1:]
		}
	}
	f.mu.Unlock()

	if listFn != nil {
		return listFn(ctx)
	}
	return page.msgs, page.err
}

func (f *fakeClient) sentRequests() []opencode.SendMessageRequest {
	f.mu.Lock()
	defer f.mu.Unlock()
	return append([]opencode.SendMessageRequest(nil), f.sent...)
}

func (f *fakeClient) fetchCount() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.fetches
}

func (f *fakeClient) releaseCount() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.released
}

func (f *fakeClient) createCount() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return len(f.created)
}

// fakeSummaries is an in-memory SummaryStore.
type fakeSummaries struct {
	mu      sync.Mutex
	stored  map[string]string
	loadErr error
	saveErr error
}

func newFakeSummaries() *fakeSummaries {
	return &fakeSummaries{stored: make(map[string]string)}
}

func (s *fakeSummaries) LoadSummary(ctx context.Context, repoKey string) (string, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.loadErr != nil {
		return "", s.loadErr
	}
	return s.stored[repoKey], nil
}

func (s *fakeSummaries) SaveSummary(ctx context.Context, repoKey, summary string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.saveErr != nil {
		return s.saveErr
	}
	s.stored[repoKey] = summary
	return nil
}

func (s *fakeSummaries) get(repoKey string) string {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.stored[repoKey]
}
