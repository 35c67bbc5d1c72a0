// ABOUTME: In-memory fake of the opencode agent server for development and E2E testing.
// ABOUTME: Usage: fake-opencode [-addr :4096] [-delay 150ms] [-no-events] [-stall]
package main

import (
	"context"
	"encoding/json"
	"errors"
	"flag"
	"fmt"
	"log"
	"net/http"
	"os"
	"os/signal"
	"strings"
	"sync"
	"syscall"
	"time"

	"golang.org/x/sync/errgroup"
)

func main() {
	addr := flag.String("addr", ":4096", "listen address")
	delay := flag.Duration("delay", 150*time.Millisecond, "delay between streamed chunks")
	noEvents := flag.Bool("no-events", false, "reject /event so clients fall back to polling")
	stall := flag.Bool("stall", false, "emit one chunk then go silent, never finishing")
	flag.Parse()

	if err := run(*addr, *delay, *noEvents, *stall); err != nil {
		log.Fatal(err)
	}
}

func run(addr string, delay time.Duration, noEvents, stall bool) error {
	ctx, cancel := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer cancel()

	srv := &fakeServer{
		delay:    delay,
		noEvents: noEvents,
		stall:    stall,
		sessions: make(map[string]*fakeSession),
		subs:     make(map[chan string]struct{}),
	}

	mux := http.NewServeMux()
	mux.HandleFunc("GET /app", srv.handleApp)
	mux.HandleFunc("POST /session", srv.handleCreateSession)
	mux.HandleFunc("POST /session/{id}/message", srv.handleSendMessage)
	mux.HandleFunc("GET /session/{id}/message", srv.handleListMessages)
	mux.HandleFunc("GET /event", srv.handleEvents)

	httpServer := &http.Server{Addr: addr, Handler: mux}

	g, ctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		fmt.Fprintf(os.Stderr, "fake-opencode listening on %s\n", addr)
		if err := httpServer.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			return err
		}
		return nil
	})
	g.Go(func() error {
		<-ctx.Done()
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		return httpServer.Shutdown(shutdownCtx)
	})

	return g.Wait()
}

// wire types, mirroring what real clients expect

type wireMessageInfo struct {
	ID        string `json:"id"`
	SessionID string `json:"sessionID"`
	Role      string `json:"role"`
}

type wirePart struct {
	ID        string `json:"id"`
	MessageID string `json:"messageID"`
	SessionID string `json:"sessionID"`
	Type      string `json:"type"`
	Text      string `json:"text,omitempty"`
}

type wireMessage struct {
	Info  wireMessageInfo `json:"info"`
	Parts []wirePart      `json:"parts"`
}

type fakeSession struct {
	id       string
	title    string
	messages []wireMessage
}

type fakeServer struct {
	delay    time.Duration
	noEvents bool
	stall    bool

	mu       sync.Mutex
	seq      int
	sessions map[string]*fakeSession
	subs     map[chan string]struct{}
}

func (s *fakeServer) nextID(prefix string) string {
	s.seq++
	return fmt.Sprintf("%s_%06d", prefix, s.seq)
}

func (s *fakeServer) handleApp(w http.ResponseWriter, _ *http.Request) {
	writeJSON(w, map[string]string{"hostname": "fake-opencode", "version": "0.0.0"})
}

func (s *fakeServer) handleCreateSession(w http.ResponseWriter, r *http.Request) {
	var body struct {
		Title string `json:"title"`
	}
	_ = json.NewDecoder(r.Body).Decode(&body)

	s.mu.Lock()
	sess := &fakeSession{id: s.nextID("ses"), title: body.Title}
	s.sessions[sess.id] = sess
	s.mu.Unlock()

	log.Printf("session created: %s (%q)", sess.id, body.Title)
	writeJSON(w, map[string]string{
		"id":        sess.id,
		"title":     sess.title,
		"directory": r.URL.Query().Get("directory"),
	})
}

func (s *fakeServer) handleSendMessage(w http.ResponseWriter, r *http.Request) {
	sessionID := r.PathValue("id")

	var body struct {
		MessageID string `json:"messageID"`
		NoReply   bool   `json:"noReply"`
		Parts     []struct {
			Type string `json:"type"`
			Text string `json:"text"`
		} `json:"parts"`
	}
	if err := json.NewDecoder(r.Body).Decode(&body); err != nil {
		http.Error(w, "bad request", http.StatusBadRequest)
		return
	}
	var text string
	for _, p := range body.Parts {
		if p.Type == "text" {
			text = p.Text
		}
	}

	s.mu.Lock()
	sess, ok := s.sessions[sessionID]
	if !ok {
		s.mu.Unlock()
		http.Error(w, "session not found", http.StatusNotFound)
		return
	}
	userMsg := wireMessage{
		Info: wireMessageInfo{ID: s.nextID("msg"), SessionID: sessionID, Role: "user"},
	}
	userMsg.Parts = []wirePart{{
		ID: s.nextID("prt"), MessageID: userMsg.Info.ID, SessionID: sessionID,
		Type: "text", Text: text,
	}}
	sess.messages = append(sess.messages, userMsg)
	s.mu.Unlock()

	if body.NoReply {
		log.Printf("instruction accepted: session=%s", sessionID)
		writeJSON(w, userMsg)
		return
	}

	go s.answer(sessionID, text)
	writeJSON(w, userMsg)
}

func (s *fakeServer) handleListMessages(w http.ResponseWriter, r *http.Request) {
	sessionID := r.PathValue("id")

	s.mu.Lock()
	sess, ok := s.sessions[sessionID]
	if !ok {
		s.mu.Unlock()
		http.Error(w, "session not found", http.StatusNotFound)
		return
	}
	msgs := make([]wireMessage, len(sess.messages))
	copy(msgs, sess.messages)
	s.mu.Unlock()

	writeJSON(w, msgs)
}

func (s *fakeServer) handleEvents(w http.ResponseWriter, r *http.Request) {
	if s.noEvents {
		http.NotFound(w, r)
		return
	}

	flusher, ok := w.(http.Flusher)
	if !ok {
		http.Error(w, "streaming unsupported", http.StatusInternalServerError)
		return
	}
	w.Header().Set("Content-Type", "text/event-stream")
	w.Header().Set("Cache-Control", "no-cache")
	w.WriteHeader(http.StatusOK)
	flusher.Flush()

	sub := make(chan string, 64)
	s.mu.Lock()
	s.subs[sub] = struct{}{}
	s.mu.Unlock()
	defer func() {
		s.mu.Lock()
		delete(s.subs, sub)
		s.mu.Unlock()
	}()

	for {
		select {
		case frame := <-sub:
			fmt.Fprintf(w, "data: %s\n\n", frame)
			flusher.Flush()
		case <-r.Context().Done():
			return
		}
	}
}

func (s *fakeServer) broadcast(eventType string, properties any) {
	payload, err := json.Marshal(map[string]any{
		"type":       eventType,
		"properties": properties,
	})
	if err != nil {
		log.Printf("marshal event: %v", err)
		return
	}
	s.mu.Lock()
	for sub := range s.subs {
		select {
		case sub <- string(payload):
		default: // slow subscriber, drop
		}
	}
	s.mu.Unlock()
}

// answer plays an assistant turn: a reasoning part, a text part that grows
// by full-text resends, then session.idle. With -stall the turn emits one
// chunk and never finishes, which is exactly what a hung agent looks like.
func (s *fakeServer) answer(sessionID, question string) {
	s.mu.Lock()
	msgID := s.nextID("msg")
	reasoningID := s.nextID("prt")
	textID := s.nextID("prt")
	s.mu.Unlock()

	info := wireMessageInfo{ID: msgID, SessionID: sessionID, Role: "assistant"}
	s.broadcast("message.updated", map[string]any{"info": info})

	s.broadcast("message.part.updated", map[string]any{"part": wirePart{
		ID: reasoningID, MessageID: msgID, SessionID: sessionID,
		Type: "reasoning", Text: "Looking at the repository to answer: " + question,
	}})
	time.Sleep(s.delay)

	full := cannedAnswer(question)
	words := strings.Fields(full)
	var sent strings.Builder
	for i, word := range words {
		if i > 0 {
			sent.WriteString(" ")
		}
		sent.WriteString(word)
		s.broadcast("message.part.updated", map[string]any{"part": wirePart{
			ID: textID, MessageID: msgID, SessionID: sessionID,
			Type: "text", Text: sent.String(),
		}})
		if s.stall && i == 0 {
			log.Printf("stalling on purpose: session=%s", sessionID)
			return
		}
		time.Sleep(s.delay)
	}

	reply := wireMessage{Info: info, Parts: []wirePart{
		{ID: reasoningID, MessageID: msgID, SessionID: sessionID, Type: "reasoning",
			Text: "Looking at the repository to answer: " + question},
		{ID: textID, MessageID: msgID, SessionID: sessionID, Type: "text", Text: full},
	}}
	s.mu.Lock()
	if sess, ok := s.sessions[sessionID]; ok {
		sess.messages = append(sess.messages, reply)
	}
	s.mu.Unlock()

	s.broadcast("session.idle", map[string]any{"sessionID": sessionID})
	log.Printf("answered: session=%s words=%d", sessionID, len(words))
}

func cannedAnswer(question string) string {
	return fmt.Sprintf(
		"You asked: *%s*\n\nThis is a **canned answer** from fake-opencode. "+
			"The entry point is `main.go`, configuration is loaded at startup, "+
			"and requests flow through the usual handler chain.",
		strings.TrimSpace(question),
	)
}

func writeJSON(w http.ResponseWriter, v any) {
	w.Header().Set("Content-Type", "application/json")
	if err := json.NewEncoder(w).Encode(v); err != nil {
		log.Printf("write response: %v", err)
	}
}
