// ABOUTME: Server-sent event feed subscription and event decoding.
// ABOUTME: The feed is server-wide; consumers filter by session id.

package opencode

import (
	"bufio"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"
)

const eventBufferSize = 64

// ErrEventsUnsupported reports that the server exposes no event feed and
// callers must fall back to polling.
var ErrEventsUnsupported = errors.New("opencode: event stream unsupported")

// Event is one item from the server's event feed.
type Event interface {
	eventName() string
}

// MessageUpdated signals a message lifecycle change, including creation.
type MessageUpdated struct {
	Info MessageInfo
}

// PartUpdated carries a part's full accumulated state.
type PartUpdated struct {
	Part Part
}

// SessionIdle signals that the session finished its current turn. This is
// the authoritative completion signal; part timestamps are not.
type SessionIdle struct {
	SessionID string
}

// SessionError carries a session-scoped failure reported by the server.
type SessionError struct {
	SessionID string
	Name      string
	Message   string
}

func (MessageUpdated) eventName() string { return "message.updated" }
func (PartUpdated) eventName() string    { return "message.part.updated" }
func (SessionIdle) eventName() string    { return "session.idle" }
func (SessionError) eventName() string   { return "session.error" }

type eventEnvelope struct {
	Type       string          `json:"type"`
	Properties json.RawMessage `json:"properties"`
}

// decodeEvent parses one SSE data frame. Unknown event types decode to nil
// so the feed survives server additions.
func decodeEvent(data []byte) (Event, error) {
	var env eventEnvelope
	if err := json.Unmarshal(data, &env); err != nil {
		return nil, fmt.Errorf("decoding event envelope: %w", err)
	}

	switch env.Type {
	case "message.updated":
		var props struct {
			Info MessageInfo `json:"info"`
		}
		if err := json.Unmarshal(env.Properties, &props); err != nil {
			return nil, fmt.Errorf("decoding %s: %w", env.Type, err)
		}
		return MessageUpdated{Info: props.Info}, nil

	case "message.part.updated":
		var props struct {
			Part Part `json:"part"`
		}
		if err := json.Unmarshal(env.Properties, &props); err != nil {
			return nil, fmt.Errorf("decoding %s: %w", env.Type, err)
		}
		return PartUpdated{Part: props.Part}, nil

	case "session.idle":
		var props struct {
			SessionID string `json:"sessionID"`
		}
		if err := json.Unmarshal(env.Properties, &props); err != nil {
			return nil, fmt.Errorf("decoding %s: %w", env.Type, err)
		}
		return SessionIdle{SessionID: props.SessionID}, nil

	case "session.error":
		var props struct {
			SessionID string        `json:"sessionID"`
			Error     *MessageError `json:"error"`
		}
		if err := json.Unmarshal(env.Properties, &props); err != nil {
			return nil, fmt.Errorf("decoding %s: %w", env.Type, err)
		}
		evt := SessionError{SessionID: props.SessionID}
		if props.Error != nil {
			evt.Name = props.Error.Name
			evt.Message = props.Error.Data.Message
		}
		return evt, nil
	}

	return nil, nil
}

// SubscribeEvents opens the server's event feed. sessionID is used only for
// log attribution: the feed itself is server-wide and callers filter.
//
// The returned release function cancels the subscription; the channel closes
// once the feed ends. Servers without a feed yield ErrEventsUnsupported.
func (c *Client) SubscribeEvents(ctx context.Context, sessionID, directory string) (<-chan Event, func(), error) {
	ctx, cancel := context.WithCancel(ctx)

	resp, err := c.openEventStream(ctx, directory)
	if err != nil && directory != "" && isNotFound(err) {
		// Older servers reject the directory parameter; retry unscoped.
		resp, err = c.openEventStream(ctx, "")
	}
	if err != nil {
		cancel()
		if isNotFound(err) {
			return nil, nil, fmt.Errorf("%w: %v", ErrEventsUnsupported, err)
		}
		return nil, nil, err
	}

	events := make(chan Event, eventBufferSize)
	go c.pumpEvents(ctx, resp.Body, events, sessionID)

	return events, cancel, nil
}

func (c *Client) openEventStream(ctx context.Context, directory string) (*http.Response, error) {
	endpoint := c.baseURL + "/event"
	if directory != "" {
		endpoint += "?" + url.Values{"directory": {directory}}.Encode()
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, endpoint, nil)
	if err != nil {
		return nil, fmt.Errorf("creating event request: %w", err)
	}
	req.Header.Set("Accept", "text/event-stream")

	resp, err := c.http.Do(req)
	if err != nil {
		return nil, fmt.Errorf("opening event stream: %w", err)
	}
	if resp.StatusCode != http.StatusOK {
		body, _ := io.ReadAll(io.LimitReader(resp.Body, maxErrorBodyBytes))
		resp.Body.Close()
		return nil, &APIError{
			Status: resp.StatusCode,
			Method: http.MethodGet,
			Path:   "/event",
			Body:   truncate(string(body), maxErrorBodyBytes),
		}
	}
	return resp, nil
}

// pumpEvents reads SSE frames until the stream ends or ctx is cancelled,
// then closes the channel.
func (c *Client) pumpEvents(ctx context.Context, body io.ReadCloser, events chan<- Event, sessionID string) {
	defer close(events)
	defer body.Close()

	count := 0
	scanner := bufio.NewScanner(body)
	scanner.Buffer(make([]byte, 0, 64*1024), 1024*1024)

	for scanner.Scan() {
		line := scanner.Text()
		if !strings.HasPrefix(line, "data:") {
			continue
		}
		data := strings.TrimSpace(strings.TrimPrefix(line, "data:"))
		if data == "" {
			continue
		}

		evt, err := decodeEvent([]byte(data))
		if err != nil {
			c.logger.Warn("dropping undecodable event", "session_id", sessionID, "error", err)
			continue
		}
		if evt == nil {
			continue
		}

		select {
		case events <- evt:
			count++
		case <-ctx.Done():
			return
		}
	}

	if err := scanner.Err(); err != nil && ctx.Err() == nil {
		c.logger.Warn("event stream ended with error", "session_id", sessionID, "error", err, "events", count)
		return
	}
	c.logger.Debug("event stream closed", "session_id", sessionID, "events", count)
}

func isNotFound(err error) bool {
	var apiErr *APIError
	if !errors.As(err, &apiErr) {
		return false
	}
	return apiErr.Status == http.StatusNotFound || apiErr.Status == http.StatusMethodNotAllowed
}
