// ABOUTME: Message send and list operations for a session.
// ABOUTME: Send may return the assistant's parts inline when the server answers synchronously.

package opencode

import (
	"context"
	"fmt"
	"net/http"
	"net/url"
	"strconv"

	"github.com/google/uuid"
)

// SendMessageRequest is the prompt payload for one conversational turn.
type SendMessageRequest struct {
	SessionID string
	Directory string
	Text      string

	// Model selects a provider/model pair; both empty means server default.
	ProviderID string
	ModelID    string

	// NoReply marks instruction-only messages the agent must not answer.
	NoReply bool
}

type modelRef struct {
	ProviderID string `json:"providerID"`
	ModelID    string `json:"modelID"`
}

type sendPart struct {
	Type string `json:"type"`
	Text string `json:"text"`
}

type sendMessageBody struct {
	MessageID string     `json:"messageID,omitempty"`
	Model     *modelRef  `json:"model,omitempty"`
	NoReply   bool       `json:"noReply,omitempty"`
	Parts     []sendPart `json:"parts"`
}

// SendMessage posts one message to a session. The returned message may
// already carry assistant text parts when the server answers inline; callers
// that subscribed to the event feed can ignore the return value.
func (c *Client) SendMessage(ctx context.Context, req SendMessageRequest) (*Message, error) {
	if req.SessionID == "" {
		return nil, fmt.Errorf("opencode: send message: session id required")
	}
	if req.Text == "" {
		return nil, fmt.Errorf("opencode: send message: text required")
	}

	body := sendMessageBody{
		MessageID: uuid.NewString(),
		NoReply:   req.NoReply,
		Parts:     []sendPart{{Type: PartTypeText, Text: req.Text}},
	}
	if req.ProviderID != "" && req.ModelID != "" {
		body.Model = &modelRef{ProviderID: req.ProviderID, ModelID: req.ModelID}
	}

	query := url.Values{}
	if req.Directory != "" {
		query.Set("directory", req.Directory)
	}

	var msg Message
	path := "/session/" + req.SessionID + "/message"
	if err := c.do(ctx, http.MethodPost, path, query, body, &msg); err != nil {
		return nil, err
	}

	c.logger.Debug("message sent",
		"session_id", req.SessionID,
		"no_reply", req.NoReply,
		"inline_parts", len(msg.Parts),
	)
	return &msg, nil
}

// ListMessages fetches up to limit of the session's most recent messages,
// oldest first. The limit is also enforced client-side because older servers
// ignore the query parameter.
func (c *Client) ListMessages(ctx context.Context, sessionID, directory string, limit int) ([]Message, error) {
	if sessionID == "" {
		return nil, fmt.Errorf("opencode: list messages: session id required")
	}

	query := url.Values{}
	if directory != "" {
		query.Set("directory", directory)
	}
	if limit > 0 {
		query.Set("limit", strconv.Itoa(limit))
	}

	var msgs []Message
	path := "/session/" + sessionID + "/message"
	if err := c.do(ctx, http.MethodGet, path, query, nil, &msgs); err != nil {
		return nil, err
	}
	if limit > 0 && len(msgs) > limit {
		msgs = msgs[len(msgs)-limit:]
	}
	return msgs, nil
}
