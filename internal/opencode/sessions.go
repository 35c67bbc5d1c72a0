// ABOUTME: Session creation against the opencode server.
// ABOUTME: Sessions are directory-scoped so the agent grounds file access there.

package opencode

import (
	"context"
	"fmt"
	"net/http"
	"net/url"
)

type createSessionBody struct {
	Title string `json:"title,omitempty"`
}

// CreateSession starts a new conversation. directory scopes the session to
// a project checkout; the server treats it as the agent's working directory.
func (c *Client) CreateSession(ctx context.Context, title, directory string) (*Session, error) {
	query := url.Values{}
	if directory != "" {
		query.Set("directory", directory)
	}

	var sess Session
	if err := c.do(ctx, http.MethodPost, "/session", query, createSessionBody{Title: title}, &sess); err != nil {
		return nil, err
	}
	if sess.ID == "" {
		return nil, fmt.Errorf("opencode: create session returned no id")
	}

	c.logger.Debug("session created", "session_id", sess.ID, "title", title)
	return &sess, nil
}
