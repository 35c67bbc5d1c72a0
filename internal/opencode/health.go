// ABOUTME: Health probe against the opencode server's app info endpoint.

package opencode

import (
	"context"
	"net/http"
)

// Health verifies the server is reachable and answering.
func (c *Client) Health(ctx context.Context) error {
	return c.do(ctx, http.MethodGet, "/app", nil, nil, nil)
}
