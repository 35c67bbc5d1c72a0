// Package opencode is an HTTP client for an opencode agent server.
//
// # Overview
//
// The server owns sessions (conversations) and messages; each message is
// assembled from parts (text, reasoning, tool invocations, files). Clients
// create a session, post prompts to it, and observe progress either by
// listing messages or by consuming the server-sent event feed.
//
// # Endpoints
//
// One method per endpoint:
//
//   - CreateSession: POST /session
//   - SendMessage:   POST /session/{id}/message
//   - ListMessages:  GET  /session/{id}/message
//   - SubscribeEvents: GET /event (server-sent events)
//   - Health:        GET  /app
//
// # Event feed
//
// SubscribeEvents delivers these event types:
//
//   - message.updated: message lifecycle changed (includes creation)
//   - message.part.updated: a part's full accumulated state
//   - session.idle: the session finished its turn
//   - session.error: a session-scoped failure
//
// The feed is server-wide; consumers filter by session id. Text and
// reasoning parts carry the full accumulated string on every update, not a
// delta — merging is the consumer's job.
//
// # Usage
//
//	client := opencode.New("http://localhost:4096", logger)
//	sess, err := client.CreateSession(ctx, "what does Start do?", repoDir)
package opencode
