// Package manifest parses kctx.toml, the workspace manifest that names the
// repositories questions can target.
//
// # Format
//
//	[[repository]]
//	name = "chi"
//	kind = "git"
//	url = "https://github.com/go-chi/chi"
//	revision = "v5.0.12"
//
//	[[repository]]
//	name = "myapp"
//	kind = "local"
//	path = "~/src/myapp"
//	provider = "anthropic"
//	model = "claude-sonnet-4-5"
//
// Names must be unique. Local entries need a path, git entries a url; an
// omitted kind means local. A per-repository provider/model pair overrides
// the configured default.
package manifest
