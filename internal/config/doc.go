// Package config handles configuration loading for kctx.
//
// # Overview
//
// Configuration is loaded from YAML files with environment variable expansion.
// The package provides validation and sensible defaults; a missing config
// file is not an error at the CLI layer, which falls back to Default().
//
// # Configuration File
//
// Default locations (in order):
//
//  1. Path from KCTX_CONFIG environment variable
//  2. $XDG_CONFIG_HOME/kctx/config.yaml
//  3. ~/.config/kctx/config.yaml
//
// # Environment Variable Expansion
//
// Configuration values can reference environment variables:
//
//	agent:
//	  url: "${KCTX_AGENT_URL}"
//
// Syntax: ${VAR_NAME}
//
// # Duration Parsing
//
// Duration values use Go's time.ParseDuration syntax:
//
//	query:
//	  overall_timeout: "5m"
//	  heartbeat_window: "90s"
//
// Supported units: ns, us, ms, s, m, h
//
// # Configuration Sections
//
// Agent server:
//
//	agent:
//	  url: "http://localhost:4096"
//	  provider: "anthropic"           # optional, with model
//	  model: "claude-sonnet-4-5"
//
// Local store:
//
//	store:
//	  path: "~/.local/share/kctx/kctx.db"
//
// Workspace:
//
//	workspace:
//	  manifest: "./kctx.toml"
//	  cache_root: "~/.cache/kctx/repos"
//
// Query engine timing:
//
//	query:
//	  overall_timeout: "5m"
//	  fetch_timeout: "30s"
//	  poll_interval: "2s"
//	  max_poll_attempts: 30
//	  heartbeat_window: "90s"
//	  summary_timeout_multiplier: 3
//
// Logging:
//
//	logging:
//	  level: "info"      # debug, info, warn, error
//	  format: "console"  # console, json
package config
