// ABOUTME: Entry point for the kctx CLI
// ABOUTME: Ask questions about repositories through a remote coding agent

package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"io/fs"
	"log/slog"
	"os"
	"os/signal"
	"path/filepath"
	"strings"
	"sync"
	"syscall"
	"time"

	"github.com/charmbracelet/glamour"
	"github.com/fatih/color"

	"github.com/christopher-kapic/kinetic-context/internal/config"
	"github.com/christopher-kapic/kinetic-context/internal/export"
	"github.com/christopher-kapic/kinetic-context/internal/manifest"
	"github.com/christopher-kapic/kinetic-context/internal/opencode"
	"github.com/christopher-kapic/kinetic-context/internal/query"
	"github.com/christopher-kapic/kinetic-context/internal/store"
	"github.com/christopher-kapic/kinetic-context/internal/workspace"
)

// Version is set by goreleaser at build time.
var version = "dev"

const banner = `
 _     _
| | __| |_ __  __
| |/ /| __\ \/ /
|   < | |_ >  <
|_|\_\ \__/_/\_\
`

// getConfigPath returns the path to the kctx config file.
// Priority: KCTX_CONFIG env var > XDG_CONFIG_HOME/kctx/config.yaml > ~/.config/kctx/config.yaml
func getConfigPath() string {
	if envPath := os.Getenv("KCTX_CONFIG"); envPath != "" {
		return envPath
	}

	configDir := os.Getenv("XDG_CONFIG_HOME")
	if configDir == "" {
		homeDir, err := os.UserHomeDir()
		if err != nil {
			return "config.yaml" // fallback
		}
		configDir = filepath.Join(homeDir, ".config")
	}

	return filepath.Join(configDir, "kctx", "config.yaml")
}

// getDataPath returns the path to the kctx data directory.
// Priority: XDG_DATA_HOME/kctx > ~/.local/share/kctx
func getDataPath() string {
	dataDir := os.Getenv("XDG_DATA_HOME")
	if dataDir == "" {
		homeDir, err := os.UserHomeDir()
		if err != nil {
			return "data" // fallback
		}
		dataDir = filepath.Join(homeDir, ".local", "share")
	}

	return filepath.Join(dataDir, "kctx")
}

func main() {
	if len(os.Args) < 2 {
		fmt.Println("Usage: kctx <command>")
		fmt.Println()
		fmt.Println("Commands:")
		fmt.Println("  ask \"question\"   Ask a question about a repository")
		fmt.Println("  repos            List manifest repositories and their state")
		fmt.Println("  summary          Show or refresh the stored repository summary")
		fmt.Println("  history          Show recent questions and answers")
		fmt.Println("  export           Write an HTML transcript of past exchanges")
		fmt.Println("  init             Create a starter config file")
		fmt.Println("  health           Check the agent server")
		os.Exit(1)
	}

	ctx, cancel := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer cancel()

	var err error
	switch os.Args[1] {
	case "ask":
		err = runAsk(ctx, os.Args[2:])
	case "repos":
		err = runRepos(os.Args[2:])
	case "summary":
		err = runSummary(ctx, os.Args[2:])
	case "history":
		err = runHistory(ctx, os.Args[2:])
	case "export":
		err = runExport(ctx, os.Args[2:])
	case "init":
		err = runInit()
	case "health":
		err = runHealth(ctx)
	case "version":
		fmt.Printf("kctx %s\n", version)
	default:
		fmt.Fprintf(os.Stderr, "Unknown command: %s\n", os.Args[1])
		os.Exit(1)
	}

	if err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		os.Exit(1)
	}
}

// loadConfig loads the config file, falling back to defaults when none exists.
func loadConfig() (*config.Config, error) {
	path := getConfigPath()
	cfg, err := config.Load(path)
	if err != nil {
		if errors.Is(err, fs.ErrNotExist) {
			return config.Default(), nil
		}
		return nil, fmt.Errorf("loading config: %w", err)
	}
	return cfg, nil
}

// app bundles the wired-up collaborators behind one command invocation.
type app struct {
	cfg      *config.Config
	logger   *slog.Logger
	client   *opencode.Client
	db       *store.SQLiteStore
	engine   *query.Engine
	resolver *workspace.Resolver
}

func buildApp() (*app, error) {
	cfg, err := loadConfig()
	if err != nil {
		return nil, err
	}

	logger := setupLogger(cfg.Logging)
	client := opencode.New(cfg.Agent.URL, logger)

	dbPath := cfg.Store.Path
	if dbPath == "" {
		dbPath = filepath.Join(getDataPath(), "kctx.db")
	}
	db, err := store.NewSQLiteStore(dbPath)
	if err != nil {
		return nil, fmt.Errorf("opening store: %w", err)
	}

	opts := query.DefaultOptions()
	if cfg.Query.OverallTimeout > 0 {
		opts.OverallTimeout = cfg.Query.OverallTimeout
	}
	if cfg.Query.FetchTimeout > 0 {
		opts.FetchTimeout = cfg.Query.FetchTimeout
	}
	if cfg.Query.PollInterval > 0 {
		opts.PollInterval = cfg.Query.PollInterval
	}
	if cfg.Query.MaxPollAttempts > 0 {
		opts.MaxPollAttempts = cfg.Query.MaxPollAttempts
	}
	if cfg.Query.HeartbeatWindow > 0 {
		opts.HeartbeatWindow = cfg.Query.HeartbeatWindow
	}
	if cfg.Query.SummaryTimeoutMultiplier > 0 {
		opts.SummaryTimeoutMultiplier = cfg.Query.SummaryTimeoutMultiplier
	}

	return &app{
		cfg:      cfg,
		logger:   logger,
		client:   client,
		db:       db,
		engine:   query.New(client, db, opts, logger),
		resolver: workspace.NewResolver(cfg.Workspace.CacheRoot, logger),
	}, nil
}

func (a *app) close() {
	if err := a.db.Close(); err != nil {
		a.logger.Warn("closing store", "error", err)
	}
}

// target is a resolved repository: where it lives, how it is keyed in the
// store, and which model answers for it.
type target struct {
	path  string
	key   string
	model query.Model
}

// resolveTarget turns the -repo flag into a usable directory. A manifest
// name wins; anything else is treated as a path; empty means the current
// directory.
func (a *app) resolveTarget(repoFlag string) (*target, error) {
	model := query.Model{ProviderID: a.cfg.Agent.Provider, ModelID: a.cfg.Agent.Model}

	if repoFlag != "" && a.cfg.Workspace.Manifest != "" {
		m, err := manifest.Load(a.cfg.Workspace.Manifest)
		if err != nil {
			return nil, err
		}
		if repo, ok := m.Lookup(repoFlag); ok {
			path, err := a.resolver.Resolve(repo)
			if err != nil {
				return nil, err
			}
			if repo.EffectiveKind() == manifest.KindGit {
				if err := a.resolver.CheckoutRevision(path, repo.Revision); err != nil {
					a.logger.Warn("revision check failed", "repo", repo.Name, "error", err)
				}
			}
			if repo.Provider != "" {
				model = query.Model{ProviderID: repo.Provider, ModelID: repo.Model}
			}
			return &target{path: path, key: repo.Name, model: model}, nil
		}
	}

	path := repoFlag
	if path == "" {
		cwd, err := os.Getwd()
		if err != nil {
			return nil, fmt.Errorf("resolving current directory: %w", err)
		}
		path = cwd
	}
	abs, err := filepath.Abs(path)
	if err != nil {
		return nil, fmt.Errorf("resolving %s: %w", path, err)
	}
	info, err := os.Stat(abs)
	if err != nil {
		return nil, fmt.Errorf("repository %s: %w", abs, err)
	}
	if !info.IsDir() {
		return nil, fmt.Errorf("repository %s is not a directory", abs)
	}
	return &target{path: abs, key: abs, model: model}, nil
}

func runAsk(ctx context.Context, args []string) error {
	fs := flag.NewFlagSet("ask", flag.ExitOnError)
	repoFlag := fs.String("repo", "", "manifest repository name or path (default: current directory)")
	sessionFlag := fs.String("session", "", "continue a specific remote session id")
	newSession := fs.Bool("new", false, "start a fresh conversation instead of continuing the last one")
	noStream := fs.Bool("no-stream", false, "wait for the complete answer instead of streaming")
	plain := fs.Bool("plain", false, "print the answer without markdown rendering")
	verbose := fs.Bool("verbose", false, "print the agent's reasoning trace to stderr")
	timeout := fs.Duration("timeout", 0, "per-call overall timeout (default: from config)")
	if err := fs.Parse(args); err != nil {
		return err
	}
	if fs.NArg() != 1 {
		return fmt.Errorf("usage: kctx ask [flags] \"question\"")
	}
	question := fs.Arg(0)

	a, err := buildApp()
	if err != nil {
		return err
	}
	defer a.close()

	tgt, err := a.resolveTarget(*repoFlag)
	if err != nil {
		return err
	}

	sessionID := *sessionFlag
	if sessionID == "" && !*newSession {
		// Continue the repository's last conversation by default.
		sessionID, err = a.db.LoadSession(ctx, tgt.key)
		if err != nil {
			return err
		}
	}

	req := query.Request{
		RepoPath:  tgt.path,
		RepoKey:   tgt.key,
		Question:  question,
		Model:     tgt.model,
		SessionID: sessionID,
		Timeout:   *timeout,
	}

	var answer *query.Answer
	if *noStream {
		answer, err = a.engine.Query(ctx, req)
		if err != nil {
			return err
		}
		printRendered(answer.Text, *plain)
		err = a.record(ctx, tgt.key, question, answer.Text, "", answer.SessionID)
	} else {
		answer, err = a.streamAnswer(ctx, req, tgt.key, question, *verbose)
	}
	if err != nil {
		return err
	}

	gray := color.New(color.FgHiBlack)
	gray.Fprintf(os.Stderr, "session %s\n", answer.SessionID)
	return nil
}

// streamAnswer consumes the incremental result feed, printing deltas as
// they arrive and recording the completed exchange.
func (a *app) streamAnswer(ctx context.Context, req query.Request, repoKey, question string, verbose bool) (*query.Answer, error) {
	results, err := a.engine.QueryStream(ctx, req)
	if err != nil {
		return nil, err
	}

	var text strings.Builder
	var reasoning, sessionID, shownReasoning string

	for res := range results {
		if res.Err != nil {
			return nil, res.Err
		}
		sessionID = res.SessionID
		if res.TextDelta != "" {
			fmt.Print(res.TextDelta)
			text.WriteString(res.TextDelta)
		}
		if res.Reasoning != "" {
			reasoning = res.Reasoning
			if verbose {
				shownReasoning = printReasoningUpdate(shownReasoning, res.Reasoning)
			}
		}
	}
	fmt.Println()

	if sessionID == "" {
		return nil, fmt.Errorf("stream ended without any result")
	}

	answer := &query.Answer{Text: text.String(), SessionID: sessionID}
	if err := a.record(ctx, repoKey, question, answer.Text, reasoning, sessionID); err != nil {
		return nil, err
	}
	return answer, nil
}

// printReasoningUpdate writes only the unseen tail of the trace snapshot
// to stderr, returning the new high-water mark.
func printReasoningUpdate(shown, snapshot string) string {
	gray := color.New(color.FgHiBlack)
	if strings.HasPrefix(snapshot, shown) {
		gray.Fprint(os.Stderr, strings.TrimPrefix(snapshot, shown))
		return snapshot
	}
	gray.Fprintln(os.Stderr, "\n"+snapshot)
	return snapshot
}

// record persists the exchange ledger entry and the session pointer used
// by the next follow-up question.
func (a *app) record(ctx context.Context, repoKey, question, answer, reasoning, sessionID string) error {
	if err := a.db.SaveExchange(ctx, &store.Exchange{
		RepoKey:   repoKey,
		SessionID: sessionID,
		Question:  question,
		Answer:    answer,
		Reasoning: reasoning,
	}); err != nil {
		return err
	}
	return a.db.SaveSession(ctx, repoKey, sessionID)
}

// printRendered prints markdown through glamour when stdout is a terminal,
// falling back to the raw text.
func printRendered(markdown string, plain bool) {
	if !plain && isTerminal(os.Stdout) {
		renderer, err := glamour.NewTermRenderer(
			glamour.WithAutoStyle(),
			glamour.WithWordWrap(100),
		)
		if err == nil {
			if out, err := renderer.Render(markdown); err == nil {
				fmt.Print(out)
				return
			}
		}
	}
	fmt.Println(markdown)
}

func isTerminal(f *os.File) bool {
	info, err := f.Stat()
	if err != nil {
		return false
	}
	return info.Mode()&os.ModeCharDevice != 0
}

func runRepos(args []string) error {
	fs := flag.NewFlagSet("repos", flag.ExitOnError)
	if err := fs.Parse(args); err != nil {
		return err
	}

	a, err := buildApp()
	if err != nil {
		return err
	}
	defer a.close()

	if a.cfg.Workspace.Manifest == "" {
		return fmt.Errorf("no manifest configured (workspace.manifest)")
	}
	m, err := manifest.Load(a.cfg.Workspace.Manifest)
	if err != nil {
		return err
	}

	green := color.New(color.FgGreen)
	red := color.New(color.FgRed)
	for i := range m.Repositories {
		repo := &m.Repositories[i]
		path, err := a.resolver.Resolve(repo)
		if err != nil {
			red.Printf("✗ %-20s", repo.Name)
			fmt.Printf(" %s\n", err)
			continue
		}
		green.Printf("✓ %-20s", repo.Name)
		fmt.Printf(" %s\n", path)
	}
	return nil
}

func runSummary(ctx context.Context, args []string) error {
	fs := flag.NewFlagSet("summary", flag.ExitOnError)
	repoFlag := fs.String("repo", "", "manifest repository name or path (default: current directory)")
	refresh := fs.Bool("refresh", false, "regenerate the summary through the agent")
	plain := fs.Bool("plain", false, "print without markdown rendering")
	if err := fs.Parse(args); err != nil {
		return err
	}

	a, err := buildApp()
	if err != nil {
		return err
	}
	defer a.close()

	tgt, err := a.resolveTarget(*repoFlag)
	if err != nil {
		return err
	}

	if *refresh {
		summary, err := a.engine.Summarize(ctx, query.Request{
			RepoPath: tgt.path,
			RepoKey:  tgt.key,
			Model:    tgt.model,
		})
		if err != nil {
			return err
		}
		printRendered(summary, *plain)
		return nil
	}

	summary, err := a.db.LoadSummary(ctx, tgt.key)
	if err != nil {
		return err
	}
	if summary == "" {
		fmt.Printf("No summary stored for %s yet. Ask a question, or run: kctx summary -refresh\n", tgt.key)
		return nil
	}
	printRendered(summary, *plain)
	return nil
}

func runHistory(ctx context.Context, args []string) error {
	fs := flag.NewFlagSet("history", flag.ExitOnError)
	repoFlag := fs.String("repo", "", "manifest repository name or path (default: current directory)")
	limit := fs.Int("limit", 10, "number of exchanges to show")
	if err := fs.Parse(args); err != nil {
		return err
	}

	a, err := buildApp()
	if err != nil {
		return err
	}
	defer a.close()

	tgt, err := a.resolveTarget(*repoFlag)
	if err != nil {
		return err
	}

	exchanges, err := a.db.ListExchanges(ctx, tgt.key, *limit)
	if err != nil {
		return err
	}
	if len(exchanges) == 0 {
		fmt.Printf("No history for %s\n", tgt.key)
		return nil
	}

	bold := color.New(color.Bold)
	gray := color.New(color.FgHiBlack)
	for _, ex := range exchanges {
		bold.Printf("Q: %s\n", ex.Question)
		gray.Printf("   %s · session %s\n", ex.CreatedAt.Local().Format("2006-01-02 15:04"), ex.SessionID)
		fmt.Printf("%s\n\n", ex.Answer)
	}
	return nil
}

func runExport(ctx context.Context, args []string) error {
	fs := flag.NewFlagSet("export", flag.ExitOnError)
	repoFlag := fs.String("repo", "", "manifest repository name or path (default: current directory)")
	output := fs.String("o", "transcript.html", "output file")
	if err := fs.Parse(args); err != nil {
		return err
	}

	a, err := buildApp()
	if err != nil {
		return err
	}
	defer a.close()

	tgt, err := a.resolveTarget(*repoFlag)
	if err != nil {
		return err
	}

	exchanges, err := a.db.ListExchanges(ctx, tgt.key, 0)
	if err != nil {
		return err
	}

	f, err := os.Create(*output)
	if err != nil {
		return fmt.Errorf("creating %s: %w", *output, err)
	}
	defer f.Close()

	if err := export.WriteTranscript(f, tgt.key, exchanges); err != nil {
		return err
	}
	fmt.Printf("Wrote %d exchanges to %s\n", len(exchanges), *output)
	return nil
}

func runInit() error {
	configPath := getConfigPath()
	if _, err := os.Stat(configPath); err == nil {
		return fmt.Errorf("config already exists at %s", configPath)
	}

	if err := os.MkdirAll(filepath.Dir(configPath), 0755); err != nil {
		return fmt.Errorf("creating config directory: %w", err)
	}

	starter := `# kctx configuration
agent:
  url: "http://localhost:4096"
  # provider: "anthropic"
  # model: "claude-sonnet-4-5"

# store:
#   path: "~/.local/share/kctx/kctx.db"

# workspace:
#   manifest: "./kctx.toml"
#   cache_root: "~/.cache/kctx/repos"

query:
  overall_timeout: "5m"
  fetch_timeout: "30s"
  poll_interval: "2s"
  max_poll_attempts: 30
  heartbeat_window: "90s"
  summary_timeout_multiplier: 3

logging:
  level: "info"
  format: "console"
`
	if err := os.WriteFile(configPath, []byte(starter), 0644); err != nil {
		return fmt.Errorf("writing config: %w", err)
	}

	cyan := color.New(color.FgCyan)
	cyan.Print(banner)
	fmt.Printf("Created %s\n", configPath)
	return nil
}

func runHealth(ctx context.Context) error {
	cfg, err := loadConfig()
	if err != nil {
		return err
	}

	ctx, cancel := context.WithTimeout(ctx, 10*time.Second)
	defer cancel()

	client := opencode.New(cfg.Agent.URL, setupLogger(cfg.Logging))
	if err := client.Health(ctx); err != nil {
		return fmt.Errorf("agent server at %s is unhealthy: %w", cfg.Agent.URL, err)
	}
	fmt.Printf("healthy: %s\n", cfg.Agent.URL)
	return nil
}

func setupLogger(cfg config.LoggingConfig) *slog.Logger {
	var level slog.Level
	switch cfg.Level {
	case "debug":
		level = slog.LevelDebug
	case "info":
		level = slog.LevelInfo
	case "warn":
		level = slog.LevelWarn
	case "error":
		level = slog.LevelError
	default:
		level = slog.LevelInfo
	}

	opts := &slog.HandlerOptions{
		Level: level,
	}

	var handler slog.Handler
	if cfg.Format == "json" {
		handler = slog.NewJSONHandler(os.Stderr, opts)
	} else {
		handler = &colorHandler{
			level: level,
		}
	}

	return slog.New(handler)
}

// colorHandler provides colorized log output with thread-safe writes.
// Logs go to stderr so answers on stdout stay clean for piping.
type colorHandler struct {
	mu     sync.Mutex
	level  slog.Level
	attrs  []slog.Attr
	groups []string
}

func (h *colorHandler) Enabled(_ context.Context, level slog.Level) bool {
	return level >= h.level
}

func (h *colorHandler) Handle(_ context.Context, r slog.Record) error {
	h.mu.Lock()
	defer h.mu.Unlock()

	var buf strings.Builder

	// Format timestamp
	buf.WriteString(color.HiBlackString(r.Time.Format("15:04:05") + " "))

	// Colorize level
	switch r.Level {
	case slog.LevelDebug:
		buf.WriteString(color.MagentaString("DBG "))
	case slog.LevelInfo:
		buf.WriteString(color.CyanString("INF "))
	case slog.LevelWarn:
		buf.WriteString(color.YellowString("WRN "))
	case slog.LevelError:
		buf.WriteString(color.New(color.FgRed, color.Bold).Sprint("ERR "))
	default:
		buf.WriteString("??? ")
	}

	// Print message
	buf.WriteString(r.Message)

	// Print handler-level attrs first (from WithAttrs)
	for _, a := range h.attrs {
		buf.WriteString(color.HiBlackString(" " + a.Key + "="))
		buf.WriteString(a.Value.String())
	}

	// Print record attrs
	r.Attrs(func(a slog.Attr) bool {
		buf.WriteString(color.HiBlackString(" " + a.Key + "="))
		buf.WriteString(a.Value.String())
		return true
	})

	buf.WriteString("\n")
	fmt.Fprint(os.Stderr, buf.String())
	return nil
}

func (h *colorHandler) WithAttrs(attrs []slog.Attr) slog.Handler {
	newAttrs := make([]slog.Attr, len(h.attrs), len(h.attrs)+len(attrs))
	copy(newAttrs, h.attrs)
	newAttrs = append(newAttrs, attrs...)
	return &colorHandler{
		level:  h.level,
		attrs:  newAttrs,
		groups: h.groups,
	}
}

func (h *colorHandler) WithGroup(name string) slog.Handler {
	newGroups := make([]string, len(h.groups), len(h.groups)+1)
	copy(newGroups, h.groups)
	newGroups = append(newGroups, name)
	return &colorHandler{
		level:  h.level,
		attrs:  h.attrs,
		groups: newGroups,
	}
}
