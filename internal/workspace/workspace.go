// ABOUTME: Resolves manifest repositories to usable local directories.
// ABOUTME: Clone-backed repositories share one cache slot per normalized URL.

package workspace

import (
	"fmt"
	"log/slog"
	"net/url"
	"os"
	"path/filepath"
	"strings"

	"github.com/christopher-kapic/kinetic-context/internal/manifest"
)

// NotMaterializedError reports that a clone-backed repository has no local
// copy yet. Expected is where one is looked for.
type NotMaterializedError struct {
	Name     string
	URL      string
	Expected string
}

func (e *NotMaterializedError) Error() string {
	return fmt.Sprintf("workspace: repository %q (%s) is not materialized; expected a checkout at %s", e.Name, e.URL, e.Expected)
}

// Resolver turns manifest entries into local directories a query can run
// against. Acquiring clones is external tooling's job; the resolver only
// validates what exists and computes where clones belong.
type Resolver struct {
	cacheRoot string
	logger    *slog.Logger
}

func NewResolver(cacheRoot string, logger *slog.Logger) *Resolver {
	if logger == nil {
		logger = slog.Default()
	}
	if cacheRoot == "" {
		cacheRoot = defaultCacheRoot()
	}
	return &Resolver{
		cacheRoot: cacheRoot,
		logger:    logger.With("component", "workspace"),
	}
}

// CacheRoot returns the directory clone-backed repositories live under.
func (r *Resolver) CacheRoot() string {
	return r.cacheRoot
}

// Resolve returns the absolute local directory for a manifest entry.
// Local entries must exist on disk; git entries resolve to their shared
// cache slot and yield NotMaterializedError when that slot is empty.
func (r *Resolver) Resolve(repo *manifest.Repository) (string, error) {
	switch repo.EffectiveKind() {
	case manifest.KindLocal:
		return r.resolveLocal(repo)
	case manifest.KindGit:
		return r.resolveGit(repo)
	default:
		return "", fmt.Errorf("workspace: repository %q: unknown kind %q", repo.Name, repo.Kind)
	}
}

// CheckoutRevision pins a clone-backed checkout to the entry's revision.
// Best-effort: the checkout itself is delegated to external git tooling,
// so this only verifies the path is a usable directory.
func (r *Resolver) CheckoutRevision(localPath, revision string) error {
	if revision == "" {
		return nil
	}
	info, err := os.Stat(localPath)
	if err != nil {
		return fmt.Errorf("workspace: checking %s: %w", localPath, err)
	}
	if !info.IsDir() {
		return fmt.Errorf("workspace: %s is not a directory", localPath)
	}
	r.logger.Debug("revision pinning delegated to external tooling",
		"path", localPath, "revision", revision)
	return nil
}

func (r *Resolver) resolveLocal(repo *manifest.Repository) (string, error) {
	abs, err := filepath.Abs(repo.Path)
	if err != nil {
		return "", fmt.Errorf("workspace: repository %q: %w", repo.Name, err)
	}
	info, err := os.Stat(abs)
	if err != nil {
		return "", fmt.Errorf("workspace: repository %q at %s: %w", repo.Name, abs, err)
	}
	if !info.IsDir() {
		return "", fmt.Errorf("workspace: repository %q: %s is not a directory", repo.Name, abs)
	}
	return abs, nil
}

func (r *Resolver) resolveGit(repo *manifest.Repository) (string, error) {
	slot, err := NormalizeRemoteURL(repo.URL)
	if err != nil {
		return "", fmt.Errorf("workspace: repository %q: %w", repo.Name, err)
	}

	expected := filepath.Join(r.cacheRoot, filepath.FromSlash(slot))
	info, err := os.Stat(expected)
	if err != nil || !info.IsDir() {
		return "", &NotMaterializedError{Name: repo.Name, URL: repo.URL, Expected: expected}
	}
	return expected, nil
}

// NormalizeRemoteURL maps equivalent remote URL spellings onto one cache
// slot ("host/path"), so every manifest referencing the same repository
// shares a single local copy.
//
//	https://github.com/go-chi/chi.git -> github.com/go-chi/chi
//	git@github.com:go-chi/chi         -> github.com/go-chi/chi
func NormalizeRemoteURL(remote string) (string, error) {
	remote = strings.TrimSpace(remote)
	if remote == "" {
		return "", fmt.Errorf("empty remote url")
	}

	// scp-like syntax: git@host:path
	if at := strings.Index(remote, "@"); at >= 0 && !strings.Contains(remote, "://") {
		rest := remote[at+1:]
		host, path, ok := strings.Cut(rest, ":")
		if !ok || host == "" || path == "" {
			return "", fmt.Errorf("unparseable remote url %q", remote)
		}
		return joinSlot(host, path), nil
	}

	u, err := url.Parse(remote)
	if err != nil {
		return "", fmt.Errorf("parsing remote url %q: %w", remote, err)
	}
	if u.Host == "" || u.Path == "" {
		return "", fmt.Errorf("unparseable remote url %q", remote)
	}
	return joinSlot(u.Host, u.Path), nil
}

func joinSlot(host, path string) string {
	host = strings.ToLower(host)
	path = strings.Trim(path, "/")
	path = strings.TrimSuffix(path, ".git")
	return host + "/" + path
}

func defaultCacheRoot() string {
	if cacheDir := os.Getenv("XDG_CACHE_HOME"); cacheDir != "" {
		return filepath.Join(cacheDir, "kctx", "repos")
	}
	home, err := os.UserHomeDir()
	if err != nil {
		return filepath.Join("cache", "repos")
	}
	return filepath.Join(home, ".cache", "kctx", "repos")
}
