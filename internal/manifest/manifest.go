// ABOUTME: kctx.toml workspace manifest: the repositories questions can target
// ABOUTME: Loads TOML with validation; repositories are looked up by name

package manifest

import (
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"github.com/BurntSushi/toml"
)

// Repository kinds.
const (
	KindLocal = "local"
	KindGit   = "git"
)

// Repository is one entry a question can target by name.
type Repository struct {
	Name string `toml:"name"`

	// Kind is "local" (a directory on disk) or "git" (a clone-backed
	// repository shared through the cache).
	Kind string `toml:"kind"`

	// Path is the checkout directory for local repositories.
	Path string `toml:"path"`

	// URL and Revision describe git repositories.
	URL      string `toml:"url"`
	Revision string `toml:"revision"`

	// Provider and Model override the configured default model.
	Provider string `toml:"provider"`
	Model    string `toml:"model"`
}

// Manifest is the parsed kctx.toml.
type Manifest struct {
	Repositories []Repository `toml:"repository"`
}

// Load reads and validates a manifest file.
func Load(path string) (*Manifest, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("reading manifest: %w", err)
	}

	var m Manifest
	if _, err := toml.Decode(string(data), &m); err != nil {
		return nil, fmt.Errorf("parsing manifest: %w", err)
	}

	if err := m.Validate(); err != nil {
		return nil, fmt.Errorf("validating manifest: %w", err)
	}

	for i := range m.Repositories {
		m.Repositories[i].Path = expandHome(m.Repositories[i].Path)
	}
	return &m, nil
}

// Validate checks every entry and rejects duplicate names.
func (m *Manifest) Validate() error {
	seen := make(map[string]bool, len(m.Repositories))
	for i, repo := range m.Repositories {
		if repo.Name == "" {
			return fmt.Errorf("repository %d: name is required", i)
		}
		if seen[repo.Name] {
			return fmt.Errorf("repository %q: duplicate name", repo.Name)
		}
		seen[repo.Name] = true

		switch repo.Kind {
		case KindLocal, "":
			if repo.Path == "" {
				return fmt.Errorf("repository %q: path is required for local repositories", repo.Name)
			}
		case KindGit:
			if repo.URL == "" {
				return fmt.Errorf("repository %q: url is required for git repositories", repo.Name)
			}
		default:
			return fmt.Errorf("repository %q: unknown kind %q", repo.Name, repo.Kind)
		}

		if (repo.Provider == "") != (repo.Model == "") {
			return fmt.Errorf("repository %q: provider and model must be set together", repo.Name)
		}
	}
	return nil
}

// Lookup returns the repository with the given name.
func (m *Manifest) Lookup(name string) (*Repository, bool) {
	for i := range m.Repositories {
		if m.Repositories[i].Name == name {
			return &m.Repositories[i], true
		}
	}
	return nil, false
}

// EffectiveKind normalizes the entry's kind; an empty kind means local.
func (r *Repository) EffectiveKind() string {
	if r.Kind == "" {
		return KindLocal
	}
	return r.Kind
}

// expandHome resolves a leading ~/ against the user's home directory.
func expandHome(path string) string {
	if path == "~" || strings.HasPrefix(path, "~/") {
		home, err := os.UserHomeDir()
		if err != nil {
			return path
		}
		return filepath.Join(home, strings.TrimPrefix(path, "~"))
	}
	return path
}
