// ABOUTME: Tests for manifest parsing, validation, and name lookup.

package manifest

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func writeManifest(t *testing.T, content string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "kctx.toml")
	require.NoError(t, os.WriteFile(path, []byte(content), 0644))
	return path
}

func TestLoad_ValidManifest(t *testing.T) {
	path := writeManifest(t, `
[[repository]]
name = "chi"
kind = "git"
url = "https://github.com/go-chi/chi"
revision = "v5.0.12"

[[repository]]
name = "myapp"
path = "/home/dev/src/myapp"
provider = "anthropic"
model = "claude-sonnet-4-5"
`)

	m, err := Load(path)
	require.NoError(t, err)
	require.Len(t, m.Repositories, 2)

	chi, ok := m.Lookup("chi")
	require.True(t, ok)
	assert.Equal(t, KindGit, chi.EffectiveKind())
	assert.Equal(t, "https://github.com/go-chi/chi", chi.URL)
	assert.Equal(t, "v5.0.12", chi.Revision)

	app, ok := m.Lookup("myapp")
	require.True(t, ok)
	assert.Equal(t, KindLocal, app.EffectiveKind(), "omitted kind means local")
	assert.Equal(t, "anthropic", app.Provider)

	_, ok = m.Lookup("missing")
	assert.False(t, ok)
}

func TestLoad_ExpandsHomePath(t *testing.T) {
	path := writeManifest(t, `
[[repository]]
name = "dotfiles"
path = "~/dotfiles"
`)

	m, err := Load(path)
	require.NoError(t, err)

	home, err := os.UserHomeDir()
	require.NoError(t, err)
	assert.Equal(t, filepath.Join(home, "dotfiles"), m.Repositories[0].Path)
}

func TestValidate_Rejections(t *testing.T) {
	cases := []struct {
		name    string
		content string
		wantErr string
	}{
		{
			name:    "missing name",
			content: "[[repository]]\npath = \"/x\"\n",
			wantErr: "name is required",
		},
		{
			name: "duplicate name",
			content: `
[[repository]]
name = "dup"
path = "/a"
[[repository]]
name = "dup"
path = "/b"
`,
			wantErr: "duplicate name",
		},
		{
			name:    "local without path",
			content: "[[repository]]\nname = \"x\"\nkind = \"local\"\n",
			wantErr: "path is required",
		},
		{
			name:    "git without url",
			content: "[[repository]]\nname = \"x\"\nkind = \"git\"\n",
			wantErr: "url is required",
		},
		{
			name:    "unknown kind",
			content: "[[repository]]\nname = \"x\"\nkind = \"svn\"\npath = \"/x\"\n",
			wantErr: "unknown kind",
		},
		{
			name:    "provider without model",
			content: "[[repository]]\nname = \"x\"\npath = \"/x\"\nprovider = \"anthropic\"\n",
			wantErr: "must be set together",
		},
	}

	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			_, err := Load(writeManifest(t, tc.content))
			require.Error(t, err)
			assert.Contains(t, err.Error(), tc.wantErr)
		})
	}
}
