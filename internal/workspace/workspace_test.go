package workspace

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/spf13/afero"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/opencode-ai/emigo/pkg/types"
)

func newFixture(t *testing.T) afero.Fs {
	t.Helper()
	fs := afero.NewMemMapFs()
	require.NoError(t, fs.MkdirAll("/repo/.git", 0755))
	require.NoError(t, fs.MkdirAll("/repo/src/pkg", 0755))
	require.NoError(t, afero.WriteFile(fs, "/repo/main.py", []byte("print(1)\n"), 0644))
	require.NoError(t, afero.WriteFile(fs, "/repo/src/pkg/util.py", []byte("x = 1\n"), 0644))
	require.NoError(t, fs.MkdirAll("/scratch/notes", 0755))
	require.NoError(t, afero.WriteFile(fs, "/scratch/notes/todo.md", []byte("- item\n"), 0644))
	return fs
}

func TestResolve(t *testing.T) {
	r := NewResolver(newFixture(t))

	tests := []struct {
		name       string
		identifier string
		want       string
	}{
		{"root directory", "/repo", "/repo"},
		{"trailing slash", "/repo/", "/repo"},
		{"nested directory", "/repo/src/pkg", "/repo"},
		{"file in repo", "/repo/src/pkg/util.py", "/repo"},
		{"non-vcs directory", "/scratch/notes", "/scratch/notes"},
		{"non-vcs file", "/scratch/notes/todo.md", "/scratch/notes"},
		{"surrounding whitespace", "  /repo/main.py ", "/repo"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, err := r.Resolve(tt.identifier)
			require.NoError(t, err)
			assert.Equal(t, tt.want, got)
		})
	}
}

func TestResolve_Errors(t *testing.T) {
	r := NewResolver(newFixture(t))

	for _, identifier := range []string{"", "   ", "/does/not/exist"} {
		_, err := r.Resolve(identifier)
		require.Error(t, err, identifier)

		var resErr *types.ResolutionError
		require.ErrorAs(t, err, &resErr)
		assert.Equal(t, types.KindResolution, types.KindOf(err))
	}
}

func TestResolve_GitFile(t *testing.T) {
	fs := afero.NewMemMapFs()
	require.NoError(t, fs.MkdirAll("/wt/sub", 0755))
	require.NoError(t, afero.WriteFile(fs, "/wt/.git", []byte("gitdir: /repo/.git/worktrees/wt\n"), 0644))

	got, err := NewResolver(fs).Resolve("/wt/sub")
	require.NoError(t, err)
	assert.Equal(t, "/wt", got)
}

func TestResolve_CacheByDirectory(t *testing.T) {
	fs := newFixture(t)
	r := NewResolver(fs)

	for _, id := range []string{"/repo/main.py", "/repo", "/repo/"} {
		root, err := r.Resolve(id)
		require.NoError(t, err)
		assert.Equal(t, "/repo", root)
	}
	assert.Len(t, r.cache, 1, "files and their directory share one entry")

	_, err := r.Resolve("/repo/src/pkg/util.py")
	require.NoError(t, err)
	assert.Len(t, r.cache, 2)
	assert.Equal(t, "/repo", r.cache["/repo/src/pkg"])
}

func TestResolve_ChecksIdentifierEveryTime(t *testing.T) {
	fs := newFixture(t)
	r := NewResolver(fs)

	root, err := r.Resolve("/repo/main.py")
	require.NoError(t, err)
	assert.Equal(t, "/repo", root)

	require.NoError(t, fs.Remove("/repo/main.py"))
	_, err = r.Resolve("/repo/main.py")
	assert.Equal(t, types.KindResolution, types.KindOf(err))

	root, err = r.Resolve("/repo")
	require.NoError(t, err)
	assert.Equal(t, "/repo", root)

	require.NoError(t, fs.RemoveAll("/repo/.git"))
	r.Forget("/repo")
	root, err = r.Resolve("/repo/src/pkg")
	require.NoError(t, err)
	assert.Equal(t, "/repo/src/pkg", root)
}

func TestResolve_Symlinks(t *testing.T) {
	dir, err := filepath.EvalSymlinks(t.TempDir())
	require.NoError(t, err)

	repo := filepath.Join(dir, "repo")
	require.NoError(t, os.MkdirAll(filepath.Join(repo, ".git"), 0755))
	require.NoError(t, os.MkdirAll(filepath.Join(repo, "src"), 0755))
	require.NoError(t, os.WriteFile(filepath.Join(repo, "src", "main.go"), []byte("package main\n"), 0644))

	link := filepath.Join(dir, "link")
	if err := os.Symlink(repo, link); err != nil {
		t.Skipf("symlinks unavailable: %v", err)
	}
	relLink := filepath.Join(dir, "rel")
	require.NoError(t, os.Symlink(filepath.Join("repo", "src"), relLink))

	r := NewResolver(afero.NewReadOnlyFs(afero.NewOsFs()))
	for _, id := range []string{
		repo,
		link,
		filepath.Join(link, "src", "main.go"),
		filepath.Join(relLink, "main.go"),
		filepath.Join(link, "src", "..", "src"),
	} {
		root, err := r.Resolve(id)
		require.NoError(t, err, id)
		assert.Equal(t, repo, root, id)
	}
}

func TestContains(t *testing.T) {
	assert.True(t, Contains("/repo", "/repo/main.py"))
	assert.True(t, Contains("/repo", "/repo/a/b/c.go"))
	assert.True(t, Contains("/repo", "/repo/..hidden"))
	assert.False(t, Contains("/repo", "/repo2/main.py"))
	assert.False(t, Contains("/repo", "/etc/passwd"))
	assert.False(t, Contains("/repo/src", "/repo/main.py"))
}
