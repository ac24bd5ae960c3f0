package gitrepo

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/go-git/go-billy/v5/osfs"
	"github.com/go-git/go-git/v5"
	"github.com/go-git/go-git/v5/plumbing"
	"github.com/go-git/go-git/v5/plumbing/cache"
	"github.com/go-git/go-git/v5/storage/filesystem"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/pescuma/clam/lib/repo"
)

// newServer creates a bare repository with one commit on master.
func newServer(t *testing.T) (string, plumbing.Hash) {
	dir := t.TempDir()

	bare, err := git.PlainInit(dir, true)
	require.NoError(t, err)

	c1, _ := storeFiles(t, bare.Storer, nil, map[string]string{"README": "readme"})
	require.NoError(t, bare.Storer.SetReference(plumbing.NewHashReference("refs/heads/master", c1)))

	return dir, c1
}

func TestOpenBare(t *testing.T) {
	t.Parallel()

	dir, c1 := newServer(t)

	r, err := Open(dir)
	require.NoError(t, err)
	defer r.Close()

	head, err := r.Resolve("")
	require.NoError(t, err)
	assert.Equal(t, repo.OID(c1.String()), head)
}

func TestOpenInsideWorktree(t *testing.T) {
	t.Parallel()

	dir := t.TempDir()
	_, err := git.PlainInit(dir, false)
	require.NoError(t, err)

	sub := filepath.Join(dir, "docs")
	require.NoError(t, os.Mkdir(sub, 0o755))

	r, err := Open(sub)
	require.NoError(t, err)
	assert.NoError(t, r.Close())
}

func TestOpenFromEnvWithQuarantine(t *testing.T) {
	dir, c1 := newServer(t)

	qroot := t.TempDir()
	incoming := filesystem.NewStorage(osfs.New(qroot), cache.NewObjectLRUDefault())
	c2, _ := storeFiles(t, incoming, []plumbing.Hash{c1}, map[string]string{"README": "readme", "a.org": "a"})

	t.Setenv("GIT_DIR", dir)
	t.Setenv("GIT_OBJECT_DIRECTORY", "")
	t.Setenv("GIT_QUARANTINE_PATH", filepath.Join(qroot, "objects"))

	r, err := OpenFromEnv()
	require.NoError(t, err)

	pushed, err := r.Commit(repo.OID(c2.String()))
	require.NoError(t, err)
	assert.Equal(t, []repo.OID{repo.OID(c1.String())}, pushed.Parents)

	accepted, err := r.Commit(repo.OID(c1.String()))
	require.NoError(t, err)

	changes, err := r.DiffTrees(accepted.Tree, pushed.Tree)
	require.NoError(t, err)
	assert.Equal(t, []repo.PathChange{{Path: "a.org", Kind: repo.Created}}, changes)

	require.NoError(t, r.Close())

	// The main store alone never sees the pushed commit
	plain, err := Open(dir)
	require.NoError(t, err)

	_, err = plain.Commit(repo.OID(c2.String()))
	var re *repo.Error
	assert.ErrorAs(t, err, &re)
}

func TestOpenFromEnvWithoutQuarantine(t *testing.T) {
	dir, c1 := newServer(t)

	t.Setenv("GIT_DIR", dir)
	t.Setenv("GIT_OBJECT_DIRECTORY", "")
	t.Setenv("GIT_QUARANTINE_PATH", "")

	r, err := OpenFromEnv()
	require.NoError(t, err)
	defer r.Close()

	_, err = r.Commit(repo.OID(c1.String()))
	assert.NoError(t, err)
}
