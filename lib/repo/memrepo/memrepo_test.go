package memrepo

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/pescuma/clam/lib/repo"
)

func TestDiffTrees(t *testing.T) {
	t.Parallel()

	r := New()
	root := r.NewCommit().Files(map[string]string{"a": "1", "b": "1"}).Create()
	next := r.NewCommit(root).Set("a", "2").Remove("b").Set("c", "1").Create()

	rc, err := r.Commit(root)
	require.NoError(t, err)
	nc, err := r.Commit(next)
	require.NoError(t, err)

	changes, err := r.DiffTrees(repo.ZeroOID, rc.Tree)
	require.NoError(t, err)
	assert.Equal(t, []repo.PathChange{{Path: "a", Kind: repo.Created}, {Path: "b", Kind: repo.Created}}, changes)

	changes, err = r.DiffTrees(rc.Tree, nc.Tree)
	require.NoError(t, err)
	assert.Equal(t, []repo.PathChange{
		{Path: "a", Kind: repo.Modified},
		{Path: "b", Kind: repo.Deleted},
		{Path: "c", Kind: repo.Created},
	}, changes)
}

func TestAncestorsVisitsEachCommitOnce(t *testing.T) {
	t.Parallel()

	r := New()
	base := r.NewCommit().Set("a", "1").Create()
	left := r.NewCommit(base).Set("l", "1").Create()
	right := r.NewCommit(base).Set("r", "1").Create()
	merge := r.NewCommit(left, right).Set("r", "1").Create()

	var visited []repo.OID
	err := r.Ancestors(merge, func(id repo.OID) error {
		visited = append(visited, id)
		return nil
	})
	require.NoError(t, err)

	assert.ElementsMatch(t, []repo.OID{base, left, right, merge}, visited)
	assert.Equal(t, merge, visited[0])
}

func TestAncestorsStops(t *testing.T) {
	t.Parallel()

	r := New()
	a := r.NewCommit().Set("a", "1").Create()
	b := r.NewCommit(a).Set("a", "2").Create()

	count := 0
	err := r.Ancestors(b, func(repo.OID) error {
		count++
		return repo.ErrStopWalk
	})

	assert.NoError(t, err)
	assert.Equal(t, 1, count)
}

func TestCommitDefaults(t *testing.T) {
	t.Parallel()

	when := time.Date(2020, 1, 1, 0, 0, 0, 0, time.UTC)
	r := New()
	id := r.NewCommit().Author("Jane", "jane@example.com", when).Message("first").Signed().Set("a", "1").Create()

	c, err := r.Commit(id)
	require.NoError(t, err)
	assert.True(t, c.IsRoot())
	assert.Equal(t, c.Author, c.Committer)
	assert.Equal(t, "first", c.Message)

	signed, err := r.VerifySignature(id)
	require.NoError(t, err)
	assert.True(t, signed)

	_, err = r.Commit(repo.MustParseOID("1111111111111111111111111111111111111111"))
	var re *repo.Error
	assert.ErrorAs(t, err, &re)
}
