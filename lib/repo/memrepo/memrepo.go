// Package memrepo is an in-memory commit graph implementing repo.Repository, for tests and
// for tools that build histories programmatically.
package memrepo

import (
	"crypto/sha1"
	"encoding/hex"
	"errors"
	"fmt"
	"sort"
	"strings"
	"sync"
	"time"
	"unicode/utf8"

	"github.com/samber/lo"

	"github.com/pescuma/clam/lib/repo"
)

type Repository struct {
	mutex   sync.RWMutex
	commits map[repo.OID]*entry
	trees   map[repo.OID]map[string]string
	mailmap *repo.Mailmap
	counter int
}

type entry struct {
	commit *repo.Commit
	signed bool
}

func New() *Repository {
	return &Repository{
		commits: map[repo.OID]*entry{},
		trees:   map[repo.OID]map[string]string{},
		mailmap: repo.NewMailmap(),
	}
}

func (r *Repository) SetMailmap(m *repo.Mailmap) {
	r.mutex.Lock()
	defer r.mutex.Unlock()

	r.mailmap = m
}

// CommitBuilder describes a commit. Files holds the full tree: path -> content.
type CommitBuilder struct {
	r *Repository

	parents   []repo.OID
	author    repo.Signature
	committer *repo.Signature
	message   string
	files     map[string]string
	signed    bool
}

func (r *Repository) Commit(id repo.OID) (*repo.Commit, error) {
	r.mutex.RLock()
	defer r.mutex.RUnlock()

	e, ok := r.commits[id]
	if !ok {
		return nil, repo.Wrap(repo.ErrNotFound, "read commit", id)
	}

	c := *e.commit
	c.Parents = append([]repo.OID(nil), e.commit.Parents...)
	return &c, nil
}

// NewCommit starts a commit on top of parents. Without Files the tree of the first parent is kept.
func (r *Repository) NewCommit(parents ...repo.OID) *CommitBuilder {
	return &CommitBuilder{
		r:       r,
		parents: parents,
		author: repo.Signature{
			Name:  "Author",
			Email: "author@example.com",
		},
	}
}

func (b *CommitBuilder) Author(name, email string, when time.Time) *CommitBuilder {
	b.author = repo.Signature{Name: name, Email: email, When: when}
	return b
}

func (b *CommitBuilder) Committer(name, email string, when time.Time) *CommitBuilder {
	b.committer = &repo.Signature{Name: name, Email: email, When: when}
	return b
}

// At sets both author and commit time.
func (b *CommitBuilder) At(when time.Time) *CommitBuilder {
	b.author.When = when
	if b.committer != nil {
		b.committer.When = when
	}
	return b
}

func (b *CommitBuilder) Message(msg string) *CommitBuilder {
	b.message = msg
	return b
}

func (b *CommitBuilder) Signed() *CommitBuilder {
	b.signed = true
	return b
}

func (b *CommitBuilder) Files(files map[string]string) *CommitBuilder {
	b.files = files
	return b
}

// Set changes one file relative to the inherited tree.
func (b *CommitBuilder) Set(path, content string) *CommitBuilder {
	b.ensureFiles()
	b.files[path] = content
	return b
}

// Remove deletes one file relative to the inherited tree.
func (b *CommitBuilder) Remove(path string) *CommitBuilder {
	b.ensureFiles()
	delete(b.files, path)
	return b
}

func (b *CommitBuilder) ensureFiles() {
	if b.files != nil {
		return
	}

	b.files = map[string]string{}
	if len(b.parents) == 0 {
		return
	}

	b.r.mutex.RLock()
	defer b.r.mutex.RUnlock()

	if p, ok := b.r.commits[b.parents[0]]; ok {
		for k, v := range b.r.trees[p.commit.Tree] {
			b.files[k] = v
		}
	}
}

func (b *CommitBuilder) Create() repo.OID {
	b.ensureFiles()

	r := b.r
	r.mutex.Lock()
	defer r.mutex.Unlock()

	for _, p := range b.parents {
		if _, ok := r.commits[p]; !ok {
			panic(fmt.Sprintf("unknown parent %v", p))
		}
	}

	committer := b.author
	if b.committer != nil {
		committer = *b.committer
	}

	tree := hashTree(b.files)
	r.trees[tree] = lo.Assign(b.files)

	r.counter++
	id := hashOf(fmt.Sprintf("commit %v %v %v %v", r.counter, tree, b.parents, b.message))

	r.commits[id] = &entry{
		commit: &repo.Commit{
			ID:        id,
			Parents:   append([]repo.OID(nil), b.parents...),
			Tree:      tree,
			Author:    b.author,
			Committer: committer,
			Message:   b.message,
		},
		signed: b.signed,
	}

	return id
}

func (r *Repository) DiffTrees(from repo.OID, to repo.OID) ([]repo.PathChange, error) {
	r.mutex.RLock()
	defer r.mutex.RUnlock()

	var fromFiles map[string]string
	if !from.IsZero() {
		var ok bool
		fromFiles, ok = r.trees[from]
		if !ok {
			return nil, repo.Wrap(repo.ErrNotFound, "read tree", from)
		}
	}

	toFiles, ok := r.trees[to]
	if !ok {
		return nil, repo.Wrap(repo.ErrNotFound, "read tree", to)
	}

	var result []repo.PathChange
	for path, content := range toFiles {
		old, existed := fromFiles[path]
		switch {
		case !existed:
			result = append(result, repo.PathChange{Path: path, Kind: repo.Created})
		case old != content:
			result = append(result, repo.PathChange{Path: path, Kind: repo.Modified})
		}
	}
	for path := range fromFiles {
		if _, ok := toFiles[path]; !ok {
			result = append(result, repo.PathChange{Path: path, Kind: repo.Deleted})
		}
	}

	for _, c := range result {
		if !utf8.ValidString(c.Path) {
			return nil, repo.ErrNonUTF8Path
		}
	}

	sort.Slice(result, func(i, j int) bool { return result[i].Path < result[j].Path })
	return result, nil
}

// Ancestors walks depth first, following parents in order.
func (r *Repository) Ancestors(from repo.OID, fn func(repo.OID) error) error {
	seen := map[repo.OID]bool{}
	stack := []repo.OID{from}

	for len(stack) > 0 {
		id := stack[len(stack)-1]
		stack = stack[:len(stack)-1]

		if seen[id] {
			continue
		}
		seen[id] = true

		c, err := r.Commit(id)
		if err != nil {
			return err
		}

		err = fn(id)
		if errors.Is(err, repo.ErrStopWalk) {
			return nil
		} else if err != nil {
			return err
		}

		for i := len(c.Parents) - 1; i >= 0; i-- {
			if !seen[c.Parents[i]] {
				stack = append(stack, c.Parents[i])
			}
		}
	}

	return nil
}

func (r *Repository) VerifySignature(id repo.OID) (bool, error) {
	r.mutex.RLock()
	defer r.mutex.RUnlock()

	e, ok := r.commits[id]
	if !ok {
		return false, repo.Wrap(repo.ErrNotFound, "read commit", id)
	}

	return e.signed, nil
}

func (r *Repository) ResolveIdentity(name string, email string) repo.Identity {
	r.mutex.RLock()
	defer r.mutex.RUnlock()

	name, email = r.mailmap.Resolve(name, email)
	return repo.Identity{Name: name, Email: email}
}

// List returns all commit ids, in no particular order.
func (r *Repository) List() []repo.OID {
	r.mutex.RLock()
	defer r.mutex.RUnlock()

	return lo.Keys(r.commits)
}

func hashTree(files map[string]string) repo.OID {
	keys := lo.Keys(files)
	sort.Strings(keys)

	var sb strings.Builder
	sb.WriteString("tree")
	for _, k := range keys {
		sb.WriteString("\x00")
		sb.WriteString(k)
		sb.WriteString("\x00")
		sb.WriteString(files[k])
	}

	return hashOf(sb.String())
}

func hashOf(s string) repo.OID {
	h := sha1.Sum([]byte(s))
	return repo.OID(hex.EncodeToString(h[:]))
}
