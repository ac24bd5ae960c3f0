// Package gitrepo implements repo.Repository on top of an on-disk (or in-memory) git
// repository using go-git.
package gitrepo

import (
	"context"
	"io"
	"strings"
	"sync"
	"unicode/utf8"

	"github.com/go-git/go-git/v5"
	"github.com/go-git/go-git/v5/plumbing"
	"github.com/go-git/go-git/v5/plumbing/object"
	"github.com/go-git/go-git/v5/plumbing/storer"
	"github.com/go-git/go-git/v5/utils/merkletrie"
	"github.com/pkg/errors"

	"github.com/pescuma/clam/lib/caches"
	"github.com/pescuma/clam/lib/repo"
)

type Repository struct {
	// go-git objects are not safe for concurrent use
	mutex   sync.Mutex
	git     *git.Repository
	commits caches.Cache[repo.OID, *repo.Commit]
	mailmap *repo.Mailmap
	keyring string
	cleanup func() error
}

type options struct {
	mailmapFile string
	keyring     string
	noMailmap   bool
}

type Option func(*options)

// WithMailmapFile reads aliases from a file instead of the repository .mailmap.
func WithMailmapFile(path string) Option {
	return func(o *options) {
		o.mailmapFile = path
	}
}

func WithoutMailmap() Option {
	return func(o *options) {
		o.noMailmap = true
	}
}

// WithKeyring makes VerifySignature check signatures against an armored OpenPGP keyring.
// Without it, any signed commit counts as signed.
func WithKeyring(armored string) Option {
	return func(o *options) {
		o.keyring = armored
	}
}

// Open opens a bare repository, a worktree, or any directory inside a worktree.
func Open(dir string, opts ...Option) (*Repository, error) {
	gitRepo, err := git.PlainOpenWithOptions(dir, &git.PlainOpenOptions{})
	if errors.Is(err, git.ErrRepositoryNotExists) {
		gitRepo, err = git.PlainOpenWithOptions(dir, &git.PlainOpenOptions{DetectDotGit: true})
	}
	if err != nil {
		return nil, errors.Wrapf(err, "could not open git repository at %v", dir)
	}

	return New(gitRepo, opts...)
}

func New(gitRepo *git.Repository, opts ...Option) (*Repository, error) {
	o := options{}
	for _, opt := range opts {
		opt(&o)
	}

	result := &Repository{
		git:     gitRepo,
		commits: caches.NewUnlimited[repo.OID, *repo.Commit](),
		keyring: o.keyring,
	}

	if o.noMailmap {
		result.mailmap = repo.NewMailmap()
	} else {
		mm, err := loadMailmap(gitRepo, o.mailmapFile)
		if err != nil {
			return nil, err
		}
		result.mailmap = mm
	}

	return result, nil
}

func (r *Repository) Close() error {
	if r.cleanup == nil {
		return nil
	}
	return r.cleanup()
}

// Resolve turns a revision (HEAD, branch, tag, hash) into a commit id.
func (r *Repository) Resolve(rev string) (repo.OID, error) {
	r.mutex.Lock()
	defer r.mutex.Unlock()

	if rev == "" {
		rev = "HEAD"
	}

	hash, err := r.git.ResolveRevision(plumbing.Revision(rev))
	if err != nil {
		return "", errors.Wrapf(err, "could not resolve revision %v", rev)
	}

	return repo.OID(hash.String()), nil
}

func (r *Repository) Commit(id repo.OID) (*repo.Commit, error) {
	return r.commits.Get(id, r.loadCommit)
}

func (r *Repository) loadCommit(id repo.OID) (*repo.Commit, error) {
	r.mutex.Lock()
	defer r.mutex.Unlock()

	gitCommit, err := r.git.CommitObject(plumbing.NewHash(string(id)))
	if err != nil {
		return nil, repo.Wrap(err, "read commit", id)
	}

	return toCommit(gitCommit), nil
}

func toCommit(gitCommit *object.Commit) *repo.Commit {
	parents := make([]repo.OID, 0, len(gitCommit.ParentHashes))
	for _, p := range gitCommit.ParentHashes {
		parents = append(parents, repo.OID(p.String()))
	}

	return &repo.Commit{
		ID:        repo.OID(gitCommit.Hash.String()),
		Parents:   parents,
		Tree:      repo.OID(gitCommit.TreeHash.String()),
		Author:    toSignature(gitCommit.Author),
		Committer: toSignature(gitCommit.Committer),
		Message:   gitCommit.Message,
	}
}

func toSignature(s object.Signature) repo.Signature {
	return repo.Signature{
		Name:  s.Name,
		Email: s.Email,
		When:  s.When,
	}
}

func (r *Repository) DiffTrees(from repo.OID, to repo.OID) ([]repo.PathChange, error) {
	r.mutex.Lock()
	defer r.mutex.Unlock()

	var fromTree *object.Tree
	if !from.IsZero() {
		var err error
		fromTree, err = r.git.TreeObject(plumbing.NewHash(string(from)))
		if err != nil {
			return nil, repo.Wrap(err, "read tree", from)
		}
	}

	toTree, err := r.git.TreeObject(plumbing.NewHash(string(to)))
	if err != nil {
		return nil, repo.Wrap(err, "read tree", to)
	}

	changes, err := fromTree.DiffContext(context.Background(), toTree)
	if err != nil {
		return nil, repo.Wrap(err, "diff tree", to)
	}

	result := make([]repo.PathChange, 0, len(changes))
	for _, change := range changes {
		action, err := change.Action()
		if err != nil {
			return nil, repo.Wrap(err, "diff tree", to)
		}

		var c repo.PathChange
		switch action {
		case merkletrie.Insert:
			c = repo.PathChange{Path: change.To.Name, Kind: repo.Created}
		case merkletrie.Delete:
			c = repo.PathChange{Path: change.From.Name, Kind: repo.Deleted}
		default:
			c = repo.PathChange{Path: change.To.Name, Kind: repo.Modified}
		}

		if !utf8.ValidString(c.Path) {
			return nil, repo.ErrNonUTF8Path
		}

		result = append(result, c)
	}

	return result, nil
}

// Ancestors walks the history from a commit ordered by committer time, newest first.
func (r *Repository) Ancestors(from repo.OID, fn func(repo.OID) error) error {
	r.mutex.Lock()
	iter, err := r.git.Log(&git.LogOptions{
		From:  plumbing.NewHash(string(from)),
		Order: git.LogOrderCommitterTime,
	})
	r.mutex.Unlock()
	if err != nil {
		return repo.Wrap(err, "walk history", from)
	}
	defer iter.Close()

	for {
		r.mutex.Lock()
		gitCommit, err := iter.Next()
		r.mutex.Unlock()

		if err == io.EOF {
			return nil
		} else if err != nil {
			return repo.Wrap(err, "walk history", from)
		}

		commit := toCommit(gitCommit)
		_, _ = r.commits.Get(commit.ID, func(repo.OID) (*repo.Commit, error) { return commit, nil })

		err = fn(commit.ID)
		if errors.Is(err, repo.ErrStopWalk) || err == storer.ErrStop {
			return nil
		} else if err != nil {
			return err
		}
	}
}

func (r *Repository) VerifySignature(id repo.OID) (bool, error) {
	r.mutex.Lock()
	defer r.mutex.Unlock()

	gitCommit, err := r.git.CommitObject(plumbing.NewHash(string(id)))
	if err != nil {
		return false, repo.Wrap(err, "read commit", id)
	}

	if strings.TrimSpace(gitCommit.PGPSignature) == "" {
		return false, nil
	}

	if r.keyring == "" {
		return true, nil
	}

	_, err = gitCommit.Verify(r.keyring)
	return err == nil, nil
}

func (r *Repository) ResolveIdentity(name string, email string) repo.Identity {
	name, email = r.mailmap.Resolve(name, email)
	return repo.Identity{Name: name, Email: email}
}

func (r *Repository) Mailmap() *repo.Mailmap {
	return r.mailmap
}
