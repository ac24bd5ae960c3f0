package gitrepo

import (
	"os"

	"github.com/go-git/go-git/v5"
	"github.com/go-git/go-git/v5/plumbing"
	"github.com/go-git/go-git/v5/plumbing/object"
	"github.com/pkg/errors"

	"github.com/pescuma/clam/lib/repo"
)

const mailmapName = ".mailmap"

func loadMailmap(gitRepo *git.Repository, file string) (*repo.Mailmap, error) {
	if file != "" {
		f, err := os.Open(file)
		if err != nil {
			return nil, errors.Wrapf(err, "could not open mailmap %v", file)
		}
		defer f.Close()

		return repo.ParseMailmap(f)
	}

	wt, err := gitRepo.Worktree()
	if err == nil {
		f, err := wt.Filesystem.Open(mailmapName)
		if err == nil {
			defer f.Close()
			return repo.ParseMailmap(f)
		} else if !os.IsNotExist(err) {
			return nil, errors.Wrap(err, "could not open worktree mailmap")
		}
	}

	// Bare repositories (the server side of a push) only have the committed file
	head, err := gitRepo.Head()
	if errors.Is(err, plumbing.ErrReferenceNotFound) {
		return repo.NewMailmap(), nil
	} else if err != nil {
		return nil, repo.Wrap(err, "read HEAD", "")
	}

	commit, err := gitRepo.CommitObject(head.Hash())
	if err != nil {
		return nil, repo.Wrap(err, "read commit", repo.OID(head.Hash().String()))
	}

	tree, err := commit.Tree()
	if err != nil {
		return nil, repo.Wrap(err, "read tree", repo.OID(commit.TreeHash.String()))
	}

	f, err := tree.File(mailmapName)
	if errors.Is(err, object.ErrFileNotFound) {
		return repo.NewMailmap(), nil
	} else if err != nil {
		return nil, repo.Wrap(err, "read mailmap", repo.OID(commit.TreeHash.String()))
	}

	contents, err := f.Contents()
	if err != nil {
		return nil, repo.Wrap(err, "read mailmap", repo.OID(f.Hash.String()))
	}

	return repo.ParseMailmapString(contents), nil
}
