package gitrepo

import (
	"os"
	"path/filepath"

	"github.com/go-git/go-billy/v5/osfs"
	"github.com/go-git/go-git/v5"
	"github.com/go-git/go-git/v5/plumbing"
	"github.com/go-git/go-git/v5/plumbing/cache"
	"github.com/go-git/go-git/v5/storage/filesystem"
	"github.com/pkg/errors"
)

// OpenFromEnv opens the repository a git hook is running for. Objects received by the push
// but not yet accepted live in a quarantine directory, which is read before the main store.
func OpenFromEnv(opts ...Option) (*Repository, error) {
	dir := os.Getenv("GIT_DIR")
	if dir == "" {
		dir = "."
	}

	// GIT_DIR is the git directory itself, which for server repositories is bare
	gitRepo, err := git.PlainOpenWithOptions(dir, &git.PlainOpenOptions{})
	if err != nil {
		return nil, errors.Wrapf(err, "could not open git repository at %v", dir)
	}

	main, ok := gitRepo.Storer.(*filesystem.Storage)
	if !ok {
		return New(gitRepo, opts...)
	}

	quarantine := findQuarantine(main)
	if quarantine == "" {
		return New(gitRepo, opts...)
	}

	tmp, err := os.MkdirTemp("", "clam-quarantine-")
	if err != nil {
		return nil, errors.Wrap(err, "could not create quarantine overlay")
	}
	cleanup := func() error { return os.RemoveAll(tmp) }

	err = os.Symlink(quarantine, filepath.Join(tmp, "objects"))
	if err != nil {
		_ = cleanup()
		return nil, errors.Wrap(err, "could not create quarantine overlay")
	}

	storage := &overlayStorage{
		Storage:  main,
		incoming: filesystem.NewStorage(osfs.New(tmp), cache.NewObjectLRUDefault()),
	}

	layered, err := git.Open(storage, nil)
	if err != nil {
		_ = cleanup()
		return nil, errors.Wrap(err, "could not open quarantined repository")
	}

	result, err := New(layered, opts...)
	if err != nil {
		_ = cleanup()
		return nil, err
	}

	result.cleanup = cleanup
	return result, nil
}

func findQuarantine(main *filesystem.Storage) string {
	dir := os.Getenv("GIT_QUARANTINE_PATH")
	if dir == "" {
		dir = os.Getenv("GIT_OBJECT_DIRECTORY")
	}
	if dir == "" {
		return ""
	}

	dir, err := filepath.Abs(dir)
	if err != nil {
		return ""
	}

	mainObjects, err := filepath.Abs(filepath.Join(main.Filesystem().Root(), "objects"))
	if err == nil && filepath.Clean(mainObjects) == filepath.Clean(dir) {
		return ""
	}

	return dir
}

// overlayStorage reads objects from incoming first and falls back to the embedded store.
// Everything else (refs, config, index) comes from the embedded store.
type overlayStorage struct {
	*filesystem.Storage
	incoming *filesystem.Storage
}

func (s *overlayStorage) EncodedObject(t plumbing.ObjectType, h plumbing.Hash) (plumbing.EncodedObject, error) {
	obj, err := s.incoming.EncodedObject(t, h)
	if err == nil {
		return obj, nil
	} else if !errors.Is(err, plumbing.ErrObjectNotFound) {
		return nil, err
	}

	return s.Storage.EncodedObject(t, h)
}

func (s *overlayStorage) HasEncodedObject(h plumbing.Hash) error {
	if err := s.incoming.HasEncodedObject(h); err == nil {
		return nil
	}

	return s.Storage.HasEncodedObject(h)
}

func (s *overlayStorage) EncodedObjectSize(h plumbing.Hash) (int64, error) {
	size, err := s.incoming.EncodedObjectSize(h)
	if err == nil {
		return size, nil
	}

	return s.Storage.EncodedObjectSize(h)
}
