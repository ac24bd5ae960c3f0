package storages

import (
	"errors"
	"time"

	"github.com/pescuma/clam/lib/provenance"
)

var ErrNotFound = errors.New("not found")

type Storage interface {
	// WriteProvenance replaces the snapshot stored for repoDir.
	WriteProvenance(repoDir string, rev string, table *provenance.Table) (*ProvenanceSnapshot, error)
	// LoadProvenance returns ErrNotFound when nothing was stored for repoDir.
	LoadProvenance(repoDir string) (*ProvenanceSnapshot, error)
	ListProvenance() ([]*ProvenanceSnapshot, error)

	LoadConfig() (*map[string]string, error)
	WriteConfig() error

	Close() error
}

type ProvenanceSnapshot struct {
	ID        string
	RepoDir   string
	Rev       string
	Paths     int
	WrittenAt time.Time

	// Table is nil when listing
	Table *provenance.Table
}
