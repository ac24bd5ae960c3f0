// Package repo defines the read-only view of a version-controlled content repository that
// provenance aggregation and push validation are built on.
package repo

import (
	"errors"
	"time"
)

// Repository is the object store seen by the rest of clam. Implementations must be safe for
// concurrent use and must never write to the underlying store.
type Repository interface {
	Commit(id OID) (*Commit, error)

	// DiffTrees lists the paths that differ between two trees. A zero from means there is no
	// previous tree, so every entry of to is reported as Created.
	DiffTrees(from OID, to OID) ([]PathChange, error)

	// Ancestors calls fn once for every commit reachable from from, including from itself.
	// Returning ErrStopWalk from fn ends the walk without an error.
	Ancestors(from OID, fn func(OID) error) error

	VerifySignature(id OID) (bool, error)

	ResolveIdentity(name string, email string) Identity
}

var ErrStopWalk = errors.New("stop walk")

type Commit struct {
	ID        OID
	Parents   []OID
	Tree      OID
	Author    Signature
	Committer Signature
	Message   string
}

func (c *Commit) IsRoot() bool {
	return len(c.Parents) == 0
}

type Signature struct {
	Name  string
	Email string
	When  time.Time
}

// Identity is a person after alias resolution. Name is what gets displayed and what
// contributor sets are keyed by.
type Identity struct {
	Name  string
	Email string
}

func (i Identity) String() string {
	if i.Email == "" {
		return i.Name
	}
	return i.Name + " <" + i.Email + ">"
}

type ChangeKind int

const (
	Created ChangeKind = iota
	Deleted
	Modified
)

func (k ChangeKind) String() string {
	switch k {
	case Created:
		return "created"
	case Deleted:
		return "deleted"
	case Modified:
		return "modified"
	default:
		return "unknown"
	}
}

type PathChange struct {
	Path string
	Kind ChangeKind
}
