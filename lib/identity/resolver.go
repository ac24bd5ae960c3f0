// Package identity turns raw commit signatures into the display identities provenance is
// attributed to.
package identity

import (
	"errors"
	"strings"

	"github.com/pescuma/clam/lib/repo"
)

var ErrNoName = errors.New("signature has no name")

type Resolver struct {
	repo    repo.Repository
	grouper *Grouper
}

type Option func(*Resolver)

// WithGrouper applies automatic grouping after the repository alias table.
func WithGrouper(g *Grouper) Option {
	return func(r *Resolver) {
		r.grouper = g
	}
}

func NewResolver(r repo.Repository, opts ...Option) *Resolver {
	result := &Resolver{
		repo: r,
	}

	for _, opt := range opts {
		opt(result)
	}

	return result
}

func (r *Resolver) Grouper() *Grouper {
	return r.grouper
}

// Resolve returns the identity of a signature. It fails with ErrNoName when no name is left
// after alias resolution.
func (r *Resolver) Resolve(sig repo.Signature) (repo.Identity, error) {
	result := r.resolveAliases(sig)

	if r.grouper != nil {
		result.Name = r.grouper.Name(result.Name, result.Email)
	}

	if result.Name == "" {
		return repo.Identity{}, ErrNoName
	}

	return result, nil
}

// Learn feeds a signature to the grouper, if there is one.
func (r *Resolver) Learn(sig repo.Signature) {
	if r.grouper == nil {
		return
	}

	id := r.resolveAliases(sig)
	r.grouper.Add(id.Name, id.Email)
}

func (r *Resolver) resolveAliases(sig repo.Signature) repo.Identity {
	name := strings.TrimSpace(sig.Name)
	email := strings.TrimSpace(sig.Email)

	result := r.repo.ResolveIdentity(name, email)
	result.Name = strings.TrimSpace(result.Name)
	result.Email = strings.TrimSpace(result.Email)

	return result
}
