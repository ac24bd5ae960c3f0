// Package prereceive checks pushed ref updates against a policy before git accepts them.
package prereceive

import (
	"bufio"
	"fmt"
	"io"

	"github.com/pescuma/clam/lib/consoles"
	"github.com/pescuma/clam/lib/policy"
	"github.com/pescuma/clam/lib/repo"
)

type Validator struct {
	repo  repo.Repository
	rules *policy.RuleSet
}

func NewValidator(r repo.Repository, rules *policy.RuleSet) *Validator {
	return &Validator{
		repo:  r,
		rules: rules,
	}
}

// ValidateUpdate returns nil when the update is a fast-forward and every commit it introduces
// follows the rules. Otherwise it returns the first violation found.
func (v *Validator) ValidateUpdate(u RefUpdate) error {
	// Deleting a ref is refused as well
	if u.Old.IsZero() || u.New.IsZero() {
		return &policy.Rejection{Kind: policy.CreateRef, Subject: u.RefName}
	}

	w := newReachability(v.repo)

	err := w.walk(u.Old, u.New)
	if err != nil {
		return repo.Wrap(err, "walk history", u.New)
	}

	if !w.isAncestorOfNew(u.Old) {
		return &policy.Rejection{Kind: policy.ForcePush}
	}

	for _, id := range w.introduced() {
		err = v.checkCommit(id)
		if err != nil {
			return err
		}
	}

	return nil
}

func (v *Validator) checkCommit(id repo.OID) error {
	if v.rules.RequiresSigning() {
		signed, err := v.repo.VerifySignature(id)
		if err != nil {
			return repo.Wrap(err, "verify signature", id)
		}

		err = v.rules.CheckSigned(signed)
		if err != nil {
			return err
		}
	}

	commit, err := v.repo.Commit(id)
	if err != nil {
		return repo.Wrap(err, "read commit", id)
	}

	if commit.IsRoot() {
		return v.checkDiff(id, repo.ZeroOID, commit.Tree)
	}

	for _, p := range commit.Parents {
		parent, err := v.repo.Commit(p)
		if err != nil {
			return repo.Wrap(err, "read commit", p)
		}

		err = v.checkDiff(id, parent.Tree, commit.Tree)
		if err != nil {
			return err
		}
	}

	return nil
}

func (v *Validator) checkDiff(id repo.OID, from repo.OID, to repo.OID) error {
	changes, err := v.repo.DiffTrees(from, to)
	if err != nil {
		return repo.Wrap(err, "diff tree", id)
	}

	for _, c := range changes {
		err = v.rules.Check(c.Path, toAction(c.Kind))
		if err != nil {
			return err
		}
	}

	return nil
}

func toAction(kind repo.ChangeKind) policy.Action {
	switch kind {
	case repo.Created:
		return policy.Create
	case repo.Deleted:
		return policy.Delete
	default:
		return policy.Modify
	}
}

// Validate reads ref updates from in, one per line, and stops at the first failure.
func (v *Validator) Validate(console consoles.Console, in io.Reader) error {
	scanner := bufio.NewScanner(in)

	line := 0
	for scanner.Scan() {
		line++

		u, err := ParseRefUpdate(scanner.Text())
		if err != nil {
			if hie, ok := err.(*HookIOError); ok {
				hie.Line = line
			}
			return err
		}

		console.Printf("Checking %v (%v..%v)\n", u.RefName, u.Old.Short(repo.DefaultAbbrev), u.New.Short(repo.DefaultAbbrev))

		err = v.ValidateUpdate(u)
		if err != nil {
			return err
		}
	}

	if err := scanner.Err(); err != nil {
		return &HookIOError{Kind: Stdin, Line: line + 1, Err: err}
	}

	return nil
}

// Run is the whole hook: it prints the reason of a rejection to out and returns the process
// exit code.
func Run(console consoles.Console, r repo.Repository, rules *policy.RuleSet, in io.Reader, out io.Writer) int {
	err := NewValidator(r, rules).Validate(console, in)
	return Reject(out, err)
}

// Reject prints err as a push rejection. It returns 0 for a nil error and 1 otherwise.
func Reject(out io.Writer, err error) int {
	if err == nil {
		return 0
	}

	_, _ = fmt.Fprintf(out, "rejecting push: %v\n", err)
	return 1
}
