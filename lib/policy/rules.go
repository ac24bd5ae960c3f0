// Package policy holds the path rules a push is checked against.
package policy

import (
	"regexp"
)

type Action int

const (
	Create Action = iota
	Delete
	Modify
)

func (a Action) String() string {
	switch a {
	case Create:
		return "create"
	case Delete:
		return "delete"
	case Modify:
		return "modify"
	default:
		return "unknown"
	}
}

const matchAll = ".*"

// RuleSet is immutable once built.
type RuleSet struct {
	requireSigning bool
	noDeletion     bool
	noCreation     bool
	allow          []*regexp.Regexp
	protect        []*regexp.Regexp
}

// New compiles all patterns. An empty allow list allows every path.
func New(cfg Config) (*RuleSet, error) {
	allowPatterns := cfg.AllowPatterns
	if len(allowPatterns) == 0 {
		allowPatterns = []string{matchAll}
	}

	allow, err := compile(allowPatterns)
	if err != nil {
		return nil, err
	}

	protect, err := compile(cfg.ProtectPatterns)
	if err != nil {
		return nil, err
	}

	return &RuleSet{
		requireSigning: cfg.RequireSigning,
		noDeletion:     cfg.NoDeletion,
		noCreation:     cfg.NoCreation,
		allow:          allow,
		protect:        protect,
	}, nil
}

func compile(patterns []string) ([]*regexp.Regexp, error) {
	result := make([]*regexp.Regexp, 0, len(patterns))

	for _, p := range patterns {
		re, err := regexp.Compile(p)
		if err != nil {
			return nil, &BadRegexError{Pattern: p, Err: err}
		}

		result = append(result, re)
	}

	return result, nil
}

func (r *RuleSet) RequiresSigning() bool {
	return r.requireSigning
}

func (r *RuleSet) CheckSigned(signed bool) error {
	if r.requireSigning && !signed {
		return &Rejection{Kind: NotSigned}
	}
	return nil
}

// Check runs, in order, the create/delete toggles, the allow list and the protect list.
func (r *RuleSet) Check(path string, action Action) error {
	switch action {
	case Create:
		if r.noCreation {
			return &Rejection{Kind: BadCreate, Subject: path}
		}
	case Delete:
		if r.noDeletion {
			return &Rejection{Kind: BadDelete, Subject: path}
		}
	}

	if !matchesAny(r.allow, path) {
		return &Rejection{Kind: NotAllowed, Subject: path}
	}
	if matchesAny(r.protect, path) {
		return &Rejection{Kind: Protected, Subject: path}
	}

	return nil
}

func matchesAny(res []*regexp.Regexp, path string) bool {
	for _, re := range res {
		if re.MatchString(path) {
			return true
		}
	}
	return false
}
