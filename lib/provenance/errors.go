package provenance

import (
	"fmt"

	"github.com/pescuma/clam/lib/repo"
)

type ErrorKind int

const (
	BadAuthor ErrorKind = iota
	BadCommitter
	NonUTF8Path
	Repository
)

func (k ErrorKind) String() string {
	switch k {
	case BadAuthor:
		return "bad author"
	case BadCommitter:
		return "bad committer"
	case NonUTF8Path:
		return "non utf-8 path"
	case Repository:
		return "repository error"
	default:
		return "unknown"
	}
}

// AggregationError aborts a whole aggregation. Commit is empty when the failure happened
// before any commit was read.
type AggregationError struct {
	Kind   ErrorKind
	Commit repo.OID
	Err    error
}

func (e *AggregationError) Error() string {
	if e.Kind == Repository {
		return e.Err.Error()
	}
	if e.Commit == "" {
		return fmt.Sprintf("%v: %v", e.Kind, e.Err)
	}
	return fmt.Sprintf("%v in commit %v: %v", e.Kind, e.Commit.Short(repo.DefaultAbbrev), e.Err)
}

func (e *AggregationError) Unwrap() error {
	return e.Err
}
