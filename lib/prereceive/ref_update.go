package prereceive

import (
	"fmt"
	"strings"

	"github.com/pescuma/clam/lib/repo"
)

// RefUpdate is one line of pre-receive input: <old> <new> <refname>.
type RefUpdate struct {
	Old     repo.OID
	New     repo.OID
	RefName string
}

func (u RefUpdate) String() string {
	return fmt.Sprintf("%v %v %v", u.Old, u.New, u.RefName)
}

func ParseRefUpdate(line string) (RefUpdate, error) {
	fields := strings.Split(strings.TrimSuffix(line, "\r"), " ")
	if len(fields) != 3 {
		return RefUpdate{}, &HookIOError{
			Kind: InvalidHookInput,
			Err:  fmt.Errorf("expected 3 fields, got %v", len(fields)),
		}
	}

	oldID, err := repo.ParseOID(fields[0])
	if err != nil {
		return RefUpdate{}, &HookIOError{Kind: InvalidHookInput, Err: err}
	}

	newID, err := repo.ParseOID(fields[1])
	if err != nil {
		return RefUpdate{}, &HookIOError{Kind: InvalidHookInput, Err: err}
	}

	return RefUpdate{Old: oldID, New: newID, RefName: fields[2]}, nil
}
