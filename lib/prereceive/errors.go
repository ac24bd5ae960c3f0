package prereceive

type HookIOErrorKind int

const (
	InvalidHookInput HookIOErrorKind = iota
	Stdin
)

// HookIOError is a problem with the hook input itself. Line is 1-based, 0 when unknown.
type HookIOError struct {
	Kind HookIOErrorKind
	Line int
	Err  error
}

func (e *HookIOError) Error() string {
	switch e.Kind {
	case Stdin:
		return "failed to read stdin: " + e.Err.Error()
	default:
		return "invalid input. this is being used as a git hook, yes?"
	}
}

func (e *HookIOError) Unwrap() error {
	return e.Err
}
