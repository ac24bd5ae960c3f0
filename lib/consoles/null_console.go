package consoles

type nullConsole struct{}

// NewNullConsole discards everything. Used where output is part of a protocol, like git hooks.
func NewNullConsole() Console {
	return nullConsole{}
}

func (nullConsole) Printf(string, ...any) {}

func (nullConsole) PushPrefix(string, ...any) {}

func (nullConsole) PopPrefix() {}
