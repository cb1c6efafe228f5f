package search

// Error is a provider-selection failure.
type Error struct {
	Msg string
}

func (e *Error) Error() string { return e.Msg }
