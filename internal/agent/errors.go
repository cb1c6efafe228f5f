package agent

import (
	"errors"
	"fmt"
)

// ErrPlanning marks plan generation failures. The controller treats
// these as fatal for the run.
var ErrPlanning = errors.New("planning failed")

// ErrReflection marks verdict evaluation failures, also fatal.
var ErrReflection = errors.New("reflection failed")

// JSONParseError carries the model output that failed to decode, so run
// logs show what the model actually said.
type JSONParseError struct {
	Content string
	Err     error
}

func (e *JSONParseError) Error() string {
	return fmt.Sprintf("failed to parse model JSON: %v (content: %s)", e.Err, excerpt(e.Content))
}

func (e *JSONParseError) Unwrap() error { return e.Err }

func excerpt(s string) string {
	const max = 200
	if len(s) > max {
		return s[:max] + "..."
	}
	return s
}
