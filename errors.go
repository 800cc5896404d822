package jobsh

import (
	"errors"
	"fmt"

	"jobsh/parser"
)

var (
	ErrCommandNotFound   = errors.New("command not found")
	ErrBuiltinInPipeline = errors.New("builtin cannot run inside a pipeline")
	ErrSpawnFailed       = errors.New("spawn failed")
	ErrRedirect          = errors.New("cannot open redirection target")
)

// ExecError aborts one job spec. Name is the stage's program name, or the
// raw word when expansion failed.
type ExecError struct {
	Name string
	Err  error
}

func (e *ExecError) Error() string {
	if e.Name == "" {
		return e.Err.Error()
	}
	return fmt.Sprintf("%s: %v", e.Name, e.Err)
}

func (e *ExecError) Unwrap() error { return e.Err }

// Exit statuses reported for errors that prevent a job from running.
const (
	StatusFailure  = 1
	StatusUsage    = 2
	StatusNoExec   = 126
	StatusNotFound = 127
)

// errorStatus maps an error to the status the line runner records in $?.
func errorStatus(err error) int {
	var (
		lexErr   *parser.LexError
		parseErr *parser.ParseError
	)
	switch {
	case errors.As(err, &lexErr), errors.As(err, &parseErr):
		return StatusUsage
	case errors.Is(err, ErrCommandNotFound):
		return StatusNotFound
	case errors.Is(err, ErrSpawnFailed):
		return StatusNoExec
	default:
		return StatusFailure
	}
}
