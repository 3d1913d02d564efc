package engine

import (
	"errors"
	"fmt"
)

// Engine errors
var (
	ErrSetup        = errors.New("engine setup failed")
	ErrInvalidState = errors.New("invalid engine state")
	ErrGatewayPanic = errors.New("session gateway panicked")
)

// SetupError reports the setup step that failed. It is fatal: the engine
// never reaches Running.
type SetupError struct {
	Step string
	Err  error
}

func (e *SetupError) Error() string {
	return fmt.Sprintf("engine setup step %s: %v", e.Step, e.Err)
}

func (e *SetupError) Unwrap() []error { return []error{ErrSetup, e.Err} }
