package systems

import (
	"errors"
	"fmt"
)

// Scheduler errors
var (
	ErrProcessor          = errors.New("processor failed")
	ErrUnknownProcessor   = errors.New("unknown processor")
	ErrDuplicateProcessor = errors.New("processor already registered")
)

// ProcessorError records one processor failure within a tick.
type ProcessorError struct {
	Processor string
	Priority  Priority
	Tick      uint64
	// Panicked is set when the failure was a recovered panic.
	Panicked bool
	Err      error
}

func (e *ProcessorError) Error() string {
	if e.Panicked {
		return fmt.Sprintf("processor %s panicked on tick %d: %v", e.Processor, e.Tick, e.Err)
	}
	return fmt.Sprintf("processor %s failed on tick %d: %v", e.Processor, e.Tick, e.Err)
}

func (e *ProcessorError) Unwrap() []error { return []error{ErrProcessor, e.Err} }
