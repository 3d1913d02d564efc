package session

import "errors"

// Session errors
var (
	ErrSessionNotFound = errors.New("session not found")
	ErrNoPuppet        = errors.New("session controls no entity")
	ErrNoExit          = errors.New("no exit in that direction")
	ErrExitBlocked     = errors.New("exit is blocked")
	ErrPanicked        = errors.New("session code panicked")
)
