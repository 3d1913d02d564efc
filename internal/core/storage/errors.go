package storage

import "errors"

// Storage errors
var (
	ErrUnknownBackend = errors.New("unknown storage backend")
	ErrNoSink         = errors.New("no sink for backend")
	ErrNotFound       = errors.New("record not found")
	ErrWriterClosed   = errors.New("writer closed")
)
