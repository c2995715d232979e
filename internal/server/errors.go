package server

import "errors"

// Connection and registry error types
var (
	ErrNotStarted       = errors.New("registry has not been started")
	ErrNilConnection    = errors.New("connection is required")
	ErrNilUser          = errors.New("user is required")
	ErrConnectionClosed = errors.New("connection is closed")
	ErrSendBufferFull   = errors.New("connection send buffer is full")
)
