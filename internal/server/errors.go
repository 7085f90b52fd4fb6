package server

import "errors"

var (
	// ErrServerClosed is returned by Serve after Shutdown.
	ErrServerClosed = errors.New("server: closed")
	// ErrKicked ends the writer of a session that delivered the kick signal.
	ErrKicked = errors.New("server: session kicked out")
	// ErrLineTooLong is returned when a peer sends a line above the configured limit.
	ErrLineTooLong = errors.New("server: line exceeds maximum length")
)
