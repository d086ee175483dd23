package engine

import "errors"

var (
	// ErrSessionActive is returned by StartSession when a session is already
	// running.
	ErrSessionActive = errors.New("engine: session already active")

	// ErrNoSession is returned by StopSession and Status when no session is
	// running.
	ErrNoSession = errors.New("engine: no active session")

	// ErrStopped is returned when the engine's state loop has shut down.
	ErrStopped = errors.New("engine: stopped")
)
