package xroute

import "errors"

var (
	// ErrInvalidArgument reports an empty name or pattern, a nil value, or a
	// missing required field. It is never retried.
	ErrInvalidArgument = errors.New("xroute: invalid argument")

	// ErrDuplicateSession is returned by Directory.Create when a live session
	// already owns the name.
	ErrDuplicateSession = errors.New("xroute: duplicate session")

	// ErrNotFound reports a lookup of a session, rule or sink that does not exist.
	ErrNotFound = errors.New("xroute: not found")

	// ErrSessionClosed is returned when mutating a session after Close.
	ErrSessionClosed = errors.New("xroute: session closed")

	// ErrNoRuntime is returned when a Directory is built without a Runtime.
	ErrNoRuntime = errors.New("xroute: no runtime")
)
