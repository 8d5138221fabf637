package pim

import "errors"

// Sentinel errors for PIM session failures. Wrap with fmt.Errorf("%w: ...")
// to add context; check with errors.Is.
var (
	// ErrInvalidURL indicates the connection URL could not be parsed or
	// uses an unsupported scheme.
	ErrInvalidURL = errors.New("invalid connection URL")

	// ErrConnectionFailed indicates the transport could not be established.
	ErrConnectionFailed = errors.New("connection failed")

	// ErrNotConnected indicates an operation that needs a live session was
	// attempted without one.
	ErrNotConnected = errors.New("not connected")

	// ErrCommandFailed indicates a command was not acknowledged after the
	// configured number of transmissions.
	ErrCommandFailed = errors.New("command failed")

	// ErrClosed indicates the connection has been shut down.
	ErrClosed = errors.New("connection closed")
)
