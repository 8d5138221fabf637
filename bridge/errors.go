package bridge

import "errors"

var (
	// ErrConnectionFailed indicates the broker connection could not be
	// established.
	ErrConnectionFailed = errors.New("mqtt connection failed")

	// ErrBadCommand indicates a command payload or topic that could not
	// be interpreted.
	ErrBadCommand = errors.New("bad command")
)
