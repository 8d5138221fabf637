package message

import "errors"

// Domain errors for the message codec.
var (
	// ErrInvalidFrame is returned when a received line is too short or is
	// not valid hex-encoded packet text.
	ErrInvalidFrame = errors.New("message: invalid frame")

	// ErrChecksum is returned when a received packet fails checksum
	// validation. The packet must be discarded without interpretation.
	ErrChecksum = errors.New("message: checksum mismatch")

	// ErrUnknownMarker is returned when a received line does not start
	// with a recognised PIM response marker.
	ErrUnknownMarker = errors.New("message: unknown PIM response marker")
)
