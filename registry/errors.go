package registry

import "errors"

// Domain errors for the registry package.
var (
	// ErrLinkNotFound is returned when a link key is not registered.
	ErrLinkNotFound = errors.New("registry: link not found")

	// ErrInvalidKey is returned when a canonical key cannot be parsed.
	ErrInvalidKey = errors.New("registry: invalid key")
)
