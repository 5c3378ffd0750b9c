package local

import "github.com/felixgeelhaar/pyquest/internal/domain"

var (
	// ErrNotFound is returned when a record is not found
	ErrNotFound = domain.ErrNotFound

	// ErrInvalidKey is returned for keys that cannot be used as file names
	ErrInvalidKey = domain.ErrInvalidInput
)
