package lookup

import (
	"errors"
	"fmt"
)

// CodeNotAvailable is the error code the service uses for a missing factor.
const CodeNotAvailable = "not_available"

// APIError is an unsuccessful response envelope.
type APIError struct {
	StatusCode int
	Code       string
	Message    string
}

func (e *APIError) Error() string {
	if e.Code == "" {
		return fmt.Sprintf("API error (HTTP %d): %s", e.StatusCode, e.Message)
	}
	return fmt.Sprintf("API error (HTTP %d): %s - %s", e.StatusCode, e.Code, e.Message)
}

// Is lets errors.Is(err, ErrNotAvailable) match a not_available envelope.
func (e *APIError) Is(target error) bool {
	return target == ErrNotAvailable && e.Code == CodeNotAvailable
}

// IsNotAvailable reports whether err means "no factor for this path".
func IsNotAvailable(err error) bool {
	return errors.Is(err, ErrNotAvailable)
}
