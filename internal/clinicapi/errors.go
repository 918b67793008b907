package clinicapi

import (
	"errors"
	"fmt"
	"net/http"
)

var (
	// ErrNotFound is returned when a referenced entity vanished, e.g.
	// a queue item another session already removed.
	ErrNotFound = errors.New("clinicapi: not found")

	// ErrConflict is returned when the backend rejects a write because
	// of a capacity or state mismatch discovered at write time.
	ErrConflict = errors.New("clinicapi: conflict")

	// ErrUnauthorized is returned for rejected credentials.
	ErrUnauthorized = errors.New("clinicapi: unauthorized")
)

// APIError carries the backend's status and message for failures that
// don't map onto a sentinel.
type APIError struct {
	Status    int
	Operation string
	Message   string
}

func (e *APIError) Error() string {
	return fmt.Sprintf("clinicapi: %s returned %d: %s", e.Operation, e.Status, e.Message)
}

// Is lets errors.Is match an APIError against the status sentinels.
func (e *APIError) Is(target error) bool {
	switch target {
	case ErrNotFound:
		return e.Status == http.StatusNotFound
	case ErrConflict:
		return e.Status == http.StatusConflict
	case ErrUnauthorized:
		return e.Status == http.StatusUnauthorized || e.Status == http.StatusForbidden
	}
	return false
}
