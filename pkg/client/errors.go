package client

import (
	"errors"
	"fmt"
	"net/http"

	"github.com/polisai/cosmosclient/pkg/handlers"
)

// Sentinel errors matched by ResponseError through errors.Is.
var (
	// ErrNotFound indicates the addressed resource does not exist.
	ErrNotFound = errors.New("resource not found")

	// ErrConflict indicates a resource with the same id already exists.
	ErrConflict = errors.New("resource already exists")

	// ErrThrottled indicates the request was still throttled after retries were exhausted.
	ErrThrottled = errors.New("request rate is too large")
)

// ResponseError reports a non-success status returned by the service.
type ResponseError struct {
	StatusCode   int
	ActivityID   string
	Operation    handlers.OperationType
	ResourceLink string
}

func (e *ResponseError) Error() string {
	return fmt.Sprintf("%s %s failed with status %d (%s), activity id %s",
		e.Operation, e.ResourceLink, e.StatusCode, http.StatusText(e.StatusCode), e.ActivityID)
}

// Is matches the sentinel for the status code.
func (e *ResponseError) Is(target error) bool {
	switch target {
	case ErrNotFound:
		return e.StatusCode == http.StatusNotFound
	case ErrConflict:
		return e.StatusCode == http.StatusConflict
	case ErrThrottled:
		return e.StatusCode == http.StatusTooManyRequests
	default:
		return false
	}
}

// IsNotFound checks if the error indicates a missing resource.
func IsNotFound(err error) bool {
	return errors.Is(err, ErrNotFound)
}

// IsConflict checks if the error indicates an existing resource.
func IsConflict(err error) bool {
	return errors.Is(err, ErrConflict)
}

// StatusCode returns the status carried by a ResponseError in err's chain, or 0.
func StatusCode(err error) int {
	var re *ResponseError
	if errors.As(err, &re) {
		return re.StatusCode
	}
	return 0
}
