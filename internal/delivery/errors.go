package delivery

import (
	"fmt"

	"github.com/joseph-ayodele/arrivals-intake/internal/common"
)

// AuthError is returned when a bearer token could not be obtained.
// StatusCode is 0 when no response was received.
type AuthError struct {
	StatusCode int
	Body       string
	Err        error
}

func (e *AuthError) Error() string {
	if e.StatusCode == 0 {
		return fmt.Sprintf("authenticate: %v", e.Err)
	}
	return fmt.Sprintf("authenticate: status %d: %v", e.StatusCode, e.Err)
}

func (e *AuthError) Unwrap() error { return e.Err }

func (e *AuthError) Is(target error) bool { return target == common.ErrAuth }

// SubmitError is returned when the upload endpoint did not accept a record.
type SubmitError struct {
	StatusCode int
	Body       string
	Err        error
}

func (e *SubmitError) Error() string {
	if e.StatusCode == 0 {
		return fmt.Sprintf("submit: %v", e.Err)
	}
	return fmt.Sprintf("submit: status %d: %v", e.StatusCode, e.Err)
}

func (e *SubmitError) Unwrap() error { return e.Err }

func (e *SubmitError) Is(target error) bool { return target == common.ErrSubmit }
