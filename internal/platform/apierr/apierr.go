package apierr

import (
	"errors"
	"fmt"
	"net/http"
)

// Error pairs a cause with the HTTP status and machine-readable code a
// handler should answer with.
type Error struct {
	Status int
	Code   string
	Err    error
}

func (e *Error) Error() string {
	if e == nil {
		return ""
	}
	if e.Err != nil {
		return e.Err.Error()
	}
	if e.Code != "" {
		return e.Code
	}
	return fmt.Sprintf("api error (%d)", e.Status)
}

func (e *Error) Unwrap() error { return e.Err }

func New(status int, code string, err error) *Error {
	return &Error{Status: status, Code: code, Err: err}
}

// StatusOf finds the first *Error in err's chain. Anything else is a 500.
func StatusOf(err error) (int, string) {
	var ae *Error
	if errors.As(err, &ae) && ae.Status != 0 {
		return ae.Status, ae.Code
	}
	return http.StatusInternalServerError, "internal"
}
