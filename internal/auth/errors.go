package auth

import (
	"errors"
	"fmt"
)

var (
	ErrInvalidToken          = errors.New("invalid token")
	ErrExpired               = errors.New("token expired")
	ErrScopeMismatch         = errors.New("token scope mismatch")
	ErrRevoked               = errors.New("token revoked")
	ErrRevocationUnavailable = errors.New("revocation store unavailable")
)

// Reason labels why a credential was rejected. It is safe to log and to use
// as a metric label.
type Reason string

const (
	ReasonMalformed   Reason = "malformed"
	ReasonSignature   Reason = "signature"
	ReasonExpired     Reason = "expired"
	ReasonScope       Reason = "scope"
	ReasonSubject     Reason = "missing_subject"
	ReasonTokenID     Reason = "missing_id"
	ReasonRevoked     Reason = "revoked"
	ReasonUnavailable Reason = "unavailable"
)

type Error struct {
	Reason Reason
	Err    error
}

func (e *Error) Error() string {
	if e == nil {
		return ""
	}
	if e.Err != nil {
		return fmt.Sprintf("auth rejected (%s): %v", e.Reason, e.Err)
	}
	return fmt.Sprintf("auth rejected (%s)", e.Reason)
}

func (e *Error) Unwrap() error { return e.Err }

func reject(reason Reason, err error) *Error {
	return &Error{Reason: reason, Err: err}
}

// ReasonOf extracts the rejection reason, or "" for non-auth errors.
func ReasonOf(err error) Reason {
	var ae *Error
	if errors.As(err, &ae) {
		return ae.Reason
	}
	return ""
}
