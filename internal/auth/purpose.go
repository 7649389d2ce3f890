package auth

import "time"

// Scope is the wire value of the "scope" claim.
type Scope string

const (
	ScopeAccess        Scope = "access_token"
	ScopeRefresh       Scope = "refresh_token"
	ScopePasswordReset Scope = "password_reset"
)

// Purpose is implemented only by the marker types in this package. Every
// token is typed by its purpose, so a password-reset token cannot be handed to
// code that requires a session.
type Purpose interface {
	Scope() Scope
	// revocable reports whether logout can cut the token short.
	revocable() bool
}

// Session authorizes API and socket access.
type Session struct{}

func (Session) Scope() Scope     { return ScopeAccess }
func (Session) revocable() bool { return true }

// Refresh is exchanged for a new session.
type Refresh struct{}

func (Refresh) Scope() Scope     { return ScopeRefresh }
func (Refresh) revocable() bool { return false }

// PasswordReset is a one-time credential mailed to the user.
type PasswordReset struct{}

func (PasswordReset) Scope() Scope     { return ScopePasswordReset }
func (PasswordReset) revocable() bool { return false }

// Token is a verified credential for purpose P.
type Token[P Purpose] struct {
	ID        string
	UserID    string
	IssuedAt  time.Time
	ExpiresAt time.Time
}

func (t Token[P]) Scope() Scope {
	var p P
	return p.Scope()
}

// Remaining is how long the token stays valid after now; never negative.
func (t Token[P]) Remaining(now time.Time) time.Duration {
	if d := t.ExpiresAt.Sub(now); d > 0 {
		return d
	}
	return 0
}
