package auth

import (
	"errors"
	"testing"
	"time"

	"github.com/golang-jwt/jwt/v5"
	"github.com/jonboulle/clockwork"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

var testEpoch = time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC)

func newTestSigner(t *testing.T, clock clockwork.Clock) *Signer {
	t.Helper()
	s, err := NewSigner("test-secret", WithClock(clock), WithTTL(ScopeAccess, time.Hour))
	require.NoError(t, err)
	return s
}

func TestNewSignerRequiresSecret(t *testing.T) {
	_, err := NewSigner("  ")
	assert.Error(t, err)
}

func TestIssueAndVerifySession(t *testing.T) {
	s := newTestSigner(t, clockwork.NewFakeClockAt(testEpoch))

	raw, issued, err := Issue[Session](s, "user-1")
	require.NoError(t, err)
	assert.NotEmpty(t, issued.ID)
	assert.Equal(t, testEpoch.Add(time.Hour), issued.ExpiresAt)

	got, err := Verify[Session](s, raw)
	require.NoError(t, err)
	assert.Equal(t, "user-1", got.UserID)
	assert.Equal(t, issued.ID, got.ID)
	assert.True(t, issued.ExpiresAt.Equal(got.ExpiresAt))
	assert.Equal(t, ScopeAccess, got.Scope())
}

func TestIssueRejectsEmptySubject(t *testing.T) {
	s := newTestSigner(t, clockwork.NewFakeClockAt(testEpoch))
	_, _, err := Issue[Session](s, "")
	assert.Error(t, err)
}

func TestVerifyExpired(t *testing.T) {
	clock := clockwork.NewFakeClockAt(testEpoch)
	s := newTestSigner(t, clock)
	raw, _, err := Issue[Session](s, "user-1")
	require.NoError(t, err)

	clock.Advance(2 * time.Hour)
	_, err = Verify[Session](s, raw)
	require.Error(t, err)
	assert.ErrorIs(t, err, ErrExpired)
	assert.Equal(t, ReasonExpired, ReasonOf(err))
}

func TestVerifyBadSignature(t *testing.T) {
	clock := clockwork.NewFakeClockAt(testEpoch)
	other, err := NewSigner("other-secret", WithClock(clock))
	require.NoError(t, err)
	raw, _, err := Issue[Session](other, "user-1")
	require.NoError(t, err)

	_, err = Verify[Session](newTestSigner(t, clock), raw)
	require.Error(t, err)
	assert.ErrorIs(t, err, ErrInvalidToken)
	assert.Equal(t, ReasonSignature, ReasonOf(err))
}

func TestVerifyMalformed(t *testing.T) {
	s := newTestSigner(t, clockwork.NewFakeClockAt(testEpoch))
	for _, raw := range []string{"", "not-a-jwt", "a.b.c"} {
		_, err := Verify[Session](s, raw)
		require.Error(t, err, raw)
		assert.ErrorIs(t, err, ErrInvalidToken, raw)
	}
}

func TestVerifyScopeIsTyped(t *testing.T) {
	s := newTestSigner(t, clockwork.NewFakeClockAt(testEpoch))

	reset, _, err := Issue[PasswordReset](s, "user@example.com")
	require.NoError(t, err)
	refresh, _, err := Issue[Refresh](s, "user-1")
	require.NoError(t, err)
	session, _, err := Issue[Session](s, "user-1")
	require.NoError(t, err)

	for _, raw := range []string{reset, refresh} {
		_, err = Verify[Session](s, raw)
		assert.ErrorIs(t, err, ErrScopeMismatch)
		assert.Equal(t, ReasonScope, ReasonOf(err))
	}

	_, err = Verify[PasswordReset](s, session)
	assert.ErrorIs(t, err, ErrScopeMismatch)

	got, err := Verify[PasswordReset](s, reset)
	require.NoError(t, err)
	assert.Equal(t, "user@example.com", got.UserID)
}

func TestVerifySessionRequiresTokenID(t *testing.T) {
	s := newTestSigner(t, clockwork.NewFakeClockAt(testEpoch))
	c := claims{
		Scope: ScopeAccess,
		RegisteredClaims: jwt.RegisteredClaims{
			Subject:   "user-1",
			ExpiresAt: jwt.NewNumericDate(testEpoch.Add(time.Hour)),
		},
	}
	raw, err := jwt.NewWithClaims(jwt.SigningMethodHS256, c).SignedString([]byte("test-secret"))
	require.NoError(t, err)

	_, err = Verify[Session](s, raw)
	assert.Equal(t, ReasonTokenID, ReasonOf(err))

	var ae *Error
	require.True(t, errors.As(err, &ae))
	assert.Contains(t, ae.Error(), "missing_id")
}

func TestVerifyRejectsOtherAlgorithms(t *testing.T) {
	s := newTestSigner(t, clockwork.NewFakeClockAt(testEpoch))
	c := claims{
		Scope: ScopeAccess,
		RegisteredClaims: jwt.RegisteredClaims{
			ID:        "jti",
			Subject:   "user-1",
			ExpiresAt: jwt.NewNumericDate(testEpoch.Add(time.Hour)),
		},
	}
	raw, err := jwt.NewWithClaims(jwt.SigningMethodHS512, c).SignedString([]byte("test-secret"))
	require.NoError(t, err)

	_, err = Verify[Session](s, raw)
	assert.ErrorIs(t, err, ErrInvalidToken)
}

func TestTokenRemaining(t *testing.T) {
	tok := Token[Session]{ExpiresAt: testEpoch}
	assert.Equal(t, time.Minute, tok.Remaining(testEpoch.Add(-time.Minute)))
	assert.Zero(t, tok.Remaining(testEpoch.Add(time.Minute)))
}
