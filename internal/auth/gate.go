package auth

import (
	"context"
	"fmt"

	"github.com/yungbote/social-backend/internal/observability"
	"github.com/yungbote/social-backend/internal/platform/logger"
)

// Gate decides whether a presented credential may open a session. It has no
// side effects; callers act on the returned error.
type Gate struct {
	log     *logger.Logger
	signer  *Signer
	store   RevocationStore
	metrics *observability.Metrics
}

func NewGate(log *logger.Logger, signer *Signer, store RevocationStore, metrics *observability.Metrics) *Gate {
	return &Gate{
		log:     log.With("component", "TokenGate"),
		signer:  signer,
		store:   store,
		metrics: metrics,
	}
}

func (g *Gate) Signer() *Signer { return g.signer }

// Authorize verifies raw as a token of purpose P. Revocable purposes are also
// checked against the revocation store; a store failure rejects the token.
func Authorize[P Purpose](ctx context.Context, g *Gate, raw string) (Token[P], error) {
	tok, err := Verify[P](g.signer, raw)
	if err != nil {
		g.rejected(err)
		return Token[P]{}, err
	}

	var p P
	if !p.revocable() {
		return tok, nil
	}
	if g.store == nil {
		err := reject(ReasonUnavailable, fmt.Errorf("%w: no store configured", ErrRevocationUnavailable))
		g.rejected(err)
		return Token[P]{}, err
	}
	revoked, err := g.store.IsRevoked(ctx, tok.ID)
	if err != nil {
		err := reject(ReasonUnavailable, fmt.Errorf("%w: %v", ErrRevocationUnavailable, err))
		g.rejected(err)
		return Token[P]{}, err
	}
	if revoked {
		err := reject(ReasonRevoked, ErrRevoked)
		g.rejected(err)
		return Token[P]{}, err
	}
	return tok, nil
}

// AuthorizeSession is Authorize for the socket and REST session purpose.
func (g *Gate) AuthorizeSession(ctx context.Context, raw string) (Token[Session], error) {
	return Authorize[Session](ctx, g, raw)
}

// Revoke denylists a session token for the rest of its natural lifetime.
// Tokens that already expired are left alone.
func (g *Gate) Revoke(ctx context.Context, tok Token[Session]) error {
	ttl := tok.Remaining(g.signer.Now())
	if ttl <= 0 {
		g.log.Debug("skip revoking expired token", "token_id", tok.ID)
		return nil
	}
	if g.store == nil {
		return ErrRevocationUnavailable
	}
	entry := RevocationEntry{
		TokenID:   tok.ID,
		UserID:    tok.UserID,
		ExpiresAt: tok.ExpiresAt.Unix(),
		Status:    "blacklist",
	}
	if err := g.store.Revoke(ctx, tok.ID, ttl, entry); err != nil {
		return fmt.Errorf("revoke %s: %w", tok.ID, err)
	}
	g.log.Info("session token revoked", "token_id", tok.ID, "user_id", tok.UserID, "ttl", ttl.String())
	return nil
}

func (g *Gate) rejected(err error) {
	reason := ReasonOf(err)
	g.metrics.AuthRejected(string(reason))
	g.log.Debug("credential rejected", "reason", string(reason), "error", err)
}
