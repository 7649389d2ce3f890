package handlers

import (
	"errors"
	"net/http"

	"github.com/gin-gonic/gin"

	"github.com/yungbote/social-backend/internal/auth"
	"github.com/yungbote/social-backend/internal/http/middleware"
	"github.com/yungbote/social-backend/internal/http/response"
	"github.com/yungbote/social-backend/internal/platform/apierr"
	"github.com/yungbote/social-backend/internal/platform/logger"
)

type AuthHandler struct {
	log  *logger.Logger
	gate *auth.Gate
}

func NewAuthHandler(log *logger.Logger, gate *auth.Gate) *AuthHandler {
	return &AuthHandler{log: log.With("handler", "AuthHandler"), gate: gate}
}

// Logout revokes the caller's session token for the rest of its lifetime.
// Sockets already open with it stay open; new handshakes are refused.
func (ah *AuthHandler) Logout(c *gin.Context) {
	tok, ok := middleware.SessionToken(c)
	if !ok {
		response.RespondError(c, http.StatusUnauthorized, "unauthorized", errors.New("not authenticated"))
		return
	}
	if err := ah.gate.Revoke(c.Request.Context(), tok); err != nil {
		ah.log.Error("logout failed", "user_id", tok.UserID, "error", err)
		response.RespondAPIError(c, apierr.New(http.StatusServiceUnavailable, "logout_failed", errors.New("could not revoke session")))
		return
	}
	response.RespondOK(c, gin.H{"ok": true})
}
