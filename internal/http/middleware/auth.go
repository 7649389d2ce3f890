package middleware

import (
	"errors"
	"net/http"
	"strings"

	"github.com/gin-gonic/gin"

	"github.com/yungbote/social-backend/internal/auth"
	"github.com/yungbote/social-backend/internal/http/response"
	"github.com/yungbote/social-backend/internal/platform/ctxutil"
	"github.com/yungbote/social-backend/internal/platform/logger"
)

const sessionTokenKey = "session_token"

type AuthMiddleware struct {
	log  *logger.Logger
	gate *auth.Gate
}

func NewAuthMiddleware(log *logger.Logger, gate *auth.Gate) *AuthMiddleware {
	return &AuthMiddleware{log: log.With("Middleware", "AuthMiddleware"), gate: gate}
}

// RequireAuth admits requests carrying a live session token, from the
// Authorization header or the token query parameter.
func (am *AuthMiddleware) RequireAuth() gin.HandlerFunc {
	return func(c *gin.Context) {
		raw := ExtractToken(c)
		if raw == "" {
			response.AbortError(c, http.StatusUnauthorized, "unauthorized", errors.New("missing or invalid token"))
			return
		}
		tok, err := am.gate.AuthorizeSession(c.Request.Context(), raw)
		if err != nil {
			status, code := http.StatusUnauthorized, "unauthorized"
			if auth.ReasonOf(err) == auth.ReasonUnavailable {
				status, code = http.StatusServiceUnavailable, "auth_unavailable"
			}
			response.AbortError(c, status, code, errors.New(string(auth.ReasonOf(err))))
			return
		}

		ctx := ctxutil.WithRequestData(c.Request.Context(), &ctxutil.RequestData{
			UserID:    tok.UserID,
			TokenID:   tok.ID,
			ExpiresAt: tok.ExpiresAt.Unix(),
		})
		c.Request = c.Request.WithContext(ctx)
		c.Set(sessionTokenKey, tok)
		c.Next()
	}
}

// SessionToken returns the token admitted by RequireAuth.
func SessionToken(c *gin.Context) (auth.Token[auth.Session], bool) {
	v, ok := c.Get(sessionTokenKey)
	if !ok {
		return auth.Token[auth.Session]{}, false
	}
	tok, ok := v.(auth.Token[auth.Session])
	return tok, ok
}

func ExtractToken(c *gin.Context) string {
	authHeader := c.GetHeader("Authorization")
	if len(authHeader) > 7 && strings.EqualFold(authHeader[:7], "Bearer ") {
		return strings.TrimSpace(authHeader[7:])
	}
	return strings.TrimSpace(c.Query("token"))
}
