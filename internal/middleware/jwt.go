package middleware

import (
	"strings"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/aura-meet/backend/internal/auth"
	"github.com/aura-meet/backend/pkg/response"
)

const contextIdentity = "identity"

// IdentityVerifier turns a bearer token into a caller. *auth.JWTService satisfies it.
type IdentityVerifier interface {
	VerifyIdentity(token string) (auth.Identity, error)
}

// bearerToken extracts the token from an "Authorization: Bearer <token>" header.
func bearerToken(header string) (string, bool) {
	scheme, token, found := strings.Cut(strings.TrimSpace(header), " ")
	if !found || !strings.EqualFold(scheme, "Bearer") {
		return "", false
	}
	token = strings.TrimSpace(token)
	return token, token != ""
}

// RequireIdentity rejects requests without a valid bearer token and records the caller on the context.
func RequireIdentity(v IdentityVerifier, logger *zap.Logger) gin.HandlerFunc {
	if logger == nil {
		logger = zap.NewNop()
	}
	return func(c *gin.Context) {
		header := c.GetHeader("Authorization")
		if header == "" {
			response.Unauthorized(c, "missing authorization header")
			c.Abort()
			return
		}
		token, ok := bearerToken(header)
		if !ok {
			response.Unauthorized(c, "invalid authorization header")
			c.Abort()
			return
		}
		id, err := v.VerifyIdentity(token)
		if err != nil {
			logger.Debug("token rejected", zap.String("path", c.Request.URL.Path), zap.Error(err))
			response.Unauthorized(c, "invalid or expired token")
			c.Abort()
			return
		}
		c.Set(contextIdentity, id)
		c.Next()
	}
}

// Caller returns the identity RequireIdentity stored, if any.
func Caller(c *gin.Context) (auth.Identity, bool) {
	v, ok := c.Get(contextIdentity)
	if !ok {
		return auth.Identity{}, false
	}
	id, ok := v.(auth.Identity)
	return id, ok && id.UserID != uuid.Nil
}
