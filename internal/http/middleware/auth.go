// README: Bearer auth and caller identity resolution.
package middleware

import (
	"context"
	"errors"
	"net/http"
	"strings"
	"time"

	"github.com/gin-gonic/gin"
	"go.uber.org/zap"

	"tripease/internal/apperr"
	"tripease/internal/infra"
	"tripease/internal/modules/identity"
)

const (
	ctxUID      = "auth.uid"
	ctxEmail    = "auth.email"
	ctxRole     = "auth.role"
	ctxName     = "auth.name"
	ctxIdentity = "auth.identity"
)

// Auth verifies the bearer token and stores its subject, email and role claim.
func Auth(verifier infra.TokenVerifier) gin.HandlerFunc {
	return func(c *gin.Context) {
		header := c.GetHeader("Authorization")
		raw, ok := strings.CutPrefix(header, "Bearer ")
		if !ok || strings.TrimSpace(raw) == "" {
			abortJSON(c, http.StatusUnauthorized, "missing bearer token")
			return
		}
		token, err := verifier.VerifyIDToken(c.Request.Context(), strings.TrimSpace(raw))
		if err != nil {
			abortJSON(c, http.StatusUnauthorized, "invalid or expired token")
			return
		}
		c.Set(ctxUID, token.Subject)
		c.Set(ctxEmail, token.Email)
		if role, ok := token.Claims["role"].(string); ok {
			c.Set(ctxRole, role)
		}
		if name, ok := token.Claims["name"].(string); ok {
			c.Set(ctxName, name)
		}
		c.Next()
	}
}

// IdentityService resolves token emails to registered callers.
type IdentityService interface {
	Resolve(ctx context.Context, email string) (identity.Identity, error)
	Register(ctx context.Context, email string, role identity.Role, name string) (identity.Identity, error)
}

// Identify resolves the authenticated email once per request. Unknown callers
// whose token carries a valid role claim are registered on first use.
func Identify(identities IdentityService, log *zap.Logger) gin.HandlerFunc {
	if log == nil {
		log = zap.NewNop()
	}
	return func(c *gin.Context) {
		ctx := c.Request.Context()
		email := CallerEmail(c)
		id, err := identities.Resolve(ctx, email)
		if errors.Is(err, apperr.ErrUnauthenticated) && email != "" {
			if role := identity.Role(strings.ToUpper(CallerRole(c))); role.Valid() {
				id, err = identities.Register(ctx, email, role, c.GetString(ctxName))
				if err == nil {
					log.Info("caller registered", zap.String("email", id.Email), zap.String("role", string(id.Role)))
				}
			}
		}
		if err != nil {
			status := http.StatusUnauthorized
			msg := apperr.Message(err)
			if !errors.Is(err, apperr.ErrUnauthenticated) {
				log.Error("resolve caller", zap.String("email", email), zap.Error(err))
				status, msg = http.StatusInternalServerError, "internal error"
			}
			abortJSON(c, status, msg)
			return
		}
		c.Set(ctxIdentity, id)
		c.Next()
	}
}

func CallerUID(c *gin.Context) string   { return c.GetString(ctxUID) }
func CallerEmail(c *gin.Context) string { return c.GetString(ctxEmail) }
func CallerRole(c *gin.Context) string  { return c.GetString(ctxRole) }

// Caller returns the resolved identity, or the zero Identity outside Identify.
func Caller(c *gin.Context) identity.Identity {
	if v, ok := c.Get(ctxIdentity); ok {
		if id, ok := v.(identity.Identity); ok {
			return id
		}
	}
	return identity.Identity{}
}

// abortJSON writes the shared error payload and stops the chain.
func abortJSON(c *gin.Context, status int, msg string) {
	c.AbortWithStatusJSON(status, gin.H{
		"status":    status,
		"error":     http.StatusText(status),
		"message":   msg,
		"path":      c.Request.URL.Path,
		"timestamp": time.Now().UTC().Format(time.RFC3339),
	})
}
