package handler

import (
	"log/slog"
	"net/http"
	"strings"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"

	"github.com/retosmicro/authsvc/internal/auth"
	"github.com/retosmicro/authsvc/internal/models"
)

const (
	claimsKey    = "Claims"
	requestIDKey = "RequestID"

	requestIDHeader = "X-Request-Id"
)

// AuthMiddleware extracts the session token from the Authorization
// header. Both "Bearer" and the legacy "JWT" scheme keyword are valid.
// Verified claims go into the gin context for downstream handlers.
func AuthMiddleware(tokens *auth.TokenManager) gin.HandlerFunc {
	return func(c *gin.Context) {
		authHeader := c.GetHeader("Authorization")
		if authHeader == "" {
			newErrorResponse(c, http.StatusUnauthorized, "empty authorization header")

			return
		}

		parts := strings.SplitN(authHeader, " ", 2)
		if len(parts) != 2 || (parts[0] != "Bearer" && parts[0] != "JWT") {
			newErrorResponse(c, http.StatusUnauthorized, "invalid authorization header")

			return
		}

		claims, err := tokens.Parse(parts[1])
		if err != nil {
			newErrorResponse(c, http.StatusUnauthorized, "invalid token")

			return
		}

		c.Set(claimsKey, claims)

		c.Next()
	}
}

func RequireAdmin() gin.HandlerFunc {
	return func(c *gin.Context) {
		claims, ok := currentClaims(c)
		if !ok {
			newErrorResponse(c, http.StatusUnauthorized, "invalid token")

			return
		}

		if claims.Role != models.RoleAdmin {
			newErrorResponse(c, http.StatusForbidden, "admin role required")

			return
		}

		c.Next()
	}
}

func currentClaims(c *gin.Context) (*auth.Claims, bool) {
	value, ok := c.Get(claimsKey)
	if !ok {
		return nil, false
	}

	claims, ok := value.(*auth.Claims)

	return claims, ok
}

func RequestID() gin.HandlerFunc {
	return func(c *gin.Context) {
		id := c.GetHeader(requestIDHeader)
		if id == "" {
			id = uuid.NewString()
		}

		c.Set(requestIDKey, id)
		c.Header(requestIDHeader, id)

		c.Next()
	}
}

func RequestLogger(log *slog.Logger) gin.HandlerFunc {
	return func(c *gin.Context) {
		start := time.Now()

		c.Next()

		log.Info("request",
			slog.String("request_id", c.GetString(requestIDKey)),
			slog.String("method", c.Request.Method),
			slog.String("path", c.Request.URL.Path),
			slog.Int("status", c.Writer.Status()),
			slog.Duration("duration", time.Since(start)),
		)
	}
}
