package auth

import (
	"errors"
	"net/http"
	"strings"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/golang-jwt/jwt/v5"

	"voicebot/pkg/logger"
)

const bearerPrefix = "Bearer "

// RequireAccessToken admits dashboard requests carrying a token minted by the
// web app for one business. The identity goes into the request context and
// the request logger is tagged with the tenant. Role checks live in
// internal/rbac.
func RequireAccessToken(m *Manager) gin.HandlerFunc {
	return func(c *gin.Context) {
		raw := strings.TrimSpace(c.GetHeader("Authorization"))
		if !strings.HasPrefix(raw, bearerPrefix) {
			c.AbortWithStatusJSON(http.StatusUnauthorized, gin.H{"error": "missing bearer token"})
			return
		}

		claims, err := m.Verify(strings.TrimPrefix(raw, bearerPrefix), time.Now())
		if err != nil {
			reason := "invalid token"
			if errors.Is(err, jwt.ErrTokenExpired) {
				reason = "token expired"
			}
			logger.FromGin(c).Debug("access token rejected", "reason", reason, "err", err)
			c.AbortWithStatusJSON(http.StatusUnauthorized, gin.H{"error": reason})
			return
		}

		c.Request = c.Request.WithContext(WithIdentity(c.Request.Context(), claims.UserID, claims.BusinessID, claims.Role))
		logger.Annotate(c, "business_id", claims.BusinessID, "user_id", claims.UserID, "role", claims.Role)
		c.Next()
	}
}
