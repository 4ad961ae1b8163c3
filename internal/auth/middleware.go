package auth

import (
	"net/http"
	"strings"
	"time"

	"github.com/gin-gonic/gin"

	"github.com/Leganyst/visit-scheduler/internal/model"
)

const bearerPrefix = "Bearer "

func abort(c *gin.Context, status int, code, msg string) {
	c.AbortWithStatusJSON(status, gin.H{"error": gin.H{"code": code, "message": msg}})
}

// RequireAccessToken проверяет bearer-токен и кладёт актора в контекст запроса.
func RequireAccessToken(m *Manager) gin.HandlerFunc {
	return func(c *gin.Context) {
		if m == nil {
			abort(c, http.StatusUnauthorized, "UNAUTHORIZED", "authentication is not configured")
			return
		}
		raw := strings.TrimSpace(c.GetHeader("Authorization"))
		if !strings.HasPrefix(raw, bearerPrefix) {
			abort(c, http.StatusUnauthorized, "UNAUTHORIZED", "missing bearer token")
			return
		}
		claims, err := m.Verify(strings.TrimPrefix(raw, bearerPrefix), time.Now())
		if err != nil {
			abort(c, http.StatusUnauthorized, "UNAUTHORIZED", "invalid token")
			return
		}
		actor := ActorFromClaims(claims)
		actor.IP = c.ClientIP()
		actor.UserAgent = c.Request.UserAgent()
		c.Request = c.Request.WithContext(WithActor(c.Request.Context(), actor))
		c.Next()
	}
}

// RequireRoles пропускает только перечисленные типы акторов.
func RequireRoles(roles ...model.ActorType) gin.HandlerFunc {
	return func(c *gin.Context) {
		a, ok := ActorFrom(c.Request.Context())
		if !ok {
			abort(c, http.StatusUnauthorized, "UNAUTHORIZED", "authentication required")
			return
		}
		for _, r := range roles {
			if a.Type == r {
				c.Next()
				return
			}
		}
		abort(c, http.StatusForbidden, "FORBIDDEN", "role not allowed")
	}
}
