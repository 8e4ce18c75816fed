package middleware

import (
	"net/http"
	"slices"
	"strings"

	"github.com/gin-gonic/gin"

	"github.com/suPer8Hu/adforge/internal/auth"
	"github.com/suPer8Hu/adforge/internal/common"
)

const (
	UserIDKey = "user_id"
	RoleKey   = "role"
)

func AuthRequired(jwtSecret string) gin.HandlerFunc {
	return func(c *gin.Context) {
		h := c.GetHeader("Authorization")
		token, found := strings.CutPrefix(h, "Bearer ")
		if !found || strings.TrimSpace(token) == "" {
			common.AbortFail(c, http.StatusUnauthorized, 40101, "missing bearer token")
			return
		}

		uid, role, err := auth.ParseJWT(strings.TrimSpace(token), jwtSecret)
		if err != nil {
			common.AbortFail(c, http.StatusUnauthorized, 40102, "invalid or expired token")
			return
		}

		c.Set(UserIDKey, uid)
		c.Set(RoleKey, role)
		c.Next()
	}
}

// RequireRoles lets the request through only when the authenticated role is
// in roles. It must run after AuthRequired.
func RequireRoles(roles ...string) gin.HandlerFunc {
	return func(c *gin.Context) {
		role := c.GetString(RoleKey)
		if !slices.Contains(roles, role) {
			common.AbortFail(c, http.StatusForbidden, 40301, "your plan does not include this feature")
			return
		}
		c.Next()
	}
}
