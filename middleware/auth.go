package middleware

import (
	"net/http"
	"strings"

	"github.com/gin-gonic/gin"
	"go.mongodb.org/mongo-driver/bson/primitive"

	"blogcms/auth"
	"blogcms/policy"
	"blogcms/store"
)

const principalKey = "principal"

// Principal returns the authenticated identity set by RequireAuth.
func Principal(c *gin.Context) (policy.Principal, bool) {
	v, ok := c.Get(principalKey)
	if !ok {
		return policy.Principal{}, false
	}
	p, ok := v.(policy.Principal)
	return p, ok
}

// RequireAuth verifies the bearer token and attaches a typed principal to
// the request context. The user is looked up so the principal always
// carries the current role, not the role at token-issue time.
func RequireAuth(tokens *auth.TokenService, users store.UserStore) gin.HandlerFunc {
	return func(c *gin.Context) {
		if c.Request.Method == "OPTIONS" {
			c.Next()
			return
		}

		authHeader := c.GetHeader("Authorization")
		if authHeader == "" {
			c.JSON(http.StatusUnauthorized, gin.H{
				"success": false,
				"error":   "Access denied. No token provided.",
			})
			c.Abort()
			return
		}

		parts := strings.Split(authHeader, " ")
		if len(parts) != 2 || parts[0] != "Bearer" {
			c.JSON(http.StatusUnauthorized, gin.H{
				"success": false,
				"error":   "Invalid authorization header. Format should be: Bearer <token>",
			})
			c.Abort()
			return
		}

		userIDStr, err := tokens.Verify(parts[1])
		if err != nil {
			c.JSON(http.StatusUnauthorized, gin.H{
				"success": false,
				"error":   "Invalid token.",
			})
			c.Abort()
			return
		}

		userID, err := primitive.ObjectIDFromHex(userIDStr)
		if err != nil {
			c.JSON(http.StatusUnauthorized, gin.H{
				"success": false,
				"error":   "Invalid token.",
			})
			c.Abort()
			return
		}

		user, err := users.FindByID(c.Request.Context(), userID)
		if err != nil {
			c.JSON(http.StatusUnauthorized, gin.H{
				"success": false,
				"error":   "Invalid token.",
			})
			c.Abort()
			return
		}

		c.Set(principalKey, policy.Principal{ID: user.ID, Role: user.Role})
		c.Next()
	}
}

// RequireStaff allows employees and admins through.
func RequireStaff() gin.HandlerFunc {
	return func(c *gin.Context) {
		p, ok := Principal(c)
		if !ok || !policy.CanCreatePost(p) {
			c.JSON(http.StatusForbidden, gin.H{
				"success": false,
				"error":   "Access denied. Employee role required.",
			})
			c.Abort()
			return
		}
		c.Next()
	}
}

// RequireAdmin allows admins only.
func RequireAdmin() gin.HandlerFunc {
	return func(c *gin.Context) {
		p, ok := Principal(c)
		if !ok || !p.IsAdmin() {
			c.JSON(http.StatusForbidden, gin.H{
				"success": false,
				"error":   "Access denied. Admin role required.",
			})
			c.Abort()
			return
		}
		c.Next()
	}
}
