package middleware

import (
	"strings"

	"github.com/gin-gonic/gin"
	"gorm.io/gorm"

	"medilink-server/internal/config"
	"medilink-server/internal/models"
	"medilink-server/internal/utils"
)

// AuthMiddleware creates a middleware for JWT authentication.
func AuthMiddleware(cfg *config.Config) gin.HandlerFunc {
	return func(c *gin.Context) {
		authHeader := c.GetHeader("Authorization")
		tokenString := ""
		if authHeader != "" {
			parts := strings.Split(authHeader, " ")
			if len(parts) != 2 || strings.ToLower(parts[0]) != "bearer" {
				utils.Unauthorized(c, "Invalid authorization header format")
				c.Abort()
				return
			}
			tokenString = parts[1]
		} else if c.Request.Method == "GET" && strings.HasSuffix(c.FullPath(), "/stream") {
			// EventSource cannot set headers; the stream accepts the token as a query parameter.
			tokenString = c.Query("access_token")
		}
		if tokenString == "" {
			utils.Unauthorized(c, "Authorization header required")
			c.Abort()
			return
		}

		claims, err := utils.ValidateToken(tokenString, cfg.JWTSecret)
		if err != nil {
			utils.Unauthorized(c, "Invalid token: "+err.Error())
			c.Abort()
			return
		}

		// Set user information in context for downstream handlers
		c.Set("userID", claims.UserID)
		c.Set("userRole", claims.Role)

		c.Next()
	}
}

// RoleAuthMiddleware creates a middleware for role-based authorization.
// It should be used *after* AuthMiddleware. The role is read from the users
// table rather than the token, so a role change applies to tokens already
// issued; the stored role replaces the claim for downstream handlers.
func RoleAuthMiddleware(db *gorm.DB, allowedRoles ...models.Role) gin.HandlerFunc {
	return func(c *gin.Context) {
		userID, ok := GetUserIDFromContext(c)
		if !ok || userID == "" {
			utils.InternalServerError(c, "User id not found in context. AuthMiddleware might be missing.")
			c.Abort()
			return
		}

		role, isAllowed, err := models.HasAnyRole(db.WithContext(c.Request.Context()), userID, allowedRoles...)
		if err != nil {
			utils.InternalServerError(c, "Failed to check user role: "+err.Error())
			c.Abort()
			return
		}
		if role == "" {
			utils.Unauthorized(c, "User no longer exists")
			c.Abort()
			return
		}
		c.Set("userRole", role)

		if !isAllowed {
			utils.Forbidden(c, "You do not have permission to access this resource.")
			c.Abort()
			return
		}

		c.Next()
	}
}

// GetUserIDFromContext returns the authenticated user's id.
func GetUserIDFromContext(c *gin.Context) (string, bool) {
	userID, exists := c.Get("userID")
	if !exists {
		return "", false
	}
	idStr, ok := userID.(string)
	return idStr, ok
}

// GetUserRoleFromContext returns the authenticated user's role.
func GetUserRoleFromContext(c *gin.Context) (models.Role, bool) {
	userRole, exists := c.Get("userRole")
	if !exists {
		return "", false
	}
	role, ok := userRole.(models.Role)
	return role, ok
}
