package middleware

import (
	"net/http"
	"strings"

	"github.com/gin-gonic/gin"

	"buildmate/internal/auth"
)

const (
	userIDKey    = "userID"
	userEmailKey = "userEmail"
)

// AuthMiddleware 校验 Bearer 令牌并将用户身份注入上下文。
// 缺失与无效的令牌返回不同的提示，但过期与格式错误不作区分。
func AuthMiddleware(authService *auth.AuthService) gin.HandlerFunc {
	return func(c *gin.Context) {
		header := c.GetHeader("Authorization")
		if header == "" {
			c.AbortWithStatusJSON(http.StatusUnauthorized, gin.H{"message": "No token"})
			return
		}

		parts := strings.Fields(header)
		if len(parts) < 2 {
			c.AbortWithStatusJSON(http.StatusUnauthorized, gin.H{"message": "Invalid token"})
			return
		}

		claims, err := authService.ValidateToken(parts[1])
		if err != nil {
			c.AbortWithStatusJSON(http.StatusUnauthorized, gin.H{"message": "Invalid token"})
			return
		}

		c.Set(userIDKey, claims.UserID)
		c.Set(userEmailKey, claims.Email)
		c.Next()
	}
}

// UserIDFromContext 返回上下文中的用户 ID。
func UserIDFromContext(c *gin.Context) (uint, bool) {
	value, exists := c.Get(userIDKey)
	if !exists {
		return 0, false
	}
	id, ok := value.(uint)
	return id, ok
}

// UserEmailFromContext 返回上下文中的用户邮箱。
func UserEmailFromContext(c *gin.Context) (string, bool) {
	value, exists := c.Get(userEmailKey)
	if !exists {
		return "", false
	}
	email, ok := value.(string)
	return email, ok
}
