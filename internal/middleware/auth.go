package middleware

import (
	"strings"

	"github.com/gin-gonic/gin"
	"github.com/golang-jwt/jwt/v5"
)

// AuthMiddleware 认证中间件
// 解析 Bearer JWT 并把 subject 写入上下文；未携带或无效的 token 不拦截，
// 由 RequireAuth 决定哪些路由必须登录
func AuthMiddleware(jwtSecret string) gin.HandlerFunc {
	return func(c *gin.Context) {
		authHeader := c.GetHeader("Authorization")
		if authHeader != "" && strings.HasPrefix(authHeader, "Bearer ") {
			tokenStr := strings.TrimPrefix(authHeader, "Bearer ")
			if subject, err := parseSubject(tokenStr, jwtSecret); err == nil && subject != "" {
				c.Set("subject", subject)
			}
		}
		c.Next()
	}
}

// RequireAuth 要求有效认证的中间件
// 必须提供带 subject 的有效 JWT，否则返回 401
func RequireAuth() gin.HandlerFunc {
	return func(c *gin.Context) {
		if _, ok := GetSubject(c); !ok {
			c.JSON(401, gin.H{
				"code":    -1,
				"message": "Invalid or missing token",
			})
			c.Abort()
			return
		}
		c.Next()
	}
}

// parseSubject 校验 token 并取出 sub 声明
func parseSubject(tokenStr, secret string) (string, error) {
	token, err := jwt.Parse(tokenStr, func(t *jwt.Token) (interface{}, error) {
		if _, ok := t.Method.(*jwt.SigningMethodHMAC); !ok {
			return nil, jwt.ErrSignatureInvalid
		}
		return []byte(secret), nil
	})
	if err != nil {
		return "", err
	}
	return token.Claims.GetSubject()
}

// GetSubject 从上下文获取当前用户的 subject
func GetSubject(c *gin.Context) (string, bool) {
	subject, exists := c.Get("subject")
	if !exists {
		return "", false
	}
	s, ok := subject.(string)
	if !ok || s == "" {
		return "", false
	}
	return s, true
}
