package middleware

import (
	"log"
	"net/http"
	"runtime/debug"

	"github.com/gin-gonic/gin"
)

// RecoveryMiddleware 恢复中间件
// 流已开始写出后发生的 panic 无法再返回 JSON，只记录日志
func RecoveryMiddleware() gin.HandlerFunc {
	return func(c *gin.Context) {
		defer func() {
			if r := recover(); r != nil {
				log.Printf("panic recovered: %s %s: %v\n%s",
					c.Request.Method, c.Request.URL.Path, r, debug.Stack())
				if !c.Writer.Written() {
					c.AbortWithStatusJSON(http.StatusInternalServerError, gin.H{
						"code":    -1,
						"message": "internal server error",
					})
					return
				}
				c.Abort()
			}
		}()
		c.Next()
	}
}
