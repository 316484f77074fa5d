package router

import (
	"github.com/ashwinyue/concierge-ai/internal/config"
	"github.com/ashwinyue/concierge-ai/internal/handler"
	"github.com/ashwinyue/concierge-ai/internal/middleware"
	"github.com/gin-gonic/gin"
)

// SetupRouter 设置路由
func SetupRouter(h *handler.Handlers, cfg *config.Config) *gin.Engine {
	r := gin.New()

	// 中间件
	r.Use(middleware.RecoveryMiddleware())
	r.Use(middleware.LoggingMiddleware())
	r.Use(middleware.CORSMiddleware())
	r.Use(middleware.AuthMiddleware(cfg.Auth.JWTSecret))

	// 健康检查
	r.GET("/health", func(c *gin.Context) {
		c.JSON(200, gin.H{"status": "ok"})
	})

	// API v1
	v1 := r.Group("/api/v1")
	{
		// Chat 对话
		chats := v1.Group("", middleware.RequireAuth())
		{
			chats.POST("/chat", h.Chat.HandleTurn)
			chats.DELETE("/chat", h.Chat.DeleteChat)
			chats.GET("/chats", h.Chat.ListChats)
			chats.GET("/chats/:id/messages", h.Chat.GetMessages)
			chats.GET("/models", h.Chat.ListModels)
		}

		// Workflow 回调，使用独立密钥鉴权
		v1.POST("/workflow/callback", h.Workflow.Callback)
	}

	return r
}
