package handler

import (
	"crypto/subtle"
	"log"
	"net/http"
	"strings"

	"github.com/ashwinyue/concierge-ai/internal/config"
	"github.com/ashwinyue/concierge-ai/internal/service"
	"github.com/ashwinyue/concierge-ai/internal/service/workflow"
	"github.com/gin-gonic/gin"
)

// WorkflowHandler 外部工作流回调处理器
type WorkflowHandler struct {
	svc            *service.Services
	callbackSecret string
}

// NewWorkflowHandler 创建工作流处理器
func NewWorkflowHandler(svc *service.Services, cfg *config.Config) *WorkflowHandler {
	if cfg.Workflow.CallbackSecret == "" {
		log.Printf("[workflow] callback secret not configured, callback endpoint accepts unauthenticated requests")
	}
	return &WorkflowHandler{svc: svc, callbackSecret: cfg.Workflow.CallbackSecret}
}

// Callback 接收工作流产出的助手消息
// 使用独立的回调密钥鉴权，不走用户 JWT
func (h *WorkflowHandler) Callback(c *gin.Context) {
	if !h.authorized(c) {
		c.JSON(http.StatusUnauthorized, Response{Code: -1, Message: "invalid callback token"})
		return
	}

	var req workflow.CallbackRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, Response{Code: -1, Message: err.Error()})
		return
	}

	if err := h.svc.Workflow.HandleCallback(c.Request.Context(), &req); err != nil {
		errorResponse(c, err)
		return
	}

	success(c, gin.H{"ok": true})
}

// authorized 校验回调密钥；未配置密钥时鉴权可选，直接放行
func (h *WorkflowHandler) authorized(c *gin.Context) bool {
	if h.callbackSecret == "" {
		return true
	}
	authHeader := c.GetHeader("Authorization")
	if !strings.HasPrefix(authHeader, "Bearer ") {
		return false
	}
	token := strings.TrimPrefix(authHeader, "Bearer ")
	return subtle.ConstantTimeCompare([]byte(token), []byte(h.callbackSecret)) == 1
}
