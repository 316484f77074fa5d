package handler

import (
	"errors"
	"net/http"
	"strconv"

	"github.com/ashwinyue/concierge-ai/internal/middleware"
	"github.com/ashwinyue/concierge-ai/internal/service"
	"github.com/ashwinyue/concierge-ai/internal/service/chat"
	"github.com/ashwinyue/concierge-ai/internal/service/types"
	"github.com/gin-gonic/gin"
)

// ChatHandler 聊天处理器
type ChatHandler struct {
	svc *service.Services
}

// NewChatHandler 创建聊天处理器
func NewChatHandler(svc *service.Services) *ChatHandler {
	return &ChatHandler{svc: svc}
}

// getPagination 获取分页参数
func getPagination(c *gin.Context) (page, size int) {
	page, _ = strconv.Atoi(c.DefaultQuery("page", "1"))
	size, _ = strconv.Atoi(c.DefaultQuery("size", "20"))
	if page <= 0 {
		page = 1
	}
	if size <= 0 || size > 100 {
		size = 20
	}
	return
}

// HandleTurn 处理一轮对话
// 工作流模型返回 204，普通模型以 SSE 推送类型化块
func (h *ChatHandler) HandleTurn(c *gin.Context) {
	subject, _ := middleware.GetSubject(c)

	var req chat.TurnRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, Response{Code: -1, Message: err.Error()})
		return
	}

	result, err := h.svc.Chat.HandleTurn(c.Request.Context(), subject, &req)
	if err != nil {
		turnError(c, err)
		return
	}

	if result.Delegated {
		c.Status(http.StatusNoContent)
		return
	}

	// 设置 SSE 响应头
	c.Writer.Header().Set("Content-Type", "text/event-stream")
	c.Writer.Header().Set("Cache-Control", "no-cache")
	c.Writer.Header().Set("Connection", "keep-alive")
	c.Writer.Header().Set("Transfer-Encoding", "chunked")

	// 客户端断开后继续排空通道，生成与持久化在服务端照常完成
	disconnected := false
	for chunk := range result.Stream {
		if disconnected {
			continue
		}
		select {
		case <-c.Request.Context().Done():
			disconnected = true
		default:
			c.SSEvent("", chunk)
			c.Writer.Flush()
			if chunk.Type == types.ChunkError {
				disconnected = true
			}
		}
	}
}

// turnError 按错误类型映射状态码
func turnError(c *gin.Context, err error) {
	switch {
	case errors.Is(err, chat.ErrProfileNotFound):
		c.JSON(http.StatusUnauthorized, Response{Code: -1, Message: err.Error()})
	case errors.Is(err, chat.ErrNotOwner):
		c.JSON(http.StatusForbidden, Response{Code: -1, Message: err.Error()})
	case errors.Is(err, chat.ErrUnknownModel):
		c.JSON(http.StatusBadRequest, Response{Code: -1, Message: err.Error()})
	case errors.Is(err, chat.ErrChatNotFound):
		c.JSON(http.StatusNotFound, Response{Code: -1, Message: err.Error()})
	default:
		errorResponse(c, err)
	}
}

// DeleteChat 删除聊天
func (h *ChatHandler) DeleteChat(c *gin.Context) {
	subject, _ := middleware.GetSubject(c)

	id := c.Query("id")
	if id == "" {
		c.JSON(http.StatusBadRequest, Response{Code: -1, Message: "missing chat id"})
		return
	}

	if err := h.svc.Chat.DeleteChat(c.Request.Context(), subject, id); err != nil {
		turnError(c, err)
		return
	}

	success(c, gin.H{"id": id})
}

// ListChats 列出当前用户的聊天
func (h *ChatHandler) ListChats(c *gin.Context) {
	subject, _ := middleware.GetSubject(c)
	page, size := getPagination(c)

	chats, err := h.svc.Chat.ListChats(c.Request.Context(), subject, page, size)
	if err != nil {
		turnError(c, err)
		return
	}

	c.JSON(http.StatusOK, gin.H{
		"code":    0,
		"message": "success",
		"data": gin.H{
			"items": chats,
			"page":  page,
			"size":  size,
		},
	})
}

// GetMessages 获取聊天消息
func (h *ChatHandler) GetMessages(c *gin.Context) {
	subject, _ := middleware.GetSubject(c)
	id := c.Param("id")

	messages, err := h.svc.Chat.GetMessages(c.Request.Context(), subject, id)
	if err != nil {
		turnError(c, err)
		return
	}

	success(c, gin.H{"messages": messages})
}

// ListModels 列出可用的对话模型
func (h *ChatHandler) ListModels(c *gin.Context) {
	success(c, gin.H{"models": chat.Models()})
}
