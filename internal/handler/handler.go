package handler

import (
	"github.com/ashwinyue/concierge-ai/internal/config"
	"github.com/ashwinyue/concierge-ai/internal/service"
)

// Handlers 处理器集合
type Handlers struct {
	Chat     *ChatHandler
	Workflow *WorkflowHandler
}

// NewHandlers 创建所有处理器
func NewHandlers(svc *service.Services, cfg *config.Config) *Handlers {
	return &Handlers{
		Chat:     NewChatHandler(svc),
		Workflow: NewWorkflowHandler(svc, cfg),
	}
}
