// Package workflow 处理外部工作流引擎的委托：
// 出站 webhook 通知与入站回调落库
package workflow

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log"
	"net/http"
	"time"

	"github.com/google/uuid"
	"github.com/redis/go-redis/v9"
	"gorm.io/datatypes"

	"github.com/ashwinyue/concierge-ai/internal/config"
	"github.com/ashwinyue/concierge-ai/internal/model"
)

// ErrTargetNotConfigured 目标模型未配置 webhook 地址
var ErrTargetNotConfigured = errors.New("workflow target not configured")

// InvalidateChannel 回调后发布对话失效信号的 Redis 频道
const InvalidateChannel = "chat:invalidate"

// Payload 出站 webhook 通知体
type Payload struct {
	ChatID              string              `json:"chatId"`
	UserID              string              `json:"userId"`
	MessageID           string              `json:"messageId"`
	UserMessage         string              `json:"userMessage"`
	UserMessageParts    []model.MessagePart `json:"userMessageParts"`
	UserMessageDatetime time.Time           `json:"userMessageDatetime"`
}

// MessageStore 回调落库依赖
type MessageStore interface {
	SaveMessages(messages []*model.Message) error
}

// Service 工作流委托服务
type Service struct {
	targets    map[string]string
	secret     string
	httpClient *http.Client
	messages   MessageStore
	redis      *redis.Client
}

// NewService 创建委托服务
// redis 为 nil 时回调不发布失效信号
func NewService(cfg config.WorkflowConfig, messages MessageStore, redisClient *redis.Client) *Service {
	return &Service{
		targets:    cfg.Targets,
		secret:     cfg.Secret,
		httpClient: &http.Client{Timeout: 30 * time.Second},
		messages:   messages,
		redis:      redisClient,
	}
}

// IsTarget 判断模型标识是否配置了工作流目标
func (s *Service) IsTarget(target string) bool {
	return s.targets[target] != ""
}

// Dispatch 向目标 webhook POST 通知
// 共享密钥配置时附带 Bearer 头；引擎经回调异步送回助手回复
func (s *Service) Dispatch(ctx context.Context, target string, payload *Payload) error {
	webhookURL := s.targets[target]
	if webhookURL == "" {
		return fmt.Errorf("%w: %s", ErrTargetNotConfigured, target)
	}

	body, err := json.Marshal(payload)
	if err != nil {
		return fmt.Errorf("failed to encode workflow payload: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, webhookURL, bytes.NewReader(body))
	if err != nil {
		return fmt.Errorf("failed to build workflow request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")
	if s.secret != "" {
		req.Header.Set("Authorization", "Bearer "+s.secret)
	}

	resp, err := s.httpClient.Do(req)
	if err != nil {
		return fmt.Errorf("workflow notification failed: %w", err)
	}
	defer resp.Body.Close()
	io.Copy(io.Discard, resp.Body)

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		return fmt.Errorf("workflow target %s returned status %d", target, resp.StatusCode)
	}
	return nil
}

// CallbackRequest 入站回调体
// 仅靠 ChatID 关联回合，引擎不回传消息标识
type CallbackRequest struct {
	ChatID          string              `json:"chatId" binding:"required"`
	ResponseMessage string              `json:"responseMessage"`
	Parts           []model.MessagePart `json:"parts"`
}

// HandleCallback 追加引擎回传的助手消息并发布失效信号
func (s *Service) HandleCallback(ctx context.Context, req *CallbackRequest) error {
	parts := req.Parts
	if len(parts) == 0 {
		parts = []model.MessagePart{{Type: "text", Text: req.ResponseMessage}}
	}
	partsJSON, err := json.Marshal(parts)
	if err != nil {
		return fmt.Errorf("failed to encode callback parts: %w", err)
	}

	msg := &model.Message{
		ID:          uuid.New().String(),
		ChatID:      req.ChatID,
		Role:        model.RoleAssistant,
		Parts:       datatypes.JSON(partsJSON),
		Attachments: datatypes.JSON([]byte("[]")),
		CreatedAt:   time.Now(),
	}
	if err := s.messages.SaveMessages([]*model.Message{msg}); err != nil {
		return fmt.Errorf("failed to save callback message: %w", err)
	}

	// 失效信号尽力而为，轮询端兜底
	if s.redis != nil {
		if err := s.redis.Publish(ctx, InvalidateChannel, req.ChatID).Err(); err != nil {
			log.Printf("[workflow] failed to publish invalidation for chat %s: %v", req.ChatID, err)
		}
	}
	return nil
}
