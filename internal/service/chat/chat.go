// Package chat 实现单轮对话编排：历史加载、模型流式生成、
// 工具进度多路复用、流过滤与回合持久化
package chat

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log"
	"strings"
	"time"

	"github.com/cloudwego/eino/adk"
	einomodel "github.com/cloudwego/eino/components/model"
	"github.com/cloudwego/eino/components/tool"
	"github.com/cloudwego/eino/compose"
	"github.com/cloudwego/eino/schema"
	"github.com/google/uuid"
	"gorm.io/datatypes"

	"github.com/ashwinyue/concierge-ai/internal/model"
	"github.com/ashwinyue/concierge-ai/internal/service/tools"
	"github.com/ashwinyue/concierge-ai/internal/service/types"
	"github.com/ashwinyue/concierge-ai/internal/service/workflow"
)

// 编排器可区分错误
var (
	ErrProfileNotFound       = errors.New("user profile not found")
	ErrNotOwner              = errors.New("chat does not belong to the caller")
	ErrUnknownModel          = errors.New("unknown chat model")
	ErrWorkflowNotConfigured = errors.New("assistant configuration error")
	ErrChatNotFound          = errors.New("chat not found")
)

const (
	defaultTurnTimeout        = 5 * time.Minute
	outboundChannelBufferSize = 32
	errorFlushTimeout         = 5 * time.Second
)

// ChatStore 对话持久化依赖
type ChatStore interface {
	GetChatByID(id string) (*model.Chat, error)
	SaveChat(chat *model.Chat) error
	UpdateVisibility(id, visibility string) error
	GetMessagesByChatID(chatID string) ([]*model.Message, error)
	SaveMessages(messages []*model.Message) error
	DeleteChatByID(id, userID string) error
	ListChatsByUser(userID string, offset, limit int) ([]*model.Chat, error)
}

// ProfileStore 主体解析依赖
type ProfileStore interface {
	GetBySubject(subject string) (*model.UserProfile, error)
}

// TitleGenerator 对话标题生成依赖
type TitleGenerator interface {
	Title(ctx context.Context, firstMessage string) string
}

// ToolProvider 按轮次装配工具集
type ToolProvider interface {
	Assemble(binding tools.Binding) []tool.BaseTool
}

// Dispatcher 外部工作流分发依赖
type Dispatcher interface {
	Dispatch(ctx context.Context, target string, payload *workflow.Payload) error
}

// Service 对话编排服务
type Service struct {
	chats       ChatStore
	profiles    ProfileStore
	titles      TitleGenerator
	chatModel   einomodel.ToolCallingChatModel
	tools       ToolProvider
	workflow    Dispatcher
	turnTimeout time.Duration
}

// Config 编排服务构造参数
type Config struct {
	Chats       ChatStore
	Profiles    ProfileStore
	Titles      TitleGenerator
	ChatModel   einomodel.ToolCallingChatModel
	Tools       ToolProvider
	Workflow    Dispatcher
	TurnTimeout time.Duration
}

// NewService 创建编排服务
func NewService(cfg Config) *Service {
	timeout := cfg.TurnTimeout
	if timeout <= 0 {
		timeout = defaultTurnTimeout
	}
	return &Service{
		chats:       cfg.Chats,
		profiles:    cfg.Profiles,
		titles:      cfg.Titles,
		chatModel:   cfg.ChatModel,
		tools:       cfg.Tools,
		workflow:    cfg.Workflow,
		turnTimeout: timeout,
	}
}

// IncomingMessage 客户端提交的用户消息
type IncomingMessage struct {
	ID          string              `json:"id"`
	Role        string              `json:"role"`
	Content     string              `json:"content"`
	Parts       []model.MessagePart `json:"parts"`
	Attachments []map[string]any    `json:"attachments,omitempty"`
	CreatedAt   time.Time           `json:"created_at"`
}

// text 拼接消息的全部文本内容
func (m *IncomingMessage) text() string {
	if len(m.Parts) == 0 {
		return m.Content
	}
	var texts []string
	for _, p := range m.Parts {
		if p.Type == "text" && p.Text != "" {
			texts = append(texts, p.Text)
		}
	}
	return strings.Join(texts, "\n")
}

// TurnRequest 单轮对话请求
type TurnRequest struct {
	ChatID             string          `json:"id" binding:"required"`
	Message            IncomingMessage `json:"message" binding:"required"`
	SelectedChatModel  string          `json:"selected_chat_model"`
	SelectedVisibility string          `json:"selected_visibility"`
}

// TurnResult 单轮对话结果
// Delegated 为真表示已交给外部工作流，无流返回
type TurnResult struct {
	Delegated bool
	Stream    <-chan types.StreamChunk
}

// HandleTurn 处理一轮对话
// 副作用顺序：鉴权与归属校验先于任何写入，用户消息先于生成持久化
func (s *Service) HandleTurn(ctx context.Context, subject string, req *TurnRequest) (*TurnResult, error) {
	profile, err := s.profiles.GetBySubject(subject)
	if err != nil {
		return nil, fmt.Errorf("%w: %s", ErrProfileNotFound, subject)
	}
	userID := profile.ID

	modelInfo, ok := LookupModel(req.SelectedChatModel)
	if !ok {
		if req.SelectedChatModel != "" {
			return nil, fmt.Errorf("%w: %s", ErrUnknownModel, req.SelectedChatModel)
		}
		modelInfo, _ = LookupModel(DefaultChatModel)
	}

	if err := s.ensureChat(ctx, userID, req); err != nil {
		return nil, err
	}

	userMessage, err := s.saveUserMessage(req)
	if err != nil {
		return nil, err
	}

	if modelInfo.IsWorkflow {
		if err := s.delegate(ctx, userID, modelInfo.ID, req, userMessage); err != nil {
			return nil, err
		}
		return &TurnResult{Delegated: true}, nil
	}

	stream := s.runModelTurn(ctx, userID, req)
	return &TurnResult{Stream: stream}, nil
}

// ensureChat 解析或创建对话行，校验归属并同步可见性
func (s *Service) ensureChat(ctx context.Context, userID string, req *TurnRequest) error {
	existing, err := s.chats.GetChatByID(req.ChatID)
	if err != nil {
		// 新对话：标题生成尽力而为，失败时 Title 内部回退
		title := s.titles.Title(ctx, req.Message.text())
		visibility := req.SelectedVisibility
		if visibility == "" {
			visibility = model.VisibilityPrivate
		}
		return s.chats.SaveChat(&model.Chat{
			ID:         req.ChatID,
			UserID:     userID,
			Title:      title,
			Visibility: visibility,
		})
	}

	if existing.UserID != userID {
		return ErrNotOwner
	}
	if req.SelectedVisibility != "" && existing.Visibility != req.SelectedVisibility {
		if err := s.chats.UpdateVisibility(req.ChatID, req.SelectedVisibility); err != nil {
			return fmt.Errorf("failed to update chat visibility: %w", err)
		}
	}
	return nil
}

// saveUserMessage 持久化用户消息并返回存储形态
func (s *Service) saveUserMessage(req *TurnRequest) (*model.Message, error) {
	parts := req.Message.Parts
	if len(parts) == 0 {
		parts = []model.MessagePart{{Type: "text", Text: req.Message.Content}}
	}
	partsJSON, err := json.Marshal(parts)
	if err != nil {
		return nil, fmt.Errorf("failed to encode message parts: %w", err)
	}
	attachments := req.Message.Attachments
	if attachments == nil {
		attachments = []map[string]any{}
	}
	attachmentsJSON, err := json.Marshal(attachments)
	if err != nil {
		return nil, fmt.Errorf("failed to encode attachments: %w", err)
	}

	id := req.Message.ID
	if id == "" {
		id = uuid.New().String()
	}
	createdAt := req.Message.CreatedAt
	if createdAt.IsZero() {
		createdAt = time.Now()
	}

	msg := &model.Message{
		ID:          id,
		ChatID:      req.ChatID,
		Role:        model.RoleUser,
		Parts:       datatypes.JSON(partsJSON),
		Attachments: datatypes.JSON(attachmentsJSON),
		CreatedAt:   createdAt,
	}
	if err := s.chats.SaveMessages([]*model.Message{msg}); err != nil {
		return nil, fmt.Errorf("failed to save user message: %w", err)
	}
	return msg, nil
}

// delegate 把回合交给外部工作流引擎
func (s *Service) delegate(ctx context.Context, userID, target string, req *TurnRequest, userMessage *model.Message) error {
	payload := &workflow.Payload{
		ChatID:              req.ChatID,
		UserID:              userID,
		MessageID:           userMessage.ID,
		UserMessage:         req.Message.text(),
		UserMessageParts:    req.Message.Parts,
		UserMessageDatetime: userMessage.CreatedAt,
	}

	if err := s.workflow.Dispatch(ctx, target, payload); err != nil {
		if errors.Is(err, workflow.ErrTargetNotConfigured) {
			return fmt.Errorf("%w: %s", ErrWorkflowNotConfigured, target)
		}
		return fmt.Errorf("workflow dispatch failed: %w", err)
	}
	return nil
}

// runModelTurn 本地模型路径：流式生成，经门控过滤后写出站通道
// 整轮受墙钟上限约束；通道在回合结束或出错后关闭
func (s *Service) runModelTurn(ctx context.Context, userID string, req *TurnRequest) <-chan types.StreamChunk {
	out := make(chan types.StreamChunk, outboundChannelBufferSize)

	// 客户端断开不终止生成，回合用独立的超时上下文
	turnCtx, cancel := context.WithTimeout(context.WithoutCancel(ctx), s.turnTimeout)

	gate := newToolCallGate()
	emit := func(chunk types.StreamChunk) {
		if !gate.Allow(chunk) {
			return
		}
		select {
		case out <- chunk:
		case <-turnCtx.Done():
		}
	}

	go func() {
		defer close(out)
		defer cancel()

		if err := s.generate(turnCtx, userID, req, emit); err != nil {
			log.Printf("[chat] turn %s generation failed: %v", req.ChatID, err)
			deliverError(out, err.Error())
		}
	}()

	return out
}

// deliverError 把终止性错误块送入通道，流随即结束
// 错误块绕过门控；缓冲占满时等待消费端腾位（处理器在客户端断开后
// 仍持续排空通道），仅在消费端彻底消失时放弃
func deliverError(out chan<- types.StreamChunk, msg string) {
	select {
	case out <- types.StreamChunk{Type: types.ChunkError, Text: msg}:
	case <-time.After(errorFlushTimeout):
	}
}

// generate 运行模型并多路复用文本、工具调用与工具结果
func (s *Service) generate(ctx context.Context, userID string, req *TurnRequest, emit types.EmitFunc) error {
	history, err := s.chats.GetMessagesByChatID(req.ChatID)
	if err != nil {
		return fmt.Errorf("failed to load history: %w", err)
	}
	messages := normalizeMessages(history)

	boundTools := s.tools.Assemble(tools.Binding{
		UserID: userID,
		ChatID: req.ChatID,
		Emit:   emit,
	})

	agent, err := adk.NewChatModelAgent(ctx, &adk.ChatModelAgentConfig{
		Name:        "concierge",
		Description: "Personal concierge assistant",
		Instruction: systemPrompt,
		Model:       s.chatModel,
		ToolsConfig: adk.ToolsConfig{
			ToolsNodeConfig: compose.ToolsNodeConfig{
				Tools:               boundTools,
				ToolCallMiddlewares: tools.Middlewares(),
			},
		},
	})
	if err != nil {
		return fmt.Errorf("failed to create agent: %w", err)
	}

	iter := agent.Run(ctx, &adk.AgentInput{
		Messages:        messages,
		EnableStreaming: true,
	})

	var fullText strings.Builder
	var toolRecords []model.ToolCallRecord

	for {
		event, ok := iter.Next()
		if !ok {
			break
		}
		if event.Err != nil {
			if event.Err == io.EOF {
				break
			}
			return fmt.Errorf("agent event error: %w", event.Err)
		}
		if event.Output == nil || event.Output.MessageOutput == nil {
			continue
		}

		msgVar := event.Output.MessageOutput
		if msgVar.IsStreaming && msgVar.MessageStream != nil {
			if err := pumpStream(msgVar.MessageStream, emit, &fullText, &toolRecords); err != nil {
				return err
			}
			continue
		}
		if msgVar.Message == nil {
			continue
		}

		switch msgVar.Role {
		case schema.Assistant:
			consumeAssistantMessage(msgVar.Message, emit, &fullText, &toolRecords)
		case schema.Tool:
			recordToolResult(msgVar.Message, msgVar.ToolName, emit, &toolRecords)
		}
	}

	return s.saveAssistantMessage(req.ChatID, fullText.String(), toolRecords)
}

// pumpStream 消费一条流式助手消息
func pumpStream(stream *schema.StreamReader[*schema.Message], emit types.EmitFunc, fullText *strings.Builder, toolRecords *[]model.ToolCallRecord) error {
	for {
		chunk, err := stream.Recv()
		if err == io.EOF {
			return nil
		}
		if err != nil {
			return fmt.Errorf("message stream error: %w", err)
		}
		if chunk.Role == schema.Tool {
			recordToolResult(chunk, "", emit, toolRecords)
			continue
		}
		consumeAssistantMessage(chunk, emit, fullText, toolRecords)
	}
}

// consumeAssistantMessage 处理助手消息或消息分片
// 工具调用分片按顺序累积参数，首个带名字的分片发出调用块
func consumeAssistantMessage(msg *schema.Message, emit types.EmitFunc, fullText *strings.Builder, toolRecords *[]model.ToolCallRecord) {
	for _, tc := range msg.ToolCalls {
		if tc.Function.Name != "" {
			*toolRecords = append(*toolRecords, model.ToolCallRecord{
				ID:        tc.ID,
				Name:      tc.Function.Name,
				Arguments: tc.Function.Arguments,
			})
			emit(types.StreamChunk{
				Type:       types.ChunkToolCall,
				ToolCallID: tc.ID,
				ToolName:   tc.Function.Name,
				Arguments:  tc.Function.Arguments,
			})
			continue
		}
		// 参数续传分片，归属最近一次调用
		if n := len(*toolRecords); n > 0 {
			(*toolRecords)[n-1].Arguments += tc.Function.Arguments
		}
	}

	if msg.Content != "" {
		fullText.WriteString(msg.Content)
		emit(types.StreamChunk{Type: types.ChunkText, Text: msg.Content})
	}
}

// recordToolResult 发出工具结果块并回填对应调用记录
func recordToolResult(msg *schema.Message, toolName string, emit types.EmitFunc, toolRecords *[]model.ToolCallRecord) {
	emit(types.StreamChunk{
		Type:       types.ChunkToolResult,
		ToolCallID: msg.ToolCallID,
		ToolName:   toolName,
		Result:     msg.Content,
	})
	for i := range *toolRecords {
		if (*toolRecords)[i].ID == msg.ToolCallID {
			(*toolRecords)[i].Result = msg.Content
			return
		}
	}
}

// saveAssistantMessage 合成并持久化助手消息
// 已流出的内容不会因持久化失败而撤回，错误向上传播为错误块
func (s *Service) saveAssistantMessage(chatID, text string, toolRecords []model.ToolCallRecord) error {
	var parts any
	if len(toolRecords) > 0 {
		parts = map[string]any{"tool_calls": toolRecords, "text": text}
	} else {
		parts = []model.MessagePart{{Type: "text", Text: text}}
	}
	partsJSON, err := json.Marshal(parts)
	if err != nil {
		return fmt.Errorf("failed to encode assistant parts: %w", err)
	}

	msg := &model.Message{
		ID:          uuid.New().String(),
		ChatID:      chatID,
		Role:        model.RoleAssistant,
		Parts:       datatypes.JSON(partsJSON),
		Attachments: datatypes.JSON([]byte("[]")),
		CreatedAt:   time.Now(),
	}
	if err := s.chats.SaveMessages([]*model.Message{msg}); err != nil {
		return fmt.Errorf("failed to save assistant message: %w", err)
	}
	return nil
}

// normalizeMessages 把存储消息转换为模型输入
// 文本部分拼接；助手消息中的工具调用记录还原为调用与结果消息对
func normalizeMessages(history []*model.Message) []adk.Message {
	out := make([]adk.Message, 0, len(history))
	for _, msg := range history {
		role := roleFor(msg.Role)

		text, records := decodeParts(msg.Parts)

		if role == schema.Assistant && len(records) > 0 {
			calls := make([]schema.ToolCall, 0, len(records))
			for _, r := range records {
				calls = append(calls, schema.ToolCall{
					ID: r.ID,
					Function: schema.FunctionCall{
						Name:      r.Name,
						Arguments: r.Arguments,
					},
				})
			}
			out = append(out, &schema.Message{Role: schema.Assistant, Content: text, ToolCalls: calls})
			for _, r := range records {
				out = append(out, schema.ToolMessage(r.Result, r.ID))
			}
			continue
		}

		if text == "" {
			continue
		}
		out = append(out, &schema.Message{Role: role, Content: text})
	}
	return out
}

func roleFor(role string) schema.RoleType {
	switch role {
	case model.RoleAssistant:
		return schema.Assistant
	case model.RoleSystem:
		return schema.System
	case model.RoleTool:
		return schema.Tool
	default:
		return schema.User
	}
}

// decodeParts 解析消息 parts 的两种存储形态：
// 文本部分数组，或带 tool_calls 的对象
func decodeParts(raw datatypes.JSON) (string, []model.ToolCallRecord) {
	var parts []model.MessagePart
	if err := json.Unmarshal(raw, &parts); err == nil {
		var texts []string
		for _, p := range parts {
			if p.Type == "text" && p.Text != "" {
				texts = append(texts, p.Text)
			}
		}
		return strings.Join(texts, "\n"), nil
	}

	var obj struct {
		Text      string                 `json:"text"`
		ToolCalls []model.ToolCallRecord `json:"tool_calls"`
	}
	if err := json.Unmarshal(raw, &obj); err == nil {
		return obj.Text, obj.ToolCalls
	}

	// 历史数据可能存过裸字符串
	var s string
	if err := json.Unmarshal(raw, &s); err == nil {
		return s, nil
	}
	return "", nil
}

// DeleteChat 删除归属于调用者的对话，归属不符不产生任何变更
func (s *Service) DeleteChat(ctx context.Context, subject, chatID string) error {
	profile, err := s.profiles.GetBySubject(subject)
	if err != nil {
		return fmt.Errorf("%w: %s", ErrProfileNotFound, subject)
	}
	if err := s.chats.DeleteChatByID(chatID, profile.ID); err != nil {
		return fmt.Errorf("%w: %s", ErrChatNotFound, chatID)
	}
	return nil
}

// ListChats 分页列出调用者的对话
func (s *Service) ListChats(ctx context.Context, subject string, page, size int) ([]*model.Chat, error) {
	profile, err := s.profiles.GetBySubject(subject)
	if err != nil {
		return nil, fmt.Errorf("%w: %s", ErrProfileNotFound, subject)
	}
	if page <= 0 {
		page = 1
	}
	if size <= 0 || size > 100 {
		size = 20
	}
	return s.chats.ListChatsByUser(profile.ID, (page-1)*size, size)
}

// GetMessages 返回调用者某个对话的时序历史，供轮询端使用
func (s *Service) GetMessages(ctx context.Context, subject, chatID string) ([]*model.Message, error) {
	profile, err := s.profiles.GetBySubject(subject)
	if err != nil {
		return nil, fmt.Errorf("%w: %s", ErrProfileNotFound, subject)
	}
	chat, err := s.chats.GetChatByID(chatID)
	if err != nil {
		return nil, fmt.Errorf("%w: %s", ErrChatNotFound, chatID)
	}
	if chat.UserID != profile.ID {
		return nil, ErrNotOwner
	}
	return s.chats.GetMessagesByChatID(chatID)
}
