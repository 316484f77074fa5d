// Package genai 提供文本与结构化输出的统一生成入口
// 结构化输出失败时先做本地修复，再用低成本模型重试一次
package genai

import (
	"context"
	"encoding/json"
	"fmt"
	"strings"

	"github.com/cloudwego/eino-ext/components/model/openai"
	"github.com/cloudwego/eino/components/model"
	"github.com/cloudwego/eino/schema"
	"github.com/kaptinlin/jsonrepair"

	"github.com/ashwinyue/concierge-ai/internal/config"
)

// Generator 文本与结构化输出生成接口
type Generator interface {
	Text(ctx context.Context, prompt string) (string, error)
	Object(ctx context.Context, prompt string, out any) error
	Title(ctx context.Context, firstMessage string) string
}

// Service 生成服务
type Service struct {
	primary model.ToolCallingChatModel
	repair  model.ToolCallingChatModel
}

// NewService 创建生成服务
// primary 用于正常生成，repair 用于结构化输出修复重试
func NewService(ctx context.Context, cfg *config.AIConfig) (*Service, error) {
	primary, err := NewChatModel(ctx, cfg, "")
	if err != nil {
		return nil, fmt.Errorf("failed to create primary model: %w", err)
	}

	repair := primary
	if cfg.RepairModel != "" {
		repair, err = NewChatModel(ctx, cfg, cfg.RepairModel)
		if err != nil {
			return nil, fmt.Errorf("failed to create repair model: %w", err)
		}
	}

	return &Service{primary: primary, repair: repair}, nil
}

// NewWithModels 创建可注入模型的实例，测试用
func NewWithModels(primary, repair model.ToolCallingChatModel) *Service {
	if repair == nil {
		repair = primary
	}
	return &Service{primary: primary, repair: repair}
}

// NewChatModel 按配置创建 ChatModel
// modelOverride 非空时覆盖 provider 配置中的模型名
func NewChatModel(ctx context.Context, cfg *config.AIConfig, modelOverride string) (model.ToolCallingChatModel, error) {
	var apiKey, baseURL, modelName string

	switch cfg.Provider {
	case "openai":
		apiKey = cfg.OpenAI.APIKey
		baseURL = cfg.OpenAI.BaseURL
		modelName = cfg.OpenAI.Model
	case "alibaba", "qwen", "dashscope":
		apiKey = cfg.Alibaba.AccessKeySecret
		baseURL = "https://dashscope.aliyuncs.com/compatible-mode/v1"
		modelName = cfg.Alibaba.Model
	case "deepseek":
		apiKey = cfg.DeepSeek.APIKey
		baseURL = cfg.DeepSeek.BaseURL
		modelName = cfg.DeepSeek.Model
	default:
		return nil, fmt.Errorf("unsupported ai provider: %s", cfg.Provider)
	}

	if apiKey == "" {
		return nil, fmt.Errorf("api_key is required for provider: %s", cfg.Provider)
	}
	if modelOverride != "" {
		modelName = modelOverride
	}
	if modelName == "" {
		modelName = "gpt-4o-mini"
	}

	temperature := float32(0.7)

	return openai.NewChatModel(ctx, &openai.ChatModelConfig{
		APIKey:      apiKey,
		BaseURL:     baseURL,
		Model:       modelName,
		Temperature: &temperature,
	})
}

// Text 生成纯文本
func (s *Service) Text(ctx context.Context, prompt string) (string, error) {
	msg, err := s.primary.Generate(ctx, []*schema.Message{
		schema.UserMessage(prompt),
	})
	if err != nil {
		return "", fmt.Errorf("text generation failed: %w", err)
	}
	return msg.Content, nil
}

// Object 生成结构化输出并解码到 out
// 解码失败时依次尝试本地 JSON 修复与低成本模型重试
func (s *Service) Object(ctx context.Context, prompt string, out any) error {
	fullPrompt := prompt + "\n\n只输出一个 JSON 对象，不要包含任何其他文字或代码块标记。"

	msg, err := s.primary.Generate(ctx, []*schema.Message{
		schema.UserMessage(fullPrompt),
	})
	if err != nil {
		return fmt.Errorf("object generation failed: %w", err)
	}

	raw := msg.Content
	if err := decodeJSON(raw, out); err == nil {
		return nil
	}

	// 本地修复
	if repaired, rerr := jsonrepair.JSONRepair(stripFences(raw)); rerr == nil {
		if err := decodeJSON(repaired, out); err == nil {
			return nil
		}
	}

	// 低成本模型重试一次
	retryPrompt := fmt.Sprintf("以下内容应当是一个 JSON 对象但格式有误，请修正并只输出修正后的 JSON：\n%s", raw)
	retryMsg, err := s.repair.Generate(ctx, []*schema.Message{
		schema.UserMessage(retryPrompt),
	})
	if err != nil {
		return fmt.Errorf("object repair failed: %w", err)
	}
	if err := decodeJSON(retryMsg.Content, out); err != nil {
		return fmt.Errorf("failed to decode object output: %w", err)
	}
	return nil
}

// Title 根据首条用户消息生成对话标题
// 失败时回退为消息的截断
func (s *Service) Title(ctx context.Context, firstMessage string) string {
	prompt := fmt.Sprintf(`根据用户的第一条消息生成一个简短的对话标题。
要求：不超过 80 个字符，不使用引号和冒号，概括消息主题。
用户消息：%s
只输出标题本身。`, firstMessage)

	title, err := s.Text(ctx, prompt)
	if err != nil {
		return fallbackTitle(firstMessage)
	}

	title = strings.TrimSpace(title)
	title = strings.Trim(title, `"'`)
	title = strings.ReplaceAll(title, ":", "")
	if title == "" {
		return fallbackTitle(firstMessage)
	}
	if len([]rune(title)) > 80 {
		title = string([]rune(title)[:80])
	}
	return title
}

func fallbackTitle(msg string) string {
	msg = strings.TrimSpace(msg)
	runes := []rune(msg)
	if len(runes) > 80 {
		return string(runes[:80])
	}
	if msg == "" {
		return "新对话"
	}
	return msg
}

func decodeJSON(s string, out any) error {
	return json.Unmarshal([]byte(stripFences(s)), out)
}

// stripFences 移除 Markdown 代码块标记并截取 JSON 对象区域
func stripFences(s string) string {
	s = strings.TrimSpace(s)
	s = strings.TrimPrefix(s, "```json")
	s = strings.TrimPrefix(s, "```")
	s = strings.TrimSuffix(s, "```")
	s = strings.TrimSpace(s)

	if i := strings.IndexByte(s, '{'); i >= 0 {
		if j := strings.LastIndexByte(s, '}'); j >= i {
			return s[i : j+1]
		}
	}
	return s
}
