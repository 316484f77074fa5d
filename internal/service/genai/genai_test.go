package genai

import (
	"context"
	"errors"
	"strings"
	"testing"

	"github.com/cloudwego/eino/components/model"
	"github.com/cloudwego/eino/schema"

	"github.com/ashwinyue/concierge-ai/internal/config"
)

// fakeChatModel 脚本化 ChatModel，按调用顺序返回预置响应
type fakeChatModel struct {
	responses []string
	err       error
	calls     int
	prompts   []string
}

func (m *fakeChatModel) Generate(ctx context.Context, input []*schema.Message, opts ...model.Option) (*schema.Message, error) {
	m.calls++
	if len(input) > 0 {
		m.prompts = append(m.prompts, input[len(input)-1].Content)
	}
	if m.err != nil {
		return nil, m.err
	}
	idx := m.calls - 1
	if idx >= len(m.responses) {
		idx = len(m.responses) - 1
	}
	return &schema.Message{Role: schema.Assistant, Content: m.responses[idx]}, nil
}

func (m *fakeChatModel) Stream(ctx context.Context, input []*schema.Message, opts ...model.Option) (*schema.StreamReader[*schema.Message], error) {
	msg, err := m.Generate(ctx, input, opts...)
	if err != nil {
		return nil, err
	}
	return schema.StreamReaderFromArray([]*schema.Message{msg}), nil
}

func (m *fakeChatModel) WithTools(tools []*schema.ToolInfo) (model.ToolCallingChatModel, error) {
	return m, nil
}

func TestText(t *testing.T) {
	svc := NewWithModels(&fakeChatModel{responses: []string{"hello there"}}, nil)

	got, err := svc.Text(context.Background(), "say hello")
	if err != nil {
		t.Fatalf("Text error: %v", err)
	}
	if got != "hello there" {
		t.Errorf("Text = %q", got)
	}
}

func TestObjectCleanOutput(t *testing.T) {
	svc := NewWithModels(&fakeChatModel{responses: []string{`{"q": "Lisbon", "adults": 2}`}}, nil)

	var out struct {
		Q      string `json:"q"`
		Adults int    `json:"adults"`
	}
	if err := svc.Object(context.Background(), "parse", &out); err != nil {
		t.Fatalf("Object error: %v", err)
	}
	if out.Q != "Lisbon" || out.Adults != 2 {
		t.Errorf("out = %+v", out)
	}
}

func TestObjectStripsFences(t *testing.T) {
	raw := "```json\n{\"q\": \"Lisbon\"}\n```"
	svc := NewWithModels(&fakeChatModel{responses: []string{raw}}, nil)

	var out struct {
		Q string `json:"q"`
	}
	if err := svc.Object(context.Background(), "parse", &out); err != nil {
		t.Fatalf("Object error: %v", err)
	}
	if out.Q != "Lisbon" {
		t.Errorf("out = %+v", out)
	}
}

func TestObjectLocalRepair(t *testing.T) {
	// 缺少结尾引号和大括号，本地修复即可，无需动用修复模型
	primary := &fakeChatModel{responses: []string{`{"q": "Lisbon`}}
	repair := &fakeChatModel{responses: []string{`{"q": "unused"}`}}
	svc := NewWithModels(primary, repair)

	var out struct {
		Q string `json:"q"`
	}
	if err := svc.Object(context.Background(), "parse", &out); err != nil {
		t.Fatalf("Object error: %v", err)
	}
	if out.Q != "Lisbon" {
		t.Errorf("out = %+v", out)
	}
	if repair.calls != 0 {
		t.Errorf("repair model called %d times, want 0", repair.calls)
	}
}

func TestObjectRepairModelRetry(t *testing.T) {
	// 主模型输出完全不是 JSON，修复模型重试一次
	primary := &fakeChatModel{responses: []string{`The search parameters are Lisbon for two adults.`}}
	repair := &fakeChatModel{responses: []string{`{"q": "Lisbon", "adults": 2}`}}
	svc := NewWithModels(primary, repair)

	var out struct {
		Q string `json:"q"`
	}
	if err := svc.Object(context.Background(), "parse", &out); err != nil {
		t.Fatalf("Object error: %v", err)
	}
	if out.Q != "Lisbon" {
		t.Errorf("out = %+v", out)
	}
	if repair.calls != 1 {
		t.Errorf("repair model called %d times, want 1", repair.calls)
	}
}

func TestObjectGenerationError(t *testing.T) {
	svc := NewWithModels(&fakeChatModel{err: errors.New("model offline")}, nil)

	var out map[string]any
	if err := svc.Object(context.Background(), "parse", &out); err == nil {
		t.Error("expected error")
	}
}

func TestTitle(t *testing.T) {
	svc := NewWithModels(&fakeChatModel{responses: []string{`"Lisbon trip: hotels"`}}, nil)

	title := svc.Title(context.Background(), "find me hotels in Lisbon")
	if strings.Contains(title, `"`) || strings.Contains(title, ":") {
		t.Errorf("title = %q, want quotes and colons stripped", title)
	}
}

func TestTitleFallback(t *testing.T) {
	svc := NewWithModels(&fakeChatModel{err: errors.New("model offline")}, nil)

	if got := svc.Title(context.Background(), "find me hotels in Lisbon"); got != "find me hotels in Lisbon" {
		t.Errorf("fallback title = %q", got)
	}

	long := strings.Repeat("a", 200)
	if got := svc.Title(context.Background(), long); len([]rune(got)) != 80 {
		t.Errorf("fallback title length = %d, want 80", len([]rune(got)))
	}

	if got := svc.Title(context.Background(), "  "); got != "新对话" {
		t.Errorf("empty fallback = %q", got)
	}
}

func TestNewChatModelUnsupportedProvider(t *testing.T) {
	_, err := NewChatModel(context.Background(), &config.AIConfig{Provider: "carrier-pigeon"}, "")
	if err == nil {
		t.Error("expected error for unsupported provider")
	}
}

func TestNewChatModelMissingKey(t *testing.T) {
	_, err := NewChatModel(context.Background(), &config.AIConfig{Provider: "openai"}, "")
	if err == nil {
		t.Error("expected error for missing api key")
	}
}
