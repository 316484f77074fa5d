package tools

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"strings"
	"testing"

	"github.com/ashwinyue/concierge-ai/internal/model"
	"github.com/ashwinyue/concierge-ai/internal/service/types"
	"gorm.io/datatypes"
)

// mockProfileStore Mock Profile Store
type mockProfileStore struct {
	profiles map[string]*model.UserProfile
}

func newMockProfileStore() *mockProfileStore {
	return &mockProfileStore{profiles: make(map[string]*model.UserProfile)}
}

func (m *mockProfileStore) GetByID(id string) (*model.UserProfile, error) {
	if p, ok := m.profiles[id]; ok {
		return p, nil
	}
	return nil, errors.New("profile not found")
}

// mockMessageStore Mock Message Store
type mockMessageStore struct {
	messages map[string][]*model.Message
}

func newMockMessageStore() *mockMessageStore {
	return &mockMessageStore{messages: make(map[string][]*model.Message)}
}

func (m *mockMessageStore) GetMessagesByChatID(chatID string) ([]*model.Message, error) {
	return m.messages[chatID], nil
}

// mockGenerator 脚本化的生成器
type mockGenerator struct {
	textResponses []string
	textPrompts   []string
	textErr       error
	objectJSON    string
	objectErr     error
}

func (m *mockGenerator) Text(ctx context.Context, prompt string) (string, error) {
	m.textPrompts = append(m.textPrompts, prompt)
	if m.textErr != nil {
		return "", m.textErr
	}
	if len(m.textResponses) == 0 {
		return "formatted output", nil
	}
	resp := m.textResponses[0]
	if len(m.textResponses) > 1 {
		m.textResponses = m.textResponses[1:]
	}
	return resp, nil
}

func (m *mockGenerator) Object(ctx context.Context, prompt string, out any) error {
	if m.objectErr != nil {
		return m.objectErr
	}
	return json.Unmarshal([]byte(m.objectJSON), out)
}

// chunkRecorder 收集发射的进度块
type chunkRecorder struct {
	chunks []types.StreamChunk
}

func (r *chunkRecorder) emit(c types.StreamChunk) {
	r.chunks = append(r.chunks, c)
}

func assistantMessage(t *testing.T, chatID, text string) *model.Message {
	t.Helper()
	parts, err := json.Marshal([]model.MessagePart{{Type: "text", Text: text}})
	if err != nil {
		t.Fatalf("marshal parts: %v", err)
	}
	return &model.Message{
		ID:     "m1",
		ChatID: chatID,
		Role:   model.RoleAssistant,
		Parts:  datatypes.JSON(parts),
	}
}

func TestSimilarity(t *testing.T) {
	tests := []struct {
		name string
		a, b string
		min  float64
		max  float64
	}{
		{"identical", "Ember Mug", "Ember Mug", 1.0, 1.0},
		{"case and whitespace", "  ember mug ", "Ember Mug", 1.0, 1.0},
		{"small edit", "Ember Smart Mug 2", "Ember Smart Mug 3", 0.9, 1.0},
		{"unrelated", "Ember Mug", "Yoga Mat Deluxe", 0.0, 0.5},
		{"both empty", "", "", 1.0, 1.0},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got := Similarity(tt.a, tt.b)
			if got < tt.min || got > tt.max {
				t.Errorf("Similarity(%q, %q) = %v, want in [%v, %v]", tt.a, tt.b, got, tt.min, tt.max)
			}
		})
	}
}

func TestSimilarityThreshold(t *testing.T) {
	// 约三成字符不同的标题仍应判定为重复
	if got := Similarity("Handmade Ceramic Coffee Mug", "Handmade Ceramic Coffee Cup"); got < duplicateThreshold {
		t.Errorf("near-duplicate similarity = %v, want >= %v", got, duplicateThreshold)
	}
	if got := Similarity("Coffee Mug", "Wireless Headphones"); got >= duplicateThreshold {
		t.Errorf("unrelated similarity = %v, want < %v", got, duplicateThreshold)
	}
}

func TestExtractTitles(t *testing.T) {
	text := `# Gift Ideas for Meghan

## 1. Ember Smart Mug
**$99** • [Buy Now](https://example.com/mug)

## 2. **Yoga Mat Deluxe**
Some description

Regular paragraph, not a title.

## Handmade Scarf
`
	titles := ExtractTitles(text)
	want := []string{"Ember Smart Mug", "Yoga Mat Deluxe", "Handmade Scarf"}
	if len(titles) != len(want) {
		t.Fatalf("got %d titles %v, want %d", len(titles), titles, len(want))
	}
	for i, w := range want {
		if titles[i] != w {
			t.Errorf("title[%d] = %q, want %q", i, titles[i], w)
		}
	}
}

func TestGiftsToolPartialSiteFailures(t *testing.T) {
	profiles := newMockProfileStore()
	profiles.profiles["u1"] = &model.UserProfile{ID: "u1", ContextGiftPurchases: "likes coffee gear"}

	gen := &mockGenerator{textResponses: []string{"# Gift Ideas for Meghan\n\n## 1. Ember Mug"}}
	recorder := &chunkRecorder{}

	// 部分站点失败，其余每站返回一条建议
	calls := 0
	siteSearch := func(ctx context.Context, query, userContext, recipient, site string) ([]GiftIdea, error) {
		calls++
		if calls%3 == 0 {
			return nil, errors.New("site unavailable")
		}
		return []GiftIdea{{
			Name:        fmt.Sprintf("Idea %d", calls),
			Description: "A nice gift",
			Price:       "$20",
			URL:         fmt.Sprintf("https://example.com/%d", calls),
		}}, nil
	}

	tool := NewGiftsTool(profiles, newMockMessageStore(), gen, siteSearch, "u1", "c1",
		NewEmitter("gift-progress", recorder.emit))

	result, err := tool.InvokableRun(context.Background(), `{"recipient":"Meghan","query":"birthday gift"}`)
	if err != nil {
		t.Fatalf("InvokableRun failed despite partial site failures: %v", err)
	}
	if !strings.Contains(result, "Gift Ideas") {
		t.Errorf("result = %q, want formatted gift list", result)
	}

	// 每个站点各有一个 searching 进度块，计数 1..8
	var searching []types.StreamChunk
	for _, c := range recorder.chunks {
		if c.Type != "gift-progress" {
			t.Errorf("unexpected chunk type %q", c.Type)
		}
		if c.Content["stage"] == "searching" {
			searching = append(searching, c)
		}
	}
	if len(searching) != len(giftSites) {
		t.Fatalf("got %d searching chunks, want %d", len(searching), len(giftSites))
	}
	for i, c := range searching {
		if c.Content["current"] != i+1 {
			t.Errorf("searching[%d] current = %v, want %d", i, c.Content["current"], i+1)
		}
		if c.Content["total"] != len(giftSites) {
			t.Errorf("searching[%d] total = %v, want %d", i, c.Content["total"], len(giftSites))
		}
	}
}

func TestGiftsToolNoResults(t *testing.T) {
	profiles := newMockProfileStore()
	profiles.profiles["u1"] = &model.UserProfile{ID: "u1"}

	gen := &mockGenerator{}
	siteSearch := func(ctx context.Context, query, userContext, recipient, site string) ([]GiftIdea, error) {
		return nil, errors.New("nothing found")
	}

	tool := NewGiftsTool(profiles, newMockMessageStore(), gen, siteSearch, "u1", "c1", nil)

	result, err := tool.InvokableRun(context.Background(), `{"recipient":"Alex","query":"birthday gift"}`)
	if err != nil {
		t.Fatalf("InvokableRun error: %v", err)
	}
	if !strings.Contains(result, "Alex") || !strings.Contains(result, "wasn't able to find") {
		t.Errorf("result = %q, want apology naming the recipient", result)
	}
	// 零结果不进入格式化阶段
	if len(gen.textPrompts) != 0 {
		t.Errorf("Text called %d times on zero results, want 0", len(gen.textPrompts))
	}
}

func TestGiftsToolDeduplicatesPriorSuggestions(t *testing.T) {
	profiles := newMockProfileStore()
	profiles.profiles["u1"] = &model.UserProfile{ID: "u1"}

	messages := newMockMessageStore()
	messages.messages["c1"] = []*model.Message{
		assistantMessage(t, "c1", "# Gift Ideas\n\n## 1. Ember Smart Mug\nGreat for coffee lovers"),
	}

	gen := &mockGenerator{textResponses: []string{"formatted"}}
	siteSearch := func(ctx context.Context, query, userContext, recipient, site string) ([]GiftIdea, error) {
		return []GiftIdea{
			{Name: "Ember Smart Mug", URL: "https://example.com/mug"},
			{Name: "Wool Blanket", URL: "https://example.com/blanket"},
		}, nil
	}

	tool := NewGiftsTool(profiles, messages, gen, siteSearch, "u1", "c1", nil)

	if _, err := tool.InvokableRun(context.Background(), `{"recipient":"Sam","query":"gift"}`); err != nil {
		t.Fatalf("InvokableRun error: %v", err)
	}

	// 已推荐过的标题不应再出现在格式化提示词里
	if len(gen.textPrompts) != 1 {
		t.Fatalf("Text called %d times, want 1", len(gen.textPrompts))
	}
	if strings.Contains(gen.textPrompts[0], "Ember Smart Mug") {
		t.Error("duplicate title passed to formatting stage")
	}
	if !strings.Contains(gen.textPrompts[0], "Wool Blanket") {
		t.Error("fresh idea missing from formatting stage")
	}
}

func TestGiftsToolMissingArguments(t *testing.T) {
	tool := NewGiftsTool(newMockProfileStore(), newMockMessageStore(), &mockGenerator{}, nil, "u1", "c1", nil)

	if _, err := tool.InvokableRun(context.Background(), `{"recipient":"Sam"}`); err == nil {
		t.Error("expected error for missing query")
	}
	if _, err := tool.InvokableRun(context.Background(), `not json`); err == nil {
		t.Error("expected error for invalid JSON")
	}
}
