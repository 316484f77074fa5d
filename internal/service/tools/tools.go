// Package tools 提供模型可调用的多阶段搜索工具及其运行时
// 每个工具按轮次绑定用户、对话与进度发射器
package tools

import (
	"context"
	"encoding/json"
	"fmt"
	"strings"

	"github.com/cloudwego/eino/components/tool"

	"github.com/ashwinyue/concierge-ai/internal/model"
	"github.com/ashwinyue/concierge-ai/internal/serpapi"
	"github.com/ashwinyue/concierge-ai/internal/service/types"
)

// ProfileStore 画像读取依赖
type ProfileStore interface {
	GetByID(id string) (*model.UserProfile, error)
}

// MessageStore 对话历史读取依赖
type MessageStore interface {
	GetMessagesByChatID(chatID string) ([]*model.Message, error)
}

// Generator 文本与结构化输出生成依赖
type Generator interface {
	Text(ctx context.Context, prompt string) (string, error)
	Object(ctx context.Context, prompt string, out any) error
}

// Deps 工具集的共享依赖
type Deps struct {
	Profiles   ProfileStore
	Messages   MessageStore
	Search     *serpapi.Client
	Gen        Generator
	SiteSearch SiteSearchFunc // 为空时使用 WebSearch 构建的默认实现
	WebSearch  tool.InvokableTool
}

// Binding 单轮对话的工具绑定
type Binding struct {
	UserID string
	ChatID string
	Emit   types.EmitFunc
}

// Registry 工具注册表，启动时校验一次
type Registry struct {
	deps Deps
}

// NewRegistry 创建注册表并校验依赖与工具名唯一性
func NewRegistry(ctx context.Context, deps Deps) (*Registry, error) {
	if deps.Profiles == nil {
		return nil, fmt.Errorf("tool registry requires a profile store")
	}
	if deps.Gen == nil {
		return nil, fmt.Errorf("tool registry requires a generator")
	}
	if deps.Search == nil {
		return nil, fmt.Errorf("tool registry requires a search client")
	}
	if deps.SiteSearch == nil {
		if deps.WebSearch == nil {
			return nil, fmt.Errorf("tool registry requires a web search tool or site search func")
		}
		deps.SiteSearch = newSiteSearch(deps.WebSearch, deps.Gen)
	}

	r := &Registry{deps: deps}

	// 无绑定装配一次，确认工具元信息可用且名字不冲突
	probe := r.Assemble(Binding{})
	seen := make(map[string]bool)
	for _, t := range probe {
		info, err := t.Info(ctx)
		if err != nil {
			return nil, fmt.Errorf("tool info failed: %w", err)
		}
		if seen[info.Name] {
			return nil, fmt.Errorf("duplicate tool name: %s", info.Name)
		}
		seen[info.Name] = true
	}

	return r, nil
}

// Assemble 返回绑定到本轮对话的完整工具集
func (r *Registry) Assemble(binding Binding) []tool.BaseTool {
	d := r.deps
	return []tool.BaseTool{
		NewFlightsTool(d.Profiles, d.Search, d.Gen, binding.UserID,
			NewEmitter("flight-progress", binding.Emit)),
		NewHotelsTool(d.Profiles, d.Search, d.Gen, binding.UserID,
			NewEmitter("hotel-progress", binding.Emit)),
		NewGiftsTool(d.Profiles, d.Messages, d.Gen, d.SiteSearch, binding.UserID, binding.ChatID,
			NewEmitter("gift-progress", binding.Emit)),
		NewUserContextTool(d.Profiles, d.Gen, binding.UserID),
	}
}

// newSiteSearch 用网络搜索工具加结构化输出构建默认的单站点礼物搜索
func newSiteSearch(webSearch tool.InvokableTool, gen Generator) SiteSearchFunc {
	return func(ctx context.Context, query, userContext, recipient, site string) ([]GiftIdea, error) {
		searchArgs, err := json.Marshal(map[string]string{
			"query": fmt.Sprintf("%s site:%s", query, site),
		})
		if err != nil {
			return nil, fmt.Errorf("failed to encode search arguments: %w", err)
		}

		searchResults, err := webSearch.InvokableRun(ctx, string(searchArgs))
		if err != nil {
			return nil, fmt.Errorf("web search on %s failed: %w", site, err)
		}

		prompt := fmt.Sprintf(`Based on the web search results below, identify real products for %q that are currently available on %s.

- Only include products with real, direct product URLs from the results.
- Do NOT invent products or URLs. Return fewer products rather than fake ones.
- Explain why each product suits the recipient based on their context.

Recipient context: %s

<search_results>
%s
</search_results>

Output a JSON object: {"ideas": [{"name": ..., "description": ..., "price": ..., "url": ..., "recipient_suitability": ...}]} with at most 5 ideas.`,
			recipient, site, orNone(userContext), searchResults)

		var out struct {
			Ideas []GiftIdea `json:"ideas"`
		}
		if err := gen.Object(ctx, prompt, &out); err != nil {
			return nil, fmt.Errorf("failed to structure results from %s: %w", site, err)
		}
		return out.Ideas, nil
	}
}

// orNone 空串替换为占位文案，用于提示词内嵌
func orNone(s string) string {
	if strings.TrimSpace(s) == "" {
		return "No context provided."
	}
	return s
}

// joinNonEmpty 连接非空段落
func joinNonEmpty(parts ...string) string {
	var kept []string
	for _, p := range parts {
		if strings.TrimSpace(p) != "" {
			kept = append(kept, p)
		}
	}
	return strings.Join(kept, "\n\n")
}
