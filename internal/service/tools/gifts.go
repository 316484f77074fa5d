package tools

import (
	"context"
	"encoding/json"
	"fmt"
	"net/url"
	"strings"

	"github.com/agnivade/levenshtein"
	"github.com/cloudwego/eino/components/tool"
	"github.com/cloudwego/eino/schema"

	"github.com/ashwinyue/concierge-ai/internal/model"
)

// giftSites 礼物搜索覆盖的精选站点
var giftSites = []string{
	"https://thingtesting.com",
	"https://nymag.com/strategist/",
	"https://www.nytimes.com/wirecutter/",
	"https://deals.kinja.com/",
	"https://www.businessinsider.com/reviews",
	"https://kit.co",
	"https://www.ongoody.com/",
	"http://alexkwa.com/",
}

// duplicateThreshold 两个标题视为重复的归一化相似度阈值
const duplicateThreshold = 0.7

// GiftIdea 单条礼物建议
type GiftIdea struct {
	Name                 string `json:"name"`
	Description          string `json:"description"`
	Price                string `json:"price"`
	URL                  string `json:"url"`
	RecipientSuitability string `json:"recipient_suitability"`
}

// SiteSearchFunc 单站点礼物搜索，测试时可替换
type SiteSearchFunc func(ctx context.Context, query, userContext, recipient, site string) ([]GiftIdea, error)

// GiftsTool 礼物推荐工具
// 流水线：画像 → 去重 → 解析 → 逐站点搜索 → 格式化
type GiftsTool struct {
	profiles   ProfileStore
	messages   MessageStore
	gen        Generator
	siteSearch SiteSearchFunc
	userID     string
	chatID     string
	emitter    *Emitter
}

// NewGiftsTool 创建绑定到某个用户、对话与本轮输出流的礼物工具
func NewGiftsTool(profiles ProfileStore, messages MessageStore, gen Generator, siteSearch SiteSearchFunc, userID, chatID string, emitter *Emitter) *GiftsTool {
	return &GiftsTool{
		profiles:   profiles,
		messages:   messages,
		gen:        gen,
		siteSearch: siteSearch,
		userID:     userID,
		chatID:     chatID,
		emitter:    emitter,
	}
}

type giftArgs struct {
	Recipient string `json:"recipient"`
	Query     string `json:"query"`
}

// Info 工具元信息
func (t *GiftsTool) Info(ctx context.Context) (*schema.ToolInfo, error) {
	return &schema.ToolInfo{
		Name: "gift_finder",
		Desc: `为特定对象获取个性化礼物推荐。工具利用收礼人的已知偏好与过往礼物查找独特点子，并附实时价格与购买链接。只需提供收礼人姓名与场合或大致需求，例如 "Find a birthday gift for Meghan"。返回 Markdown 格式的建议清单。`,
		ParamsOneOf: schema.NewParamsOneOfByParams(map[string]*schema.ParameterInfo{
			"recipient": {
				Type:     schema.String,
				Desc:     "收礼人的姓名",
				Required: true,
			},
			"query": {
				Type:     schema.String,
				Desc:     `礼物搜索请求，例如 "birthday gift"、"something for someone who loves to cook"`,
				Required: true,
			},
		}),
	}, nil
}

// InvokableRun 执行礼物搜索
func (t *GiftsTool) InvokableRun(ctx context.Context, argumentsInJSON string, _ ...tool.Option) (string, error) {
	var args giftArgs
	if err := json.Unmarshal([]byte(argumentsInJSON), &args); err != nil {
		return "", fmt.Errorf("invalid gift finder arguments: %w", err)
	}
	if args.Recipient == "" || args.Query == "" {
		return "", fmt.Errorf("gift finder requires both recipient and query")
	}

	// 画像
	t.emitter.Emit(Progress{
		Stage:   "context",
		Message: fmt.Sprintf("Getting %s's past gift preferences and purchase history...", args.Recipient),
	})
	userContext := t.loadContext()
	if userContext == "" {
		t.emitter.Emit(Progress{Stage: "context", Message: "No previous gift data found. Searching for general recommendations..."})
	} else {
		t.emitter.Emit(Progress{
			Stage:   "context",
			Message: fmt.Sprintf("Found %s's gift preferences from past purchases and emails. Personalizing search...", args.Recipient),
		})
	}

	// 去重：收集本对话里已经推荐过的标题
	t.emitter.Emit(Progress{Stage: "deduplication", Message: "Checking previously suggested gifts in this conversation..."})
	priorTitles := t.priorSuggestions()

	// 解析
	t.emitter.Emit(Progress{
		Stage:   "parsing",
		Message: fmt.Sprintf("Analyzing what %s might like based on the request...", args.Recipient),
	})

	// 逐站点搜索，单站失败继续
	var allIdeas []GiftIdea
	total := len(giftSites)
	for i, site := range giftSites {
		siteName := siteHostname(site)
		t.emitter.Emit(Progress{
			Stage:   "searching",
			Message: fmt.Sprintf("Searching for gifts on %s...", siteName),
			Current: i + 1,
			Total:   total,
			Website: siteName,
		})

		ideas, err := t.siteSearch(ctx, args.Query, userContext, args.Recipient, site)
		if err != nil {
			continue
		}
		for _, idea := range ideas {
			if isDuplicateTitle(idea.Name, priorTitles) {
				continue
			}
			allIdeas = append(allIdeas, idea)
		}
	}

	// 零结果短路：固定道歉模板，不进入格式化
	if len(allIdeas) == 0 {
		return giftApology(args.Recipient), nil
	}

	t.emitter.Emit(Progress{Stage: "formatting", Message: "Putting together your personalized gift list..."})
	return t.formatResults(ctx, allIdeas, args.Recipient)
}

// loadContext 读取礼物采购画像
func (t *GiftsTool) loadContext() string {
	profile, err := t.profiles.GetByID(t.userID)
	if err != nil {
		return ""
	}
	return profile.ContextGiftPurchases
}

// priorSuggestions 从本对话历史的助手消息中提取已推荐过的礼物标题
func (t *GiftsTool) priorSuggestions() []string {
	if t.chatID == "" || t.messages == nil {
		return nil
	}
	msgs, err := t.messages.GetMessagesByChatID(t.chatID)
	if err != nil {
		return nil
	}

	var titles []string
	for _, msg := range msgs {
		if msg.Role != model.RoleAssistant {
			continue
		}
		titles = append(titles, ExtractTitles(messageText(msg))...)
	}
	return titles
}

// messageText 拼接消息内所有文本部分
func messageText(msg *model.Message) string {
	var parts []model.MessagePart
	if err := json.Unmarshal(msg.Parts, &parts); err != nil {
		return ""
	}
	var texts []string
	for _, p := range parts {
		if p.Type == "text" && p.Text != "" {
			texts = append(texts, p.Text)
		}
	}
	return strings.Join(texts, "\n")
}

// ExtractTitles 从 Markdown 文本中提取标题式子串（## 标题行）
// 去掉编号前缀与链接语法后返回标题文本
func ExtractTitles(text string) []string {
	var titles []string
	for _, line := range strings.Split(text, "\n") {
		line = strings.TrimSpace(line)
		if !strings.HasPrefix(line, "## ") {
			continue
		}
		title := strings.TrimSpace(strings.TrimPrefix(line, "## "))
		// 去掉 "1. " 式编号
		if i := strings.Index(title, ". "); i >= 0 && i <= 3 {
			title = strings.TrimSpace(title[i+2:])
		}
		title = strings.Trim(title, "*[]")
		if title != "" {
			titles = append(titles, title)
		}
	}
	return titles
}

// Similarity 两个标题的归一化相似度，1.0 为完全相同
// 按较长标题的长度归一化编辑距离
func Similarity(a, b string) float64 {
	a = normalizeTitle(a)
	b = normalizeTitle(b)
	if a == b {
		return 1.0
	}
	longer := len([]rune(a))
	if l := len([]rune(b)); l > longer {
		longer = l
	}
	if longer == 0 {
		return 1.0
	}
	dist := levenshtein.ComputeDistance(a, b)
	return 1.0 - float64(dist)/float64(longer)
}

func normalizeTitle(s string) string {
	return strings.ToLower(strings.TrimSpace(s))
}

// isDuplicateTitle 判断标题是否与任一历史标题达到重复阈值
func isDuplicateTitle(title string, prior []string) bool {
	for _, p := range prior {
		if Similarity(title, p) >= duplicateThreshold {
			return true
		}
	}
	return false
}

// siteHostname 提取站点主机名用于进度展示
func siteHostname(site string) string {
	u, err := url.Parse(site)
	if err != nil || u.Host == "" {
		return site
	}
	return strings.TrimPrefix(u.Host, "www.")
}

// giftApology 零结果时的固定回复
func giftApology(recipient string) string {
	return fmt.Sprintf("I wasn't able to find any gift ideas for %s. If you tell me a little more about what they like, I can try again! Or, I can help you find a gift for someone else.", recipient)
}

// formatResults 按名称去重、真实商品链接优先排序、截断后格式化为 Markdown
func (t *GiftsTool) formatResults(ctx context.Context, ideas []GiftIdea, recipient string) (string, error) {
	// 按名称去重，保留首次出现
	seen := make(map[string]bool)
	unique := make([]GiftIdea, 0, len(ideas))
	for _, idea := range ideas {
		key := normalizeTitle(idea.Name)
		if seen[key] {
			continue
		}
		seen[key] = true
		unique = append(unique, idea)
	}

	// 带验证商品链接的排在前面，稳定排序
	ranked := make([]GiftIdea, 0, len(unique))
	var homepageOnly []GiftIdea
	for _, idea := range unique {
		if strings.Contains(idea.URL, "Search for") || strings.Contains(idea.Description, "Search for") {
			homepageOnly = append(homepageOnly, idea)
			continue
		}
		ranked = append(ranked, idea)
	}
	ranked = append(ranked, homepageOnly...)

	if len(ranked) > 6 {
		ranked = ranked[:6]
	}

	payload, err := json.MarshalIndent(ranked, "", "  ")
	if err != nil {
		return "", fmt.Errorf("failed to encode gift ideas: %w", err)
	}

	prompt := fmt.Sprintf(`Format these gift ideas for %s in a clean markdown list:

%s

Use this exact format:
# Gift Ideas for %s

## 1. [Product Name]
**[Price]** • [Buy Now]([URL])

[Description]

**Why this works for %s:** [Suitability explanation]

---

For products where the URL is a website homepage with search instructions, format the link as:
**[Price]** • [Visit Website]([URL])

[Description with search instructions]

Keep it clean and structured.`, recipient, string(payload), recipient, recipient)

	formatted, err := t.gen.Text(ctx, prompt)
	if err != nil {
		return "", fmt.Errorf("failed to format gift results: %w", err)
	}
	return formatted, nil
}
