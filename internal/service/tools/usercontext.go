package tools

import (
	"context"
	"encoding/json"
	"fmt"
	"strings"

	"github.com/cloudwego/eino/components/tool"
	"github.com/cloudwego/eino/schema"
	"github.com/kaptinlin/jsonrepair"

	"github.com/ashwinyue/concierge-ai/internal/model"
)

// maxContextResponseBytes 返回给模型的画像文本上限
const maxContextResponseBytes = 1_000_000

// contextTypeColumns 上下文类型到画像列的映射
var contextTypeColumns = map[string][]string{
	"personal": {
		"full_name", "first_name", "last_name", "context_location",
	},
	"professional": {
		"company_name", "job_title",
	},
	"preferences": {
		"context_flights", "context_hotels", "context_vacation_rentals",
		"context_books", "context_daily",
	},
	"intelligence": {
		"context_email_analysis", "context_calendar",
	},
	"network": {
		"context_network",
	},
	"purchases": {
		"context_personal_purchases", "context_professional_purchases",
		"context_gift_purchases",
	},
	"communication": {
		"context_email_writing_style", "context_email_analysis",
	},
}

// fallbackColumns 列选择失败时返回的基础列
var fallbackColumns = []string{"full_name", "company_name", "job_title", "context_daily"}

// UserContextTool 用户画像检索工具
type UserContextTool struct {
	profiles ProfileStore
	gen      Generator
	userID   string
}

// NewUserContextTool 创建绑定到某个用户的画像工具
func NewUserContextTool(profiles ProfileStore, gen Generator, userID string) *UserContextTool {
	return &UserContextTool{profiles: profiles, gen: gen, userID: userID}
}

type userContextArgs struct {
	Query        string   `json:"query"`
	ContextTypes []string `json:"context_types,omitempty"`
}

// userContextResult 工具结果负载
type userContextResult struct {
	Success         bool     `json:"success"`
	Context         string   `json:"context"`
	SelectedColumns []string `json:"selected_columns"`
	Message         string   `json:"message"`
	TokenEstimate   int      `json:"token_estimate"`
}

// Info 工具元信息
func (t *UserContextTool) Info(ctx context.Context) (*schema.ToolInfo, error) {
	return &schema.ToolInfo{
		Name: "get_user_context",
		Desc: `检索当前用户的画像上下文：个人信息、职业背景、旅行与购物偏好、沟通风格、人脉与日常活动等。大多数字段是长文本摘要。工具会根据查询智能选择相关字段，避免返回过载。需要个性化推荐、了解用户偏好或引用其背景时使用。`,
		ParamsOneOf: schema.NewParamsOneOfByParams(map[string]*schema.ParameterInfo{
			"query": {
				Type:     schema.String,
				Desc:     "需要上下文支撑的具体查询或用户请求，用于挑选最相关的信息",
				Required: true,
			},
			"context_types": {
				Type: schema.Array,
				Desc: "可选：要检索的上下文类型（personal/professional/preferences/intelligence/network/purchases/communication/all），不指定时按查询智能选择",
				ElemInfo: &schema.ParameterInfo{
					Type: schema.String,
				},
			},
		}),
	}, nil
}

// InvokableRun 执行画像检索
func (t *UserContextTool) InvokableRun(ctx context.Context, argumentsInJSON string, _ ...tool.Option) (string, error) {
	var args userContextArgs
	if err := json.Unmarshal([]byte(argumentsInJSON), &args); err != nil {
		return "", fmt.Errorf("invalid user context arguments: %w", err)
	}
	if args.Query == "" {
		return "", fmt.Errorf("user context query is required")
	}

	profile, err := t.profiles.GetByID(t.userID)
	if err != nil {
		return `{"error":"user profile not found"}`, nil
	}

	var columns []string
	if len(args.ContextTypes) > 0 {
		columns = columnsForTypes(args.ContextTypes)
	} else {
		columns = t.selectColumns(ctx, args.Query)
	}

	var sections []string
	totalSize := 0
	var selected []string
	for _, column := range columns {
		value := profile.ContextField(column)
		if value == "" {
			continue
		}
		selected = append(selected, column)
		section := fmt.Sprintf("# %s:\n\n%s", column, value)
		sections = append(sections, section)
		totalSize += len(section)
	}

	formatted := strings.Join(sections, "\n\n---\n\n")
	if len(formatted) > maxContextResponseBytes {
		formatted = formatted[:maxContextResponseBytes]
	}

	result := userContextResult{
		Success:         true,
		Context:         formatted,
		SelectedColumns: selected,
		Message:         fmt.Sprintf("Retrieved context for query: %q", args.Query),
		TokenEstimate:   int(float64(len(formatted)) / 4.2),
	}
	b, err := json.Marshal(result)
	if err != nil {
		return "", fmt.Errorf("failed to encode user context result: %w", err)
	}
	return string(b), nil
}

// columnsForTypes 按显式类型展开列，"all" 含全部映射
func columnsForTypes(types []string) []string {
	var columns []string
	seen := make(map[string]bool)
	add := func(cols []string) {
		for _, c := range cols {
			if !seen[c] {
				seen[c] = true
				columns = append(columns, c)
			}
		}
	}
	for _, typ := range types {
		if typ == "all" {
			add(model.ContextColumns())
			continue
		}
		add(contextTypeColumns[typ])
	}
	if len(columns) == 0 {
		return fallbackColumns
	}
	return columns
}

// selectColumns 未指定类型时让模型按查询挑选相关列
// 解析失败时先尝试 JSON 修复，再回退到基础列
func (t *UserContextTool) selectColumns(ctx context.Context, query string) []string {
	prompt := fmt.Sprintf(`You are analyzing a user query to determine which profile columns contain relevant context.

Available columns: %s

Column contents:
- context_flights / context_hotels / context_vacation_rentals: travel preferences and history
- context_personal_purchases / context_professional_purchases / context_gift_purchases: purchase history
- context_email_analysis / context_email_writing_style: communication patterns and style
- context_calendar: schedule and meeting patterns
- context_network: professional network and collaborators
- context_books: reading preferences
- context_daily: recent activity
- context_location: location and geographic context
- full_name, first_name, last_name, company_name, job_title: basic identity

User query: %q

Return a JSON array of the most relevant column names. Always include at least one column; err on the side of more.`,
		strings.Join(model.ContextColumns(), ", "), query)

	raw, err := t.gen.Text(ctx, prompt)
	if err != nil {
		return fallbackColumns
	}

	if cols := parseColumnList(raw); len(cols) > 0 {
		return cols
	}
	if repaired, rerr := jsonrepair.JSONRepair(raw); rerr == nil {
		if cols := parseColumnList(repaired); len(cols) > 0 {
			return cols
		}
	}
	return fallbackColumns
}

// parseColumnList 解析模型输出的列名数组，过滤未知列
func parseColumnList(raw string) []string {
	raw = strings.TrimSpace(raw)
	if i := strings.IndexByte(raw, '['); i >= 0 {
		if j := strings.LastIndexByte(raw, ']'); j > i {
			raw = raw[i : j+1]
		}
	}

	var names []string
	if err := json.Unmarshal([]byte(raw), &names); err != nil {
		return nil
	}

	known := make(map[string]bool)
	for _, c := range model.ContextColumns() {
		known[c] = true
	}

	var valid []string
	for _, n := range names {
		if known[n] {
			valid = append(valid, n)
		}
	}
	return valid
}
