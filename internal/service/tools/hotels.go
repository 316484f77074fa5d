package tools

import (
	"context"
	"encoding/json"
	"fmt"
	"net/url"
	"strings"
	"sync"
	"time"

	"github.com/cloudwego/eino/components/tool"
	"github.com/cloudwego/eino/schema"

	"github.com/ashwinyue/concierge-ai/internal/serpapi"
)

// hotelSearcher 酒店搜索依赖，测试时可替换
type hotelSearcher interface {
	SearchHotels(ctx context.Context, params url.Values) (*serpapi.HotelResults, error)
	PropertyDetails(ctx context.Context, detailsLink string) (map[string]any, error)
}

// maxHotelProperties 进入详情与格式化阶段的房源上限
const maxHotelProperties = 40

// HotelQuery 酒店搜索参数
type HotelQuery struct {
	Q               string `json:"q"`
	CheckInDate     string `json:"check_in_date"`
	CheckOutDate    string `json:"check_out_date"`
	VacationRentals bool   `json:"vacation_rentals"`
	Adults          int    `json:"adults"`
	Children        int    `json:"children"`
}

// Values 转换为搜索请求参数
// 民宿与酒店使用不同的房源类型/星级参数组
func (q *HotelQuery) Values() url.Values {
	v := url.Values{}
	v.Set("q", strings.ReplaceAll(q.Q, ", ", " "))
	v.Set("check_in_date", q.CheckInDate)
	v.Set("check_out_date", q.CheckOutDate)
	adults := q.Adults
	if adults <= 0 {
		adults = 1
	}
	v.Set("adults", fmt.Sprintf("%d", adults))
	v.Set("children", fmt.Sprintf("%d", q.Children))
	v.Set("rating", "8")

	if q.VacationRentals {
		v.Set("vacation_rentals", "true")
		v.Set("property_types", "1,2,3,4,5,6,7,8,10,11,21")
	} else {
		v.Set("hotel_class", "3,4,5")
		v.Set("property_types", "12,13,15,17,18,19,20,21,22,23,24")
	}
	return v
}

// HotelsTool 酒店/民宿搜索工具
// 流水线：偏好 → 解析 → 搜索 → 并发详情 → 评论摘要 → 裁剪 → 格式化
type HotelsTool struct {
	profiles ProfileStore
	search   hotelSearcher
	gen      Generator
	userID   string
	emitter  *Emitter
}

// NewHotelsTool 创建绑定到某个用户与本轮输出流的酒店工具
func NewHotelsTool(profiles ProfileStore, search hotelSearcher, gen Generator, userID string, emitter *Emitter) *HotelsTool {
	return &HotelsTool{profiles: profiles, search: search, gen: gen, userID: userID, emitter: emitter}
}

type hotelArgs struct {
	Query string `json:"query"`
}

// Info 工具元信息
func (t *HotelsTool) Info(ctx context.Context) (*schema.ToolInfo, error) {
	return &schema.ToolInfo{
		Name: "google_hotels",
		Desc: "搜索酒店与民宿，返回价格、评论摘要、设施与预订链接。工具内置客户的住宿偏好，只需提供地点与行程要求。",
		ParamsOneOf: schema.NewParamsOneOfByParams(map[string]*schema.ParameterInfo{
			"query": {
				Type:     schema.String,
				Desc:     "住宿搜索请求，包含地点与任何具体要求",
				Required: true,
			},
		}),
	}, nil
}

// InvokableRun 执行酒店搜索
func (t *HotelsTool) InvokableRun(ctx context.Context, argumentsInJSON string, _ ...tool.Option) (string, error) {
	var args hotelArgs
	if err := json.Unmarshal([]byte(argumentsInJSON), &args); err != nil {
		return "", fmt.Errorf("invalid hotel search arguments: %w", err)
	}
	if args.Query == "" {
		return "", fmt.Errorf("hotel search query is required")
	}

	t.emitter.Emit(Progress{Stage: "preferences", Message: "Fetching your accommodation preferences..."})
	context_ := t.loadContext()

	t.emitter.Emit(Progress{Stage: "parsing", Message: "Parsing your request..."})
	query := t.parseQuery(ctx, args.Query, context_)

	t.emitter.Emit(Progress{Stage: "searching", Message: "Searching for hotels...", Destination: query.Q})
	results, err := t.search.SearchHotels(ctx, query.Values())
	if err != nil {
		return "", fmt.Errorf("hotel search failed: %w", err)
	}

	if len(results.Properties) == 0 {
		return "No hotels found matching your search criteria. Please try adjusting your search parameters.", nil
	}

	properties := results.Properties
	if len(properties) > maxHotelProperties {
		properties = properties[:maxHotelProperties]
	}

	// 并发详情，按索引合并保证确定性；单条失败保留搜索结果原始记录
	t.emitter.Emit(Progress{Stage: "details", Message: "Fetching detailed information for top results..."})
	detailed := t.fetchDetails(ctx, properties)

	t.emitter.Emit(Progress{Stage: "reviews", Message: "Summarizing reviews..."})
	trimmed := make([]map[string]any, len(detailed))
	for i, p := range detailed {
		summary := t.summarizeReviews(ctx, p)
		trimmed[i] = TrimHotelRecord(p, summary)
	}

	t.emitter.Emit(Progress{Stage: "formatting", Message: "Processing and formatting results..."})
	return t.formatResults(ctx, trimmed, results, context_, args.Query)
}

// loadContext 读取住宿偏好画像
func (t *HotelsTool) loadContext() string {
	profile, err := t.profiles.GetByID(t.userID)
	if err != nil {
		return ""
	}
	return profile.ContextHotels
}

// parseQuery 解析搜索参数，失败时回退为一周后入住的基础查询
func (t *HotelsTool) parseQuery(ctx context.Context, userQuery, context_ string) *HotelQuery {
	prompt := fmt.Sprintf(`Based on the user query, output the hotel search JSON. Leave a value blank if it is unclear.

- If the user specifies vacation rentals or Airbnb-type listings, set "vacation_rentals" to true, otherwise assume hotels and set it to false.
- Do not use commas or special characters in the query string.
- check_in_date and check_out_date are required; default check-in to 1 week from today if not provided.
- Assume the client is traveling alone as one adult unless otherwise specified.
- The <Client_Context> is general historic information used when details are not specified in the <User_Query>.
- The <User_Query> overrides on any conflict.
- The <Current_DateTime> should be used for interpreting queries like "next month" or "next week".
- The "q" is a query that would be entered into a search box on hotels.google.com.

Fields: q (string), check_in_date (YYYY-MM-DD), check_out_date (YYYY-MM-DD), vacation_rentals (bool), adults (number), children (number).

<Current_DateTime>
%s
</Current_DateTime>

<Client_Context>
%s
</Client_Context>

<User_Query>
%s
</User_Query>`, time.Now().Format(time.RFC3339), orNone(context_), userQuery)

	var query HotelQuery
	if err := t.gen.Object(ctx, prompt, &query); err != nil || query.Q == "" || query.CheckInDate == "" || query.CheckOutDate == "" {
		return fallbackHotelQuery(userQuery)
	}
	return &query
}

// fallbackHotelQuery 解析失败时的基础查询，入住一周后、住一周
func fallbackHotelQuery(userQuery string) *HotelQuery {
	now := time.Now()
	return &HotelQuery{
		Q:            userQuery,
		CheckInDate:  now.AddDate(0, 0, 7).Format("2006-01-02"),
		CheckOutDate: now.AddDate(0, 0, 14).Format("2006-01-02"),
		Adults:       1,
	}
}

// fetchDetails 并发拉取房源详情并按原始索引合并
func (t *HotelsTool) fetchDetails(ctx context.Context, properties []map[string]any) []map[string]any {
	merged := make([]map[string]any, len(properties))
	var wg sync.WaitGroup

	for i, property := range properties {
		merged[i] = property

		link, _ := property["serpapi_property_details_link"].(string)
		if link == "" {
			continue
		}

		wg.Add(1)
		go func(i int, property map[string]any, link string) {
			defer wg.Done()
			details, err := t.search.PropertyDetails(ctx, link)
			if err != nil {
				return
			}
			combined := make(map[string]any, len(property)+len(details))
			for k, v := range property {
				combined[k] = v
			}
			for k, v := range details {
				combined[k] = v
			}
			merged[i] = combined
		}(i, property, link)
	}

	wg.Wait()
	return merged
}

// summarizeReviews 生成单个房源的评论摘要
func (t *HotelsTool) summarizeReviews(ctx context.Context, property map[string]any) string {
	_, hasBreakdown := property["reviews_breakdown"]
	_, hasOther := property["other_reviews"]
	if !hasBreakdown && !hasOther {
		return "No review data available."
	}

	name, _ := property["name"].(string)
	prompt := fmt.Sprintf(`Summarize the reviews about this hotel or vacation rental. Be as concise as possible. Capture the key details, red flags, and positive points. You do not need to speak in complete sentences.

## Property Name:
%s

## Reviews & Ratings:
### Review Count: %v
### Overall Rating: %v / 5
  - Note: the average Google star rating for hotels is around 4.42. Below 4.4 is below average; below 4 indicates serious issues; 4.5+ is the bare minimum for a respectable property.

## Review Breakdown:
%s

## Individual Reviews:
%s`,
		name,
		property["reviews"],
		property["overall_rating"],
		renderReviewBreakdown(property),
		renderOtherReviews(property))

	summary, err := t.gen.Text(ctx, prompt)
	if err != nil {
		return "Could not summarize reviews."
	}
	return summary
}

func renderReviewBreakdown(property map[string]any) string {
	items, ok := property["reviews_breakdown"].([]any)
	if !ok || len(items) == 0 {
		return "Not available."
	}
	var b strings.Builder
	for _, raw := range items {
		item, ok := raw.(map[string]any)
		if !ok {
			continue
		}
		fmt.Fprintf(&b, "- %v: mentions %v, positive %v, negative %v, neutral %v\n",
			item["description"], item["total_mentioned"], item["positive"], item["negative"], item["neutral"])
	}
	return b.String()
}

func renderOtherReviews(property map[string]any) string {
	items, ok := property["other_reviews"].([]any)
	if !ok || len(items) == 0 {
		return "Not available."
	}
	if len(items) > 24 {
		items = items[:24]
	}
	var b strings.Builder
	for i, raw := range items {
		item, ok := raw.(map[string]any)
		if !ok {
			continue
		}
		review, _ := item["user_review"].(map[string]any)
		if review == nil {
			continue
		}
		fmt.Fprintf(&b, "Review %d\n\tDate: %v\n\tReview: %v\n\tSource: %v\n\n",
			i+1, review["date"], review["comment"], item["source"])
	}
	return b.String()
}

// formatResults 整理住宿选项为最终 Markdown 响应
func (t *HotelsTool) formatResults(ctx context.Context, properties []map[string]any, results *serpapi.HotelResults, context_, userQuery string) (string, error) {
	prompt := fmt.Sprintf(`<instructions>
Please organize the following accommodation options in a proper markdown output.

- Include all the relevant details like property names, amenities, costs, data points from reviews, etc.
- Ensure to include the full booking URLs and NEVER truncate them. Include 1-2 booking options per property, not all.
- Take the client's accommodation preferences into account when ordering the hotels.
- You may omit options that do not fit the client's preferences.
- Where the preferences conflict with the current search query, the query always wins.
</instructions>

<accommodation_options (%d options)>
%s
</accommodation_options>

<Client_Context>
%s
</Client_Context>

<Current_Client_Accommodation_Search_Query>
%s
</Current_Client_Accommodation_Search_Query>`,
		len(properties), RenderOptions(properties), orNone(context_), userQuery)

	formatted, err := t.gen.Text(ctx, prompt)
	if err != nil {
		return "", fmt.Errorf("failed to format hotel results: %w", err)
	}

	return fmt.Sprintf(`# Accommodation Options
%s

## Accommodation Preferences
%s

## Current Accommodation Query
%s

## Google Hotels Search Results Page
%s`, formatted, orNone(context_), userQuery, results.SearchURL()), nil
}
