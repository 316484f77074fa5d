package tools

import (
	"context"
	"encoding/json"
	"fmt"
	"net/url"
	"time"

	"github.com/cloudwego/eino/components/tool"
	"github.com/cloudwego/eino/schema"

	"github.com/ashwinyue/concierge-ai/internal/serpapi"
)

// flightSearcher 航班搜索依赖，测试时可替换
type flightSearcher interface {
	SearchFlights(ctx context.Context, params url.Values) (*serpapi.FlightResults, error)
	BookingOptions(ctx context.Context, params url.Values, bookingToken string) (*serpapi.BookingResults, error)
}

// FlightQuery 航班搜索参数，由解析阶段从自然语言生成
type FlightQuery struct {
	DepartureID     string `json:"departure_id"`
	ArrivalID       string `json:"arrival_id"`
	Type            string `json:"type"` // 1=往返 2=单程 3=多程
	OutboundDate    string `json:"outbound_date"`
	ReturnDate      string `json:"return_date,omitempty"`
	TravelClass     string `json:"travel_class"`
	Stops           string `json:"stops"`
	ShowHidden      string `json:"show_hidden,omitempty"`
	Adults          string `json:"adults"`
	Children        string `json:"children,omitempty"`
	InfantsInSeat   string `json:"infants_in_seat,omitempty"`
	InfantsOnLap    string `json:"infants_on_lap,omitempty"`
	Bags            string `json:"bags,omitempty"`
	MaxPrice        string `json:"max_price,omitempty"`
	OutboundTimes   string `json:"outbound_times,omitempty"`
	ReturnTimes     string `json:"return_times,omitempty"`
	LayoverDuration string `json:"layover_duration,omitempty"`
	ExcludeConns    string `json:"exclude_conns,omitempty"`
	MaxDuration     string `json:"max_duration,omitempty"`
	ExcludeAirlines string `json:"exclude_airlines,omitempty"`
	IncludeAirlines string `json:"include_airlines,omitempty"`
	MultiCityJSON   string `json:"multi_city_json,omitempty"`
}

// Values 转换为搜索请求参数，空值省略
func (q *FlightQuery) Values() url.Values {
	v := url.Values{}
	set := func(key, val string) {
		if val != "" {
			v.Set(key, val)
		}
	}
	set("departure_id", q.DepartureID)
	set("arrival_id", q.ArrivalID)
	set("type", q.Type)
	set("outbound_date", q.OutboundDate)
	set("return_date", q.ReturnDate)
	set("travel_class", q.TravelClass)
	set("stops", q.Stops)
	set("show_hidden", q.ShowHidden)
	set("adults", q.Adults)
	set("children", q.Children)
	set("infants_in_seat", q.InfantsInSeat)
	set("infants_on_lap", q.InfantsOnLap)
	set("bags", q.Bags)
	set("max_price", q.MaxPrice)
	set("outbound_times", q.OutboundTimes)
	set("return_times", q.ReturnTimes)
	set("layover_duration", q.LayoverDuration)
	set("exclude_conns", q.ExcludeConns)
	set("max_duration", q.MaxDuration)
	set("exclude_airlines", q.ExcludeAirlines)
	set("include_airlines", q.IncludeAirlines)
	set("multi_city_json", q.MultiCityJSON)
	return v
}

// bookingValues 预订详情二次查询只携带定位搜索所需的核心参数
func (q *FlightQuery) bookingValues() url.Values {
	v := url.Values{}
	set := func(key, val string) {
		if val != "" {
			v.Set(key, val)
		}
	}
	set("departure_id", q.DepartureID)
	set("arrival_id", q.ArrivalID)
	set("type", q.Type)
	set("outbound_date", q.OutboundDate)
	set("return_date", q.ReturnDate)
	set("travel_class", q.TravelClass)
	set("stops", q.Stops)
	set("show_hidden", q.ShowHidden)
	return v
}

// FlightsTool 航班搜索工具
// 五阶段流水线：偏好 → 解析 → 搜索 → 预订详情 → 格式化
type FlightsTool struct {
	profiles ProfileStore
	search   flightSearcher
	gen      Generator
	userID   string
	emitter  *Emitter
}

// NewFlightsTool 创建绑定到某个用户与本轮输出流的航班工具
func NewFlightsTool(profiles ProfileStore, search flightSearcher, gen Generator, userID string, emitter *Emitter) *FlightsTool {
	return &FlightsTool{profiles: profiles, search: search, gen: gen, userID: userID, emitter: emitter}
}

type flightArgs struct {
	Query string `json:"query"`
}

// Info 工具元信息
func (t *FlightsTool) Info(ctx context.Context) (*schema.ToolInfo, error) {
	return &schema.ToolInfo{
		Name: "google_flights",
		Desc: `搜索航班。工具内置客户的航班偏好（常用航司、舱位、价格等），一般无需向用户询问偏好，只需行程本身的信息（日期、出发地/目的地等）。工具只输出预订链接，不能代替用户订票。结果只有模型可见，必须把航班信息与链接写进回复；末尾始终附上 Google Flights 搜索链接。`,
		ParamsOneOf: schema.NewParamsOneOfByParams(map[string]*schema.ParameterInfo{
			"query": {
				Type:     schema.String,
				Desc:     `用户的航班搜索请求，例如 "round trip from SFO to Tokyo next month"`,
				Required: true,
			},
		}),
	}, nil
}

// InvokableRun 执行航班搜索
func (t *FlightsTool) InvokableRun(ctx context.Context, argumentsInJSON string, _ ...tool.Option) (string, error) {
	var args flightArgs
	if err := json.Unmarshal([]byte(argumentsInJSON), &args); err != nil {
		return "", fmt.Errorf("invalid flight search arguments: %w", err)
	}
	if args.Query == "" {
		return "", fmt.Errorf("flight search query is required")
	}

	// 偏好
	t.emitter.Emit(Progress{Stage: "preferences", Message: "Getting your flight preferences..."})
	context_ := t.loadContext()

	// 解析
	t.emitter.Emit(Progress{Stage: "parsing", Message: "Parsing your search request..."})
	query, err := t.parseQuery(ctx, args.Query, context_)
	if err != nil {
		return "", fmt.Errorf("failed to parse flight query: %w", err)
	}

	// 搜索
	route := fmt.Sprintf("%s to %s", query.DepartureID, query.ArrivalID)
	t.emitter.Emit(Progress{
		Stage:       "searching",
		Message:     fmt.Sprintf("Searching flights in %s...", route),
		Destination: route,
	})
	results, err := t.search.SearchFlights(ctx, query.Values())
	if err != nil {
		return "", fmt.Errorf("flight search failed: %w", err)
	}

	allFlights := append([]map[string]any{}, results.BestFlights...)
	allFlights = append(allFlights, results.OtherFlights...)
	if len(allFlights) > 3 {
		allFlights = allFlights[:3]
	}

	if len(allFlights) == 0 {
		return fmt.Sprintf("I wasn't able to find any flights for %s. You may want to adjust the dates or route and try again.", route), nil
	}

	// 预订详情，单条失败降级为原始搜索结果
	t.emitter.Emit(Progress{Stage: "booking", Message: "Getting booking options..."})
	for i := range allFlights {
		t.enrichBooking(ctx, query, allFlights[i], i)
	}

	// 格式化
	t.emitter.Emit(Progress{Stage: "formatting", Message: "Applying flight preferences and re-ranking..."})
	formatted, err := t.formatResults(ctx, allFlights, context_, args.Query)
	if err != nil {
		return "", fmt.Errorf("failed to format flight results: %w", err)
	}

	response := fmt.Sprintf(`# Flights

## Flight Options
%s

## Context
%s

## Google Flights Search Results URL
%s`, formatted, orNone(context_), results.SearchURL())

	return response, nil
}

// loadContext 合并航班偏好与地理位置画像，缺失时返回空串
func (t *FlightsTool) loadContext() string {
	profile, err := t.profiles.GetByID(t.userID)
	if err != nil {
		return ""
	}
	return joinNonEmpty(profile.ContextFlights, profile.ContextLocation)
}

// parseQuery 用结构化输出把自然语言解析为搜索参数
// 画像填充未指定字段，用户请求在冲突时覆盖画像
func (t *FlightsTool) parseQuery(ctx context.Context, userQuery, context_ string) (*FlightQuery, error) {
	prompt := fmt.Sprintf(`Based on the data below, output the flight search parameters as a JSON object. Leave a field empty if it is unnecessary or unspecified, like "return_date" for one-way flights.

<Guidelines>
- The <Client_Context> is general historic information and should be used to populate fields not specified in the <User_Query>.
- The <User_Query> overrides on any conflict, since it is a current request from the user.
- The <Current_DateTime> should be used for interpreting queries like "next month" or "next week".
- Use common sense on layovers: if the itinerary cannot be flown nonstop, allow a reasonable number of stops.
- Assume 1 carry-on bag unless stated otherwise.
</Guidelines>

<Fields>
departure_id / arrival_id: 3-letter IATA airport codes, comma-separated for multiple
type: "1"=Round trip, "2"=One way, "3"=Multi-city
outbound_date / return_date: YYYY-MM-DD (return_date required if type is "1")
travel_class: "1"=Economy, "2"=Premium economy, "3"=Business, "4"=First
stops: "0"=Any, "1"=Nonstop, "2"=up to 1 stop, "3"=up to 2 stops
adults / children / infants_in_seat / infants_on_lap / bags: integers as strings
max_price: numeric string
outbound_times / return_times: hour ranges like "8,18"
layover_duration: minutes range like "60,240"
exclude_conns: comma-separated airport codes to exclude as connections
max_duration: maximum flight duration in minutes
exclude_airlines / include_airlines: comma-separated 2-char IATA codes or alliances (STAR_ALLIANCE, SKYTEAM, ONEWORLD); mutually exclusive
multi_city_json: JSON array string of {departure_id, arrival_id, date, times} segments for type "3"
</Fields>

<Client_Context>
%s
</Client_Context>

<Current_DateTime>
%s
</Current_DateTime>

<User_Query>
%s
</User_Query>`, orNone(context_), time.Now().Format(time.RFC1123), userQuery)

	var query FlightQuery
	if err := t.gen.Object(ctx, prompt, &query); err != nil {
		return nil, err
	}
	if query.DepartureID == "" || query.ArrivalID == "" {
		return nil, fmt.Errorf("parsed query is missing departure or arrival airport")
	}
	return &query, nil
}

// enrichBooking 为单条航班补充预订详情，失败时保留原始记录
func (t *FlightsTool) enrichBooking(ctx context.Context, query *FlightQuery, flight map[string]any, index int) {
	token, _ := flight["booking_token"].(string)
	if token == "" {
		return
	}

	booking, err := t.search.BookingOptions(ctx, query.bookingValues(), token)
	if err != nil || len(booking.BookingOptions) == 0 {
		return
	}

	option := booking.BookingOptions[0]
	together, ok := option["together"].(map[string]any)
	if !ok {
		return
	}

	if req, ok := together["booking_request"].(map[string]any); ok {
		reqURL, _ := req["url"].(string)
		postData, _ := req["post_data"].(string)
		if reqURL != "" {
			flight["booking_url"] = fmt.Sprintf("%s?%s", reqURL, postData)
		}
	}
	if bookWith, ok := together["book_with"]; ok {
		flight["book_with"] = bookWith
	}
	if price, ok := together["price"]; ok {
		flight["price_usd"] = price
	}
	if baggage, ok := together["baggage_prices"].([]any); ok && len(baggage) > 0 {
		flight["baggage"] = baggage[0]
	}
}

// formatResults 调用文本生成整理航班选项为 Markdown
func (t *FlightsTool) formatResults(ctx context.Context, flights []map[string]any, context_, userQuery string) (string, error) {
	prompt := fmt.Sprintf(`<instructions>
Please organize the following flight options in a proper markdown output.

- Include all the relevant details like flight names, airlines, costs, etc.
- Ensure to include the full booking URLs and NEVER truncate them.
- Take the client's flight preferences into account when ordering the flights.
- The user query OVERRIDES any conflict with the preferences: preferences are historic and general, the query is the current request for THIS itinerary.
</instructions>

<flight_options (%d options)>
%s
</flight_options>

<client_preferences_context>
%s
</client_preferences_context>

<user_query>
%s
</user_query>`, len(flights), RenderOptions(flights), orNone(context_), userQuery)

	return t.gen.Text(ctx, prompt)
}
