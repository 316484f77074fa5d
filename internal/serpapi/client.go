// Package serpapi 提供搜索提供方（SerpAPI）的 HTTP 客户端
// 覆盖 google_flights 与 google_hotels 两个引擎及其二次详情查询
package serpapi

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"time"

	"github.com/ashwinyue/concierge-ai/internal/config"
)

// APIError 搜索提供方返回的可区分错误
type APIError struct {
	StatusCode int
	Message    string
}

func (e *APIError) Error() string {
	if e.StatusCode != 0 {
		return fmt.Sprintf("serpapi request failed with status %d: %s", e.StatusCode, e.Message)
	}
	return fmt.Sprintf("serpapi error: %s", e.Message)
}

// Client 搜索提供方客户端
type Client struct {
	apiKey     string
	baseURL    string
	httpClient *http.Client
}

// New 创建客户端
func New(cfg config.SerpAPIConfig) *Client {
	timeout := time.Duration(cfg.Timeout) * time.Second
	if cfg.Timeout <= 0 {
		timeout = 60 * time.Second
	}
	baseURL := cfg.BaseURL
	if baseURL == "" {
		baseURL = "https://serpapi.com"
	}
	return &Client{
		apiKey:     cfg.APIKey,
		baseURL:    baseURL,
		httpClient: &http.Client{Timeout: timeout},
	}
}

// NewWithHTTPClient 创建可注入 HTTP 客户端的实例，测试用
func NewWithHTTPClient(apiKey, baseURL string, httpClient *http.Client) *Client {
	return &Client{apiKey: apiKey, baseURL: baseURL, httpClient: httpClient}
}

// Configured 判断凭证是否已配置
func (c *Client) Configured() bool {
	return c.apiKey != ""
}

// FlightResults google_flights 搜索结果
type FlightResults struct {
	BestFlights    []map[string]any `json:"best_flights"`
	OtherFlights   []map[string]any `json:"other_flights"`
	SearchMetadata map[string]any   `json:"search_metadata"`
}

// SearchURL 返回可供用户继续浏览的搜索结果页链接
func (r *FlightResults) SearchURL() string {
	if r.SearchMetadata == nil {
		return ""
	}
	s, _ := r.SearchMetadata["google_flights_url"].(string)
	return s
}

// BookingResults 航班 booking_token 的二次查询结果
type BookingResults struct {
	BookingOptions []map[string]any `json:"booking_options"`
}

// HotelResults google_hotels 搜索结果
type HotelResults struct {
	Properties     []map[string]any `json:"properties"`
	SearchMetadata map[string]any   `json:"search_metadata"`
}

// SearchURL 返回可供用户继续浏览的搜索结果页链接
func (r *HotelResults) SearchURL() string {
	if r.SearchMetadata == nil {
		return ""
	}
	if s, _ := r.SearchMetadata["prettify_html_file"].(string); s != "" {
		return s
	}
	s, _ := r.SearchMetadata["google_hotels_url"].(string)
	return s
}

// SearchFlights 按给定参数搜索航班
func (c *Client) SearchFlights(ctx context.Context, params url.Values) (*FlightResults, error) {
	params.Set("engine", "google_flights")
	var result FlightResults
	if err := c.search(ctx, params, &result); err != nil {
		return nil, err
	}
	return &result, nil
}

// BookingOptions 按 booking_token 获取航班预订详情
func (c *Client) BookingOptions(ctx context.Context, params url.Values, bookingToken string) (*BookingResults, error) {
	params.Set("engine", "google_flights")
	params.Set("booking_token", bookingToken)
	var result BookingResults
	if err := c.search(ctx, params, &result); err != nil {
		return nil, err
	}
	return &result, nil
}

// SearchHotels 按给定参数搜索酒店/民宿
func (c *Client) SearchHotels(ctx context.Context, params url.Values) (*HotelResults, error) {
	params.Set("engine", "google_hotels")
	var result HotelResults
	if err := c.search(ctx, params, &result); err != nil {
		return nil, err
	}
	return &result, nil
}

// PropertyDetails 获取单个酒店的详情
// detailsLink 为搜索结果中携带的 serpapi_property_details_link
func (c *Client) PropertyDetails(ctx context.Context, detailsLink string) (map[string]any, error) {
	u, err := url.Parse(detailsLink)
	if err != nil {
		return nil, fmt.Errorf("invalid property details link: %w", err)
	}
	params := u.Query()
	var result map[string]any
	if err := c.search(ctx, params, &result); err != nil {
		return nil, err
	}
	return result, nil
}

// search 执行 GET /search.json 并解码响应
// 非 2xx 状态或响应体内嵌 error 字段均返回 *APIError
func (c *Client) search(ctx context.Context, params url.Values, out any) error {
	if c.apiKey == "" {
		return &APIError{Message: "api key is not configured"}
	}
	params.Set("api_key", c.apiKey)

	reqURL := fmt.Sprintf("%s/search.json?%s", c.baseURL, params.Encode())
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, reqURL, nil)
	if err != nil {
		return fmt.Errorf("failed to build request: %w", err)
	}

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return fmt.Errorf("serpapi request failed: %w", err)
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return fmt.Errorf("failed to read response: %w", err)
	}

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		return &APIError{StatusCode: resp.StatusCode, Message: string(body)}
	}

	// 提供方可能在 200 响应中内嵌错误
	var probe struct {
		Error string `json:"error"`
	}
	if err := json.Unmarshal(body, &probe); err == nil && probe.Error != "" {
		return &APIError{Message: probe.Error}
	}

	if err := json.Unmarshal(body, out); err != nil {
		return fmt.Errorf("failed to decode response: %w", err)
	}
	return nil
}
