package tools

import (
	"context"
	"errors"
	"net/url"
	"strings"
	"testing"

	"github.com/ashwinyue/concierge-ai/internal/model"
	"github.com/ashwinyue/concierge-ai/internal/serpapi"
)

// mockHotelSearcher 脚本化酒店搜索
type mockHotelSearcher struct {
	results    *serpapi.HotelResults
	searchErr  error
	lastParams url.Values
	details    map[string]map[string]any
	detailsErr error
}

func (m *mockHotelSearcher) SearchHotels(ctx context.Context, params url.Values) (*serpapi.HotelResults, error) {
	m.lastParams = params
	if m.searchErr != nil {
		return nil, m.searchErr
	}
	return m.results, nil
}

func (m *mockHotelSearcher) PropertyDetails(ctx context.Context, detailsLink string) (map[string]any, error) {
	if m.detailsErr != nil {
		return nil, m.detailsErr
	}
	if d, ok := m.details[detailsLink]; ok {
		return d, nil
	}
	return nil, errors.New("no details")
}

func TestHotelQueryValues(t *testing.T) {
	q := &HotelQuery{
		Q:            "Hotels in Lisbon, Portugal",
		CheckInDate:  "2026-09-10",
		CheckOutDate: "2026-09-14",
		Adults:       2,
	}
	v := q.Values()

	if got := v.Get("q"); got != "Hotels in Lisbon Portugal" {
		t.Errorf("q = %q, want commas stripped", got)
	}
	if v.Get("rating") != "8" {
		t.Errorf("rating = %q, want 8", v.Get("rating"))
	}
	if v.Get("hotel_class") != "3,4,5" {
		t.Errorf("hotel_class = %q, want 3,4,5", v.Get("hotel_class"))
	}
	if v.Get("vacation_rentals") != "" {
		t.Error("vacation_rentals set for a hotel query")
	}

	q.VacationRentals = true
	v = q.Values()
	if v.Get("vacation_rentals") != "true" {
		t.Error("vacation_rentals not set for a rental query")
	}
	if v.Get("hotel_class") != "" {
		t.Error("hotel_class set for a rental query")
	}
}

func TestHotelQueryValuesDefaultsAdults(t *testing.T) {
	q := &HotelQuery{Q: "Lisbon"}
	if got := q.Values().Get("adults"); got != "1" {
		t.Errorf("adults = %q, want 1", got)
	}
}

func TestHotelsToolPipeline(t *testing.T) {
	profiles := newMockProfileStore()
	profiles.profiles["u1"] = &model.UserProfile{ID: "u1", ContextHotels: "prefers boutique hotels near the city center"}

	searcher := &mockHotelSearcher{
		results: &serpapi.HotelResults{
			Properties: []map[string]any{
				{
					"name":                          "Hotel Avenida Palace",
					"overall_rating":                4.6,
					"reviews":                       1200,
					"serpapi_property_details_link": "https://serpapi.test/details/1",
					"rate_per_night":                map[string]any{"extracted_lowest": 210.0},
				},
				{
					"name":           "Memmo Alfama",
					"overall_rating": 4.5,
					"reviews":        800,
				},
			},
			SearchMetadata: map[string]any{
				"google_hotels_url": "https://www.google.com/travel/hotels?q=lisbon",
			},
		},
		details: map[string]map[string]any{
			"https://serpapi.test/details/1": {
				"amenities":         []any{"Free Wi-Fi", "Bar"},
				"reviews_breakdown": []any{map[string]any{"description": "Location", "total_mentioned": 40, "positive": 38, "negative": 1, "neutral": 1}},
			},
		},
	}

	gen := &mockGenerator{
		objectJSON: `{"q":"Hotels in Lisbon","check_in_date":"2026-09-10","check_out_date":"2026-09-14","adults":1}`,
		textResponses: []string{
			"Location praised, quiet rooms.", // 评论摘要（仅第一家有评论数据）
			"## Hotel Avenida Palace\nClassic hotel, $210/night\n\n## Memmo Alfama\nBoutique with river views",
		},
	}
	recorder := &chunkRecorder{}

	tool := NewHotelsTool(profiles, searcher, gen, "u1", NewEmitter("hotel-progress", recorder.emit))

	result, err := tool.InvokableRun(context.Background(), `{"query":"boutique hotel in Lisbon in September"}`)
	if err != nil {
		t.Fatalf("InvokableRun error: %v", err)
	}

	// 两家房源与搜索结果页链接都要出现在最终输出
	for _, want := range []string{"Hotel Avenida Palace", "Memmo Alfama", "https://www.google.com/travel/hotels?q=lisbon"} {
		if !strings.Contains(result, want) {
			t.Errorf("result missing %q", want)
		}
	}
	if !strings.HasPrefix(result, "# Accommodation Options") {
		t.Errorf("result does not start with the accommodation header: %q", result[:40])
	}

	// 阶段顺序固定
	wantStages := []string{"preferences", "parsing", "searching", "details", "reviews", "formatting"}
	var stages []string
	for _, c := range recorder.chunks {
		if c.Type != "hotel-progress" {
			t.Errorf("unexpected chunk type %q", c.Type)
			continue
		}
		stages = append(stages, c.Content["stage"].(string))
	}
	if len(stages) != len(wantStages) {
		t.Fatalf("got stages %v, want %v", stages, wantStages)
	}
	for i, want := range wantStages {
		if stages[i] != want {
			t.Errorf("stage[%d] = %q, want %q", i, stages[i], want)
		}
	}

	// 搜索参数来自解析结果
	if got := searcher.lastParams.Get("check_in_date"); got != "2026-09-10" {
		t.Errorf("check_in_date = %q, want parsed value", got)
	}
}

func TestHotelsToolNoResults(t *testing.T) {
	profiles := newMockProfileStore()
	profiles.profiles["u1"] = &model.UserProfile{ID: "u1"}

	searcher := &mockHotelSearcher{results: &serpapi.HotelResults{}}
	gen := &mockGenerator{objectJSON: `{"q":"Atlantis","check_in_date":"2026-09-10","check_out_date":"2026-09-11"}`}

	tool := NewHotelsTool(profiles, searcher, gen, "u1", nil)

	result, err := tool.InvokableRun(context.Background(), `{"query":"hotel in Atlantis"}`)
	if err != nil {
		t.Fatalf("InvokableRun error: %v", err)
	}
	if !strings.Contains(result, "No hotels found") {
		t.Errorf("result = %q, want no-results message", result)
	}
}

func TestHotelsToolParseFallback(t *testing.T) {
	profiles := newMockProfileStore()
	profiles.profiles["u1"] = &model.UserProfile{ID: "u1"}

	searcher := &mockHotelSearcher{results: &serpapi.HotelResults{}}
	gen := &mockGenerator{objectErr: errors.New("model unavailable")}

	tool := NewHotelsTool(profiles, searcher, gen, "u1", nil)

	if _, err := tool.InvokableRun(context.Background(), `{"query":"hotel in Porto"}`); err != nil {
		t.Fatalf("InvokableRun error: %v", err)
	}

	// 解析失败回退为一周后入住的基础查询
	if got := searcher.lastParams.Get("q"); got != "hotel in Porto" {
		t.Errorf("fallback q = %q, want raw query", got)
	}
	if searcher.lastParams.Get("check_in_date") == "" || searcher.lastParams.Get("check_out_date") == "" {
		t.Error("fallback query missing dates")
	}
}

func TestHotelsToolDetailFailureKeepsOriginal(t *testing.T) {
	profiles := newMockProfileStore()
	profiles.profiles["u1"] = &model.UserProfile{ID: "u1"}

	searcher := &mockHotelSearcher{
		results: &serpapi.HotelResults{
			Properties: []map[string]any{
				{"name": "Hotel One", "serpapi_property_details_link": "https://serpapi.test/details/1"},
			},
		},
		detailsErr: errors.New("details unavailable"),
	}
	gen := &mockGenerator{
		objectJSON:    `{"q":"Lisbon","check_in_date":"2026-09-10","check_out_date":"2026-09-11"}`,
		textResponses: []string{"formatted"},
	}

	tool := NewHotelsTool(profiles, searcher, gen, "u1", nil)

	result, err := tool.InvokableRun(context.Background(), `{"query":"hotel in Lisbon"}`)
	if err != nil {
		t.Fatalf("InvokableRun failed on detail fetch error: %v", err)
	}
	if !strings.Contains(result, "# Accommodation Options") {
		t.Errorf("result = %q, want formatted output", result)
	}
}
