package tools

import (
	"strings"
	"testing"
)

func TestFlatten(t *testing.T) {
	obj := map[string]any{
		"name": "Hotel One",
		"rate": map[string]any{
			"lowest":    "$210",
			"breakdown": map[string]any{"base": "$180", "taxes": "$30"},
		},
		"amenities": []any{"Wi-Fi", "Bar"},
	}

	flat := Flatten(obj)

	if flat["name"] != "Hotel One" {
		t.Errorf("name = %v", flat["name"])
	}
	if flat["rate.lowest"] != "$210" {
		t.Errorf("rate.lowest = %v", flat["rate.lowest"])
	}
	if flat["rate.breakdown.base"] != "$180" {
		t.Errorf("rate.breakdown.base = %v", flat["rate.breakdown.base"])
	}
	// 数组保持原样
	if _, ok := flat["amenities"].([]any); !ok {
		t.Errorf("amenities = %T, want []any", flat["amenities"])
	}
	if _, ok := flat["rate"]; ok {
		t.Error("nested map key should be replaced by dotted paths")
	}
}

func TestRenderOption(t *testing.T) {
	rendered := RenderOption(0, map[string]any{
		"name":  "Hotel One",
		"price": 210,
	})

	if !strings.HasPrefix(rendered, "Option 1") {
		t.Errorf("rendered = %q, want Option 1 prefix", rendered)
	}
	// 键按字典序排列
	nameIdx := strings.Index(rendered, "name:")
	priceIdx := strings.Index(rendered, "price:")
	if nameIdx < 0 || priceIdx < 0 || nameIdx > priceIdx {
		t.Errorf("keys not sorted: %q", rendered)
	}
}

func TestTrimHotelRecord(t *testing.T) {
	property := map[string]any{
		"name":              "Hotel One",
		"address":           "Av. da Liberdade 123, Lisbon",
		"overall_rating":    4.6,
		"images":            []any{"a.jpg"},
		"reviews_breakdown": []any{map[string]any{"description": "Location"}},
		"other_reviews":     []any{},
		"search_metadata":   map[string]any{"id": "x"},
		"rate_per_night":    map[string]any{"lowest": "$210", "extracted_lowest": 210.0},
		"total_rate":        map[string]any{"lowest": "$840", "extracted_lowest": 840.0},
	}

	trimmed := TrimHotelRecord(property, "Great location.")

	for _, excluded := range []string{"images", "reviews_breakdown", "other_reviews", "search_metadata", "rate_per_night", "total_rate"} {
		if _, ok := trimmed[excluded]; ok {
			t.Errorf("field %q should be trimmed", excluded)
		}
	}

	if trimmed["reviews_summary"] != "Great location." {
		t.Errorf("reviews_summary = %v", trimmed["reviews_summary"])
	}
	if trimmed["rate_per_night_lowest_usd"] != 210.0 {
		t.Errorf("rate_per_night_lowest_usd = %v", trimmed["rate_per_night_lowest_usd"])
	}
	if trimmed["total_rate_lowest_usd"] != 840.0 {
		t.Errorf("total_rate_lowest_usd = %v", trimmed["total_rate_lowest_usd"])
	}

	link, _ := trimmed["google_maps_link"].(string)
	if !strings.HasPrefix(link, "https://www.google.com/maps/search/?api=1&query=") {
		t.Errorf("google_maps_link = %q", link)
	}

	// 原始记录不被修改
	if _, ok := property["images"]; !ok {
		t.Error("input record mutated")
	}
	if _, ok := property["reviews_summary"]; ok {
		t.Error("input record mutated with computed field")
	}
}

func TestTrimHotelRecordEmptySummary(t *testing.T) {
	trimmed := TrimHotelRecord(map[string]any{"name": "Hotel One"}, "")
	if trimmed["reviews_summary"] != "No review data available." {
		t.Errorf("reviews_summary = %v", trimmed["reviews_summary"])
	}
}
