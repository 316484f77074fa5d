package tools

import (
	"fmt"
	"net/url"
	"sort"
	"strings"
)

// Flatten 将嵌套 map 展平为点号路径键
// 数组保持原样，由调用方决定如何渲染
func Flatten(obj map[string]any) map[string]any {
	out := make(map[string]any)
	flattenInto(out, obj, "")
	return out
}

func flattenInto(out map[string]any, obj map[string]any, prefix string) {
	for k, v := range obj {
		key := k
		if prefix != "" {
			key = prefix + "." + k
		}
		if nested, ok := v.(map[string]any); ok {
			flattenInto(out, nested, key)
			continue
		}
		out[key] = v
	}
}

// RenderOption 将一条记录渲染为提示词中的 "Option N" 文本段
func RenderOption(index int, record map[string]any) string {
	flat := Flatten(record)

	keys := make([]string, 0, len(flat))
	for k := range flat {
		keys = append(keys, k)
	}
	sort.Strings(keys)

	var b strings.Builder
	fmt.Fprintf(&b, "Option %d", index+1)
	for _, k := range keys {
		fmt.Fprintf(&b, "\n\t%s: %v", k, flat[k])
	}
	return b.String()
}

// RenderOptions 渲染一组记录，每条之间空行分隔
func RenderOptions(records []map[string]any) string {
	parts := make([]string, 0, len(records))
	for i, r := range records {
		parts = append(parts, RenderOption(i, r))
	}
	return strings.Join(parts, "\n\n")
}

// hotelExcludedFields 酒店记录送入格式化前剔除的字段
// 大体量原始数据（图片、完整评论、搜索元数据）对格式化模型无用
var hotelExcludedFields = []string{
	"message", "index", "logprobs", "finish_reason",
	"rate_per_night", "total_rate", "deal", "deal_description",
	"nearby_places", "images", "serpapi_property_details_link",
	"search_metadata", "search_parameters",
	"reviews_breakdown", "other_reviews", "prices", "featured_prices",
}

// TrimHotelRecord 剔除排除字段并补充计算字段后返回新记录
func TrimHotelRecord(property map[string]any, reviewsSummary string) map[string]any {
	trimmed := make(map[string]any, len(property))
	for k, v := range property {
		trimmed[k] = v
	}
	for _, field := range hotelExcludedFields {
		delete(trimmed, field)
	}

	if reviewsSummary == "" {
		reviewsSummary = "No review data available."
	}
	trimmed["reviews_summary"] = reviewsSummary

	if rate, ok := property["rate_per_night"].(map[string]any); ok {
		trimmed["rate_per_night_lowest_usd"] = rate["extracted_lowest"]
	}
	if rate, ok := property["total_rate"].(map[string]any); ok {
		trimmed["total_rate_lowest_usd"] = rate["extracted_lowest"]
	}

	name, _ := property["name"].(string)
	address, _ := property["address"].(string)
	if name != "" || address != "" {
		q := url.QueryEscape(strings.Join([]string{name, address}, "+"))
		trimmed["google_maps_link"] = "https://www.google.com/maps/search/?api=1&query=" + q
	}

	return trimmed
}
