// Package types 提供跨服务共享的类型，避免循环导入
package types

import "strings"

// 流式块类型
const (
	ChunkText       = "text"        // 纯文本增量
	ChunkToolCall   = "tool-call"   // 模型发起工具调用
	ChunkToolResult = "tool-result" // 工具执行结果
	ChunkError      = "error"       // 错误，流随即结束
)

// StreamChunk 多路复用输出流中的一个类型化块
// Type 为上述常量之一，或工具自定义的进度类型（如 "flight-progress"），
// 进度块的负载放在 Content 中
type StreamChunk struct {
	Type       string         `json:"type"`
	Text       string         `json:"text,omitempty"`
	ToolCallID string         `json:"tool_call_id,omitempty"`
	ToolName   string         `json:"tool_name,omitempty"`
	Arguments  string         `json:"arguments,omitempty"`
	Result     string         `json:"result,omitempty"`
	Content    map[string]any `json:"content,omitempty"`
}

// EmitFunc 将块写入本轮对话的出站通道
// 通道关闭或客户端断开后写入被丢弃，实现方保证不阻塞工具执行
type EmitFunc func(StreamChunk)

// IsToolCall 判断是否为工具调用块
func (c StreamChunk) IsToolCall() bool {
	return c.Type == ChunkToolCall
}

// IsProgress 判断是否为工具进度块
func (c StreamChunk) IsProgress() bool {
	return strings.HasSuffix(c.Type, "-progress")
}
