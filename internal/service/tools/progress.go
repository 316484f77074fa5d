package tools

import (
	"github.com/ashwinyue/concierge-ai/internal/service/types"
)

// Progress 工具执行阶段的进度负载
type Progress struct {
	Stage       string
	Message     string
	Current     int
	Total       int
	Destination string
	Website     string
}

// Emitter 绑定到本轮对话出站通道的进度发射器
// emit 为 nil 时（同步路径无活跃流）所有发射为空操作
type Emitter struct {
	chunkType string
	emit      types.EmitFunc
}

// NewEmitter 创建发射器，chunkType 形如 "flight-progress"
func NewEmitter(chunkType string, emit types.EmitFunc) *Emitter {
	return &Emitter{chunkType: chunkType, emit: emit}
}

// Emit 按发射顺序追加一个进度块
func (e *Emitter) Emit(p Progress) {
	if e == nil || e.emit == nil {
		return
	}

	content := map[string]any{
		"stage":   p.Stage,
		"message": p.Message,
	}
	if p.Current > 0 {
		content["current"] = p.Current
	}
	if p.Total > 0 {
		content["total"] = p.Total
	}
	if p.Destination != "" {
		content["destination"] = p.Destination
	}
	if p.Website != "" {
		content["website"] = p.Website
	}

	e.emit(types.StreamChunk{
		Type:    e.chunkType,
		Content: content,
	})
}
