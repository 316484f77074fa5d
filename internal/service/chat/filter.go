package chat

import (
	"sync/atomic"

	"github.com/ashwinyue/concierge-ai/internal/service/types"
)

// toolCallGate 工具调用门控过滤器
// 在首个工具相关块出现前丢弃所有块（模型的填充文本），之后放行一切块并保持
// 原始顺序。进度块只在模型已提交工具调用之后产生，且工具执行与模型流的消费
// 并发进行，进度块可能先于调用块到达，因此同样开门。
// 整轮没有任何工具活动则零块通过。
// 块从编排器与工具两侧 goroutine 并发到达，门状态用原子量。
type toolCallGate struct {
	open atomic.Bool
}

func newToolCallGate() *toolCallGate {
	return &toolCallGate{}
}

// Allow 判断块是否通过
func (g *toolCallGate) Allow(chunk types.StreamChunk) bool {
	if chunk.IsToolCall() || chunk.IsProgress() {
		g.open.Store(true)
		return true
	}
	return g.open.Load()
}
