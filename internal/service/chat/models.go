package chat

// DefaultChatModel 默认对话模型标识
const DefaultChatModel = "workflow-assistant"

// ChatModelInfo 对话模型目录条目
// IsWorkflow 为真时该标识被委托给外部工作流引擎而非本地模型
type ChatModelInfo struct {
	ID          string `json:"id"`
	Name        string `json:"name"`
	Description string `json:"description"`
	IsWorkflow  bool   `json:"is_workflow,omitempty"`
}

// chatModels 可选模型目录
var chatModels = []ChatModelInfo{
	{
		ID:          "workflow-assistant",
		Name:        "Concierge",
		Description: "Proprietary assistant with advanced tool-calling and user context",
		IsWorkflow:  true,
	},
	{
		ID:          "workflow-assistant-1",
		Name:        "Concierge (staging)",
		Description: "Staging variant of the workflow assistant",
		IsWorkflow:  true,
	},
	{
		ID:          "chat-model",
		Name:        "Chat",
		Description: "Strong for all-purpose chat and problem solving across domains",
	},
	{
		ID:          "chat-model-reasoning",
		Name:        "Reasoning",
		Description: "Excels at reasoning, coding, and instruction-following",
	},
}

// Models 返回模型目录
func Models() []ChatModelInfo {
	out := make([]ChatModelInfo, len(chatModels))
	copy(out, chatModels)
	return out
}

// LookupModel 按标识查找模型，未知返回 false
func LookupModel(id string) (ChatModelInfo, bool) {
	for _, m := range chatModels {
		if m.ID == id {
			return m, true
		}
	}
	return ChatModelInfo{}, false
}
