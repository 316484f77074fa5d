package model

import (
	"time"

	"gorm.io/datatypes"
)

// 消息角色
const (
	RoleUser      = "user"
	RoleAssistant = "assistant"
	RoleSystem    = "system"
	RoleTool      = "tool"
)

// 会话可见性
const (
	VisibilityPrivate  = "private"
	VisibilityPublic   = "public"
	VisibilityUnlisted = "unlisted"
)

// Chat 会话
// ID 一经分配不可变；同一会话的消息按创建时间严格有序
type Chat struct {
	ID         string    `gorm:"primaryKey;size:36" json:"id"`
	UserID     string    `gorm:"index;size:36;not null" json:"user_id"`
	Title      string    `gorm:"size:255" json:"title"`
	Visibility string    `gorm:"size:20;default:private" json:"visibility"`
	CreatedAt  time.Time `gorm:"autoCreateTime" json:"created_at"`
	Messages   []Message `gorm:"foreignKey:ChatID" json:"messages,omitempty"`
}

// Message 消息
// Parts 为有序的类型化内容片段（text / tool_calls），以 jsonb 存储；
// 只有 user 与 assistant 角色出现在可见历史中，工具调用记录内嵌在
// assistant 消息的 parts 里
type Message struct {
	ID          string         `gorm:"primaryKey;size:36" json:"id"`
	ChatID      string         `gorm:"index;size:36;not null" json:"chat_id"`
	Role        string         `gorm:"size:20;index" json:"role"`
	Parts       datatypes.JSON `gorm:"type:jsonb" json:"parts"`
	Attachments datatypes.JSON `gorm:"type:jsonb" json:"attachments"`
	CreatedAt   time.Time      `gorm:"index" json:"created_at"`
}

// MessagePart 消息内容片段
type MessagePart struct {
	Type string `json:"type"`
	Text string `json:"text,omitempty"`
}

// ToolCallRecord 工具调用记录，随 assistant 消息持久化
type ToolCallRecord struct {
	ID        string `json:"id"`
	Name      string `json:"name"`
	Arguments string `json:"arguments"`
	Result    string `json:"result,omitempty"`
}

// TableName 指定表名
func (Chat) TableName() string {
	return "chats"
}

func (Message) TableName() string {
	return "messages"
}
