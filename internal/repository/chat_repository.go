package repository

import (
	"errors"

	"github.com/ashwinyue/concierge-ai/internal/model"
	"gorm.io/gorm"
)

// ErrChatNotFound 会话不存在或不属于调用者
var ErrChatNotFound = errors.New("chat not found")

// ChatRepository 会话数据访问
type ChatRepository struct {
	db *gorm.DB
}

// NewChatRepository 创建会话仓库
func NewChatRepository(db *gorm.DB) *ChatRepository {
	return &ChatRepository{db: db}
}

// GetChatByID 获取会话，不存在返回 ErrChatNotFound
func (r *ChatRepository) GetChatByID(id string) (*model.Chat, error) {
	var chat model.Chat
	err := r.db.Where("id = ?", id).First(&chat).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, ErrChatNotFound
	}
	if err != nil {
		return nil, err
	}
	return &chat, nil
}

// SaveChat 创建会话
func (r *ChatRepository) SaveChat(chat *model.Chat) error {
	return r.db.Create(chat).Error
}

// UpdateVisibility 更新会话可见性
func (r *ChatRepository) UpdateVisibility(id, visibility string) error {
	return r.db.Model(&model.Chat{}).Where("id = ?", id).
		Update("visibility", visibility).Error
}

// ListChatsByUser 列出用户的会话
func (r *ChatRepository) ListChatsByUser(userID string, offset, limit int) ([]*model.Chat, error) {
	var chats []*model.Chat
	err := r.db.Where("user_id = ?", userID).
		Order("created_at DESC").Offset(offset).Limit(limit).
		Find(&chats).Error
	return chats, err
}

// GetMessagesByChatID 按创建时间升序获取会话消息
func (r *ChatRepository) GetMessagesByChatID(chatID string) ([]*model.Message, error) {
	var messages []*model.Message
	err := r.db.Where("chat_id = ?", chatID).Order("created_at ASC").Find(&messages).Error
	return messages, err
}

// SaveMessages 追加消息
func (r *ChatRepository) SaveMessages(messages []*model.Message) error {
	if len(messages) == 0 {
		return nil
	}
	return r.db.Create(messages).Error
}

// DeleteChatByID 删除属于 userID 的会话及其消息
// 会话不存在或归属不符时返回 ErrChatNotFound，不做任何修改
func (r *ChatRepository) DeleteChatByID(id, userID string) error {
	return r.db.Transaction(func(tx *gorm.DB) error {
		var chat model.Chat
		err := tx.Where("id = ? AND user_id = ?", id, userID).First(&chat).Error
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return ErrChatNotFound
		}
		if err != nil {
			return err
		}
		if err := tx.Delete(&model.Message{}, "chat_id = ?", id).Error; err != nil {
			return err
		}
		return tx.Delete(&model.Chat{}, "id = ?", id).Error
	})
}
