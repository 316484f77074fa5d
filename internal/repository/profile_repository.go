package repository

import (
	"errors"

	"github.com/ashwinyue/concierge-ai/internal/model"
	"gorm.io/gorm"
)

// ErrProfileNotFound 用户档案不存在
var ErrProfileNotFound = errors.New("user profile not found")

// ProfileRepository 用户档案数据访问
type ProfileRepository struct {
	db *gorm.DB
}

// NewProfileRepository 创建用户档案仓库
func NewProfileRepository(db *gorm.DB) *ProfileRepository {
	return &ProfileRepository{db: db}
}

// GetByID 按内部 ID 获取档案
func (r *ProfileRepository) GetByID(id string) (*model.UserProfile, error) {
	var profile model.UserProfile
	err := r.db.Where("id = ?", id).First(&profile).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, ErrProfileNotFound
	}
	if err != nil {
		return nil, err
	}
	return &profile, nil
}

// GetBySubject 按身份提供方 subject 获取档案
func (r *ProfileRepository) GetBySubject(subject string) (*model.UserProfile, error) {
	var profile model.UserProfile
	err := r.db.Where("subject = ?", subject).First(&profile).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, ErrProfileNotFound
	}
	if err != nil {
		return nil, err
	}
	return &profile, nil
}
