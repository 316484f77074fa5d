package model

import "time"

// UserProfile 用户档案
// 由外部身份提供方和离线摄取管道维护，context_* 字段为长文本画像，
// 对编排器与工具只读
type UserProfile struct {
	ID        string    `gorm:"primaryKey;size:36" json:"id"`
	Subject   string    `gorm:"uniqueIndex;size:128" json:"subject"`
	Email     string    `gorm:"size:255" json:"email"`
	FullName  string    `gorm:"size:255" json:"full_name"`
	FirstName string    `gorm:"size:100" json:"first_name"`
	LastName  string    `gorm:"size:100" json:"last_name"`
	Company   string    `gorm:"size:255" json:"company_name"`
	JobTitle  string    `gorm:"size:255" json:"job_title"`
	CreatedAt time.Time `gorm:"autoCreateTime" json:"created_at"`
	UpdatedAt time.Time `gorm:"autoUpdateTime" json:"updated_at"`

	ContextFlights               string `gorm:"column:context_flights;type:text" json:"-"`
	ContextLocation              string `gorm:"column:context_location;type:text" json:"-"`
	ContextCalendar              string `gorm:"column:context_calendar;type:text" json:"-"`
	ContextHotels                string `gorm:"column:context_hotels;type:text" json:"-"`
	ContextVacationRentals       string `gorm:"column:context_vacation_rentals;type:text" json:"-"`
	ContextEmailAnalysis         string `gorm:"column:context_email_analysis;type:text" json:"-"`
	ContextEmailWritingStyle     string `gorm:"column:context_email_writing_style;type:text" json:"-"`
	ContextNetwork               string `gorm:"column:context_network;type:text" json:"-"`
	ContextBooks                 string `gorm:"column:context_books;type:text" json:"-"`
	ContextPersonalPurchases     string `gorm:"column:context_personal_purchases;type:text" json:"-"`
	ContextProfessionalPurchases string `gorm:"column:context_professional_purchases;type:text" json:"-"`
	ContextGiftPurchases         string `gorm:"column:context_gift_purchases;type:text" json:"-"`
	ContextDaily                 string `gorm:"column:context_daily;type:text" json:"-"`
}

// ContextField 按列名读取画像字段，未知列返回空串
func (p *UserProfile) ContextField(name string) string {
	switch name {
	case "full_name":
		return p.FullName
	case "first_name":
		return p.FirstName
	case "last_name":
		return p.LastName
	case "company_name":
		return p.Company
	case "job_title":
		return p.JobTitle
	case "context_flights":
		return p.ContextFlights
	case "context_location":
		return p.ContextLocation
	case "context_calendar":
		return p.ContextCalendar
	case "context_hotels":
		return p.ContextHotels
	case "context_vacation_rentals":
		return p.ContextVacationRentals
	case "context_email_analysis":
		return p.ContextEmailAnalysis
	case "context_email_writing_style":
		return p.ContextEmailWritingStyle
	case "context_network":
		return p.ContextNetwork
	case "context_books":
		return p.ContextBooks
	case "context_personal_purchases":
		return p.ContextPersonalPurchases
	case "context_professional_purchases":
		return p.ContextProfessionalPurchases
	case "context_gift_purchases":
		return p.ContextGiftPurchases
	case "context_daily":
		return p.ContextDaily
	default:
		return ""
	}
}

// ContextColumns 所有可供上下文检索的列名
func ContextColumns() []string {
	return []string{
		"full_name", "first_name", "last_name", "company_name", "job_title",
		"context_flights", "context_location", "context_calendar",
		"context_hotels", "context_vacation_rentals",
		"context_email_analysis", "context_email_writing_style",
		"context_network", "context_books",
		"context_personal_purchases", "context_professional_purchases",
		"context_gift_purchases", "context_daily",
	}
}

// TableName 指定表名
func (UserProfile) TableName() string {
	return "user_profiles"
}
