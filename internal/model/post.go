package model

import (
	"strings"
	"time"
)

// Category 内容分类（封闭集合）
type Category string

const (
	CategoryNews     Category = "news"
	CategoryBusiness Category = "biz"
	CategoryService  Category = "svc"
)

var categories = []Category{CategoryNews, CategoryBusiness, CategoryService}

// Categories 返回全部已知分类
func Categories() []Category {
	return append([]Category(nil), categories...)
}

// ParseCategory 空串返回 ("", true)：单分类部署下帖子没有分类
func ParseCategory(s string) (Category, bool) {
	s = strings.ToLower(strings.TrimSpace(s))
	if s == "" {
		return "", true
	}
	for _, c := range categories {
		if string(c) == s {
			return c, true
		}
	}
	return "", false
}

func (c Category) Valid() bool {
	_, ok := ParseCategory(string(c))
	return ok
}

// Status 帖子状态：pending -> approved | rejected，后两者为终态
type Status string

const (
	StatusPending  Status = "pending"
	StatusApproved Status = "approved"
	StatusRejected Status = "rejected"
)

func (s Status) Terminal() bool {
	return s == StatusApproved || s == StatusRejected
}

// Origin 投稿时提交者是否为管理员
type Origin string

const (
	OriginAdmin Origin = "admin"
	OriginUser  Origin = "user"
)

// Author 投稿时的身份快照，之后不再刷新
type Author struct {
	UserID   int64  `json:"userId" gorm:"index:idx_post_author;not null"`
	Name     string `json:"name" gorm:"type:varchar(255);not null"`
	Username string `json:"username,omitempty" gorm:"type:varchar(64)"`
}

// DisplayName 优先使用姓名，其次 @username
func (a Author) DisplayName() string {
	switch {
	case a.Name != "":
		return a.Name
	case a.Username != "":
		return "@" + a.Username
	default:
		return "user"
	}
}

// Post 帖子主体。ID 由序列分配，不使用数据库自增。
type Post struct {
	ID        int64     `json:"id" gorm:"primaryKey;autoIncrement:false"`
	Category  Category  `json:"category,omitempty" gorm:"type:varchar(16);index:idx_post_status_category,priority:2"`
	Text      string    `json:"text" gorm:"type:text;not null"`
	MediaRef  string    `json:"mediaRef,omitempty" gorm:"type:varchar(255)"`
	Author    Author    `json:"author" gorm:"embedded;embeddedPrefix:author_"`
	CreatedAt time.Time `json:"createdAt" gorm:"not null"`
	Status    Status    `json:"status" gorm:"type:varchar(16);not null;index:idx_post_status_category,priority:1"`
	Origin    Origin    `json:"origin" gorm:"type:varchar(8);not null"`
}

func (Post) TableName() string { return "posts" }

func (p *Post) HasMedia() bool { return p.MediaRef != "" }
