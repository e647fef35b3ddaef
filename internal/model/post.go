package model

import (
	"strings"
	"time"
)

// Post 内容主体；engagement 计数只增不减
type Post struct {
	ID        string    `gorm:"primaryKey;type:varchar(36)"`
	AuthorID  string    `gorm:"type:varchar(36);index:idx_post_author_created"`
	Payload   string    `gorm:"type:text"`
	Tags      string    `gorm:"type:text"` // 空格分隔的 hashtag，发布时抽取
	LikeCount int64     `gorm:"not null;default:0"`
	ViewCount int64     `gorm:"not null;default:0"`
	CreatedAt time.Time `gorm:"index:idx_post_author_created"`
	UpdatedAt time.Time
}

func (Post) TableName() string { return "posts" }

// TagList 返回解析后的标签切片
func (p *Post) TagList() []string {
	if p.Tags == "" {
		return nil
	}
	return strings.Fields(p.Tags)
}

// Engagement 排序用的 engagement 快照
func (p *Post) Engagement() int64 { return p.LikeCount + p.ViewCount }
