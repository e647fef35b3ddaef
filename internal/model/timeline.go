package model

import "time"

// 时间线条目来源
const (
	SourcePush = "push"
	SourcePull = "pull"
)

// TimelineEntry 指针而非完整内容；按 (owner, post_id) 幂等
type TimelineEntry struct {
	OwnerID    string    `json:"owner_id"`
	PostID     string    `json:"post_id"`
	AuthorID   string    `json:"author_id"`
	Source     string    `json:"source"`
	CreatedAt  time.Time `json:"created_at"`  // 帖子创建时间，决定排序基准
	InsertedAt time.Time `json:"inserted_at"` // 写入时间线的时间
}
