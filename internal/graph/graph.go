package graph

import (
	"context"
)

// Page 一页粉丝 id；NextToken 为空表示读完
type Page struct {
	IDs       []string
	NextToken string
}

// SocialGraph 社交图的窄接口。图数据权威存储在外部，
// 本子系统只读；粉丝集合永远按页访问，不整体物化到内存。
type SocialGraph interface {
	// Followers 游标分页读取 authorID 的粉丝
	Followers(ctx context.Context, authorID, pageToken string, limit int) (Page, error)
	// FollowerShard 读取第 shardIndex 个宽度为 shardSize 的粉丝分片
	FollowerShard(ctx context.Context, authorID string, shardIndex, shardSize int) ([]string, error)
	FollowerCount(ctx context.Context, authorID string) (int64, error)
	// Following 返回 userID 关注的作者（读路径拉取合并用）
	Following(ctx context.Context, userID string, limit int) ([]string, error)
	// IsActive 查询活跃粉丝索引（外部维护，这里只读）
	IsActive(ctx context.Context, userID string) (bool, error)
}
