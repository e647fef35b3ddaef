package graph

import (
	"context"
	"fmt"
	"strconv"
	"time"

	"github.com/redis/go-redis/v9"

	"github.com/d60-Lab/feedcore/internal/repository"
)

const activeSetKeyFmt = "active:%s"

// GormGraph 本地实现：关注/粉丝表 + redis 活跃索引。
// 线上部署可换成图服务客户端，调用方只依赖 SocialGraph。
type GormGraph struct {
	followRepo repository.FollowRepository
	fanRepo    repository.FanRepository
	rdb        *redis.Client
	activeTTL  time.Duration
}

func NewGormGraph(followRepo repository.FollowRepository, fanRepo repository.FanRepository, rdb *redis.Client, activeTTL time.Duration) *GormGraph {
	return &GormGraph{followRepo: followRepo, fanRepo: fanRepo, rdb: rdb, activeTTL: activeTTL}
}

func (g *GormGraph) Followers(ctx context.Context, authorID, pageToken string, limit int) (Page, error) {
	offset := 0
	if pageToken != "" {
		v, err := strconv.Atoi(pageToken)
		if err != nil {
			return Page{}, fmt.Errorf("bad page token %q: %w", pageToken, err)
		}
		offset = v
	}
	if limit <= 0 {
		limit = 1000
	}
	ids, err := g.fanRepo.ListFanIDs(ctx, authorID, offset, limit)
	if err != nil {
		return Page{}, err
	}
	next := ""
	if len(ids) == limit {
		next = strconv.Itoa(offset + limit)
	}
	return Page{IDs: ids, NextToken: next}, nil
}

func (g *GormGraph) FollowerShard(ctx context.Context, authorID string, shardIndex, shardSize int) ([]string, error) {
	if shardSize <= 0 {
		return nil, fmt.Errorf("invalid shard size %d", shardSize)
	}
	return g.fanRepo.ListFanIDs(ctx, authorID, shardIndex*shardSize, shardSize)
}

func (g *GormGraph) FollowerCount(ctx context.Context, authorID string) (int64, error) {
	return g.fanRepo.CountFans(ctx, authorID)
}

func (g *GormGraph) Following(ctx context.Context, userID string, limit int) ([]string, error) {
	items, err := g.followRepo.ListFollowings(ctx, userID, 0, limit)
	if err != nil {
		return nil, err
	}
	out := make([]string, len(items))
	for i, it := range items {
		out[i] = it.FolloweeID
	}
	return out, nil
}

func (g *GormGraph) IsActive(ctx context.Context, userID string) (bool, error) {
	n, err := g.rdb.Exists(ctx, fmt.Sprintf(activeSetKeyFmt, userID)).Result()
	if err != nil {
		return false, err
	}
	return n > 0, nil
}

// MarkActive 写入活跃标记。线上由 presence 系统维护；
// 本地联调与基准用它造数据。
func (g *GormGraph) MarkActive(ctx context.Context, userID string) error {
	return g.rdb.Set(ctx, fmt.Sprintf(activeSetKeyFmt, userID), 1, g.activeTTL).Err()
}
