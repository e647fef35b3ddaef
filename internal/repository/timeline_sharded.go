package repository

import (
	"context"
	"hash/fnv"

	"github.com/d60-Lab/feedcore/internal/model"
)

// ShardedTimelineStore 按 owner 哈希路由到多个底层实例。
// 写只落单个 owner 的分片，不需要跨分片锁。
type ShardedTimelineStore struct {
	shards []TimelineStore
}

func NewShardedTimelineStore(shards []TimelineStore) *ShardedTimelineStore {
	return &ShardedTimelineStore{shards: shards}
}

// RouteByOwner 所有 owner 维度的操作共用同一路由规则
func (s *ShardedTimelineStore) RouteByOwner(owner string) int {
	h := fnv.New32a()
	_, _ = h.Write([]byte(owner))
	return int(h.Sum32() % uint32(len(s.shards)))
}

func (s *ShardedTimelineStore) Append(ctx context.Context, entry model.TimelineEntry) (bool, error) {
	return s.shards[s.RouteByOwner(entry.OwnerID)].Append(ctx, entry)
}

func (s *ShardedTimelineStore) Read(ctx context.Context, owner string, limit int, cursor string) ([]model.TimelineEntry, string, error) {
	return s.shards[s.RouteByOwner(owner)].Read(ctx, owner, limit, cursor)
}

func (s *ShardedTimelineStore) Trim(ctx context.Context, owner string) error {
	return s.shards[s.RouteByOwner(owner)].Trim(ctx, owner)
}
