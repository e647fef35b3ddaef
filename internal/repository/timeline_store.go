package repository

import (
	"context"
	"encoding/json"
	"fmt"
	"strconv"
	"time"

	"github.com/redis/go-redis/v9"

	"github.com/d60-Lab/feedcore/internal/model"
)

// TimelineStore 每用户一条有序集合。Append 对 (owner, post_id) 幂等，
// Read 按帖子创建时间降序、游标分页，Trim 维持保留上限。
type TimelineStore interface {
	// Append 返回 false 表示该 (owner, post_id) 已存在
	Append(ctx context.Context, entry model.TimelineEntry) (bool, error)
	Read(ctx context.Context, owner string, limit int, cursor string) ([]model.TimelineEntry, string, error)
	Trim(ctx context.Context, owner string) error
}

const (
	timelineKeyFmt = "timeline:%s"
	timelineMetaFmt = "timeline:meta:%s"
)

// RedisTimelineStore zset member = post_id, score = 帖子创建时间;
// 条目元数据放旁路 hash。成员唯一性即幂等键。
type RedisTimelineStore struct {
	rdb       *redis.Client
	retention int
}

func NewRedisTimelineStore(rdb *redis.Client, retention int) *RedisTimelineStore {
	if retention <= 0 {
		retention = 800
	}
	return &RedisTimelineStore{rdb: rdb, retention: retention}
}

func timelineKey(owner string) string { return fmt.Sprintf(timelineKeyFmt, owner) }
func metaKey(owner string) string     { return fmt.Sprintf(timelineMetaFmt, owner) }

func (s *RedisTimelineStore) Append(ctx context.Context, entry model.TimelineEntry) (bool, error) {
	key := timelineKey(entry.OwnerID)
	// NX：重复投递不改分值，排序不受重放影响
	added, err := s.rdb.ZAddNX(ctx, key, redis.Z{
		Score:  float64(entry.CreatedAt.UnixNano()),
		Member: entry.PostID,
	}).Result()
	if err != nil {
		return false, err
	}
	if added == 0 {
		return false, nil
	}
	if b, err := json.Marshal(entry); err == nil {
		_ = s.rdb.HSet(ctx, metaKey(entry.OwnerID), entry.PostID, b).Err()
	}
	return true, nil
}

func (s *RedisTimelineStore) Read(ctx context.Context, owner string, limit int, cursor string) ([]model.TimelineEntry, string, error) {
	if limit <= 0 {
		limit = 20
	}
	offset := 0
	if cursor != "" {
		v, err := strconv.Atoi(cursor)
		if err != nil {
			return nil, "", fmt.Errorf("bad cursor %q: %w", cursor, err)
		}
		offset = v
	}

	key := timelineKey(owner)
	zs, err := s.rdb.ZRevRangeWithScores(ctx, key, int64(offset), int64(offset+limit-1)).Result()
	if err != nil && err != redis.Nil {
		return nil, "", err
	}
	if len(zs) == 0 {
		return nil, "", nil
	}

	members := make([]string, len(zs))
	for i, z := range zs {
		members[i] = z.Member.(string)
	}
	raws, err := s.rdb.HMGet(ctx, metaKey(owner), members...).Result()
	if err != nil && err != redis.Nil {
		return nil, "", err
	}

	out := make([]model.TimelineEntry, 0, len(zs))
	for i, z := range zs {
		var e model.TimelineEntry
		if i < len(raws) && raws[i] != nil {
			if str, ok := raws[i].(string); ok && json.Unmarshal([]byte(str), &e) == nil {
				out = append(out, e)
				continue
			}
		}
		// 元数据缺失时由 zset 本身还原骨架条目
		e = model.TimelineEntry{
			OwnerID:   owner,
			PostID:    members[i],
			Source:    model.SourcePush,
			CreatedAt: time.Unix(0, int64(z.Score)),
		}
		out = append(out, e)
	}

	next := ""
	if len(zs) == limit {
		next = strconv.Itoa(offset + limit)
	}
	return out, next, nil
}

func (s *RedisTimelineStore) Trim(ctx context.Context, owner string) error {
	key := timelineKey(owner)
	n, err := s.rdb.ZCard(ctx, key).Result()
	if err != nil {
		return err
	}
	if n <= int64(s.retention) {
		return nil
	}
	evict := n - int64(s.retention)
	victims, err := s.rdb.ZRange(ctx, key, 0, evict-1).Result()
	if err != nil {
		return err
	}
	pipe := s.rdb.TxPipeline()
	pipe.ZRemRangeByRank(ctx, key, 0, evict-1)
	if len(victims) > 0 {
		pipe.HDel(ctx, metaKey(owner), victims...)
	}
	_, err = pipe.Exec(ctx)
	return err
}
