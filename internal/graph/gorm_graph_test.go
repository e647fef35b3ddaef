package graph

import (
	"context"
	"fmt"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	"github.com/redis/go-redis/v9"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"gorm.io/driver/sqlite"
	"gorm.io/gorm"

	"github.com/d60-Lab/feedcore/internal/model"
	"github.com/d60-Lab/feedcore/internal/repository"
)

func setupGraph(t *testing.T) (*GormGraph, *gorm.DB, *miniredis.Miniredis) {
	t.Helper()
	db, err := gorm.Open(sqlite.Open(":memory:"), &gorm.Config{})
	require.NoError(t, err)
	require.NoError(t, db.AutoMigrate(&model.Follow{}, &model.Fan{}))
	mr := miniredis.RunT(t)
	rdb := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	g := NewGormGraph(repository.NewFollowRepository(db), repository.NewFanRepository(db), rdb, time.Hour)
	return g, db, mr
}

func seedFans(t *testing.T, db *gorm.DB, author string, n int) []string {
	t.Helper()
	ids := make([]string, n)
	base := time.Now().Add(-time.Hour)
	for i := 0; i < n; i++ {
		ids[i] = fmt.Sprintf("fan%04d", i)
		f := &model.Fan{ID: fmt.Sprintf("rel%04d", i), UserID: author, FanID: ids[i], CreatedAt: base.Add(time.Duration(i) * time.Second)}
		require.NoError(t, db.Create(f).Error)
	}
	return ids
}

func TestFollowerShardStable(t *testing.T) {
	g, db, _ := setupGraph(t)
	fans := seedFans(t, db, "a1", 25)
	ctx := context.Background()

	// 分片拼起来覆盖全量且不重叠
	var got []string
	for i := 0; i < 3; i++ {
		shard, err := g.FollowerShard(ctx, "a1", i, 10)
		require.NoError(t, err)
		got = append(got, shard...)
	}
	assert.Equal(t, fans, got)

	// 越界分片为空
	shard, err := g.FollowerShard(ctx, "a1", 5, 10)
	require.NoError(t, err)
	assert.Empty(t, shard)

	_, err = g.FollowerShard(ctx, "a1", 0, 0)
	assert.Error(t, err)
}

func TestFollowersPagination(t *testing.T) {
	g, db, _ := setupGraph(t)
	seedFans(t, db, "a1", 15)
	ctx := context.Background()

	page1, err := g.Followers(ctx, "a1", "", 10)
	require.NoError(t, err)
	assert.Len(t, page1.IDs, 10)
	require.NotEmpty(t, page1.NextToken)

	page2, err := g.Followers(ctx, "a1", page1.NextToken, 10)
	require.NoError(t, err)
	assert.Len(t, page2.IDs, 5)
	assert.Empty(t, page2.NextToken)

	_, err = g.Followers(ctx, "a1", "garbage", 10)
	assert.Error(t, err)
}

func TestFollowerCount(t *testing.T) {
	g, db, _ := setupGraph(t)
	seedFans(t, db, "a1", 7)

	n, err := g.FollowerCount(context.Background(), "a1")
	require.NoError(t, err)
	assert.Equal(t, int64(7), n)
}

func TestIsActiveWindow(t *testing.T) {
	g, _, mr := setupGraph(t)
	ctx := context.Background()

	active, err := g.IsActive(ctx, "u1")
	require.NoError(t, err)
	assert.False(t, active)

	require.NoError(t, g.MarkActive(ctx, "u1"))
	active, err = g.IsActive(ctx, "u1")
	require.NoError(t, err)
	assert.True(t, active)

	// 窗口过期后视为不活跃
	mr.FastForward(2 * time.Hour)
	active, err = g.IsActive(ctx, "u1")
	require.NoError(t, err)
	assert.False(t, active)
}
