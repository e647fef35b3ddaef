package service

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/d60-Lab/feedcore/config"
	"github.com/d60-Lab/feedcore/internal/eventlog"
	"github.com/d60-Lab/feedcore/internal/model"
)

func testFanoutCfg() config.FanoutConfig {
	return config.FanoutConfig{
		PushThreshold:   100,
		HybridThreshold: 1000,
		ShardSize:       100,
		MaxAttempts:     3,
	}
}

func newTestClassifier(t *testing.T, g *fakeGraph) (*Classifier, *eventlog.OutboxJobQueue) {
	t.Helper()
	db := setupDB(t)
	rdb, _ := setupRedis(t)
	q := eventlog.NewOutboxJobQueue(db)
	return NewClassifier(db, g, rdb, q, testFanoutCfg(), 5*time.Minute), q
}

func TestClassifyThresholdBoundary(t *testing.T) {
	g := newFakeGraph()
	seedFollowers(g, "small", 999)
	seedFollowers(g, "big", 1000)
	c, _ := newTestClassifier(t, g)
	ctx := context.Background()

	cls, err := c.Classify(ctx, "small")
	require.NoError(t, err)
	assert.Equal(t, model.StrategyPush, cls.Strategy)

	// 阈值取含语义：恰好等于 hybrid_threshold 即 hybrid
	cls, err = c.Classify(ctx, "big")
	require.NoError(t, err)
	assert.Equal(t, model.StrategyHybrid, cls.Strategy)
	assert.Equal(t, int64(1000), cls.FollowerCount)
}

func TestClassifyZeroFollowers(t *testing.T) {
	g := newFakeGraph()
	c, _ := newTestClassifier(t, g)

	cls, err := c.Classify(context.Background(), "nobody")
	require.NoError(t, err)
	assert.Equal(t, model.StrategyPush, cls.Strategy)
	assert.Zero(t, cls.FollowerCount)
}

func TestClassifyUsesCache(t *testing.T) {
	g := newFakeGraph()
	seedFollowers(g, "a1", 10)
	c, _ := newTestClassifier(t, g)
	ctx := context.Background()

	cls, err := c.Classify(ctx, "a1")
	require.NoError(t, err)
	assert.Equal(t, int64(10), cls.FollowerCount)

	// TTL 内图的变化不反映到决策，陈旧是允许的
	seedFollowers(g, "a1", 5000)
	cls, err = c.Classify(ctx, "a1")
	require.NoError(t, err)
	assert.Equal(t, int64(10), cls.FollowerCount)
	assert.Equal(t, model.StrategyPush, cls.Strategy)
}

func TestDispatchBuildsShardedJobs(t *testing.T) {
	g := newFakeGraph()
	seedFollowers(g, "a1", 250) // shard_size=100 -> 3 片
	c, q := newTestClassifier(t, g)
	ctx := context.Background()

	ev := eventlog.PostEvent{PostID: "p1", AuthorID: "a1", CreatedAt: fixedTime()}
	require.NoError(t, c.Dispatch(ctx, ev))

	jobs, err := q.Claim(ctx, 10)
	require.NoError(t, err)
	require.Len(t, jobs, 3)
	for i, job := range jobs {
		assert.Equal(t, "p1", job.PostID)
		assert.Equal(t, i, job.ShardIndex)
		assert.Equal(t, 100, job.ShardSize)
		assert.False(t, job.ActiveOnly)
		assert.Equal(t, fixedTime().Unix(), job.PostCreatedAt.Unix())
	}
}

func TestDispatchSingleShardFastPath(t *testing.T) {
	db := setupDB(t)
	rdb, _ := setupRedis(t)
	q := eventlog.NewOutboxJobQueue(db)
	cfg := config.FanoutConfig{PushThreshold: 250, HybridThreshold: 1000, ShardSize: 100, MaxAttempts: 3}
	g := newFakeGraph()
	seedFollowers(g, "small", 250) // 恰在 push_threshold 上
	c := NewClassifier(db, g, rdb, q, cfg, 5*time.Minute)
	ctx := context.Background()

	require.NoError(t, c.Dispatch(ctx, eventlog.PostEvent{PostID: "p1", AuthorID: "small", CreatedAt: fixedTime()}))

	// 阈值以内单分片直推，分片宽度铺满 push_threshold
	jobs, err := q.Claim(ctx, 10)
	require.NoError(t, err)
	require.Len(t, jobs, 1)
	assert.Zero(t, jobs[0].ShardIndex)
	assert.Equal(t, 250, jobs[0].ShardSize)

	// 超出一个粉丝即回到常规 shard_size 切片
	seedFollowers(g, "bigger", 251)
	require.NoError(t, c.Dispatch(ctx, eventlog.PostEvent{PostID: "p2", AuthorID: "bigger", CreatedAt: fixedTime()}))
	jobs, err = q.Claim(ctx, 10)
	require.NoError(t, err)
	require.Len(t, jobs, 3)
	assert.Equal(t, 100, jobs[0].ShardSize)
}

func TestDispatchHybridMarksActiveOnly(t *testing.T) {
	g := newFakeGraph()
	seedFollowers(g, "celeb", 1200)
	c, q := newTestClassifier(t, g)

	require.NoError(t, c.Dispatch(context.Background(), eventlog.PostEvent{PostID: "p1", AuthorID: "celeb", CreatedAt: fixedTime()}))

	jobs, err := q.Claim(context.Background(), 100)
	require.NoError(t, err)
	require.Len(t, jobs, 12)
	for _, job := range jobs {
		assert.True(t, job.ActiveOnly)
	}
}

func TestDispatchZeroFollowersNoJobs(t *testing.T) {
	g := newFakeGraph()
	c, q := newTestClassifier(t, g)

	require.NoError(t, c.Dispatch(context.Background(), eventlog.PostEvent{PostID: "p1", AuthorID: "nobody", CreatedAt: fixedTime()}))
	cnt, err := q.PendingCount(context.Background())
	require.NoError(t, err)
	assert.Zero(t, cnt)
}

func TestDispatchDuplicateEventIdempotent(t *testing.T) {
	g := newFakeGraph()
	seedFollowers(g, "a1", 50)
	c, q := newTestClassifier(t, g)
	ctx := context.Background()

	ev := eventlog.PostEvent{PostID: "p1", AuthorID: "a1", CreatedAt: fixedTime()}
	require.NoError(t, c.Dispatch(ctx, ev))
	// 至少一次投递下的重放
	require.NoError(t, c.Dispatch(ctx, ev))

	cnt, err := q.PendingCount(ctx)
	require.NoError(t, err)
	assert.Equal(t, int64(1), cnt)
}

func TestDispatchFailClosedRecordsReconcile(t *testing.T) {
	g := newFakeGraph()
	seedFollowers(g, "a1", 50)
	db := setupDB(t)
	rdb, _ := setupRedis(t)
	q := eventlog.NewOutboxJobQueue(db)
	c := NewClassifier(db, g, rdb, q, testFanoutCfg(), 5*time.Minute)
	ctx := context.Background()

	// 帖子已落地，但图在决策时不可用
	post := model.Post{ID: "p1", AuthorID: "a1", Payload: "hi", CreatedAt: fixedTime()}
	require.NoError(t, db.Create(&post).Error)
	g.fail(errors.New("graph timeout"))

	ev := eventlog.PostEvent{PostID: "p1", AuthorID: "a1", CreatedAt: fixedTime()}
	require.NoError(t, c.Dispatch(ctx, ev)) // 不向上抛错，发帖不被阻塞

	var tasks []model.ReconcileTask
	require.NoError(t, db.Find(&tasks).Error)
	require.Len(t, tasks, 1)
	assert.Equal(t, "p1", tasks[0].PostID)
	assert.Equal(t, "pending", tasks[0].Status)

	// 同一帖重复 fail-closed 只记一次
	require.NoError(t, c.Dispatch(ctx, ev))
	require.NoError(t, db.Find(&tasks).Error)
	assert.Len(t, tasks, 1)

	// 图恢复后对账补推
	g.fail(nil)
	require.NoError(t, c.reconcileOnce(ctx))

	cnt, err := q.PendingCount(ctx)
	require.NoError(t, err)
	assert.Equal(t, int64(1), cnt)

	require.NoError(t, db.Find(&tasks).Error)
	assert.Equal(t, "done", tasks[0].Status)
}

func TestReconcileOrphanTaskDoesNotBlockQueue(t *testing.T) {
	g := newFakeGraph()
	seedFollowers(g, "a1", 50)
	db := setupDB(t)
	rdb, _ := setupRedis(t)
	q := eventlog.NewOutboxJobQueue(db)
	c := NewClassifier(db, g, rdb, q, testFanoutCfg(), 5*time.Minute)
	ctx := context.Background()

	// 队首是一条帖子已被删掉的孤儿任务
	require.NoError(t, db.Create(&model.ReconcileTask{
		ID: "t-orphan", PostID: "p-gone", AuthorID: "a1",
		Status: "pending", CreatedAt: fixedTime(), UpdatedAt: fixedTime(),
	}).Error)
	require.NoError(t, db.Create(&model.Post{ID: "p1", AuthorID: "a1", Payload: "hi", CreatedAt: fixedTime()}).Error)
	require.NoError(t, db.Create(&model.ReconcileTask{
		ID: "t-live", PostID: "p1", AuthorID: "a1",
		Status: "pending", CreatedAt: fixedTime().Add(time.Second), UpdatedAt: fixedTime().Add(time.Second),
	}).Error)

	require.NoError(t, c.reconcileOnce(ctx))

	// 孤儿任务出队置 failed，后面的任务照常补推
	var orphan, live model.ReconcileTask
	require.NoError(t, db.First(&orphan, "id = ?", "t-orphan").Error)
	assert.Equal(t, "failed", orphan.Status)
	require.NoError(t, db.First(&live, "id = ?", "t-live").Error)
	assert.Equal(t, "done", live.Status)

	cnt, err := q.PendingCount(ctx)
	require.NoError(t, err)
	assert.Equal(t, int64(1), cnt)
}
