package eventlog

import (
	"context"
	"fmt"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"gorm.io/driver/sqlite"
	"gorm.io/gorm"

	"github.com/d60-Lab/feedcore/internal/model"
)

func setupQueueDB(t *testing.T) *gorm.DB {
	t.Helper()
	db, err := gorm.Open(sqlite.Open(":memory:"), &gorm.Config{})
	require.NoError(t, err)
	require.NoError(t, db.AutoMigrate(&model.FanoutJob{}, &model.DeadLetter{}))
	return db
}

func newJob(postID, authorID string, shard int, createdAt time.Time) *model.FanoutJob {
	return &model.FanoutJob{
		ID:             uuid.New().String(),
		PostID:         postID,
		AuthorID:       authorID,
		ShardIndex:     shard,
		ShardSize:      1000,
		PostCreatedAt:  createdAt,
		PartitionKey:   fmt.Sprintf("%s:%d", authorID, shard),
		IdempotencyKey: fmt.Sprintf("%s:%d", postID, shard),
		Status:         model.JobStatusPending,
		CreatedAt:      createdAt,
	}
}

func TestJobQueueEnqueueIdempotent(t *testing.T) {
	db := setupQueueDB(t)
	q := NewOutboxJobQueue(db)
	ctx := context.Background()

	now := time.Now()
	require.NoError(t, q.Enqueue(ctx, []*model.FanoutJob{newJob("p1", "a1", 0, now)}))
	// 同 idempotency key 的重复入队被吞掉
	require.NoError(t, q.Enqueue(ctx, []*model.FanoutJob{newJob("p1", "a1", 0, now)}))

	cnt, err := q.PendingCount(ctx)
	require.NoError(t, err)
	assert.Equal(t, int64(1), cnt)
}

func TestJobQueueClaimOrder(t *testing.T) {
	db := setupQueueDB(t)
	q := NewOutboxJobQueue(db)
	ctx := context.Background()

	base := time.Now().Truncate(time.Second)
	// 同一分区内按 created_at 先后
	require.NoError(t, q.Enqueue(ctx, []*model.FanoutJob{
		newJob("p2", "a1", 0, base.Add(time.Second)),
		newJob("p1", "a1", 0, base),
	}))

	batch, err := q.Claim(ctx, 10)
	require.NoError(t, err)
	require.Len(t, batch, 2)
	assert.Equal(t, "p1", batch[0].PostID)
	assert.Equal(t, "p2", batch[1].PostID)

	// 认领后不再 pending
	cnt, err := q.PendingCount(ctx)
	require.NoError(t, err)
	assert.Zero(t, cnt)

	// 再次 claim 拿不到
	batch, err = q.Claim(ctx, 10)
	require.NoError(t, err)
	assert.Empty(t, batch)
}

func TestJobQueueDone(t *testing.T) {
	db := setupQueueDB(t)
	q := NewOutboxJobQueue(db)
	ctx := context.Background()

	require.NoError(t, q.Enqueue(ctx, []*model.FanoutJob{newJob("p1", "a1", 0, time.Now())}))
	batch, err := q.Claim(ctx, 1)
	require.NoError(t, err)
	require.Len(t, batch, 1)

	require.NoError(t, q.Done(ctx, batch[0].ID, 42))

	var row model.FanoutJob
	require.NoError(t, db.Where("id = ?", batch[0].ID).First(&row).Error)
	assert.Equal(t, model.JobStatusDone, row.Status)
	assert.Equal(t, int64(42), row.FanoutCount)
	require.NotNil(t, row.ProcessedAt)
}

func TestJobQueueFailRequeuesThenDeadLetters(t *testing.T) {
	db := setupQueueDB(t)
	q := NewOutboxJobQueue(db)
	ctx := context.Background()

	require.NoError(t, q.Enqueue(ctx, []*model.FanoutJob{newJob("p1", "a1", 0, time.Now())}))

	const maxAttempts = 3
	for attempt := 1; attempt < maxAttempts; attempt++ {
		batch, err := q.Claim(ctx, 1)
		require.NoError(t, err)
		require.Len(t, batch, 1)

		dead, err := q.Fail(ctx, batch[0], maxAttempts, "shard resolve failed")
		require.NoError(t, err)
		assert.False(t, dead)

		var row model.FanoutJob
		require.NoError(t, db.Where("id = ?", batch[0].ID).First(&row).Error)
		assert.Equal(t, model.JobStatusPending, row.Status)
		assert.Equal(t, attempt, row.Attempts)
	}

	// 第 maxAttempts 次失败转死信
	batch, err := q.Claim(ctx, 1)
	require.NoError(t, err)
	require.Len(t, batch, 1)
	dead, err := q.Fail(ctx, batch[0], maxAttempts, "shard resolve failed")
	require.NoError(t, err)
	assert.True(t, dead)

	var row model.FanoutJob
	require.NoError(t, db.Where("id = ?", batch[0].ID).First(&row).Error)
	assert.Equal(t, model.JobStatusDead, row.Status)

	var letters []model.DeadLetter
	require.NoError(t, db.Find(&letters).Error)
	require.Len(t, letters, 1)
	assert.Equal(t, batch[0].ID, letters[0].JobID)
	assert.Equal(t, "p1", letters[0].PostID)
	assert.Equal(t, "shard resolve failed", letters[0].Reason)
}
