package eventlog

import (
	"context"
	"fmt"
	"time"

	"github.com/google/uuid"
	"gorm.io/gorm"
	"gorm.io/gorm/clause"

	"github.com/d60-Lab/feedcore/internal/model"
)

// JobQueue 扇出作业队列：至少一次投递，应用侧幂等。
type JobQueue interface {
	Enqueue(ctx context.Context, jobs []*model.FanoutJob) error
	// Claim 认领一批 pending 作业并置为 processing；
	// 同一 partition_key 内按 created_at 顺序认领
	Claim(ctx context.Context, limit int) ([]*model.FanoutJob, error)
	Done(ctx context.Context, jobID string, fanoutCount int64) error
	// Fail 重试预算内回到 pending；超出预算转死信并返回 true
	Fail(ctx context.Context, job *model.FanoutJob, maxAttempts int, reason string) (dead bool, err error)
	PendingCount(ctx context.Context) (int64, error)
}

// OutboxJobQueue gorm 实现；claim 用 SELECT ... FOR UPDATE SKIP LOCKED，
// 多 worker 互不阻塞。
type OutboxJobQueue struct {
	db *gorm.DB
}

func NewOutboxJobQueue(db *gorm.DB) *OutboxJobQueue { return &OutboxJobQueue{db: db} }

func (q *OutboxJobQueue) Enqueue(ctx context.Context, jobs []*model.FanoutJob) error {
	if len(jobs) == 0 {
		return nil
	}
	// 幂等键冲突说明重复入队，忽略
	return q.db.WithContext(ctx).
		Clauses(clause.OnConflict{DoNothing: true}).
		Create(&jobs).Error
}

func (q *OutboxJobQueue) Claim(ctx context.Context, limit int) ([]*model.FanoutJob, error) {
	if limit <= 0 {
		limit = 64
	}
	var batch []*model.FanoutJob
	err := q.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		sql := `
            SELECT * FROM fanout_jobs
            WHERE status = 'pending'
            ORDER BY partition_key, created_at
            LIMIT ?`
		// sqlite（测试）不支持行锁；生产 postgres 走 SKIP LOCKED
		if tx.Dialector.Name() != "sqlite" {
			sql += ` FOR UPDATE SKIP LOCKED`
		}
		if err := tx.Raw(sql, limit).Scan(&batch).Error; err != nil {
			return err
		}
		if len(batch) == 0 {
			return nil
		}
		ids := make([]string, len(batch))
		for i, b := range batch {
			ids[i] = b.ID
		}
		return tx.Model(&model.FanoutJob{}).
			Where("id IN ?", ids).
			Update("status", model.JobStatusProcessing).Error
	})
	return batch, err
}

func (q *OutboxJobQueue) Done(ctx context.Context, jobID string, fanoutCount int64) error {
	now := time.Now()
	return q.db.WithContext(ctx).Model(&model.FanoutJob{}).
		Where("id = ?", jobID).
		Updates(map[string]any{
			"status":       model.JobStatusDone,
			"processed_at": now,
			"fanout_count": fanoutCount,
		}).Error
}

func (q *OutboxJobQueue) Fail(ctx context.Context, job *model.FanoutJob, maxAttempts int, reason string) (bool, error) {
	job.Attempts++
	if job.Attempts < maxAttempts {
		err := q.db.WithContext(ctx).Model(&model.FanoutJob{}).
			Where("id = ?", job.ID).
			Updates(map[string]any{
				"status":   model.JobStatusPending,
				"attempts": job.Attempts,
			}).Error
		return false, err
	}

	// 重试耗尽：转死信，不阻塞同分片其他作业
	err := q.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		if err := tx.Model(&model.FanoutJob{}).
			Where("id = ?", job.ID).
			Updates(map[string]any{
				"status":   model.JobStatusDead,
				"attempts": job.Attempts,
			}).Error; err != nil {
			return err
		}
		return tx.Create(&model.DeadLetter{
			ID:        uuid.New().String(),
			JobID:     job.ID,
			PostID:    job.PostID,
			AuthorID:  job.AuthorID,
			Reason:    reason,
			Attempts:  job.Attempts,
			CreatedAt: time.Now(),
		}).Error
	})
	if err != nil {
		return false, fmt.Errorf("dead-letter job %s: %w", job.ID, err)
	}
	return true, nil
}

func (q *OutboxJobQueue) PendingCount(ctx context.Context) (int64, error) {
	var cnt int64
	err := q.db.WithContext(ctx).Model(&model.FanoutJob{}).
		Where("status = ?", model.JobStatusPending).
		Count(&cnt).Error
	return cnt, err
}
