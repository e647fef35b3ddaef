package service

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/redis/go-redis/v9"
	"go.uber.org/zap"
	"gorm.io/gorm"
	"gorm.io/gorm/clause"

	"github.com/d60-Lab/feedcore/config"
	"github.com/d60-Lab/feedcore/internal/eventlog"
	"github.com/d60-Lab/feedcore/internal/graph"
	"github.com/d60-Lab/feedcore/internal/model"
	"github.com/d60-Lab/feedcore/pkg/logger"
)

const classifyKeyFmt = "classify:%s"

// Classifier 扇出决策引擎：按粉丝基数选择投递策略并生成分片作业。
// 分类结果缓存于 redis，TTL 即允许的陈旧窗口。
type Classifier struct {
	db       *gorm.DB
	graph    graph.SocialGraph
	rdb      *redis.Client
	queue    eventlog.JobQueue
	fanout   config.FanoutConfig
	cacheTTL time.Duration
}

func NewClassifier(db *gorm.DB, g graph.SocialGraph, rdb *redis.Client, queue eventlog.JobQueue, fanout config.FanoutConfig, cacheTTL time.Duration) *Classifier {
	return &Classifier{db: db, graph: g, rdb: rdb, queue: queue, fanout: fanout, cacheTTL: cacheTTL}
}

// Classify 返回作者当前策略，优先读决策缓存
func (c *Classifier) Classify(ctx context.Context, authorID string) (model.Classification, error) {
	key := fmt.Sprintf(classifyKeyFmt, authorID)
	if raw, err := c.rdb.Get(ctx, key).Bytes(); err == nil {
		var cls model.Classification
		if json.Unmarshal(raw, &cls) == nil {
			return cls, nil
		}
	}

	count, err := c.graph.FollowerCount(ctx, authorID)
	if err != nil {
		return model.Classification{}, err
	}
	cls := model.Classification{
		AuthorID:      authorID,
		FollowerCount: count,
		Strategy:      c.decide(count),
		UpdatedAt:     time.Now(),
	}
	if b, err := json.Marshal(cls); err == nil {
		_ = c.rdb.Set(ctx, key, b, c.cacheTTL).Err()
	}
	return cls, nil
}

// decide 边界取含语义：count >= hybrid_threshold 即 hybrid
func (c *Classifier) decide(count int64) model.Strategy {
	if count >= int64(c.fanout.HybridThreshold) {
		return model.StrategyHybrid
	}
	return model.StrategyPush
}

// HandlePostEvent 消费帖子创建事件并入队扇出作业。
// 图存储不可用时对该帖 fail-closed 到 pull：记对账任务，不阻塞发帖。
func (c *Classifier) HandlePostEvent(ctx context.Context, msg eventlog.Message) error {
	ev, err := eventlog.UnmarshalPostEvent(msg.Payload)
	if err != nil {
		logger.Warn("drop malformed post event", zap.Int64("seq", msg.Seq), zap.Error(err))
		return nil
	}
	return c.Dispatch(ctx, ev)
}

// Dispatch 决策一次并生成作业
func (c *Classifier) Dispatch(ctx context.Context, ev eventlog.PostEvent) error {
	cls, err := c.Classify(ctx, ev.AuthorID)
	if err != nil {
		logger.Error("graph unreachable, fail closed to pull",
			zap.String("post", ev.PostID), zap.String("author", ev.AuthorID), zap.Error(err))
		return c.recordReconcile(ctx, ev)
	}

	jobs := c.buildJobs(ev, cls)
	if len(jobs) == 0 {
		return nil
	}
	if err := c.queue.Enqueue(ctx, jobs); err != nil {
		return fmt.Errorf("enqueue fanout jobs for post %s: %w", ev.PostID, err)
	}
	return nil
}

// buildJobs 粉丝集合按 shard_size 切片，每片一个作业；
// hybrid 在分片上带 active-only 标记，其余粉丝读时拉取补齐
func (c *Classifier) buildJobs(ev eventlog.PostEvent, cls model.Classification) []*model.FanoutJob {
	shardSize := c.fanout.ShardSize
	if shardSize <= 0 {
		shardSize = 1000
	}
	// push_threshold 以内的 push 作者走单分片快路径，免去多作业协调
	if cls.Strategy == model.StrategyPush && c.fanout.PushThreshold > 0 &&
		cls.FollowerCount <= int64(c.fanout.PushThreshold) {
		shardSize = c.fanout.PushThreshold
	}
	shards := int((cls.FollowerCount + int64(shardSize) - 1) / int64(shardSize))
	if shards == 0 {
		return nil // 零粉丝作者无需扇出
	}
	activeOnly := cls.Strategy == model.StrategyHybrid

	jobs := make([]*model.FanoutJob, 0, shards)
	now := time.Now()
	for i := 0; i < shards; i++ {
		jobs = append(jobs, &model.FanoutJob{
			ID:             uuid.New().String(),
			PostID:         ev.PostID,
			AuthorID:       ev.AuthorID,
			ShardIndex:     i,
			ShardSize:      shardSize,
			ActiveOnly:     activeOnly,
			PostCreatedAt:  ev.CreatedAt,
			PartitionKey:   fmt.Sprintf("%s:%d", ev.AuthorID, i),
			IdempotencyKey: fmt.Sprintf("%s:%d", ev.PostID, i),
			Status:         model.JobStatusPending,
			CreatedAt:      now,
		})
	}
	return jobs
}

func (c *Classifier) recordReconcile(ctx context.Context, ev eventlog.PostEvent) error {
	task := &model.ReconcileTask{
		ID:        uuid.New().String(),
		PostID:    ev.PostID,
		AuthorID:  ev.AuthorID,
		Status:    "pending",
		CreatedAt: time.Now(),
		UpdatedAt: time.Now(),
	}
	return c.db.WithContext(ctx).Clauses(clause.OnConflict{DoNothing: true}).Create(task).Error
}

// ReconcileLoop 周期性补推 fail-closed 期间漏掉的帖子
func (c *Classifier) ReconcileLoop(ctx context.Context, interval time.Duration) {
	if interval <= 0 {
		interval = time.Minute
	}
	ticker := time.NewTicker(interval)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			if err := c.reconcileOnce(ctx); err != nil {
				logger.Warn("reconcile pass failed", zap.Error(err))
			}
		}
	}
}

func (c *Classifier) reconcileOnce(ctx context.Context) error {
	var tasks []model.ReconcileTask
	if err := c.db.WithContext(ctx).
		Where("status = ?", "pending").
		Order("created_at").
		Limit(100).
		Find(&tasks).Error; err != nil {
		return err
	}
	for _, t := range tasks {
		var post model.Post
		if err := c.db.WithContext(ctx).Where("id = ?", t.PostID).First(&post).Error; err != nil {
			if errors.Is(err, gorm.ErrRecordNotFound) {
				// 帖子已不存在（发布后被删），任务置 failed 以免堵住队首
				if err := c.db.WithContext(ctx).Model(&model.ReconcileTask{}).
					Where("id = ?", t.ID).
					Updates(map[string]any{"status": "failed", "updated_at": time.Now()}).Error; err != nil {
					return err
				}
				logger.Warn("reconcile task dropped, post gone", zap.String("post", t.PostID))
				continue
			}
			return err
		}
		ev := eventlog.PostEvent{
			PostID:    post.ID,
			AuthorID:  post.AuthorID,
			Tags:      post.TagList(),
			CreatedAt: post.CreatedAt,
		}
		cls, err := c.Classify(ctx, t.AuthorID)
		if err != nil {
			// 图还没恢复，下一轮再试
			return err
		}
		if err := c.queue.Enqueue(ctx, c.buildJobs(ev, cls)); err != nil {
			return err
		}
		if err := c.db.WithContext(ctx).Model(&model.ReconcileTask{}).
			Where("id = ?", t.ID).
			Updates(map[string]any{"status": "done", "updated_at": time.Now()}).Error; err != nil {
			return err
		}
		logger.Info("reconciled post after graph outage", zap.String("post", t.PostID))
	}
	return nil
}
