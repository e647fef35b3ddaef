package service

import (
	"context"
	"time"

	"go.uber.org/zap"

	"github.com/d60-Lab/feedcore/config"
	"github.com/d60-Lab/feedcore/internal/eventlog"
	"github.com/d60-Lab/feedcore/internal/graph"
	"github.com/d60-Lab/feedcore/internal/model"
	"github.com/d60-Lab/feedcore/pkg/logger"
	"github.com/d60-Lab/feedcore/pkg/metrics"
)

// FanoutWorker 消费扇出作业，把时间线指针写进每个粉丝的 timeline。
// 投递至少一次，写入按 (owner, post_id) 幂等，重放不产生重复条目。
type FanoutWorker struct {
	queue     eventlog.JobQueue
	graph     graph.SocialGraph
	store     repositoryTimeline
	cfg       config.FanoutConfig
	metricsCh chan time.Duration // job created -> applied
}

// repositoryTimeline 避免 service 直接依赖具体存储实现
type repositoryTimeline interface {
	Append(ctx context.Context, entry model.TimelineEntry) (bool, error)
	Trim(ctx context.Context, owner string) error
}

func NewFanoutWorker(queue eventlog.JobQueue, g graph.SocialGraph, store repositoryTimeline, cfg config.FanoutConfig) *FanoutWorker {
	if cfg.Workers <= 0 {
		cfg.Workers = 4
	}
	if cfg.ClaimLimit <= 0 {
		cfg.ClaimLimit = 64
	}
	if cfg.PollInterval <= 0 {
		cfg.PollInterval = 50 * time.Millisecond
	}
	if cfg.MaxAttempts <= 0 {
		cfg.MaxAttempts = 5
	}
	return &FanoutWorker{
		queue:     queue,
		graph:     g,
		store:     store,
		cfg:       cfg,
		metricsCh: make(chan time.Duration, 65536),
	}
}

func (w *FanoutWorker) Metrics() <-chan time.Duration { return w.metricsCh }

// Start 启动若干 worker 轮询认领作业；返回停止函数。
func (w *FanoutWorker) Start() func(context.Context) error {
	stop := make(chan struct{})
	for i := 0; i < w.cfg.Workers; i++ {
		go w.loop(stop)
	}
	return func(ctx context.Context) error { close(stop); return nil }
}

func (w *FanoutWorker) loop(stop <-chan struct{}) {
	ticker := time.NewTicker(w.cfg.PollInterval)
	defer ticker.Stop()
	for {
		select {
		case <-stop:
			return
		case <-ticker.C:
			_ = w.ProcessOnce(context.Background())
		}
	}
}

// ProcessOnce 认领一批作业并逐个执行
func (w *FanoutWorker) ProcessOnce(ctx context.Context) error {
	batch, err := w.queue.Claim(ctx, w.cfg.ClaimLimit)
	if err != nil {
		return err
	}
	for _, job := range batch {
		w.apply(ctx, job)
	}
	return nil
}

func (w *FanoutWorker) apply(ctx context.Context, job *model.FanoutJob) {
	written, err := w.applyShard(ctx, job)
	if err != nil {
		metrics.FanoutJobsTotal.WithLabelValues("retried").Inc()
		dead, ferr := w.queue.Fail(ctx, job, w.cfg.MaxAttempts, err.Error())
		if ferr != nil {
			logger.Error("job bookkeeping failed", zap.String("job", job.ID), zap.Error(ferr))
			return
		}
		if dead {
			// 死信升级为运维告警，不再阻塞同分片后续作业
			metrics.FanoutJobsTotal.WithLabelValues("dead_letter").Inc()
			logger.Error("fanout job dead-lettered",
				zap.String("job", job.ID), zap.String("post", job.PostID),
				zap.Int("attempts", job.Attempts), zap.Error(err))
		} else {
			logger.Warn("fanout job requeued",
				zap.String("job", job.ID), zap.Int("attempts", job.Attempts), zap.Error(err))
		}
		return
	}

	if err := w.queue.Done(ctx, job.ID, written); err != nil {
		logger.Error("mark job done failed", zap.String("job", job.ID), zap.Error(err))
		return
	}
	metrics.FanoutJobsTotal.WithLabelValues("applied").Inc()
	metrics.FanoutEntriesWritten.Add(float64(written))
	if !job.CreatedAt.IsZero() {
		d := time.Since(job.CreatedAt)
		metrics.FanoutLanding.Observe(d.Seconds())
		select {
		case w.metricsCh <- d:
		default:
		}
	}
}

// applyShard 解析该作业对应的粉丝分片并逐个幂等写入
func (w *FanoutWorker) applyShard(ctx context.Context, job *model.FanoutJob) (int64, error) {
	fans, err := w.graph.FollowerShard(ctx, job.AuthorID, job.ShardIndex, job.ShardSize)
	if err != nil {
		return 0, err
	}

	var written int64
	now := time.Now()
	for _, fan := range fans {
		if job.ActiveOnly {
			active, err := w.graph.IsActive(ctx, fan)
			if err != nil {
				return written, err
			}
			if !active {
				continue // hybrid 余量走读时拉取
			}
		}
		added, err := w.store.Append(ctx, model.TimelineEntry{
			OwnerID:    fan,
			PostID:     job.PostID,
			AuthorID:   job.AuthorID,
			Source:     model.SourcePush,
			CreatedAt:  job.PostCreatedAt,
			InsertedAt: now,
		})
		if err != nil {
			return written, err
		}
		if added {
			written++
			if err := w.store.Trim(ctx, fan); err != nil {
				logger.Warn("timeline trim failed", zap.String("owner", fan), zap.Error(err))
			}
		}
	}
	return written, nil
}
