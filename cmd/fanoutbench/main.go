package main

import (
	"context"
	"fmt"
	"math"
	"os"
	"sort"
	"strconv"
	"time"

	"github.com/google/uuid"

	"github.com/d60-Lab/feedcore/config"
	"github.com/d60-Lab/feedcore/internal/eventlog"
	"github.com/d60-Lab/feedcore/internal/graph"
	"github.com/d60-Lab/feedcore/internal/model"
	"github.com/d60-Lab/feedcore/internal/repository"
	"github.com/d60-Lab/feedcore/internal/service"
	"github.com/d60-Lab/feedcore/pkg/database"
	"github.com/d60-Lab/feedcore/pkg/logger"
	"github.com/d60-Lab/feedcore/pkg/redisx"
)

func must[T any](v T, err error) T { if err != nil { panic(err) }; return v }

func pct(vs []time.Duration, p float64) time.Duration {
	if len(vs) == 0 { return 0 }
	xs := append([]time.Duration(nil), vs...)
	sort.Slice(xs, func(i, j int) bool { return xs[i] < xs[j] })
	k := int(math.Ceil(p*float64(len(xs)))) - 1
	if k < 0 { k = 0 }
	if k >= len(xs) { k = len(xs)-1 }
	return xs[k]
}

func main() {
	cfg := must(config.Load())
	if err := logger.Init(cfg); err != nil { panic(err) }
	db := must(database.InitDB(cfg))
	rdb := must(redisx.NewClient(cfg))

	// params
	N := 20000 // fans of the author
	POSTS := 100
	if s := os.Getenv("N"); s != "" { if v, e := strconv.Atoi(s); e == nil && v > 0 { N = v } }
	if s := os.Getenv("POSTS"); s != "" { if v, e := strconv.Atoi(s); e == nil && v > 0 { POSTS = v } }
	if s := os.Getenv("WORKERS"); s != "" { if v, e := strconv.Atoi(s); e == nil && v > 0 { cfg.Fanout.Workers = v } }
	if s := os.Getenv("SHARD"); s != "" { if v, e := strconv.Atoi(s); e == nil && v > 0 { cfg.Fanout.ShardSize = v } }
	if s := os.Getenv("CLAIM"); s != "" { if v, e := strconv.Atoi(s); e == nil && v > 0 { cfg.Fanout.ClaimLimit = v } }

	// clean state for a reproducible run (ok for local bench)
	_ = db.Exec("TRUNCATE TABLE fanout_jobs, dead_letters, reconcile_tasks, events, consumer_offsets, posts, fans, follows, users RESTART IDENTITY CASCADE").Error
	_ = rdb.FlushAll(context.Background()).Err()

	// seed one author and N fans
	author := model.User{ID: "author0", Username: "author0", Email: "author0@example.com"}
	_ = db.Where("id = ?", author.ID).FirstOrCreate(&author).Error
	users := make([]model.User, N)
	for i := 0; i < N; i++ {
		id := uuid.New().String()
		users[i] = model.User{ID: id, Username: "u" + id[:8], Email: id[:8] + "@example.com"}
	}
	_ = db.CreateInBatches(&users, 1000).Error
	followRepo := repository.NewFollowRepository(db)
	fanRepo := repository.NewFanRepository(db)
	for i := 0; i < N; i++ { _ = followRepo.Create(context.Background(), users[i].ID, author.ID) }
	for i := 0; i < N; i++ { _ = fanRepo.Create(context.Background(), author.ID, users[i].ID) }

	// wire the pipeline: event log -> classifier -> job queue -> workers -> timeline
	elog := eventlog.NewGormLog(db, 20*time.Millisecond)
	queue := eventlog.NewOutboxJobQueue(db)
	sg := graph.NewGormGraph(followRepo, fanRepo, rdb, cfg.Classify.ActiveWindow)
	classifier := service.NewClassifier(db, sg, rdb, queue, cfg.Fanout, cfg.Classify.CacheTTL)
	store := repository.NewRedisTimelineStore(rdb, cfg.Timeline.RetentionSize)
	worker := service.NewFanoutWorker(queue, sg, store, cfg.Fanout)
	stop := worker.Start()
	defer stop(context.Background())

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	go func() {
		_ = elog.Consume(ctx, eventlog.TopicPostCreated, "fanout-decision", classifier.HandlePostEvent)
	}()

	publisher := service.NewPublisher(db, elog)
	pubDurations := make([]time.Duration, 0, POSTS)
	for i := 0; i < POSTS; i++ {
		st := time.Now()
		_ = must(publisher.Publish(context.Background(), author.ID, fmt.Sprintf("hello %d", i), "global"))
		pubDurations = append(pubDurations, time.Since(st))
	}

	// one landing sample per claimed shard job；
	// push_threshold 以内走单分片快路径，分片宽度随之变化
	shardSize := cfg.Fanout.ShardSize
	if cfg.Fanout.PushThreshold > 0 && N <= cfg.Fanout.PushThreshold {
		shardSize = cfg.Fanout.PushThreshold
	}
	wantJobs := POSTS * int(math.Ceil(float64(N)/float64(shardSize)))
	land := make([]time.Duration, 0, wantJobs)
	timeout := time.After(2 * time.Minute)
	for len(land) < wantJobs {
		select {
		case d := <-worker.Metrics():
			land = append(land, d)
		case <-timeout:
			fmt.Printf("timeout while waiting for fanout metrics: got=%d want=%d\n", len(land), wantJobs)
			goto PRINT
		}
	}

PRINT:
	var pubSum time.Duration
	for _, d := range pubDurations { pubSum += d }
	fmt.Printf("N=%d POSTS=%d WORKERS=%d SHARD=%d CLAIM=%d\n", N, POSTS, cfg.Fanout.Workers, cfg.Fanout.ShardSize, cfg.Fanout.ClaimLimit)
	fmt.Printf("Publish tx latency: avg=%v p95=%v p99=%v\n", pubSum/time.Duration(len(pubDurations)), pct(pubDurations, 0.95), pct(pubDurations, 0.99))
	var landSum time.Duration
	for _, d := range land { landSum += d }
	if len(land) > 0 {
		fmt.Printf("Fanout landing (event->timeline): samples=%d avg=%v p95=%v p99=%v\n", len(land), landSum/time.Duration(len(land)), pct(land, 0.95), pct(land, 0.99))
	}

	// spot-check one fan's timeline
	if len(users) > 0 {
		st := time.Now()
		entries, _, _ := store.Read(context.Background(), users[0].ID, 50, "")
		fmt.Printf("Timeline read (fan0, limit=50): %v, entries=%d\n", time.Since(st), len(entries))
	}
}
