package main

import (
	"context"
	"net/http"
	"os/signal"
	"syscall"
	"time"

	"go.uber.org/zap"

	"github.com/d60-Lab/feedcore/config"
	_ "github.com/d60-Lab/feedcore/docs"
	"github.com/d60-Lab/feedcore/internal/api/handler"
	"github.com/d60-Lab/feedcore/internal/api/router"
	"github.com/d60-Lab/feedcore/internal/eventlog"
	"github.com/d60-Lab/feedcore/internal/graph"
	"github.com/d60-Lab/feedcore/internal/repository"
	"github.com/d60-Lab/feedcore/internal/service"
	"github.com/d60-Lab/feedcore/pkg/database"
	"github.com/d60-Lab/feedcore/pkg/logger"
	"github.com/d60-Lab/feedcore/pkg/redisx"
	"github.com/d60-Lab/feedcore/pkg/tracing"
)

func main() {
	cfg, err := config.Load()
	if err != nil {
		panic(err)
	}
	if err := logger.Init(cfg); err != nil {
		panic(err)
	}
	defer logger.Sync()

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	shutdownTracing, err := tracing.Init(ctx, cfg)
	if err != nil {
		logger.Error("tracing init failed", zap.Error(err))
	} else {
		defer func() { _ = shutdownTracing(context.Background()) }()
	}

	db, err := database.InitDB(cfg)
	if err != nil {
		logger.Error("database init failed", zap.Error(err))
		return
	}
	rdb, err := redisx.NewClient(cfg)
	if err != nil {
		logger.Error("redis init failed", zap.Error(err))
		return
	}

	// repositories
	followRepo := repository.NewFollowRepository(db)
	fanRepo := repository.NewFanRepository(db)
	postRepo := repository.NewPostRepository(db)

	// timeline store：配置了分片实例就按 owner 路由
	var store repository.TimelineStore = repository.NewRedisTimelineStore(rdb, cfg.Timeline.RetentionSize)
	if shardClients, err := redisx.NewShardClients(cfg); err != nil {
		logger.Error("timeline shard init failed", zap.Error(err))
		return
	} else if len(shardClients) > 0 {
		shards := make([]repository.TimelineStore, len(shardClients))
		for i, c := range shardClients {
			shards[i] = repository.NewRedisTimelineStore(c, cfg.Timeline.RetentionSize)
		}
		store = repository.NewShardedTimelineStore(shards)
	}

	// event log：有 kafka broker 用 kafka，否则 DB outbox
	var (
		pub eventlog.Publisher
		con eventlog.Consumer
	)
	if len(cfg.Kafka.Brokers) > 0 {
		k := eventlog.NewKafkaLog(cfg.Kafka.Brokers)
		defer k.Close()
		pub, con = k, k
	} else {
		g := eventlog.NewGormLog(db, cfg.Fanout.PollInterval)
		pub, con = g, g
	}

	sg := graph.NewGormGraph(followRepo, fanRepo, rdb, cfg.Classify.ActiveWindow)
	queue := eventlog.NewOutboxJobQueue(db)
	classifier := service.NewClassifier(db, sg, rdb, queue, cfg.Fanout, cfg.Classify.CacheTTL)

	worker := service.NewFanoutWorker(queue, sg, store, cfg.Fanout)
	stopWorkers := worker.Start()
	defer func() { _ = stopWorkers(context.Background()) }()

	trending := service.NewTrendingEngine(rdb, service.NewRedisHLL(rdb), cfg.Trending)

	var affinity service.AffinityProvider
	if cfg.Read.AffinityURL != "" {
		affinity = service.NewHTTPAffinityProvider(cfg.Read.AffinityURL, cfg.Read.AffinityTimeout)
	}
	ranker := service.NewRanker(affinity, cfg.Ranking)
	assembler := service.NewAssembler(store, postRepo, sg, classifier, ranker, cfg.Read)

	publisher := service.NewPublisher(db, pub)
	replicator := service.NewFanReplicator(fanRepo, 100000)
	stopReplicator := replicator.Start(4)
	defer func() { _ = stopReplicator(context.Background()) }()
	relSvc := service.NewRelationshipService(followRepo, fanRepo, replicator)

	// 消费管线：事件日志是唯一的跨组件连接点
	go func() {
		if err := con.Consume(ctx, eventlog.TopicPostCreated, "fanout-decision", classifier.HandlePostEvent); err != nil && ctx.Err() == nil {
			logger.Error("fanout consumer exited", zap.Error(err))
		}
	}()
	go func() {
		if err := con.Consume(ctx, eventlog.TopicPostCreated, "trending", trending.HandlePostEvent); err != nil && ctx.Err() == nil {
			logger.Error("trending consumer exited", zap.Error(err))
		}
	}()
	go trending.Run(ctx)
	go classifier.ReconcileLoop(ctx, time.Minute)

	h := handler.New(relSvc, publisher, postRepo, assembler, trending)
	srv := &http.Server{Addr: cfg.Server.Addr, Handler: router.New(cfg, h)}

	go func() {
		logger.Info("server listening", zap.String("addr", cfg.Server.Addr))
		if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			logger.Error("server failed", zap.Error(err))
			stop()
		}
	}()

	<-ctx.Done()
	shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	_ = srv.Shutdown(shutdownCtx)
	logger.Info("server stopped")
}
