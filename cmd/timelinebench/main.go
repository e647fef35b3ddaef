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

// 读路径压测：纯 push 页 vs push+pull 合并排序页。
func main() {
	cfg := must(config.Load())
	if err := logger.Init(cfg); err != nil { panic(err) }
	db := must(database.InitDB(cfg))
	rdb := must(redisx.NewClient(cfg))

	// params
	PUSHED := 500  // pushed entries in the reader's timeline
	AUTHORS := 20  // pull-side authors the reader follows
	PERAUTHOR := 30
	REPEAT := 200
	if s := os.Getenv("PUSHED"); s != "" { if v, e := strconv.Atoi(s); e == nil && v > 0 { PUSHED = v } }
	if s := os.Getenv("AUTHORS"); s != "" { if v, e := strconv.Atoi(s); e == nil && v > 0 { AUTHORS = v } }
	if s := os.Getenv("PERAUTHOR"); s != "" { if v, e := strconv.Atoi(s); e == nil && v > 0 { PERAUTHOR = v } }
	if s := os.Getenv("REPEAT"); s != "" { if v, e := strconv.Atoi(s); e == nil && v > 0 { REPEAT = v } }

	_ = db.Exec("TRUNCATE TABLE posts, fans, follows, users RESTART IDENTITY CASCADE").Error
	_ = rdb.FlushAll(context.Background()).Err()

	followRepo := repository.NewFollowRepository(db)
	fanRepo := repository.NewFanRepository(db)
	postRepo := repository.NewPostRepository(db)
	store := repository.NewRedisTimelineStore(rdb, cfg.Timeline.RetentionSize)
	sg := graph.NewGormGraph(followRepo, fanRepo, rdb, cfg.Classify.ActiveWindow)

	reader := model.User{ID: "reader0", Username: "reader0", Email: "reader0@example.com"}
	_ = db.Where("id = ?", reader.ID).FirstOrCreate(&reader).Error

	// seed pushed entries and their posts
	base := time.Now().Add(-24 * time.Hour)
	pushed := make([]model.Post, PUSHED)
	for i := 0; i < PUSHED; i++ {
		pushed[i] = model.Post{ID: uuid.New().String(), AuthorID: "pushauthor", Payload: fmt.Sprintf("push %d", i), CreatedAt: base.Add(time.Duration(i) * time.Second)}
	}
	_ = db.CreateInBatches(&pushed, 1000).Error
	for i := range pushed {
		_, _ = store.Append(context.Background(), model.TimelineEntry{OwnerID: reader.ID, PostID: pushed[i].ID, AuthorID: pushed[i].AuthorID, CreatedAt: pushed[i].CreatedAt, Source: model.SourcePush})
	}

	// seed pull-side authors with recent posts; reader follows each
	for i := 0; i < AUTHORS; i++ {
		aid := fmt.Sprintf("pullauthor%03d", i)
		_ = db.Where("id = ?", aid).FirstOrCreate(&model.User{ID: aid, Username: aid, Email: aid + "@example.com"}).Error
		_ = followRepo.Create(context.Background(), reader.ID, aid)
		posts := make([]model.Post, PERAUTHOR)
		for j := 0; j < PERAUTHOR; j++ {
			posts[j] = model.Post{ID: uuid.New().String(), AuthorID: aid, Payload: fmt.Sprintf("pull %d/%d", i, j), CreatedAt: base.Add(time.Duration(j) * time.Minute)}
		}
		_ = db.CreateInBatches(&posts, 1000).Error
	}

	classifier := service.NewClassifier(db, sg, rdb, eventlog.NewOutboxJobQueue(db), cfg.Fanout, cfg.Classify.CacheTTL)
	ranker := service.NewRanker(nil, cfg.Ranking)
	assembler := service.NewAssembler(store, postRepo, sg, classifier, ranker, cfg.Read)

	// push-only page straight from the store
	storeReads := make([]time.Duration, 0, REPEAT)
	for i := 0; i < REPEAT; i++ {
		st := time.Now()
		_, _, _ = store.Read(context.Background(), reader.ID, 50, "")
		storeReads = append(storeReads, time.Since(st))
	}

	// full merge + rank page through the assembler
	merged := make([]time.Duration, 0, REPEAT)
	partials := 0
	for i := 0; i < REPEAT; i++ {
		st := time.Now()
		res := must(assembler.GetTimeline(context.Background(), reader.ID, "", 50))
		merged = append(merged, time.Since(st))
		if res.Partial { partials++ }
	}

	var s1, s2 time.Duration
	for _, d := range storeReads { s1 += d }
	for _, d := range merged { s2 += d }
	fmt.Printf("PUSHED=%d AUTHORS=%d PERAUTHOR=%d REPEAT=%d\n", PUSHED, AUTHORS, PERAUTHOR, REPEAT)
	fmt.Printf("Store read (push page, limit=50): avg=%v p95=%v p99=%v\n", s1/time.Duration(len(storeReads)), pct(storeReads, 0.95), pct(storeReads, 0.99))
	fmt.Printf("Assembled read (merge+rank, limit=50): avg=%v p95=%v p99=%v partial=%d/%d\n", s2/time.Duration(len(merged)), pct(merged, 0.95), pct(merged, 0.99), partials, REPEAT)
}
