package service

import (
	"context"
	"fmt"
	"math"
	"sort"
	"sync"
	"time"

	"github.com/redis/go-redis/v9"
	"go.uber.org/zap"

	"github.com/d60-Lab/feedcore/config"
	"github.com/d60-Lab/feedcore/internal/eventlog"
	"github.com/d60-Lab/feedcore/internal/model"
	"github.com/d60-Lab/feedcore/pkg/logger"
	"github.com/d60-Lab/feedcore/pkg/metrics"
)

// DistinctCounter 近似去重计数（作者多样性用）。
// 精确计数明确不是要求，实现可用任意概率基数结构。
type DistinctCounter interface {
	Add(ctx context.Context, key, member string, ttl time.Duration) error
	// Count 合并多个 key 后估计基数
	Count(ctx context.Context, keys ...string) (int64, error)
}

// RedisHLL redis HyperLogLog 实现
type RedisHLL struct{ rdb *redis.Client }

func NewRedisHLL(rdb *redis.Client) *RedisHLL { return &RedisHLL{rdb: rdb} }

func (h *RedisHLL) Add(ctx context.Context, key, member string, ttl time.Duration) error {
	pipe := h.rdb.TxPipeline()
	pipe.PFAdd(ctx, key, member)
	if ttl > 0 {
		pipe.Expire(ctx, key, ttl)
	}
	_, err := pipe.Exec(ctx)
	return err
}

func (h *RedisHLL) Count(ctx context.Context, keys ...string) (int64, error) {
	return h.rdb.PFCount(ctx, keys...).Result()
}

// termState rollup 间维护的词条状态
type termState struct {
	state      model.TermState
	score      float64
	lastRaw    int64
	coldRounds int
}

// TrendingEngine 消费帖子事件流，维护按 locale 分区的时间桶计数，
// 周期 rollup 得到衰减分与 top-N。视图为近似最终一致。
type TrendingEngine struct {
	rdb      *redis.Client
	distinct DistinctCounter
	cfg      config.TrendingConfig

	mu     sync.Mutex
	states map[string]map[string]*termState // locale -> term

	now func() time.Time
}

func NewTrendingEngine(rdb *redis.Client, distinct DistinctCounter, cfg config.TrendingConfig) *TrendingEngine {
	if cfg.BucketSize <= 0 {
		cfg.BucketSize = 5 * time.Minute
	}
	if cfg.WindowBuckets <= 0 {
		cfg.WindowBuckets = 12
	}
	if cfg.Decay <= 0 || cfg.Decay >= 1 {
		cfg.Decay = 0.85
	}
	if cfg.TopN <= 0 {
		cfg.TopN = 20
	}
	if cfg.Retention <= 0 {
		cfg.Retention = 24
	}
	if len(cfg.Locales) == 0 {
		cfg.Locales = []string{"global"}
	}
	return &TrendingEngine{
		rdb:      rdb,
		distinct: distinct,
		cfg:      cfg,
		states:   make(map[string]map[string]*termState),
		now:      time.Now,
	}
}

func (e *TrendingEngine) bucket(t time.Time) int64 { return t.Unix() / int64(e.cfg.BucketSize.Seconds()) }

func countKey(locale string, bucket int64) string { return fmt.Sprintf("trend:cnt:%s:%d", locale, bucket) }
func hllKey(locale string, bucket int64, term string) string {
	return fmt.Sprintf("trend:hll:%s:%d:%s", locale, bucket, term)
}
func topKey(locale string) string { return fmt.Sprintf("trend:top:%s", locale) }

// HandlePostEvent 事件流入口：每个标签在当前桶计数 +1，作者进 HLL。
// 计数只增且可交换，多个消费实例可并行累加。
func (e *TrendingEngine) HandlePostEvent(ctx context.Context, msg eventlog.Message) error {
	ev, err := eventlog.UnmarshalPostEvent(msg.Payload)
	if err != nil {
		logger.Warn("drop malformed post event", zap.Int64("seq", msg.Seq), zap.Error(err))
		return nil
	}
	if len(ev.Tags) == 0 {
		return nil
	}
	locale := ev.Locale
	if locale == "" {
		locale = "global"
	}

	b := e.bucket(ev.CreatedAt)
	ttl := time.Duration(e.cfg.Retention) * e.cfg.BucketSize
	pipe := e.rdb.TxPipeline()
	ck := countKey(locale, b)
	for _, tag := range ev.Tags {
		pipe.HIncrBy(ctx, ck, tag, 1)
	}
	pipe.Expire(ctx, ck, ttl)
	if _, err := pipe.Exec(ctx); err != nil {
		return err
	}
	for _, tag := range ev.Tags {
		if err := e.distinct.Add(ctx, hllKey(locale, b, tag), ev.AuthorID, ttl); err != nil {
			return err
		}
	}
	return nil
}

// Run 周期 rollup；阻塞到 ctx 取消
func (e *TrendingEngine) Run(ctx context.Context) {
	interval := e.cfg.RollupInterval
	if interval <= 0 {
		interval = e.cfg.BucketSize
	}
	ticker := time.NewTicker(interval)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			if err := e.Rollup(ctx); err != nil {
				logger.Warn("trending rollup failed", zap.Error(err))
			}
		}
	}
}

// Rollup 滑动窗口聚合：衰减后的量 × (1+环比增速) + 多样性加成
func (e *TrendingEngine) Rollup(ctx context.Context) error {
	start := time.Now()
	defer func() { metrics.TrendingRollupDuration.Observe(time.Since(start).Seconds()) }()

	for _, locale := range e.cfg.Locales {
		if err := e.rollupLocale(ctx, locale); err != nil {
			return err
		}
	}
	return nil
}

func (e *TrendingEngine) rollupLocale(ctx context.Context, locale string) error {
	cur := e.bucket(e.now())

	// 窗口内逐桶取数
	type agg struct {
		raw     int64 // 窗口原始总量
		decayed float64
		curCnt  int64
		prevCnt int64
		buckets []int64 // 该词出现过的桶，PFCount 合并用
	}
	terms := make(map[string]*agg)
	for i := 0; i < e.cfg.WindowBuckets; i++ {
		b := cur - int64(i)
		m, err := e.rdb.HGetAll(ctx, countKey(locale, b)).Result()
		if err != nil && err != redis.Nil {
			return err
		}
		w := math.Pow(e.cfg.Decay, float64(i))
		for term, v := range m {
			var cnt int64
			fmt.Sscan(v, &cnt)
			a := terms[term]
			if a == nil {
				a = &agg{}
				terms[term] = a
			}
			a.raw += cnt
			a.decayed += float64(cnt) * w
			a.buckets = append(a.buckets, b)
			if i == 0 {
				a.curCnt = cnt
			}
			if i == 1 {
				a.prevCnt = cnt
			}
		}
	}

	e.mu.Lock()
	defer e.mu.Unlock()
	states := e.states[locale]
	if states == nil {
		states = make(map[string]*termState)
		e.states[locale] = states
	}

	ranked := make([]model.TrendingTerm, 0, len(terms))
	for term, a := range terms {
		keys := make([]string, len(a.buckets))
		for i, b := range a.buckets {
			keys[i] = hllKey(locale, b, term)
		}
		unique, err := e.distinct.Count(ctx, keys...)
		if err != nil {
			logger.Warn("distinct count failed", zap.String("term", term), zap.Error(err))
		}

		growth := float64(a.curCnt-a.prevCnt) / math.Max(float64(a.prevCnt), 1)
		if growth < -1 {
			growth = -1
		}
		if growth > 3 {
			growth = 3
		}
		score := a.decayed*(1+growth) + e.cfg.DiversityWeight*math.Log1p(float64(unique))

		st := states[term]
		if st == nil {
			st = &termState{state: model.TermCold}
			states[term] = st
		}
		st.coldRounds = 0
		e.transition(st, a.raw, score)
		st.score = score
		st.lastRaw = a.raw

		ranked = append(ranked, model.TrendingTerm{
			Term:          term,
			RawCount:      a.raw,
			UniqueAuthors: unique,
			Score:         score,
			State:         st.state,
			UpdatedAt:     e.now(),
		})
	}

	// 本轮无事件的词冷却；连续 cold 到保留上限即淘汰
	for term, st := range states {
		if _, seen := terms[term]; seen {
			continue
		}
		st.coldRounds++
		st.state = model.TermCold
		st.score = 0
		if st.coldRounds >= e.cfg.Retention {
			delete(states, term)
		}
	}

	sort.Slice(ranked, func(i, j int) bool {
		if ranked[i].Score != ranked[j].Score {
			return ranked[i].Score > ranked[j].Score
		}
		return ranked[i].Term < ranked[j].Term
	})
	if len(ranked) > e.cfg.TopN {
		ranked = ranked[:e.cfg.TopN]
	}
	return e.publishTop(ctx, locale, ranked)
}

// transition 状态机: cold -> warming -> trending -> cooling -> cold
func (e *TrendingEngine) transition(st *termState, raw int64, score float64) {
	switch {
	case score >= e.cfg.TrendThreshold:
		st.state = model.TermTrending
	case st.state == model.TermTrending && score < e.cfg.TrendThreshold:
		st.state = model.TermCooling
	case score > st.score && raw > st.lastRaw:
		st.state = model.TermWarming
	case score < st.score:
		if st.state == model.TermWarming || st.state == model.TermCooling {
			st.state = model.TermCooling
		}
	case raw == 0:
		st.state = model.TermCold
	}
}

func (e *TrendingEngine) publishTop(ctx context.Context, locale string, ranked []model.TrendingTerm) error {
	key := topKey(locale)
	pipe := e.rdb.TxPipeline()
	pipe.Del(ctx, key)
	for _, t := range ranked {
		pipe.ZAdd(ctx, key, redis.Z{Score: t.Score, Member: t.Term})
	}
	pipe.Expire(ctx, key, 2*e.cfg.RollupInterval+e.cfg.BucketSize)
	_, err := pipe.Exec(ctx)
	return err
}

// Top 返回某 locale 的当前 top-N（含状态视图）
func (e *TrendingEngine) Top(ctx context.Context, locale string, n int) ([]model.TrendingTerm, error) {
	if locale == "" {
		locale = "global"
	}
	if n <= 0 || n > e.cfg.TopN {
		n = e.cfg.TopN
	}
	zs, err := e.rdb.ZRevRangeWithScores(ctx, topKey(locale), 0, int64(n-1)).Result()
	if err != nil && err != redis.Nil {
		return nil, err
	}

	e.mu.Lock()
	states := e.states[locale]
	out := make([]model.TrendingTerm, 0, len(zs))
	for _, z := range zs {
		term := z.Member.(string)
		t := model.TrendingTerm{Term: term, Score: z.Score, State: model.TermTrending}
		if st, ok := states[term]; ok {
			t.State = st.state
			t.RawCount = st.lastRaw
		}
		out = append(out, t)
	}
	e.mu.Unlock()
	return out, nil
}
