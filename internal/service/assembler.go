package service

import (
	"context"
	"errors"
	"time"

	"go.uber.org/zap"
	"golang.org/x/time/rate"

	"github.com/d60-Lab/feedcore/config"
	"github.com/d60-Lab/feedcore/internal/graph"
	"github.com/d60-Lab/feedcore/internal/model"
	"github.com/d60-Lab/feedcore/internal/repository"
	"github.com/d60-Lab/feedcore/pkg/logger"
	"github.com/d60-Lab/feedcore/pkg/metrics"
)

// TimelineResult 一次时间线读的结果。
// Partial 表示截止时间内未凑齐全部来源（降级而非错误）。
type TimelineResult struct {
	Items      []Scored `json:"items"`
	NextCursor string   `json:"next_cursor,omitempty"`
	Partial    bool     `json:"partial"`
	Degraded   bool     `json:"degraded"` // 排序丢失了 affinity 信号
}

type timelineReader interface {
	Read(ctx context.Context, owner string, limit int, cursor string) ([]model.TimelineEntry, string, error)
}

// Assembler 读路径：push 条目与按作者拉取的近期帖合并去重后交给 Ranker。
// 整个读受配置的硬截止时间约束，慢作者直接被排除。
type Assembler struct {
	store      timelineReader
	posts      repository.PostRepository
	graph      graph.SocialGraph
	classifier *Classifier
	ranker     *Ranker
	limiter    *rate.Limiter
	cfg        config.ReadConfig
}

func NewAssembler(store timelineReader, posts repository.PostRepository, g graph.SocialGraph, classifier *Classifier, ranker *Ranker, cfg config.ReadConfig) *Assembler {
	if cfg.Deadline <= 0 {
		cfg.Deadline = 2 * time.Second
	}
	if cfg.PerAuthorLimit <= 0 {
		cfg.PerAuthorLimit = 5
	}
	if cfg.MaxAuthors <= 0 {
		cfg.MaxAuthors = 200
	}
	if cfg.MaxCandidates <= 0 {
		cfg.MaxCandidates = 1000
	}
	if cfg.PullWindow <= 0 {
		cfg.PullWindow = 24 * time.Hour
	}
	if cfg.PullParallelism <= 0 {
		cfg.PullParallelism = 16
	}
	r := rate.Inf
	if cfg.AuthorFetchRate > 0 {
		r = rate.Limit(cfg.AuthorFetchRate)
	}
	return &Assembler{
		store:      store,
		posts:      posts,
		graph:      g,
		classifier: classifier,
		ranker:     ranker,
		limiter:    rate.NewLimiter(r, cfg.PullParallelism),
		cfg:        cfg,
	}
}

// GetTimeline 组装并排序一页时间线
func (a *Assembler) GetTimeline(ctx context.Context, userID, cursor string, limit int) (*TimelineResult, error) {
	start := time.Now()
	defer func() { metrics.TimelineReadDuration.Observe(time.Since(start).Seconds()) }()

	ctx, cancel := context.WithTimeout(ctx, a.cfg.Deadline)
	defer cancel()

	if limit <= 0 {
		limit = 20
	}
	if limit > 100 {
		limit = 100
	}

	res := &TimelineResult{}

	// push 侧：时间线存储的游标分页读
	entries, next, err := a.store.Read(ctx, userID, limit, cursor)
	if err != nil {
		// push 存储失败也不立刻报错，还有拉取侧可用
		logger.Warn("push timeline read failed", zap.String("user", userID), zap.Error(err))
		res.Partial = true
		metrics.DegradedReads.WithLabelValues("push_error").Inc()
	}
	res.NextCursor = next

	byPost := make(map[string]Candidate, len(entries)+64)
	for _, e := range entries {
		byPost[e.PostID] = Candidate{
			PostID:    e.PostID,
			AuthorID:  e.AuthorID,
			Source:    e.Source,
			CreatedAt: e.CreatedAt,
		}
	}

	// pull 侧：对 pull/hybrid 作者读时拉取近期帖
	pulled, partial := a.pullCandidates(ctx, userID)
	res.Partial = res.Partial || partial
	for _, c := range pulled {
		// 去重以 push 先写为准；内容不可变，覆盖与否等价
		if _, ok := byPost[c.PostID]; !ok {
			byPost[c.PostID] = c
		}
		if len(byPost) >= a.cfg.MaxCandidates {
			break
		}
	}

	cands := make([]Candidate, 0, len(byPost))
	for _, c := range byPost {
		cands = append(cands, c)
	}
	a.hydrateEngagement(ctx, cands)

	ranked, degraded := a.ranker.Rank(ctx, userID, cands)
	res.Degraded = degraded
	if len(ranked) > limit {
		ranked = ranked[:limit]
	}
	res.Items = ranked
	// deadline 只记截止时间真正触发的降级，其余 partial 原因各自计数
	if res.Partial && errors.Is(ctx.Err(), context.DeadlineExceeded) {
		metrics.DegradedReads.WithLabelValues("deadline").Inc()
	}
	return res, nil
}

// pullCandidates 并发拉取关注作者的近期帖；
// 任一作者失败或超时只标记 partial，不拖垮整个读
func (a *Assembler) pullCandidates(ctx context.Context, userID string) ([]Candidate, bool) {
	authors, err := a.graph.Following(ctx, userID, a.cfg.MaxAuthors)
	if err != nil {
		logger.Warn("following list unavailable", zap.String("user", userID), zap.Error(err))
		return nil, true
	}

	type result struct {
		cands []Candidate
		err   error
	}
	sem := make(chan struct{}, a.cfg.PullParallelism)
	results := make(chan result, len(authors))
	dispatched := 0

	since := time.Now().Add(-a.cfg.PullWindow)
	for _, author := range authors {
		cls, err := a.classifier.Classify(ctx, author)
		if err != nil {
			// 无法分类时按 pull 处理，宁可多拉一次
			cls.Strategy = model.StrategyPull
		}
		if cls.Strategy == model.StrategyPush {
			continue // 已由 push 路径覆盖
		}

		dispatched++
		go func(author string) {
			select {
			case sem <- struct{}{}:
				defer func() { <-sem }()
			case <-ctx.Done():
				results <- result{err: ctx.Err()}
				return
			}
			if err := a.limiter.Wait(ctx); err != nil {
				results <- result{err: err}
				return
			}
			posts, err := a.posts.ListRecentByAuthor(ctx, author, since, a.cfg.PerAuthorLimit)
			if err != nil {
				results <- result{err: err}
				return
			}
			out := make([]Candidate, 0, len(posts))
			for _, p := range posts {
				out = append(out, Candidate{
					PostID:     p.ID,
					AuthorID:   p.AuthorID,
					Source:     model.SourcePull,
					CreatedAt:  p.CreatedAt,
					Engagement: p.Engagement(),
				})
			}
			results <- result{cands: out}
		}(author)
	}

	var cands []Candidate
	partial := false
	counted := false
	for i := 0; i < dispatched; i++ {
		select {
		case r := <-results:
			if r.err != nil {
				partial = true
				if !counted && !errors.Is(r.err, context.DeadlineExceeded) {
					metrics.DegradedReads.WithLabelValues("pull_error").Inc()
					counted = true
				}
				continue
			}
			cands = append(cands, r.cands...)
		case <-ctx.Done():
			// 截止已到：带着已有结果返回
			return cands, true
		}
	}
	return cands, partial
}

// hydrateEngagement 为 push 侧候选补 engagement 快照（单次批量查询）
func (a *Assembler) hydrateEngagement(ctx context.Context, cands []Candidate) {
	var missing []string
	idx := make(map[string][]int)
	for i, c := range cands {
		if c.Engagement == 0 && c.Source == model.SourcePush {
			idx[c.PostID] = append(idx[c.PostID], i)
			missing = append(missing, c.PostID)
		}
	}
	if len(missing) == 0 {
		return
	}
	posts, err := a.posts.GetByIDs(ctx, missing)
	if err != nil {
		// 快照缺失只影响排序权重，不影响结果完整性
		logger.Warn("engagement hydrate failed", zap.Error(err))
		return
	}
	for _, p := range posts {
		for _, i := range idx[p.ID] {
			cands[i].Engagement = p.Engagement()
		}
	}
}
