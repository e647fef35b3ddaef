package service

import (
	"context"
	"math"
	"sort"
	"time"

	"go.uber.org/zap"

	"github.com/d60-Lab/feedcore/config"
	"github.com/d60-Lab/feedcore/pkg/logger"
	"github.com/d60-Lab/feedcore/pkg/metrics"
)

// Candidate 参与排序的候选条目
type Candidate struct {
	PostID     string    `json:"post_id"`
	AuthorID   string    `json:"author_id"`
	Source     string    `json:"source"`
	CreatedAt  time.Time `json:"created_at"`
	Engagement int64     `json:"engagement"`
}

// Scored 排序结果
type Scored struct {
	Candidate
	Score float64 `json:"score"`
}

// Ranker 对单次读请求的候选集打分排序。
// 固定输入下结果确定：同分按 post_id 升序破平。
type Ranker struct {
	affinity AffinityProvider
	cfg      config.RankingConfig
	now      func() time.Time
}

func NewRanker(affinity AffinityProvider, cfg config.RankingConfig) *Ranker {
	if cfg.RecencyHalfLife <= 0 {
		cfg.RecencyHalfLife = 6 * time.Hour
	}
	return &Ranker{affinity: affinity, cfg: cfg, now: time.Now}
}

// Rank 打分并降序排列；affinity 不可用时退化为 recency+engagement，
// 返回的 degraded 标记该次排序丢失了个性化信号
func (r *Ranker) Rank(ctx context.Context, userID string, cands []Candidate) ([]Scored, bool) {
	degraded := false
	var aff map[string]float64
	if r.affinity != nil && len(cands) > 0 {
		authors := make([]string, 0, len(cands))
		seen := make(map[string]struct{}, len(cands))
		for _, c := range cands {
			if _, ok := seen[c.AuthorID]; ok {
				continue
			}
			seen[c.AuthorID] = struct{}{}
			authors = append(authors, c.AuthorID)
		}
		var err error
		aff, err = r.affinity.Affinities(ctx, userID, authors)
		if err != nil {
			degraded = true
			metrics.DegradedReads.WithLabelValues("affinity_down").Inc()
			logger.Warn("affinity unavailable, ranking without it",
				zap.String("user", userID), zap.Error(err))
		}
	}

	now := r.now()
	out := make([]Scored, len(cands))
	for i, c := range cands {
		out[i] = Scored{Candidate: c, Score: r.score(now, c, aff)}
	}
	sort.Slice(out, func(i, j int) bool {
		if out[i].Score != out[j].Score {
			return out[i].Score > out[j].Score
		}
		return out[i].PostID < out[j].PostID
	})
	return out, degraded
}

// score = w_recency*recency + w_engagement*log1p(engagement) + w_affinity*affinity
// recency 半衰期指数衰减，单调随帖龄下降
func (r *Ranker) score(now time.Time, c Candidate, aff map[string]float64) float64 {
	age := now.Sub(c.CreatedAt)
	if age < 0 {
		age = 0
	}
	recency := math.Exp(-math.Ln2 * age.Seconds() / r.cfg.RecencyHalfLife.Seconds())
	s := r.cfg.WeightRecency*recency + r.cfg.WeightEngagement*math.Log1p(float64(c.Engagement))
	if aff != nil {
		s += r.cfg.WeightAffinity * aff[c.AuthorID]
	}
	return s
}
