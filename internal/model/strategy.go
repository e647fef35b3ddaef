package model

import "time"

// Strategy 投递策略，按帖决策一次并随流水线透传，
// 下游只做分支匹配，不重复推导阈值
type Strategy string

const (
	StrategyPush   Strategy = "push"
	StrategyPull   Strategy = "pull"
	StrategyHybrid Strategy = "hybrid"
)

// Classification 决策缓存条目；粉丝数为快照，权威值在图存储
type Classification struct {
	AuthorID      string    `json:"author_id"`
	FollowerCount int64     `json:"follower_count"`
	Strategy      Strategy  `json:"strategy"`
	UpdatedAt     time.Time `json:"updated_at"`
}
