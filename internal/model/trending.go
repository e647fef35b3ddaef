package model

import "time"

// TermState 热点词状态机
type TermState string

const (
	TermCold     TermState = "cold"
	TermWarming  TermState = "warming"
	TermTrending TermState = "trending"
	TermCooling  TermState = "cooling"
)

// TrendingTerm 一次 rollup 后某词条的聚合视图
type TrendingTerm struct {
	Term string `json:"term"`
	// RawCount 当前窗口内的原始计数（未衰减）
	RawCount int64 `json:"raw_count"`
	// UniqueAuthors 近似去重作者数（HLL 估计值）
	UniqueAuthors int64     `json:"unique_authors"`
	Score         float64   `json:"score"`
	State         TermState `json:"state"`
	UpdatedAt     time.Time `json:"updated_at"`
}
