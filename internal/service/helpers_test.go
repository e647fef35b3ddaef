package service

import (
	"context"
	"fmt"
	"sync"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	"github.com/redis/go-redis/v9"
	"github.com/stretchr/testify/require"
	"gorm.io/driver/sqlite"
	"gorm.io/gorm"

	"github.com/d60-Lab/feedcore/internal/graph"
	"github.com/d60-Lab/feedcore/internal/model"
	"github.com/d60-Lab/feedcore/pkg/database"
)

func setupDB(t *testing.T) *gorm.DB {
	t.Helper()
	db, err := gorm.Open(sqlite.Open(":memory:"), &gorm.Config{})
	require.NoError(t, err)
	require.NoError(t, database.Migrate(db))
	return db
}

func setupRedis(t *testing.T) (*redis.Client, *miniredis.Miniredis) {
	t.Helper()
	mr := miniredis.RunT(t)
	return redis.NewClient(&redis.Options{Addr: mr.Addr()}), mr
}

// fakeGraph 内存社交图，可注入故障
type fakeGraph struct {
	mu        sync.Mutex
	followers map[string][]string // author -> fans（关注时间序）
	following map[string][]string
	active    map[string]bool
	err       error
}

func newFakeGraph() *fakeGraph {
	return &fakeGraph{
		followers: make(map[string][]string),
		following: make(map[string][]string),
		active:    make(map[string]bool),
	}
}

func (g *fakeGraph) addFollower(author, fan string) {
	g.mu.Lock()
	defer g.mu.Unlock()
	g.followers[author] = append(g.followers[author], fan)
	g.following[fan] = append(g.following[fan], author)
}

func (g *fakeGraph) fail(err error) {
	g.mu.Lock()
	defer g.mu.Unlock()
	g.err = err
}

func (g *fakeGraph) Followers(ctx context.Context, authorID, pageToken string, limit int) (graph.Page, error) {
	g.mu.Lock()
	defer g.mu.Unlock()
	if g.err != nil {
		return graph.Page{}, g.err
	}
	return graph.Page{IDs: g.followers[authorID]}, nil
}

func (g *fakeGraph) FollowerShard(ctx context.Context, authorID string, shardIndex, shardSize int) ([]string, error) {
	g.mu.Lock()
	defer g.mu.Unlock()
	if g.err != nil {
		return nil, g.err
	}
	fans := g.followers[authorID]
	lo := shardIndex * shardSize
	if lo >= len(fans) {
		return nil, nil
	}
	hi := lo + shardSize
	if hi > len(fans) {
		hi = len(fans)
	}
	return fans[lo:hi], nil
}

func (g *fakeGraph) FollowerCount(ctx context.Context, authorID string) (int64, error) {
	g.mu.Lock()
	defer g.mu.Unlock()
	if g.err != nil {
		return 0, g.err
	}
	return int64(len(g.followers[authorID])), nil
}

func (g *fakeGraph) Following(ctx context.Context, userID string, limit int) ([]string, error) {
	g.mu.Lock()
	defer g.mu.Unlock()
	if g.err != nil {
		return nil, g.err
	}
	out := g.following[userID]
	if limit > 0 && len(out) > limit {
		out = out[:limit]
	}
	return out, nil
}

func (g *fakeGraph) IsActive(ctx context.Context, userID string) (bool, error) {
	g.mu.Lock()
	defer g.mu.Unlock()
	if g.err != nil {
		return false, g.err
	}
	return g.active[userID], nil
}

// memTimeline 内存时间线，记录写入顺序
type memTimeline struct {
	mu      sync.Mutex
	entries map[string][]model.TimelineEntry // owner -> 追加序
	seen    map[string]bool                  // owner:post
	failure error
}

func newMemTimeline() *memTimeline {
	return &memTimeline{
		entries: make(map[string][]model.TimelineEntry),
		seen:    make(map[string]bool),
	}
}

func (m *memTimeline) Append(ctx context.Context, e model.TimelineEntry) (bool, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.failure != nil {
		return false, m.failure
	}
	k := e.OwnerID + ":" + e.PostID
	if m.seen[k] {
		return false, nil
	}
	m.seen[k] = true
	m.entries[e.OwnerID] = append(m.entries[e.OwnerID], e)
	return true, nil
}

func (m *memTimeline) Trim(ctx context.Context, owner string) error { return nil }

func (m *memTimeline) posts(owner string) []string {
	m.mu.Lock()
	defer m.mu.Unlock()
	out := make([]string, len(m.entries[owner]))
	for i, e := range m.entries[owner] {
		out[i] = e.PostID
	}
	return out
}

func seedFollowers(g *fakeGraph, author string, n int) []string {
	fans := make([]string, n)
	for i := 0; i < n; i++ {
		fans[i] = fmt.Sprintf("fan%04d", i)
		g.addFollower(author, fans[i])
	}
	return fans
}

func fixedTime() time.Time {
	return time.Date(2026, 8, 1, 12, 0, 0, 0, time.UTC)
}
