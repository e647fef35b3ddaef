package service

import (
	"context"
	"fmt"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/d60-Lab/feedcore/config"
	"github.com/d60-Lab/feedcore/internal/eventlog"
	"github.com/d60-Lab/feedcore/internal/model"
)

func testTrendingCfg() config.TrendingConfig {
	return config.TrendingConfig{
		BucketSize:      5 * time.Minute,
		WindowBuckets:   3,
		Decay:           0.5,
		TrendThreshold:  3.0,
		DiversityWeight: 0.5,
		TopN:            10,
		RollupInterval:  5 * time.Minute,
		Retention:       2,
		Locales:         []string{"global", "en"},
	}
}

func newTestTrending(t *testing.T) *TrendingEngine {
	t.Helper()
	rdb, _ := setupRedis(t)
	e := NewTrendingEngine(rdb, NewRedisHLL(rdb), testTrendingCfg())
	e.now = fixedTime
	return e
}

func postMsg(author, locale string, at time.Time, tags ...string) eventlog.Message {
	ev := eventlog.PostEvent{
		PostID:    fmt.Sprintf("p-%s-%d", author, at.UnixNano()),
		AuthorID:  author,
		Tags:      tags,
		Locale:    locale,
		CreatedAt: at,
	}
	return eventlog.Message{Topic: eventlog.TopicPostCreated, Key: author, Payload: ev.Marshal()}
}

func TestTrendingRollupRanksByScore(t *testing.T) {
	e := newTestTrending(t)
	ctx := context.Background()
	at := fixedTime()

	for i := 0; i < 3; i++ {
		require.NoError(t, e.HandlePostEvent(ctx, postMsg(fmt.Sprintf("author%d", i), "global", at, "golang")))
	}
	require.NoError(t, e.HandlePostEvent(ctx, postMsg("author9", "global", at, "niche")))

	require.NoError(t, e.Rollup(ctx))

	top, err := e.Top(ctx, "global", 10)
	require.NoError(t, err)
	require.Len(t, top, 2)
	assert.Equal(t, "golang", top[0].Term)
	assert.Equal(t, model.TermTrending, top[0].State)
	assert.Greater(t, top[0].Score, top[1].Score)
	assert.Equal(t, int64(3), top[0].RawCount)
}

func TestTrendingMalformedEventDropped(t *testing.T) {
	e := newTestTrending(t)
	msg := eventlog.Message{Topic: eventlog.TopicPostCreated, Payload: []byte("{broken")}
	assert.NoError(t, e.HandlePostEvent(context.Background(), msg))
}

func TestTrendingTaglessEventIgnored(t *testing.T) {
	e := newTestTrending(t)
	ctx := context.Background()
	require.NoError(t, e.HandlePostEvent(ctx, postMsg("a1", "global", fixedTime())))
	require.NoError(t, e.Rollup(ctx))

	top, err := e.Top(ctx, "global", 10)
	require.NoError(t, err)
	assert.Empty(t, top)
}

func TestTrendingLocaleIsolation(t *testing.T) {
	e := newTestTrending(t)
	ctx := context.Background()
	at := fixedTime()

	require.NoError(t, e.HandlePostEvent(ctx, postMsg("a1", "global", at, "world")))
	require.NoError(t, e.HandlePostEvent(ctx, postMsg("a2", "en", at, "local")))
	require.NoError(t, e.Rollup(ctx))

	top, err := e.Top(ctx, "global", 10)
	require.NoError(t, err)
	require.Len(t, top, 1)
	assert.Equal(t, "world", top[0].Term)

	top, err = e.Top(ctx, "en", 10)
	require.NoError(t, err)
	require.Len(t, top, 1)
	assert.Equal(t, "local", top[0].Term)
}

func TestTrendingStateTransitions(t *testing.T) {
	e := newTestTrending(t)
	ctx := context.Background()
	at := fixedTime()

	// 少量事件：score 低于阈值，warming
	require.NoError(t, e.HandlePostEvent(ctx, postMsg("a1", "global", at.Add(-10*time.Minute), "topic")))
	e.now = func() time.Time { return at.Add(-10 * time.Minute) }
	require.NoError(t, e.Rollup(ctx))
	assert.Equal(t, model.TermWarming, e.states["global"]["topic"].state)

	// 爆发：score 过阈值，trending
	for i := 0; i < 3; i++ {
		require.NoError(t, e.HandlePostEvent(ctx, postMsg(fmt.Sprintf("b%d", i), "global", at, "topic")))
	}
	e.now = fixedTime
	require.NoError(t, e.Rollup(ctx))
	assert.Equal(t, model.TermTrending, e.states["global"]["topic"].state)

	// 热度衰减到阈值之下：cooling
	e.now = func() time.Time { return at.Add(e.cfg.BucketSize) }
	require.NoError(t, e.Rollup(ctx))
	assert.Equal(t, model.TermCooling, e.states["global"]["topic"].state)
}

func TestTrendingEvictionAfterRetention(t *testing.T) {
	e := newTestTrending(t)
	ctx := context.Background()
	at := fixedTime()

	require.NoError(t, e.HandlePostEvent(ctx, postMsg("a1", "global", at, "fleeting")))
	require.NoError(t, e.Rollup(ctx))
	require.Contains(t, e.states["global"], "fleeting")

	// 滑出窗口后连续 retention 轮无事件即淘汰
	e.now = func() time.Time { return at.Add(10 * e.cfg.BucketSize) }
	require.NoError(t, e.Rollup(ctx))
	require.Contains(t, e.states["global"], "fleeting")
	assert.Equal(t, model.TermCold, e.states["global"]["fleeting"].state)

	require.NoError(t, e.Rollup(ctx))
	assert.NotContains(t, e.states["global"], "fleeting")

	top, err := e.Top(ctx, "global", 10)
	require.NoError(t, err)
	assert.Empty(t, top)
}

func TestTrendingTopNTruncation(t *testing.T) {
	e := newTestTrending(t)
	e.cfg.TopN = 2
	ctx := context.Background()
	at := fixedTime()

	for i := 0; i < 5; i++ {
		tag := fmt.Sprintf("tag%d", i)
		for j := 0; j <= i; j++ {
			require.NoError(t, e.HandlePostEvent(ctx, postMsg(fmt.Sprintf("u%d%d", i, j), "global", at, tag)))
		}
	}
	require.NoError(t, e.Rollup(ctx))

	top, err := e.Top(ctx, "global", 10)
	require.NoError(t, err)
	require.Len(t, top, 2)
	assert.Equal(t, "tag4", top[0].Term)
	assert.Equal(t, "tag3", top[1].Term)
}
