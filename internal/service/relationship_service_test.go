package service

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/d60-Lab/feedcore/internal/repository"
)

func TestFollowReplicatesToFanIndex(t *testing.T) {
	db := setupDB(t)
	followRepo := repository.NewFollowRepository(db)
	fanRepo := repository.NewFanRepository(db)

	rep := NewFanReplicator(fanRepo, 100)
	stop := rep.Start(1)
	defer func() { _ = stop(context.Background()) }()

	svc := NewRelationshipService(followRepo, fanRepo, rep)
	ctx := context.Background()

	require.NoError(t, svc.Follow(ctx, "fan1", "author1"))

	require.Eventually(t, func() bool {
		n, err := fanRepo.CountFans(ctx, "author1")
		return err == nil && n == 1
	}, 2*time.Second, 10*time.Millisecond)

	following, err := svc.ListFollowing(ctx, "fan1", 1, 10)
	require.NoError(t, err)
	assert.Equal(t, []string{"author1"}, following)

	fans, err := svc.ListFans(ctx, "author1", 1, 10)
	require.NoError(t, err)
	assert.Equal(t, []string{"fan1"}, fans)

	// 取关后冗余随之回收
	require.NoError(t, svc.Unfollow(ctx, "fan1", "author1"))
	require.Eventually(t, func() bool {
		n, err := fanRepo.CountFans(ctx, "author1")
		return err == nil && n == 0
	}, 2*time.Second, 10*time.Millisecond)
}

func TestFollowIdempotent(t *testing.T) {
	db := setupDB(t)
	followRepo := repository.NewFollowRepository(db)
	svc := NewRelationshipService(followRepo, repository.NewFanRepository(db), nil)
	ctx := context.Background()

	require.NoError(t, svc.Follow(ctx, "fan1", "author1"))
	require.NoError(t, svc.Follow(ctx, "fan1", "author1"))

	following, err := svc.ListFollowing(ctx, "fan1", 1, 10)
	require.NoError(t, err)
	assert.Len(t, following, 1)
}
