package memory_test

import (
	"context"
	"fmt"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/THIS-Institute/thiscovery-surveys/internal/personallinks"
	"github.com/THIS-Institute/thiscovery-surveys/internal/store/memory"
)

const pool = personallinks.PoolID("cambridge_SV_X")

func newLinks(urls ...string) []personallinks.Link {
	links := make([]personallinks.Link, 0, len(urls))
	for i, u := range urls {
		links = append(links, personallinks.Link{
			URL:     u,
			Status:  personallinks.StatusNew,
			Expires: time.Date(2030, 1, i+1, 0, 0, 0, 0, time.UTC),
		})
	}
	return links
}

func TestStore_PutAndQueryUnassigned(t *testing.T) {
	t.Parallel()

	s := memory.New()
	ctx := context.Background()
	require.NoError(t, s.PutBatch(ctx, pool, newLinks("https://l/b", "https://l/a")))

	got, err := s.QueryUnassigned(ctx, pool)
	require.NoError(t, err)
	require.Len(t, got, 2)
	assert.Equal(t, "https://l/a", got[0].URL)
	assert.Equal(t, pool, got[0].PoolID)

	other, err := s.QueryUnassigned(ctx, personallinks.PoolID("thisinstitute_SV_X"))
	require.NoError(t, err)
	assert.Empty(t, other)
}

func TestStore_TryAssign_SecondAttemptConflicts(t *testing.T) {
	t.Parallel()

	s := memory.New()
	ctx := context.Background()
	require.NoError(t, s.PutBatch(ctx, pool, newLinks("https://l/a")))

	ok, err := s.TryAssign(ctx, pool, "https://l/a", "P1")
	require.NoError(t, err)
	assert.True(t, ok)

	ok, err = s.TryAssign(ctx, pool, "https://l/a", "P2")
	require.NoError(t, err)
	assert.False(t, ok)

	held, err := s.QueryAssignedForParticipant(ctx, pool, "P1")
	require.NoError(t, err)
	require.Len(t, held, 1)
	assert.Equal(t, personallinks.StatusAssigned, held[0].Status)
	assert.NotNil(t, held[0].AssignedAt)

	unassigned, err := s.QueryUnassigned(ctx, pool)
	require.NoError(t, err)
	assert.Empty(t, unassigned)
}

func TestStore_TryAssign_UnknownLinkConflicts(t *testing.T) {
	t.Parallel()

	ok, err := memory.New().TryAssign(context.Background(), pool, "https://l/missing", "P1")
	require.NoError(t, err)
	assert.False(t, ok)
}

func TestStore_PutBatch_DoesNotResetAssignedLink(t *testing.T) {
	t.Parallel()

	s := memory.New()
	ctx := context.Background()
	require.NoError(t, s.PutBatch(ctx, pool, newLinks("https://l/a")))
	_, err := s.TryAssign(ctx, pool, "https://l/a", "P1")
	require.NoError(t, err)

	require.NoError(t, s.PutBatch(ctx, pool, newLinks("https://l/a")))

	held, err := s.QueryAssignedForParticipant(ctx, pool, "P1")
	require.NoError(t, err)
	assert.Len(t, held, 1)
}

func TestStore_TryAssign_ConcurrentRacersHaveOneWinner(t *testing.T) {
	t.Parallel()

	const racers = 64
	s := memory.New()
	ctx := context.Background()
	require.NoError(t, s.PutBatch(ctx, pool, newLinks("https://l/contested")))

	var wins, conflicts atomic.Int32
	var wg sync.WaitGroup
	start := make(chan struct{})
	for i := range racers {
		wg.Add(1)
		go func(participant string) {
			defer wg.Done()
			<-start
			ok, err := s.TryAssign(ctx, pool, "https://l/contested", participant)
			if err != nil {
				t.Errorf("TryAssign: %v", err)
				return
			}
			if ok {
				wins.Add(1)
			} else {
				conflicts.Add(1)
			}
		}(fmt.Sprintf("P%d", i))
	}
	close(start)
	wg.Wait()

	assert.Equal(t, int32(1), wins.Load())
	assert.Equal(t, int32(racers-1), conflicts.Load())
}

func TestStore_CancelledContext(t *testing.T) {
	t.Parallel()

	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	_, err := memory.New().QueryUnassigned(ctx, pool)
	require.ErrorIs(t, err, context.Canceled)
}
