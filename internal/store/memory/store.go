// Package memory is an in-process link store for tests and local development.
package memory

import (
	"context"
	"sort"
	"sync"
	"time"

	"github.com/THIS-Institute/thiscovery-surveys/internal/personallinks"
)

// Store keeps links in memory. The mutex emulates the atomic conditional
// write of a real store; it is never held across calls.
type Store struct {
	mu    sync.Mutex
	pools map[personallinks.PoolID]map[string]personallinks.Link
	now   func() time.Time
}

// New creates an empty Store.
func New() *Store {
	return &Store{
		pools: make(map[personallinks.PoolID]map[string]personallinks.Link),
		now:   time.Now,
	}
}

var _ personallinks.Store = (*Store)(nil)

// PutBatch inserts links. A URL already present in the pool is left untouched.
func (s *Store) PutBatch(ctx context.Context, pool personallinks.PoolID, links []personallinks.Link) error {
	if err := ctx.Err(); err != nil {
		return err
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	rows, ok := s.pools[pool]
	if !ok {
		rows = make(map[string]personallinks.Link, len(links))
		s.pools[pool] = rows
	}
	for _, l := range links {
		if _, exists := rows[l.URL]; exists {
			continue
		}
		l.PoolID = pool
		rows[l.URL] = l
	}
	return nil
}

// QueryUnassigned returns the pool's links with status new, ordered by URL.
func (s *Store) QueryUnassigned(ctx context.Context, pool personallinks.PoolID) ([]personallinks.Link, error) {
	return s.filter(ctx, pool, func(l personallinks.Link) bool {
		return l.Status == personallinks.StatusNew
	})
}

// QueryAssignedForParticipant returns the pool's links held by participantID.
func (s *Store) QueryAssignedForParticipant(
	ctx context.Context,
	pool personallinks.PoolID,
	participantID string,
) ([]personallinks.Link, error) {
	return s.filter(ctx, pool, func(l personallinks.Link) bool {
		return l.ParticipantID == participantID
	})
}

// TryAssign sets the participant on the link if it has none.
func (s *Store) TryAssign(ctx context.Context, pool personallinks.PoolID, url, participantID string) (bool, error) {
	if err := ctx.Err(); err != nil {
		return false, err
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	l, ok := s.pools[pool][url]
	if !ok || l.ParticipantID != "" {
		return false, nil
	}

	now := s.now().UTC()
	l.Status = personallinks.StatusAssigned
	l.ParticipantID = participantID
	l.AssignedAt = &now
	s.pools[pool][url] = l
	return true, nil
}

// Links returns every link of the pool, ordered by URL.
func (s *Store) Links(pool personallinks.PoolID) []personallinks.Link {
	links, _ := s.filter(context.Background(), pool, func(personallinks.Link) bool { return true })
	return links
}

func (s *Store) filter(
	ctx context.Context,
	pool personallinks.PoolID,
	keep func(personallinks.Link) bool,
) ([]personallinks.Link, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	var out []personallinks.Link
	for _, l := range s.pools[pool] {
		if keep(l) {
			out = append(out, l)
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].URL < out[j].URL })
	return out, nil
}
