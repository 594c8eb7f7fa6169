package storage

import (
	"context"
	"sync"

	"seventweets/pkg/types"

	"github.com/benbjohnson/clock"
)

// MemoryStore keeps tweets in process memory. It is the default backend and
// the one used by tests.
type MemoryStore struct {
	mu       sync.RWMutex
	nodeName string
	clock    clock.Clock
	nextID   types.TweetID
	tweets   map[types.TweetID]types.Tweet
}

func NewMemoryStore(nodeName string, clk clock.Clock) *MemoryStore {
	if clk == nil {
		clk = clock.New()
	}
	return &MemoryStore{
		nodeName: nodeName,
		clock:    clk,
		nextID:   1,
		tweets:   make(map[types.TweetID]types.Tweet),
	}
}

func (s *MemoryStore) All(ctx context.Context) ([]types.Tweet, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	out := make([]types.Tweet, 0, len(s.tweets))
	for _, t := range s.tweets {
		out = append(out, t)
	}
	sortByID(out)
	return out, nil
}

func (s *MemoryStore) Get(ctx context.Context, id types.TweetID) (*types.Tweet, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	t, ok := s.tweets[id]
	if !ok {
		return nil, ErrNotFound
	}
	return &t, nil
}

func (s *MemoryStore) Save(ctx context.Context, content string) (*types.Tweet, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	t := types.Tweet{
		ID:        s.nextID,
		Name:      s.nodeName,
		Tweet:     content,
		CreatedAt: s.clock.Now().UTC(),
	}
	s.tweets[t.ID] = t
	s.nextID++

	return &t, nil
}

func (s *MemoryStore) Delete(ctx context.Context, id types.TweetID) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if _, ok := s.tweets[id]; !ok {
		return ErrNotFound
	}
	delete(s.tweets, id)
	return nil
}

func (s *MemoryStore) Search(ctx context.Context, criteria types.SearchCriteria) ([]types.Tweet, error) {
	all, err := s.All(ctx)
	if err != nil {
		return nil, err
	}
	return filter(all, criteria), nil
}

func (s *MemoryStore) Ping(ctx context.Context) error {
	return nil
}

func (s *MemoryStore) Close() error {
	return nil
}
