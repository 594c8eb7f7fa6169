package federation

import (
	"context"
	"errors"
	"sync"
	"time"

	"seventweets/pkg/types"
)

var errPeerDown = errors.New("connection refused")

// fakeClient stands in for the HTTP peer client. Peers are keyed by name.
type fakeClient struct {
	mu sync.Mutex

	snapshots map[string][]types.PeerIdentity
	tweets    map[string][]types.Tweet
	down      map[string]bool
	delay     map[string]time.Duration

	registeredWith []string
	announcedSelf  []types.PeerIdentity
	deregistered   []string
	searched       []types.SearchCriteria
}

func newFakeClient() *fakeClient {
	return &fakeClient{
		snapshots: make(map[string][]types.PeerIdentity),
		tweets:    make(map[string][]types.Tweet),
		down:      make(map[string]bool),
		delay:     make(map[string]time.Duration),
	}
}

func (f *fakeClient) wait(ctx context.Context, peer string) error {
	f.mu.Lock()
	d := f.delay[peer]
	down := f.down[peer]
	f.mu.Unlock()

	if d > 0 {
		select {
		case <-time.After(d):
		case <-ctx.Done():
			return ctx.Err()
		}
	}
	if down {
		return errPeerDown
	}
	return nil
}

func (f *fakeClient) Register(ctx context.Context, peer, self types.PeerIdentity) ([]types.PeerIdentity, error) {
	f.mu.Lock()
	f.registeredWith = append(f.registeredWith, peer.Name)
	f.announcedSelf = append(f.announcedSelf, self)
	f.mu.Unlock()

	if err := f.wait(ctx, peer.Name); err != nil {
		return nil, err
	}

	f.mu.Lock()
	defer f.mu.Unlock()
	return append([]types.PeerIdentity(nil), f.snapshots[peer.Name]...), nil
}

func (f *fakeClient) Deregister(ctx context.Context, peer types.PeerIdentity, name string) error {
	f.mu.Lock()
	f.deregistered = append(f.deregistered, peer.Name+"/"+name)
	f.mu.Unlock()

	return f.wait(ctx, peer.Name)
}

func (f *fakeClient) Search(ctx context.Context, peer types.PeerIdentity, criteria types.SearchCriteria) ([]types.Tweet, error) {
	f.mu.Lock()
	f.searched = append(f.searched, criteria)
	f.mu.Unlock()

	if err := f.wait(ctx, peer.Name); err != nil {
		return nil, err
	}

	f.mu.Lock()
	defer f.mu.Unlock()
	var out []types.Tweet
	for _, t := range f.tweets[peer.Name] {
		if criteria.Matches(t) {
			out = append(out, t)
		}
	}
	return out, nil
}

// fakeLocal is an in-memory LocalSearcher
type fakeLocal struct {
	tweets []types.Tweet
	err    error
}

func (l *fakeLocal) Search(ctx context.Context, criteria types.SearchCriteria) ([]types.Tweet, error) {
	if l.err != nil {
		return nil, l.err
	}
	var out []types.Tweet
	for _, t := range l.tweets {
		if criteria.Matches(t) {
			out = append(out, t)
		}
	}
	return out, nil
}
