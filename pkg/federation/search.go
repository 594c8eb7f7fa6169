package federation

import (
	"context"
	"fmt"
	"time"

	"seventweets/pkg/registry"
	"seventweets/pkg/types"

	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"
)

// LocalSearcher answers a search against this node's own tweets
type LocalSearcher interface {
	Search(ctx context.Context, criteria types.SearchCriteria) ([]types.Tweet, error)
}

// FanoutSearch answers searches locally and, for global searches, from
// every known peer as well
type FanoutSearch struct {
	local       LocalSearcher
	peers       *registry.PeerSet
	client      PeerClient
	metrics     *Metrics
	logger      *zap.Logger
	timeout     time.Duration
	concurrency int
}

// SearchOption configures a FanoutSearch
type SearchOption func(*FanoutSearch)

// WithSearchTimeout bounds each peer query
func WithSearchTimeout(d time.Duration) SearchOption {
	return func(fs *FanoutSearch) {
		if d > 0 {
			fs.timeout = d
		}
	}
}

// WithSearchConcurrency bounds how many peers are queried at once
func WithSearchConcurrency(n int) SearchOption {
	return func(fs *FanoutSearch) {
		if n > 0 {
			fs.concurrency = n
		}
	}
}

func NewFanoutSearch(local LocalSearcher, peers *registry.PeerSet, client PeerClient, metrics *Metrics, logger *zap.Logger, opts ...SearchOption) *FanoutSearch {
	if logger == nil {
		logger = zap.NewNop()
	}

	fs := &FanoutSearch{
		local:       local,
		peers:       peers,
		client:      client,
		metrics:     metrics,
		logger:      logger,
		timeout:     DefaultPeerTimeout,
		concurrency: DefaultConcurrency,
	}
	for _, opt := range opts {
		opt(fs)
	}
	return fs
}

// Search returns the local matches followed, for a global search, by each
// peer's matches in registry order. Peers that fail or time out contribute
// nothing. Results are not deduplicated.
func (fs *FanoutSearch) Search(ctx context.Context, criteria types.SearchCriteria) ([]types.Tweet, error) {
	scope := "local"
	if criteria.Global {
		scope = "global"
	}
	if fs.metrics != nil {
		fs.metrics.SearchRequests.WithLabelValues(scope).Inc()
	}

	local, err := fs.local.Search(ctx, criteria.Local())
	if err != nil {
		return nil, fmt.Errorf("failed to search local tweets: %w", err)
	}
	if !criteria.Global {
		return local, nil
	}

	results := make([]types.Tweet, 0, len(local))
	results = append(results, local...)
	for _, found := range fs.queryPeers(ctx, criteria.Local()) {
		results = append(results, found...)
	}
	return results, nil
}

// queryPeers returns one slot per peer, in registry order. A failed peer
// leaves its slot empty.
func (fs *FanoutSearch) queryPeers(ctx context.Context, criteria types.SearchCriteria) [][]types.Tweet {
	peers := fs.peers.Peers()
	slots := make([][]types.Tweet, len(peers))
	if len(peers) == 0 {
		return slots
	}

	start := time.Now()

	var g errgroup.Group
	g.SetLimit(fs.concurrency)
	for i, peer := range peers {
		i, peer := i, peer
		g.Go(func() error {
			callCtx, cancel := context.WithTimeout(ctx, fs.timeout)
			defer cancel()

			found, err := fs.client.Search(callCtx, peer, criteria)
			fs.metrics.peerCall(OpSearch, err)
			if err != nil {
				fs.logger.Warn("Peer search failed",
					zap.String("peer", peer.String()),
					zap.Error(err))
				return nil
			}
			slots[i] = found
			return nil
		})
	}
	g.Wait()

	if fs.metrics != nil {
		fs.metrics.FanoutLatency.Observe(time.Since(start).Seconds())
	}
	fs.logger.Debug("Fan-out search finished",
		zap.Int("peers", len(peers)),
		zap.Duration("duration", time.Since(start)))

	return slots
}
