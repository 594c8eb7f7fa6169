package federation

import (
	"context"
	"fmt"
	"time"

	"seventweets/pkg/registry"

	"go.uber.org/multierr"
	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"
)

// Leaver tells every known peer that this node is going away
type Leaver struct {
	peers       *registry.PeerSet
	client      PeerClient
	metrics     *Metrics
	logger      *zap.Logger
	timeout     time.Duration
	concurrency int
}

func NewLeaver(peers *registry.PeerSet, client PeerClient, metrics *Metrics, logger *zap.Logger, timeout time.Duration, concurrency int) *Leaver {
	if logger == nil {
		logger = zap.NewNop()
	}
	if timeout <= 0 {
		timeout = DefaultPeerTimeout
	}
	if concurrency <= 0 {
		concurrency = DefaultConcurrency
	}

	return &Leaver{
		peers:       peers,
		client:      client,
		metrics:     metrics,
		logger:      logger,
		timeout:     timeout,
		concurrency: concurrency,
	}
}

// Leave deregisters this node from every known peer. All peers are tried;
// the returned error aggregates the ones that failed.
func (l *Leaver) Leave(ctx context.Context) error {
	self := l.peers.Self()
	peers := l.peers.Peers()
	if len(peers) == 0 {
		return nil
	}

	l.logger.Info("Leaving network", zap.Int("peers", len(peers)))

	errs := make([]error, len(peers))

	var g errgroup.Group
	g.SetLimit(l.concurrency)
	for i, peer := range peers {
		i, peer := i, peer
		g.Go(func() error {
			callCtx, cancel := context.WithTimeout(ctx, l.timeout)
			defer cancel()

			err := l.client.Deregister(callCtx, peer, self.Name)
			l.metrics.peerCall(OpDeregister, err)
			if err != nil {
				l.logger.Warn("Failed to deregister from peer",
					zap.String("peer", peer.String()),
					zap.Error(err))
				errs[i] = fmt.Errorf("deregister from %s: %w", peer, err)
			}
			return nil
		})
	}
	g.Wait()

	return multierr.Combine(errs...)
}
