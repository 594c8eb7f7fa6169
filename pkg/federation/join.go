package federation

import (
	"context"
	"errors"
	"fmt"
	"time"

	"seventweets/pkg/registry"
	"seventweets/pkg/types"

	"go.uber.org/multierr"
	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"
)

// ErrSeedUnreachable is returned by Join when the seed could not be
// registered with. Nothing else in the handshake can proceed without it.
var ErrSeedUnreachable = errors.New("seed unreachable")

// DefaultPeerTimeout bounds each outbound call made by the coordinators
const DefaultPeerTimeout = 5 * time.Second

// DefaultConcurrency bounds how many peer calls run at once
const DefaultConcurrency = 8

// JoinResult describes a completed join
type JoinResult struct {
	Seed types.PeerIdentity

	// Peers is the snapshot returned by the seed
	Peers []types.PeerIdentity

	// Announced lists the peers that accepted our registration
	Announced []types.PeerIdentity

	// Unreachable lists the peers that could not be announced to
	Unreachable []types.PeerIdentity

	// Err aggregates the announcement failures. It never fails the join.
	Err error
}

// JoinCoordinator performs the join handshake against a seed node
type JoinCoordinator struct {
	peers       *registry.PeerSet
	client      PeerClient
	metrics     *Metrics
	logger      *zap.Logger
	timeout     time.Duration
	concurrency int
}

// JoinOption configures a JoinCoordinator
type JoinOption func(*JoinCoordinator)

// WithJoinTimeout bounds each outbound call of the handshake
func WithJoinTimeout(d time.Duration) JoinOption {
	return func(jc *JoinCoordinator) {
		if d > 0 {
			jc.timeout = d
		}
	}
}

// WithJoinConcurrency bounds how many announcements run at once
func WithJoinConcurrency(n int) JoinOption {
	return func(jc *JoinCoordinator) {
		if n > 0 {
			jc.concurrency = n
		}
	}
}

// NewJoinCoordinator creates a coordinator that records membership in peers
// and talks to the network through client. metrics may be nil.
func NewJoinCoordinator(peers *registry.PeerSet, client PeerClient, metrics *Metrics, logger *zap.Logger, opts ...JoinOption) *JoinCoordinator {
	if logger == nil {
		logger = zap.NewNop()
	}

	jc := &JoinCoordinator{
		peers:       peers,
		client:      client,
		metrics:     metrics,
		logger:      logger,
		timeout:     DefaultPeerTimeout,
		concurrency: DefaultConcurrency,
	}
	for _, opt := range opts {
		opt(jc)
	}
	return jc
}

// Join makes this node a member of the seed's network. The seed is
// registered locally first, then asked to register us; its snapshot is
// merged into the local peer set and every member other than the seed and
// ourselves is told about us. Only a failure to reach the seed fails the
// join.
func (jc *JoinCoordinator) Join(ctx context.Context, seed types.PeerIdentity) (*JoinResult, error) {
	if err := seed.Validate(); err != nil {
		return nil, fmt.Errorf("invalid seed: %w", err)
	}

	self := jc.peers.Self()
	if jc.metrics != nil {
		jc.metrics.JoinOperations.Inc()
	}

	jc.logger.Info("Joining network",
		zap.String("self", self.String()),
		zap.String("seed", seed.String()))

	jc.peers.Register(seed)

	seedCtx, cancel := context.WithTimeout(ctx, jc.timeout)
	snapshot, err := jc.client.Register(seedCtx, seed, self)
	cancel()
	jc.metrics.peerCall(OpRegister, err)
	if err != nil {
		if jc.metrics != nil {
			jc.metrics.JoinFailures.Inc()
		}
		jc.logger.Warn("Seed did not accept registration",
			zap.String("seed", seed.String()),
			zap.Error(err))
		return nil, fmt.Errorf("%w: %s: %w", ErrSeedUnreachable, seed, err)
	}

	result := &JoinResult{Seed: seed, Peers: snapshot}

	var targets []types.PeerIdentity
	for _, peer := range snapshot {
		jc.peers.Register(peer)
		if peer == self || peer == seed {
			continue
		}
		targets = append(targets, peer)
	}

	jc.announce(ctx, self, targets, result)

	jc.logger.Info("Joined network",
		zap.String("seed", seed.String()),
		zap.Int("peers", len(snapshot)),
		zap.Int("announced", len(result.Announced)),
		zap.Int("unreachable", len(result.Unreachable)))

	return result, nil
}

// announce registers self with every target concurrently. Each goroutine
// records its own outcome so a failing peer never cancels the others.
func (jc *JoinCoordinator) announce(ctx context.Context, self types.PeerIdentity, targets []types.PeerIdentity, result *JoinResult) {
	if len(targets) == 0 {
		return
	}

	errs := make([]error, len(targets))

	var g errgroup.Group
	g.SetLimit(jc.concurrency)
	for i, peer := range targets {
		i, peer := i, peer
		g.Go(func() error {
			callCtx, cancel := context.WithTimeout(ctx, jc.timeout)
			defer cancel()

			_, err := jc.client.Register(callCtx, peer, self)
			jc.metrics.peerCall(OpRegister, err)
			if err != nil {
				jc.logger.Warn("Failed to announce to peer",
					zap.String("peer", peer.String()),
					zap.Error(err))
				errs[i] = fmt.Errorf("announce to %s: %w", peer, err)
			}
			return nil
		})
	}
	g.Wait()

	for i, peer := range targets {
		if errs[i] != nil {
			result.Unreachable = append(result.Unreachable, peer)
			result.Err = multierr.Append(result.Err, errs[i])
			continue
		}
		result.Announced = append(result.Announced, peer)
	}
}
