package node

import (
	"context"
	"errors"
	"time"

	"seventweets/pkg/federation"
	"seventweets/pkg/types"

	"github.com/cenkalti/backoff/v4"
	"go.uber.org/zap"
)

const (
	// SeedRetryInitialInterval is the first wait between startup join attempts
	SeedRetryInitialInterval = 500 * time.Millisecond

	// SeedRetryMaxInterval caps the wait between startup join attempts
	SeedRetryMaxInterval = 10 * time.Second

	// DefaultSeedRetries is how many times a startup join is retried
	DefaultSeedRetries = 8
)

// JoinWithRetry joins through seed at startup, when the seed may still be
// booting. Only an unreachable seed is retried; any other failure ends the
// attempt. The join handshake itself never retries.
func (n *Node) JoinWithRetry(ctx context.Context, seed types.PeerIdentity, maxRetries uint64) (*federation.JoinResult, error) {
	b := backoff.NewExponentialBackOff()
	b.InitialInterval = SeedRetryInitialInterval
	b.MaxInterval = SeedRetryMaxInterval
	b.MaxElapsedTime = 0

	policy := backoff.WithContext(backoff.WithMaxRetries(b, maxRetries), ctx)

	var result *federation.JoinResult
	attempt := 0
	op := func() error {
		attempt++
		res, err := n.join.Join(ctx, seed)
		if err == nil {
			result = res
			return nil
		}
		if errors.Is(err, federation.ErrSeedUnreachable) {
			return err
		}
		return backoff.Permanent(err)
	}

	notify := func(err error, wait time.Duration) {
		n.logger.Warn("Seed not reachable yet, will retry",
			zap.String("seed", seed.String()),
			zap.Int("attempt", attempt),
			zap.Duration("wait", wait),
			zap.Error(err))
	}

	if err := backoff.RetryNotify(op, policy, notify); err != nil {
		return nil, err
	}

	if result.Err != nil {
		n.logger.Warn("Joined with unreachable peers",
			zap.Int("unreachable", len(result.Unreachable)),
			zap.Error(result.Err))
	}
	return result, nil
}
