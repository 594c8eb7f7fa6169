// Package storage holds the node's own tweets. It is the only place the
// search path touches data: everything else in the node treats tweets as
// opaque records.
package storage

import (
	"context"
	"errors"
	"fmt"
	"sort"

	"seventweets/pkg/config"
	"seventweets/pkg/types"

	"github.com/benbjohnson/clock"
	"go.uber.org/zap"
)

var ErrNotFound = errors.New("tweet not found")

// Store is the local data collaborator of a node
type Store interface {
	// All returns every tweet stored on this node, oldest first
	All(ctx context.Context) ([]types.Tweet, error)

	// Get returns a single tweet or ErrNotFound
	Get(ctx context.Context, id types.TweetID) (*types.Tweet, error)

	// Save stores content as a new tweet of this node
	Save(ctx context.Context, content string) (*types.Tweet, error)

	// Delete removes a tweet or returns ErrNotFound
	Delete(ctx context.Context, id types.TweetID) error

	// Search returns the tweets matching criteria. The global flag is
	// ignored; stores only ever answer for local data.
	Search(ctx context.Context, criteria types.SearchCriteria) ([]types.Tweet, error)

	// Ping reports whether the backend is reachable
	Ping(ctx context.Context) error

	Close() error
}

// Open creates the store selected by cfg. Tweets saved through it are
// attributed to nodeName.
func Open(cfg config.StorageConfig, nodeName string, clk clock.Clock, logger *zap.Logger) (Store, error) {
	if logger == nil {
		logger = zap.NewNop()
	}
	if clk == nil {
		clk = clock.New()
	}

	logger.Info("Opening tweet storage", zap.String("backend", string(cfg.Backend)))

	switch cfg.Backend {
	case config.BackendMemory, "":
		return NewMemoryStore(nodeName, clk), nil
	case config.BackendPostgres:
		return OpenPostgresStore(cfg.Postgres, nodeName, clk)
	case config.BackendRedis:
		return OpenRedisStore(cfg.Redis, nodeName, clk)
	case config.BackendBadger:
		return OpenBadgerStore(cfg.Badger.Dir, nodeName, clk, logger,
			WithBadgerCacheSize(int64(cfg.Badger.CacheSize)))
	default:
		return nil, fmt.Errorf("unknown storage backend %q", cfg.Backend)
	}
}

func sortByID(tweets []types.Tweet) {
	sort.Slice(tweets, func(i, j int) bool {
		return tweets[i].ID < tweets[j].ID
	})
}

func filter(tweets []types.Tweet, criteria types.SearchCriteria) []types.Tweet {
	out := make([]types.Tweet, 0, len(tweets))
	for _, t := range tweets {
		if criteria.Matches(t) {
			out = append(out, t)
		}
	}
	return out
}
