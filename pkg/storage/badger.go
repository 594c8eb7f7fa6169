package storage

import (
	"context"
	"encoding/binary"
	"encoding/json"
	"errors"
	"fmt"

	"seventweets/pkg/types"

	"github.com/benbjohnson/clock"
	"github.com/dgraph-io/badger/v4"
	"go.uber.org/zap"
)

var (
	badgerTweetPrefix = []byte("tweet/")
	badgerSeqKey      = []byte("seq/tweet")
)

// BadgerStore keeps tweets in an embedded badger database. Keys are the
// prefix followed by the big-endian id, so iteration is in id order.
type BadgerStore struct {
	db       *badger.DB
	seq      *badger.Sequence
	nodeName string
	clock    clock.Clock
}

// BadgerOption tunes the badger database before it is opened
type BadgerOption func(badger.Options) badger.Options

// WithBadgerCacheSize sets the block cache size in bytes
func WithBadgerCacheSize(size int64) BadgerOption {
	return func(o badger.Options) badger.Options {
		if size <= 0 {
			return o
		}
		return o.WithBlockCacheSize(size)
	}
}

// OpenBadgerStore opens (or creates) the database in dir. An empty dir keeps
// the database in memory.
func OpenBadgerStore(dir string, nodeName string, clk clock.Clock, logger *zap.Logger, options ...BadgerOption) (*BadgerStore, error) {
	opts := badger.DefaultOptions(dir).WithLogger(nil)
	if dir == "" {
		opts = opts.WithInMemory(true)
	}
	for _, apply := range options {
		opts = apply(opts)
	}

	db, err := badger.Open(opts)
	if err != nil {
		return nil, fmt.Errorf("failed to open badger at %s: %w", dir, err)
	}

	seq, err := db.GetSequence(badgerSeqKey, 100)
	if err != nil {
		db.Close()
		return nil, fmt.Errorf("failed to open tweet id sequence: %w", err)
	}

	if clk == nil {
		clk = clock.New()
	}
	if logger != nil {
		logger.Debug("Opened badger tweet store", zap.String("dir", dir))
	}

	return &BadgerStore{db: db, seq: seq, nodeName: nodeName, clock: clk}, nil
}

func badgerKey(id types.TweetID) []byte {
	key := make([]byte, len(badgerTweetPrefix)+8)
	copy(key, badgerTweetPrefix)
	binary.BigEndian.PutUint64(key[len(badgerTweetPrefix):], uint64(id))
	return key
}

func (s *BadgerStore) All(ctx context.Context) ([]types.Tweet, error) {
	return s.scan(types.SearchCriteria{})
}

func (s *BadgerStore) Get(ctx context.Context, id types.TweetID) (*types.Tweet, error) {
	var t types.Tweet
	err := s.db.View(func(txn *badger.Txn) error {
		item, err := txn.Get(badgerKey(id))
		if err != nil {
			return err
		}
		return item.Value(func(val []byte) error {
			return json.Unmarshal(val, &t)
		})
	})
	if errors.Is(err, badger.ErrKeyNotFound) {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("failed to get tweet %d: %w", id, err)
	}
	return &t, nil
}

func (s *BadgerStore) Save(ctx context.Context, content string) (*types.Tweet, error) {
	next, err := s.seq.Next()
	if err != nil {
		return nil, fmt.Errorf("failed to allocate tweet id: %w", err)
	}

	// sequences start at zero, ids start at one
	t := types.Tweet{
		ID:        types.TweetID(next + 1),
		Name:      s.nodeName,
		Tweet:     content,
		CreatedAt: s.clock.Now().UTC(),
	}
	data, err := json.Marshal(t)
	if err != nil {
		return nil, fmt.Errorf("failed to marshal tweet: %w", err)
	}

	err = s.db.Update(func(txn *badger.Txn) error {
		return txn.Set(badgerKey(t.ID), data)
	})
	if err != nil {
		return nil, fmt.Errorf("failed to save tweet: %w", err)
	}
	return &t, nil
}

func (s *BadgerStore) Delete(ctx context.Context, id types.TweetID) error {
	err := s.db.Update(func(txn *badger.Txn) error {
		key := badgerKey(id)
		if _, err := txn.Get(key); err != nil {
			return err
		}
		return txn.Delete(key)
	})
	if errors.Is(err, badger.ErrKeyNotFound) {
		return ErrNotFound
	}
	if err != nil {
		return fmt.Errorf("failed to delete tweet %d: %w", id, err)
	}
	return nil
}

func (s *BadgerStore) Search(ctx context.Context, criteria types.SearchCriteria) ([]types.Tweet, error) {
	return s.scan(criteria)
}

func (s *BadgerStore) scan(criteria types.SearchCriteria) ([]types.Tweet, error) {
	tweets := []types.Tweet{}
	err := s.db.View(func(txn *badger.Txn) error {
		it := txn.NewIterator(badger.DefaultIteratorOptions)
		defer it.Close()

		for it.Seek(badgerTweetPrefix); it.ValidForPrefix(badgerTweetPrefix); it.Next() {
			var t types.Tweet
			err := it.Item().Value(func(val []byte) error {
				return json.Unmarshal(val, &t)
			})
			if err != nil {
				return err
			}
			if criteria.Matches(t) {
				tweets = append(tweets, t)
			}
		}
		return nil
	})
	if err != nil {
		return nil, fmt.Errorf("failed to scan tweets: %w", err)
	}
	return tweets, nil
}

func (s *BadgerStore) Ping(ctx context.Context) error {
	if s.db.IsClosed() {
		return fmt.Errorf("badger database is closed")
	}
	return nil
}

func (s *BadgerStore) Close() error {
	if err := s.seq.Release(); err != nil {
		s.db.Close()
		return fmt.Errorf("failed to release tweet id sequence: %w", err)
	}
	return s.db.Close()
}
