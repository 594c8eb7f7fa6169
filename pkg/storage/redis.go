package storage

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"strconv"

	"seventweets/pkg/config"
	"seventweets/pkg/types"

	"github.com/benbjohnson/clock"
	"github.com/redis/go-redis/v9"
)

const (
	redisSeqKey   = "seventweets:tweet:seq"
	redisIndexKey = "seventweets:tweets"
	redisTweetKey = "seventweets:tweet:"
)

// RedisStore keeps every tweet as a JSON string and indexes them in a sorted
// set scored by creation time in microseconds.
type RedisStore struct {
	client   *redis.Client
	nodeName string
	clock    clock.Clock
}

func OpenRedisStore(cfg config.RedisConfig, nodeName string, clk clock.Clock) (*RedisStore, error) {
	client := redis.NewClient(&redis.Options{
		Addr:     cfg.Address,
		Password: cfg.Password,
		DB:       cfg.DB,
	})
	return NewRedisStore(client, nodeName, clk), nil
}

func NewRedisStore(client *redis.Client, nodeName string, clk clock.Clock) *RedisStore {
	if clk == nil {
		clk = clock.New()
	}
	return &RedisStore{client: client, nodeName: nodeName, clock: clk}
}

func tweetKey(id types.TweetID) string {
	return redisTweetKey + strconv.FormatInt(int64(id), 10)
}

func (s *RedisStore) All(ctx context.Context) ([]types.Tweet, error) {
	return s.rangeByTime(ctx, "-inf", "+inf", types.SearchCriteria{})
}

func (s *RedisStore) Get(ctx context.Context, id types.TweetID) (*types.Tweet, error) {
	data, err := s.client.Get(ctx, tweetKey(id)).Bytes()
	if err != nil {
		if errors.Is(err, redis.Nil) {
			return nil, ErrNotFound
		}
		return nil, fmt.Errorf("failed to get tweet %d: %w", id, err)
	}

	var t types.Tweet
	if err := json.Unmarshal(data, &t); err != nil {
		return nil, fmt.Errorf("failed to unmarshal tweet %d: %w", id, err)
	}
	return &t, nil
}

func (s *RedisStore) Save(ctx context.Context, content string) (*types.Tweet, error) {
	id, err := s.client.Incr(ctx, redisSeqKey).Result()
	if err != nil {
		return nil, fmt.Errorf("failed to allocate tweet id: %w", err)
	}

	t := types.Tweet{
		ID:        types.TweetID(id),
		Name:      s.nodeName,
		Tweet:     content,
		CreatedAt: s.clock.Now().UTC(),
	}
	data, err := json.Marshal(t)
	if err != nil {
		return nil, fmt.Errorf("failed to marshal tweet: %w", err)
	}

	_, err = s.client.TxPipelined(ctx, func(pipe redis.Pipeliner) error {
		pipe.Set(ctx, tweetKey(t.ID), data, 0)
		pipe.ZAdd(ctx, redisIndexKey, redis.Z{
			Score:  float64(t.CreatedAt.UnixMicro()),
			Member: strconv.FormatInt(id, 10),
		})
		return nil
	})
	if err != nil {
		return nil, fmt.Errorf("failed to save tweet: %w", err)
	}

	return &t, nil
}

func (s *RedisStore) Delete(ctx context.Context, id types.TweetID) error {
	var del *redis.IntCmd
	_, err := s.client.TxPipelined(ctx, func(pipe redis.Pipeliner) error {
		del = pipe.Del(ctx, tweetKey(id))
		pipe.ZRem(ctx, redisIndexKey, strconv.FormatInt(int64(id), 10))
		return nil
	})
	if err != nil {
		return fmt.Errorf("failed to delete tweet %d: %w", id, err)
	}
	if del.Val() == 0 {
		return ErrNotFound
	}
	return nil
}

func (s *RedisStore) Search(ctx context.Context, criteria types.SearchCriteria) ([]types.Tweet, error) {
	lo, hi := "-inf", "+inf"
	if !criteria.From.IsZero() {
		lo = strconv.FormatInt(criteria.From.UnixMicro(), 10)
	}
	if !criteria.To.IsZero() {
		hi = strconv.FormatInt(criteria.To.UnixMicro(), 10)
	}
	return s.rangeByTime(ctx, lo, hi, criteria)
}

// rangeByTime narrows the candidates through the time index, then applies
// the full criteria to the decoded tweets
func (s *RedisStore) rangeByTime(ctx context.Context, lo, hi string, criteria types.SearchCriteria) ([]types.Tweet, error) {
	ids, err := s.client.ZRangeByScore(ctx, redisIndexKey, &redis.ZRangeBy{Min: lo, Max: hi}).Result()
	if err != nil {
		return nil, fmt.Errorf("failed to read tweet index: %w", err)
	}
	if len(ids) == 0 {
		return []types.Tweet{}, nil
	}

	keys := make([]string, len(ids))
	for i, id := range ids {
		keys[i] = redisTweetKey + id
	}

	values, err := s.client.MGet(ctx, keys...).Result()
	if err != nil {
		return nil, fmt.Errorf("failed to read tweets: %w", err)
	}

	tweets := make([]types.Tweet, 0, len(values))
	for _, v := range values {
		// deleted between the index read and MGET
		str, ok := v.(string)
		if !ok {
			continue
		}
		var t types.Tweet
		if err := json.Unmarshal([]byte(str), &t); err != nil {
			return nil, fmt.Errorf("failed to unmarshal tweet: %w", err)
		}
		tweets = append(tweets, t)
	}

	tweets = filter(tweets, criteria)
	sortByID(tweets)
	return tweets, nil
}

func (s *RedisStore) Ping(ctx context.Context) error {
	return s.client.Ping(ctx).Err()
}

func (s *RedisStore) Close() error {
	return s.client.Close()
}
