package storage

import (
	"context"
	"testing"
	"time"

	"seventweets/pkg/config"
	"seventweets/pkg/types"

	"github.com/benbjohnson/clock"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

var epoch = time.Date(2017, 5, 1, 12, 0, 0, 0, time.UTC)

// runStoreContract checks the behavior every backend has to share
func runStoreContract(t *testing.T, newStore func(t *testing.T, clk clock.Clock) Store) {
	ctx := context.Background()

	setup := func(t *testing.T) (Store, *clock.Mock) {
		clk := clock.NewMock()
		clk.Set(epoch)
		store := newStore(t, clk)
		t.Cleanup(func() { store.Close() })
		return store, clk
	}

	t.Run("SaveAndGet", func(t *testing.T) {
		store, _ := setup(t)

		saved, err := store.Save(ctx, "Hello, World!")
		require.NoError(t, err)
		assert.Equal(t, types.TweetID(1), saved.ID)
		assert.Equal(t, "node-a", saved.Name)
		assert.Equal(t, "Hello, World!", saved.Tweet)
		assert.True(t, saved.CreatedAt.Equal(epoch))

		got, err := store.Get(ctx, saved.ID)
		require.NoError(t, err)
		assert.Equal(t, saved.ID, got.ID)
		assert.Equal(t, saved.Tweet, got.Tweet)
		assert.True(t, saved.CreatedAt.Equal(got.CreatedAt))
	})

	t.Run("GetUnknown", func(t *testing.T) {
		store, _ := setup(t)

		_, err := store.Get(ctx, 42)
		assert.ErrorIs(t, err, ErrNotFound)
	})

	t.Run("AllInIDOrder", func(t *testing.T) {
		store, clk := setup(t)

		for _, content := range []string{"first", "second", "third"} {
			_, err := store.Save(ctx, content)
			require.NoError(t, err)
			clk.Add(time.Minute)
		}

		all, err := store.All(ctx)
		require.NoError(t, err)
		require.Len(t, all, 3)
		assert.Equal(t, "first", all[0].Tweet)
		assert.Equal(t, "third", all[2].Tweet)
		assert.Less(t, all[0].ID, all[1].ID)
		assert.Less(t, all[1].ID, all[2].ID)
	})

	t.Run("EmptyStore", func(t *testing.T) {
		store, _ := setup(t)

		all, err := store.All(ctx)
		require.NoError(t, err)
		assert.Empty(t, all)

		found, err := store.Search(ctx, types.SearchCriteria{Content: "x"})
		require.NoError(t, err)
		assert.Empty(t, found)
	})

	t.Run("Delete", func(t *testing.T) {
		store, _ := setup(t)

		first, err := store.Save(ctx, "Get ALL the tweets!")
		require.NoError(t, err)
		_, err = store.Save(ctx, "Get ALL the tweets, AGAIN!")
		require.NoError(t, err)

		require.NoError(t, store.Delete(ctx, first.ID))

		_, err = store.Get(ctx, first.ID)
		assert.ErrorIs(t, err, ErrNotFound)

		all, err := store.All(ctx)
		require.NoError(t, err)
		assert.Len(t, all, 1)

		assert.ErrorIs(t, store.Delete(ctx, first.ID), ErrNotFound)
	})

	t.Run("SearchContentCaseInsensitive", func(t *testing.T) {
		store, _ := setup(t)

		for _, content := range []string{"Hot Takes! Get your HOT TAKES!", "lukewarm takes", "100% hot"} {
			_, err := store.Save(ctx, content)
			require.NoError(t, err)
		}

		found, err := store.Search(ctx, types.SearchCriteria{Content: "hot takes"})
		require.NoError(t, err)
		require.Len(t, found, 1)
		assert.Equal(t, "Hot Takes! Get your HOT TAKES!", found[0].Tweet)

		found, err = store.Search(ctx, types.SearchCriteria{Content: "HOT"})
		require.NoError(t, err)
		assert.Len(t, found, 2)

		found, err = store.Search(ctx, types.SearchCriteria{})
		require.NoError(t, err)
		assert.Len(t, found, 3)
	})

	t.Run("SearchTimeRangeInclusive", func(t *testing.T) {
		store, clk := setup(t)

		for _, content := range []string{"t0", "t1", "t2", "t3"} {
			_, err := store.Save(ctx, content)
			require.NoError(t, err)
			clk.Add(time.Hour)
		}

		found, err := store.Search(ctx, types.SearchCriteria{
			From: epoch.Add(time.Hour),
			To:   epoch.Add(2 * time.Hour),
		})
		require.NoError(t, err)
		require.Len(t, found, 2)
		assert.Equal(t, "t1", found[0].Tweet)
		assert.Equal(t, "t2", found[1].Tweet)

		found, err = store.Search(ctx, types.SearchCriteria{From: epoch.Add(3 * time.Hour)})
		require.NoError(t, err)
		require.Len(t, found, 1)
		assert.Equal(t, "t3", found[0].Tweet)

		found, err = store.Search(ctx, types.SearchCriteria{Content: "t", To: epoch})
		require.NoError(t, err)
		require.Len(t, found, 1)
		assert.Equal(t, "t0", found[0].Tweet)
	})

	t.Run("Ping", func(t *testing.T) {
		store, _ := setup(t)
		assert.NoError(t, store.Ping(ctx))
	})
}

func TestMemoryStore(t *testing.T) {
	runStoreContract(t, func(t *testing.T, clk clock.Clock) Store {
		return NewMemoryStore("node-a", clk)
	})
}

func TestOpen(t *testing.T) {
	store, err := Open(config.StorageConfig{Backend: config.BackendMemory}, "node-a", nil, nil)
	require.NoError(t, err)
	assert.IsType(t, &MemoryStore{}, store)

	_, err = Open(config.StorageConfig{Backend: "mysql"}, "node-a", nil, nil)
	assert.Error(t, err)
}
