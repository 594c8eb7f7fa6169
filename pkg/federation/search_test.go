package federation

import (
	"context"
	"errors"
	"testing"
	"time"

	"seventweets/pkg/registry"
	"seventweets/pkg/types"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap/zaptest"
)

func tweet(id int64, node, content string) types.Tweet {
	return types.Tweet{
		ID:        types.TweetID(id),
		Name:      node,
		Tweet:     content,
		CreatedAt: time.Date(2017, 5, 1, 12, int(id), 0, 0, time.UTC),
	}
}

func searchFixture(t *testing.T) (*registry.PeerSet, *fakeClient, *fakeLocal) {
	peers := registry.NewPeerSet(nodeA)
	peers.Register(nodeX)
	peers.Register(nodeY)

	client := newFakeClient()
	client.tweets["X"] = []types.Tweet{tweet(1, "X", "hot takes from X")}
	client.tweets["Y"] = []types.Tweet{tweet(1, "Y", "hot takes from Y"), tweet(2, "Y", "cold")}

	local := &fakeLocal{tweets: []types.Tweet{tweet(1, "A", "hot takes from A")}}
	return peers, client, local
}

func TestSearch_LocalOnlyMakesNoPeerCalls(t *testing.T) {
	peers, client, local := searchFixture(t)
	fs := NewFanoutSearch(local, peers, client, nil, zaptest.NewLogger(t))

	results, err := fs.Search(context.Background(), types.SearchCriteria{Content: "hot"})
	require.NoError(t, err)
	require.Len(t, results, 1)
	assert.Equal(t, "A", results[0].Name)
	assert.Empty(t, client.searched)
}

func TestSearch_GlobalMergesLocalFirstThenPeersInOrder(t *testing.T) {
	peers, client, local := searchFixture(t)
	// make the first peer the slowest so completion order differs from registry order
	client.delay["X"] = 50 * time.Millisecond

	fs := NewFanoutSearch(local, peers, client, nil, zaptest.NewLogger(t))

	results, err := fs.Search(context.Background(), types.SearchCriteria{Content: "hot", Global: true})
	require.NoError(t, err)
	require.Len(t, results, 3)
	assert.Equal(t, "A", results[0].Name)
	assert.Equal(t, "X", results[1].Name)
	assert.Equal(t, "Y", results[2].Name)
}

func TestSearch_PeerCallsNeverCarryGlobal(t *testing.T) {
	peers, client, local := searchFixture(t)
	fs := NewFanoutSearch(local, peers, client, nil, nil)

	_, err := fs.Search(context.Background(), types.SearchCriteria{Content: "hot", Global: true})
	require.NoError(t, err)

	require.Len(t, client.searched, 2)
	for _, c := range client.searched {
		assert.False(t, c.Global)
		assert.Equal(t, "hot", c.Content)
	}
}

func TestSearch_UnreachablePeerContributesNothing(t *testing.T) {
	peers, client, local := searchFixture(t)
	client.down["X"] = true

	reg := prometheus.NewRegistry()
	metrics := NewMetrics(reg, peers)
	fs := NewFanoutSearch(local, peers, client, metrics, zaptest.NewLogger(t))

	results, err := fs.Search(context.Background(), types.SearchCriteria{Content: "hot", Global: true})
	require.NoError(t, err)
	require.Len(t, results, 2)
	assert.Equal(t, "A", results[0].Name)
	assert.Equal(t, "Y", results[1].Name)

	assert.Equal(t, 1.0, testutil.ToFloat64(metrics.PeerCalls.WithLabelValues(OpSearch, OutcomeError)))
	assert.Equal(t, 1.0, testutil.ToFloat64(metrics.PeerCalls.WithLabelValues(OpSearch, OutcomeOK)))
	assert.Equal(t, 1.0, testutil.ToFloat64(metrics.SearchRequests.WithLabelValues("global")))
	assert.Equal(t, 1, testutil.CollectAndCount(metrics.FanoutLatency))
}

func TestSearch_SlowPeerIsBoundedByTimeout(t *testing.T) {
	peers, client, local := searchFixture(t)
	client.delay["Y"] = time.Second

	fs := NewFanoutSearch(local, peers, client, nil, nil, WithSearchTimeout(50*time.Millisecond))

	start := time.Now()
	results, err := fs.Search(context.Background(), types.SearchCriteria{Content: "hot", Global: true})
	require.NoError(t, err)
	assert.Less(t, time.Since(start), time.Second)
	require.Len(t, results, 2)
	assert.Equal(t, "X", results[1].Name)
}

func TestSearch_NoPeers(t *testing.T) {
	local := &fakeLocal{tweets: []types.Tweet{tweet(1, "A", "alone")}}
	client := newFakeClient()
	fs := NewFanoutSearch(local, registry.NewPeerSet(nodeA), client, nil, nil)

	results, err := fs.Search(context.Background(), types.SearchCriteria{Global: true})
	require.NoError(t, err)
	assert.Len(t, results, 1)
	assert.Empty(t, client.searched)
}

func TestSearch_DuplicatesAreKept(t *testing.T) {
	peers, client, local := searchFixture(t)
	// the same record served by two peers shows up twice
	client.tweets["Y"] = client.tweets["X"]

	fs := NewFanoutSearch(local, peers, client, nil, nil)

	results, err := fs.Search(context.Background(), types.SearchCriteria{Content: "from X", Global: true})
	require.NoError(t, err)
	assert.Len(t, results, 2)
}

func TestSearch_LocalErrorFails(t *testing.T) {
	peers, client, _ := searchFixture(t)
	local := &fakeLocal{err: errors.New("db down")}

	fs := NewFanoutSearch(local, peers, client, nil, nil)

	_, err := fs.Search(context.Background(), types.SearchCriteria{Global: true})
	require.Error(t, err)
	assert.Empty(t, client.searched)
}

func TestSearch_TimeRange(t *testing.T) {
	peers, client, local := searchFixture(t)
	fs := NewFanoutSearch(local, peers, client, nil, nil, WithSearchConcurrency(1))

	// only the second tweet of Y was created at 12:02
	at := time.Date(2017, 5, 1, 12, 2, 0, 0, time.UTC)
	results, err := fs.Search(context.Background(), types.SearchCriteria{From: at, To: at, Global: true})
	require.NoError(t, err)
	require.Len(t, results, 1)
	assert.Equal(t, "cold", results[0].Tweet)
}
