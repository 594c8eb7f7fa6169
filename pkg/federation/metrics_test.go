package federation

import (
	"errors"
	"strings"
	"testing"

	"seventweets/pkg/registry"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestMetrics_Creation(t *testing.T) {
	reg := prometheus.NewRegistry()
	metrics := NewMetrics(reg, registry.NewPeerSet(nodeA))

	require.NotNil(t, metrics.KnownPeers)
	require.NotNil(t, metrics.JoinOperations)
	require.NotNil(t, metrics.PeerCalls)
	require.NotNil(t, metrics.FanoutLatency)

	// registering twice on the same registry must panic
	assert.Panics(t, func() { NewMetrics(reg, nil) })
}

func TestMetrics_KnownPeersTracksPeerSet(t *testing.T) {
	peers := registry.NewPeerSet(nodeA)
	metrics := NewMetrics(prometheus.NewRegistry(), peers)

	assert.Equal(t, 0.0, testutil.ToFloat64(metrics.KnownPeers))

	peers.Register(nodeX)
	peers.Register(nodeY)
	assert.Equal(t, 2.0, testutil.ToFloat64(metrics.KnownPeers))

	peers.Delete("X")
	assert.Equal(t, 1.0, testutil.ToFloat64(metrics.KnownPeers))
}

func TestMetrics_PeerCallOutcome(t *testing.T) {
	metrics := NewMetrics(prometheus.NewRegistry(), nil)

	metrics.peerCall(OpDeregister, nil)
	metrics.peerCall(OpDeregister, errors.New("boom"))
	metrics.peerCall(OpDeregister, errors.New("boom"))

	assert.Equal(t, 1.0, testutil.ToFloat64(metrics.PeerCalls.WithLabelValues(OpDeregister, OutcomeOK)))
	assert.Equal(t, 2.0, testutil.ToFloat64(metrics.PeerCalls.WithLabelValues(OpDeregister, OutcomeError)))

	// nil metrics are allowed everywhere
	var none *Metrics
	assert.NotPanics(t, func() { none.peerCall(OpSearch, nil) })
}

func TestGetAlertingRules(t *testing.T) {
	rules := GetAlertingRules()

	for _, name := range []string{
		"seventweets_known_peers",
		"seventweets_peer_calls_total",
		"seventweets_join_failures_total",
		"seventweets_fanout_latency_seconds_bucket",
	} {
		assert.True(t, strings.Contains(rules, name), "rules should reference %s", name)
	}
}
