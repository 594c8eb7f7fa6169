package federation

import (
	"seventweets/pkg/registry"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

// Peer call outcomes used as the outcome label
const (
	OutcomeOK    = "ok"
	OutcomeError = "error"
)

// Peer call operations used as the operation label
const (
	OpRegister   = "register"
	OpSearch     = "search"
	OpDeregister = "deregister"
)

// Metrics tracks membership and peer traffic of a node
type Metrics struct {
	// Membership
	KnownPeers prometheus.GaugeFunc

	// Join handshake
	JoinOperations prometheus.Counter
	JoinFailures   prometheus.Counter

	// Outbound peer calls by operation and outcome
	PeerCalls *prometheus.CounterVec

	// Search
	SearchRequests *prometheus.CounterVec
	FanoutLatency  prometheus.Histogram
}

// NewMetrics creates and registers the collectors. The known peers gauge
// reads the peer set at scrape time.
func NewMetrics(reg prometheus.Registerer, peers *registry.PeerSet) *Metrics {
	if reg == nil {
		reg = prometheus.DefaultRegisterer
	}
	factory := promauto.With(reg)

	return &Metrics{
		KnownPeers: factory.NewGaugeFunc(prometheus.GaugeOpts{
			Name: "seventweets_known_peers",
			Help: "Number of peers in the registry, self excluded",
		}, func() float64 {
			if peers == nil {
				return 0
			}
			return float64(peers.Len())
		}),
		JoinOperations: factory.NewCounter(prometheus.CounterOpts{
			Name: "seventweets_join_operations_total",
			Help: "Total number of join handshakes started",
		}),
		JoinFailures: factory.NewCounter(prometheus.CounterOpts{
			Name: "seventweets_join_failures_total",
			Help: "Total number of join handshakes that could not reach the seed",
		}),
		PeerCalls: factory.NewCounterVec(prometheus.CounterOpts{
			Name: "seventweets_peer_calls_total",
			Help: "Total number of outbound peer calls",
		}, []string{"operation", "outcome"}),
		SearchRequests: factory.NewCounterVec(prometheus.CounterOpts{
			Name: "seventweets_search_requests_total",
			Help: "Total number of searches by scope",
		}, []string{"scope"}),
		FanoutLatency: factory.NewHistogram(prometheus.HistogramOpts{
			Name:    "seventweets_fanout_latency_seconds",
			Help:    "Duration of the peer phase of global searches",
			Buckets: prometheus.DefBuckets,
		}),
	}
}

func (m *Metrics) peerCall(operation string, err error) {
	if m == nil {
		return
	}
	outcome := OutcomeOK
	if err != nil {
		outcome = OutcomeError
	}
	m.PeerCalls.WithLabelValues(operation, outcome).Inc()
}

// GetAlertingRules provides Prometheus alerting rule templates for a node
func GetAlertingRules() string {
	return `
groups:
  - name: seventweets_alerts
    interval: 30s
    rules:
      - alert: SeventweetsIsolated
        expr: seventweets_known_peers == 0
        for: 10m
        labels:
          severity: warning
        annotations:
          summary: "Node {{ $labels.instance }} knows no peers"
          description: "Global searches on {{ $labels.instance }} only return local tweets"

      - alert: SeventweetsPeerCallFailures
        expr: rate(seventweets_peer_calls_total{outcome="error"}[5m]) > 0.1
        for: 5m
        labels:
          severity: warning
        annotations:
          summary: "High rate of failed peer calls"
          description: "Peer call failure rate is {{ $value }} per second"

      - alert: SeventweetsJoinFailures
        expr: increase(seventweets_join_failures_total[15m]) > 3
        for: 1m
        labels:
          severity: warning
        annotations:
          summary: "Join handshakes keep failing"
          description: "{{ $value }} joins could not reach their seed in the last 15 minutes"

      - alert: SeventweetsSlowFanout
        expr: histogram_quantile(0.95, rate(seventweets_fanout_latency_seconds_bucket[5m])) > 4
        for: 5m
        labels:
          severity: warning
        annotations:
          summary: "Global searches are slow"
          description: "p95 fan-out latency is {{ $value }}s"
`
}
