// Package node wires the components of a seventweets node together and owns
// their lifecycle.
package node

import (
	"context"
	"errors"
	"fmt"
	"net"
	"net/http"
	"sync"

	"seventweets/pkg/api"
	"seventweets/pkg/auth"
	"seventweets/pkg/client"
	"seventweets/pkg/config"
	"seventweets/pkg/federation"
	"seventweets/pkg/registry"
	"seventweets/pkg/storage"
	"seventweets/pkg/types"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"go.uber.org/multierr"
	"go.uber.org/zap"
	"google.golang.org/grpc"
	"google.golang.org/grpc/health"
	healthpb "google.golang.org/grpc/health/grpc_health_v1"
)

// ServiceName is the gRPC health service name reported next to the
// server-wide "" entry
const ServiceName = "seventweets.Node"

type Node struct {
	cfg    *config.Config
	logger *zap.Logger

	peers    *registry.PeerSet
	store    storage.Store
	metrics  *federation.Metrics
	gatherer *prometheus.Registry

	join   *federation.JoinCoordinator
	search *federation.FanoutSearch
	leaver *federation.Leaver
	api    *api.Server

	health     *health.Server
	grpcServer *grpc.Server

	mu           sync.Mutex
	httpListener net.Listener
	grpcListener net.Listener
	stopOnce     sync.Once
	stopErr      error
}

// New builds a node from cfg. The node takes ownership of store and closes
// it on Stop.
func New(cfg *config.Config, store storage.Store, logger *zap.Logger) (*Node, error) {
	if logger == nil {
		logger = zap.NewNop()
	}
	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("invalid configuration: %w", err)
	}
	if store == nil {
		return nil, errors.New("store cannot be nil")
	}

	self := cfg.Self()
	logger = logger.With(zap.String("node", self.Name))

	peers := registry.NewPeerSet(self)

	reg := prometheus.NewRegistry()
	reg.MustRegister(
		collectors.NewGoCollector(),
		collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}),
	)
	metrics := federation.NewMetrics(reg, peers)

	// peers only need our token when the registry is gated network wide
	var peerToken string
	if cfg.ProtectRegistry {
		peerToken = cfg.APIToken
	}
	peerClient := client.NewClient(cfg.PeerTimeout.Duration, peerToken, logger.Named("client"))

	timeout := cfg.PeerTimeout.Duration
	concurrency := cfg.FanoutConcurrency

	n := &Node{
		cfg:      cfg,
		logger:   logger,
		peers:    peers,
		store:    store,
		metrics:  metrics,
		gatherer: reg,
		join: federation.NewJoinCoordinator(peers, peerClient, metrics, logger.Named("join"),
			federation.WithJoinTimeout(timeout),
			federation.WithJoinConcurrency(concurrency)),
		search: federation.NewFanoutSearch(store, peers, peerClient, metrics, logger.Named("search"),
			federation.WithSearchTimeout(timeout),
			federation.WithSearchConcurrency(concurrency)),
		leaver: federation.NewLeaver(peers, peerClient, metrics, logger.Named("leave"), timeout, concurrency),
		health: health.NewServer(),
	}

	n.api = api.NewServer(api.Deps{
		Peers:             peers,
		Store:             store,
		Search:            n.search,
		Join:              n.join,
		Gate:              auth.NewGate(cfg.APIToken, logger.Named("auth")),
		Gatherer:          reg,
		Logger:            logger.Named("http"),
		ProtectRegistry:   cfg.ProtectRegistry,
		RegistryRateLimit: cfg.RegistryRateLimit,
	})

	n.grpcServer = grpc.NewServer()
	healthpb.RegisterHealthServer(n.grpcServer, n.health)
	n.health.SetServingStatus("", healthpb.HealthCheckResponse_SERVING)
	n.health.SetServingStatus(ServiceName, healthpb.HealthCheckResponse_SERVING)

	return n, nil
}

// Self returns the identity this node announces to its peers
func (n *Node) Self() types.PeerIdentity {
	return n.peers.Self()
}

// Peers returns the node's membership registry
func (n *Node) Peers() *registry.PeerSet {
	return n.peers
}

// Gatherer exposes the node's metrics registry
func (n *Node) Gatherer() prometheus.Gatherer {
	return n.gatherer
}

// Handler returns the HTTP handler serving every endpoint of the node
func (n *Node) Handler() http.Handler {
	return n.api.Echo
}

// Join runs the join handshake against seed
func (n *Node) Join(ctx context.Context, seed types.PeerIdentity) (*federation.JoinResult, error) {
	return n.join.Join(ctx, seed)
}

// Listen binds the HTTP listener and, when configured, the gRPC listener
func (n *Node) Listen() error {
	n.mu.Lock()
	defer n.mu.Unlock()

	ln, err := net.Listen("tcp", n.cfg.ListenAddress)
	if err != nil {
		return fmt.Errorf("failed to listen on %s: %w", n.cfg.ListenAddress, err)
	}
	n.httpListener = ln

	if n.cfg.GRPCAddress != "" {
		gln, err := net.Listen("tcp", n.cfg.GRPCAddress)
		if err != nil {
			ln.Close()
			return fmt.Errorf("failed to listen on %s: %w", n.cfg.GRPCAddress, err)
		}
		n.grpcListener = gln
	}
	return nil
}

// HTTPAddr returns the bound HTTP address, or nil before Listen
func (n *Node) HTTPAddr() net.Addr {
	n.mu.Lock()
	defer n.mu.Unlock()
	if n.httpListener == nil {
		return nil
	}
	return n.httpListener.Addr()
}

// Start binds the listeners if needed and serves until Stop is called
func (n *Node) Start() error {
	if n.HTTPAddr() == nil {
		if err := n.Listen(); err != nil {
			return err
		}
	}

	n.mu.Lock()
	httpListener, grpcListener := n.httpListener, n.grpcListener
	n.mu.Unlock()

	if grpcListener != nil {
		go func() {
			if err := n.ServeGRPC(grpcListener); err != nil {
				n.logger.Error("gRPC server failed", zap.Error(err))
			}
		}()
	}

	n.logger.Info("Node starting",
		zap.String("address", n.cfg.Address),
		zap.String("listen", httpListener.Addr().String()),
		zap.String("grpc", n.cfg.GRPCAddress),
		zap.String("storage", string(n.cfg.Storage.Backend)))

	n.api.Echo.Listener = httpListener
	if err := n.api.Echo.Start(""); err != nil && !errors.Is(err, http.ErrServerClosed) {
		return fmt.Errorf("failed to serve http: %w", err)
	}
	return nil
}

// ServeGRPC serves the gRPC health service on lis until Stop
func (n *Node) ServeGRPC(lis net.Listener) error {
	n.logger.Info("Serving gRPC health", zap.String("address", lis.Addr().String()))
	return n.grpcServer.Serve(lis)
}

// Stop reports NOT_SERVING, deregisters from every known peer, then shuts
// down the servers and closes the store. It is safe to call more than once.
func (n *Node) Stop(ctx context.Context) error {
	n.stopOnce.Do(func() {
		n.logger.Info("Node stopping")
		n.health.Shutdown()

		var errs error
		if err := n.leaver.Leave(ctx); err != nil {
			// peers that missed the deregistration keep a stale entry
			n.logger.Warn("Some peers were not told about shutdown", zap.Error(err))
		}

		if err := n.api.Echo.Shutdown(ctx); err != nil && !errors.Is(err, http.ErrServerClosed) {
			errs = multierr.Append(errs, fmt.Errorf("failed to shutdown http server: %w", err))
		}

		n.grpcServer.GracefulStop()

		if err := n.store.Close(); err != nil {
			errs = multierr.Append(errs, fmt.Errorf("failed to close store: %w", err))
		}

		n.stopErr = errs
	})
	return n.stopErr
}
