package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"
	"time"

	"seventweets/pkg/config"
	"seventweets/pkg/node"
	"seventweets/pkg/storage"
	"seventweets/pkg/types"

	"github.com/spf13/cobra"
	"go.uber.org/multierr"
	"go.uber.org/zap"
)

const shutdownTimeout = 15 * time.Second

type serveFlags struct {
	name            string
	address         string
	listen          string
	grpcAddress     string
	token           string
	backend         string
	badgerDir       string
	badgerCache     string
	peerTimeout     time.Duration
	concurrency     int
	protectRegistry bool
	seed            string
	seedRetries     uint64
}

func serveCmd() *cobra.Command {
	var f serveFlags

	cmd := &cobra.Command{
		Use:   "serve",
		Short: "Run a node",
		Long: `Start a node. Settings come from the config file when --config is given,
otherwise from the ST_* environment variables; flags override both.
With --seed the node joins the seed's network once it is up.`,
		RunE: func(cmd *cobra.Command, args []string) error {
			logger := setupLogger(verbose)
			defer logger.Sync()

			cfg, err := loadServeConfig(cmd, &f)
			if err != nil {
				return err
			}
			if err := cfg.Validate(); err != nil {
				return fmt.Errorf("invalid configuration: %w", err)
			}

			var seed types.PeerIdentity
			if f.seed != "" {
				if seed, err = types.ParsePeerIdentity(f.seed); err != nil {
					return fmt.Errorf("invalid --seed: %w", err)
				}
			}

			store, err := storage.Open(cfg.Storage, cfg.Name, nil, logger)
			if err != nil {
				return fmt.Errorf("failed to open storage: %w", err)
			}

			n, err := node.New(cfg, store, logger)
			if err != nil {
				store.Close()
				return err
			}
			if err := n.Listen(); err != nil {
				store.Close()
				return err
			}

			ctx, cancel := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
			defer cancel()

			if f.seed != "" {
				go func() {
					if _, err := n.JoinWithRetry(ctx, seed, f.seedRetries); err != nil {
						logger.Error("Failed to join network",
							zap.String("seed", seed.String()),
							zap.Error(err))
					}
				}()
			}

			return runUntilDone(ctx, n, shutdownTimeout, logger)
		},
	}

	cmd.Flags().StringVar(&f.name, "name", "", "node name announced to the network")
	cmd.Flags().StringVar(&f.address, "address", "", "address other nodes use to reach this one (host:port)")
	cmd.Flags().StringVar(&f.listen, "listen", config.DefaultListenAddress, "HTTP listen address")
	cmd.Flags().StringVar(&f.grpcAddress, "grpc-address", "", "gRPC health listen address (disabled when empty)")
	cmd.Flags().StringVar(&f.token, "token", "", "API token protecting state-changing endpoints")
	cmd.Flags().StringVar(&f.backend, "storage", string(config.BackendMemory), "storage backend: memory, postgres, redis or badger")
	cmd.Flags().StringVar(&f.badgerDir, "badger-dir", "./data", "badger data directory")
	cmd.Flags().StringVar(&f.badgerCache, "badger-cache", "", "badger block cache size, e.g. 64MiB")
	cmd.Flags().DurationVar(&f.peerTimeout, "peer-timeout", config.DefaultPeerTimeout, "timeout of a single peer call")
	cmd.Flags().IntVar(&f.concurrency, "fanout-concurrency", config.DefaultFanoutConcurrency, "peer calls running at once")
	cmd.Flags().BoolVar(&f.protectRegistry, "protect-registry", false, "require the API token on registry endpoints")
	cmd.Flags().StringVar(&f.seed, "seed", "", "join the network of this node at startup (name@address)")
	cmd.Flags().Uint64Var(&f.seedRetries, "seed-retries", node.DefaultSeedRetries, "retries while the seed is unreachable")

	return cmd
}

// runner is the part of a node the serve loop drives
type runner interface {
	Start() error
	Stop(ctx context.Context) error
}

// runUntilDone serves until ctx ends or the server fails, then stops the
// node in both cases
func runUntilDone(ctx context.Context, n runner, timeout time.Duration, logger *zap.Logger) error {
	errCh := make(chan error, 1)
	go func() {
		errCh <- n.Start()
	}()

	var startErr error
	select {
	case startErr = <-errCh:
		if startErr != nil {
			logger.Error("Node stopped serving", zap.Error(startErr))
		}
	case <-ctx.Done():
	}

	logger.Info("Shutting down node")
	stopCtx, cancel := context.WithTimeout(context.Background(), timeout)
	defer cancel()
	return multierr.Append(startErr, n.Stop(stopCtx))
}

// loadServeConfig reads the file or the environment, then applies the flags
// that were set explicitly
func loadServeConfig(cmd *cobra.Command, f *serveFlags) (*config.Config, error) {
	var (
		cfg *config.Config
		err error
	)
	if configFile != "" {
		cfg, err = config.LoadConfig(configFile)
	} else {
		cfg, err = config.LoadFromEnv()
	}
	if err != nil {
		return nil, fmt.Errorf("failed to load config: %w", err)
	}

	flags := cmd.Flags()
	if flags.Changed("name") {
		cfg.Name = f.name
	}
	if flags.Changed("address") {
		cfg.Address = f.address
	}
	if flags.Changed("listen") {
		cfg.ListenAddress = f.listen
	}
	if flags.Changed("grpc-address") {
		cfg.GRPCAddress = f.grpcAddress
	}
	if flags.Changed("token") {
		cfg.APIToken = f.token
	}
	if flags.Changed("storage") {
		cfg.Storage.Backend = config.Backend(f.backend)
	}
	if flags.Changed("badger-dir") {
		cfg.Storage.Badger.Dir = f.badgerDir
	}
	if flags.Changed("badger-cache") {
		size, err := config.ParseDataSize(f.badgerCache)
		if err != nil {
			return nil, fmt.Errorf("invalid --badger-cache: %w", err)
		}
		cfg.Storage.Badger.CacheSize = size
	}
	if flags.Changed("peer-timeout") {
		cfg.PeerTimeout = config.Duration{Duration: f.peerTimeout}
	}
	if flags.Changed("fanout-concurrency") {
		cfg.FanoutConcurrency = f.concurrency
	}
	if flags.Changed("protect-registry") {
		cfg.ProtectRegistry = f.protectRegistry
	}

	return cfg, nil
}
