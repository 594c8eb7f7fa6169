package config

import (
	"encoding/json"
	"fmt"
	"os"
	"strconv"
	"time"

	"seventweets/pkg/types"
)

type Backend string

const (
	BackendMemory   Backend = "memory"
	BackendPostgres Backend = "postgres"
	BackendRedis    Backend = "redis"
	BackendBadger   Backend = "badger"
)

const (
	DefaultListenAddress     = ":8000"
	DefaultPeerTimeout       = 5 * time.Second
	DefaultFanoutConcurrency = 8
	DefaultRegistryRateLimit = 20
)

type Config struct {
	Name              string        `json:"name"`
	Address           string        `json:"address"`
	APIToken          string        `json:"api_token,omitempty"`
	ListenAddress     string        `json:"listen_address"`
	GRPCAddress       string        `json:"grpc_address,omitempty"`
	PeerTimeout       Duration      `json:"peer_timeout"`
	FanoutConcurrency int           `json:"fanout_concurrency"`
	ProtectRegistry   bool          `json:"protect_registry"`
	RegistryRateLimit float64       `json:"registry_rate_limit"`
	Storage           StorageConfig `json:"storage"`
}

type StorageConfig struct {
	Backend  Backend        `json:"backend"`
	Postgres PostgresConfig `json:"postgres,omitempty"`
	Redis    RedisConfig    `json:"redis,omitempty"`
	Badger   BadgerConfig   `json:"badger,omitempty"`
}

type PostgresConfig struct {
	User     string `json:"user"`
	Password string `json:"password"`
	Host     string `json:"host"`
	Database string `json:"database"`
	SSLMode  string `json:"sslmode"`
}

type RedisConfig struct {
	Address  string `json:"address"`
	Password string `json:"password"`
	DB       int    `json:"db"`
}

type BadgerConfig struct {
	Dir string `json:"dir"`
	// CacheSize bounds badger's block cache; zero keeps badger's default
	CacheSize DataSize `json:"cache_size,omitempty"`
}

// Duration is a time.Duration that reads "5s" style strings or plain
// nanosecond numbers from JSON
type Duration struct {
	time.Duration
}

func (d Duration) MarshalJSON() ([]byte, error) {
	return json.Marshal(d.String())
}

func (d *Duration) UnmarshalJSON(b []byte) error {
	var v interface{}
	if err := json.Unmarshal(b, &v); err != nil {
		return err
	}

	switch value := v.(type) {
	case float64:
		d.Duration = time.Duration(value)
	case string:
		parsed, err := time.ParseDuration(value)
		if err != nil {
			return fmt.Errorf("invalid duration %q: %w", value, err)
		}
		d.Duration = parsed
	default:
		return fmt.Errorf("duration must be a number or string, got %T", v)
	}
	return nil
}

// Self returns the identity this node announces to the network
func (c *Config) Self() types.PeerIdentity {
	return types.PeerIdentity{Name: c.Name, Address: c.Address}
}

// Default returns a configuration with every optional setting filled in
func Default() *Config {
	return &Config{
		ListenAddress:     DefaultListenAddress,
		PeerTimeout:       Duration{DefaultPeerTimeout},
		FanoutConcurrency: DefaultFanoutConcurrency,
		RegistryRateLimit: DefaultRegistryRateLimit,
		Storage: StorageConfig{
			Backend: BackendMemory,
			Postgres: PostgresConfig{
				Host:     "localhost",
				Database: "seventweets",
				SSLMode:  "disable",
			},
			Redis:  RedisConfig{Address: "localhost:6379"},
			Badger: BadgerConfig{Dir: "./data"},
		},
	}
}

func LoadConfig(path string) (*Config, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("failed to read config file: %w", err)
	}

	cfg := Default()
	if err := json.Unmarshal(data, cfg); err != nil {
		return nil, fmt.Errorf("failed to parse config: %w", err)
	}

	return cfg, nil
}

// LoadFromEnv reads the ST_* environment variables on top of the defaults
func LoadFromEnv() (*Config, error) {
	def := Default()
	cfg := &Config{
		Name:            getEnv("ST_NODE_NAME", ""),
		Address:         getEnv("ST_NODE_ADDRESS", ""),
		APIToken:        getEnv("ST_API_TOKEN", ""),
		ListenAddress:   getEnv("ST_LISTEN_ADDRESS", def.ListenAddress),
		GRPCAddress:     getEnv("ST_GRPC_ADDRESS", ""),
		Storage: StorageConfig{
			Backend: Backend(getEnv("ST_STORAGE", string(def.Storage.Backend))),
			Postgres: PostgresConfig{
				User:     getEnv("ST_PG_USER", ""),
				Password: getEnv("ST_PG_PASS", ""),
				Host:     getEnv("ST_PG_HOST", def.Storage.Postgres.Host),
				Database: getEnv("ST_PG_DB", def.Storage.Postgres.Database),
				SSLMode:  getEnv("ST_PG_SSLMODE", def.Storage.Postgres.SSLMode),
			},
			Redis: RedisConfig{
				Address:  getEnv("ST_REDIS_ADDR", def.Storage.Redis.Address),
				Password: getEnv("ST_REDIS_PASS", ""),
			},
			Badger: BadgerConfig{
				Dir: getEnv("ST_BADGER_DIR", def.Storage.Badger.Dir),
			},
		},
	}

	timeout, err := time.ParseDuration(getEnv("ST_PEER_TIMEOUT", def.PeerTimeout.String()))
	if err != nil {
		return nil, fmt.Errorf("invalid ST_PEER_TIMEOUT: %w", err)
	}
	cfg.PeerTimeout = Duration{timeout}

	if cfg.FanoutConcurrency, err = strconv.Atoi(getEnv("ST_FANOUT_CONCURRENCY", strconv.Itoa(def.FanoutConcurrency))); err != nil {
		return nil, fmt.Errorf("invalid ST_FANOUT_CONCURRENCY: %w", err)
	}
	if cfg.RegistryRateLimit, err = strconv.ParseFloat(getEnv("ST_REGISTRY_RATE_LIMIT", "20"), 64); err != nil {
		return nil, fmt.Errorf("invalid ST_REGISTRY_RATE_LIMIT: %w", err)
	}
	if cfg.ProtectRegistry, err = strconv.ParseBool(getEnv("ST_PROTECT_REGISTRY", "false")); err != nil {
		return nil, fmt.Errorf("invalid ST_PROTECT_REGISTRY: %w", err)
	}
	if cfg.Storage.Redis.DB, err = strconv.Atoi(getEnv("ST_REDIS_DB", "0")); err != nil {
		return nil, fmt.Errorf("invalid ST_REDIS_DB: %w", err)
	}
	if cfg.Storage.Badger.CacheSize, err = ParseDataSize(getEnv("ST_BADGER_CACHE_SIZE", "0")); err != nil {
		return nil, fmt.Errorf("invalid ST_BADGER_CACHE_SIZE: %w", err)
	}

	return cfg, nil
}

// Validate checks the settings a node cannot run without
func (c *Config) Validate() error {
	if err := c.Self().Validate(); err != nil {
		return fmt.Errorf("invalid node identity: %w", err)
	}
	if c.ListenAddress == "" {
		return fmt.Errorf("listen address is required")
	}
	if c.PeerTimeout.Duration <= 0 {
		return fmt.Errorf("peer timeout must be positive")
	}
	if c.FanoutConcurrency < 1 {
		return fmt.Errorf("fanout concurrency must be at least 1")
	}

	switch c.Storage.Backend {
	case BackendMemory:
	case BackendPostgres:
		if c.Storage.Postgres.Host == "" {
			return fmt.Errorf("postgres host is required")
		}
	case BackendRedis:
		if c.Storage.Redis.Address == "" {
			return fmt.Errorf("redis address is required")
		}
	case BackendBadger:
		if c.Storage.Badger.Dir == "" {
			return fmt.Errorf("badger directory is required")
		}
	default:
		return fmt.Errorf("unknown storage backend %q", c.Storage.Backend)
	}

	return nil
}

// DSN returns the lib/pq connection string
func (p PostgresConfig) DSN() string {
	dsn := fmt.Sprintf("host=%s dbname=%s", p.Host, p.Database)
	if p.User != "" {
		dsn += " user=" + p.User
	}
	if p.Password != "" {
		dsn += " password=" + p.Password
	}
	if p.SSLMode != "" {
		dsn += " sslmode=" + p.SSLMode
	}
	return dsn
}

func getEnv(key, defaultValue string) string {
	if value := os.Getenv(key); value != "" {
		return value
	}
	return defaultValue
}
