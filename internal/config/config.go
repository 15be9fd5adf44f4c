// Package config provides configuration management for the noso2m miner.
// Values come from environment variables with sensible defaults, then from an
// optional TOML file named by NOSO_CONFIG; command line flags override both.
package config

import (
	"net"
	"os"
	"regexp"
	"strconv"
	"strings"
	"time"

	"github.com/btcsuite/btcd/btcutil/base58"

	"github.com/bardlex/noso2m/internal/peer"
	"github.com/bardlex/noso2m/pkg/errors"
)

// Defaults
const (
	DefaultAddress     = "N3G1HhkpXvmLcsWFXySdAxX3GZpkMFS"
	DefaultMinerID     = 0
	DefaultThreads     = 2
	DefaultPools       = "f04ever;devnoso"
	DefaultPoolPort    = "8082"
	DefaultNodePort    = "8080"
	DefaultQuorum      = 3
	MaxMinerID         = 8100
	defaultConfigEnv   = "NOSO_CONFIG"
	defaultServiceName = "noso2m"
)

// DefaultNodes are the seed nodes solo mining asks for consensus
var DefaultNodes = []string{
	"45.146.252.103:8080",
	"109.230.238.240:8080",
	"194.156.88.117:8080",
	"23.94.21.83:8080",
	"107.175.59.177:8080",
	"107.172.193.176:8080",
	"107.175.194.151:8080",
	"192.3.73.184:8080",
	"107.175.24.151:8080",
	"107.174.137.27:8080",
}

// KnownPools resolves name-only pool entries
var KnownPools = []peer.Peer{
	{Name: "f04ever", Host: "209.126.80.203", Port: DefaultPoolPort},
	{Name: "devnoso", Host: "45.146.252.103", Port: DefaultPoolPort},
}

// Config holds the miner configuration
type Config struct {
	// Service identification
	ServiceName string
	Version     string

	// Mining
	Address         string
	MinerID         int
	Threads         int
	Solo            bool
	Pools           string
	Nodes           []string
	Quorum          int
	VerifySolutions bool

	// Peer timeouts
	NodeTimeout time.Duration
	PoolTimeout time.Duration

	// Logging
	LogLevel  string
	LogFormat string

	// Metrics endpoint, empty disables it
	MetricsAddr string

	// Event sinks, each disabled when empty
	KafkaBrokers     []string
	KafkaTopicPrefix string
	KafkaEncoding    string
	ZMQEndpoint      string
	SinkQueueSize    int

	// History stores, each disabled when empty
	PostgresURL  string
	RedisURL     string
	InfluxURL    string
	InfluxToken  string
	InfluxOrg    string
	InfluxBucket string
}

// Load reads the environment and, when NOSO_CONFIG names one, the config
// file. The result is not validated; callers apply flags first.
func Load() (*Config, error) {
	cfg := &Config{
		ServiceName: getEnv("SERVICE_NAME", defaultServiceName),
		Version:     getEnv("VERSION", "dev"),

		Address:         getEnv("NOSO_ADDRESS", DefaultAddress),
		MinerID:         getEnvInt("NOSO_MINER_ID", DefaultMinerID),
		Threads:         getEnvInt("NOSO_THREADS", DefaultThreads),
		Solo:            getEnvBool("NOSO_SOLO", false),
		Pools:           getEnv("NOSO_POOLS", DefaultPools),
		Nodes:           getEnvSlice("NOSO_NODES", DefaultNodes),
		Quorum:          getEnvInt("NOSO_QUORUM", DefaultQuorum),
		VerifySolutions: getEnvBool("NOSO_VERIFY_SOLUTIONS", true),

		NodeTimeout: getEnvDuration("NOSO_NODE_TIMEOUT", peer.DefaultNodeTimeout),
		PoolTimeout: getEnvDuration("NOSO_POOL_TIMEOUT", peer.DefaultPoolTimeout),

		LogLevel:  getEnv("LOG_LEVEL", "info"),
		LogFormat: getEnv("LOG_FORMAT", "text"),

		MetricsAddr: getEnv("METRICS_ADDR", ""),

		KafkaBrokers:     getEnvSlice("KAFKA_BROKERS", nil),
		KafkaTopicPrefix: getEnv("KAFKA_TOPIC_PREFIX", "noso2m"),
		KafkaEncoding:    getEnv("KAFKA_ENCODING", "json"),
		ZMQEndpoint:      getEnv("ZMQ_ENDPOINT", ""),
		SinkQueueSize:    getEnvInt("SINK_QUEUE_SIZE", 256),

		PostgresURL:  getEnv("POSTGRES_URL", ""),
		RedisURL:     getEnv("REDIS_URL", ""),
		InfluxURL:    getEnv("INFLUX_URL", ""),
		InfluxToken:  getEnv("INFLUX_TOKEN", ""),
		InfluxOrg:    getEnv("INFLUX_ORG", "noso"),
		InfluxBucket: getEnv("INFLUX_BUCKET", "mining"),
	}

	if path := os.Getenv(defaultConfigEnv); path != "" {
		if err := cfg.LoadFile(path); err != nil {
			return nil, err
		}
	}

	return cfg, nil
}

// Validate performs the startup checks. Every failure is fatal.
func (c *Config) Validate() error {
	if !ValidAddress(c.Address) {
		return configError("invalid miner address %q", c.Address)
	}

	if c.MinerID < 0 || c.MinerID > MaxMinerID {
		return configError("miner id must be between 0 and %d, got %d", MaxMinerID, c.MinerID)
	}

	if c.Threads < 2 {
		return configError("threads count must be 2 or more, got %d", c.Threads)
	}

	if c.Quorum < 1 {
		return configError("quorum must be positive, got %d", c.Quorum)
	}

	if c.NodeTimeout <= 0 || c.PoolTimeout <= 0 {
		return configError("peer timeouts must be positive")
	}

	if c.Solo {
		nodes, err := c.NodePeers()
		if err != nil {
			return err
		}
		if len(nodes) < c.Quorum {
			return configError("solo mining needs at least %d nodes, got %d", c.Quorum, len(nodes))
		}
	} else if len(c.MiningPools()) == 0 {
		return configError("no mining pool configured")
	}

	switch c.KafkaEncoding {
	case "json", "proto":
	default:
		return configError("kafka encoding must be json or proto, got %q", c.KafkaEncoding)
	}

	return nil
}

// ValidAddress checks the length and the base58 body of a wallet address
func ValidAddress(address string) bool {
	if len(address) != 30 && len(address) != 31 {
		return false
	}
	return len(base58.Decode(address)) > 0
}

// MiningPools parses the pools setting
func (c *Config) MiningPools() []peer.Peer {
	return ParsePools(c.Pools)
}

// NodePeers parses the node list
func (c *Config) NodePeers() ([]peer.Peer, error) {
	nodes := make([]peer.Peer, 0, len(c.Nodes))
	for _, n := range c.Nodes {
		host, port, err := net.SplitHostPort(n)
		if err != nil {
			host, port = n, DefaultNodePort
		}
		if host == "" {
			return nil, configError("invalid node %q", n)
		}
		nodes = append(nodes, peer.Peer{Host: host, Port: port})
	}
	return nodes, nil
}

var (
	poolSeparator = regexp.MustCompile(`[;\s]+`)
	poolEntry     = regexp.MustCompile(`^([a-zA-Z][a-zA-Z0-9\-]*[a-zA-Z0-9])` +
		`(?::(` +
		`(?:(?:25[0-5]|2[0-4][0-9]|1[0-9]{2}|[1-9][0-9]|[0-9])\.){3}(?:25[0-5]|2[0-4][0-9]|1[0-9]{2}|[1-9][0-9]|[0-9])` +
		`|(?:[a-zA-Z0-9]+(?:-[a-zA-Z0-9]+)*\.)*[a-zA-Z]{2,}` +
		`)(?::([0-9]{1,5}))?)?$`)
)

// ParsePools parses "name[:host[:port]]" entries separated by ';' or
// whitespace. A name without a host resolves against KnownPools ignoring
// case; unresolvable entries are dropped. An empty result falls back to
// DefaultPools.
func ParsePools(list string) []peer.Peer {
	pools := parsePools(list)
	if len(pools) == 0 && list != DefaultPools {
		pools = parsePools(DefaultPools)
	}
	return pools
}

func parsePools(list string) []peer.Peer {
	var pools []peer.Peer
	for _, entry := range poolSeparator.Split(strings.TrimSpace(list), -1) {
		m := poolEntry.FindStringSubmatch(entry)
		if m == nil {
			continue
		}
		name, host, port := m[1], m[2], m[3]
		if host == "" {
			if known, ok := knownPool(name); ok {
				pools = append(pools, known)
			}
			continue
		}
		if port == "" {
			port = DefaultPoolPort
		}
		if p, err := strconv.Atoi(port); err != nil || p > 65535 {
			continue
		}
		pools = append(pools, peer.Peer{Name: name, Host: host, Port: port})
	}
	return pools
}

func knownPool(name string) (peer.Peer, bool) {
	for _, p := range KnownPools {
		if strings.EqualFold(p.Name, name) {
			return p, true
		}
	}
	return peer.Peer{}, false
}

func configError(format string, args ...any) error {
	return errors.Newf(errors.ErrorTypeConfig, "config_validate", format, args...)
}

// Helper functions for environment variable parsing

func getEnv(key, defaultValue string) string {
	if value := os.Getenv(key); value != "" {
		return value
	}
	return defaultValue
}

func getEnvInt(key string, defaultValue int) int {
	if value := os.Getenv(key); value != "" {
		if parsed, err := strconv.Atoi(value); err == nil {
			return parsed
		}
	}
	return defaultValue
}

func getEnvBool(key string, defaultValue bool) bool {
	if value := os.Getenv(key); value != "" {
		if parsed, err := strconv.ParseBool(value); err == nil {
			return parsed
		}
	}
	return defaultValue
}

func getEnvDuration(key string, defaultValue time.Duration) time.Duration {
	if value := os.Getenv(key); value != "" {
		if parsed, err := time.ParseDuration(value); err == nil {
			return parsed
		}
	}
	return defaultValue
}

func getEnvSlice(key string, defaultValue []string) []string {
	if value := os.Getenv(key); value != "" {
		var out []string
		for _, part := range strings.Split(value, ",") {
			if part = strings.TrimSpace(part); part != "" {
				out = append(out, part)
			}
		}
		return out
	}
	return defaultValue
}
