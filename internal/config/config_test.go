package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/bardlex/noso2m/internal/peer"
	"github.com/bardlex/noso2m/pkg/errors"
)

func TestLoad(t *testing.T) {
	tests := []struct {
		name    string
		envVars map[string]string
		check   func(*testing.T, *Config)
	}{
		{
			name:    "default config",
			envVars: map[string]string{},
			check: func(t *testing.T, cfg *Config) {
				if cfg.Address != DefaultAddress || cfg.Threads != DefaultThreads || cfg.Solo {
					t.Errorf("defaults = %+v", cfg)
				}
				if len(cfg.Nodes) != len(DefaultNodes) {
					t.Errorf("nodes = %d, want %d", len(cfg.Nodes), len(DefaultNodes))
				}
				if cfg.NodeTimeout != peer.DefaultNodeTimeout || cfg.PoolTimeout != peer.DefaultPoolTimeout {
					t.Errorf("timeouts = %v/%v", cfg.NodeTimeout, cfg.PoolTimeout)
				}
			},
		},
		{
			name: "custom config",
			envVars: map[string]string{
				"NOSO_THREADS":      "8",
				"NOSO_MINER_ID":     "42",
				"NOSO_SOLO":         "true",
				"NOSO_NODES":        "10.0.0.1:8080, 10.0.0.2",
				"NOSO_NODE_TIMEOUT": "5s",
				"KAFKA_BROKERS":     "k1:9092,k2:9092",
			},
			check: func(t *testing.T, cfg *Config) {
				if cfg.Threads != 8 || cfg.MinerID != 42 || !cfg.Solo {
					t.Errorf("config = %+v", cfg)
				}
				if len(cfg.Nodes) != 2 || cfg.Nodes[1] != "10.0.0.2" {
					t.Errorf("nodes = %v", cfg.Nodes)
				}
				if cfg.NodeTimeout != 5*time.Second {
					t.Errorf("node timeout = %v", cfg.NodeTimeout)
				}
				if len(cfg.KafkaBrokers) != 2 {
					t.Errorf("brokers = %v", cfg.KafkaBrokers)
				}
			},
		},
		{
			name:    "unparsable values keep defaults",
			envVars: map[string]string{"NOSO_THREADS": "many", "NOSO_SOLO": "maybe"},
			check: func(t *testing.T, cfg *Config) {
				if cfg.Threads != DefaultThreads || cfg.Solo {
					t.Errorf("config = %+v", cfg)
				}
			},
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			for key, value := range tt.envVars {
				t.Setenv(key, value)
			}

			cfg, err := Load()
			if err != nil {
				t.Fatalf("Load() error = %v", err)
			}
			tt.check(t, cfg)
		})
	}
}

func TestLoadFile(t *testing.T) {
	path := filepath.Join(t.TempDir(), "noso2m.toml")
	data := `
address = "N4ZR3fKhTUod34evnEcDQ2Rmn6xkgTv"
minerid = 7
threads = 6
pools = "alpha:10.1.1.1:9000"
node_timeout = "3s"

[log]
level = "debug"

[kafka]
brokers = ["k:9092"]
encoding = "proto"

[stores]
redis = "redis://localhost:6379/1"
`
	if err := os.WriteFile(path, []byte(data), 0o600); err != nil {
		t.Fatal(err)
	}
	t.Setenv("NOSO_CONFIG", path)
	t.Setenv("NOSO_THREADS", "4")

	cfg, err := Load()
	if err != nil {
		t.Fatalf("Load() error = %v", err)
	}
	if cfg.Address != "N4ZR3fKhTUod34evnEcDQ2Rmn6xkgTv" || cfg.MinerID != 7 {
		t.Errorf("address/minerid = %s/%d", cfg.Address, cfg.MinerID)
	}
	if cfg.Threads != 6 {
		t.Errorf("threads = %d, file must override env", cfg.Threads)
	}
	if cfg.NodeTimeout != 3*time.Second || cfg.PoolTimeout != peer.DefaultPoolTimeout {
		t.Errorf("timeouts = %v/%v", cfg.NodeTimeout, cfg.PoolTimeout)
	}
	if cfg.LogLevel != "debug" || cfg.KafkaEncoding != "proto" || cfg.RedisURL != "redis://localhost:6379/1" {
		t.Errorf("sections = %+v", cfg)
	}
	if pools := cfg.MiningPools(); len(pools) != 1 || pools[0].Port != "9000" {
		t.Errorf("pools = %+v", pools)
	}
	if err := cfg.Validate(); err != nil {
		t.Errorf("Validate() error = %v", err)
	}
}

func TestLoadFileErrors(t *testing.T) {
	dir := t.TempDir()
	bad := filepath.Join(dir, "bad.toml")
	if err := os.WriteFile(bad, []byte(`node_timeout = "soon"`), 0o600); err != nil {
		t.Fatal(err)
	}

	for _, path := range []string{filepath.Join(dir, "missing.toml"), bad} {
		cfg := &Config{}
		err := cfg.LoadFile(path)
		if err == nil {
			t.Errorf("LoadFile(%s) = nil", path)
			continue
		}
		if !errors.IsType(err, errors.ErrorTypeConfig) {
			t.Errorf("LoadFile(%s) error type = %v", path, err)
		}
	}
}

func validConfig() *Config {
	return &Config{
		Address:       DefaultAddress,
		Threads:       2,
		Pools:         DefaultPools,
		Nodes:         DefaultNodes,
		Quorum:        DefaultQuorum,
		NodeTimeout:   peer.DefaultNodeTimeout,
		PoolTimeout:   peer.DefaultPoolTimeout,
		KafkaEncoding: "json",
	}
}

func TestValidate(t *testing.T) {
	tests := []struct {
		name    string
		mut     func(*Config)
		wantErr bool
	}{
		{"valid", func(*Config) {}, false},
		{"short address", func(c *Config) { c.Address = "N3G1Hhkp" }, true},
		{"non base58 address", func(c *Config) { c.Address = "N3G1HhkpXvmLcsWFXySdAxX3GZpkM0O" }, true},
		{"thirty char address", func(c *Config) { c.Address = DefaultAddress[:30] }, false},
		{"miner id too high", func(c *Config) { c.MinerID = 8101 }, true},
		{"miner id max", func(c *Config) { c.MinerID = 8100 }, false},
		{"one thread", func(c *Config) { c.Threads = 1 }, true},
		{"solo without enough nodes", func(c *Config) { c.Solo = true; c.Nodes = DefaultNodes[:2] }, true},
		{"solo", func(c *Config) { c.Solo = true }, false},
		{"bad encoding", func(c *Config) { c.KafkaEncoding = "xml" }, true},
		{"zero timeout", func(c *Config) { c.PoolTimeout = 0 }, true},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cfg := validConfig()
			tt.mut(cfg)
			err := cfg.Validate()
			if (err != nil) != tt.wantErr {
				t.Errorf("Validate() error = %v, wantErr %v", err, tt.wantErr)
			}
			if err != nil && !errors.IsType(err, errors.ErrorTypeConfig) {
				t.Errorf("error type = %v, want config", err)
			}
		})
	}
}

func TestParsePools(t *testing.T) {
	tests := []struct {
		name string
		list string
		want []peer.Peer
	}{
		{
			name: "defaults by name",
			list: "f04ever;devnoso",
			want: KnownPools,
		},
		{
			name: "case insensitive name",
			list: "DevNoso",
			want: []peer.Peer{KnownPools[1]},
		},
		{
			name: "host and port",
			list: "mine:10.0.0.5:9001 other:pool.example.com",
			want: []peer.Peer{
				{Name: "mine", Host: "10.0.0.5", Port: "9001"},
				{Name: "other", Host: "pool.example.com", Port: DefaultPoolPort},
			},
		},
		{
			name: "unknown names dropped",
			list: "nobody;f04ever",
			want: []peer.Peer{KnownPools[0]},
		},
		{
			name: "nothing usable falls back",
			list: "nobody;;x",
			want: KnownPools,
		},
		{
			name: "port out of range dropped",
			list: "mine:10.0.0.5:99999;devnoso",
			want: []peer.Peer{KnownPools[1]},
		},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got := ParsePools(tt.list)
			if len(got) != len(tt.want) {
				t.Fatalf("ParsePools(%q) = %+v, want %+v", tt.list, got, tt.want)
			}
			for i := range got {
				if got[i] != tt.want[i] {
					t.Errorf("pool %d = %+v, want %+v", i, got[i], tt.want[i])
				}
			}
		})
	}
}

func TestNodePeers(t *testing.T) {
	cfg := &Config{Nodes: []string{"1.2.3.4:9000", "5.6.7.8"}}
	nodes, err := cfg.NodePeers()
	if err != nil {
		t.Fatalf("NodePeers() error = %v", err)
	}
	if nodes[0].Port != "9000" || nodes[1].Port != DefaultNodePort || nodes[1].Host != "5.6.7.8" {
		t.Errorf("nodes = %+v", nodes)
	}

	cfg.Nodes = []string{":8080"}
	if _, err := cfg.NodePeers(); err == nil {
		t.Error("NodePeers() accepted empty host")
	}
}
