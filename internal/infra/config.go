package infra

import (
	"fmt"
	"os"
	"time"

	"gopkg.in/yaml.v3"
)

// Relay transport kinds. HTTP relays differ only in how the offer is
// encoded; socket relays speak a message protocol over websocket.
const (
	RelayKindJSON   = "http-json"
	RelayKindForm   = "http-form"
	RelayKindSocket = "websocket"
)

// RelayConfig describes one configured exchange relay. The relay set is
// assembled once at bootstrap and never mutated afterwards.
type RelayConfig struct {
	Name string `yaml:"name"`
	Kind string `yaml:"kind"`
	URL  string `yaml:"url"`
}

// Config holds the full application configuration, loaded from YAML and
// overridable through environment variables for sensitive values.
type Config struct {
	App struct {
		Name    string `yaml:"name"`
		Version string `yaml:"version"`
	} `yaml:"app"`

	Wallet struct {
		RPCURL     string `yaml:"rpc_url"`
		APIKey     string `yaml:"api_key"`
		TimeoutSec int    `yaml:"timeout_sec"`
	} `yaml:"wallet"`

	Relays []RelayConfig `yaml:"relays"`

	Engine struct {
		PollIntervalSec int    `yaml:"poll_interval_sec"`
		BoundaryPolicy  string `yaml:"boundary_policy"` // hold | retire
	} `yaml:"engine"`

	Storage struct {
		StateDir string `yaml:"state_dir"` // empty = user config dir
		Position string `yaml:"position"`  // db file name stem
	} `yaml:"storage"`

	Logging struct {
		Level string `yaml:"level"`
	} `yaml:"logging"`
}

// LoadConfig reads and parses the configuration file.
func LoadConfig(path string) (*Config, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, err
	}

	var cfg Config
	if err := yaml.Unmarshal(data, &cfg); err != nil {
		return nil, err
	}

	overrideWithEnv(&cfg)
	applyDefaults(&cfg)

	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("invalid configuration: %w", err)
	}

	return &cfg, nil
}

// PollInterval returns the reconciliation interval.
func (c *Config) PollInterval() time.Duration {
	return time.Duration(c.Engine.PollIntervalSec) * time.Second
}

// WalletTimeout returns the wallet RPC request timeout.
func (c *Config) WalletTimeout() time.Duration {
	return time.Duration(c.Wallet.TimeoutSec) * time.Second
}

// Validate checks configuration validity
func (c *Config) Validate() error {
	if c.Wallet.RPCURL == "" || (!hasPrefix(c.Wallet.RPCURL, "http://") && !hasPrefix(c.Wallet.RPCURL, "https://")) {
		return fmt.Errorf("invalid wallet RPC URL: %q", c.Wallet.RPCURL)
	}

	for _, r := range c.Relays {
		switch r.Kind {
		case RelayKindJSON, RelayKindForm:
			if !hasPrefix(r.URL, "http://") && !hasPrefix(r.URL, "https://") {
				return fmt.Errorf("relay %s: invalid HTTP URL: %q", r.Name, r.URL)
			}
		case RelayKindSocket:
			if !hasPrefix(r.URL, "ws://") && !hasPrefix(r.URL, "wss://") {
				return fmt.Errorf("relay %s: invalid websocket URL: %q", r.Name, r.URL)
			}
		default:
			return fmt.Errorf("relay %s: unknown kind %q", r.Name, r.Kind)
		}
	}

	if c.Engine.PollIntervalSec <= 0 {
		return fmt.Errorf("poll interval must be positive")
	}
	if p := c.Engine.BoundaryPolicy; p != "hold" && p != "retire" {
		return fmt.Errorf("unknown boundary policy %q", p)
	}

	return nil
}

func applyDefaults(cfg *Config) {
	if cfg.Engine.PollIntervalSec == 0 {
		cfg.Engine.PollIntervalSec = 30
	}
	if cfg.Engine.BoundaryPolicy == "" {
		cfg.Engine.BoundaryPolicy = "hold"
	}
	if cfg.Wallet.TimeoutSec == 0 {
		cfg.Wallet.TimeoutSec = 30
	}
	if cfg.Storage.Position == "" {
		cfg.Storage.Position = "default"
	}
}

func hasPrefix(s, prefix string) bool {
	return len(s) >= len(prefix) && s[0:len(prefix)] == prefix
}

// overrideWithEnv applies environment variable overrides for secrets.
func overrideWithEnv(cfg *Config) {
	if url := os.Getenv("LIQUIDITY_WALLET_RPC_URL"); url != "" {
		cfg.Wallet.RPCURL = url
	}
	if key := os.Getenv("LIQUIDITY_WALLET_API_KEY"); key != "" {
		cfg.Wallet.APIKey = key
	}
}
