// Package config loads the relay configuration from YAML with environment
// overrides. Chain identity (families, numeric ids) is compiled into the
// chains package; config only supplies the per-chain endpoints and
// contract/program addresses for those registered names.
package config

import (
	"fmt"
	"os"
	"strconv"
	"strings"

	"gopkg.in/yaml.v3"
)

// Config is the application configuration.
type Config struct {
	Server   ServerConfig           `yaml:"server"`
	Database DatabaseConfig         `yaml:"database"`
	NATS     NATSConfig             `yaml:"nats"`
	Auth     AuthConfig             `yaml:"auth"`
	Cache    CacheConfig            `yaml:"cache"`
	Chains   map[string]ChainConfig `yaml:"chains"`
}

// ServerConfig is the HTTP server configuration.
type ServerConfig struct {
	Host string `yaml:"host"`
	Port int    `yaml:"port"`
}

// DatabaseConfig is the persistent store configuration.
type DatabaseConfig struct {
	DSN string `yaml:"dsn"`
}

// NATSConfig is the notification bus configuration.
type NATSConfig struct {
	URL         string `yaml:"url"`
	Enabled     bool   `yaml:"enabled"`
	SubjectBase string `yaml:"subjectBase"`
}

// AuthConfig configures wallet-signature sessions.
type AuthConfig struct {
	JWTSecret       string `yaml:"jwtSecret"`
	TokenTTLMinutes int    `yaml:"tokenTTLMinutes"`
}

// CacheConfig bounds the id-resolution cache.
type CacheConfig struct {
	IDCapacity int `yaml:"idCapacity"`
}

// ChainConfig is the injected collaborator config for one registered chain.
type ChainConfig struct {
	RPCEndpoint string `yaml:"rpcEndpoint"`
	// Contract is the payables contract address (EVM), program id (Solana)
	// or contract bech32 address (Cosmwasm).
	Contract string `yaml:"contract"`
	// RESTEndpoint is the LCD endpoint for Cosmwasm smart queries.
	RESTEndpoint string `yaml:"restEndpoint"`
	Enabled      bool   `yaml:"enabled"`
}

// AppConfig is the loaded configuration.
var AppConfig *Config

// Load reads configPath (default config.yaml, preferring config.local.yaml
// when present), applies environment overrides and sets AppConfig.
func Load(configPath string) (*Config, error) {
	if configPath == "" {
		configPath = "config.yaml"
		if _, err := os.Stat("config.local.yaml"); err == nil {
			configPath = "config.local.yaml"
		}
	}

	data, err := os.ReadFile(configPath)
	if err != nil {
		return nil, fmt.Errorf("failed to read config file: %w", err)
	}

	var cfg Config
	if err := yaml.Unmarshal(data, &cfg); err != nil {
		return nil, fmt.Errorf("failed to parse config file: %w", err)
	}

	overrideFromEnv(&cfg)

	if cfg.Server.Port == 0 {
		cfg.Server.Port = 8080
	}
	if cfg.Auth.TokenTTLMinutes == 0 {
		cfg.Auth.TokenTTLMinutes = 24 * 60
	}
	if cfg.NATS.SubjectBase == "" {
		cfg.NATS.SubjectBase = "payables"
	}

	AppConfig = &cfg
	return &cfg, nil
}

func overrideFromEnv(cfg *Config) {
	if dsn := os.Getenv("DATABASE_DSN"); dsn != "" {
		cfg.Database.DSN = dsn
	}
	if host := os.Getenv("SERVER_HOST"); host != "" {
		cfg.Server.Host = host
	}
	if port := os.Getenv("SERVER_PORT"); port != "" {
		if p, err := strconv.Atoi(port); err == nil {
			cfg.Server.Port = p
		}
	}
	if natsURL := os.Getenv("NATS_URL"); natsURL != "" {
		cfg.NATS.URL = natsURL
		cfg.NATS.Enabled = true
	}
	if secret := os.Getenv("JWT_SECRET"); secret != "" {
		cfg.Auth.JWTSecret = secret
	}

	// Per-chain overrides, e.g. SOLANA_RPC_ENDPOINT, ETHSEPOLIA_CONTRACT.
	for name, cc := range cfg.Chains {
		prefix := strings.ToUpper(name)
		if rpc := os.Getenv(prefix + "_RPC_ENDPOINT"); rpc != "" {
			cc.RPCEndpoint = rpc
		}
		if contract := os.Getenv(prefix + "_CONTRACT"); contract != "" {
			cc.Contract = contract
		}
		if rest := os.Getenv(prefix + "_REST_ENDPOINT"); rest != "" {
			cc.RESTEndpoint = rest
		}
		cfg.Chains[name] = cc
	}
}

// ChainFor returns the config block for a registered chain name.
func (c *Config) ChainFor(name string) (ChainConfig, error) {
	cc, ok := c.Chains[name]
	if !ok {
		return ChainConfig{}, fmt.Errorf("chain %q not present in config", name)
	}
	if !cc.Enabled {
		return ChainConfig{}, fmt.Errorf("chain %q is disabled", name)
	}
	return cc, nil
}
