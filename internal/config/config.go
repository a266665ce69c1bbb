// Package config loads service configuration from the environment.
package config

import (
	"time"

	"github.com/kelseyhightower/envconfig"
)

type Config struct {
	ListenAddr   string `envconfig:"LISTEN_ADDR" default:":9090"`
	DatabasePath string `envconfig:"DATABASE_PATH" default:"data/tokengate.db"`

	DiscordToken string `envconfig:"DISCORD_TOKEN"`

	EthereumNode    string `envconfig:"ETHEREUM_NODE"`
	ExplorerURL     string `envconfig:"EXPLORER_URL"`
	DefaultContract string `envconfig:"DEFAULT_CONTRACT"`
	RegistryURL     string `envconfig:"REGISTRY_URL"`

	// ChainPrefix is the bech32 human-readable prefix signers are expected
	// to use for offline-sign (scheme B) bindings.
	ChainPrefix string `envconfig:"CHAIN_PREFIX" default:"rebus"`

	VerifyInterval time.Duration `envconfig:"INTERVAL_VERIFY_USERS" default:"60s"`
	CallTimeout    time.Duration `envconfig:"CALL_TIMEOUT" default:"10s"`
}

func Load() (Config, error) {
	var cfg Config
	if err := envconfig.Process("", &cfg); err != nil {
		return Config{}, err
	}
	return cfg, nil
}
