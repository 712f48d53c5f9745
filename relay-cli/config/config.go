package config

import (
	"errors"
	"fmt"
	"net/url"
	"reflect"
	"strconv"
	"strings"
	"time"

	"github.com/ethereum/go-ethereum/common"
	"github.com/go-viper/mapstructure/v2"
	"github.com/spf13/viper"

	"github.com/compose-network/bonsai-relay/x/relay"
)

// AnvilDefaultKey is the first pre-funded account of a local anvil node.
const AnvilDefaultKey = "ac0974bec39a17e36ba4a6b4d238ff944bacb478cbed5efcae784d7bf4f2ff80"

// Config holds the complete CLI configuration.
type Config struct {
	Bonsai  BonsaiConfig  `mapstructure:"bonsai"   yaml:"bonsai"`
	DevMode bool          `mapstructure:"dev_mode" yaml:"dev_mode"`
	Guests  GuestsConfig  `mapstructure:"guests"   yaml:"guests"`
	Relay   RelayConfig   `mapstructure:"relay"    yaml:"relay"`
	Log     LogConfig     `mapstructure:"log"      yaml:"log"`
	Metrics MetricsConfig `mapstructure:"metrics"  yaml:"metrics"`
}

// BonsaiConfig points at the proving service.
type BonsaiConfig struct {
	APIURL       string        `mapstructure:"api_url"       yaml:"api_url"`
	APIKey       string        `mapstructure:"api_key"       yaml:"api_key"`
	Version      string        `mapstructure:"version"       yaml:"version"`
	PollInterval time.Duration `mapstructure:"poll_interval" yaml:"poll_interval"`
	Timeout      time.Duration `mapstructure:"timeout"       yaml:"timeout"`
}

// GuestsConfig locates the guest manifest.
type GuestsConfig struct {
	Manifest string `mapstructure:"manifest" yaml:"manifest"`
}

// RelayConfig holds the settings of the run command.
type RelayConfig struct {
	Address      string            `mapstructure:"address"       yaml:"address"`
	EthNode      string            `mapstructure:"eth_node"      yaml:"eth_node"`
	EthChainID   uint64            `mapstructure:"eth_chain_id"  yaml:"eth_chain_id"`
	PrivateKey   string            `mapstructure:"private_key"   yaml:"private_key"`
	Retry        relay.RetryPolicy `mapstructure:",squash"       yaml:",inline"`
	RestAPI      bool              `mapstructure:"rest_api"      yaml:"rest_api"`
	RestAPIPort  string            `mapstructure:"rest_api_port" yaml:"rest_api_port"`
	ReadyTimeout time.Duration     `mapstructure:"ready_timeout" yaml:"ready_timeout"`
}

// LogConfig holds logging configuration.
type LogConfig struct {
	Level  string `mapstructure:"level"  yaml:"level"`
	Pretty bool   `mapstructure:"pretty" yaml:"pretty"`
}

// MetricsConfig toggles the /metrics route of the relay API.
type MetricsConfig struct {
	Enabled bool `mapstructure:"enabled" yaml:"enabled"`
}

// envBindings maps config keys to the environment variables the relay has
// always read.
var envBindings = map[string]string{
	"bonsai.api_url":                  "BONSAI_API_URL",
	"bonsai.api_key":                  "BONSAI_API_KEY",
	"bonsai.version":                  "BONSAI_VERSION",
	"bonsai.poll_interval":            "BONSAI_POLL_INTERVAL",
	"bonsai.timeout":                  "BONSAI_TIMEOUT",
	"dev_mode":                        "RISC0_DEV_MODE",
	"guests.manifest":                 "GUESTS_MANIFEST",
	"relay.address":                   "RELAY_ADDRESS",
	"relay.eth_node":                  "ETH_NODE",
	"relay.eth_chain_id":              "ETH_CHAIN_ID",
	"relay.private_key":               "PRIVATE_KEY",
	"relay.connection_retry_attempts": "CONNECTION_RETRY_ATTEMPTS",
	"relay.connection_retry_interval": "CONNECTION_RETRY_INTERVAL",
	"log.level":                       "LOG_LEVEL",
	"log.pretty":                      "LOG_PRETTY",
}

// Load reads configuration from defaults, an optional YAML file and the
// environment. An empty configPath skips the file.
func Load(configPath string) (*Config, error) {
	v := viper.New()

	v.SetConfigType("yaml")
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()
	for key, env := range envBindings {
		if err := v.BindEnv(key, env); err != nil {
			return nil, fmt.Errorf("bind %s: %w", env, err)
		}
	}

	setDefaults(v)

	if configPath != "" {
		v.SetConfigFile(configPath)
		if err := v.ReadInConfig(); err != nil {
			return nil, fmt.Errorf("failed to read config file %s: %w", configPath, err)
		}
	}

	var cfg Config
	hook := viper.DecodeHook(mapstructure.ComposeDecodeHookFunc(
		secondsToDurationHook(),
		mapstructure.StringToTimeDurationHookFunc(),
		mapstructure.StringToSliceHookFunc(","),
	))
	if err := v.Unmarshal(&cfg, hook); err != nil {
		return nil, fmt.Errorf("failed to unmarshal config: %w", err)
	}

	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("config validation failed: %w", err)
	}

	return &cfg, nil
}

// secondsToDurationHook accepts bare integers as seconds, so
// CONNECTION_RETRY_INTERVAL=5 means five seconds.
func secondsToDurationHook() mapstructure.DecodeHookFuncType {
	return func(from, to reflect.Type, data any) (any, error) {
		if to != reflect.TypeOf(time.Duration(0)) || from.Kind() != reflect.String {
			return data, nil
		}
		s := strings.TrimSpace(data.(string))
		n, err := strconv.ParseUint(s, 10, 63)
		if err != nil {
			return data, nil
		}
		return time.Duration(n) * time.Second, nil
	}
}

// setDefaults sets default configuration values.
func setDefaults(v *viper.Viper) {
	v.SetDefault("bonsai.api_url", "http://localhost:8081")
	v.SetDefault("bonsai.api_key", "")
	v.SetDefault("bonsai.version", "")
	v.SetDefault("bonsai.poll_interval", "5s")
	v.SetDefault("bonsai.timeout", "30m")

	v.SetDefault("dev_mode", false)
	v.SetDefault("guests.manifest", "guests.yaml")

	v.SetDefault("relay.address", "")
	v.SetDefault("relay.eth_node", "ws://localhost:8545")
	v.SetDefault("relay.eth_chain_id", 31337)
	v.SetDefault("relay.private_key", AnvilDefaultKey)
	v.SetDefault("relay.connection_retry_attempts", relay.DefaultRetryAttempts)
	v.SetDefault("relay.connection_retry_interval", relay.DefaultRetryInterval.String())
	v.SetDefault("relay.rest_api", true)
	v.SetDefault("relay.rest_api_port", "8080")
	v.SetDefault("relay.ready_timeout", relay.DefaultReadyTimeout.String())

	v.SetDefault("log.level", "info")
	v.SetDefault("log.pretty", false)

	v.SetDefault("metrics.enabled", true)
}

// Validate checks settings shared by every command.
func (c *Config) Validate() error {
	if err := c.validateBonsai(); err != nil {
		return err
	}
	if strings.TrimSpace(c.Guests.Manifest) == "" {
		return errors.New("guests.manifest is required")
	}
	if err := c.Relay.Retry.Validate(); err != nil {
		return fmt.Errorf("relay: %w", err)
	}
	if c.Relay.ReadyTimeout < 0 {
		return fmt.Errorf("relay.ready_timeout must not be negative")
	}
	return nil
}

func (c *Config) validateBonsai() error {
	u, err := url.Parse(c.Bonsai.APIURL)
	if err != nil || (u.Scheme != "http" && u.Scheme != "https") || u.Host == "" {
		return fmt.Errorf("bonsai.api_url must be an http(s) URL, got %q", c.Bonsai.APIURL)
	}
	if c.Bonsai.PollInterval <= 0 {
		return fmt.Errorf("bonsai.poll_interval must be positive")
	}
	if c.Bonsai.Timeout <= 0 {
		return fmt.Errorf("bonsai.timeout must be positive")
	}
	return nil
}

// ValidateRun checks the settings the run command needs on top of Validate.
func (c *Config) ValidateRun() error {
	if err := c.Validate(); err != nil {
		return err
	}
	if !common.IsHexAddress(c.Relay.Address) {
		return fmt.Errorf("relay.address must be a hex address, got %q", c.Relay.Address)
	}
	if err := c.ClientConfig().Validate(); err != nil {
		return fmt.Errorf("relay: %w", err)
	}
	if err := c.RelayConfig().Validate(); err != nil {
		return fmt.Errorf("relay: %w", err)
	}
	return nil
}

// ClientConfig builds the node connection handed to the relay.
func (c *Config) ClientConfig() relay.ClientConfig {
	return relay.ClientConfig{
		NodeURL:    c.Relay.EthNode,
		ChainID:    c.Relay.EthChainID,
		PrivateKey: c.Relay.PrivateKey,
		Retry:      c.Relay.Retry,
	}
}

// RelayConfig builds the relay service settings.
func (c *Config) RelayConfig() relay.Config {
	return relay.Config{
		RelayAddress: common.HexToAddress(c.Relay.Address),
		RestAPI:      c.Relay.RestAPI,
		RestAPIPort:  c.Relay.RestAPIPort,
		DevMode:      c.DevMode,
	}
}

// Default returns the default configuration.
func Default() *Config {
	return &Config{
		Bonsai: BonsaiConfig{
			APIURL:       "http://localhost:8081",
			PollInterval: 5 * time.Second,
			Timeout:      30 * time.Minute,
		},
		Guests: GuestsConfig{Manifest: "guests.yaml"},
		Relay: RelayConfig{
			EthNode:      "ws://localhost:8545",
			EthChainID:   31337,
			PrivateKey:   AnvilDefaultKey,
			Retry:        relay.DefaultRetryPolicy(),
			RestAPI:      true,
			RestAPIPort:  "8080",
			ReadyTimeout: relay.DefaultReadyTimeout,
		},
		Log:     LogConfig{Level: "info"},
		Metrics: MetricsConfig{Enabled: true},
	}
}
