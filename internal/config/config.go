// Package config loads the host configuration from a YAML file with an optional .env overlay.
package config

import (
	"encoding/json"
	"os"
	"strconv"
	"time"

	"github.com/go-playground/validator/v10"
	"github.com/joho/godotenv"
	"github.com/rxtech-lab/argo-algo/internal/exchange/binance"
	"github.com/rxtech-lab/argo-algo/internal/host"
	"github.com/rxtech-lab/argo-algo/pkg/errors"
	"github.com/rxtech-lab/argo-algo/pkg/schema"
	"gopkg.in/yaml.v3"
)

// Storage backends.
const (
	StorageSQLite = "sqlite"
	StoragePebble = "pebble"
	StorageNone   = "none"
)

// Environment variables overriding the file.
const (
	EnvLogLevel       = "ARGO_LOG_LEVEL"
	EnvBinanceAPIKey  = "ARGO_BINANCE_API_KEY"
	EnvBinanceSecret  = "ARGO_BINANCE_SECRET_KEY"
	EnvBinanceTestnet = "ARGO_BINANCE_TESTNET"
	EnvStorageBackend = "ARGO_STORAGE_BACKEND"
	EnvStoragePath    = "ARGO_STORAGE_PATH"
	EnvSignalsPath    = "ARGO_SIGNALS_PATH"
	EnvAPIListen      = "ARGO_API_LISTEN"
)

const redactedPlaceholder = "******"

type LogConfig struct {
	Level string `yaml:"level" json:"level" validate:"omitempty,oneof=debug info warn error"`
}

type StorageConfig struct {
	Backend string `yaml:"backend" json:"backend" validate:"oneof=sqlite pebble none"`
	Path    string `yaml:"path" json:"path" validate:"required_unless=Backend none"`
}

// SignalsConfig controls the export of the signal trace.
type SignalsConfig struct {
	Enabled       bool          `yaml:"enabled" json:"enabled"`
	Path          string        `yaml:"path" json:"path" validate:"required_if=Enabled true"`
	FlushInterval time.Duration `yaml:"flush_interval" json:"flushInterval" validate:"gte=0"`
}

type APIConfig struct {
	Enabled bool   `yaml:"enabled" json:"enabled"`
	Listen  string `yaml:"listen" json:"listen" validate:"required_if=Enabled true"`
}

// AlgoConfig is an algo order started when the host starts.
type AlgoConfig struct {
	ID   string         `yaml:"id" json:"id" validate:"required"`
	Args map[string]any `yaml:"args" json:"args"`
}

type Config struct {
	Log      LogConfig      `yaml:"log" json:"log"`
	Exchange binance.Config `yaml:"exchange" json:"exchange"`
	Storage  StorageConfig  `yaml:"storage" json:"storage"`
	Signals  SignalsConfig  `yaml:"signals" json:"signals"`
	Host     host.Config    `yaml:"host" json:"host"`
	API      APIConfig      `yaml:"api" json:"api"`
	Algos    []AlgoConfig   `yaml:"algos" json:"algos" validate:"dive"`
}

// Default returns the configuration used for values the file leaves out.
func Default() Config {
	return Config{
		Log:      LogConfig{Level: "info"},
		Exchange: binance.Config{Testnet: true},
		Storage:  StorageConfig{Backend: StorageSQLite, Path: "./data/algo.db"},
		Signals:  SignalsConfig{Enabled: false, Path: "./data/signals.parquet", FlushInterval: host.DefaultSignalFlushInterval},
		Host:     host.Config{SignalFlushInterval: host.DefaultSignalFlushInterval, TeardownTimeout: host.DefaultTeardownTimeout},
		API:      APIConfig{Enabled: false, Listen: "127.0.0.1:8080"},
		Algos:    nil,
	}
}

// Load reads path, applies the environment overlay and validates the result. envFiles are
// loaded into the environment first; without envFiles a missing .env is ignored.
func Load(path string, envFiles ...string) (*Config, error) {
	if len(envFiles) > 0 {
		if err := godotenv.Load(envFiles...); err != nil {
			return nil, errors.Wrap(errors.ErrCodeInvalidConfiguration, "failed to load env file", err)
		}
	} else {
		// a missing .env is fine
		_ = godotenv.Load()
	}

	cfg := Default()

	if path != "" {
		raw, err := os.ReadFile(path)
		if err != nil {
			return nil, errors.Wrapf(errors.ErrCodeInvalidConfiguration, err, "failed to read config %s", path)
		}

		if err := yaml.Unmarshal(raw, &cfg); err != nil {
			return nil, errors.Wrapf(errors.ErrCodeInvalidConfiguration, err, "failed to parse config %s", path)
		}
	}

	if err := cfg.applyEnv(); err != nil {
		return nil, err
	}

	if cfg.Signals.FlushInterval > 0 {
		cfg.Host.SignalFlushInterval = cfg.Signals.FlushInterval
	}

	if err := cfg.Validate(); err != nil {
		return nil, err
	}

	return &cfg, nil
}

func (c *Config) applyEnv() error {
	if v, ok := os.LookupEnv(EnvLogLevel); ok {
		c.Log.Level = v
	}

	if v, ok := os.LookupEnv(EnvBinanceAPIKey); ok {
		c.Exchange.ApiKey = v
	}

	if v, ok := os.LookupEnv(EnvBinanceSecret); ok {
		c.Exchange.SecretKey = v
	}

	if v, ok := os.LookupEnv(EnvBinanceTestnet); ok {
		testnet, err := strconv.ParseBool(v)
		if err != nil {
			return errors.Wrapf(errors.ErrCodeInvalidConfiguration, err, "invalid %s", EnvBinanceTestnet)
		}

		c.Exchange.Testnet = testnet
	}

	if v, ok := os.LookupEnv(EnvStorageBackend); ok {
		c.Storage.Backend = v
	}

	if v, ok := os.LookupEnv(EnvStoragePath); ok {
		c.Storage.Path = v
	}

	if v, ok := os.LookupEnv(EnvSignalsPath); ok {
		c.Signals.Path = v
		c.Signals.Enabled = v != ""
	}

	if v, ok := os.LookupEnv(EnvAPIListen); ok {
		c.API.Listen = v
		c.API.Enabled = v != ""
	}

	return nil
}

// Validate checks every section. Exchange keys are checked separately by ValidateExchange
// since commands without a live connection do not need them.
func (c *Config) Validate() error {
	validate := validator.New()

	if err := validate.StructExcept(c, "Exchange"); err != nil {
		return errors.Wrap(errors.ErrCodeInvalidConfiguration, "invalid config", err)
	}

	return nil
}

// ValidateExchange validates the exchange section.
func (c *Config) ValidateExchange() error {
	return c.Exchange.Validate()
}

// Redacted returns the configuration as a generic map with secrets masked.
func (c *Config) Redacted() (map[string]any, error) {
	raw, err := json.Marshal(c)
	if err != nil {
		return nil, errors.Wrap(errors.ErrCodeSerializeFailed, "failed to encode config", err)
	}

	var out map[string]any
	if err := json.Unmarshal(raw, &out); err != nil {
		return nil, errors.Wrap(errors.ErrCodeSerializeFailed, "failed to decode config", err)
	}

	if exchange, ok := out["exchange"].(map[string]any); ok {
		for _, field := range schema.GetKeychainFields(c.Exchange) {
			if v, ok := exchange[field].(string); ok && v != "" {
				exchange[field] = redactedPlaceholder
			}
		}
	}

	return out, nil
}
