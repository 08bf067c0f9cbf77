package binance

import (
	"encoding/json"

	"github.com/go-playground/validator/v10"
	"github.com/rxtech-lab/argo-algo/pkg/errors"
)

const (
	// DefaultOrdersPerSecond stays well below the spot order rate limit.
	DefaultOrdersPerSecond = 5
	// DefaultCandleSnapshotSize is the number of historical candles sent on a candle subscription.
	DefaultCandleSnapshotSize = 200
)

// Config contains the configuration of the Binance connectivity.
type Config struct {
	ApiKey    string `yaml:"api_key" json:"apiKey" jsonschema:"title=API Key,description=Binance API key" keychain:"true" validate:"required"`
	SecretKey string `yaml:"secret_key" json:"secretKey" jsonschema:"title=Secret Key,description=Binance API secret key" keychain:"true" validate:"required"`
	// BaseURL overrides the REST endpoint; it takes precedence over Testnet.
	BaseURL string `yaml:"base_url" json:"baseUrl,omitempty" jsonschema:"title=Base URL,description=Override of the REST endpoint"`
	// StreamURL overrides the user data stream endpoint, e.g. wss://stream.binance.com:9443/ws.
	StreamURL          string  `yaml:"stream_url" json:"streamUrl,omitempty" jsonschema:"title=Stream URL,description=Override of the user data stream endpoint"`
	Testnet            bool    `yaml:"testnet" json:"testnet" jsonschema:"title=Testnet,description=Use the Binance spot testnet,default=true"`
	OrdersPerSecond    float64 `yaml:"orders_per_second" json:"ordersPerSecond,omitempty" jsonschema:"title=Orders per second,description=REST request rate limit,minimum=0" validate:"gte=0"`
	CandleSnapshotSize int     `yaml:"candle_snapshot_size" json:"candleSnapshotSize,omitempty" jsonschema:"title=Candle snapshot size,description=Historical candles sent when subscribing to candles,minimum=0,maximum=1000" validate:"gte=0,lte=1000"`
}

// Validate validates the Config struct.
func (c *Config) Validate() error {
	validate := validator.New()
	if err := validate.Struct(c); err != nil {
		return errors.Wrap(errors.ErrCodeInvalidConfiguration, "invalid binance config", err)
	}

	return nil
}

func (c Config) ordersPerSecond() float64 {
	if c.OrdersPerSecond > 0 {
		return c.OrdersPerSecond
	}

	return DefaultOrdersPerSecond
}

func (c Config) candleSnapshotSize() int {
	if c.CandleSnapshotSize > 0 {
		return c.CandleSnapshotSize
	}

	return DefaultCandleSnapshotSize
}

func (c Config) streamURL() string {
	if c.StreamURL != "" {
		return c.StreamURL
	}

	if c.Testnet {
		return "wss://stream.testnet.binance.vision/ws"
	}

	return "wss://stream.binance.com:9443/ws"
}

// ParseConfig parses a JSON configuration string into a Config.
func ParseConfig(jsonConfig string) (*Config, error) {
	var config Config
	if err := json.Unmarshal([]byte(jsonConfig), &config); err != nil {
		return nil, errors.Wrap(errors.ErrCodeInvalidConfiguration, "failed to parse binance config", err)
	}

	if err := config.Validate(); err != nil {
		return nil, err
	}

	return &config, nil
}
