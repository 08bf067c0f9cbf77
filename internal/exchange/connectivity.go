// Package exchange defines the connectivity contract between the host and an exchange.
package exchange

import (
	"context"
	"sort"

	"github.com/rxtech-lab/argo-algo/internal/exchange/binance"
	"github.com/rxtech-lab/argo-algo/internal/types"
	"github.com/rxtech-lab/argo-algo/pkg/errors"
	"github.com/rxtech-lab/argo-algo/pkg/schema"
)

// Connectivity submits and cancels child orders, manages market data subscriptions and
// delivers order lifecycle, account and market data events.
type Connectivity interface {
	// SubmitOrder places order and returns it as acknowledged by the exchange.
	SubmitOrder(ctx context.Context, order types.Order) (types.Order, error)
	// CancelOrder cancels one order by its client id.
	CancelOrder(ctx context.Context, order types.Order) error
	// CancelOrdersByGID cancels every open order carrying gid.
	CancelOrdersByGID(ctx context.Context, gid int64) error
	Subscribe(ctx context.Context, ch types.Channel) error
	Unsubscribe(ctx context.Context, ch types.Channel) error
	// Events is closed once the connection is closed.
	Events() <-chan types.ExchangeEvent
	Close() error
}

type ProviderType string

const (
	ProviderBinancePaper ProviderType = "binance-paper"
	ProviderBinanceLive  ProviderType = "binance-live"
)

type ProviderInfo struct {
	Name           string `json:"name"`
	DisplayName    string `json:"displayName"`
	Description    string `json:"description"`
	IsPaperTrading bool   `json:"isPaperTrading"`
}

var providerRegistry = map[ProviderType]ProviderInfo{
	ProviderBinancePaper: {
		Name:           string(ProviderBinancePaper),
		DisplayName:    "Binance Testnet",
		Description:    "Binance spot testnet, runs algo orders without real funds",
		IsPaperTrading: true,
	},
	ProviderBinanceLive: {
		Name:           string(ProviderBinanceLive),
		DisplayName:    "Binance Live",
		Description:    "Binance spot, runs algo orders with real funds",
		IsPaperTrading: false,
	},
}

// GetSupportedProviders returns the provider names, sorted.
func GetSupportedProviders() []string {
	providers := make([]string, 0, len(providerRegistry))
	for providerType := range providerRegistry {
		providers = append(providers, string(providerType))
	}

	sort.Strings(providers)

	return providers
}

// GetProviderInfo returns metadata for a specific provider.
func GetProviderInfo(providerName string) (ProviderInfo, error) {
	info, exists := providerRegistry[ProviderType(providerName)]
	if !exists {
		return ProviderInfo{}, errors.Newf(errors.ErrCodeInvalidConfiguration, "unsupported exchange provider: %s", providerName)
	}

	return info, nil
}

// GetProviderConfigSchema returns the JSON schema of a provider's configuration.
func GetProviderConfigSchema(providerName string) (string, error) {
	switch ProviderType(providerName) {
	case ProviderBinancePaper, ProviderBinanceLive:
		//nolint:exhaustruct // Empty struct is intentional for schema generation
		return schema.ToJSONSchema(binance.Config{})
	default:
		return "", errors.Newf(errors.ErrCodeInvalidConfiguration, "unsupported exchange provider: %s", providerName)
	}
}

// GetProviderKeychainFields returns the secret fields of a provider's configuration.
func GetProviderKeychainFields(providerName string) ([]string, error) {
	switch ProviderType(providerName) {
	case ProviderBinancePaper, ProviderBinanceLive:
		//nolint:exhaustruct // Empty struct is intentional for field introspection
		return schema.GetKeychainFields(binance.Config{}), nil
	default:
		return nil, errors.Newf(errors.ErrCodeInvalidConfiguration, "unsupported exchange provider: %s", providerName)
	}
}

// ProviderFor returns the provider matching the testnet switch of a configuration.
func ProviderFor(config binance.Config) ProviderType {
	if config.Testnet {
		return ProviderBinancePaper
	}

	return ProviderBinanceLive
}

// New connects to the exchange named by providerType.
func New(ctx context.Context, providerType ProviderType, config binance.Config, opts ...binance.Option) (Connectivity, error) {
	switch providerType {
	case ProviderBinancePaper:
		config.Testnet = true
	case ProviderBinanceLive:
		config.Testnet = false
	default:
		return nil, errors.Newf(errors.ErrCodeInvalidConfiguration, "unsupported exchange provider: %s", providerType)
	}

	conn, err := binance.New(ctx, config, opts...)
	if err != nil {
		return nil, err
	}

	return conn, nil
}

var _ Connectivity = (*binance.Connectivity)(nil)
