package indicator

import (
	"sort"
	"sync"

	"github.com/rxtech-lab/argo-algo/internal/types"
	"github.com/rxtech-lab/argo-algo/pkg/errors"
)

// Factory builds a fresh, unconfigured indicator.
type Factory func() Indicator

// IndicatorRegistry maps indicator names to factories. Every instance gets its own indicator objects.
type IndicatorRegistry interface {
	RegisterIndicator(name types.IndicatorType, factory Factory) error
	// NewIndicator builds and configures an indicator by name
	NewIndicator(name types.IndicatorType, params ...any) (Indicator, error)
	ListIndicators() []types.IndicatorType
	RemoveIndicator(name types.IndicatorType) error
}

// IndicatorRegistryV1 manages all available indicators.
type IndicatorRegistryV1 struct {
	factories map[types.IndicatorType]Factory
	mu        sync.RWMutex
}

// NewIndicatorRegistry creates an empty indicator registry.
func NewIndicatorRegistry() IndicatorRegistry {
	return &IndicatorRegistryV1{
		factories: make(map[types.IndicatorType]Factory),
		mu:        sync.RWMutex{},
	}
}

// NewDefaultRegistry returns a registry with MA, EMA and Bollinger Bands registered.
func NewDefaultRegistry() IndicatorRegistry {
	r := NewIndicatorRegistry()
	_ = r.RegisterIndicator(types.IndicatorTypeMA, NewMA)
	_ = r.RegisterIndicator(types.IndicatorTypeEMA, NewEMA)
	_ = r.RegisterIndicator(types.IndicatorTypeBollingerBands, NewBollingerBands)

	return r
}

// RegisterIndicator adds a factory to the registry.
func (r *IndicatorRegistryV1) RegisterIndicator(name types.IndicatorType, factory Factory) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	if _, exists := r.factories[name]; exists {
		return errors.Newf(errors.ErrCodeIndicatorAlreadyExists, "indicator with name %s already registered", name)
	}

	r.factories[name] = factory

	return nil
}

// NewIndicator builds an indicator by name and applies params through Config.
func (r *IndicatorRegistryV1) NewIndicator(name types.IndicatorType, params ...any) (Indicator, error) {
	r.mu.RLock()
	factory, exists := r.factories[name]
	r.mu.RUnlock()

	if !exists {
		return nil, errors.Newf(errors.ErrCodeIndicatorNotFound, "indicator with name %s not found", name)
	}

	ind := factory()
	if len(params) > 0 {
		if err := ind.Config(params...); err != nil {
			return nil, errors.Wrapf(errors.ErrCodeInvalidParameter, err, "failed to configure %s", name)
		}
	}

	return ind, nil
}

// ListIndicators returns the registered indicator names in sorted order.
func (r *IndicatorRegistryV1) ListIndicators() []types.IndicatorType {
	r.mu.RLock()
	defer r.mu.RUnlock()

	names := make([]types.IndicatorType, 0, len(r.factories))
	for name := range r.factories {
		names = append(names, name)
	}

	sort.Slice(names, func(i, j int) bool { return names[i] < names[j] })

	return names
}

// RemoveIndicator removes an indicator from the registry.
func (r *IndicatorRegistryV1) RemoveIndicator(name types.IndicatorType) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	if _, exists := r.factories[name]; !exists {
		return errors.Newf(errors.ErrCodeIndicatorNotFound, "indicator with name %s not found", name)
	}

	delete(r.factories, name)

	return nil
}
