package auth

import (
	"encoding/json"
	"errors"
	"fmt"
	"sort"
	"strings"
	"sync"
)

var ErrUnknownProvider = errors.New("unknown auth provider")

// ProviderConfig names a registered provider and carries its JSON config.
type ProviderConfig struct {
	Type   string          `yaml:"type" json:"type"`
	Config json.RawMessage `yaml:"config" json:"config"`
}

// ValidatorFactory builds a validator from a provider's JSON config.
type ValidatorFactory func(config json.RawMessage) (Validator, error)

var providers = struct {
	sync.RWMutex
	byType map[string]ValidatorFactory
}{byType: map[string]ValidatorFactory{}}

func normalizeType(t string) string { return strings.ToLower(strings.TrimSpace(t)) }

// RegisterProvider makes a factory available under providerType. Providers
// register themselves from init, so the binary picks them with a blank import.
func RegisterProvider(providerType string, factory ValidatorFactory) {
	providers.Lock()
	defer providers.Unlock()
	providers.byType[normalizeType(providerType)] = factory
}

func NewValidator(pc ProviderConfig) (Validator, error) {
	providers.RLock()
	factory, ok := providers.byType[normalizeType(pc.Type)]
	providers.RUnlock()
	if !ok {
		return nil, fmt.Errorf("%w: %q (registered: %s)", ErrUnknownProvider, pc.Type, strings.Join(ListProviders(), ", "))
	}
	v, err := factory(pc.Config)
	if err != nil {
		return nil, fmt.Errorf("auth provider %s: %w", normalizeType(pc.Type), err)
	}
	return v, nil
}

// ListProviders returns the registered provider types, sorted.
func ListProviders() []string {
	providers.RLock()
	defer providers.RUnlock()
	out := make([]string, 0, len(providers.byType))
	for name := range providers.byType {
		out = append(out, name)
	}
	sort.Strings(out)
	return out
}
