package geocode

import (
	"fmt"

	"eventmap/internal/config"
	appLog "eventmap/internal/log"
)

// NewProviderFromConfig builds one bare provider. A Google provider with a
// missing or placeholder key yields ErrNotConfigured.
func NewProviderFromConfig(pc config.ProviderConfig, gc config.GeocodingConfig) (Provider, error) {
	switch pc.Type {
	case config.ProviderGoogle:
		if config.IsPlaceholder(pc.APIKey) {
			return nil, fmt.Errorf("google: %w: api_key is missing or a placeholder", ErrNotConfigured)
		}
		return NewGoogle(pc.BaseURL, pc.APIKey, gc.Timeout), nil
	case config.ProviderNominatim:
		return NewNominatim(pc.BaseURL, pc.UserAgent, pc.RatePerSecond, pc.Burst, gc.Timeout), nil
	case config.ProviderPostcodesIO:
		return NewPostcodesIO(pc.BaseURL, gc.Timeout), nil
	case "":
		return nil, fmt.Errorf("geocoding.providers[].type is required")
	default:
		return nil, fmt.Errorf("unknown geocoding provider: %s", pc.Type)
	}
}

// NewChainFromConfig builds the configured providers in order, each counted in
// metrics and retried on transient failures. Providers that cannot be built
// are skipped with a warning; the chain may end up empty.
func NewChainFromConfig(gc config.GeocodingConfig) *Chain {
	var ps []Provider
	for i, pc := range gc.Providers {
		p, err := NewProviderFromConfig(pc, gc)
		if err != nil {
			appLog.Warn("geocoding provider skipped", "index", i, "type", pc.Type, "reason", err.Error())
			continue
		}
		ps = append(ps, WithRetry(Instrument(p), gc.MaxRetries, gc.Backoff, gc.MaxBackoff))
	}
	c := NewChain(ps...)
	appLog.Info("geocoding providers", "chain", c.Describe())
	return c
}
