package relay

import (
	"fmt"

	"liquidity_go/internal/domain"
	"liquidity_go/internal/infra"
)

// Build assembles the full relay set from configuration. The returned slice
// is complete before the engine is instantiated and never mutated at
// runtime.
func Build(cfgs []infra.RelayConfig) ([]domain.Relay, error) {
	relays := make([]domain.Relay, 0, len(cfgs))
	for _, cfg := range cfgs {
		switch cfg.Kind {
		case infra.RelayKindJSON:
			relays = append(relays, NewHTTPJSON(cfg.Name, cfg.URL))
		case infra.RelayKindForm:
			relays = append(relays, NewHTTPForm(cfg.Name, cfg.URL))
		case infra.RelayKindSocket:
			relays = append(relays, NewSocket(cfg.Name, cfg.URL))
		default:
			return nil, fmt.Errorf("relay %s: unknown kind %q", cfg.Name, cfg.Kind)
		}
	}
	return relays, nil
}
