// Package portfolio computes the current total portfolio value used
// for position sizing (§4.2).
package portfolio

import (
	"context"
	"fmt"
	"sync"

	"github.com/rs/zerolog"

	"github.com/jayanthsaib/stock-agent/internal/broker"
)

// Config controls simulation vs. live valuation.
type Config struct {
	SimulationEnabled bool
	VirtualBalance    float64
}

// Valuator returns the current portfolio value. In simulation mode it
// always returns the configured virtual balance; in live mode it
// queries the broker for cash and mark-to-market holdings, caches the
// result, and falls back to the last good value (or the configured
// fallback) on failure.
type Valuator struct {
	cfg    Config
	broker broker.Broker
	log    zerolog.Logger

	mu          sync.Mutex
	cachedValue float64
	hasCached   bool
}

// New builds a Valuator.
func New(cfg Config, b broker.Broker, log zerolog.Logger) *Valuator {
	return &Valuator{
		cfg:    cfg,
		broker: b,
		log:    log.With().Str("component", "portfolio").Logger(),
	}
}

// Refresh recomputes and caches the portfolio value. In simulation
// mode it is a no-op that always reports the virtual balance.
func (v *Valuator) Refresh(ctx context.Context) (float64, error) {
	if v.cfg.SimulationEnabled {
		return v.cfg.VirtualBalance, nil
	}

	cash, err := v.broker.AvailableCash(ctx)
	if err != nil {
		return v.fallback(fmt.Errorf("available cash: %w", err))
	}

	holdings, err := v.broker.Holdings(ctx)
	if err != nil {
		return v.fallback(fmt.Errorf("holdings: %w", err))
	}

	total := cash
	for _, h := range holdings {
		total += float64(h.Quantity) * h.LastPrice
	}

	v.mu.Lock()
	v.cachedValue = total
	v.hasCached = true
	v.mu.Unlock()

	return total, nil
}

func (v *Valuator) fallback(cause error) (float64, error) {
	v.mu.Lock()
	defer v.mu.Unlock()

	if v.hasCached {
		v.log.Warn().Err(cause).Float64("cached_value", v.cachedValue).Msg("valuation failed, using cached value")
		return v.cachedValue, nil
	}

	v.log.Warn().Err(cause).Float64("fallback_value", v.cfg.VirtualBalance).Msg("valuation failed, no cached value, using configured fallback")
	return v.cfg.VirtualBalance, nil
}

// Current returns the last value computed by Refresh, without
// triggering a new broker call.
func (v *Valuator) Current() float64 {
	v.mu.Lock()
	defer v.mu.Unlock()
	if v.hasCached {
		return v.cachedValue
	}
	return v.cfg.VirtualBalance
}
