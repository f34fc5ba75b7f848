// Package ingestion implements the Data Ingestion component (§4.3):
// the two-phase universe scan that builds the stock-snapshot store and
// macro snapshot every other component reads from.
package ingestion

import (
	"context"
	"sort"
	"strings"
	"sync"
	"sync/atomic"
	"time"

	"github.com/rs/zerolog"

	"github.com/jayanthsaib/stock-agent/internal/broker"
	"github.com/jayanthsaib/stock-agent/internal/domain"
	"github.com/jayanthsaib/stock-agent/internal/events"
	"github.com/jayanthsaib/stock-agent/internal/instruments"
	"github.com/jayanthsaib/stock-agent/internal/portfolio"
)

const (
	historySemaphoreSize = 10
	historyLookbackDays  = 365
	phase2Deadline       = 10 * time.Minute
)

// Config is the "filters" and "macro" threshold group Data Ingestion
// consumes directly.
type Config struct {
	MinStockPrice       float64
	MinAvgDailyVolume   float64
	MaxAnalysisUniverse int
	Watchlist           []string

	VIXHardCeiling float64
	VIXCaution     float64
	VIXFavorable   float64
}

// Ingestor runs refresh_all. It is not reentrant: a concurrent second
// call observes the in-progress flag and returns immediately.
type Ingestor struct {
	cfg       Config
	registry  *instruments.Registry
	broker    broker.Broker
	valuator  *portfolio.Valuator
	index     IndexProvider
	store     *Store
	eventBus  *events.Manager
	log       zerolog.Logger

	refreshing atomic.Bool
}

// New builds an Ingestor.
func New(cfg Config, registry *instruments.Registry, b broker.Broker, valuator *portfolio.Valuator, index IndexProvider, eventBus *events.Manager, log zerolog.Logger) *Ingestor {
	return &Ingestor{
		cfg:      cfg,
		registry: registry,
		broker:   b,
		valuator: valuator,
		index:    index,
		store:    NewStore(),
		eventBus: eventBus,
		log:      log.With().Str("component", "ingestion").Logger(),
	}
}

// Store exposes the published snapshot store for downstream readers.
func (i *Ingestor) Store() *Store { return i.store }

// Refreshing reports whether a RefreshAll call is currently in flight,
// so the 09:15 signal cycle (§4.10) can wait on a still-running 08:45
// ingestion refresh instead of racing it.
func (i *Ingestor) Refreshing() bool { return i.refreshing.Load() }

// RefreshAll runs the pre-market pipeline. A concurrent call while one
// is already in flight is a no-op and returns nil immediately.
func (i *Ingestor) RefreshAll(ctx context.Context) error {
	if !i.refreshing.CompareAndSwap(false, true) {
		i.log.Warn().Msg("refresh already in progress, skipping")
		return nil
	}
	defer i.refreshing.Store(false)

	start := time.Now()
	i.eventBus.Emit(events.IngestionStarted, "ingestion", nil)

	if _, err := i.valuator.Refresh(ctx); err != nil {
		i.log.Warn().Err(err).Msg("portfolio valuation failed during refresh")
	}

	candidates := i.phase1(ctx)
	candidates = i.applyUniverseCap(candidates)

	stocks, partial := i.phase2(ctx, candidates)

	macro := i.buildMacroSnapshot(ctx, time.Now())

	i.store.Publish(stocks, macro)

	eventType := events.IngestionCompleted
	if partial {
		eventType = events.IngestionPartial
	}
	i.eventBus.Emit(eventType, "ingestion", map[string]interface{}{
		"candidates":     len(candidates),
		"published":      len(stocks),
		"duration_ms":    time.Since(start).Milliseconds(),
		"regime":         macro.Regime,
		"buys_suppressed": macro.NewBuysSuppressed,
	})

	return nil
}

// watchlistSet returns the configured watchlist as an uppercase set.
func (i *Ingestor) watchlistSet() map[string]bool {
	set := make(map[string]bool, len(i.cfg.Watchlist))
	for _, s := range i.cfg.Watchlist {
		set[strings.ToUpper(s)] = true
	}
	return set
}

// phase1 resolves every equity symbol on every enabled exchange,
// batch-quotes them in groups of up to 250 tokens, and keeps a symbol
// iff it clears the price/volume floor or is watchlisted. Quote-batch
// errors are logged and the batch is skipped, not the whole phase.
func (i *Ingestor) phase1(ctx context.Context) []domain.Instrument {
	watch := i.watchlistSet()

	var watchlisted, filtered []domain.Instrument
	for _, exchange := range i.registry.ActiveExchanges() {
		instrumentsOn := i.registry.SymbolsOn(exchange)
		for start := 0; start < len(instrumentsOn); start += broker250BatchSize {
			end := start + broker250BatchSize
			if end > len(instrumentsOn) {
				end = len(instrumentsOn)
			}
			batch := instrumentsOn[start:end]

			tokens := make([]string, len(batch))
			for idx, inst := range batch {
				tokens[idx] = inst.Token
			}

			quotes, err := i.broker.BatchQuote(ctx, exchange, tokens)
			if err != nil {
				i.log.Warn().Err(err).Str("exchange", string(exchange)).Msg("quote batch failed, skipping batch")
				continue
			}

			for _, inst := range batch {
				q, ok := quotes[inst.Token]
				if !ok {
					continue
				}
				if watch[inst.Symbol] {
					watchlisted = append(watchlisted, inst)
					continue
				}
				if q.LastPrice >= i.cfg.MinStockPrice && q.TotalTradedValue >= i.cfg.MinAvgDailyVolume {
					filtered = append(filtered, inst)
				}
			}
		}
	}

	return append(watchlisted, filtered...)
}

const broker250BatchSize = 250

// applyUniverseCap truncates candidates to MaxAnalysisUniverse,
// preserving the watchlist prefix produced by phase1.
func (i *Ingestor) applyUniverseCap(candidates []domain.Instrument) []domain.Instrument {
	if i.cfg.MaxAnalysisUniverse <= 0 || len(candidates) <= i.cfg.MaxAnalysisUniverse {
		return candidates
	}
	return candidates[:i.cfg.MaxAnalysisUniverse]
}

// phase2 fetches ~1 year of daily history per candidate with
// concurrency bounded by a size-10 semaphore and an overall 10-minute
// deadline. A candidate is admitted iff its 20-day average traded
// value clears the threshold or it is watchlisted; on deadline
// expiry the partial result is returned with partial=true.
func (i *Ingestor) phase2(ctx context.Context, candidates []domain.Instrument) (map[string]domain.StockSnapshot, bool) {
	watch := i.watchlistSet()

	deadlineCtx, cancel := context.WithTimeout(ctx, phase2Deadline)
	defer cancel()

	sem := make(chan struct{}, historySemaphoreSize)
	var mu sync.Mutex
	results := make(map[string]domain.StockSnapshot, len(candidates))

	var wg sync.WaitGroup
	for _, inst := range candidates {
		inst := inst
		wg.Add(1)
		go func() {
			defer wg.Done()
			select {
			case sem <- struct{}{}:
			case <-deadlineCtx.Done():
				return
			}
			defer func() { <-sem }()

			snap, ok := i.fetchSnapshot(deadlineCtx, inst, watch[inst.Symbol])
			if !ok {
				return
			}
			mu.Lock()
			results[inst.Symbol] = snap
			mu.Unlock()
		}()
	}

	done := make(chan struct{})
	go func() {
		wg.Wait()
		close(done)
	}()

	select {
	case <-done:
		return results, false
	case <-deadlineCtx.Done():
		i.log.Warn().Int("fetched", len(results)).Int("candidates", len(candidates)).Msg("phase 2 deadline expired, publishing partial snapshot store")
		mu.Lock()
		defer mu.Unlock()
		return results, true
	}
}

func (i *Ingestor) fetchSnapshot(ctx context.Context, inst domain.Instrument, watchlisted bool) (domain.StockSnapshot, bool) {
	to := time.Now()
	from := to.AddDate(0, 0, -historyLookbackDays)

	bars, err := i.broker.HistoricalOHLCV(ctx, inst.Exchange, inst.Token, from, to)
	if err != nil || len(bars) == 0 {
		return domain.StockSnapshot{}, false
	}

	sort.Slice(bars, func(a, b int) bool { return bars[a].Timestamp.Before(bars[b].Timestamp) })

	avgVolume20D := avgTradedValue(bars, 20)
	if !watchlisted && avgVolume20D < i.cfg.MinAvgDailyVolume {
		return domain.StockSnapshot{}, false
	}

	last := bars[len(bars)-1]
	return domain.StockSnapshot{
		Symbol:       inst.Symbol,
		Exchange:     inst.Exchange,
		LastPrice:    last.Close,
		Today:        last,
		AvgVolume20D: avgVolume20D,
		Bars:         bars,
		FetchedAt:    time.Now(),
	}, true
}

// avgTradedValue averages close*volume over the trailing n bars (or
// fewer if the series is shorter).
func avgTradedValue(bars []domain.Bar, n int) float64 {
	if len(bars) == 0 {
		return 0
	}
	if n > len(bars) {
		n = len(bars)
	}
	window := bars[len(bars)-n:]
	var sum float64
	for _, b := range window {
		sum += b.Close * float64(b.Volume)
	}
	return sum / float64(len(window))
}
