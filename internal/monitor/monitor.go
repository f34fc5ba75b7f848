// Package monitor implements the Position Monitor (§4.9): a
// fixed-interval tick over every EXECUTED position that enforces
// stop-loss and drawdown exits autonomously, raises trailing stops,
// and surfaces target-reached and partial-profit notices for the
// operator to act on.
package monitor

import (
	"context"
	"fmt"
	"time"

	"github.com/rs/zerolog"

	"github.com/jayanthsaib/stock-agent/internal/broker"
	"github.com/jayanthsaib/stock-agent/internal/chat"
	"github.com/jayanthsaib/stock-agent/internal/domain"
	"github.com/jayanthsaib/stock-agent/internal/events"
	"github.com/jayanthsaib/stock-agent/internal/store"
)

// TokenResolver is the narrow registry contract this package needs.
type TokenResolver interface {
	Resolve(symbol string, exchange domain.Exchange) (string, bool)
}

// SellPlacer is the narrow execution contract this package needs —
// just enough to exit a position, without importing the Execution
// Engine's concrete type.
type SellPlacer interface {
	PlaceSell(ctx context.Context, symbol string, exchange domain.Exchange, qty int64, price float64, reason domain.ExitReason) (string, error)
}

// Config groups the Position Monitor's tunables.
type Config struct {
	MaxSingleTradeDrawdownPct float64
	TrailingStopActivatePct   float64
	PrimaryExchange           domain.Exchange
	SecondaryExchange         domain.Exchange
	SecondaryEnabled          bool
}

// Monitor ticks over every open position on a fixed interval.
type Monitor struct {
	cfg      Config
	broker   broker.Broker
	registry TokenResolver
	sell     SellPlacer
	store    store.TradeStore
	chat     chat.Chat
	chatID   string
	events   *events.Manager
	log      zerolog.Logger
}

// New builds a Monitor.
func New(cfg Config, brk broker.Broker, registry TokenResolver, sell SellPlacer, tradeStore store.TradeStore, chatClient chat.Chat, chatID string, eventsMgr *events.Manager, log zerolog.Logger) *Monitor {
	return &Monitor{
		cfg:      cfg,
		broker:   brk,
		registry: registry,
		sell:     sell,
		store:    tradeStore,
		chat:     chatClient,
		chatID:   chatID,
		events:   eventsMgr,
		log:      log.With().Str("component", "monitor").Logger(),
	}
}

// Tick evaluates every open position once.
func (m *Monitor) Tick(ctx context.Context) error {
	positions, err := m.store.ListOpenPositions(ctx)
	if err != nil {
		return fmt.Errorf("list open positions: %w", err)
	}

	for _, pos := range positions {
		price, ok := m.fetchLivePrice(ctx, pos.Symbol, pos.Exchange)
		if !ok {
			m.log.Warn().Str("symbol", pos.Symbol).Msg("live price unavailable, skipping this tick")
			continue
		}
		pos.CurrentPrice = price
		m.evaluate(ctx, pos)
	}
	return nil
}

func (m *Monitor) evaluate(ctx context.Context, pos domain.OpenPosition) {
	price := pos.CurrentPrice

	if price <= pos.CurrentStop {
		m.exit(ctx, pos, price, domain.ExitStopLossHit)
		return
	}

	drawdownPct := (pos.EntryPrice - price) / pos.EntryPrice * 100
	if drawdownPct >= m.cfg.MaxSingleTradeDrawdownPct {
		m.exit(ctx, pos, price, domain.ExitMaxDrawdown)
		return
	}

	switch {
	case price >= pos.Target:
		m.notify(ctx, fmt.Sprintf("TARGET_HIT: %s reached ₹%.2f (target ₹%.2f). Reply to confirm booking — the core does not auto-sell at target.", pos.Symbol, price, pos.Target))
	case !pos.PartialProfitNotified && price >= pos.EntryPrice+0.5*(pos.Target-pos.EntryPrice):
		pos.PartialProfitNotified = true
		m.notify(ctx, fmt.Sprintf("%s has crossed the halfway point to target (₹%.2f of ₹%.2f). Consider booking partial profit.", pos.Symbol, price, pos.Target))
	}

	if (price-pos.EntryPrice)/pos.EntryPrice*100 >= m.cfg.TrailingStopActivatePct {
		newStop := price - (pos.EntryPrice - pos.InitialStop)
		if pos.ApplyTrailingStop(newStop) {
			m.events.Emit(events.StopAdjusted, "monitor", map[string]interface{}{
				"proposal_id": pos.ProposalID, "symbol": pos.Symbol, "new_stop": pos.CurrentStop,
			})
			m.notify(ctx, fmt.Sprintf("%s trailing stop raised to ₹%.2f.", pos.Symbol, pos.CurrentStop))
		}
	}

	if err := m.store.UpsertPosition(ctx, pos); err != nil {
		m.log.Error().Err(err).Str("symbol", pos.Symbol).Msg("persist position tick")
	}
}

func (m *Monitor) exit(ctx context.Context, pos domain.OpenPosition, price float64, reason domain.ExitReason) {
	if _, err := m.sell.PlaceSell(ctx, pos.Symbol, pos.Exchange, pos.Quantity, price, reason); err != nil {
		m.log.Error().Err(err).Str("symbol", pos.Symbol).Msg("place exit order")
		m.notify(ctx, fmt.Sprintf("%s: exit order failed (%s), will retry next tick.", pos.Symbol, reason))
		return
	}

	pos.Close(price, time.Now(), reason)
	if err := m.store.UpsertPosition(ctx, pos); err != nil {
		m.log.Error().Err(err).Str("symbol", pos.Symbol).Msg("persist closed position")
	}
	m.events.Emit(events.PositionClosed, "monitor", map[string]interface{}{
		"proposal_id": pos.ProposalID, "symbol": pos.Symbol, "reason": string(reason),
		"realised_pnl": pos.RealisedPnL, "realised_pnl_pct": pos.RealisedPnLPct,
	})
	m.notify(ctx, fmt.Sprintf("%s closed at ₹%.2f (%s). Realised P&L ₹%.2f (%.2f%%).", pos.Symbol, price, reason, pos.RealisedPnL, pos.RealisedPnLPct))
}

func (m *Monitor) fetchLivePrice(ctx context.Context, symbol string, exchange domain.Exchange) (float64, bool) {
	if price, ok := m.quote(ctx, symbol, exchange); ok {
		return price, true
	}
	if m.cfg.SecondaryEnabled && exchange != m.cfg.SecondaryExchange {
		if price, ok := m.quote(ctx, symbol, m.cfg.SecondaryExchange); ok {
			return price, true
		}
	}
	return 0, false
}

func (m *Monitor) quote(ctx context.Context, symbol string, exchange domain.Exchange) (float64, bool) {
	token, ok := m.registry.Resolve(symbol, exchange)
	if !ok {
		return 0, false
	}
	quotes, err := m.broker.BatchQuote(ctx, exchange, []string{token})
	if err != nil {
		return 0, false
	}
	q, ok := quotes[token]
	if !ok {
		return 0, false
	}
	return q.LastPrice, true
}

// EndOfDaySummary pushes the once-daily market-close digest (§4.9):
// open-position count, today-closed count, and today's realised P&L.
func (m *Monitor) EndOfDaySummary(ctx context.Context, at time.Time) error {
	open, err := m.store.ListOpenPositions(ctx)
	if err != nil {
		return fmt.Errorf("list open positions: %w", err)
	}

	closed, err := m.store.ListClosedTrades(ctx)
	if err != nil {
		return fmt.Errorf("list closed trades: %w", err)
	}

	closedToday := 0
	var pnlToday float64
	for _, t := range closed {
		if sameDay(t.ClosedAt, at) {
			closedToday++
			pnlToday += t.RealisedPnL
		}
	}

	return m.notify(ctx, fmt.Sprintf(
		"End-of-day summary — open positions: %d, closed today: %d, today's realised P&L: ₹%.2f",
		len(open), closedToday, pnlToday))
}

func sameDay(a, b time.Time) bool {
	ay, am, ad := a.Date()
	by, bm, bd := b.Date()
	return ay == by && am == bm && ad == bd
}

func (m *Monitor) notify(ctx context.Context, text string) error {
	if err := m.chat.SendMessage(ctx, m.chatID, text, chat.ParseModeHTML); err != nil {
		m.log.Warn().Err(err).Msg("monitor notification failed to send")
		return err
	}
	return nil
}
