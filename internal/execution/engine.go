// Package execution implements the Execution Engine (§4.8): places
// buy/sell limit orders, records broker order identifiers, and
// schedules fill-timeout probes.
package execution

import (
	"context"
	"fmt"
	"math"
	"time"

	"github.com/rs/zerolog"

	"github.com/jayanthsaib/stock-agent/internal/broker"
	"github.com/jayanthsaib/stock-agent/internal/chat"
	"github.com/jayanthsaib/stock-agent/internal/domain"
	"github.com/jayanthsaib/stock-agent/internal/events"
	"github.com/jayanthsaib/stock-agent/internal/store"
)

// TokenResolver is the narrow contract over the instrument registry
// this package needs — just enough to turn a symbol into the broker's
// token, without importing the concrete registry type.
type TokenResolver interface {
	Resolve(symbol string, exchange domain.Exchange) (string, bool)
}

// Config groups the Execution Engine's tunables.
type Config struct {
	Simulation         bool
	FillTimeoutMinutes int
}

// Engine is the Executor the Approval Gateway delegates to in live
// mode, and the sell-side entry point the Position Monitor calls for
// every autonomous exit.
type Engine struct {
	cfg      Config
	broker   broker.Broker
	registry TokenResolver
	store    store.TradeStore
	chat     chat.Chat
	chatID   string
	events   *events.Manager
	log      zerolog.Logger
}

// New builds an Engine.
func New(cfg Config, brk broker.Broker, registry TokenResolver, tradeStore store.TradeStore, chatClient chat.Chat, chatID string, eventsMgr *events.Manager, log zerolog.Logger) *Engine {
	return &Engine{
		cfg:      cfg,
		broker:   brk,
		registry: registry,
		store:    tradeStore,
		chat:     chatClient,
		chatID:   chatID,
		events:   eventsMgr,
		log:      log.With().Str("component", "execution").Logger(),
	}
}

// Execute places the buy order for an approved proposal. Quantity is
// floor(capital_allocation/entry); a zero quantity abandons the order
// with a user-visible error instead of placing it (§4.8).
func (e *Engine) Execute(ctx context.Context, proposal domain.TradeProposal) {
	quantity := int64(math.Floor(proposal.CapitalAllocation / proposal.Entry))
	if quantity <= 0 {
		e.fail(ctx, proposal, "capital allocation too small to buy even one share")
		return
	}

	if e.cfg.Simulation {
		brokerOrderID := fmt.Sprintf("PAPER-%d", time.Now().UnixMilli())
		e.markExecuted(ctx, proposal, brokerOrderID, quantity)
		e.notify(ctx, fmt.Sprintf("%s filled (simulated). qty=%d id=%s", proposal.ID, quantity, brokerOrderID))
		return
	}

	token, ok := e.registry.Resolve(proposal.Symbol, proposal.Exchange)
	if !ok {
		e.fail(ctx, proposal, fmt.Sprintf("no broker token resolvable for %s", proposal.Symbol))
		return
	}

	orderID, err := e.broker.PlaceOrder(ctx, broker.OrderRequest{
		TradingSymbol:   proposal.Symbol,
		SymbolToken:     token,
		Exchange:        proposal.Exchange,
		TransactionType: domain.SideBuy,
		Price:           proposal.Entry,
		Quantity:        quantity,
	})
	if err != nil {
		e.fail(ctx, proposal, err.Error())
		return
	}

	e.markExecuted(ctx, proposal, orderID, quantity)
	e.notify(ctx, fmt.Sprintf("%s filled. qty=%d broker order id=%s", proposal.ID, quantity, orderID))
	e.scheduleFillTimeoutProbe(proposal.ID)
}

// PlaceSell places an exit order for an open position. Called by the
// Position Monitor for stop-loss, drawdown and manual exits — none of
// which require operator approval (§4.9).
func (e *Engine) PlaceSell(ctx context.Context, symbol string, exchange domain.Exchange, qty int64, price float64, reason domain.ExitReason) (string, error) {
	if e.cfg.Simulation {
		return fmt.Sprintf("PAPER-%d", time.Now().UnixMilli()), nil
	}

	token, ok := e.registry.Resolve(symbol, exchange)
	if !ok {
		return "", fmt.Errorf("no broker token resolvable for %s", symbol)
	}

	orderID, err := e.broker.PlaceOrder(ctx, broker.OrderRequest{
		TradingSymbol:   symbol,
		SymbolToken:     token,
		Exchange:        exchange,
		TransactionType: domain.SideSell,
		Price:           price,
		Quantity:        qty,
	})
	if err != nil {
		return "", fmt.Errorf("place sell order for %s (%s): %w", symbol, reason, err)
	}
	return orderID, nil
}

func (e *Engine) markExecuted(ctx context.Context, proposal domain.TradeProposal, brokerOrderID string, quantity int64) {
	proposal.Status = domain.StatusExecuted
	now := time.Now()
	record := recordFromProposal(proposal)
	record.ExecutedAt = now
	record.BrokerOrderID = brokerOrderID
	if err := e.store.UpsertTrade(ctx, record); err != nil {
		e.log.Error().Err(err).Str("id", proposal.ID).Msg("persist executed trade")
		return
	}

	position := domain.OpenPosition{
		ProposalID:     proposal.ID,
		Symbol:         proposal.Symbol,
		Exchange:       proposal.Exchange,
		Sector:         proposal.Sector,
		EntryPrice:     proposal.Entry,
		Quantity:       quantity,
		InvestedAmount: proposal.Entry * float64(quantity),
		InitialStop:    proposal.Stop,
		CurrentStop:    proposal.Stop,
		Target:         proposal.Target,
		CurrentPrice:   proposal.Entry,
		Active:         true,
		EntryTime:      now,
	}
	if err := e.store.UpsertPosition(ctx, position); err != nil {
		e.log.Error().Err(err).Str("id", proposal.ID).Msg("persist open position")
	}

	e.events.Emit(events.ProposalStatusChanged, "execution", map[string]interface{}{
		"id": proposal.ID, "status": string(domain.StatusExecuted), "broker_order_id": brokerOrderID,
	})
}

func (e *Engine) fail(ctx context.Context, proposal domain.TradeProposal, reason string) {
	proposal.Status = domain.StatusFailed
	record := recordFromProposal(proposal)
	record.RejectionReason = domain.TruncateRejectionReason(reason)
	if err := e.store.UpsertTrade(ctx, record); err != nil {
		e.log.Error().Err(err).Str("id", proposal.ID).Msg("persist failed trade")
	}
	e.events.Emit(events.ProposalStatusChanged, "execution", map[string]interface{}{
		"id": proposal.ID, "status": string(domain.StatusFailed), "reason": reason,
	})
	e.notify(ctx, fmt.Sprintf("%s failed to execute: %s", proposal.ID, reason))
}

func (e *Engine) notify(ctx context.Context, text string) {
	if err := e.chat.SendMessage(ctx, e.chatID, text, chat.ParseModeHTML); err != nil {
		e.log.Warn().Err(err).Msg("execution notification failed to send")
	}
}

// scheduleFillTimeoutProbe fires a single reminder after the
// configured window instructing manual verification. The core never
// cancels the order automatically (§9 open question (a)).
func (e *Engine) scheduleFillTimeoutProbe(proposalID string) {
	if e.cfg.FillTimeoutMinutes <= 0 {
		return
	}
	timeout := time.Duration(e.cfg.FillTimeoutMinutes) * time.Minute
	time.AfterFunc(timeout, func() {
		e.notify(context.Background(), fmt.Sprintf("%s: fill-timeout window elapsed, please verify the order manually.", proposalID))
	})
}

func recordFromProposal(p domain.TradeProposal) domain.TradeRecord {
	return domain.TradeRecord{
		ID:                p.ID,
		Symbol:            p.Symbol,
		Exchange:          p.Exchange,
		Side:              p.Side,
		Sector:            p.Sector,
		Status:            p.Status,
		Entry:             p.Entry,
		Target:            p.Target,
		Stop:              p.Stop,
		RiskRewardRatio:   p.RiskRewardRatio,
		FundamentalScore:  p.Confidence.Fundamental,
		TechnicalScore:    p.Confidence.Technical,
		MacroScore:        p.Confidence.Macro,
		RiskRewardScore:   p.Confidence.RiskReward,
		CompositeScore:    p.Confidence.Composite,
		CapitalAllocation: p.CapitalAllocation,
		NarrativeSummary:  domain.TruncateNarrative(p.Narrative),
		GeneratedAt:       p.GeneratedAt,
		ExpiresAt:         p.ExpiresAt,
	}
}
