// Package approval implements the Approval Gateway (§4.7): the sole
// owner of the in-memory pending-proposal map, the chat-report sender,
// and the operator-reply consumer.
package approval

import (
	"context"
	"fmt"
	"math"
	"sync"
	"time"

	"github.com/rs/zerolog"

	"github.com/jayanthsaib/stock-agent/internal/chat"
	"github.com/jayanthsaib/stock-agent/internal/domain"
	"github.com/jayanthsaib/stock-agent/internal/events"
	"github.com/jayanthsaib/stock-agent/internal/store"
)

// Executor is the narrow contract live-mode approvals delegate to
// (§9 "cycle breaks") — the Execution Engine implements it without
// this package importing its concrete type.
type Executor interface {
	Execute(ctx context.Context, proposal domain.TradeProposal)
}

type pendingEntry struct {
	proposal      domain.TradeProposal
	allocationPct float64
}

// Gateway owns `pending` exclusively (§3 "Ownership"); every access
// goes through the single mutex below, which is also the
// synchronisation point that keeps a reply arriving mid-expiry-sweep
// from double-handling a proposal.
type Gateway struct {
	mu      sync.Mutex
	pending map[string]pendingEntry

	chat       chat.Chat
	store      store.TradeStore
	events     *events.Manager
	executor   Executor
	chatID     string
	simulation bool

	autoMode             bool
	autoExecuteThreshold float64

	metrics DecisionMetrics
	log     zerolog.Logger
}

// DecisionMetrics is the narrow metrics sink Gateway decisions record
// against; the HTTP server's Prometheus registry implements it without
// this package importing the server package.
type DecisionMetrics interface {
	IncGatewayDecision(outcome string)
}

// New builds a Gateway. executor may be nil in simulation-only
// deployments, since live-mode delegation is never reached.
func New(chatClient chat.Chat, tradeStore store.TradeStore, eventsMgr *events.Manager, executor Executor, chatID string, simulation bool, log zerolog.Logger) *Gateway {
	return &Gateway{
		pending:    make(map[string]pendingEntry),
		chat:       chatClient,
		store:      tradeStore,
		events:     eventsMgr,
		executor:   executor,
		chatID:     chatID,
		simulation: simulation,
		log:        log.With().Str("component", "approval").Logger(),
	}
}

// WithAutoMode enables the §4.10 auto-execute bypass: a proposal whose
// composite confidence meets threshold skips human approval entirely.
func (g *Gateway) WithAutoMode(enabled bool, threshold float64) *Gateway {
	g.autoMode = enabled
	g.autoExecuteThreshold = threshold
	return g
}

// WithMetrics attaches a decision-outcome sink. Optional; nil-safe.
func (g *Gateway) WithMetrics(metrics DecisionMetrics) *Gateway {
	g.metrics = metrics
	return g
}

func (g *Gateway) recordDecision(outcome string) {
	if g.metrics != nil {
		g.metrics.IncGatewayDecision(outcome)
	}
}

// Submit formats and sends the pre-trade report for a validated
// proposal. On send success it is held pending approval; on send
// failure it is discarded with no retry (§4.7). When auto-mode is
// enabled and the proposal's composite confidence meets the configured
// threshold, the report is still sent for visibility but approval is
// bypassed and the proposal is handed straight to execution (§4.10).
func (g *Gateway) Submit(ctx context.Context, proposal domain.TradeProposal, allocationPct float64) error {
	report := chat.PreTradeReport(proposal, allocationPct)
	if err := g.chat.SendMessage(ctx, g.chatID, report, chat.ParseModeHTML); err != nil {
		g.log.Warn().Err(err).Str("id", proposal.ID).Msg("discarding proposal: chat send failed")
		return nil
	}

	if g.autoMode && proposal.Confidence.Composite >= g.autoExecuteThreshold {
		g.recordDecision("auto_executed")
		return g.approve(ctx, proposal)
	}

	g.mu.Lock()
	g.pending[proposal.ID] = pendingEntry{proposal: proposal, allocationPct: allocationPct}
	g.mu.Unlock()

	if err := g.store.UpsertTrade(ctx, recordFromProposal(proposal)); err != nil {
		return fmt.Errorf("persist pending trade %s: %w", proposal.ID, err)
	}
	g.events.Emit(events.ProposalGenerated, "approval", map[string]interface{}{
		"id":     proposal.ID,
		"symbol": proposal.Symbol,
	})
	return nil
}

// OnReply parses one inbound chat update and acts on it. Unknown
// trade ids and unrecognised shapes draw a reply but change no state.
func (g *Gateway) OnReply(ctx context.Context, update chat.Update) error {
	cmd := chat.ParseCommand(update.Text)
	switch cmd.Kind {
	case chat.CommandStatus:
		return g.replyStatus(ctx)
	case chat.CommandPositions:
		return g.replyPositions(ctx)
	case chat.CommandApprove:
		return g.handleApprove(ctx, cmd.TradeID)
	case chat.CommandReject:
		return g.handleReject(ctx, cmd.TradeID, cmd.Reason)
	default:
		return g.reply(ctx, "Could not understand that message. Try STATUS, POSITIONS, APPROVE <id> or REJECT <id> [reason].")
	}
}

// Pending returns a snapshot of every proposal currently awaiting an
// operator reply, for the read-only `/api/signals/pending` surface.
func (g *Gateway) Pending() []domain.TradeProposal {
	g.mu.Lock()
	defer g.mu.Unlock()
	out := make([]domain.TradeProposal, 0, len(g.pending))
	for _, entry := range g.pending {
		out = append(out, entry.proposal)
	}
	return out
}

// popPending atomically removes an entry from `pending` iff present.
// This single map access is what the §4.7 "safe against reply arrival
// during expiry sweep" requirement reduces to: whichever caller
// removes the entry first wins, the other observes it already gone.
func (g *Gateway) popPending(id string) (pendingEntry, bool) {
	g.mu.Lock()
	defer g.mu.Unlock()
	entry, ok := g.pending[id]
	if ok {
		delete(g.pending, id)
	}
	return entry, ok
}

func (g *Gateway) handleApprove(ctx context.Context, id string) error {
	entry, ok := g.popPending(id)
	if !ok {
		return g.reply(ctx, fmt.Sprintf("No pending trade found with id %s.", id))
	}
	g.recordDecision("approved")
	return g.approve(ctx, entry.proposal)
}

// approve transitions a proposal to APPROVED (and, in simulation mode,
// straight to EXECUTED; in live mode it hands the proposal to the
// executor) and notifies the operator. Shared by the human APPROVE reply path and the
// auto-mode bypass in Submit.
func (g *Gateway) approve(ctx context.Context, proposal domain.TradeProposal) error {
	proposal.Status = domain.StatusApproved
	now := time.Now()

	if g.simulation {
		proposal.Status = domain.StatusExecuted
		brokerOrderID := fmt.Sprintf("PAPER-%d", now.UnixMilli())
		record := recordFromProposal(proposal)
		record.DecidedAt = now
		record.ExecutedAt = now
		record.BrokerOrderID = brokerOrderID
		if err := g.store.UpsertTrade(ctx, record); err != nil {
			return fmt.Errorf("persist executed trade %s: %w", proposal.ID, err)
		}

		quantity := int64(math.Floor(proposal.CapitalAllocation / proposal.Entry))
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
		if err := g.store.UpsertPosition(ctx, position); err != nil {
			g.log.Error().Err(err).Str("id", proposal.ID).Msg("persist open position")
		}

		g.events.Emit(events.ProposalStatusChanged, "approval", map[string]interface{}{
			"id": proposal.ID, "status": string(domain.StatusExecuted),
		})
		return g.reply(ctx, fmt.Sprintf("%s approved and filled (simulated). Order id: %s.", proposal.ID, brokerOrderID))
	}

	record := recordFromProposal(proposal)
	record.DecidedAt = now
	if err := g.store.UpsertTrade(ctx, record); err != nil {
		return fmt.Errorf("persist approved trade %s: %w", proposal.ID, err)
	}
	g.events.Emit(events.ProposalStatusChanged, "approval", map[string]interface{}{
		"id": proposal.ID, "status": string(domain.StatusApproved),
	})
	if g.executor != nil {
		go g.executor.Execute(context.Background(), proposal)
	}
	return g.reply(ctx, fmt.Sprintf("%s approved. Dispatched to execution.", proposal.ID))
}

func (g *Gateway) handleReject(ctx context.Context, id, reason string) error {
	entry, ok := g.popPending(id)
	if !ok {
		return g.reply(ctx, fmt.Sprintf("No pending trade found with id %s.", id))
	}

	proposal := entry.proposal
	proposal.Status = domain.StatusRejected
	record := recordFromProposal(proposal)
	record.DecidedAt = time.Now()
	record.RejectionReason = domain.TruncateRejectionReason(reason)
	if err := g.store.UpsertTrade(ctx, record); err != nil {
		return fmt.Errorf("persist rejected trade %s: %w", proposal.ID, err)
	}
	g.events.Emit(events.ProposalStatusChanged, "approval", map[string]interface{}{
		"id": proposal.ID, "status": string(domain.StatusRejected), "reason": reason,
	})
	g.recordDecision("rejected")
	return g.reply(ctx, fmt.Sprintf("%s rejected: %s.", proposal.ID, reason))
}

// ExpireTimedOut sweeps every pending proposal whose expiry has
// passed, removing it from `pending` under the same mutex OnReply
// uses, transitioning it to EXPIRED and notifying the operator.
func (g *Gateway) ExpireTimedOut(ctx context.Context, now time.Time) error {
	g.mu.Lock()
	var expired []pendingEntry
	for id, entry := range g.pending {
		if entry.proposal.ExpiresAt.Before(now) {
			expired = append(expired, entry)
			delete(g.pending, id)
		}
	}
	g.mu.Unlock()

	for _, entry := range expired {
		proposal := entry.proposal
		proposal.Status = domain.StatusExpired
		record := recordFromProposal(proposal)
		if err := g.store.UpsertTrade(ctx, record); err != nil {
			g.log.Error().Err(err).Str("id", proposal.ID).Msg("persist expired trade")
			continue
		}
		g.events.Emit(events.ProposalStatusChanged, "approval", map[string]interface{}{
			"id": proposal.ID, "status": string(domain.StatusExpired),
		})
		g.recordDecision("expired")
		_ = g.reply(ctx, fmt.Sprintf("%s has expired without a response.", proposal.ID))
	}
	return nil
}

func (g *Gateway) replyStatus(ctx context.Context) error {
	g.mu.Lock()
	pendingCount := len(g.pending)
	g.mu.Unlock()
	return g.reply(ctx, fmt.Sprintf("%d trade proposal(s) awaiting approval.", pendingCount))
}

func (g *Gateway) replyPositions(ctx context.Context) error {
	positions, err := g.store.ListOpenPositions(ctx)
	if err != nil {
		return fmt.Errorf("list open positions: %w", err)
	}
	if len(positions) == 0 {
		return g.reply(ctx, "No open positions.")
	}
	msg := fmt.Sprintf("%d open position(s):\n", len(positions))
	for _, p := range positions {
		msg += fmt.Sprintf("- %s qty=%d entry=%.2f stop=%.2f current=%.2f\n", p.Symbol, p.Quantity, p.EntryPrice, p.CurrentStop, p.CurrentPrice)
	}
	return g.reply(ctx, msg)
}

func (g *Gateway) reply(ctx context.Context, text string) error {
	return g.chat.SendMessage(ctx, g.chatID, text, chat.ParseModeHTML)
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
