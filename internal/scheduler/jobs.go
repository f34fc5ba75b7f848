package scheduler

import (
	"context"
	"fmt"
	"time"

	"github.com/rs/zerolog"

	"github.com/jayanthsaib/stock-agent/internal/analysis"
	"github.com/jayanthsaib/stock-agent/internal/approval"
	"github.com/jayanthsaib/stock-agent/internal/chat"
	"github.com/jayanthsaib/stock-agent/internal/domain"
	"github.com/jayanthsaib/stock-agent/internal/ingestion"
	"github.com/jayanthsaib/stock-agent/internal/instruments"
	"github.com/jayanthsaib/stock-agent/internal/learning"
	"github.com/jayanthsaib/stock-agent/internal/monitor"
	"github.com/jayanthsaib/stock-agent/internal/portfolio"
	"github.com/jayanthsaib/stock-agent/internal/risk"
	"github.com/jayanthsaib/stock-agent/internal/signals"
	"github.com/jayanthsaib/stock-agent/internal/store"
)

const fundamentalSemaphoreSize = 5

// CycleMetrics is the narrow metrics sink the signal cycle records
// against; the HTTP server's Prometheus registry implements it so
// cycle-level counters land on the same /metrics surface the server
// exposes, without this package importing the server package.
type CycleMetrics interface {
	ObserveSignalCycleDuration(seconds float64)
	IncProposalsEmitted(n int)
	IncRiskRejection(reason string)
}

// IngestionJob drives the 08:45 Data Ingestion refresh.
type IngestionJob struct {
	Calendar *TradingCalendar
	Ingestor *ingestion.Ingestor
}

func (j *IngestionJob) Name() string { return "data-ingestion-refresh" }

func (j *IngestionJob) Run() error {
	if !j.Calendar.IsTradingDay(time.Now()) {
		return nil
	}
	return j.Ingestor.RefreshAll(context.Background())
}

// SignalCycleJob drives the 09:15 chain: wait for ingestion, score
// every eligible snapshot, generate proposals, validate, and submit
// survivors to the Approval Gateway.
type SignalCycleJob struct {
	Calendar       *TradingCalendar
	Ingestor       *ingestion.Ingestor
	Fundamental    analysis.FundamentalProvider
	FundamentalCfg analysis.FundamentalConfig
	TechnicalCfg   analysis.TechnicalConfig
	MacroCfg       analysis.MacroConfig
	ForeignFlow    analysis.ForeignFlowInput
	GeneratorCfg   signals.Config
	Weights        signals.Weights
	SectorLookup   signals.SectorLookup
	Valuator       *portfolio.Valuator
	EmergencyCashBufferPct float64
	RiskCfg        risk.Config
	Store          store.TradeStore
	Gateway        *approval.Gateway
	Chat           chat.Chat
	ChatID         string
	Metrics        CycleMetrics
	Log            zerolog.Logger
}

func (j *SignalCycleJob) Name() string { return "signal-cycle" }

const ingestionWaitTimeout = 10 * time.Minute

func (j *SignalCycleJob) Run() error {
	if !j.Calendar.IsTradingDay(time.Now()) {
		return nil
	}
	ctx := context.Background()
	start := time.Now()
	if j.Metrics != nil {
		defer func() { j.Metrics.ObserveSignalCycleDuration(time.Since(start).Seconds()) }()
	}

	partial := j.waitForIngestion()
	if partial {
		j.notify(ctx, "Signal cycle proceeding with a partial universe: ingestion was still running after 10 minutes.")
	}

	snapshots := j.Ingestor.Store().All()
	macro := j.Ingestor.Store().Macro()
	macroResult := analysis.ScoreMacro(macro, j.ForeignFlow, j.MacroCfg)

	symbols := make([]string, 0, len(snapshots))
	snapshotBySymbol := make(map[string]domain.StockSnapshot, len(snapshots))
	for symbol, snap := range snapshots {
		if !snap.Eligible() {
			continue
		}
		symbols = append(symbols, symbol)
		snapshotBySymbol[symbol] = snap
	}

	fundamentalResults := analysis.ScoreFundamentalBatch(symbols, j.Fundamental, j.FundamentalCfg, fundamentalSemaphoreSize)
	fundamentalBySymbol := make(map[string]analysis.FundamentalResult, len(fundamentalResults))
	for _, r := range fundamentalResults {
		if r.Err != nil {
			j.Log.Warn().Err(r.Err).Str("symbol", r.Symbol).Msg("fundamental provider failed for symbol")
			continue
		}
		fundamentalBySymbol[r.Symbol] = r.Result
	}

	inputs := make([]signals.SymbolAnalysis, 0, len(symbols))
	for _, symbol := range symbols {
		fundamental, ok := fundamentalBySymbol[symbol]
		if !ok {
			continue
		}
		technical, err := analysis.ScoreTechnical(snapshotBySymbol[symbol], j.TechnicalCfg)
		if err != nil {
			j.Log.Warn().Err(err).Str("symbol", symbol).Msg("technical scoring failed")
			continue
		}
		inputs = append(inputs, signals.SymbolAnalysis{
			Snapshot:    snapshotBySymbol[symbol],
			Fundamental: fundamental,
			Technical:   technical,
			Macro:       macroResult,
		})
	}

	portfolioValue, err := j.Valuator.Refresh(ctx)
	if err != nil {
		j.Log.Warn().Err(err).Msg("portfolio valuation failed, using last cached value")
		portfolioValue = j.Valuator.Current()
	}

	genCfg := j.GeneratorCfg
	genCfg.PortfolioValue = portfolioValue
	generator := signals.New(genCfg, j.Weights, j.SectorLookup, j.Log)

	proposals := generator.Generate(inputs)
	j.Log.Info().Int("universe", len(symbols)).Int("proposals", len(proposals)).Msg("signal cycle produced proposals")
	if j.Metrics != nil {
		j.Metrics.IncProposalsEmitted(len(proposals))
	}
	openPositions, err := j.Store.ListOpenPositions(ctx)
	if err != nil {
		return fmt.Errorf("list open positions: %w", err)
	}
	newBuysThisWeek, err := j.newBuysThisWeek(ctx)
	if err != nil {
		return fmt.Errorf("count new buys this week: %w", err)
	}

	for _, proposal := range proposals {
		allocationPct := 0.0
		if portfolioValue > 0 {
			allocationPct = proposal.CapitalAllocation / portfolioValue * 100
		}
		postTradeValue := portfolioValue - proposal.CapitalAllocation
		bufferRequired := portfolioValue * j.EmergencyCashBufferPct / 100
		cashBufferSafe := postTradeValue >= bufferRequired

		result := risk.Validate(proposal, risk.Inputs{
			OpenPositions:     openPositions,
			CashBufferSafe:    cashBufferSafe,
			SectorExposurePct: risk.SectorExposurePct(openPositions, proposal.Sector, portfolioValue),
			AllocationPct:     allocationPct,
			NewBuysThisWeek:   newBuysThisWeek,
			OrderTypeIsMarket: false,
		}, j.RiskCfg)

		if !result.Passed {
			j.recordRejection(ctx, proposal, result)
			if j.Metrics != nil && len(result.Failures) > 0 {
				j.Metrics.IncRiskRejection(result.Failures[0])
			}
			continue
		}

		if err := j.Gateway.Submit(ctx, proposal, allocationPct); err != nil {
			j.Log.Error().Err(err).Str("proposal_id", proposal.ID).Msg("submit proposal to approval gateway")
		}
	}

	return nil
}

// waitForIngestion polls the ingestor's busy flag, returning true if
// it timed out still in progress (§4.10 "proceed with partial
// universe and push a warning").
func (j *SignalCycleJob) waitForIngestion() bool {
	deadline := time.Now().Add(ingestionWaitTimeout)
	for j.Ingestor.Refreshing() {
		if time.Now().After(deadline) {
			return true
		}
		time.Sleep(2 * time.Second)
	}
	return false
}

func (j *SignalCycleJob) newBuysThisWeek(ctx context.Context) (int, error) {
	since := time.Now().AddDate(0, 0, -7)
	trades, err := j.Store.ListTradesSince(ctx, since)
	if err != nil {
		return 0, err
	}
	count := 0
	for _, t := range trades {
		if t.Side == domain.SideBuy && t.Status == domain.StatusExecuted {
			count++
		}
	}
	return count, nil
}

func (j *SignalCycleJob) recordRejection(ctx context.Context, proposal domain.TradeProposal, result risk.Result) {
	reason := ""
	if len(result.Failures) > 0 {
		reason = result.Failures[0]
	}
	record := domain.TradeRecord{
		ID:               proposal.ID,
		Symbol:           proposal.Symbol,
		Exchange:         proposal.Exchange,
		Side:             proposal.Side,
		Sector:           proposal.Sector,
		Status:           domain.StatusRejected,
		Entry:            proposal.Entry,
		Target:           proposal.Target,
		Stop:             proposal.Stop,
		RiskRewardRatio:  proposal.RiskRewardRatio,
		FundamentalScore: proposal.Confidence.Fundamental,
		TechnicalScore:   proposal.Confidence.Technical,
		MacroScore:       proposal.Confidence.Macro,
		RiskRewardScore:  proposal.Confidence.RiskReward,
		CompositeScore:   proposal.Confidence.Composite,
		RejectionReason:  domain.TruncateRejectionReason(reason),
		GeneratedAt:      proposal.GeneratedAt,
		DecidedAt:        time.Now(),
	}
	if err := j.Store.UpsertTrade(ctx, record); err != nil {
		j.Log.Error().Err(err).Str("proposal_id", proposal.ID).Msg("persist risk-rejected proposal")
	}
}

func (j *SignalCycleJob) notify(ctx context.Context, text string) {
	if err := j.Chat.SendMessage(ctx, j.ChatID, text, chat.ParseModeHTML); err != nil {
		j.Log.Warn().Err(err).Msg("signal cycle warning failed to send")
	}
}

// MonitorTickJob drives the every-15-min Position Monitor tick plus
// Approval Gateway expiry sweep.
type MonitorTickJob struct {
	Calendar *TradingCalendar
	Monitor  *monitor.Monitor
	Gateway  *approval.Gateway
}

func (j *MonitorTickJob) Name() string { return "monitor-tick" }

func (j *MonitorTickJob) Run() error {
	if !j.Calendar.IsTradingDay(time.Now()) {
		return nil
	}
	ctx := context.Background()
	if err := j.Monitor.Tick(ctx); err != nil {
		return fmt.Errorf("monitor tick: %w", err)
	}
	if err := j.Gateway.ExpireTimedOut(ctx, time.Now()); err != nil {
		return fmt.Errorf("expire timed out proposals: %w", err)
	}
	return nil
}

// EndOfDayJob drives the 15:30 close-of-market summary.
type EndOfDayJob struct {
	Calendar *TradingCalendar
	Monitor  *monitor.Monitor
}

func (j *EndOfDayJob) Name() string { return "end-of-day-summary" }

func (j *EndOfDayJob) Run() error {
	if !j.Calendar.IsTradingDay(time.Now()) {
		return nil
	}
	return j.Monitor.EndOfDaySummary(context.Background(), time.Now())
}

// RegistryReloadJob drives the 00:00 Instrument Registry reload.
type RegistryReloadJob struct {
	Registry *instruments.Registry
}

func (j *RegistryReloadJob) Name() string { return "registry-reload" }

func (j *RegistryReloadJob) Run() error {
	return j.Registry.Reload(context.Background())
}

// LearningSummaryJob drives the monthly Learning Summary.
type LearningSummaryJob struct {
	Store  store.TradeStore
	Chat   chat.Chat
	ChatID string
	Log    zerolog.Logger
}

func (j *LearningSummaryJob) Name() string { return "learning-summary" }

func (j *LearningSummaryJob) Run() error {
	ctx := context.Background()
	since := time.Now().AddDate(0, -1, 0)
	trades, err := j.Store.ListTradesSince(ctx, since)
	if err != nil {
		return fmt.Errorf("list trades since last month: %w", err)
	}

	var closed, rejected []domain.TradeRecord
	for _, t := range trades {
		switch t.Status {
		case domain.StatusRejected:
			rejected = append(rejected, t)
		case domain.StatusExecuted:
			if !t.ClosedAt.IsZero() {
				closed = append(closed, t)
			}
		}
	}

	summary := learning.Build(closed, rejected)
	text := fmt.Sprintf(
		"Monthly learning summary — closed trades: %d, win rate: %.1f%%, avg win: %.1f%%, avg loss: %.1f%%, total realised P&L: ₹%.2f",
		summary.TotalClosed, summary.WinRatePct, summary.AvgWinPct, summary.AvgLossPct, summary.TotalRealisedPnL)
	if err := j.Chat.SendMessage(ctx, j.ChatID, text, chat.ParseModeHTML); err != nil {
		j.Log.Warn().Err(err).Msg("learning summary failed to send")
	}
	return nil
}

// ChatPollJob drives the ~2s long-poll loop and persists the
// exactly-once offset (§5).
type ChatPollJob struct {
	Chat    chat.Chat
	Store   store.TradeStore
	Gateway *approval.Gateway
	Log     zerolog.Logger
}

func (j *ChatPollJob) Name() string { return "chat-poll" }

func (j *ChatPollJob) Run() error {
	ctx := context.Background()

	offset, err := j.Store.LoadChatOffset(ctx)
	if err != nil {
		return fmt.Errorf("load chat offset: %w", err)
	}

	updates, err := j.Chat.GetUpdates(ctx, offset, 1)
	if err != nil {
		return fmt.Errorf("get chat updates: %w", err)
	}

	for _, update := range updates {
		if err := j.Gateway.OnReply(ctx, update); err != nil {
			j.Log.Warn().Err(err).Int64("update_id", update.UpdateID).Msg("reply handling failed")
		}
		if update.UpdateID >= offset {
			offset = update.UpdateID + 1
		}
	}

	if len(updates) > 0 {
		if err := j.Store.SaveChatOffset(ctx, offset); err != nil {
			return fmt.Errorf("save chat offset: %w", err)
		}
	}
	return nil
}
