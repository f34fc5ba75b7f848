// Package domain holds the plain data types shared across the trading
// pipeline: instruments, price history, analysis output, proposals,
// open positions and their persisted trade records. No package in this
// tree imports a concrete storage or transport type from here — domain
// depends on nothing else in the module.
package domain

import "time"

// Exchange identifies a trading venue.
type Exchange string

const (
	ExchangeNSE Exchange = "NSE"
	ExchangeBSE Exchange = "BSE"
)

// Instrument is a resolved symbol entry from the registry. Immutable
// within a cycle; the registry as a whole is swapped atomically.
type Instrument struct {
	Symbol      string   `json:"symbol"`
	Exchange    Exchange `json:"exchange"`
	Token       string   `json:"token"`
	DisplayName string   `json:"display_name"`
}

// Bar is one OHLCV candle for a fixed interval.
type Bar struct {
	Timestamp time.Time `json:"timestamp"`
	Open      float64   `json:"open"`
	High      float64   `json:"high"`
	Low       float64   `json:"low"`
	Close     float64   `json:"close"`
	Volume    int64     `json:"volume"`
}

// MinBarsForTechnical is the minimum bar-sequence length required
// before a snapshot is eligible for 200-period technical indicators.
const MinBarsForTechnical = 210

// StockSnapshot is the per-symbol cached state built by Data Ingestion.
// Replaced atomically per refresh; never mutated in place.
type StockSnapshot struct {
	Symbol         string   `json:"symbol"`
	Exchange       Exchange `json:"exchange"`
	LastPrice      float64  `json:"last_price"`
	Today          Bar      `json:"today"`
	AvgVolume20D   float64  `json:"avg_volume_20d"`
	Bars           []Bar    `json:"bars"`
	FetchedAt      time.Time `json:"fetched_at"`
}

// Eligible reports whether the snapshot carries enough history for
// technical analysis (≥210 daily bars).
func (s StockSnapshot) Eligible() bool {
	return len(s.Bars) >= MinBarsForTechnical
}

// Regime is the discriminator over market-wide conditions.
type Regime string

const (
	RegimeBull           Regime = "BULL"
	RegimeBear           Regime = "BEAR"
	RegimeSideways       Regime = "SIDEWAYS"
	RegimeHighVolatility Regime = "HIGH_VOLATILITY"
)

// MacroSnapshot is the single process-wide market-regime value,
// recomputed once per Data Ingestion refresh.
type MacroSnapshot struct {
	Date               time.Time `json:"date"`
	VIX                float64   `json:"vix"`
	IndexPrice         float64   `json:"index_price"`
	Index200DayMean    float64   `json:"index_200d_mean"`
	IndexDeviationPct  float64   `json:"index_deviation_pct"`
	Regime             Regime    `json:"regime"`
	NewBuysSuppressed  bool      `json:"new_buys_suppressed"`
}

// NeutralMacroSnapshot is installed whenever the macro refresh fails.
func NeutralMacroSnapshot(at time.Time) MacroSnapshot {
	return MacroSnapshot{
		Date:              at,
		VIX:               15,
		Regime:            RegimeSideways,
		NewBuysSuppressed: false,
	}
}

// ConfidenceScore is the four sub-scores and their weighted composite.
// Every sub-score and the composite live in [0,100].
type ConfidenceScore struct {
	Fundamental float64 `json:"fundamental"`
	Technical   float64 `json:"technical"`
	Macro       float64 `json:"macro"`
	RiskReward  float64 `json:"risk_reward"`
	Composite   float64 `json:"composite"`
}

// ProposalStatus is a node in the trade-proposal status DAG (§4.7).
type ProposalStatus string

const (
	StatusPendingApproval ProposalStatus = "PENDING_APPROVAL"
	StatusApproved        ProposalStatus = "APPROVED"
	StatusRejected        ProposalStatus = "REJECTED"
	StatusExpired         ProposalStatus = "EXPIRED"
	StatusExecuted        ProposalStatus = "EXECUTED"
	StatusCancelled       ProposalStatus = "CANCELLED"
	StatusFailed          ProposalStatus = "FAILED"
)

// Side is the order direction. Only BUY proposals are generated by the
// Signal Generator; SELL is used by the Position Monitor's exit paths.
type Side string

const (
	SideBuy  Side = "BUY"
	SideSell Side = "SELL"
)

// validProposalTransitions enumerates the DAG edges from §4.7: no
// transition ever returns to PENDING_APPROVAL, and every terminal
// status (REJECTED, EXPIRED, CANCELLED, FAILED) has no outgoing edge.
var validProposalTransitions = map[ProposalStatus][]ProposalStatus{
	StatusPendingApproval: {StatusApproved, StatusRejected, StatusExpired},
	StatusApproved:        {StatusExecuted, StatusFailed},
}

// CanTransition reports whether moving from `from` to `to` is a legal
// edge in the proposal status DAG.
func CanTransition(from, to ProposalStatus) bool {
	for _, next := range validProposalTransitions[from] {
		if next == to {
			return true
		}
	}
	return false
}

// TradeProposal is the output of the Signal Generator, consumed by the
// Risk Validator and Approval Gateway. Identifier is assigned once and
// never mutated.
type TradeProposal struct {
	ID                string          `json:"id"`
	Symbol            string          `json:"symbol"`
	Exchange          Exchange        `json:"exchange"`
	Side              Side            `json:"side"`
	Entry             float64         `json:"entry"`
	Target            float64         `json:"target"`
	Stop              float64         `json:"stop"`
	RiskRewardRatio   float64         `json:"risk_reward_ratio"`
	Confidence        ConfidenceScore `json:"confidence"`
	CapitalAllocation float64         `json:"capital_allocation"`
	Sector            string          `json:"sector"`
	Narrative         string          `json:"narrative"`
	GeneratedAt       time.Time       `json:"generated_at"`
	ExpiresAt         time.Time       `json:"expires_at"`
	Status            ProposalStatus  `json:"status"`
}

// ExitReason identifies why an open position was closed.
type ExitReason string

const (
	ExitStopLossHit  ExitReason = "STOP_LOSS_HIT"
	ExitMaxDrawdown  ExitReason = "MAX_DRAWDOWN"
	ExitTargetBooked ExitReason = "TARGET_BOOKED"
	ExitManual       ExitReason = "MANUAL"
)

// OpenPosition is the live state of an executed proposal. current_stop
// is monotone non-decreasing and is mutated exclusively by the
// Position Monitor. Once Active is false the position is never
// reactivated.
type OpenPosition struct {
	ProposalID     string     `json:"proposal_id"`
	Symbol         string     `json:"symbol"`
	Exchange       Exchange   `json:"exchange"`
	Sector         string     `json:"sector"`
	EntryPrice     float64    `json:"entry_price"`
	Quantity       int64      `json:"quantity"`
	InvestedAmount float64    `json:"invested_amount"`
	InitialStop    float64    `json:"initial_stop"`
	CurrentStop    float64    `json:"current_stop"`
	Target         float64    `json:"target"`
	CurrentPrice   float64    `json:"current_price"`
	Active         bool       `json:"active"`
	EntryTime      time.Time  `json:"entry_time"`
	PartialProfitNotified bool `json:"partial_profit_notified"`

	ExitPrice    float64    `json:"exit_price,omitempty"`
	ExitTime     time.Time  `json:"exit_time,omitempty"`
	ExitReason   ExitReason `json:"exit_reason,omitempty"`
	RealisedPnL  float64    `json:"realised_pnl,omitempty"`
	RealisedPnLPct float64  `json:"realised_pnl_pct,omitempty"`
}

// ApplyTrailingStop raises CurrentStop to newStop iff it is a genuine
// increase. A computed stop at or below the current value is silently
// ignored (§7 "Monotonicity violation attempt").
func (p *OpenPosition) ApplyTrailingStop(newStop float64) bool {
	if newStop > p.CurrentStop {
		p.CurrentStop = newStop
		return true
	}
	return false
}

// Close marks the position closed and computes realised P&L.
func (p *OpenPosition) Close(exitPrice float64, at time.Time, reason ExitReason) {
	p.Active = false
	p.ExitPrice = exitPrice
	p.ExitTime = at
	p.ExitReason = reason
	p.RealisedPnL = (exitPrice - p.EntryPrice) * float64(p.Quantity)
	if p.EntryPrice != 0 {
		p.RealisedPnLPct = (exitPrice - p.EntryPrice) / p.EntryPrice * 100
	}
}

// TradeRecord is the persisted mirror of a proposal plus its outcome
// fields. Upserted at each status transition; append-only once closed.
type TradeRecord struct {
	ID                string         `json:"id"`
	Symbol            string         `json:"symbol"`
	Exchange           Exchange      `json:"exchange"`
	Side              Side           `json:"side"`
	Sector            string         `json:"sector"`
	Status            ProposalStatus `json:"status"`
	Entry             float64        `json:"entry"`
	Target            float64        `json:"target"`
	Stop              float64        `json:"stop"`
	RiskRewardRatio   float64        `json:"risk_reward_ratio"`
	FundamentalScore  float64        `json:"fundamental_score"`
	TechnicalScore    float64        `json:"technical_score"`
	MacroScore        float64        `json:"macro_score"`
	RiskRewardScore   float64        `json:"risk_reward_score"`
	CompositeScore    float64        `json:"composite_score"`
	CapitalAllocation float64        `json:"capital_allocation"`
	NarrativeSummary  string         `json:"narrative_summary"` // truncated to 500 chars
	RejectionReason   string         `json:"rejection_reason"`  // truncated to 300 chars

	GeneratedAt  time.Time `json:"generated_at"`
	ExpiresAt    time.Time `json:"expires_at"`
	DecidedAt    time.Time `json:"decided_at,omitempty"`
	ExecutedAt   time.Time `json:"executed_at,omitempty"`
	ClosedAt     time.Time `json:"closed_at,omitempty"`

	BrokerOrderID   string     `json:"broker_order_id,omitempty"`
	ExitPrice       float64    `json:"exit_price,omitempty"`
	ExitReason      ExitReason `json:"exit_reason,omitempty"`
	RealisedPnL     float64    `json:"realised_pnl,omitempty"`
	RealisedPnLPct  float64    `json:"realised_pnl_pct,omitempty"`
}

const (
	narrativeSummaryMaxLen = 500
	rejectionReasonMaxLen  = 300
)

// TruncateNarrative enforces the 500-char persisted-field limit (§6).
func TruncateNarrative(s string) string {
	if len(s) <= narrativeSummaryMaxLen {
		return s
	}
	return s[:narrativeSummaryMaxLen]
}

// TruncateRejectionReason enforces the 300-char persisted-field limit.
func TruncateRejectionReason(s string) string {
	if len(s) <= rejectionReasonMaxLen {
		return s
	}
	return s[:rejectionReasonMaxLen]
}
