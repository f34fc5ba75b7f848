// Package risk implements the Risk Validator (§4.6): a stateless
// function over one proposal and the current open-position list.
package risk

import (
	"fmt"

	"github.com/jayanthsaib/stock-agent/internal/domain"
)

// Config groups every threshold the validator checks against.
type Config struct {
	MinStockPrice             float64
	MinRiskRewardRatio        float64
	MinStopLossPct            float64
	MaxStopLossPct            float64
	HardCapSingleStockPct     float64
	MaxOpenPositions          int
	MaxSectorPct              float64
	MaxNewBuysPerWeek         int
	MinPositionSize           float64
	AllowMargin               bool
	SizeReductionThreshold    float64 // not read by Validate, which warns below a fixed composite of 70
	WideStopWarningPct        float64 // not read by Validate, which warns above a fixed 10% stop
}

// Result is the validator's output: a pass/fail plus the blocking
// failures and non-blocking warnings that produced it.
type Result struct {
	Passed   bool
	Failures []string
	Warnings []string
}

// Inputs bundles everything Validate needs beyond the proposal itself.
// CashBufferSafe and SectorExposurePct are pre-computed by the caller
// (they depend on live portfolio state the validator has no access to
// on its own, keeping Validate itself pure).
type Inputs struct {
	OpenPositions     []domain.OpenPosition
	CashBufferSafe    bool
	SectorExposurePct float64
	AllocationPct     float64
	NewBuysThisWeek   int
	OrderTypeIsMarket bool
}

// Validate implements the 15-rule table in spec.md §4.6. It is pure
// and idempotent: identical (proposal, inputs) always yields an
// identical Result.
func Validate(proposal domain.TradeProposal, in Inputs, cfg Config) Result {
	var failures, warnings []string

	if proposal.Entry < cfg.MinStockPrice {
		failures = append(failures, fmt.Sprintf("entry price %.2f below minimum %.2f", proposal.Entry, cfg.MinStockPrice))
	}
	if proposal.RiskRewardRatio < cfg.MinRiskRewardRatio {
		failures = append(failures, fmt.Sprintf("risk-reward %.2f below minimum %.2f", proposal.RiskRewardRatio, cfg.MinRiskRewardRatio))
	}

	stopPct := 0.0
	if proposal.Entry > 0 {
		stopPct = (proposal.Entry - proposal.Stop) / proposal.Entry * 100
	}
	if stopPct < cfg.MinStopLossPct || stopPct > cfg.MaxStopLossPct {
		failures = append(failures, fmt.Sprintf("stop-loss %.2f%% outside [%.2f%%, %.2f%%]", stopPct, cfg.MinStopLossPct, cfg.MaxStopLossPct))
	}

	if proposal.Side == domain.SideBuy && proposal.Target <= proposal.Entry {
		failures = append(failures, "target does not exceed entry")
	}

	if in.AllocationPct > cfg.HardCapSingleStockPct {
		failures = append(failures, fmt.Sprintf("allocation %.2f%% exceeds hard cap %.2f%%", in.AllocationPct, cfg.HardCapSingleStockPct))
	}

	if len(in.OpenPositions) >= cfg.MaxOpenPositions {
		failures = append(failures, fmt.Sprintf("%d open positions at or above max %d", len(in.OpenPositions), cfg.MaxOpenPositions))
	}

	if !in.CashBufferSafe {
		failures = append(failures, "post-trade cash buffer would be violated")
	}

	if in.SectorExposurePct+in.AllocationPct > cfg.MaxSectorPct {
		failures = append(failures, fmt.Sprintf("sector exposure %.2f%% would exceed max %.2f%%", in.SectorExposurePct+in.AllocationPct, cfg.MaxSectorPct))
	}

	for _, pos := range in.OpenPositions {
		if pos.Symbol == proposal.Symbol {
			failures = append(failures, "symbol already has an open position (no averaging down)")
			break
		}
	}

	if in.OrderTypeIsMarket {
		failures = append(failures, "order type must not be MARKET")
	}

	if cfg.AllowMargin {
		warnings = append(warnings, "margin trading is enabled")
	}

	if in.NewBuysThisWeek >= cfg.MaxNewBuysPerWeek {
		failures = append(failures, fmt.Sprintf("%d new buys this week at or above max %d", in.NewBuysThisWeek, cfg.MaxNewBuysPerWeek))
	}

	if proposal.CapitalAllocation < cfg.MinPositionSize {
		failures = append(failures, fmt.Sprintf("allocation %.2f below minimum position size %.2f", proposal.CapitalAllocation, cfg.MinPositionSize))
	}

	if proposal.Confidence.Composite < 70 {
		warnings = append(warnings, "composite confidence below 70: consider reducing size")
	}

	if stopPct > 10 {
		warnings = append(warnings, fmt.Sprintf("stop-loss %.2f%% is unusually wide", stopPct))
	}

	return Result{
		Passed:   len(failures) == 0,
		Failures: failures,
		Warnings: warnings,
	}
}

// SectorExposurePct computes Σ(capital of open positions in the same
// sector) / portfolio_value × 100, the sector-exposure figure callers
// feed into Inputs.SectorExposurePct.
func SectorExposurePct(openPositions []domain.OpenPosition, sector string, portfolioValue float64) float64 {
	if portfolioValue <= 0 {
		return 0
	}
	var exposed float64
	for _, pos := range openPositions {
		if pos.Sector == sector {
			exposed += pos.EntryPrice * float64(pos.Quantity)
		}
	}
	return exposed / portfolioValue * 100
}
