// Package learning implements the Learning Summary (§4.11): a
// read-only set of reducers over closed trades. Never modifies rules
// or config; its output is a digest for the operator.
package learning

import (
	"gonum.org/v1/gonum/stat"

	"github.com/jayanthsaib/stock-agent/internal/domain"
)

// ConfidenceBand is one of the three composite-score buckets §4.11
// reports win rate for.
type ConfidenceBand string

const (
	BandHigh   ConfidenceBand = "85+"
	BandMedium ConfidenceBand = "70-84"
	BandLow    ConfidenceBand = "60-69"
)

// Summary is the full Learning Summary digest.
type Summary struct {
	TotalClosed     int
	WinRatePct      float64
	AvgWinPct       float64
	AvgLossPct      float64
	TotalRealisedPnL float64

	WinRateByBand map[ConfidenceBand]float64

	WinRateBySector  map[string]float64
	AvgPnLBySector   map[string]float64

	RejectionReasonCounts map[string]int
}

// Build reduces closed trades and rejected trades into a Summary.
// Every record in closedTrades feeds the P&L-based reducers as given;
// Build does not filter it by status or ClosedAt. Rejected trades
// contribute only to RejectionReasonCounts.
func Build(closedTrades []domain.TradeRecord, rejectedTrades []domain.TradeRecord) Summary {
	s := Summary{
		WinRateByBand:         make(map[ConfidenceBand]float64),
		WinRateBySector:       make(map[string]float64),
		AvgPnLBySector:        make(map[string]float64),
		RejectionReasonCounts: make(map[string]int),
	}

	s.TotalClosed = len(closedTrades)
	if s.TotalClosed == 0 {
		for _, r := range rejectedTrades {
			s.RejectionReasonCounts[r.RejectionReason]++
		}
		return s
	}

	var wins, losses []float64
	var pnls []float64
	bandOutcomes := map[ConfidenceBand][]float64{BandHigh: {}, BandMedium: {}, BandLow: {}}
	sectorOutcomes := make(map[string][]float64)
	sectorPnL := make(map[string][]float64)

	for _, t := range closedTrades {
		pnls = append(pnls, t.RealisedPnL)
		won := t.RealisedPnL > 0
		if won {
			wins = append(wins, t.RealisedPnLPct)
		} else if t.RealisedPnL < 0 {
			losses = append(losses, t.RealisedPnLPct)
		}

		outcome := 0.0
		if won {
			outcome = 1.0
		}
		if band, ok := bandFor(t.CompositeScore); ok {
			bandOutcomes[band] = append(bandOutcomes[band], outcome)
		}
		if t.Sector != "" {
			sectorOutcomes[t.Sector] = append(sectorOutcomes[t.Sector], outcome)
			sectorPnL[t.Sector] = append(sectorPnL[t.Sector], t.RealisedPnL)
		}
	}

	s.TotalRealisedPnL = sum(pnls)
	s.WinRatePct = 100 * float64(len(wins)) / float64(s.TotalClosed)
	s.AvgWinPct = meanOrZero(wins)
	s.AvgLossPct = meanOrZero(losses)

	for band, outcomes := range bandOutcomes {
		if len(outcomes) > 0 {
			s.WinRateByBand[band] = 100 * meanOrZero(outcomes)
		}
	}
	for sector, outcomes := range sectorOutcomes {
		s.WinRateBySector[sector] = 100 * meanOrZero(outcomes)
	}
	for sector, pnl := range sectorPnL {
		s.AvgPnLBySector[sector] = meanOrZero(pnl)
	}

	for _, r := range rejectedTrades {
		s.RejectionReasonCounts[r.RejectionReason]++
	}
	return s
}

func bandFor(composite float64) (ConfidenceBand, bool) {
	switch {
	case composite >= 85:
		return BandHigh, true
	case composite >= 70:
		return BandMedium, true
	case composite >= 60:
		return BandLow, true
	default:
		return "", false
	}
}

func meanOrZero(xs []float64) float64 {
	if len(xs) == 0 {
		return 0
	}
	return stat.Mean(xs, nil)
}

func sum(xs []float64) float64 {
	var total float64
	for _, x := range xs {
		total += x
	}
	return total
}
