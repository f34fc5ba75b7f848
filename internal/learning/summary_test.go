package learning

import (
	"testing"

	"github.com/stretchr/testify/assert"

	"github.com/jayanthsaib/stock-agent/internal/domain"
)

func TestBuild_EmptyInputIsValid(t *testing.T) {
	s := Build(nil, nil)
	assert.Equal(t, 0, s.TotalClosed)
	assert.Zero(t, s.WinRatePct)
}

func TestBuild_ComputesOverallWinRateAndPnL(t *testing.T) {
	closed := []domain.TradeRecord{
		{RealisedPnL: 1000, RealisedPnLPct: 10, CompositeScore: 90, Sector: "IT"},
		{RealisedPnL: -500, RealisedPnLPct: -5, CompositeScore: 75, Sector: "IT"},
		{RealisedPnL: 300, RealisedPnLPct: 3, CompositeScore: 65, Sector: "Banking"},
	}
	s := Build(closed, nil)

	assert.Equal(t, 3, s.TotalClosed)
	assert.InDelta(t, 66.67, s.WinRatePct, 0.1)
	assert.InDelta(t, 6.5, s.AvgWinPct, 0.01)
	assert.InDelta(t, -5.0, s.AvgLossPct, 0.01)
	assert.InDelta(t, 800, s.TotalRealisedPnL, 0.01)
}

func TestBuild_BucketsByConfidenceBand(t *testing.T) {
	closed := []domain.TradeRecord{
		{RealisedPnL: 100, CompositeScore: 90},
		{RealisedPnL: -100, CompositeScore: 88},
		{RealisedPnL: 100, CompositeScore: 72},
		{RealisedPnL: 100, CompositeScore: 61},
		{RealisedPnL: -100, CompositeScore: 61},
	}
	s := Build(closed, nil)

	assert.InDelta(t, 50.0, s.WinRateByBand[BandHigh], 0.01)
	assert.InDelta(t, 100.0, s.WinRateByBand[BandMedium], 0.01)
	assert.InDelta(t, 50.0, s.WinRateByBand[BandLow], 0.01)
}

func TestBuild_PerSectorWinRateAndAvgPnL(t *testing.T) {
	closed := []domain.TradeRecord{
		{RealisedPnL: 200, Sector: "IT"},
		{RealisedPnL: -100, Sector: "IT"},
		{RealisedPnL: 400, Sector: "Pharma"},
	}
	s := Build(closed, nil)

	assert.InDelta(t, 50.0, s.WinRateBySector["IT"], 0.01)
	assert.InDelta(t, 50.0, s.AvgPnLBySector["IT"], 0.01)
	assert.InDelta(t, 100.0, s.WinRateBySector["Pharma"], 0.01)
	assert.InDelta(t, 400.0, s.AvgPnLBySector["Pharma"], 0.01)
}

func TestBuild_RejectionReasonFrequencies(t *testing.T) {
	rejected := []domain.TradeRecord{
		{RejectionReason: "low confidence"},
		{RejectionReason: "low confidence"},
		{RejectionReason: "sector cap exceeded"},
	}
	s := Build(nil, rejected)

	assert.Equal(t, 2, s.RejectionReasonCounts["low confidence"])
	assert.Equal(t, 1, s.RejectionReasonCounts["sector cap exceeded"])
}

func TestBuild_FlatTradesAreExcludedFromWinLossAverages(t *testing.T) {
	closed := []domain.TradeRecord{
		{RealisedPnL: 0, RealisedPnLPct: 0},
		{RealisedPnL: 100, RealisedPnLPct: 5},
	}
	s := Build(closed, nil)

	assert.InDelta(t, 50.0, s.WinRatePct, 0.01)
	assert.InDelta(t, 5.0, s.AvgWinPct, 0.01)
	assert.Zero(t, s.AvgLossPct)
}
