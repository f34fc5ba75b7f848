package risk

import (
	"testing"

	"github.com/stretchr/testify/assert"

	"github.com/jayanthsaib/stock-agent/internal/domain"
)

func defaultConfig() Config {
	return Config{
		MinStockPrice:          20,
		MinRiskRewardRatio:     1.5,
		MinStopLossPct:         2,
		MaxStopLossPct:         8,
		HardCapSingleStockPct:  15,
		MaxOpenPositions:       10,
		MaxSectorPct:           25,
		MaxNewBuysPerWeek:      5,
		MinPositionSize:        5000,
		WideStopWarningPct:     10,
		SizeReductionThreshold: 70,
	}
}

func passingProposal() domain.TradeProposal {
	return domain.TradeProposal{
		Symbol:            "TCS",
		Side:              domain.SideBuy,
		Entry:             100,
		Target:            110,
		Stop:              95,
		RiskRewardRatio:   2.0,
		CapitalAllocation: 10000,
		Confidence:        domain.ConfidenceScore{Composite: 80},
	}
}

func passingInputs() Inputs {
	return Inputs{
		CashBufferSafe:    true,
		SectorExposurePct: 5,
		AllocationPct:     10,
		NewBuysThisWeek:   1,
	}
}

func TestValidate_AllPass(t *testing.T) {
	result := Validate(passingProposal(), passingInputs(), defaultConfig())
	assert.True(t, result.Passed)
	assert.Empty(t, result.Failures)
}

func TestValidate_RiskRewardBelowMinimumFails(t *testing.T) {
	p := passingProposal()
	p.RiskRewardRatio = 1.0
	result := Validate(p, passingInputs(), defaultConfig())
	assert.False(t, result.Passed)
	assert.Contains(t, result.Failures[0], "risk-reward")
}

func TestValidate_NoAveragingDownOnExistingSymbol(t *testing.T) {
	in := passingInputs()
	in.OpenPositions = []domain.OpenPosition{{Symbol: "TCS", Active: true}}
	result := Validate(passingProposal(), in, defaultConfig())
	assert.False(t, result.Passed)
	assert.Contains(t, result.Failures, "symbol already has an open position (no averaging down)")
}

func TestValidate_MarketOrderTypeFails(t *testing.T) {
	in := passingInputs()
	in.OrderTypeIsMarket = true
	result := Validate(passingProposal(), in, defaultConfig())
	assert.False(t, result.Passed)
}

func TestValidate_MarginWarningIsNonBlocking(t *testing.T) {
	cfg := defaultConfig()
	cfg.AllowMargin = true
	result := Validate(passingProposal(), passingInputs(), cfg)
	assert.True(t, result.Passed)
	assert.NotEmpty(t, result.Warnings)
}

func TestValidate_SectorExposureOverCapFails(t *testing.T) {
	in := passingInputs()
	in.SectorExposurePct = 20
	in.AllocationPct = 10
	result := Validate(passingProposal(), in, defaultConfig())
	assert.False(t, result.Passed)
}

func TestValidate_WideStopWarns(t *testing.T) {
	p := passingProposal()
	p.Stop = 88 // (100-88)/100*100 = 12%, within [2,8]? No, that fails MaxStopLossPct too.
	result := Validate(p, passingInputs(), defaultConfig())
	assert.False(t, result.Passed, "12%% stop exceeds max configured 8%%")
	assert.Contains(t, result.Warnings, "stop-loss 12.00% is unusually wide")
}

func TestValidate_IsIdempotent(t *testing.T) {
	p := passingProposal()
	in := passingInputs()
	cfg := defaultConfig()

	first := Validate(p, in, cfg)
	second := Validate(p, in, cfg)
	assert.Equal(t, first, second)
}

func TestSectorExposurePct_SumsSameSectorOnly(t *testing.T) {
	positions := []domain.OpenPosition{
		{Sector: "IT", EntryPrice: 100, Quantity: 50},
		{Sector: "IT", EntryPrice: 200, Quantity: 25},
		{Sector: "Banking", EntryPrice: 500, Quantity: 10},
	}
	pct := SectorExposurePct(positions, "IT", 100000)
	assert.InDelta(t, 10.0, pct, 0.01) // (5000+5000)/100000*100
}
