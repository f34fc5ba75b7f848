package signals

import (
	"testing"

	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/jayanthsaib/stock-agent/internal/analysis"
	"github.com/jayanthsaib/stock-agent/internal/domain"
)

func defaultConfig() Config {
	return Config{
		MaxStopLossPct:         8,
		MinStopLossPct:         2,
		MinRiskRewardRatio:     1.5,
		MinConfidenceToNotify:  60,
		ApprovalWindowMinutes:  30,
		PortfolioValue:         500000,
		MaxSingleStockPct:      10,
		EmergencyCashBufferPct: 10,
	}
}

func defaultWeights() Weights {
	return Weights{Fundamental: 0.35, Technical: 0.30, Macro: 0.20, RiskReward: 0.15}
}

func TestGenerate_FullCycleApprovedScenario(t *testing.T) {
	gen := New(defaultConfig(), defaultWeights(), nil, zerolog.Nop())

	in := SymbolAnalysis{
		Snapshot:    domain.StockSnapshot{Symbol: "S", Exchange: domain.ExchangeNSE, LastPrice: 100},
		Fundamental: analysis.FundamentalResult{Score: 80},
		Technical:   analysis.TechnicalResult{Score: 70, Support: 95, Resistance: 120},
		Macro:       analysis.MacroResult{Score: 65},
	}

	proposals := gen.Generate([]SymbolAnalysis{in})
	require.Len(t, proposals, 1)

	p := proposals[0]
	assert.Equal(t, "S", p.Symbol)
	assert.Equal(t, 120.0, p.Target)
	assert.InDelta(t, 77.0, p.Confidence.Composite, 0.5)
	assert.Regexp(t, "^TRD-[0-9A-F]{12}$", p.ID)
	assert.Equal(t, domain.StatusPendingApproval, p.Status)
	assert.Greater(t, p.Entry, p.Stop)
	assert.Greater(t, p.Target, p.Entry)
}

func TestGenerate_DisqualifiedFundamentalDropsProposal(t *testing.T) {
	gen := New(defaultConfig(), defaultWeights(), nil, zerolog.Nop())

	in := SymbolAnalysis{
		Snapshot:    domain.StockSnapshot{Symbol: "S", LastPrice: 100},
		Fundamental: analysis.FundamentalResult{Score: 0, Disqualified: true},
		Technical:   analysis.TechnicalResult{Score: 70, Support: 95, Resistance: 120},
		Macro:       analysis.MacroResult{Score: 65},
	}

	proposals := gen.Generate([]SymbolAnalysis{in})
	assert.Empty(t, proposals)
}

func TestGenerate_BelowConfidenceThresholdDropsProposal(t *testing.T) {
	cfg := defaultConfig()
	cfg.MinConfidenceToNotify = 90
	gen := New(cfg, defaultWeights(), nil, zerolog.Nop())

	in := SymbolAnalysis{
		Snapshot:    domain.StockSnapshot{Symbol: "S", LastPrice: 100},
		Fundamental: analysis.FundamentalResult{Score: 80},
		Technical:   analysis.TechnicalResult{Score: 70, Support: 95, Resistance: 120},
		Macro:       analysis.MacroResult{Score: 65},
	}

	proposals := gen.Generate([]SymbolAnalysis{in})
	assert.Empty(t, proposals)
}

func TestGenerate_EmptyUniverseIsValid(t *testing.T) {
	gen := New(defaultConfig(), defaultWeights(), nil, zerolog.Nop())
	proposals := gen.Generate(nil)
	assert.Empty(t, proposals)
}

func TestDeriveStop_FallsBackWhenSupportNonPositive(t *testing.T) {
	stop := deriveStop(100, 0, 2, 8)
	assert.Equal(t, 98.0, stop)
}

func TestDeriveStop_ClampsToConfiguredBand(t *testing.T) {
	stop := deriveStop(100, 10, 2, 8) // support*0.99=9.9, way below floor
	assert.Equal(t, 92.0, stop)       // clamped to entry*(1-0.08)
}

func TestScoreRiskReward_Bands(t *testing.T) {
	assert.Equal(t, 100.0, scoreRiskReward(3.5))
	assert.Equal(t, 85.0, scoreRiskReward(2.7))
	assert.Equal(t, 70.0, scoreRiskReward(2.1))
	assert.Equal(t, 40.0, scoreRiskReward(1.6))
	assert.Equal(t, 0.0, scoreRiskReward(1.0))
}

func TestGenerate_ProducesUniqueIDsAcrossSymbols(t *testing.T) {
	gen := New(defaultConfig(), defaultWeights(), nil, zerolog.Nop())

	inputs := []SymbolAnalysis{
		{Snapshot: domain.StockSnapshot{Symbol: "A", LastPrice: 100}, Fundamental: analysis.FundamentalResult{Score: 80}, Technical: analysis.TechnicalResult{Score: 70, Support: 95, Resistance: 120}, Macro: analysis.MacroResult{Score: 65}},
		{Snapshot: domain.StockSnapshot{Symbol: "B", LastPrice: 200}, Fundamental: analysis.FundamentalResult{Score: 80}, Technical: analysis.TechnicalResult{Score: 70, Support: 190, Resistance: 240}, Macro: analysis.MacroResult{Score: 65}},
	}

	proposals := gen.Generate(inputs)
	require.Len(t, proposals, 2)
	assert.NotEqual(t, proposals[0].ID, proposals[1].ID)
}
