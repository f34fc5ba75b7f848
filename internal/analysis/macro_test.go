package analysis

import (
	"testing"

	"github.com/stretchr/testify/assert"

	"github.com/jayanthsaib/stock-agent/internal/domain"
)

func macroConfig() MacroConfig {
	return MacroConfig{VIXNoBuys: 25, VIXCaution: 20, VIXFavorable: 15}
}

func TestScoreMacro_SuppressedShortCircuits(t *testing.T) {
	macro := domain.MacroSnapshot{NewBuysSuppressed: true, Regime: domain.RegimeBear}
	result := ScoreMacro(macro, ForeignFlowInput{}, macroConfig())

	assert.True(t, result.Suppressed)
	assert.Equal(t, 0.0, result.Score)
}

func TestScoreMacro_BullFavorableScoresHigh(t *testing.T) {
	macro := domain.MacroSnapshot{
		VIX:               10,
		IndexDeviationPct: 6,
		Regime:            domain.RegimeBull,
	}
	result := ScoreMacro(macro, ForeignFlowInput{}, macroConfig())

	assert.False(t, result.Suppressed)
	assert.Greater(t, result.Score, 80.0)
	assert.Equal(t, 0.0, result.ConfidencePenalty)
}

func TestScoreMacro_HighVolatilityAppliesConfidencePenalty(t *testing.T) {
	macro := domain.MacroSnapshot{
		VIX:               22,
		IndexDeviationPct: -1,
		Regime:            domain.RegimeHighVolatility,
	}
	result := ScoreMacro(macro, ForeignFlowInput{}, macroConfig())

	assert.Greater(t, result.ConfidencePenalty, 0.0)
}
