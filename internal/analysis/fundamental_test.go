package analysis

import (
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestScoreFundamental_HardDisqualifierOnDebtToEquity(t *testing.T) {
	in := FundamentalInput{DebtToEquity: 3.0, RevenueCAGR5Y: 20, ReturnOnEquity: 25}
	result := ScoreFundamental(in, FundamentalConfig{MaxDebtToEquity: 2.0})

	assert.Equal(t, 0.0, result.Score)
	assert.True(t, result.Disqualified)
}

func TestScoreFundamental_StrongBusinessScoresHigh(t *testing.T) {
	in := FundamentalInput{
		RevenueCAGR5Y:          18,
		ReturnOnEquity:         22,
		ReturnOnCapital:        20,
		DebtToEquity:           0.3,
		PositiveOCFYearsLast5:  5,
		PromoterHoldingPct:     60,
		PromoterPledgingPct:    0,
		PEGRatio:               0.8,
		PriceToSectorMedianPct: 90,
		SectorOutlookScore:     8,
	}
	result := ScoreFundamental(in, FundamentalConfig{MaxDebtToEquity: 2.0})

	assert.False(t, result.Disqualified)
	assert.Greater(t, result.Score, 80.0)
	assert.LessOrEqual(t, result.Score, 100.0)
}

func TestScoreFundamental_WeakBusinessScoresLow(t *testing.T) {
	in := FundamentalInput{
		RevenueCAGR5Y:         0,
		ReturnOnEquity:        2,
		ReturnOnCapital:       2,
		DebtToEquity:          1.9,
		PositiveOCFYearsLast5: 0,
		PromoterPledgingPct:   5,
	}
	result := ScoreFundamental(in, FundamentalConfig{MaxDebtToEquity: 2.0})

	assert.False(t, result.Disqualified)
	assert.Less(t, result.Score, 20.0)
}

type stubProvider struct {
	inputs map[string]FundamentalInput
	errs   map[string]error
}

func (s stubProvider) Fundamentals(symbol string) (FundamentalInput, error) {
	if err, ok := s.errs[symbol]; ok {
		return FundamentalInput{}, err
	}
	return s.inputs[symbol], nil
}

func TestScoreFundamentalBatch_IsolatesPerSymbolFailures(t *testing.T) {
	provider := stubProvider{
		inputs: map[string]FundamentalInput{
			"GOOD": {RevenueCAGR5Y: 15, ReturnOnEquity: 18, ReturnOnCapital: 18, DebtToEquity: 0.5, PositiveOCFYearsLast5: 5},
		},
		errs: map[string]error{
			"BAD": errors.New("provider unavailable"),
		},
	}

	results := ScoreFundamentalBatch([]string{"GOOD", "BAD"}, provider, FundamentalConfig{MaxDebtToEquity: 2.0}, 5)

	require := map[string]FundamentalBatchResult{}
	for _, r := range results {
		require[r.Symbol] = r
	}

	assert.NoError(t, require["GOOD"].Err)
	assert.Greater(t, require["GOOD"].Result.Score, 0.0)
	assert.Error(t, require["BAD"].Err)
}
