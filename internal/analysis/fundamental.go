// Package analysis implements the three independent scorers —
// fundamental, technical and macro — that feed the Signal Generator's
// composite confidence score (§4.4). Each scorer returns the same
// shape: a score in [0,100], a narrative, and a typed result record.
package analysis

import "fmt"

// FundamentalConfig is the subset of configuration the fundamental
// scorer consumes.
type FundamentalConfig struct {
	MaxDebtToEquity float64
}

// FundamentalInput is the rolling multi-year business-quality data a
// fundamental-data provider supplies for one symbol. Fields the
// provider cannot supply take conservative zero defaults.
type FundamentalInput struct {
	RevenueCAGR5Y          float64 // percent
	ReturnOnEquity         float64 // percent
	ReturnOnCapital        float64 // percent
	DebtToEquity           float64
	PositiveOCFYearsLast5  int
	PromoterHoldingPct     float64
	PromoterPledgingPct    float64
	PEGRatio               float64
	PriceToSectorMedianPct float64 // >100 means trading above sector median
	SectorOutlookScore     float64 // provider-supplied, already in [0,10]
}

// FundamentalResult is the fundamental scorer's typed output.
type FundamentalResult struct {
	Score        float64
	Narrative    string
	Disqualified bool
}

// FundamentalProvider supplies FundamentalInput for a symbol. The
// orchestrator guards concurrent calls with a bounded semaphore (§5)
// since the real provider is itself rate-limited.
type FundamentalProvider interface {
	Fundamentals(symbol string) (FundamentalInput, error)
}

// ScoreFundamental implements §4.4 "Fundamental". Debt-to-equity over
// the configured ceiling is a hard disqualifier: score is forced to 0
// regardless of every other factor.
func ScoreFundamental(in FundamentalInput, cfg FundamentalConfig) FundamentalResult {
	if in.DebtToEquity > cfg.MaxDebtToEquity {
		return FundamentalResult{
			Score:        0,
			Narrative:    fmt.Sprintf("disqualified: debt-to-equity %.2f exceeds ceiling %.2f", in.DebtToEquity, cfg.MaxDebtToEquity),
			Disqualified: true,
		}
	}

	revenueScore := clamp(in.RevenueCAGR5Y, 0, 20)
	profitabilityScore := clamp((in.ReturnOnEquity+in.ReturnOnCapital)/2, 0, 20)
	deScore := deScore(in.DebtToEquity, cfg.MaxDebtToEquity)
	cashFlowScore := float64(in.PositiveOCFYearsLast5) / 5 * 15
	promoterScore := promoterScore(in)
	valuationScore := valuationScore(in)
	sectorOutlookScore := clamp(in.SectorOutlookScore, 0, 10)

	total := revenueScore + profitabilityScore + deScore + cashFlowScore + promoterScore + valuationScore + sectorOutlookScore
	score := clamp(total, 0, 100)

	narrative := fmt.Sprintf(
		"revenue CAGR %.1f%% (%.1f pts), ROE/ROC %.1f%%/%.1f%% (%.1f pts), D/E %.2f (%.1f pts), "+
			"%d/5 positive-OCF years (%.1f pts), promoter %.1f pts, valuation %.1f pts, sector outlook %.1f pts",
		in.RevenueCAGR5Y, revenueScore, in.ReturnOnEquity, in.ReturnOnCapital, profitabilityScore,
		in.DebtToEquity, deScore, in.PositiveOCFYearsLast5, cashFlowScore, promoterScore, valuationScore, sectorOutlookScore,
	)

	return FundamentalResult{Score: score, Narrative: narrative}
}

func deScore(de, ceiling float64) float64 {
	if ceiling <= 0 || de < 0 {
		return 0
	}
	return clamp((ceiling-de)/ceiling*15, 0, 15)
}

func promoterScore(in FundamentalInput) float64 {
	if in.PromoterPledgingPct > 0 {
		return -10
	}
	if in.PromoterHoldingPct >= 50 {
		return 10
	}
	return 0
}

func valuationScore(in FundamentalInput) float64 {
	score := 0.0
	switch {
	case in.PEGRatio > 0 && in.PEGRatio < 1:
		score += 6
	case in.PEGRatio > 0 && in.PEGRatio < 1.5:
		score += 3
	}
	if in.PriceToSectorMedianPct > 0 && in.PriceToSectorMedianPct < 100 {
		score += 4
	}
	return clamp(score, 0, 10)
}

func clamp(v, min, max float64) float64 {
	if v < min {
		return min
	}
	if v > max {
		return max
	}
	return v
}
