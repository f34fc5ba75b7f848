package analysis

import "github.com/jayanthsaib/stock-agent/internal/domain"

// MacroConfig is the subset of configuration the macro scorer
// consumes: the same VIX bands used by Data Ingestion's regime
// derivation.
type MacroConfig struct {
	VIXNoBuys    float64
	VIXCaution   float64
	VIXFavorable float64
}

// ForeignFlowInput is the foreign-institutional-flow heuristic input.
// No real source populates this in the distilled tree (§9 open
// question b); the neutral zero value always yields no adjustment.
type ForeignFlowInput struct {
	NetFlowScore float64 // conservative default: 0, meaning "no signal"
}

// MacroResult is the macro scorer's typed output.
type MacroResult struct {
	Score             float64
	Narrative         string
	Suppressed        bool
	ConfidencePenalty float64
}

// ScoreMacro implements §4.4 "Macro". If the snapshot's
// new-buys-suppressed flag is set, the score is forced to 0 and
// Suppressed is true; the Signal Generator short-circuits on this.
func ScoreMacro(macro domain.MacroSnapshot, flow ForeignFlowInput, cfg MacroConfig) MacroResult {
	if macro.NewBuysSuppressed {
		return MacroResult{Score: 0, Suppressed: true, Narrative: "new buys suppressed by macro conditions"}
	}

	score := 50.0
	var notes []string

	switch {
	case macro.VIX < cfg.VIXFavorable:
		score += 20
		notes = append(notes, "favorable volatility (+20)")
	case macro.VIX < cfg.VIXCaution:
		score += 8
		notes = append(notes, "neutral volatility (+8)")
	default:
		score -= 15
		notes = append(notes, "cautious volatility (-15)")
	}

	switch {
	case macro.IndexDeviationPct > 5:
		score += 15
		notes = append(notes, "index well above 200-MA (+15)")
	case macro.IndexDeviationPct > 0:
		score += 8
		notes = append(notes, "index above 200-MA (+8)")
	case macro.IndexDeviationPct > -5:
		score -= 8
		notes = append(notes, "index below 200-MA (-8)")
	default:
		score -= 20
		notes = append(notes, "index well below 200-MA (-20)")
	}

	score += flow.NetFlowScore

	switch macro.Regime {
	case domain.RegimeBull:
		score += 10
		notes = append(notes, "bull regime (+10)")
	case domain.RegimeBear:
		score -= 20
		notes = append(notes, "bear regime (-20)")
	case domain.RegimeHighVolatility:
		score -= 10
		notes = append(notes, "high-volatility regime (-10)")
	}

	penalty := 0.0
	if macro.Regime == domain.RegimeHighVolatility {
		penalty = 5
	}

	return MacroResult{
		Score:             clamp(score, 0, 100),
		Narrative:         narrativeJoin(notes),
		ConfidencePenalty: penalty,
	}
}

func narrativeJoin(notes []string) string {
	out := ""
	for i, n := range notes {
		if i > 0 {
			out += "; "
		}
		out += n
	}
	return out
}
