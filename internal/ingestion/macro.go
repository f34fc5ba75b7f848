package ingestion

import (
	"context"
	"time"

	"github.com/jayanthsaib/stock-agent/internal/domain"
)

// IndexProvider supplies the broad-index daily price series used for
// the macro regime derivation. The broker itself only exposes the
// volatility index; the broad-index series comes from a separate,
// narrowly-scoped secondary provider so that Data Ingestion never
// depends on anything beyond these two small interfaces (§6).
type IndexProvider interface {
	// IndexBars returns up to `days` most recent daily closes for the
	// configured broad market index, oldest first.
	IndexBars(ctx context.Context, days int) ([]domain.Bar, error)
}

// deriveRegime implements the Data Ingestion regime table: BEAR takes
// priority over HIGH_VOLATILITY, which takes priority over BULL: only
// the first matching row applies.
func deriveRegime(vix, indexPrice, index200Mean float64, hardCeiling, caution, favorable float64) domain.Regime {
	switch {
	case vix > hardCeiling && indexPrice < index200Mean:
		return domain.RegimeBear
	case vix > caution:
		return domain.RegimeHighVolatility
	case indexPrice > 1.05*index200Mean && vix < favorable:
		return domain.RegimeBull
	default:
		return domain.RegimeSideways
	}
}

// buildMacroSnapshot fetches the broad-index series and broker VIX,
// derives the regime and suppression flag. On any fetch failure it
// returns the neutral default per the Data Ingestion failure semantics.
func (i *Ingestor) buildMacroSnapshot(ctx context.Context, at time.Time) domain.MacroSnapshot {
	bars, err := i.index.IndexBars(ctx, 200)
	if err != nil || len(bars) < 200 {
		i.log.Warn().Err(err).Msg("macro refresh failed, installing neutral default")
		return domain.NeutralMacroSnapshot(at)
	}

	vix, err := i.broker.VIX(ctx)
	if err != nil {
		i.log.Warn().Err(err).Msg("vix fetch failed, installing neutral default")
		return domain.NeutralMacroSnapshot(at)
	}

	indexPrice := bars[len(bars)-1].Close
	var sum float64
	for _, b := range bars[len(bars)-200:] {
		sum += b.Close
	}
	mean200 := sum / 200

	deviationPct := 0.0
	if mean200 != 0 {
		deviationPct = (indexPrice - mean200) / mean200 * 100
	}

	regime := deriveRegime(vix, indexPrice, mean200, i.cfg.VIXHardCeiling, i.cfg.VIXCaution, i.cfg.VIXFavorable)
	suppressed := vix > i.cfg.VIXHardCeiling || indexPrice < 0.95*mean200

	return domain.MacroSnapshot{
		Date:              at,
		VIX:               vix,
		IndexPrice:        indexPrice,
		Index200DayMean:   mean200,
		IndexDeviationPct: deviationPct,
		Regime:            regime,
		NewBuysSuppressed: suppressed,
	}
}
