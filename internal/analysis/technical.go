package analysis

import (
	"fmt"

	"github.com/markcheno/go-talib"

	"github.com/jayanthsaib/stock-agent/internal/domain"
)

// TechnicalConfig is the subset of configuration the technical
// scorer consumes (periods, thresholds).
type TechnicalConfig struct {
	LongMAPeriod              int
	MediumMAPeriod            int
	ShortMAPeriod             int
	RSIPeriod                 int
	MACDFast                  int
	MACDSlow                  int
	MACDSignal                int
	SupportResistanceWindow   int
	PriceAbove200MACeilingPct float64
	RSIOverbought             float64
	RSIOversoldDeep           float64
	RSIOversoldBand           float64
}

// TechnicalResult is the technical scorer's typed output.
type TechnicalResult struct {
	Score       float64
	Narrative   string
	SMA200      float64
	SMA50       float64
	SMA20       float64
	RSI14       float64
	MACD        float64
	MACDSignal  float64
	Support     float64
	Resistance  float64
	GoldenCross bool
	DeathCross  bool
}

// ErrInsufficientBars is returned when the snapshot carries fewer
// than domain.MinBarsForTechnical bars.
type ErrInsufficientBars struct{ Have, Need int }

func (e ErrInsufficientBars) Error() string {
	return fmt.Sprintf("insufficient bars for technical analysis: have %d, need %d", e.Have, e.Need)
}

// ScoreTechnical implements §4.4 "Technical". It requires at least
// domain.MinBarsForTechnical bars; callers must never pass a snapshot
// that fails Eligible().
func ScoreTechnical(snap domain.StockSnapshot, cfg TechnicalConfig) (TechnicalResult, error) {
	if !snap.Eligible() {
		return TechnicalResult{}, ErrInsufficientBars{Have: len(snap.Bars), Need: domain.MinBarsForTechnical}
	}

	closes := make([]float64, len(snap.Bars))
	highs := make([]float64, len(snap.Bars))
	lows := make([]float64, len(snap.Bars))
	volumes := make([]float64, len(snap.Bars))
	for i, b := range snap.Bars {
		closes[i] = b.Close
		highs[i] = b.High
		lows[i] = b.Low
		volumes[i] = float64(b.Volume)
	}

	sma200 := talib.Sma(closes, cfg.LongMAPeriod)
	sma50 := talib.Sma(closes, cfg.MediumMAPeriod)
	sma20 := talib.Sma(closes, cfg.ShortMAPeriod)
	rsi := talib.Rsi(closes, cfg.RSIPeriod)
	macd, macdSignal, _ := talib.Macd(closes, cfg.MACDFast, cfg.MACDSlow, cfg.MACDSignal)
	volSMA20 := talib.Sma(volumes, cfg.ShortMAPeriod)

	last := len(closes) - 1
	currentClose := closes[last]
	currentSMA200 := sma200[last]
	currentSMA50 := sma50[last]
	currentSMA20 := sma20[last]
	currentRSI := rsi[last]
	currentMACD := macd[last]
	currentMACDSignal := macdSignal[last]

	support := minOf(lows[len(lows)-cfg.SupportResistanceWindow:])
	resistance := maxOf(highs[len(highs)-cfg.SupportResistanceWindow:])

	goldenCross := sma50[last-1] < sma200[last-1] && currentSMA50 >= currentSMA200
	deathCross := sma50[last-1] > sma200[last-1] && currentSMA50 <= currentSMA200

	score := 50.0
	var notes []string

	deviation200 := (currentClose - currentSMA200) / currentSMA200 * 100
	switch {
	case currentClose > currentSMA200 && deviation200 <= cfg.PriceAbove200MACeilingPct:
		score += 15
		notes = append(notes, "above 200-MA within ceiling (+15)")
	case currentClose > currentSMA200:
		score -= 10
		notes = append(notes, "above 200-MA but overextended (-10)")
	default:
		score -= 25
		notes = append(notes, "below 200-MA (-25)")
	}

	if currentClose > currentSMA50 {
		score += 8
		notes = append(notes, "above 50-MA (+8)")
	}
	if currentClose > currentSMA20 {
		score += 5
		notes = append(notes, "above 20-MA (+5)")
	}
	if goldenCross {
		score += 12
		notes = append(notes, "golden cross (+12)")
	}
	if deathCross {
		score -= 20
		notes = append(notes, "death cross (-20)")
	}

	switch {
	case currentRSI > cfg.RSIOverbought:
		score -= 15
		notes = append(notes, "RSI overbought (-15)")
	case currentRSI > cfg.RSIOversoldBand && currentRSI <= cfg.RSIOverbought:
		score += 5
		notes = append(notes, "RSI neutral (+5)")
	case currentRSI > cfg.RSIOversoldDeep && currentRSI <= cfg.RSIOversoldBand:
		score += 8
		notes = append(notes, "RSI just above oversold (+8)")
	default:
		score -= 5
		notes = append(notes, "RSI deeply oversold (-5)")
	}

	if currentMACD > currentMACDSignal && macd[last-1] <= macdSignal[last-1] {
		score += 10
		notes = append(notes, "MACD bullish crossover (+10)")
	}

	if volumes[last] > volSMA20[last] {
		score += 7
		notes = append(notes, "above-average volume (+7)")
	} else {
		score -= 5
		notes = append(notes, "below-average volume (-5)")
	}

	result := TechnicalResult{
		Score:       clamp(score, 0, 100),
		Narrative:   narrativeJoin(notes),
		SMA200:      currentSMA200,
		SMA50:       currentSMA50,
		SMA20:       currentSMA20,
		RSI14:       currentRSI,
		MACD:        currentMACD,
		MACDSignal:  currentMACDSignal,
		Support:     support,
		Resistance:  resistance,
		GoldenCross: goldenCross,
		DeathCross:  deathCross,
	}
	return result, nil
}

func minOf(values []float64) float64 {
	m := values[0]
	for _, v := range values[1:] {
		if v < m {
			m = v
		}
	}
	return m
}

func maxOf(values []float64) float64 {
	m := values[0]
	for _, v := range values[1:] {
		if v > m {
			m = v
		}
	}
	return m
}
