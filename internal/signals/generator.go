// Package signals implements the Signal Generator (§4.5): it fans
// analysis out across all stock snapshots, derives price levels, and
// emits the surviving trade proposals.
package signals

import (
	"fmt"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/rs/zerolog"

	"github.com/jayanthsaib/stock-agent/internal/analysis"
	"github.com/jayanthsaib/stock-agent/internal/domain"
)

// Config groups every threshold the generator consumes directly.
type Config struct {
	MaxStopLossPct        float64
	MinStopLossPct        float64
	MinRiskRewardRatio    float64
	MinConfidenceToNotify float64
	ApprovalWindowMinutes int

	PortfolioValue         float64
	MaxSingleStockPct      float64
	EmergencyCashBufferPct float64
}

// Weights is the four composite sub-score weights; must sum to 1
// (enforced by config.Config.Validate before reaching this package).
type Weights struct {
	Fundamental float64
	Technical   float64
	Macro       float64
	RiskReward  float64
}

// SectorLookup resolves a symbol to its sector, used only for the
// proposal's informational Sector field; sector-exposure enforcement
// itself lives in the Risk Validator.
type SectorLookup func(symbol string) string

// Generator produces trade proposals from analysis output.
type Generator struct {
	cfg     Config
	weights Weights
	sector  SectorLookup
	log     zerolog.Logger
}

// New builds a Generator.
func New(cfg Config, weights Weights, sector SectorLookup, log zerolog.Logger) *Generator {
	return &Generator{cfg: cfg, weights: weights, sector: sector, log: log.With().Str("component", "signals").Logger()}
}

// SymbolAnalysis is one symbol's pre-computed analysis output, fed in
// by the orchestrator after running the three scorers.
type SymbolAnalysis struct {
	Snapshot    domain.StockSnapshot
	Fundamental analysis.FundamentalResult
	Technical   analysis.TechnicalResult
	Macro       analysis.MacroResult
}

// Generate runs levels derivation, scoring and filtering over every
// symbol and returns the surviving proposals. The empty set is a
// valid outcome (§8 boundary behaviour) and never an error.
func (g *Generator) Generate(inputs []SymbolAnalysis) []domain.TradeProposal {
	now := time.Now()
	seen := make(map[string]bool)
	var mu sync.Mutex
	var proposals []domain.TradeProposal

	var wg sync.WaitGroup
	for _, in := range inputs {
		in := in
		wg.Add(1)
		go func() {
			defer wg.Done()
			proposal, ok := g.evaluate(in, now, &mu, seen)
			if !ok {
				return
			}
			mu.Lock()
			proposals = append(proposals, proposal)
			mu.Unlock()
		}()
	}
	wg.Wait()

	return proposals
}

func (g *Generator) evaluate(in SymbolAnalysis, now time.Time, mu *sync.Mutex, seen map[string]bool) (domain.TradeProposal, bool) {
	if in.Fundamental.Disqualified {
		return domain.TradeProposal{}, false
	}

	entry := in.Snapshot.LastPrice
	if entry <= 0 {
		return domain.TradeProposal{}, false
	}

	stop := deriveStop(entry, in.Technical.Support, g.cfg.MinStopLossPct, g.cfg.MaxStopLossPct)
	target := deriveTarget(entry, in.Technical.Resistance)

	riskReward := 0.0
	if entry > stop {
		riskReward = (target - entry) / (entry - stop)
	}

	rrScore := scoreRiskReward(riskReward)

	macroScore := maxFloat(0, in.Macro.Score-in.Macro.ConfidencePenalty)
	composite := in.Fundamental.Score*g.weights.Fundamental +
		in.Technical.Score*g.weights.Technical +
		macroScore*g.weights.Macro +
		rrScore*g.weights.RiskReward

	if composite < g.cfg.MinConfidenceToNotify {
		return domain.TradeProposal{}, false
	}

	allocation := g.cfg.PortfolioValue * g.cfg.MaxSingleStockPct / 100
	postTradeCash := g.cfg.PortfolioValue*(1-g.cfg.EmergencyCashBufferPct/100) - allocation
	_ = postTradeCash >= 0 // cash_buffer_safe is computed per proposal by scheduler.SignalCycleJob and checked by the Risk Validator

	sector := ""
	if g.sector != nil {
		sector = g.sector(in.Snapshot.Symbol)
	}

	id := g.uniqueID(mu, seen)

	narrative := fmt.Sprintf("fundamental: %s | technical: %s | macro: %s",
		in.Fundamental.Narrative, in.Technical.Narrative, in.Macro.Narrative)

	return domain.TradeProposal{
		ID:                id,
		Symbol:            in.Snapshot.Symbol,
		Exchange:          in.Snapshot.Exchange,
		Side:              domain.SideBuy,
		Entry:             entry,
		Target:            target,
		Stop:              stop,
		RiskRewardRatio:   riskReward,
		Confidence:        domain.ConfidenceScore{Fundamental: in.Fundamental.Score, Technical: in.Technical.Score, Macro: macroScore, RiskReward: rrScore, Composite: composite},
		CapitalAllocation: allocation,
		Sector:            sector,
		Narrative:         domain.TruncateNarrative(narrative),
		GeneratedAt:       now,
		ExpiresAt:         now.Add(time.Duration(g.cfg.ApprovalWindowMinutes) * time.Minute),
		Status:            domain.StatusPendingApproval,
	}, true
}

// deriveStop implements spec.md §4.5's clamp rule. When support is
// non-positive it falls back to entry·(1−min_stop_pct).
func deriveStop(entry, support, minStopPct, maxStopPct float64) float64 {
	floor := entry * (1 - maxStopPct/100)
	ceiling := entry * (1 - minStopPct/100)
	if support <= 0 {
		return ceiling
	}
	candidate := support * 0.99
	return clampFloat(candidate, floor, ceiling)
}

// deriveTarget returns resistance when it clears a 3% premium over
// entry, else a flat 10% target.
func deriveTarget(entry, resistance float64) float64 {
	if resistance > entry*1.03 {
		return resistance
	}
	return entry * 1.10
}

// scoreRiskReward implements the §4.5 risk-reward band scoring.
func scoreRiskReward(rr float64) float64 {
	switch {
	case rr >= 3.0:
		return 100
	case rr >= 2.5:
		return 85
	case rr >= 2.0:
		return 70
	case rr >= 1.5:
		return 40
	default:
		return 0
	}
}

// uniqueID produces a TRD-<12 uppercase hex chars> identifier, unique
// within this process's lifetime.
func (g *Generator) uniqueID(mu *sync.Mutex, seen map[string]bool) string {
	for {
		raw := strings.ToUpper(strings.ReplaceAll(uuid.NewString(), "-", ""))
		id := "TRD-" + raw[:12]

		mu.Lock()
		if !seen[id] {
			seen[id] = true
			mu.Unlock()
			return id
		}
		mu.Unlock()
	}
}

func clampFloat(v, min, max float64) float64 {
	if min > max {
		min, max = max, min
	}
	if v < min {
		return min
	}
	if v > max {
		return max
	}
	return v
}

func maxFloat(a, b float64) float64 {
	if a > b {
		return a
	}
	return b
}
