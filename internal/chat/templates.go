package chat

import (
	"fmt"
	"strings"

	"github.com/jayanthsaib/stock-agent/internal/domain"
)

const reportTimeLayout = "02-Jan-2006 15:04"

const divider = "━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━"

// PreTradeReport renders the exact §6 pre-trade analysis report
// template for a pending proposal and its portfolio allocation
// percentage.
func PreTradeReport(p domain.TradeProposal, allocationPct float64) string {
	var b strings.Builder
	fmt.Fprintf(&b, "📊 PRE-TRADE ANALYSIS REPORT — %s\n", p.GeneratedAt.Format(reportTimeLayout))
	b.WriteString(divider + "\n")
	fmt.Fprintf(&b, "TRADE ID          :  %s\n", p.ID)
	fmt.Fprintf(&b, "ASSET NAME        :  %s (%s: %s)\n", p.Symbol, p.Exchange, p.Symbol)
	fmt.Fprintf(&b, "SIGNAL TYPE       :  %s\n", p.Side)
	b.WriteString(divider + "\n")
	fmt.Fprintf(&b, "BUY PRICE         :  ₹%.2f  (Limit order)\n", p.Entry)
	fmt.Fprintf(&b, "TARGET PRICE      :  ₹%.2f\n", p.Target)
	fmt.Fprintf(&b, "STOP-LOSS PRICE   :  ₹%.2f   (NEVER moved down)\n", p.Stop)
	fmt.Fprintf(&b, "RISK-REWARD RATIO :  1 : %.2f\n", p.RiskRewardRatio)
	fmt.Fprintf(&b, "CONFIDENCE SCORE  :  %.0f%%  [F:%.0f%% T:%.0f%% M:%.0f%% RR:%.0f%%]\n",
		p.Confidence.Composite, p.Confidence.Fundamental, p.Confidence.Technical, p.Confidence.Macro, p.Confidence.RiskReward)
	b.WriteString(divider + "\n")
	fmt.Fprintf(&b, "CAPITAL ALLOC     :  ₹%.2f  (%.1f%% of portfolio)\n", p.CapitalAllocation, allocationPct)
	b.WriteString(divider + "\n")
	fmt.Fprintf(&b, "📲 Reply: APPROVE %s  or  REJECT %s [reason]\n", p.ID, p.ID)
	fmt.Fprintf(&b, "⏰ Signal expires at: %s\n", p.ExpiresAt.Format(reportTimeLayout))
	return b.String()
}
