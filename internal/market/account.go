package market

import (
	"fmt"
	"strings"

	"consensus-trader/internal/exchange"
)

// AccountText 将账户快照与持仓摘要渲染为提示词文本。
func AccountText(summary exchange.AccountSummary, positionSummary string) string {
	var b strings.Builder
	divider := strings.Repeat("=", 60)

	fmt.Fprintf(&b, "\n%s\nHERE IS YOUR ACCOUNT INFORMATION & PERFORMANCE\n%s\n\n", divider, divider)

	fmt.Fprintf(&b, "Available Cash: %.1f\n\n", summary.AvailableBalance)
	fmt.Fprintf(&b, "Current Account Value: %.1f\n\n", summary.TotalWalletBalance)
	fmt.Fprintf(&b, "Unrealized PnL: %.2f\n\n", summary.TotalUnrealized)

	if len(summary.Positions) > 0 {
		b.WriteString("Current live positions & performance:\n")
		for _, pos := range summary.Positions {
			fmt.Fprintf(&b, "%s: amt=%.4f entry=%.2f upnl=%.2f leverage=%.0fx\n",
				pos.Symbol, pos.PositionAmt, pos.EntryPrice, pos.UnrealizedProfit, pos.Leverage)
		}
	} else {
		b.WriteString("No current positions\n")
	}

	if positionSummary != "" {
		b.WriteString("\n")
		b.WriteString(positionSummary)
	}

	b.WriteString("\n")
	return b.String()
}
