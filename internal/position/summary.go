package position

import (
	"fmt"
	"sort"
	"strings"
)

// Summary 渲染当前活跃仓位的可读摘要，用于日志与提示词。
func (l *Ledger) Summary() string {
	positions := l.All()
	if len(positions) == 0 {
		return "当前无活跃仓位"
	}

	sort.Slice(positions, func(i, j int) bool {
		return positions[i].Symbol < positions[j].Symbol
	})

	var b strings.Builder
	b.WriteString("当前活跃仓位:\n")
	for _, pos := range positions {
		fmt.Fprintf(&b, "  %s: %s %.4f @ %.2f (杠杆: %dx, 止损: %.2f)\n",
			pos.Symbol, pos.Direction, pos.Quantity, pos.EntryPrice, pos.Leverage, pos.StopLoss)
	}
	return b.String()
}
