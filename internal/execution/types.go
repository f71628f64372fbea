package execution

import (
	"context"

	"consensus-trader/internal/exchange"
	"consensus-trader/internal/proposal"
)

// OrderAPI 抽象执行引擎依赖的交易所操作，便于替换与测试。
type OrderAPI interface {
	SetLeverage(ctx context.Context, symbol string, leverage int) error
	PlaceMarketOrder(ctx context.Context, symbol, side string, quantity float64) (exchange.OrderAck, error)
	PlaceStopMarket(ctx context.Context, symbol, side string, stopPrice float64) (exchange.OrderAck, error)
	CancelOrder(ctx context.Context, symbol string, orderID int64) error
	CancelProtectiveOrders(ctx context.Context, symbol string) error
}

// Status 为单条决策的终态。
type Status string

const (
	StatusSuccess              Status = "success"
	StatusSkippedLowConfidence Status = "skipped_low_confidence"
	StatusSkippedLossPosition  Status = "skipped_loss_position"
	StatusFailed               Status = "failed"
)

// Detail 记录单条决策的执行结果。
type Detail struct {
	Symbol string          `json:"symbol"`
	Action proposal.Action `json:"action"`
	Status Status          `json:"status"`
	Error  string          `json:"error,omitempty"`
}

// Summary 为一个执行周期的结果统计。
type Summary struct {
	Total                int      `json:"total"`
	Executed             int      `json:"executed"`
	SkippedLowConfidence int      `json:"skipped_low_confidence"`
	Failed               int      `json:"failed"`
	Details              []Detail `json:"details"`
}
