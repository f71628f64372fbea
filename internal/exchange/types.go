package exchange

import "time"

// 交易所订单字段常量。
const (
	SideBuy  = "BUY"
	SideSell = "SELL"

	OrderTypeMarket     = "MARKET"
	OrderTypeStop       = "STOP"
	OrderTypeStopMarket = "STOP_MARKET"
)

// OrderAck 为下单接口的确认结果。
// Quantity 为规范化后实际提交的数量，止损单该字段为0。
type OrderAck struct {
	OrderID   int64   `json:"orderId"`
	Symbol    string  `json:"symbol"`
	Side      string  `json:"side"`
	Type      string  `json:"type"`
	Status    string  `json:"status"`
	Quantity  float64 `json:"-"`
	StopPrice float64 `json:"-"`
}

// OpenOrder 为未成交订单列表中的单条记录。
type OpenOrder struct {
	OrderID int64  `json:"orderId"`
	Symbol  string `json:"symbol"`
	Type    string `json:"type"`
	Side    string `json:"side"`
}

// Kline 代表单根K线。
type Kline struct {
	OpenTime  time.Time
	Open      float64
	High      float64
	Low       float64
	Close     float64
	Volume    float64
	CloseTime time.Time
}

// AccountPosition 为账户快照中的单个持仓。
type AccountPosition struct {
	Symbol           string
	PositionAmt      float64
	EntryPrice       float64
	UnrealizedProfit float64
	Leverage         float64
}

// AccountSummary 为账户资金快照。
type AccountSummary struct {
	TotalWalletBalance float64
	AvailableBalance   float64
	TotalUnrealized    float64
	Positions          []AccountPosition
	Timestamp          time.Time
}

// MarketStats 聚合持仓量与资金费率。
type MarketStats struct {
	OpenInterest float64
	FundingRate  float64
}
