package exchange

import (
	"context"
	"encoding/json"
	"fmt"
	"strconv"
	"time"
)

// Klines 获取指定周期的K线数据，按时间升序返回。
func (c *Client) Klines(ctx context.Context, symbol, interval string, limit int) ([]Kline, error) {
	if limit <= 0 {
		limit = 100
	}

	payload, err := c.Public(ctx, "/fapi/v1/klines", map[string]string{
		"symbol":   symbol,
		"interval": interval,
		"limit":    strconv.Itoa(limit),
	})
	if err != nil {
		return nil, err
	}
	if err := checkRejection(payload); err != nil {
		return nil, err
	}

	// K线应答为数组的数组，时间戳是数字而价格是字符串，逐个转换。
	var rows [][]interface{}
	if err := json.Unmarshal(payload, &rows); err != nil {
		return nil, fmt.Errorf("解析K线数据失败 %s: %w", symbol, err)
	}

	klines := make([]Kline, 0, len(rows))
	for _, row := range rows {
		if len(row) < 7 {
			continue
		}
		klines = append(klines, Kline{
			OpenTime:  time.UnixMilli(int64(cellToFloat(row[0]))).UTC(),
			Open:      cellToFloat(row[1]),
			High:      cellToFloat(row[2]),
			Low:       cellToFloat(row[3]),
			Close:     cellToFloat(row[4]),
			Volume:    cellToFloat(row[5]),
			CloseTime: time.UnixMilli(int64(cellToFloat(row[6]))).UTC(),
		})
	}

	return klines, nil
}

// OpenInterestAndFunding 获取持仓量与最新资金费率。
func (c *Client) OpenInterestAndFunding(ctx context.Context, symbol string) (MarketStats, error) {
	var stats MarketStats

	oiPayload, err := c.Public(ctx, "/fapi/v1/openInterest", map[string]string{"symbol": symbol})
	if err != nil {
		return stats, err
	}
	var oi struct {
		OpenInterest string `json:"openInterest"`
	}
	if err := json.Unmarshal(oiPayload, &oi); err != nil {
		return stats, fmt.Errorf("解析持仓量失败 %s: %w", symbol, err)
	}
	stats.OpenInterest = parseFloat(oi.OpenInterest)

	fundingPayload, err := c.Public(ctx, "/fapi/v1/premiumIndex", map[string]string{"symbol": symbol})
	if err != nil {
		return stats, err
	}
	var funding struct {
		LastFundingRate string `json:"lastFundingRate"`
	}
	if err := json.Unmarshal(fundingPayload, &funding); err != nil {
		return stats, fmt.Errorf("解析资金费率失败 %s: %w", symbol, err)
	}
	stats.FundingRate = parseFloat(funding.LastFundingRate)

	return stats, nil
}

func cellToFloat(cell interface{}) float64 {
	switch v := cell.(type) {
	case float64:
		return v
	case string:
		return parseFloat(v)
	default:
		return 0
	}
}
