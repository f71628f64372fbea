package exchange

import (
	"context"
	"encoding/json"
	"fmt"
	"math"
	"net/http"
	"strconv"
	"time"

	"go.uber.org/zap"
)

// SetLeverage 为交易对设置杠杆倍数，未知交易对直接失败。
func (c *Client) SetLeverage(ctx context.Context, symbol string, leverage int) error {
	if _, err := c.Rules(ctx, symbol); err != nil {
		return fmt.Errorf("无法设置杠杆: %w", err)
	}

	payload, err := c.Signed(ctx, http.MethodPost, "/fapi/v1/leverage", map[string]string{
		"symbol":   symbol,
		"leverage": strconv.Itoa(leverage),
	})
	if err != nil {
		return err
	}
	if err := checkRejection(payload); err != nil {
		return err
	}

	c.logger.Info("设置杠杆成功", zap.String("symbol", symbol), zap.Int("leverage", leverage))
	return nil
}

// TickerPrice 获取交易对最新成交价。
func (c *Client) TickerPrice(ctx context.Context, symbol string) (float64, error) {
	payload, err := c.Public(ctx, "/fapi/v1/ticker/price", map[string]string{"symbol": symbol})
	if err != nil {
		return 0, err
	}
	if err := checkRejection(payload); err != nil {
		return 0, err
	}

	var ticker struct {
		Price string `json:"price"`
	}
	if err := json.Unmarshal(payload, &ticker); err != nil {
		return 0, fmt.Errorf("解析最新价失败 %s: %w", symbol, err)
	}
	return parseFloat(ticker.Price), nil
}

// PlaceMarketOrder 下市价单。数量先按交易规则规范化，
// 规范化后数量无效时直接拒绝下单。
func (c *Client) PlaceMarketOrder(ctx context.Context, symbol, side string, quantity float64) (OrderAck, error) {
	rules, err := c.Rules(ctx, symbol)
	if err != nil {
		return OrderAck{}, fmt.Errorf("取消下单: %w", err)
	}

	// 最新价仅用于最小名义金额判断，获取失败时按0处理。
	price, priceErr := c.TickerPrice(ctx, symbol)
	if priceErr != nil {
		c.logger.Warn("获取最新价失败，按价格0规范化数量",
			zap.String("symbol", symbol),
			zap.Error(priceErr),
		)
		price = 0
	}

	normalized := NormalizeQuantity(rules, quantity, price, true)
	if normalized <= 0 {
		return OrderAck{}, fmt.Errorf("数量规范化后无效，取消下单: 原数量=%.8f 规范化后=%.8f", quantity, normalized)
	}
	if math.Abs(normalized-quantity) > 1e-8 {
		c.logger.Info("数量规范化",
			zap.String("symbol", symbol),
			zap.Float64("raw", quantity),
			zap.Float64("normalized", normalized),
		)
	}

	payload, err := c.Signed(ctx, http.MethodPost, "/fapi/v1/order", map[string]string{
		"symbol":   symbol,
		"side":     side,
		"type":     OrderTypeMarket,
		"quantity": strconv.FormatFloat(normalized, 'f', -1, 64),
	})
	if err != nil {
		return OrderAck{}, err
	}
	if err := checkRejection(payload); err != nil {
		return OrderAck{}, err
	}

	var ack OrderAck
	if err := json.Unmarshal(payload, &ack); err != nil {
		return OrderAck{}, fmt.Errorf("解析下单应答失败: %w", err)
	}
	ack.Quantity = normalized

	c.logger.Info("市价单执行成功",
		zap.String("symbol", symbol),
		zap.String("side", side),
		zap.Float64("quantity", normalized),
		zap.Int64("order_id", ack.OrderID),
	)
	return ack, nil
}

// PlaceStopMarket 下止损市价单，closePosition=true 表示触发后直接全部平仓。
func (c *Client) PlaceStopMarket(ctx context.Context, symbol, side string, stopPrice float64) (OrderAck, error) {
	rules, err := c.Rules(ctx, symbol)
	if err != nil {
		return OrderAck{}, fmt.Errorf("取消止损单: %w", err)
	}

	normalized := NormalizePrice(rules, stopPrice)

	payload, err := c.Signed(ctx, http.MethodPost, "/fapi/v1/order", map[string]string{
		"symbol":        symbol,
		"side":          side,
		"type":          OrderTypeStopMarket,
		"stopPrice":     strconv.FormatFloat(normalized, 'f', -1, 64),
		"closePosition": "true",
	})
	if err != nil {
		return OrderAck{}, err
	}
	if err := checkRejection(payload); err != nil {
		return OrderAck{}, err
	}

	var ack OrderAck
	if err := json.Unmarshal(payload, &ack); err != nil {
		return OrderAck{}, fmt.Errorf("解析止损单应答失败: %w", err)
	}
	ack.StopPrice = normalized

	c.logger.Info("止损单设置成功",
		zap.String("symbol", symbol),
		zap.String("side", side),
		zap.Float64("stop_price", normalized),
		zap.Int64("order_id", ack.OrderID),
	)
	return ack, nil
}

// CancelOrder 取消指定订单。
func (c *Client) CancelOrder(ctx context.Context, symbol string, orderID int64) error {
	payload, err := c.Signed(ctx, http.MethodDelete, "/fapi/v1/order", map[string]string{
		"symbol":  symbol,
		"orderId": strconv.FormatInt(orderID, 10),
	})
	if err != nil {
		return err
	}
	if err := checkRejection(payload); err != nil {
		return err
	}

	c.logger.Info("订单取消成功", zap.String("symbol", symbol), zap.Int64("order_id", orderID))
	return nil
}

// OpenOrders 列出交易对的未成交订单。
func (c *Client) OpenOrders(ctx context.Context, symbol string) ([]OpenOrder, error) {
	payload, err := c.Signed(ctx, http.MethodGet, "/fapi/v1/openOrders", map[string]string{
		"symbol": symbol,
	})
	if err != nil {
		return nil, err
	}
	if err := checkRejection(payload); err != nil {
		return nil, err
	}

	var orders []OpenOrder
	if err := json.Unmarshal(payload, &orders); err != nil {
		return nil, fmt.Errorf("解析未成交订单失败: %w", err)
	}
	return orders, nil
}

// CancelProtectiveOrders 取消交易对的所有止损类订单。
// 列表拉取失败时视为无可取消订单，仅记录告警。
func (c *Client) CancelProtectiveOrders(ctx context.Context, symbol string) error {
	orders, err := c.OpenOrders(ctx, symbol)
	if err != nil {
		c.logger.Warn("获取未成交订单失败，跳过止损单清理",
			zap.String("symbol", symbol),
			zap.Error(err),
		)
		return nil
	}

	var failed int
	for _, order := range orders {
		if order.Type != OrderTypeStop && order.Type != OrderTypeStopMarket {
			continue
		}
		if err := c.CancelOrder(ctx, symbol, order.OrderID); err != nil {
			failed++
			c.logger.Warn("取消止损单失败",
				zap.String("symbol", symbol),
				zap.Int64("order_id", order.OrderID),
				zap.Error(err),
			)
		}
	}

	if failed > 0 {
		return fmt.Errorf("部分止损单取消失败 symbol=%s failed=%d", symbol, failed)
	}
	return nil
}

// AccountSnapshot 获取账户资金与持仓快照。
func (c *Client) AccountSnapshot(ctx context.Context) (AccountSummary, error) {
	payload, err := c.Signed(ctx, http.MethodGet, "/fapi/v2/account", nil)
	if err != nil {
		return AccountSummary{}, err
	}
	if err := checkRejection(payload); err != nil {
		return AccountSummary{}, err
	}

	var raw struct {
		TotalWalletBalance    string `json:"totalWalletBalance"`
		AvailableBalance      string `json:"availableBalance"`
		TotalUnrealizedProfit string `json:"totalUnrealizedProfit"`
		Positions             []struct {
			Symbol           string `json:"symbol"`
			PositionAmt      string `json:"positionAmt"`
			EntryPrice       string `json:"entryPrice"`
			UnrealizedProfit string `json:"unrealizedProfit"`
			Leverage         string `json:"leverage"`
		} `json:"positions"`
	}
	if err := json.Unmarshal(payload, &raw); err != nil {
		return AccountSummary{}, fmt.Errorf("解析账户快照失败: %w", err)
	}

	summary := AccountSummary{
		TotalWalletBalance: parseFloat(raw.TotalWalletBalance),
		AvailableBalance:   parseFloat(raw.AvailableBalance),
		TotalUnrealized:    parseFloat(raw.TotalUnrealizedProfit),
		Timestamp:          time.Now().UTC(),
	}
	for _, pos := range raw.Positions {
		amount := parseFloat(pos.PositionAmt)
		if amount == 0 {
			continue
		}
		summary.Positions = append(summary.Positions, AccountPosition{
			Symbol:           pos.Symbol,
			PositionAmt:      amount,
			EntryPrice:       parseFloat(pos.EntryPrice),
			UnrealizedProfit: parseFloat(pos.UnrealizedProfit),
			Leverage:         parseFloat(pos.Leverage),
		})
	}

	return summary, nil
}

// PositionRisk 查询指定合约的持仓风险信息，无持仓时返回 ErrNoPosition。
func (c *Client) PositionRisk(ctx context.Context, symbol string) (AccountPosition, error) {
	payload, err := c.Signed(ctx, http.MethodGet, "/fapi/v2/positionRisk", nil)
	if err != nil {
		return AccountPosition{}, err
	}
	if err := checkRejection(payload); err != nil {
		return AccountPosition{}, err
	}

	var raw []struct {
		Symbol           string `json:"symbol"`
		PositionAmt      string `json:"positionAmt"`
		EntryPrice       string `json:"entryPrice"`
		UnrealizedProfit string `json:"unRealizedProfit"`
		Leverage         string `json:"leverage"`
	}
	if err := json.Unmarshal(payload, &raw); err != nil {
		return AccountPosition{}, fmt.Errorf("解析持仓风险失败: %w", err)
	}

	for _, pos := range raw {
		if pos.Symbol != symbol {
			continue
		}
		amount := parseFloat(pos.PositionAmt)
		if amount == 0 {
			continue
		}
		return AccountPosition{
			Symbol:           pos.Symbol,
			PositionAmt:      amount,
			EntryPrice:       parseFloat(pos.EntryPrice),
			UnrealizedProfit: parseFloat(pos.UnrealizedProfit),
			Leverage:         parseFloat(pos.Leverage),
		}, nil
	}

	return AccountPosition{}, ErrNoPosition
}

func parseFloat(raw string) float64 {
	value, err := strconv.ParseFloat(raw, 64)
	if err != nil {
		return 0
	}
	return value
}
