package exchange

import (
	"context"
	"encoding/json"
	"fmt"
	"sync"

	"github.com/shopspring/decimal"
	"go.uber.org/zap"
)

// InstrumentRules 为单个交易对的交易约束，取自 exchangeInfo 过滤器。
// 拉取成功后不再变化，进程生命周期内缓存。
type InstrumentRules struct {
	Symbol string

	QuantityStep decimal.Decimal
	MinQuantity  decimal.Decimal

	// 市价单专用的数量过滤器，交易所未定义时 HasMarketLot 为 false。
	HasMarketLot       bool
	MarketQuantityStep decimal.Decimal
	MarketMinQuantity  decimal.Decimal

	MinNotional decimal.Decimal
	PriceTick   decimal.Decimal

	QuantityPrecision int32
	PricePrecision    int32
}

// RuleCache 按需拉取并缓存交易规则，拉取失败不会污染缓存。
type RuleCache struct {
	client *Client
	logger *zap.Logger

	mu    sync.Mutex
	rules map[string]*InstrumentRules
}

// NewRuleCache 创建规则缓存。
func NewRuleCache(client *Client, logger *zap.Logger) *RuleCache {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &RuleCache{
		client: client,
		logger: logger,
		rules:  make(map[string]*InstrumentRules),
	}
}

// Rules 返回交易对的规则，首次访问时调用 exchangeInfo 接口。
func (rc *RuleCache) Rules(ctx context.Context, symbol string) (*InstrumentRules, error) {
	rc.mu.Lock()
	if cached, ok := rc.rules[symbol]; ok {
		rc.mu.Unlock()
		return cached, nil
	}
	rc.mu.Unlock()

	payload, err := rc.client.Public(ctx, "/fapi/v1/exchangeInfo", map[string]string{"symbol": symbol})
	if err != nil {
		return nil, fmt.Errorf("获取交易规则失败 %s: %w", symbol, err)
	}

	rules, err := parseInstrumentRules(symbol, payload)
	if err != nil {
		return nil, err
	}

	rc.mu.Lock()
	rc.rules[symbol] = rules
	rc.mu.Unlock()

	rc.logger.Info("已缓存交易规则",
		zap.String("symbol", symbol),
		zap.String("quantity_step", rules.QuantityStep.String()),
		zap.String("min_notional", rules.MinNotional.String()),
	)

	return rules, nil
}

type exchangeInfoPayload struct {
	Symbols []struct {
		Symbol            string `json:"symbol"`
		QuantityPrecision int32  `json:"quantityPrecision"`
		PricePrecision    int32  `json:"pricePrecision"`
		Filters           []struct {
			FilterType  string `json:"filterType"`
			StepSize    string `json:"stepSize"`
			MinQty      string `json:"minQty"`
			TickSize    string `json:"tickSize"`
			Notional    string `json:"notional"`
			MinNotional string `json:"minNotional"`
		} `json:"filters"`
	} `json:"symbols"`
}

func parseInstrumentRules(symbol string, payload json.RawMessage) (*InstrumentRules, error) {
	if err := checkRejection(payload); err != nil {
		return nil, fmt.Errorf("%w: %s (%v)", ErrUnknownInstrument, symbol, err)
	}

	var info exchangeInfoPayload
	if err := json.Unmarshal(payload, &info); err != nil {
		return nil, fmt.Errorf("解析交易规则失败 %s: %w", symbol, err)
	}
	if len(info.Symbols) == 0 {
		return nil, fmt.Errorf("%w: %s", ErrUnknownInstrument, symbol)
	}

	meta := info.Symbols[0]
	rules := &InstrumentRules{
		Symbol:            symbol,
		QuantityPrecision: meta.QuantityPrecision,
		PricePrecision:    meta.PricePrecision,
	}

	for _, filter := range meta.Filters {
		switch filter.FilterType {
		case "LOT_SIZE":
			rules.QuantityStep = parseDecimal(filter.StepSize)
			rules.MinQuantity = parseDecimal(filter.MinQty)
		case "MARKET_LOT_SIZE":
			rules.HasMarketLot = true
			rules.MarketQuantityStep = parseDecimal(filter.StepSize)
			rules.MarketMinQuantity = parseDecimal(filter.MinQty)
		case "PRICE_FILTER":
			rules.PriceTick = parseDecimal(filter.TickSize)
		case "MIN_NOTIONAL", "NOTIONAL":
			// 两种过滤器命名都存在：MIN_NOTIONAL.notional 或 NOTIONAL.minNotional。
			if filter.Notional != "" {
				rules.MinNotional = parseDecimal(filter.Notional)
			} else {
				rules.MinNotional = parseDecimal(filter.MinNotional)
			}
		}
	}

	return rules, nil
}

func parseDecimal(raw string) decimal.Decimal {
	if raw == "" {
		return decimal.Zero
	}
	value, err := decimal.NewFromString(raw)
	if err != nil {
		return decimal.Zero
	}
	return value
}

// NormalizeQuantity 按规则规范化下单数量：先向下取整到步长，
// 不足最小数量时抬升至最小数量，名义金额不足时向上补足到步长倍数，
// 最后按数量精度舍入。市价单优先使用 MARKET_LOT_SIZE 过滤器。
func NormalizeQuantity(rules *InstrumentRules, qty, price float64, marketOrder bool) float64 {
	step := rules.QuantityStep
	minQty := rules.MinQuantity
	if marketOrder && rules.HasMarketLot {
		step = rules.MarketQuantityStep
		minQty = rules.MarketMinQuantity
	}

	quantity := decimal.NewFromFloat(qty)

	if step.IsPositive() {
		quantity = quantity.Div(step).Floor().Mul(step)
	}

	if minQty.IsPositive() && quantity.LessThan(minQty) {
		quantity = minQty
	}

	if price > 0 && rules.MinNotional.IsPositive() {
		priceDec := decimal.NewFromFloat(price)
		notional := quantity.Mul(priceDec)
		if notional.LessThan(rules.MinNotional) {
			target := rules.MinNotional.Div(priceDec)
			if step.IsPositive() {
				target = target.Div(step).Ceil().Mul(step)
			}
			if target.GreaterThan(quantity) {
				quantity = target
			}
		}
	}

	quantity = quantity.Round(rules.QuantityPrecision)
	result, _ := quantity.Float64()
	return result
}

// NormalizePrice 将价格向下取整到最小变动单位，并按价格精度舍入。
func NormalizePrice(rules *InstrumentRules, price float64) float64 {
	value := decimal.NewFromFloat(price)
	if rules.PriceTick.IsPositive() {
		value = value.Div(rules.PriceTick).Floor().Mul(rules.PriceTick)
	}
	value = value.Round(rules.PricePrecision)
	result, _ := value.Float64()
	return result
}
