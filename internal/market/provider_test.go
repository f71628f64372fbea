package market

import (
	"context"
	"fmt"
	"math"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"consensus-trader/internal/config"
	"consensus-trader/internal/exchange"
)

func testKlines(count int, basePrice float64) []exchange.Kline {
	klines := make([]exchange.Kline, count)
	for i := range klines {
		price := basePrice + float64(i)
		klines[i] = exchange.Kline{
			Open:   price,
			High:   price + 1,
			Low:    price - 1,
			Close:  price,
			Volume: 100 + float64(i),
		}
	}
	return klines
}

func TestComputeIndicators(t *testing.T) {
	ind, err := computeIndicators(testKlines(60, 100), true)
	if err != nil {
		t.Fatalf("computeIndicators returned error: %v", err)
	}

	if len(ind.EMA20) != 60 || len(ind.RSI7) != 60 {
		t.Errorf("indicator series must match input length: ema=%d rsi=%d", len(ind.EMA20), len(ind.RSI7))
	}
	if len(ind.EMA50) == 0 || len(ind.ATR14) == 0 {
		t.Errorf("long-term indicators must be computed when requested")
	}

	// 单调上涨序列：EMA 滞后于价格，RSI 接近超买。
	if lastEMA := last(ind.EMA20); lastEMA >= 159 || lastEMA <= 100 {
		t.Errorf("implausible EMA20 for rising series: %v", lastEMA)
	}
	if rsi := last(ind.RSI7); rsi < 90 {
		t.Errorf("expected near-overbought RSI for strictly rising closes, got %v", rsi)
	}
}

func TestComputeIndicators_ShortTermSkipsTrendIndicators(t *testing.T) {
	ind, err := computeIndicators(testKlines(60, 100), false)
	if err != nil {
		t.Fatalf("computeIndicators returned error: %v", err)
	}
	if len(ind.EMA50) != 0 || len(ind.ATR3) != 0 {
		t.Errorf("short-term mode must not compute trend indicators")
	}
}

func TestComputeIndicators_TooFewKlines(t *testing.T) {
	if _, err := computeIndicators(testKlines(10, 100), false); err == nil {
		t.Fatalf("expected error for insufficient klines")
	}
}

func TestIndicatorHelpers(t *testing.T) {
	if !math.IsNaN(last(nil)) {
		t.Errorf("last of empty series must be NaN")
	}
	if got := last([]float64{1, 2, 3}); got != 3 {
		t.Errorf("last = %v, want 3", got)
	}

	if got := tail([]float64{1, 2, 3, 4}, 2); len(got) != 2 || got[0] != 3 {
		t.Errorf("unexpected tail: %v", got)
	}
	if got := tail([]float64{1, 2}, 5); len(got) != 2 {
		t.Errorf("tail beyond length must return all: %v", got)
	}

	if got := mean([]float64{1, 2, 3}); got != 2 {
		t.Errorf("mean = %v, want 2", got)
	}
	if got := mean(nil); got != 0 {
		t.Errorf("mean of empty series must be 0, got %v", got)
	}

	if got := formatSeries([]float64{1, 2.5}); got != "[1.000, 2.500]" {
		t.Errorf("unexpected series format: %q", got)
	}
}

func TestMarketText_RendersSectionsInConfigOrder(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		switch r.URL.Path {
		case "/fapi/v1/klines":
			var rows []string
			for i := 0; i < 60; i++ {
				price := 100 + i
				rows = append(rows, fmt.Sprintf(
					`[1700000000000, "%d", "%d", "%d", "%d", "100", 1700000059999]`,
					price, price+1, price-1, price))
			}
			fmt.Fprintf(w, "[%s]", strings.Join(rows, ","))
		case "/fapi/v1/openInterest":
			w.Write([]byte(`{"openInterest": "12345.67"}`))
		case "/fapi/v1/premiumIndex":
			w.Write([]byte(`{"lastFundingRate": "0.0001"}`))
		default:
			t.Errorf("unexpected path: %s", r.URL.Path)
		}
	}))
	defer server.Close()

	client := exchange.NewClient(config.ExchangeConfig{BaseURL: server.URL}, nil)
	provider := NewProvider(client, nil)

	pairs := []config.PairConfig{
		{Symbol: "ETHUSDT", ShortInterval: "3m", LongInterval: "4h", KlineLimit: 60},
		{Symbol: "BTCUSDT", ShortInterval: "3m", LongInterval: "4h", KlineLimit: 60},
	}

	text, err := provider.MarketText(context.Background(), pairs)
	if err != nil {
		t.Fatalf("MarketText returned error: %v", err)
	}

	ethIdx := strings.Index(text, "ALL ETHUSDT DATA")
	btcIdx := strings.Index(text, "ALL BTCUSDT DATA")
	if ethIdx == -1 || btcIdx == -1 {
		t.Fatalf("missing pair sections:\n%s", text)
	}
	if ethIdx > btcIdx {
		t.Errorf("sections must follow config order")
	}

	for _, fragment := range []string{
		"current_price = 159.00",
		"Open Interest: Latest: 12345.67",
		"Intraday series (3m, oldest → latest):",
		"Longer-term context (4h timeframe):",
		"Current Volume: 100.000",
	} {
		if !strings.Contains(text, fragment) {
			t.Errorf("market text missing %q", fragment)
		}
	}
}

func TestMarketText_StatsFailureTolerated(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		switch r.URL.Path {
		case "/fapi/v1/klines":
			var rows []string
			for i := 0; i < 60; i++ {
				rows = append(rows, `[1700000000000, "100", "101", "99", "100", "100", 1700000059999]`)
			}
			fmt.Fprintf(w, "[%s]", strings.Join(rows, ","))
		default:
			w.Write([]byte(`{"code": -1000, "msg": "unavailable"}`))
		}
	}))
	defer server.Close()

	client := exchange.NewClient(config.ExchangeConfig{BaseURL: server.URL}, nil)
	provider := NewProvider(client, nil)

	text, err := provider.MarketText(context.Background(), []config.PairConfig{
		{Symbol: "BTCUSDT", ShortInterval: "3m", LongInterval: "4h", KlineLimit: 60},
	})
	if err != nil {
		t.Fatalf("stats failure must not fail the pair: %v", err)
	}
	if !strings.Contains(text, "Open Interest: Latest: 0.00") {
		t.Errorf("expected zeroed stats in output:\n%s", text)
	}
}

func TestAccountText(t *testing.T) {
	summary := exchange.AccountSummary{
		TotalWalletBalance: 10000.5,
		AvailableBalance:   8000.25,
		TotalUnrealized:    -12.34,
		Positions: []exchange.AccountPosition{
			{Symbol: "BTCUSDT", PositionAmt: 0.1, EntryPrice: 50000, UnrealizedProfit: -12.34, Leverage: 5},
		},
	}

	text := AccountText(summary, "当前活跃仓位:\n  BTCUSDT: LONG 0.1000 @ 50000.00 (杠杆: 5x, 止损: 45000.00)\n")

	for _, fragment := range []string{
		"HERE IS YOUR ACCOUNT INFORMATION & PERFORMANCE",
		"Available Cash: 8000.2",
		"Current Account Value: 10000.5",
		"Unrealized PnL: -12.34",
		"BTCUSDT: amt=0.1000 entry=50000.00 upnl=-12.34 leverage=5x",
		"当前活跃仓位:",
	} {
		if !strings.Contains(text, fragment) {
			t.Errorf("account text missing %q:\n%s", fragment, text)
		}
	}
}

func TestAccountText_NoPositions(t *testing.T) {
	text := AccountText(exchange.AccountSummary{AvailableBalance: 100}, "当前无活跃仓位")
	if !strings.Contains(text, "No current positions") {
		t.Errorf("expected empty-position marker:\n%s", text)
	}
}
