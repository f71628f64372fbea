package market

import (
	"fmt"
	"math"
	"strings"

	talib "github.com/markcheno/go-talib"

	"consensus-trader/internal/exchange"
)

const minKlines = 50

// series 将K线拆分为指标计算所需的数组。
type series struct {
	High   []float64
	Low    []float64
	Close  []float64
	Volume []float64
}

func newSeries(klines []exchange.Kline) series {
	length := len(klines)
	s := series{
		High:   make([]float64, length),
		Low:    make([]float64, length),
		Close:  make([]float64, length),
		Volume: make([]float64, length),
	}
	for i, k := range klines {
		s.High[i] = k.High
		s.Low[i] = k.Low
		s.Close[i] = k.Close
		s.Volume[i] = k.Volume
	}
	return s
}

// indicators 为单个周期的技术指标集合。
type indicators struct {
	EMA20  []float64
	EMA50  []float64
	MACD   []float64
	Signal []float64
	Hist   []float64
	RSI7   []float64
	RSI14  []float64
	ATR3   []float64
	ATR14  []float64
	Volume []float64
}

// computeIndicators 计算技术指标，longTerm 控制是否计算趋势周期专用指标。
func computeIndicators(klines []exchange.Kline, longTerm bool) (indicators, error) {
	if len(klines) < minKlines {
		return indicators{}, fmt.Errorf("K线数量不足: %d < %d", len(klines), minKlines)
	}

	s := newSeries(klines)
	result := indicators{
		EMA20:  talib.Ema(s.Close, 20),
		RSI7:   talib.Rsi(s.Close, 7),
		RSI14:  talib.Rsi(s.Close, 14),
		Volume: s.Volume,
	}
	result.MACD, result.Signal, result.Hist = talib.Macd(s.Close, 12, 26, 9)

	if longTerm {
		result.EMA50 = talib.Ema(s.Close, 50)
		result.ATR3 = talib.Atr(s.High, s.Low, s.Close, 3)
		result.ATR14 = talib.Atr(s.High, s.Low, s.Close, 14)
	}

	return result, nil
}

// last 返回序列最后一个值，空序列返回 NaN。
func last(values []float64) float64 {
	if len(values) == 0 {
		return math.NaN()
	}
	return values[len(values)-1]
}

// tail 返回序列末尾 n 个值，不足时返回全部。
func tail(values []float64, n int) []float64 {
	if n <= 0 || len(values) == 0 {
		return nil
	}
	if len(values) <= n {
		return values
	}
	return values[len(values)-n:]
}

// mean 计算均值，空序列返回0。
func mean(values []float64) float64 {
	if len(values) == 0 {
		return 0
	}
	var sum float64
	for _, v := range values {
		sum += v
	}
	return sum / float64(len(values))
}

// formatSeries 以三位小数渲染序列，供提示词使用。
func formatSeries(values []float64) string {
	parts := make([]string, 0, len(values))
	for _, v := range values {
		parts = append(parts, fmt.Sprintf("%.3f", v))
	}
	return "[" + strings.Join(parts, ", ") + "]"
}
