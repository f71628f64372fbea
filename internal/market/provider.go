package market

import (
	"context"
	"fmt"
	"strings"

	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"

	"consensus-trader/internal/config"
	"consensus-trader/internal/exchange"
)

// Provider 组装提示词所需的市场数据文本：K线序列、技术指标、
// 持仓量与资金费率，全部按"最旧 → 最新"排列。
type Provider struct {
	client *exchange.Client
	logger *zap.Logger
}

// NewProvider 创建市场数据提供者。
func NewProvider(client *exchange.Client, logger *zap.Logger) *Provider {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Provider{
		client: client,
		logger: logger,
	}
}

// MarketText 并发拉取全部交易对的数据，按配置顺序拼接为整体文本。
// 任一交易对失败则整个周期放弃，由调用方决定是否跳过。
func (p *Provider) MarketText(ctx context.Context, pairs []config.PairConfig) (string, error) {
	sections := make([]string, len(pairs))

	group, groupCtx := errgroup.WithContext(ctx)
	for i, pair := range pairs {
		group.Go(func() error {
			section, err := p.pairText(groupCtx, pair)
			if err != nil {
				return fmt.Errorf("拉取 %s 市场数据失败: %w", pair.Symbol, err)
			}
			sections[i] = section
			return nil
		})
	}
	if err := group.Wait(); err != nil {
		return "", err
	}

	return strings.Join(sections, ""), nil
}

func (p *Provider) pairText(ctx context.Context, pair config.PairConfig) (string, error) {
	shortKlines, err := p.client.Klines(ctx, pair.Symbol, pair.ShortInterval, pair.KlineLimit)
	if err != nil {
		return "", err
	}
	longKlines, err := p.client.Klines(ctx, pair.Symbol, pair.LongInterval, pair.KlineLimit)
	if err != nil {
		return "", err
	}

	shortInd, err := computeIndicators(shortKlines, false)
	if err != nil {
		return "", err
	}
	longInd, err := computeIndicators(longKlines, true)
	if err != nil {
		return "", err
	}

	stats, err := p.client.OpenInterestAndFunding(ctx, pair.Symbol)
	if err != nil {
		p.logger.Warn("获取持仓量与资金费率失败",
			zap.String("symbol", pair.Symbol),
			zap.Error(err),
		)
		stats = exchange.MarketStats{}
	}

	currentPrice := shortKlines[len(shortKlines)-1].Close

	var b strings.Builder
	divider := strings.Repeat("=", 60)

	fmt.Fprintf(&b, "\n%s\nALL %s DATA\n%s\n\n", divider, pair.Symbol, divider)

	fmt.Fprintf(&b, "current_price = %.2f, current_ema20 = %.3f, current_macd = %.3f, current_rsi (7 period) = %.3f\n\n",
		currentPrice, last(shortInd.EMA20), last(shortInd.MACD), last(shortInd.RSI7))

	fmt.Fprintf(&b, "Open Interest: Latest: %.2f\n", stats.OpenInterest)
	fmt.Fprintf(&b, "Funding Rate: %.2e\n\n", stats.FundingRate)

	fmt.Fprintf(&b, "Intraday series (%s, oldest → latest):\n\n", pair.ShortInterval)

	closes := make([]float64, 0, 10)
	for _, k := range shortKlines[maxInt(0, len(shortKlines)-10):] {
		closes = append(closes, k.Close)
	}
	fmt.Fprintf(&b, "Mid prices: %s\n\n", formatSeries(closes))
	fmt.Fprintf(&b, "EMA indicators (20-period): %s\n\n", formatSeries(tail(shortInd.EMA20, 10)))
	fmt.Fprintf(&b, "MACD indicators: %s\n\n", formatSeries(tail(shortInd.MACD, 10)))
	fmt.Fprintf(&b, "RSI indicators (7-Period): %s\n\n", formatSeries(tail(shortInd.RSI7, 10)))
	fmt.Fprintf(&b, "RSI indicators (14-Period): %s\n\n", formatSeries(tail(shortInd.RSI14, 10)))

	fmt.Fprintf(&b, "Longer-term context (%s timeframe):\n\n", pair.LongInterval)
	fmt.Fprintf(&b, "20-Period EMA: %.3f vs. 50-Period EMA: %.3f\n\n",
		last(longInd.EMA20), last(longInd.EMA50))
	fmt.Fprintf(&b, "3-Period ATR: %.2f vs. 14-Period ATR: %.3f\n\n",
		last(longInd.ATR3), last(longInd.ATR14))

	currentVolume := longKlines[len(longKlines)-1].Volume
	fmt.Fprintf(&b, "Current Volume: %.3f vs. Average Volume: %.3f\n\n",
		currentVolume, mean(tail(longInd.Volume, 20)))

	fmt.Fprintf(&b, "MACD indicators: %s\n\n", formatSeries(tail(longInd.MACD, 10)))
	fmt.Fprintf(&b, "RSI indicators (14-Period): %s\n\n", formatSeries(tail(longInd.RSI14, 10)))

	return b.String(), nil
}

func maxInt(a, b int) int {
	if a > b {
		return a
	}
	return b
}
