package execution

import (
	"context"
	"fmt"
	"time"

	"go.uber.org/zap"

	"consensus-trader/internal/consensus"
	"consensus-trader/internal/exchange"
	"consensus-trader/internal/position"
	"consensus-trader/internal/proposal"
)

// 可注入的时钟，测试用。
var timeNow = func() time.Time { return time.Now().UTC() }

// Engine 将合并后的交易决策转化为交易所订单并维护仓位账本。
// 单个决策的失败只影响自身，整个周期总会返回完整的执行统计。
type Engine struct {
	orders    OrderAPI
	ledger    *position.Ledger
	threshold float64
	logger    *zap.Logger
}

// NewEngine 创建执行引擎，threshold 为信心度阈值。
func NewEngine(orders OrderAPI, ledger *position.Ledger, threshold float64, logger *zap.Logger) *Engine {
	if logger == nil {
		logger = zap.NewNop()
	}
	if ledger == nil {
		ledger = position.NewLedger()
	}
	return &Engine{
		orders:    orders,
		ledger:    ledger,
		threshold: threshold,
		logger:    logger,
	}
}

// Ledger 返回引擎持有的仓位账本。
func (e *Engine) Ledger() *position.Ledger {
	return e.ledger
}

// Execute 依次执行本周期的全部决策并返回统计结果。
func (e *Engine) Execute(ctx context.Context, decisions []consensus.Decision, availableCash float64) Summary {
	summary := Summary{
		Total:   len(decisions),
		Details: make([]Detail, 0, len(decisions)),
	}

	for _, decision := range decisions {
		key := decision.Key()
		detail := Detail{Symbol: key.Symbol, Action: key.Action}

		e.logger.Info("处理交易决策",
			zap.String("symbol", key.Symbol),
			zap.String("action", string(key.Action)),
			zap.Float64("confidence", decision.Confidence),
		)

		if decision.Confidence < e.threshold {
			e.logger.Info("信心度低于阈值，跳过",
				zap.String("symbol", key.Symbol),
				zap.Float64("confidence", decision.Confidence),
				zap.Float64("threshold", e.threshold),
			)
			summary.SkippedLowConfidence++
			detail.Status = StatusSkippedLowConfidence
			summary.Details = append(summary.Details, detail)
			continue
		}

		if key.Action == proposal.ActionClose && e.closeWouldRealizeLoss(decision) {
			e.logger.Warn("当前持仓亏损，不执行平仓操作", zap.String("symbol", key.Symbol))
			// 与信心度跳过共用计数器，明细状态加以区分。
			summary.SkippedLowConfidence++
			detail.Status = StatusSkippedLossPosition
			summary.Details = append(summary.Details, detail)
			continue
		}

		var err error
		switch {
		case key.Action.IsOpening():
			err = e.openPosition(ctx, decision, availableCash)
		case key.Action == proposal.ActionClose:
			err = e.closePosition(ctx, decision)
		case key.Action == proposal.ActionHold:
			e.logger.Info("保持仓位", zap.String("symbol", key.Symbol))
		default:
			err = fmt.Errorf("未知的交易动作: %s", decision.Action)
		}

		if err != nil {
			e.logger.Error("决策执行失败",
				zap.String("symbol", key.Symbol),
				zap.String("action", string(key.Action)),
				zap.Error(err),
			)
			summary.Failed++
			detail.Status = StatusFailed
			detail.Error = err.Error()
		} else {
			summary.Executed++
			detail.Status = StatusSuccess
		}
		summary.Details = append(summary.Details, detail)
	}

	return summary
}

// closeWouldRealizeLoss 判断平仓是否会兑现亏损：做多时目标价低于入场价、
// 做空时高于入场价即为亏损，按策略拒绝主动平掉亏损仓位。
func (e *Engine) closeWouldRealizeLoss(decision consensus.Decision) bool {
	pos, ok := e.ledger.Get(decision.Key().Symbol)
	if !ok {
		return false
	}

	currentPrice := decision.EntryPriceTarget
	if currentPrice == 0 {
		currentPrice = pos.EntryPrice
	}

	switch pos.Direction {
	case string(proposal.DirectionLong):
		return currentPrice < pos.EntryPrice
	case string(proposal.DirectionShort):
		return currentPrice > pos.EntryPrice
	default:
		return false
	}
}

func (e *Engine) openPosition(ctx context.Context, decision consensus.Decision, availableCash float64) error {
	key := decision.Key()
	symbol := key.Symbol

	if err := e.orders.SetLeverage(ctx, symbol, decision.Leverage); err != nil {
		return fmt.Errorf("设置杠杆失败: %w", err)
	}

	positionValue := availableCash * decision.PositionSizePercent * float64(decision.Leverage)

	entryPrice := decision.EntryPriceTarget
	if entryPrice <= 0 {
		return fmt.Errorf("无效的入场价格: %f", entryPrice)
	}
	quantity := positionValue / entryPrice

	side := sideFor(key.Direction)
	ack, err := e.orders.PlaceMarketOrder(ctx, symbol, side, quantity)
	if err != nil {
		// 确保没有残留的止损条件单。
		if cleanupErr := e.orders.CancelProtectiveOrders(ctx, symbol); cleanupErr != nil {
			e.logger.Warn("清理止损单失败", zap.String("symbol", symbol), zap.Error(cleanupErr))
		}
		return fmt.Errorf("市价开仓失败: %w", err)
	}

	var stopOrderID int64
	stopSide := oppositeSide(side)
	stopAck, stopErr := e.orders.PlaceStopMarket(ctx, symbol, stopSide, decision.StopLoss)
	if stopErr != nil {
		// 入场已成交，止损失败不回滚，仓位以无保护状态入账。
		e.logger.Warn("止损单设置失败，仓位暂无保护",
			zap.String("symbol", symbol),
			zap.Float64("stop_loss", decision.StopLoss),
			zap.Error(stopErr),
		)
	} else {
		stopOrderID = stopAck.OrderID
	}

	e.ledger.Put(position.Position{
		Symbol:      symbol,
		Direction:   string(key.Direction),
		Quantity:    ack.Quantity,
		EntryPrice:  entryPrice,
		StopLoss:    decision.StopLoss,
		Leverage:    decision.Leverage,
		StopOrderID: stopOrderID,
		OpenedAt:    timeNow(),
	})

	return nil
}

func (e *Engine) closePosition(ctx context.Context, decision consensus.Decision) error {
	symbol := decision.Key().Symbol

	pos, ok := e.ledger.Get(symbol)
	if !ok {
		return fmt.Errorf("没有 %s 的活跃仓位", symbol)
	}

	if pos.StopOrderID != 0 {
		if err := e.orders.CancelOrder(ctx, symbol, pos.StopOrderID); err != nil {
			e.logger.Warn("取消止损单失败，继续平仓",
				zap.String("symbol", symbol),
				zap.Int64("order_id", pos.StopOrderID),
				zap.Error(err),
			)
		}
	}

	side := oppositeSide(sideFor(proposal.Direction(pos.Direction)))
	if _, err := e.orders.PlaceMarketOrder(ctx, symbol, side, pos.Quantity); err != nil {
		return fmt.Errorf("市价平仓失败: %w", err)
	}

	e.ledger.Remove(symbol)
	return nil
}

func sideFor(direction proposal.Direction) string {
	if direction == proposal.DirectionShort {
		return exchange.SideSell
	}
	return exchange.SideBuy
}

func oppositeSide(side string) string {
	if side == exchange.SideBuy {
		return exchange.SideSell
	}
	return exchange.SideBuy
}
