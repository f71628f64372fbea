package position

import (
	"sync"
	"time"
)

// Position 为账本中的一条持仓记录。成功开仓时创建，成功平仓时删除，
// 期间不做原地修改。StopOrderID 为0表示止损单缺失，仓位暂无保护。
type Position struct {
	Symbol      string    `json:"symbol"`
	Direction   string    `json:"direction"`
	Quantity    float64   `json:"quantity"`
	EntryPrice  float64   `json:"entry_price"`
	StopLoss    float64   `json:"stop_loss"`
	Leverage    int       `json:"leverage"`
	StopOrderID int64     `json:"stop_order_id,omitempty"`
	OpenedAt    time.Time `json:"opened_at"`
}

// Ledger 维护进程生命周期内的活跃仓位，按交易对索引。
// 写入方仅限执行引擎，互斥锁保证同一交易对的开平仓不会交错。
type Ledger struct {
	mu        sync.Mutex
	positions map[string]Position
}

// NewLedger 创建空账本。
func NewLedger() *Ledger {
	return &Ledger{
		positions: make(map[string]Position),
	}
}

// Get 返回指定交易对的持仓。
func (l *Ledger) Get(symbol string) (Position, bool) {
	l.mu.Lock()
	defer l.mu.Unlock()

	pos, ok := l.positions[symbol]
	return pos, ok
}

// Put 写入或替换指定交易对的持仓。
func (l *Ledger) Put(pos Position) {
	l.mu.Lock()
	defer l.mu.Unlock()

	l.positions[pos.Symbol] = pos
}

// Remove 删除指定交易对的持仓。
func (l *Ledger) Remove(symbol string) {
	l.mu.Lock()
	defer l.mu.Unlock()

	delete(l.positions, symbol)
}

// All 返回当前全部持仓的副本。
func (l *Ledger) All() []Position {
	l.mu.Lock()
	defer l.mu.Unlock()

	out := make([]Position, 0, len(l.positions))
	for _, pos := range l.positions {
		out = append(out, pos)
	}
	return out
}

// Len 返回持仓数量。
func (l *Ledger) Len() int {
	l.mu.Lock()
	defer l.mu.Unlock()

	return len(l.positions)
}
