package proposal

import (
	"errors"
	"fmt"
	"strings"
)

// Action 表示单条交易建议的动作类型。
type Action string

const (
	ActionOpen          Action = "OPEN"
	ActionClose         Action = "CLOSE"
	ActionHold          Action = "HOLD"
	ActionBreakoutLong  Action = "BREAKOUT_LONG"
	ActionBreakoutShort Action = "BREAKOUT_SHORT"
)

// Direction 表示持仓方向，HOLD 建议允许为空。
type Direction string

const (
	DirectionLong  Direction = "LONG"
	DirectionShort Direction = "SHORT"
	DirectionNone  Direction = ""
)

// 兼容部分建议源使用的突破动作缩写。
var actionAliases = map[string]Action{
	"BP": ActionBreakoutLong,
	"SP": ActionBreakoutShort,
}

// ParseAction 归一化动作字符串，无法识别时返回错误。
func ParseAction(raw string) (Action, error) {
	normalized := strings.ToUpper(strings.TrimSpace(raw))
	if alias, ok := actionAliases[normalized]; ok {
		return alias, nil
	}
	switch Action(normalized) {
	case ActionOpen, ActionClose, ActionHold, ActionBreakoutLong, ActionBreakoutShort:
		return Action(normalized), nil
	default:
		return "", fmt.Errorf("未知的交易动作: %s", raw)
	}
}

// IsOpening 判断动作是否走开仓路径。
func (a Action) IsOpening() bool {
	return a == ActionOpen || a == ActionBreakoutLong || a == ActionBreakoutShort
}

// Proposal 表示单个建议源针对单一交易对的交易建议。
type Proposal struct {
	Action              Action    `json:"action"`
	Symbol              string    `json:"symbol"`
	Direction           Direction `json:"direction,omitempty"`
	Leverage            int       `json:"leverage,omitempty"`
	PositionSizePercent float64   `json:"position_size_percent,omitempty"`
	StopLoss            float64   `json:"stop_loss,omitempty"`
	EntryPriceTarget    float64   `json:"entry_price_target,omitempty"`
	Confidence          float64   `json:"confidence"`
	Reason              string    `json:"reason,omitempty"`
	SourceID            string    `json:"source_id,omitempty"`
}

// Key 为共识比较使用的标准化三元组。
type Key struct {
	Action    Action
	Symbol    string
	Direction Direction
}

// String 以可读形式输出三元组，便于记录分歧。
func (k Key) String() string {
	if k.Direction == DirectionNone {
		return fmt.Sprintf("%s %s", k.Action, k.Symbol)
	}
	return fmt.Sprintf("%s %s %s", k.Action, k.Symbol, k.Direction)
}

// Normalize 统一大小写并归一化动作别名，返回归一化后的副本。
func (p Proposal) Normalize() (Proposal, error) {
	action, err := ParseAction(string(p.Action))
	if err != nil {
		return Proposal{}, err
	}
	p.Action = action
	p.Symbol = strings.ToUpper(strings.TrimSpace(p.Symbol))
	if p.Action == ActionHold {
		p.Direction = DirectionNone
	} else {
		p.Direction = Direction(strings.ToUpper(strings.TrimSpace(string(p.Direction))))
	}
	return p, nil
}

// Key 返回 (action, symbol, direction) 标准化三元组，HOLD 的方向固定为空。
func (p Proposal) Key() Key {
	direction := Direction(strings.ToUpper(strings.TrimSpace(string(p.Direction))))
	if p.Action == ActionHold {
		direction = DirectionNone
	}
	return Key{
		Action:    p.Action,
		Symbol:    strings.ToUpper(strings.TrimSpace(p.Symbol)),
		Direction: direction,
	}
}

// Validate 校验建议字段，开仓类动作要求杠杆与止损等完整参数。
func (p Proposal) Validate() error {
	if strings.TrimSpace(p.Symbol) == "" {
		return errors.New("symbol 不能为空")
	}
	if _, err := ParseAction(string(p.Action)); err != nil {
		return err
	}
	if p.Confidence < 0 || p.Confidence > 1 {
		return fmt.Errorf("confidence 必须位于 [0,1]，当前为 %f", p.Confidence)
	}

	if p.Action != ActionHold {
		switch p.Direction {
		case DirectionLong, DirectionShort:
		default:
			return fmt.Errorf("direction 字段取值非法: %s", p.Direction)
		}
	}

	if p.Action.IsOpening() {
		if p.Leverage < 1 {
			return fmt.Errorf("leverage 必须为正整数，当前为 %d", p.Leverage)
		}
		if p.StopLoss <= 0 {
			return fmt.Errorf("stop_loss 必须大于0，当前为 %f", p.StopLoss)
		}
		if p.PositionSizePercent <= 0 || p.PositionSizePercent > 1 {
			return fmt.Errorf("position_size_percent 必须位于 (0,1]，当前为 %f", p.PositionSizePercent)
		}
	}

	return nil
}

// Batch 表示单个建议源在一个周期内返回的完整建议集。
type Batch struct {
	SourceID  string     `json:"source_id"`
	Analysis  string     `json:"analysis,omitempty"`
	Proposals []Proposal `json:"trades"`
}
