package journal

import (
	"time"

	"consensus-trader/internal/advisor"
	"consensus-trader/internal/consensus"
	"consensus-trader/internal/execution"
	"consensus-trader/internal/proposal"
)

// EventType 表示事件日志类型。
type EventType string

const (
	EventProposalBatch EventType = "proposal_batch"
	EventDecision      EventType = "consensus_decision"
	EventDisagreement  EventType = "disagreement"
	EventExecution     EventType = "execution"
	EventInteraction   EventType = "interaction"
	EventError         EventType = "error"
)

// Event 封装通用日志事件。
type Event struct {
	Type      EventType   `json:"type"`
	Timestamp time.Time   `json:"timestamp"`
	Payload   interface{} `json:"payload"`
}

// BatchPayload 记录单个建议源返回的建议集。
type BatchPayload struct {
	Batch proposal.Batch `json:"batch"`
}

// DecisionPayload 记录一次共识合并结果。
type DecisionPayload struct {
	Decisions []consensus.Decision `json:"decisions"`
}

// DisagreementPayload 记录被放弃的分歧交易对。
type DisagreementPayload struct {
	Disagreements []consensus.Disagreement `json:"disagreements"`
}

// ExecutionPayload 记录一个执行周期的统计。
type ExecutionPayload struct {
	Summary execution.Summary `json:"summary"`
}

// InteractionPayload 记录一次建议源交互。
type InteractionPayload struct {
	Interaction advisor.Interaction `json:"interaction"`
}

// ErrorPayload 记录异常。
type ErrorPayload struct {
	Message string                 `json:"message"`
	Error   string                 `json:"error"`
	Context map[string]interface{} `json:"context,omitempty"`
}

// RunState 持久化跨周期的运行状态。
type RunState struct {
	StartedAt   time.Time `json:"started_at"`
	Invocations int       `json:"invocations"`
}
