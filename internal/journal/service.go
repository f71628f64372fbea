package journal

import (
	"context"
	"database/sql"
	"encoding/json"
	"fmt"
	"time"

	"go.uber.org/zap"

	"consensus-trader/internal/advisor"
	"consensus-trader/internal/consensus"
	"consensus-trader/internal/execution"
	"consensus-trader/internal/proposal"
	"consensus-trader/internal/store"
)

// Service 负责持久化运行事件与跨周期状态。
type Service struct {
	db     *sql.DB
	logger *zap.Logger
}

// NewService 初始化事件日志，创建所需表结构。
func NewService(store *store.Store, logger *zap.Logger) (*Service, error) {
	if store == nil {
		return nil, fmt.Errorf("journal: store 不能为空")
	}
	if logger == nil {
		logger = zap.NewNop()
	}

	s := &Service{
		db:     store.DB(),
		logger: logger,
	}

	if err := s.initSchema(); err != nil {
		return nil, err
	}

	return s, nil
}

func (s *Service) initSchema() error {
	stmt := `
CREATE TABLE IF NOT EXISTS journal_events (
	id INTEGER PRIMARY KEY AUTOINCREMENT,
	event_type TEXT NOT NULL,
	payload TEXT NOT NULL,
	created_at TEXT NOT NULL
);
CREATE INDEX IF NOT EXISTS idx_journal_events_type ON journal_events(event_type);
CREATE TABLE IF NOT EXISTS run_state (
	id INTEGER PRIMARY KEY CHECK (id = 1),
	started_at TEXT NOT NULL,
	invocations INTEGER NOT NULL
);
`
	if _, err := s.db.Exec(stmt); err != nil {
		return fmt.Errorf("journal: 初始化表失败: %w", err)
	}
	return nil
}

// Record 写入单个事件。
func (s *Service) Record(ctx context.Context, event Event) error {
	payload, err := json.Marshal(event.Payload)
	if err != nil {
		return fmt.Errorf("journal: 序列化事件失败: %w", err)
	}

	if event.Timestamp.IsZero() {
		event.Timestamp = time.Now().UTC()
	}

	_, err = s.db.ExecContext(ctx,
		`INSERT INTO journal_events (event_type, payload, created_at) VALUES (?, ?, ?)`,
		string(event.Type), string(payload), event.Timestamp.Format(time.RFC3339),
	)
	if err != nil {
		return fmt.Errorf("journal: 写入事件失败: %w", err)
	}

	return nil
}

// RecordBatches 记录各建议源返回的建议集。
func (s *Service) RecordBatches(ctx context.Context, batches []proposal.Batch) {
	for _, batch := range batches {
		if err := s.Record(ctx, Event{
			Type:    EventProposalBatch,
			Payload: BatchPayload{Batch: batch},
		}); err != nil {
			s.logger.Warn("记录建议事件失败", zap.Error(err))
		}
	}
}

// RecordDecisions 记录共识合并结果。
func (s *Service) RecordDecisions(ctx context.Context, decisions []consensus.Decision) {
	if len(decisions) == 0 {
		return
	}
	if err := s.Record(ctx, Event{
		Type:    EventDecision,
		Payload: DecisionPayload{Decisions: decisions},
	}); err != nil {
		s.logger.Warn("记录共识事件失败", zap.Error(err))
	}
}

// RecordDisagreements 记录被放弃的分歧交易对。
func (s *Service) RecordDisagreements(ctx context.Context, disagreements []consensus.Disagreement) {
	if len(disagreements) == 0 {
		return
	}
	if err := s.Record(ctx, Event{
		Type:    EventDisagreement,
		Payload: DisagreementPayload{Disagreements: disagreements},
	}); err != nil {
		s.logger.Warn("记录分歧事件失败", zap.Error(err))
	}
}

// RecordExecution 记录执行周期统计。
func (s *Service) RecordExecution(ctx context.Context, summary execution.Summary) {
	if err := s.Record(ctx, Event{
		Type:    EventExecution,
		Payload: ExecutionPayload{Summary: summary},
	}); err != nil {
		s.logger.Warn("记录执行事件失败", zap.Error(err))
	}
}

// RecordInteraction 记录建议源交互，实现 advisor.InteractionSink。
func (s *Service) RecordInteraction(ctx context.Context, interaction advisor.Interaction) {
	if err := s.Record(ctx, Event{
		Type:      EventInteraction,
		Timestamp: interaction.Timestamp,
		Payload:   InteractionPayload{Interaction: interaction},
	}); err != nil {
		s.logger.Warn("记录交互事件失败", zap.Error(err))
	}
}

// RecordError 记录异常。
func (s *Service) RecordError(ctx context.Context, msg string, err error, ctxMap map[string]interface{}) {
	payload := ErrorPayload{
		Message: msg,
		Error:   err.Error(),
		Context: ctxMap,
	}
	if recErr := s.Record(ctx, Event{
		Type:    EventError,
		Payload: payload,
	}); recErr != nil {
		s.logger.Warn("记录异常事件失败", zap.Error(recErr))
	}
}

// ListEvents 按类型检索最近事件。
func (s *Service) ListEvents(ctx context.Context, eventType EventType, limit int) ([]Event, error) {
	if limit <= 0 {
		limit = 100
	}

	query := `SELECT event_type, payload, created_at FROM journal_events`
	args := make([]interface{}, 0, 2)
	if eventType != "" {
		query += ` WHERE event_type = ?`
		args = append(args, string(eventType))
	}
	query += ` ORDER BY id DESC LIMIT ?`
	args = append(args, limit)

	rows, err := s.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("journal: 查询事件失败: %w", err)
	}
	defer rows.Close()

	events := make([]Event, 0, limit)
	for rows.Next() {
		var (
			typ     string
			payload string
			created string
		)
		if scanErr := rows.Scan(&typ, &payload, &created); scanErr != nil {
			return nil, fmt.Errorf("journal: 解析事件失败: %w", scanErr)
		}

		ts, parseErr := time.Parse(time.RFC3339, created)
		if parseErr != nil {
			ts = time.Now().UTC()
		}

		events = append(events, Event{
			Type:      EventType(typ),
			Timestamp: ts,
			Payload:   json.RawMessage(payload),
		})
	}

	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("journal: 读取事件失败: %w", err)
	}

	return events, nil
}

// LoadRunState 读取运行状态，不存在时以当前时间初始化。
func (s *Service) LoadRunState(ctx context.Context) (RunState, error) {
	var (
		started     string
		invocations int
	)
	err := s.db.QueryRowContext(ctx,
		`SELECT started_at, invocations FROM run_state WHERE id = 1`,
	).Scan(&started, &invocations)
	if err == sql.ErrNoRows {
		state := RunState{StartedAt: time.Now().UTC()}
		if saveErr := s.SaveRunState(ctx, state); saveErr != nil {
			return RunState{}, saveErr
		}
		return state, nil
	}
	if err != nil {
		return RunState{}, fmt.Errorf("journal: 读取运行状态失败: %w", err)
	}

	ts, parseErr := time.Parse(time.RFC3339, started)
	if parseErr != nil {
		ts = time.Now().UTC()
	}

	return RunState{StartedAt: ts, Invocations: invocations}, nil
}

// SaveRunState 持久化运行状态。
func (s *Service) SaveRunState(ctx context.Context, state RunState) error {
	_, err := s.db.ExecContext(ctx,
		`INSERT INTO run_state (id, started_at, invocations) VALUES (1, ?, ?)
		 ON CONFLICT(id) DO UPDATE SET started_at = excluded.started_at, invocations = excluded.invocations`,
		state.StartedAt.UTC().Format(time.RFC3339), state.Invocations,
	)
	if err != nil {
		return fmt.Errorf("journal: 保存运行状态失败: %w", err)
	}
	return nil
}
