package consensus

import (
	"go.uber.org/zap"

	"consensus-trader/internal/proposal"
)

// Decision 为同一交易对上合并后的最终交易决策。
type Decision struct {
	proposal.Proposal
	AgreementCount int `json:"agreement_count"`
	SourceCount    int `json:"source_count"`
}

// SourceView 记录某个建议源对一个交易对的标准化看法。
type SourceView struct {
	SourceID string       `json:"source_id"`
	Key      proposal.Key `json:"key"`
}

// Disagreement 描述一次因建议不一致而被整体放弃的交易对。
type Disagreement struct {
	Symbol string       `json:"symbol"`
	Views  []SourceView `json:"views"`
}

// Merger 汇总多个建议源的交易建议，仅保留完全一致的部分。
type Merger struct {
	totalSources int
	logger       *zap.Logger
}

// NewMerger 创建合并器，totalSources 为配置的建议源总数。
func NewMerger(totalSources int, logger *zap.Logger) *Merger {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Merger{
		totalSources: totalSources,
		logger:       logger,
	}
}

// Merge 按交易对分组比较各建议源的标准化动作：全部一致时产出一条决策，
// 出现任何分歧则整体放弃该交易对。单一建议源时直接透传其建议。
func (m *Merger) Merge(batches []proposal.Batch) ([]Decision, []Disagreement) {
	if len(batches) == 0 {
		m.logger.Warn("没有建议源返回有效决策")
		return nil, nil
	}

	if len(batches) == 1 {
		return m.passthrough(batches[0]), nil
	}

	// 按出现顺序分组，保证合并结果顺序稳定。
	order := make([]string, 0)
	grouped := make(map[string][]proposal.Proposal)
	for _, batch := range batches {
		for _, trade := range batch.Proposals {
			trade.SourceID = batch.SourceID
			symbol := trade.Key().Symbol
			if _, ok := grouped[symbol]; !ok {
				order = append(order, symbol)
			}
			grouped[symbol] = append(grouped[symbol], trade)
		}
	}

	decisions := make([]Decision, 0, len(order))
	disagreements := make([]Disagreement, 0)

	for _, symbol := range order {
		trades := grouped[symbol]

		keys := make(map[proposal.Key]struct{}, len(trades))
		for _, trade := range trades {
			keys[trade.Key()] = struct{}{}
		}

		if len(keys) == 1 {
			first := trades[0]
			var confidenceSum float64
			for _, trade := range trades {
				confidenceSum += trade.Confidence
			}
			first.Confidence = confidenceSum / float64(len(trades))

			decision := Decision{
				Proposal:       first,
				AgreementCount: len(trades),
				SourceCount:    m.totalSources,
			}
			if decision.AgreementCount < m.totalSources {
				m.logger.Warn("决策未覆盖全部建议源，按一致处理",
					zap.String("symbol", symbol),
					zap.Int("agreement", decision.AgreementCount),
					zap.Int("total_sources", m.totalSources),
				)
			}
			decisions = append(decisions, decision)
			continue
		}

		views := make([]SourceView, 0, len(trades))
		for _, trade := range trades {
			views = append(views, SourceView{
				SourceID: trade.SourceID,
				Key:      trade.Key(),
			})
		}
		disagreements = append(disagreements, Disagreement{Symbol: symbol, Views: views})

		m.logger.Warn("建议源对交易对意见不一致，放弃本周期交易",
			zap.String("symbol", symbol),
			zap.Int("views", len(views)),
		)
	}

	m.logger.Info("共识合并完成",
		zap.Int("batches", len(batches)),
		zap.Int("decisions", len(decisions)),
		zap.Int("disagreements", len(disagreements)),
	)

	return decisions, disagreements
}

func (m *Merger) passthrough(batch proposal.Batch) []Decision {
	if len(batch.Proposals) == 0 {
		return nil
	}

	m.logger.Info("仅有一个建议源返回决策，直接使用其建议",
		zap.String("source", batch.SourceID),
		zap.Int("trades", len(batch.Proposals)),
	)

	decisions := make([]Decision, 0, len(batch.Proposals))
	for _, trade := range batch.Proposals {
		trade.SourceID = batch.SourceID
		decisions = append(decisions, Decision{
			Proposal:       trade,
			AgreementCount: 1,
			SourceCount:    1,
		})
	}
	return decisions
}
