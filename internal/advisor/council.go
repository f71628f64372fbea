package advisor

import (
	"context"
	"time"

	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"

	"consensus-trader/internal/config"
	"consensus-trader/internal/proposal"
)

// Interaction 记录一次与建议源的完整交互，成功与否都会留档。
type Interaction struct {
	Source    string    `json:"source"`
	Prompt    string    `json:"prompt"`
	Response  string    `json:"response"`
	Success   bool      `json:"success"`
	Error     string    `json:"error,omitempty"`
	Timestamp time.Time `json:"timestamp"`
}

// InteractionSink 接收交互留档，通常由事件日志实现。
type InteractionSink interface {
	RecordInteraction(ctx context.Context, interaction Interaction)
}

// Council 并发查询全部建议源并收集有效的建议集。
// 单个建议源失败不影响其余建议源，结果顺序与配置顺序一致。
type Council struct {
	sources []*Source
	sink    InteractionSink
	logger  *zap.Logger
}

// NewCouncil 根据配置创建建议源集合。
func NewCouncil(cfgs []config.AdvisorConfig, sink InteractionSink, logger *zap.Logger) (*Council, error) {
	if logger == nil {
		logger = zap.NewNop()
	}

	sources := make([]*Source, 0, len(cfgs))
	for _, cfg := range cfgs {
		source, err := NewSource(cfg, logger)
		if err != nil {
			return nil, err
		}
		sources = append(sources, source)
	}

	return &Council{
		sources: sources,
		sink:    sink,
		logger:  logger,
	}, nil
}

// Size 返回配置的建议源总数。
func (c *Council) Size() int {
	return len(c.sources)
}

// Collect 向所有建议源发送同一提示词，返回成功解析的建议集。
// 结果按配置顺序排列，保证后续合并的顺序确定。
func (c *Council) Collect(ctx context.Context, prompt string) []proposal.Batch {
	results := make([]*proposal.Batch, len(c.sources))

	group, groupCtx := errgroup.WithContext(ctx)
	for i, source := range c.sources {
		group.Go(func() error {
			batch, err := c.collectOne(groupCtx, source, prompt)
			if err != nil {
				c.logger.Warn("建议源未返回有效决策",
					zap.String("source", source.Name()),
					zap.Error(err),
				)
				return nil // 失败隔离，不中断其他建议源
			}
			results[i] = &batch
			return nil
		})
	}
	_ = group.Wait()

	batches := make([]proposal.Batch, 0, len(results))
	for _, batch := range results {
		if batch != nil {
			batches = append(batches, *batch)
		}
	}

	c.logger.Info("建议源查询完成",
		zap.Int("configured", len(c.sources)),
		zap.Int("responded", len(batches)),
	)

	return batches
}

func (c *Council) collectOne(ctx context.Context, source *Source, prompt string) (proposal.Batch, error) {
	content, err := source.Query(ctx, prompt)
	if err != nil {
		c.record(ctx, Interaction{
			Source:    source.Name(),
			Prompt:    prompt,
			Success:   false,
			Error:     err.Error(),
			Timestamp: time.Now().UTC(),
		})
		return proposal.Batch{}, err
	}

	batch, err := ParseBatch(source.Name(), content)
	success := err == nil

	interaction := Interaction{
		Source:    source.Name(),
		Prompt:    prompt,
		Response:  content,
		Success:   success,
		Timestamp: time.Now().UTC(),
	}
	if err != nil {
		interaction.Error = err.Error()
	}
	c.record(ctx, interaction)

	if err != nil {
		return proposal.Batch{}, err
	}
	return batch, nil
}

func (c *Council) record(ctx context.Context, interaction Interaction) {
	if c.sink == nil {
		return
	}
	c.sink.RecordInteraction(ctx, interaction)
}
