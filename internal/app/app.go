package app

import (
	"context"
	"errors"
	"fmt"
	"time"

	"go.uber.org/zap"

	"consensus-trader/internal/advisor"
	"consensus-trader/internal/config"
	"consensus-trader/internal/consensus"
	"consensus-trader/internal/exchange"
	"consensus-trader/internal/execution"
	"consensus-trader/internal/journal"
	"consensus-trader/internal/market"
	"consensus-trader/internal/position"
	"consensus-trader/internal/store"
)

// App 聚合核心依赖并驱动系统生命周期。
type App struct {
	cfg     *config.Config
	logger  *zap.Logger
	journal *journal.Service

	client   *exchange.Client
	provider *market.Provider
	council  *advisor.Council
	merger   *consensus.Merger
	ledger   *position.Ledger
	engine   *execution.Engine

	state journal.RunState
}

// New 创建 App 实例并完成依赖装配。
func New(cfg *config.Config, logger *zap.Logger, store *store.Store) (*App, error) {
	if logger == nil {
		logger = zap.NewNop()
	}

	journalSvc, err := journal.NewService(store, logger)
	if err != nil {
		return nil, fmt.Errorf("初始化事件日志失败: %w", err)
	}

	client := exchange.NewClient(cfg.Exchange, logger)
	provider := market.NewProvider(client, logger)

	council, err := advisor.NewCouncil(cfg.Advisors, journalSvc, logger)
	if err != nil {
		return nil, fmt.Errorf("初始化建议源集合失败: %w", err)
	}

	ledger := position.NewLedger()
	engine := execution.NewEngine(client, ledger, cfg.Trading.ConfidenceThreshold, logger)
	merger := consensus.NewMerger(council.Size(), logger)

	return &App{
		cfg:      cfg,
		logger:   logger,
		journal:  journalSvc,
		client:   client,
		provider: provider,
		council:  council,
		merger:   merger,
		ledger:   ledger,
		engine:   engine,
	}, nil
}

// Journal 返回事件日志服务。
func (a *App) Journal() *journal.Service {
	return a.journal
}

// Run 立即执行一次交易周期，随后按配置的间隔循环执行直至收到退出信号。
func (a *App) Run(ctx context.Context) error {
	a.logger.Info("交易系统已初始化",
		zap.String("environment", a.cfg.App.Environment),
		zap.Bool("testnet", a.cfg.Exchange.Testnet),
		zap.Int("advisors", a.council.Size()),
		zap.Float64("confidence_threshold", a.cfg.Trading.ConfidenceThreshold),
		zap.Duration("interval", a.cfg.Scheduler.Interval),
	)

	state, err := a.journal.LoadRunState(ctx)
	if err != nil {
		return err
	}
	a.state = state

	interval := a.cfg.Scheduler.Interval
	if interval <= 0 {
		interval = 3 * time.Minute
	}

	if err := a.RunCycle(ctx); err != nil {
		a.logger.Error("首次周期执行失败", zap.Error(err))
	}

	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			if err := ctx.Err(); err != nil && !errors.Is(err, context.Canceled) {
				return fmt.Errorf("系统异常退出: %w", err)
			}
			a.logger.Info("系统收到退出信号，正在停止",
				zap.Int("invocations", a.state.Invocations),
			)
			return nil
		case <-ticker.C:
			if err := a.RunCycle(ctx); err != nil {
				a.logger.Error("周期执行失败", zap.Error(err))
			}
		}
	}
}

// RunOnce 执行单次交易周期后返回。
func (a *App) RunOnce(ctx context.Context) error {
	state, err := a.journal.LoadRunState(ctx)
	if err != nil {
		return err
	}
	a.state = state
	return a.RunCycle(ctx)
}

// RunCycle 执行一个完整的交易周期：行情、账户、建议、共识、执行。
func (a *App) RunCycle(ctx context.Context) error {
	a.state.Invocations++
	if err := a.journal.SaveRunState(ctx, a.state); err != nil {
		a.logger.Warn("保存运行状态失败", zap.Error(err))
	}

	a.logger.Info("开始交易周期", zap.Int("invocation", a.state.Invocations))

	marketText, err := a.provider.MarketText(ctx, a.cfg.Trading.Pairs)
	if err != nil {
		a.journal.RecordError(ctx, "获取市场数据失败", err, nil)
		return fmt.Errorf("获取市场数据失败: %w", err)
	}

	snapshot, err := a.client.AccountSnapshot(ctx)
	if err != nil {
		a.journal.RecordError(ctx, "获取账户数据失败", err, nil)
		return fmt.Errorf("获取账户数据失败: %w", err)
	}
	accountText := market.AccountText(snapshot, a.ledger.Summary())

	prompt := advisor.BuildPrompt(a.promptPrefix(), marketText, accountText)

	batches := a.council.Collect(ctx, prompt)
	a.journal.RecordBatches(ctx, batches)

	decisions, disagreements := a.merger.Merge(batches)
	a.journal.RecordDecisions(ctx, decisions)
	a.journal.RecordDisagreements(ctx, disagreements)

	a.logger.Info("共识合并完成",
		zap.Int("sources", len(batches)),
		zap.Int("decisions", len(decisions)),
		zap.Int("disagreements", len(disagreements)),
	)

	if len(decisions) == 0 {
		a.logger.Info("没有需要执行的交易")
		return nil
	}

	summary := a.engine.Execute(ctx, decisions, snapshot.AvailableBalance)
	a.journal.RecordExecution(ctx, summary)

	a.logger.Info("周期执行完成",
		zap.Int("total", summary.Total),
		zap.Int("executed", summary.Executed),
		zap.Int("skipped_low_confidence", summary.SkippedLowConfidence),
		zap.Int("failed", summary.Failed),
	)
	a.logger.Info(a.ledger.Summary())

	return nil
}

func (a *App) promptPrefix() string {
	now := time.Now()
	elapsed := int(now.Sub(a.state.StartedAt).Minutes())
	if elapsed < 0 {
		elapsed = 0
	}

	prefix := fmt.Sprintf("It has been %d minutes since you started trading. ", elapsed)
	prefix += fmt.Sprintf("The current time is %s and you've been invoked %d times. ",
		now.Format("2006-01-02 15:04:05"), a.state.Invocations)
	prefix += "Below, we are providing you with a variety of state data, price data, "
	prefix += "and predictive signals so you can discover alpha. "
	prefix += "Below that is your current account information, value, performance, positions, etc.\n\n"
	prefix += "ALL OF THE PRICE OR SIGNAL DATA BELOW IS ORDERED: OLDEST → NEWEST\n\n"
	prefix += "Timeframes note: Unless stated otherwise in a section title, intraday series "
	prefix += "are provided at the configured intervals. If a coin uses a different interval, "
	prefix += "it is explicitly stated in that section.\n"

	return prefix
}
