package config

import (
	"errors"
	"fmt"
	"time"

	"go.uber.org/multierr"
)

// Config 聚合了系统运行所需的全部配置项。
type Config struct {
	App       AppConfig       `mapstructure:"app"`
	Exchange  ExchangeConfig  `mapstructure:"exchange"`
	Advisors  []AdvisorConfig `mapstructure:"advisors"`
	Trading   TradingConfig   `mapstructure:"trading"`
	Database  DatabaseConfig  `mapstructure:"database"`
	Logging   LoggingConfig   `mapstructure:"logging"`
	Scheduler SchedulerConfig `mapstructure:"scheduler"`
	Server    ServerConfig    `mapstructure:"server"`
}

// AppConfig 控制应用级参数。
type AppConfig struct {
	Environment string `mapstructure:"environment"`
}

// ExchangeConfig 描述币安 USDT 本位合约接口的连接信息。
type ExchangeConfig struct {
	APIKey       string        `mapstructure:"api_key"`
	APISecret    string        `mapstructure:"api_secret"`
	APIKeyEnv    string        `mapstructure:"api_key_env"`
	APISecretEnv string        `mapstructure:"api_secret_env"`
	BaseURL      string        `mapstructure:"base_url"`
	Testnet      bool          `mapstructure:"testnet"`
	RecvWindow   int64         `mapstructure:"recv_window"`
	Timeout      time.Duration `mapstructure:"timeout"`
	Retry        RetryConfig   `mapstructure:"retry"`
}

// RetryConfig 统一控制重试参数。
type RetryConfig struct {
	MaxAttempts int           `mapstructure:"max_attempts"`
	Delay       time.Duration `mapstructure:"delay"`
}

// AdvisorConfig 描述单个交易建议源的调用参数。
type AdvisorConfig struct {
	Name      string        `mapstructure:"name"`
	BaseURL   string        `mapstructure:"base_url"`
	APIKey    string        `mapstructure:"api_key"`
	APIKeyEnv string        `mapstructure:"api_key_env"`
	Model     string        `mapstructure:"model"`
	Timeout   time.Duration `mapstructure:"timeout"`
}

// TradingConfig 控制交易执行行为与监控的交易对。
type TradingConfig struct {
	ConfidenceThreshold float64      `mapstructure:"confidence_threshold"`
	Pairs               []PairConfig `mapstructure:"pairs"`
}

// PairConfig 描述单个交易对的行情采集参数。
type PairConfig struct {
	Symbol        string `mapstructure:"symbol"`
	ShortInterval string `mapstructure:"short_interval"`
	LongInterval  string `mapstructure:"long_interval"`
	KlineLimit    int    `mapstructure:"kline_limit"`
}

// DatabaseConfig 管理数据库连接。
type DatabaseConfig struct {
	Path            string        `mapstructure:"path"`
	MaxOpenConns    int           `mapstructure:"max_open_conns"`
	MaxIdleConns    int           `mapstructure:"max_idle_conns"`
	ConnMaxLifetime time.Duration `mapstructure:"conn_max_lifetime"`
	InMemory        bool          `mapstructure:"in_memory"`
}

// LoggingConfig 控制日志输出。
type LoggingConfig struct {
	Level            string   `mapstructure:"level"`
	Encoding         string   `mapstructure:"encoding"`
	Development      bool     `mapstructure:"development"`
	OutputPaths      []string `mapstructure:"output_paths"`
	ErrorOutputPaths []string `mapstructure:"error_output_paths"`
}

// SchedulerConfig 控制主循环节奏。
type SchedulerConfig struct {
	Interval time.Duration `mapstructure:"interval"`
}

// ServerConfig 控制建议查询 API 服务。
type ServerConfig struct {
	Port int `mapstructure:"port"`
}

// Validate 对配置进行基本校验。
func (c *Config) Validate() error {
	var err error

	if c.App.Environment == "" {
		err = multierr.Append(err, errors.New("app.environment 不能为空"))
	}
	if c.Exchange.RecvWindow <= 0 {
		err = multierr.Append(err, errors.New("exchange.recv_window 必须大于0"))
	}
	if c.Exchange.Timeout <= 0 {
		err = multierr.Append(err, errors.New("exchange.timeout 必须大于0"))
	}
	if c.Exchange.Retry.MaxAttempts <= 0 {
		err = multierr.Append(err, errors.New("exchange.retry.max_attempts 必须大于0"))
	}
	if c.Exchange.Retry.Delay <= 0 {
		err = multierr.Append(err, errors.New("exchange.retry.delay 必须为正"))
	}
	if len(c.Advisors) == 0 {
		err = multierr.Append(err, errors.New("advisors 至少配置一个建议源"))
	}
	for i, advisor := range c.Advisors {
		if advisor.Name == "" {
			err = multierr.Append(err, fmt.Errorf("advisors[%d].name 不能为空", i))
		}
		if advisor.BaseURL == "" {
			err = multierr.Append(err, fmt.Errorf("advisors[%d].base_url 不能为空", i))
		}
		if advisor.Model == "" {
			err = multierr.Append(err, fmt.Errorf("advisors[%d].model 不能为空", i))
		}
		if advisor.APIKey == "" && advisor.APIKeyEnv == "" {
			err = multierr.Append(err, fmt.Errorf("advisors[%d] 需要配置 api_key 或 api_key_env", i))
		}
		if advisor.Timeout <= 0 {
			err = multierr.Append(err, fmt.Errorf("advisors[%d].timeout 必须大于0", i))
		}
	}
	if c.Trading.ConfidenceThreshold < 0 || c.Trading.ConfidenceThreshold > 1 {
		err = multierr.Append(err, errors.New("trading.confidence_threshold 必须位于[0,1]"))
	}
	if len(c.Trading.Pairs) == 0 {
		err = multierr.Append(err, errors.New("trading.pairs 至少配置一个交易对"))
	}
	for i, pair := range c.Trading.Pairs {
		if pair.Symbol == "" {
			err = multierr.Append(err, fmt.Errorf("trading.pairs[%d].symbol 不能为空", i))
		}
		if pair.ShortInterval == "" || pair.LongInterval == "" {
			err = multierr.Append(err, fmt.Errorf("trading.pairs[%d] 需要配置 short_interval 与 long_interval", i))
		}
		if pair.KlineLimit <= 0 {
			err = multierr.Append(err, fmt.Errorf("trading.pairs[%d].kline_limit 必须大于0", i))
		}
	}
	if c.Database.Path == "" && !c.Database.InMemory {
		err = multierr.Append(err, errors.New("database.path 不能为空"))
	}
	if c.Database.MaxOpenConns <= 0 {
		err = multierr.Append(err, errors.New("database.max_open_conns 必须大于0"))
	}
	if c.Database.MaxIdleConns < 0 {
		err = multierr.Append(err, errors.New("database.max_idle_conns 不能为负"))
	}
	if c.Database.ConnMaxLifetime < 0 {
		err = multierr.Append(err, errors.New("database.conn_max_lifetime 不能为负"))
	}
	if c.Logging.Level == "" {
		err = multierr.Append(err, errors.New("logging.level 不能为空"))
	}
	if c.Logging.Encoding == "" {
		err = multierr.Append(err, errors.New("logging.encoding 不能为空"))
	}
	if len(c.Logging.OutputPaths) == 0 {
		err = multierr.Append(err, errors.New("logging.output_paths 至少包含一个输出目标"))
	}
	if len(c.Logging.ErrorOutputPaths) == 0 {
		err = multierr.Append(err, errors.New("logging.error_output_paths 至少包含一个输出目标"))
	}
	if c.Scheduler.Interval <= 0 {
		err = multierr.Append(err, errors.New("scheduler.interval 必须大于0"))
	}
	if c.Server.Port <= 0 || c.Server.Port > 65535 {
		err = multierr.Append(err, errors.New("server.port 必须位于(0,65535]"))
	}

	if err != nil {
		return fmt.Errorf("配置校验失败: %w", err)
	}

	return nil
}
