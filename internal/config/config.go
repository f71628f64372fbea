package config

import (
	"errors"
	"fmt"
	"os"
	"strings"

	mapstructure "github.com/go-viper/mapstructure/v2"
	"github.com/spf13/viper"
)

const (
	defaultConfigPath = "configs/config.yaml"
	envPrefix         = "trader"

	defaultExchangeKeyEnv    = "EXCHANGE_API_KEY"
	defaultExchangeSecretEnv = "EXCHANGE_API_SECRET"
)

// Load 读取配置文件并结合环境变量返回 Config。
func Load(path string) (*Config, error) {
	v := viper.New()

	if path == "" {
		path = defaultConfigPath
	}

	v.SetConfigFile(path)
	v.SetConfigType("yaml")

	v.SetEnvPrefix(envPrefix)
	replacer := strings.NewReplacer(".", "_")
	v.SetEnvKeyReplacer(replacer)
	v.AutomaticEnv()

	setDefaults(v)

	if err := v.ReadInConfig(); err != nil {
		var notFound viper.ConfigFileNotFoundError
		if errors.As(err, &notFound) {
			return nil, fmt.Errorf("未找到配置文件 %q: %w", path, err)
		}
		return nil, fmt.Errorf("读取配置文件失败: %w", err)
	}

	var cfg Config
	if err := v.Unmarshal(&cfg, decodeHook()); err != nil {
		return nil, fmt.Errorf("解析配置失败: %w", err)
	}

	resolveSecrets(&cfg)

	if err := cfg.Validate(); err != nil {
		return nil, err
	}

	return &cfg, nil
}

// resolveSecrets 优先使用环境变量中的密钥，其次回落到配置文件内容。
func resolveSecrets(cfg *Config) {
	keyEnv := cfg.Exchange.APIKeyEnv
	if keyEnv == "" {
		keyEnv = defaultExchangeKeyEnv
	}
	secretEnv := cfg.Exchange.APISecretEnv
	if secretEnv == "" {
		secretEnv = defaultExchangeSecretEnv
	}
	if value := os.Getenv(keyEnv); value != "" {
		cfg.Exchange.APIKey = value
	}
	if value := os.Getenv(secretEnv); value != "" {
		cfg.Exchange.APISecret = value
	}

	for i := range cfg.Advisors {
		advisor := &cfg.Advisors[i]
		if advisor.APIKeyEnv == "" {
			continue
		}
		if value := os.Getenv(advisor.APIKeyEnv); value != "" {
			advisor.APIKey = value
		}
	}
}

func setDefaults(v *viper.Viper) {
	v.SetDefault("app.environment", "development")

	v.SetDefault("exchange.testnet", true)
	v.SetDefault("exchange.recv_window", 5000)
	v.SetDefault("exchange.timeout", "30s")
	v.SetDefault("exchange.retry.max_attempts", 3)
	v.SetDefault("exchange.retry.delay", "2s")

	v.SetDefault("trading.confidence_threshold", 0.6)

	v.SetDefault("database.path", "data/consensus_trader.db")
	v.SetDefault("database.max_open_conns", 4)
	v.SetDefault("database.max_idle_conns", 4)
	v.SetDefault("database.conn_max_lifetime", "1h")
	v.SetDefault("database.in_memory", false)

	v.SetDefault("logging.level", "info")
	v.SetDefault("logging.encoding", "console")
	v.SetDefault("logging.development", true)
	v.SetDefault("logging.output_paths", []string{"stdout"})
	v.SetDefault("logging.error_output_paths", []string{"stderr"})

	v.SetDefault("scheduler.interval", "3m")

	v.SetDefault("server.port", 5000)
}

func decodeHook() viper.DecoderConfigOption {
	return func(dc *mapstructure.DecoderConfig) {
		dc.TagName = "mapstructure"
		dc.DecodeHook = mapstructure.ComposeDecodeHookFunc(
			mapstructure.StringToTimeDurationHookFunc(),
			mapstructure.StringToSliceHookFunc(","),
		)
	}
}
