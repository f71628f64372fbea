package advisor

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"time"

	"github.com/sashabaranov/go-openai"
	"go.uber.org/zap"

	"consensus-trader/internal/config"
	"consensus-trader/internal/retry"
)

const (
	defaultTimeout     = 60 * time.Second
	defaultMaxAttempts = 3
	defaultRetryDelay  = 2 * time.Second
)

// Source 封装单个交易建议源（OpenAI 兼容接口）。
// 调用失败按指数退避重试，与交易所客户端的固定间隔策略刻意不同。
type Source struct {
	cfg    config.AdvisorConfig
	sdk    *openai.Client
	policy retry.Policy
	logger *zap.Logger
}

// NewSource 创建建议源客户端。
func NewSource(cfg config.AdvisorConfig, logger *zap.Logger) (*Source, error) {
	if cfg.APIKey == "" {
		return nil, fmt.Errorf("建议源 %s 缺少 api_key", cfg.Name)
	}
	if cfg.Model == "" {
		return nil, fmt.Errorf("建议源 %s 缺少 model", cfg.Name)
	}
	if cfg.Timeout <= 0 {
		cfg.Timeout = defaultTimeout
	}
	if logger == nil {
		logger = zap.NewNop()
	}

	sdkConfig := openai.DefaultConfig(cfg.APIKey)
	if cfg.BaseURL != "" {
		sdkConfig.BaseURL = cfg.BaseURL
	}
	sdkConfig.HTTPClient = &http.Client{
		Timeout: cfg.Timeout + 5*time.Second,
	}

	return &Source{
		cfg:    cfg,
		sdk:    openai.NewClientWithConfig(sdkConfig),
		policy: retry.Exponential(defaultMaxAttempts, defaultRetryDelay),
		logger: logger,
	}, nil
}

// Name 返回建议源标识。
func (s *Source) Name() string {
	return s.cfg.Name
}

// Query 调用模型并返回原始回答文本。
func (s *Source) Query(ctx context.Context, prompt string) (string, error) {
	var content string

	err := retry.Do(ctx, s.policy, func(ctx context.Context) error {
		attemptCtx, cancel := context.WithTimeout(ctx, s.cfg.Timeout)
		defer cancel()

		response, err := s.sdk.CreateChatCompletion(attemptCtx, openai.ChatCompletionRequest{
			Model: s.cfg.Model,
			Messages: []openai.ChatCompletionMessage{
				{Role: openai.ChatMessageRoleSystem, Content: SystemInstruction},
				{Role: openai.ChatMessageRoleUser, Content: prompt},
			},
		})
		if err != nil {
			s.logger.Warn("建议源调用失败",
				zap.String("source", s.cfg.Name),
				zap.Error(err),
			)
			return fmt.Errorf("调用建议源 %s 失败: %w", s.cfg.Name, err)
		}

		if len(response.Choices) == 0 {
			return retry.Permanent(errors.New("建议源返回结果为空"))
		}

		content = response.Choices[0].Message.Content
		return nil
	})
	if err != nil {
		return "", err
	}

	return content, nil
}
