package exchange

import (
	"context"
	"crypto/hmac"
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"errors"
	"fmt"
	"net"
	"net/url"
	"strconv"
	"time"

	"github.com/go-resty/resty/v2"
	"go.uber.org/zap"

	"consensus-trader/internal/config"
	"consensus-trader/internal/retry"
)

const (
	mainnetBaseURL = "https://fapi.binance.com"
	testnetBaseURL = "https://testnet.binancefuture.com"
)

// Client 负责与币安 USDT 本位合约接口交互。
// 签名请求按固定间隔重试传输层失败，交易所业务拒绝原样返回给调用方。
type Client struct {
	cfg    config.ExchangeConfig
	http   *resty.Client
	policy retry.Policy
	logger *zap.Logger

	rules *RuleCache
}

// NewClient 构造交易所客户端，测试网由配置开关选择，base_url 可显式覆盖。
func NewClient(cfg config.ExchangeConfig, logger *zap.Logger) *Client {
	if logger == nil {
		logger = zap.NewNop()
	}
	if cfg.RecvWindow <= 0 {
		cfg.RecvWindow = 5000
	}
	if cfg.Timeout <= 0 {
		cfg.Timeout = 30 * time.Second
	}
	if cfg.Retry.MaxAttempts <= 0 {
		cfg.Retry.MaxAttempts = 3
	}
	if cfg.Retry.Delay <= 0 {
		cfg.Retry.Delay = 2 * time.Second
	}

	baseURL := mainnetBaseURL
	if cfg.Testnet {
		baseURL = testnetBaseURL
	}
	if cfg.BaseURL != "" {
		baseURL = cfg.BaseURL
	}

	httpClient := resty.New()
	httpClient.SetBaseURL(baseURL)

	c := &Client{
		cfg:    cfg,
		http:   httpClient,
		policy: retry.Fixed(cfg.Retry.MaxAttempts, cfg.Retry.Delay),
		logger: logger,
	}
	c.rules = NewRuleCache(c, logger)
	return c
}

// BaseURL 返回当前使用的接口地址。
func (c *Client) BaseURL() string {
	return c.http.BaseURL
}

// Rules 返回交易对的交易规则（带进程级缓存）。
func (c *Client) Rules(ctx context.Context, symbol string) (*InstrumentRules, error) {
	return c.rules.Rules(ctx, symbol)
}

// Signed 发送需要签名的请求。每次尝试都基于原始参数克隆出新副本，
// 附加新的时间戳并重新签名，避免重试时复用过期签名。
func (c *Client) Signed(ctx context.Context, method, path string, params map[string]string) (json.RawMessage, error) {
	if c.cfg.APIKey == "" || c.cfg.APISecret == "" {
		return nil, fmt.Errorf("%w，请设置 EXCHANGE_API_KEY 与 EXCHANGE_API_SECRET", ErrMissingCredentials)
	}

	base := make(map[string]string, len(params)+1)
	for key, value := range params {
		base[key] = value
	}
	if _, ok := base["recvWindow"]; !ok {
		base["recvWindow"] = strconv.FormatInt(c.cfg.RecvWindow, 10)
	}

	op := method + " " + path

	var payload json.RawMessage
	err := retry.Do(ctx, c.policy, func(ctx context.Context) error {
		values := url.Values{}
		for key, value := range base {
			values.Set(key, value)
		}
		values.Set("timestamp", strconv.FormatInt(time.Now().UnixMilli(), 10))

		query := values.Encode()
		query += "&signature=" + c.sign(query)

		attemptCtx, cancel := context.WithTimeout(ctx, c.cfg.Timeout)
		defer cancel()

		resp, err := c.http.R().
			SetContext(attemptCtx).
			SetHeader("X-MBX-APIKEY", c.cfg.APIKey).
			SetQueryString(query).
			Execute(method, path)
		if err != nil {
			classified := classifyTransport(op, err)
			var reqErr *RequestError
			if errors.As(classified, &reqErr) && reqErr.Retryable() {
				c.logger.Warn("交易请求失败，等待重试",
					zap.String("op", op),
					zap.String("kind", string(reqErr.Kind)),
					zap.Error(err),
				)
				return classified
			}
			return retry.Permanent(classified)
		}

		body := resp.Body()
		if !json.Valid(body) {
			return retry.Permanent(&RequestError{
				Kind: KindMalformed,
				Op:   op,
				Err:  fmt.Errorf("响应无法解析: %s", truncate(body, 200)),
			})
		}

		// 交易所错误码随应答返回，由调用方检查，不在此转换为客户端错误。
		payload = append(json.RawMessage(nil), body...)
		return nil
	})
	if err != nil {
		return nil, err
	}

	return payload, nil
}

// Public 发送无需签名的公共接口请求（exchangeInfo、行情等）。
func (c *Client) Public(ctx context.Context, path string, params map[string]string) (json.RawMessage, error) {
	op := "GET " + path

	attemptCtx, cancel := context.WithTimeout(ctx, c.cfg.Timeout)
	defer cancel()

	resp, err := c.http.R().
		SetContext(attemptCtx).
		SetQueryParams(params).
		Get(path)
	if err != nil {
		return nil, classifyTransport(op, err)
	}

	body := resp.Body()
	if !json.Valid(body) {
		return nil, &RequestError{
			Kind: KindMalformed,
			Op:   op,
			Err:  fmt.Errorf("响应无法解析: %s", truncate(body, 200)),
		}
	}

	return append(json.RawMessage(nil), body...), nil
}

func (c *Client) sign(query string) string {
	mac := hmac.New(sha256.New, []byte(c.cfg.APISecret))
	mac.Write([]byte(query))
	return hex.EncodeToString(mac.Sum(nil))
}

func classifyTransport(op string, err error) error {
	if errors.Is(err, context.Canceled) {
		return err
	}

	kind := KindUnknown

	var netErr net.Error
	switch {
	case errors.Is(err, context.DeadlineExceeded):
		kind = KindTimeout
	case errors.As(err, &netErr) && netErr.Timeout():
		kind = KindTimeout
	case errors.As(err, &netErr):
		kind = KindNetwork
	default:
		var urlErr *url.Error
		if errors.As(err, &urlErr) {
			kind = KindNetwork
		}
	}

	return &RequestError{Kind: kind, Op: op, Err: err}
}

// checkRejection 检查应答是否携带非0交易所错误码。
func checkRejection(payload json.RawMessage) error {
	var probe struct {
		Code int64  `json:"code"`
		Msg  string `json:"msg"`
	}
	if err := json.Unmarshal(payload, &probe); err != nil {
		return nil
	}
	if probe.Code != 0 {
		return &RejectionError{Code: probe.Code, Message: probe.Msg}
	}
	return nil
}

func truncate(body []byte, limit int) string {
	if len(body) <= limit {
		return string(body)
	}
	return string(body[:limit]) + "..."
}
