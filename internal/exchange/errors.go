package exchange

import (
	"errors"
	"fmt"
)

var (
	// ErrMissingCredentials 表示未配置交易所API凭证，签名接口直接失败。
	ErrMissingCredentials = errors.New("缺少交易所API凭证")
	// ErrUnknownInstrument 表示交易所不认识该交易对。
	ErrUnknownInstrument = errors.New("未知交易对")
	// ErrNoPosition 表示该交易对当前没有持仓。
	ErrNoPosition = errors.New("当前无持仓")
)

// ErrorKind 区分传输层失败的类别，重试策略依据类别决定。
type ErrorKind string

const (
	KindTimeout   ErrorKind = "timeout"
	KindNetwork   ErrorKind = "network_error"
	KindMalformed ErrorKind = "malformed_response"
	KindUnknown   ErrorKind = "unknown_error"
)

// RequestError 表示一次请求在传输层的结构化失败。
type RequestError struct {
	Kind ErrorKind
	Op   string
	Err  error
}

func (e *RequestError) Error() string {
	if e.Err == nil {
		return fmt.Sprintf("exchange: %s [%s]", e.Kind, e.Op)
	}
	return fmt.Sprintf("exchange: %s [%s]: %v", e.Kind, e.Op, e.Err)
}

func (e *RequestError) Unwrap() error {
	return e.Err
}

// Retryable 判断该类失败是否应在尝试预算内重试。
func (e *RequestError) Retryable() bool {
	return e.Kind == KindTimeout || e.Kind == KindNetwork
}

// RejectionError 表示交易所以业务错误码拒绝了请求。
// 这类拒绝是应答数据而非传输失败，客户端不会重试，由调用方分支处理。
type RejectionError struct {
	Code    int64
	Message string
}

func (e *RejectionError) Error() string {
	return fmt.Sprintf("exchange: 交易所拒绝请求 code=%d msg=%s", e.Code, e.Message)
}

// IsRejection 判断错误是否为交易所业务拒绝。
func IsRejection(err error) bool {
	var rejection *RejectionError
	return errors.As(err, &rejection)
}
