package exchange

import (
	"context"
	"crypto/hmac"
	"crypto/sha256"
	"encoding/hex"
	"errors"
	"net/http"
	"net/http/httptest"
	"net/url"
	"sync"
	"testing"
	"time"

	"consensus-trader/internal/config"
)

const (
	testAPIKey    = "test-api-key"
	testAPISecret = "test-api-secret"
)

func testClientConfig(baseURL string) config.ExchangeConfig {
	return config.ExchangeConfig{
		APIKey:    testAPIKey,
		APISecret: testAPISecret,
		BaseURL:   baseURL,
		Timeout:   2 * time.Second,
		Retry:     config.RetryConfig{MaxAttempts: 3, Delay: time.Millisecond},
	}
}

func TestSigned_SignatureAndHeaders(t *testing.T) {
	var captured *http.Request
	var capturedQuery url.Values
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		captured = r
		capturedQuery = r.URL.Query()
		w.Write([]byte(`{"orderId": 1}`))
	}))
	defer server.Close()

	client := NewClient(testClientConfig(server.URL), nil)
	if _, err := client.Signed(context.Background(), http.MethodPost, "/fapi/v1/order", map[string]string{
		"symbol": "BTCUSDT",
		"side":   "BUY",
	}); err != nil {
		t.Fatalf("Signed returned error: %v", err)
	}

	if got := captured.Header.Get("X-MBX-APIKEY"); got != testAPIKey {
		t.Errorf("expected API key header, got %q", got)
	}
	if got := capturedQuery.Get("recvWindow"); got != "5000" {
		t.Errorf("expected default recvWindow=5000, got %q", got)
	}
	if capturedQuery.Get("timestamp") == "" {
		t.Errorf("expected timestamp parameter")
	}

	// 签名必须覆盖除 signature 外全部参数的规范化（排序）编码。
	signature := capturedQuery.Get("signature")
	if signature == "" {
		t.Fatalf("expected signature parameter")
	}
	unsigned := url.Values{}
	for key, values := range capturedQuery {
		if key == "signature" {
			continue
		}
		unsigned.Set(key, values[0])
	}
	mac := hmac.New(sha256.New, []byte(testAPISecret))
	mac.Write([]byte(unsigned.Encode()))
	if want := hex.EncodeToString(mac.Sum(nil)); signature != want {
		t.Errorf("signature mismatch: got %s want %s", signature, want)
	}
}

func TestSigned_MissingCredentials(t *testing.T) {
	var hits int
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		hits++
		w.Write([]byte(`{}`))
	}))
	defer server.Close()

	cfg := testClientConfig(server.URL)
	cfg.APISecret = ""
	client := NewClient(cfg, nil)

	_, err := client.Signed(context.Background(), http.MethodGet, "/fapi/v2/account", nil)
	if !errors.Is(err, ErrMissingCredentials) {
		t.Fatalf("expected ErrMissingCredentials, got %v", err)
	}
	if hits != 0 {
		t.Errorf("no request should be sent without credentials, got %d", hits)
	}
}

func TestSigned_RejectionBodyReturnedWithoutRetry(t *testing.T) {
	var hits int
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		hits++
		w.WriteHeader(http.StatusBadRequest)
		w.Write([]byte(`{"code": -2019, "msg": "Margin is insufficient."}`))
	}))
	defer server.Close()

	client := NewClient(testClientConfig(server.URL), nil)
	payload, err := client.Signed(context.Background(), http.MethodPost, "/fapi/v1/order", nil)
	if err != nil {
		t.Fatalf("rejection body must be returned as payload, got error: %v", err)
	}
	if hits != 1 {
		t.Errorf("rejections must not be retried, got %d attempts", hits)
	}

	rejErr := checkRejection(payload)
	if !IsRejection(rejErr) {
		t.Fatalf("expected rejection error, got %v", rejErr)
	}
	var rejection *RejectionError
	errors.As(rejErr, &rejection)
	if rejection.Code != -2019 {
		t.Errorf("unexpected rejection code: %d", rejection.Code)
	}
}

func TestSigned_TimeoutRetriesWithFreshSignature(t *testing.T) {
	var mu sync.Mutex
	var timestamps []string
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		mu.Lock()
		timestamps = append(timestamps, r.URL.Query().Get("timestamp"))
		mu.Unlock()
		time.Sleep(300 * time.Millisecond)
		w.Write([]byte(`{}`))
	}))
	defer server.Close()

	cfg := testClientConfig(server.URL)
	cfg.Timeout = 50 * time.Millisecond
	client := NewClient(cfg, nil)

	_, err := client.Signed(context.Background(), http.MethodGet, "/fapi/v2/account", nil)
	if err == nil {
		t.Fatalf("expected timeout error")
	}
	var reqErr *RequestError
	if !errors.As(err, &reqErr) {
		t.Fatalf("expected *RequestError, got %T: %v", err, err)
	}
	if reqErr.Kind != KindTimeout {
		t.Errorf("expected timeout kind, got %s", reqErr.Kind)
	}
	if !reqErr.Retryable() {
		t.Errorf("timeout must be classified retryable")
	}

	mu.Lock()
	defer mu.Unlock()
	if len(timestamps) != 3 {
		t.Fatalf("expected 3 attempts, got %d", len(timestamps))
	}
	seen := make(map[string]struct{}, len(timestamps))
	for _, ts := range timestamps {
		if ts == "" {
			t.Errorf("attempt missing timestamp")
		}
		seen[ts] = struct{}{}
	}
	if len(seen) != len(timestamps) {
		t.Errorf("each attempt must re-sign with a fresh timestamp: %v", timestamps)
	}
}

func TestSigned_MalformedResponseNotRetried(t *testing.T) {
	var hits int
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		hits++
		w.Write([]byte(`<html>gateway error</html>`))
	}))
	defer server.Close()

	client := NewClient(testClientConfig(server.URL), nil)
	_, err := client.Signed(context.Background(), http.MethodGet, "/fapi/v2/account", nil)

	var reqErr *RequestError
	if !errors.As(err, &reqErr) || reqErr.Kind != KindMalformed {
		t.Fatalf("expected malformed-response error, got %v", err)
	}
	if hits != 1 {
		t.Errorf("malformed responses must not be retried, got %d attempts", hits)
	}
}

func TestSigned_RecvWindowOverrideKept(t *testing.T) {
	var capturedQuery url.Values
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		capturedQuery = r.URL.Query()
		w.Write([]byte(`{}`))
	}))
	defer server.Close()

	client := NewClient(testClientConfig(server.URL), nil)
	if _, err := client.Signed(context.Background(), http.MethodGet, "/fapi/v2/account", map[string]string{
		"recvWindow": "10000",
	}); err != nil {
		t.Fatalf("Signed returned error: %v", err)
	}
	if got := capturedQuery.Get("recvWindow"); got != "10000" {
		t.Errorf("caller recvWindow must be kept, got %q", got)
	}
}

func TestPlaceMarketOrder_NormalizesQuantity(t *testing.T) {
	var orderQuery url.Values
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		switch r.URL.Path {
		case "/fapi/v1/exchangeInfo":
			w.Write([]byte(`{"symbols": [{"symbol": "BTCUSDT", "quantityPrecision": 3, "pricePrecision": 1, "filters": [
				{"filterType": "LOT_SIZE", "stepSize": "0.001", "minQty": "0.001"},
				{"filterType": "PRICE_FILTER", "tickSize": "0.1"},
				{"filterType": "MIN_NOTIONAL", "notional": "5"}
			]}]}`))
		case "/fapi/v1/ticker/price":
			w.Write([]byte(`{"symbol": "BTCUSDT", "price": "50000.0"}`))
		case "/fapi/v1/order":
			orderQuery = r.URL.Query()
			w.Write([]byte(`{"orderId": 42, "symbol": "BTCUSDT", "status": "FILLED"}`))
		default:
			t.Errorf("unexpected path: %s", r.URL.Path)
		}
	}))
	defer server.Close()

	client := NewClient(testClientConfig(server.URL), nil)
	ack, err := client.PlaceMarketOrder(context.Background(), "BTCUSDT", SideBuy, 0.12345)
	if err != nil {
		t.Fatalf("PlaceMarketOrder returned error: %v", err)
	}
	if ack.OrderID != 42 {
		t.Errorf("unexpected order id: %d", ack.OrderID)
	}
	if ack.Quantity != 0.123 {
		t.Errorf("ack must carry normalized quantity, got %v", ack.Quantity)
	}
	if got := orderQuery.Get("quantity"); got != "0.123" {
		t.Errorf("expected normalized quantity on the wire, got %q", got)
	}
	if got := orderQuery.Get("type"); got != OrderTypeMarket {
		t.Errorf("expected MARKET order type, got %q", got)
	}
}

func TestPlaceMarketOrder_RejectsVanishingQuantity(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		switch r.URL.Path {
		case "/fapi/v1/exchangeInfo":
			w.Write([]byte(`{"symbols": [{"symbol": "BTCUSDT", "quantityPrecision": 3, "filters": [
				{"filterType": "LOT_SIZE", "stepSize": "0.001", "minQty": "0"}
			]}]}`))
		case "/fapi/v1/ticker/price":
			w.Write([]byte(`{"symbol": "BTCUSDT", "price": "0"}`))
		case "/fapi/v1/order":
			t.Errorf("order must not be sent for zero quantity")
		}
	}))
	defer server.Close()

	client := NewClient(testClientConfig(server.URL), nil)
	// 数量向下取整后为0，最小数量过滤器又缺席，无法经由最小名义金额补足。
	if _, err := client.PlaceMarketOrder(context.Background(), "BTCUSDT", SideBuy, 0.0004); err == nil {
		t.Fatalf("expected normalization rejection")
	}
}

func TestCancelProtectiveOrders_ListFailureTolerated(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Write([]byte(`{"code": -1000, "msg": "unknown"}`))
	}))
	defer server.Close()

	client := NewClient(testClientConfig(server.URL), nil)
	if err := client.CancelProtectiveOrders(context.Background(), "BTCUSDT"); err != nil {
		t.Fatalf("list failure must be tolerated, got %v", err)
	}
}
