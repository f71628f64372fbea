package app

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"strconv"
	"strings"
	"time"

	"go.uber.org/zap"

	"consensus-trader/internal/advisor"
	"consensus-trader/internal/config"
	"consensus-trader/internal/journal"
	"consensus-trader/internal/market"
	"consensus-trader/internal/proposal"
)

// AdviceServer 提供按需查询交易建议的 HTTP 接口。
// 只做行情采集与建议收集，不合并、不执行。
type AdviceServer struct {
	cfg      *config.Config
	provider *market.Provider
	council  *advisor.Council
	journal  *journal.Service
	logger   *zap.Logger
}

// NewAdviceServer 组装建议查询服务。
func NewAdviceServer(cfg *config.Config, provider *market.Provider, council *advisor.Council, journalSvc *journal.Service, logger *zap.Logger) *AdviceServer {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &AdviceServer{
		cfg:      cfg,
		provider: provider,
		council:  council,
		journal:  journalSvc,
		logger:   logger,
	}
}

type adviceRequest struct {
	Symbols       []string `json:"symbols"`
	ShortInterval string   `json:"short_interval"`
	LongInterval  string   `json:"long_interval"`
	KlineLimit    int      `json:"kline_limit"`
}

type adviceResponse struct {
	Success       bool             `json:"success"`
	Error         string           `json:"error,omitempty"`
	Symbols       []string         `json:"symbols,omitempty"`
	ShortInterval string           `json:"short_interval,omitempty"`
	LongInterval  string           `json:"long_interval,omitempty"`
	SourceCount   int              `json:"source_count,omitempty"`
	Batches       []proposal.Batch `json:"batches,omitempty"`
}

// Run 启动 HTTP 服务并阻塞至上下文取消。
func (s *AdviceServer) Run(ctx context.Context) error {
	mux := http.NewServeMux()
	mux.HandleFunc("/api/advice", s.handleAdvice)
	mux.HandleFunc("/api/symbols", s.handleSymbols)
	mux.HandleFunc("/api/health", s.handleHealth)
	mux.HandleFunc("/events", s.handleEvents)

	addr := fmt.Sprintf(":%d", s.cfg.Server.Port)
	srv := &http.Server{
		Addr:              addr,
		Handler:           mux,
		ReadHeaderTimeout: 10 * time.Second,
	}

	errCh := make(chan error, 1)
	go func() {
		errCh <- srv.ListenAndServe()
	}()

	s.logger.Info("建议查询服务已启动", zap.String("addr", addr))

	select {
	case <-ctx.Done():
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		if err := srv.Shutdown(shutdownCtx); err != nil && err != http.ErrServerClosed {
			s.logger.Warn("关闭建议查询服务失败", zap.Error(err))
		}
		return nil
	case err := <-errCh:
		if err != nil && err != http.ErrServerClosed {
			return fmt.Errorf("建议查询服务异常: %w", err)
		}
		return nil
	}
}

func (s *AdviceServer) handleAdvice(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		http.Error(w, "method not allowed", http.StatusMethodNotAllowed)
		return
	}

	var req adviceRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeJSON(w, http.StatusBadRequest, adviceResponse{Success: false, Error: "请求体解析失败"}, s.logger)
		return
	}
	if len(req.Symbols) == 0 || req.ShortInterval == "" || req.LongInterval == "" {
		writeJSON(w, http.StatusBadRequest, adviceResponse{
			Success: false,
			Error:   "symbols、short_interval、long_interval 均为必填",
		}, s.logger)
		return
	}
	if req.KlineLimit <= 0 {
		req.KlineLimit = 1000
	}

	pairs := make([]config.PairConfig, 0, len(req.Symbols))
	for _, symbol := range req.Symbols {
		pairs = append(pairs, config.PairConfig{
			Symbol:        strings.ToUpper(strings.TrimSpace(symbol)),
			ShortInterval: req.ShortInterval,
			LongInterval:  req.LongInterval,
			KlineLimit:    req.KlineLimit,
		})
	}

	marketText, err := s.provider.MarketText(r.Context(), pairs)
	if err != nil {
		writeJSON(w, http.StatusBadGateway, adviceResponse{Success: false, Error: "无法获取市场数据"}, s.logger)
		return
	}

	prompt := advisor.BuildPrompt("", marketText, "")
	batches := s.council.Collect(r.Context(), prompt)

	writeJSON(w, http.StatusOK, adviceResponse{
		Success:       true,
		Symbols:       req.Symbols,
		ShortInterval: req.ShortInterval,
		LongInterval:  req.LongInterval,
		SourceCount:   len(batches),
		Batches:       batches,
	}, s.logger)
}

func (s *AdviceServer) handleSymbols(w http.ResponseWriter, r *http.Request) {
	symbols := make([]string, 0, len(s.cfg.Trading.Pairs))
	for _, pair := range s.cfg.Trading.Pairs {
		symbols = append(symbols, pair.Symbol)
	}
	writeJSON(w, http.StatusOK, map[string]interface{}{
		"success": true,
		"symbols": symbols,
	}, s.logger)
}

func (s *AdviceServer) handleHealth(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, map[string]string{
		"status":  "healthy",
		"service": "consensus-trader advice API",
	}, s.logger)
}

func (s *AdviceServer) handleEvents(w http.ResponseWriter, r *http.Request) {
	q := r.URL.Query()
	limit := 200
	if qs := q.Get("limit"); qs != "" {
		if v, err := strconv.Atoi(qs); err == nil && v > 0 {
			if v > 1000 {
				v = 1000
			}
			limit = v
		}
	}

	eventType := journal.EventType("")
	if typ := strings.TrimSpace(q.Get("type")); typ != "" {
		eventType = journal.EventType(strings.ToLower(typ))
	}

	events, err := s.journal.ListEvents(r.Context(), eventType, limit)
	if err != nil {
		http.Error(w, err.Error(), http.StatusInternalServerError)
		return
	}
	writeJSON(w, http.StatusOK, events, s.logger)
}

func writeJSON(w http.ResponseWriter, status int, payload interface{}, logger *zap.Logger) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(payload); err != nil {
		logger.Warn("写入响应失败", zap.Error(err))
	}
}
