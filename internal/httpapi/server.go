package httpapi

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/coder/websocket"
	"github.com/coder/websocket/wsjson"
	"github.com/google/uuid"

	"meridian/internal/alerts"
	"meridian/internal/analyzer"
	"meridian/internal/backtest"
	"meridian/internal/domain"
	"meridian/internal/engine"
	"meridian/internal/live"
	"meridian/internal/store"
	"meridian/internal/strategy"
)

// BacktestResponse is the JSON shape for a completed backtest.
type BacktestResponse struct {
	ID           string           `json:"id"`
	Strategy     string           `json:"strategy"`
	Symbols      []string         `json:"symbols"`
	TotalReturn  float64          `json:"total_return"`
	SharpeRatio  float64          `json:"sharpe_ratio"`
	MaxDrawdown  float64          `json:"max_drawdown"`
	TotalTrades  int              `json:"total_trades"`
	WinRate      float64          `json:"win_rate"`
	ProfitFactor float64          `json:"profit_factor"`
	Detail       *backtest.Result `json:"detail,omitempty"`
}

// Server serves the trading platform's HTTP and WebSocket API.
type Server struct {
	engine     *engine.Engine
	backtester *strategy.Backtester
	registry   *strategy.Registry
	analyzer   *analyzer.Analyzer
	bars       store.BarStore
	runs       store.BacktestRunStore
	alerts     *alerts.Manager
	ticks      *live.TickModel
	log        *slog.Logger
}

// NewServer creates the API server. Any dependency may be nil; its
// endpoints then answer 503.
func NewServer(
	eng *engine.Engine,
	backtester *strategy.Backtester,
	registry *strategy.Registry,
	anlz *analyzer.Analyzer,
	bars store.BarStore,
	runs store.BacktestRunStore,
	alertMgr *alerts.Manager,
	ticks *live.TickModel,
	log *slog.Logger,
) *Server {
	if log == nil {
		log = slog.New(slog.DiscardHandler)
	}
	return &Server{
		engine:     eng,
		backtester: backtester,
		registry:   registry,
		analyzer:   anlz,
		bars:       bars,
		runs:       runs,
		alerts:     alertMgr,
		ticks:      ticks,
		log:        log.With("component", "httpapi"),
	}
}

// RegisterRoutes registers all API routes on the given mux.
func (s *Server) RegisterRoutes(mux *http.ServeMux) {
	mux.HandleFunc("GET /api/health", s.handleHealth)
	mux.HandleFunc("GET /api/status", s.handleStatus)
	mux.HandleFunc("GET /api/strategies", s.handleStrategies)
	mux.HandleFunc("POST /api/backtest/data/{symbol}", s.handleLoadData)
	mux.HandleFunc("POST /api/backtest/run", s.handleRunBacktest)
	mux.HandleFunc("GET /api/backtest/runs", s.handleListRuns)
	mux.HandleFunc("GET /api/backtest/runs/{id}", s.handleGetRun)
	mux.HandleFunc("GET /api/analyzer/condition", s.handleCondition)
	mux.HandleFunc("GET /api/portfolio/risk", s.handleRisk)
	mux.HandleFunc("GET /api/positions", s.handlePositions)
	mux.HandleFunc("GET /api/orders", s.handleListOrders)
	mux.HandleFunc("POST /api/orders", s.handleSubmitOrder)
	mux.HandleFunc("DELETE /api/orders/{id}", s.handleCancelOrder)
	mux.HandleFunc("POST /api/alerts", s.handleCreateAlert)
	mux.HandleFunc("GET /api/alerts", s.handleListAlerts)
	mux.HandleFunc("DELETE /api/alerts/{id}", s.handleDeleteAlert)
	mux.HandleFunc("GET /api/alerts/history", s.handleAlertHistory)
	mux.HandleFunc("GET /ws/ticks", s.handleTickStream)
	mux.HandleFunc("GET /ws/alerts", s.handleAlertStream)
}

// Handler returns an http.Handler with CORS middleware.
func (s *Server) Handler() http.Handler {
	mux := http.NewServeMux()
	s.RegisterRoutes(mux)
	return corsMiddleware(mux)
}

func corsMiddleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Access-Control-Allow-Origin", "*")
		w.Header().Set("Access-Control-Allow-Methods", "GET, POST, PUT, DELETE, OPTIONS")
		w.Header().Set("Access-Control-Allow-Headers", "Content-Type")
		if r.Method == "OPTIONS" {
			w.WriteHeader(http.StatusNoContent)
			return
		}
		next.ServeHTTP(w, r)
	})
}

func writeJSON(w http.ResponseWriter, v any) {
	w.Header().Set("Content-Type", "application/json")
	if err := json.NewEncoder(w).Encode(v); err != nil {
		slog.Error("encoding JSON response", "error", err)
	}
}

func writeError(w http.ResponseWriter, status int, msg string) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	json.NewEncoder(w).Encode(map[string]string{"error": msg})
}

func (s *Server) handleHealth(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, HealthResponse{Status: "ok", Time: time.Now().UTC().Format(time.RFC3339)})
}

func (s *Server) handleStatus(w http.ResponseWriter, r *http.Request) {
	resp := StatusResponse{}
	if s.registry != nil {
		resp.Strategies = len(s.registry.List())
	}
	if s.alerts != nil {
		resp.Alerts = len(s.alerts.List())
	}
	if s.ticks != nil {
		resp.Symbols = len(s.ticks.Symbols())
	}
	if s.engine != nil {
		resp.Broker = "connected"
	} else {
		resp.Broker = "none"
	}
	writeJSON(w, resp)
}

func (s *Server) handleStrategies(w http.ResponseWriter, r *http.Request) {
	if s.registry == nil {
		writeError(w, http.StatusServiceUnavailable, "strategy registry not configured")
		return
	}
	writeJSON(w, StrategiesResponse{Strategies: s.registry.List()})
}

func (s *Server) handleLoadData(w http.ResponseWriter, r *http.Request) {
	if s.bars == nil {
		writeError(w, http.StatusServiceUnavailable, "bar store not configured")
		return
	}
	symbol := strings.ToUpper(r.PathValue("symbol"))

	var req LoadDataRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid request body")
		return
	}
	if len(req.Bars) == 0 {
		writeError(w, http.StatusBadRequest, "no bars provided")
		return
	}

	bars := make([]domain.Bar, 0, len(req.Bars))
	for _, b := range req.Bars {
		bars = append(bars, barFromJSON(symbol, b))
	}
	if err := s.bars.WriteBars(r.Context(), bars); err != nil {
		s.log.Error("writing bars", "symbol", symbol, "error", err)
		writeError(w, http.StatusInternalServerError, "failed to store bars")
		return
	}
	writeJSON(w, LoadDataResponse{Symbol: symbol, Loaded: len(bars)})
}

func (s *Server) handleRunBacktest(w http.ResponseWriter, r *http.Request) {
	if s.backtester == nil {
		writeError(w, http.StatusServiceUnavailable, "backtester not configured")
		return
	}

	var req BacktestRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid request body")
		return
	}
	if req.Strategy == "" || len(req.Symbols) == 0 {
		writeError(w, http.StatusBadRequest, "strategy and symbols required")
		return
	}
	start, err := time.Parse("2006-01-02", req.StartDate)
	if err != nil {
		writeError(w, http.StatusBadRequest, "invalid start_date")
		return
	}
	end, err := time.Parse("2006-01-02", req.EndDate)
	if err != nil {
		writeError(w, http.StatusBadRequest, "invalid end_date")
		return
	}

	result, err := s.backtester.Run(r.Context(), req.Strategy, req.Symbols, start, end, req.InitialCapital)
	if err != nil {
		writeError(w, http.StatusUnprocessableEntity, err.Error())
		return
	}

	resp := BacktestResponse{
		ID:           uuid.NewString(),
		Strategy:     req.Strategy,
		Symbols:      req.Symbols,
		TotalReturn:  result.TotalReturn,
		SharpeRatio:  result.SharpeRatio,
		MaxDrawdown:  result.MaxDrawdown,
		TotalTrades:  result.TotalTrades,
		WinRate:      result.WinRate,
		ProfitFactor: result.ProfitFactor,
		Detail:       result.Detail,
	}
	s.persistRun(r.Context(), &resp, start, end)
	writeJSON(w, resp)
}

// persistRun saves a completed backtest; failures are logged, not fatal.
func (s *Server) persistRun(ctx context.Context, resp *BacktestResponse, start, end time.Time) {
	if s.runs == nil {
		return
	}
	payload, err := json.Marshal(resp)
	if err != nil {
		s.log.Error("marshalling backtest result", "error", err)
		return
	}
	run := &store.BacktestRun{
		ID:        resp.ID,
		Strategy:  resp.Strategy,
		Symbols:   resp.Symbols,
		StartDate: start,
		EndDate:   end,
		Result:    payload,
		CreatedAt: time.Now().UTC(),
	}
	if err := s.runs.SaveBacktestRun(ctx, run); err != nil {
		s.log.Error("saving backtest run", "id", resp.ID, "error", err)
	}
}

func (s *Server) handleListRuns(w http.ResponseWriter, r *http.Request) {
	if s.runs == nil {
		writeError(w, http.StatusServiceUnavailable, "run store not configured")
		return
	}
	limit := 50
	if v := r.URL.Query().Get("limit"); v != "" {
		if n, err := strconv.Atoi(v); err == nil && n > 0 {
			limit = n
		}
	}
	runs, err := s.runs.ListBacktestRuns(r.Context(), limit)
	if err != nil {
		s.log.Error("listing backtest runs", "error", err)
		writeError(w, http.StatusInternalServerError, "failed to list runs")
		return
	}
	out := make([]BacktestRunSummary, 0, len(runs))
	for _, run := range runs {
		out = append(out, BacktestRunSummary{
			ID:        run.ID,
			Strategy:  run.Strategy,
			Symbols:   run.Symbols,
			StartDate: run.StartDate.Format("2006-01-02"),
			EndDate:   run.EndDate.Format("2006-01-02"),
			CreatedAt: run.CreatedAt,
		})
	}
	writeJSON(w, out)
}

func (s *Server) handleGetRun(w http.ResponseWriter, r *http.Request) {
	if s.runs == nil {
		writeError(w, http.StatusServiceUnavailable, "run store not configured")
		return
	}
	run, err := s.runs.GetBacktestRun(r.Context(), r.PathValue("id"))
	if err != nil {
		writeError(w, http.StatusNotFound, "run not found")
		return
	}
	w.Header().Set("Content-Type", "application/json")
	w.Write(run.Result)
}

func (s *Server) handleCondition(w http.ResponseWriter, r *http.Request) {
	if s.analyzer == nil || s.bars == nil {
		writeError(w, http.StatusServiceUnavailable, "analyzer not configured")
		return
	}
	symbolsParam := r.URL.Query().Get("symbols")
	if symbolsParam == "" {
		writeError(w, http.StatusBadRequest, "symbols query parameter required")
		return
	}
	symbols := strings.Split(strings.ToUpper(symbolsParam), ",")

	days := 60
	if v := r.URL.Query().Get("days"); v != "" {
		if n, err := strconv.Atoi(v); err == nil && n > 0 {
			days = n
		}
	}
	end := time.Now().UTC()
	start := end.AddDate(0, 0, -days)

	bars := make(map[string][]domain.Bar, len(symbols))
	for _, sym := range symbols {
		series, err := s.bars.ReadBars(r.Context(), sym, string(domain.MarketUS), start, end)
		if err != nil {
			s.log.Warn("reading bars for analysis", "symbol", sym, "error", err)
			continue
		}
		if len(series) > 0 {
			bars[sym] = series
		}
	}
	if len(bars) == 0 {
		writeError(w, http.StatusNotFound, "no bar data for requested symbols")
		return
	}

	cond := s.analyzer.AnalyzeCondition(bars)
	recs := s.analyzer.Recommend(cond, symbols, 100000)
	writeJSON(w, ConditionResponse{
		Symbols:         symbols,
		Days:            days,
		Condition:       cond,
		Recommendations: recs,
	})
}

func (s *Server) handleRisk(w http.ResponseWriter, r *http.Request) {
	if s.engine == nil {
		writeError(w, http.StatusServiceUnavailable, "engine not configured")
		return
	}
	report, err := s.engine.RiskReport(r.Context())
	if err != nil {
		s.log.Error("building risk report", "error", err)
		writeError(w, http.StatusInternalServerError, "failed to build risk report")
		return
	}
	writeJSON(w, report)
}

func (s *Server) handlePositions(w http.ResponseWriter, r *http.Request) {
	if s.engine == nil {
		writeError(w, http.StatusServiceUnavailable, "engine not configured")
		return
	}
	positions, err := s.engine.GetPositions(r.Context())
	if err != nil {
		s.log.Error("getting positions", "error", err)
		writeError(w, http.StatusInternalServerError, "failed to get positions")
		return
	}
	writeJSON(w, positions)
}

func (s *Server) handleListOrders(w http.ResponseWriter, r *http.Request) {
	if s.engine == nil {
		writeError(w, http.StatusServiceUnavailable, "engine not configured")
		return
	}
	status := domain.OrderStatus(r.URL.Query().Get("status"))
	if status == "" {
		status = domain.OrderStatusFilled
	}
	switch status {
	case domain.OrderStatusPending, domain.OrderStatusFilled, domain.OrderStatusCancelled:
	default:
		writeError(w, http.StatusBadRequest, "unknown order status")
		return
	}
	orders, err := s.engine.ListOrders(r.Context(), status)
	if err != nil {
		writeError(w, http.StatusServiceUnavailable, err.Error())
		return
	}
	if orders == nil {
		orders = []domain.Order{}
	}
	writeJSON(w, orders)
}

func (s *Server) handleSubmitOrder(w http.ResponseWriter, r *http.Request) {
	if s.engine == nil {
		writeError(w, http.StatusServiceUnavailable, "engine not configured")
		return
	}

	var req OrderRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid request body")
		return
	}
	order, err := orderFromRequest(&req)
	if err != nil {
		writeError(w, http.StatusBadRequest, err.Error())
		return
	}

	placed, err := s.engine.SubmitOrder(r.Context(), order)
	if err != nil {
		writeError(w, http.StatusUnprocessableEntity, err.Error())
		return
	}
	writeJSON(w, placed)
}

// orderFromRequest validates the request and builds a domain order.
func orderFromRequest(req *OrderRequest) (*domain.Order, error) {
	if req.Symbol == "" {
		return nil, fmt.Errorf("symbol required")
	}
	if req.Qty <= 0 {
		return nil, fmt.Errorf("qty must be positive")
	}
	side := domain.OrderSide(req.Side)
	if side != domain.OrderSideBuy && side != domain.OrderSideSell {
		return nil, fmt.Errorf("side must be buy or sell")
	}
	typ := domain.OrderType(req.Type)
	switch typ {
	case domain.OrderTypeMarket, domain.OrderTypeLimit, domain.OrderTypeStop, domain.OrderTypeStopLimit:
	default:
		return nil, fmt.Errorf("unknown order type %q", req.Type)
	}
	if (typ == domain.OrderTypeLimit || typ == domain.OrderTypeStopLimit) && req.LimitPrice <= 0 {
		return nil, fmt.Errorf("limit price required for %s orders", typ)
	}
	if (typ == domain.OrderTypeStop || typ == domain.OrderTypeStopLimit) && req.StopPrice <= 0 {
		return nil, fmt.Errorf("stop price required for %s orders", typ)
	}
	return &domain.Order{
		Symbol:     strings.ToUpper(req.Symbol),
		Side:       side,
		Type:       typ,
		Qty:        req.Qty,
		LimitPrice: req.LimitPrice,
		StopPrice:  req.StopPrice,
	}, nil
}

func (s *Server) handleCancelOrder(w http.ResponseWriter, r *http.Request) {
	if s.engine == nil {
		writeError(w, http.StatusServiceUnavailable, "engine not configured")
		return
	}
	if err := s.engine.CancelOrder(r.Context(), r.PathValue("id")); err != nil {
		writeError(w, http.StatusUnprocessableEntity, err.Error())
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

func (s *Server) handleCreateAlert(w http.ResponseWriter, r *http.Request) {
	if s.alerts == nil {
		writeError(w, http.StatusServiceUnavailable, "alerts not configured")
		return
	}
	var req AlertRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid request body")
		return
	}
	if req.Type == "" {
		writeError(w, http.StatusBadRequest, "type required")
		return
	}
	if req.Priority == "" {
		req.Priority = alerts.PriorityMedium
	}
	created := s.alerts.Add(&alerts.Alert{
		Symbol:       strings.ToUpper(req.Symbol),
		Type:         req.Type,
		Condition:    req.Condition,
		Priority:     req.Priority,
		Enabled:      true,
		CooldownMins: req.Cooldown,
	})
	writeJSON(w, created)
}

func (s *Server) handleListAlerts(w http.ResponseWriter, r *http.Request) {
	if s.alerts == nil {
		writeError(w, http.StatusServiceUnavailable, "alerts not configured")
		return
	}
	writeJSON(w, s.alerts.List())
}

func (s *Server) handleDeleteAlert(w http.ResponseWriter, r *http.Request) {
	if s.alerts == nil {
		writeError(w, http.StatusServiceUnavailable, "alerts not configured")
		return
	}
	if !s.alerts.Remove(r.PathValue("id")) {
		writeError(w, http.StatusNotFound, "alert not found")
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

func (s *Server) handleAlertHistory(w http.ResponseWriter, r *http.Request) {
	if s.alerts == nil {
		writeError(w, http.StatusServiceUnavailable, "alerts not configured")
		return
	}
	limit := 100
	if v := r.URL.Query().Get("limit"); v != "" {
		if n, err := strconv.Atoi(v); err == nil && n > 0 {
			limit = n
		}
	}
	writeJSON(w, s.alerts.TriggerHistory(limit))
}

func (s *Server) handleTickStream(w http.ResponseWriter, r *http.Request) {
	if s.ticks == nil {
		writeError(w, http.StatusServiceUnavailable, "tick model not configured")
		return
	}
	conn, err := websocket.Accept(w, r, &websocket.AcceptOptions{
		OriginPatterns: []string{"*"},
	})
	if err != nil {
		s.log.Warn("websocket accept failed", "error", err)
		return
	}
	defer conn.CloseNow()

	ctx := r.Context()
	symbol := strings.ToUpper(r.URL.Query().Get("symbol"))

	// Snapshot first, then live events.
	if symbol != "" {
		for _, trade := range s.ticks.Snapshot(symbol) {
			if err := wsjson.Write(ctx, conn, trade); err != nil {
				return
			}
		}
	}

	subID, ch := s.ticks.Subscribe(4096)
	defer s.ticks.Unsubscribe(subID)
	s.log.Info("tick stream client subscribed", "subID", subID, "symbol", symbol)

	for {
		select {
		case <-ctx.Done():
			s.log.Info("tick stream client disconnected", "subID", subID)
			return
		case evt, ok := <-ch:
			if !ok {
				return
			}
			if symbol != "" && evt.Trade.Symbol != symbol {
				continue
			}
			if err := wsjson.Write(ctx, conn, evt.Trade); err != nil {
				return
			}
		}
	}
}

func (s *Server) handleAlertStream(w http.ResponseWriter, r *http.Request) {
	if s.alerts == nil {
		writeError(w, http.StatusServiceUnavailable, "alerts not configured")
		return
	}
	conn, err := websocket.Accept(w, r, &websocket.AcceptOptions{
		OriginPatterns: []string{"*"},
	})
	if err != nil {
		s.log.Warn("websocket accept failed", "error", err)
		return
	}
	defer conn.CloseNow()

	ctx := r.Context()
	subID, ch := s.alerts.Subscribe(256)
	defer s.alerts.Unsubscribe(subID)
	s.log.Info("alert stream client subscribed", "subID", subID)

	for {
		select {
		case <-ctx.Done():
			s.log.Info("alert stream client disconnected", "subID", subID)
			return
		case trigger, ok := <-ch:
			if !ok {
				return
			}
			if err := wsjson.Write(ctx, conn, trigger); err != nil {
				return
			}
		}
	}
}
