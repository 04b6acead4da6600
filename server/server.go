// Package server exposes the dashboard HTTP API.
package server

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/gorilla/mux"
	log "github.com/sirupsen/logrus"

	"github.com/quantdesk/options-desk/dte"
	"github.com/quantdesk/options-desk/scheduler"
	"github.com/quantdesk/options-desk/storage"
	"github.com/quantdesk/options-desk/types"
)

const (
	defaultTicker    = "SPY"
	defaultTargetDTE = 32
	defaultTolerance = 5
)

// ExpirationService discovers optimal expirations.
type ExpirationService interface {
	FindOptimalDTE(ctx context.Context, req dte.DiscoveryRequest) (*dte.DiscoveryResult, error)
	FindOptimalDTEWithFallback(ctx context.Context, primary, fallback dte.DiscoveryRequest) (*dte.DiscoveryResult, error)
}

// MarketData provides snapshots and the multi-symbol overview.
type MarketData interface {
	Snapshot(ctx context.Context, ticker string) (*types.MarketSnapshot, error)
	Overview(ctx context.Context) (map[string]types.QuoteData, error)
}

// AnalysisStore reads persisted analyses and maintains the trade log
// behind the public performance page.
type AnalysisStore interface {
	LatestAnalysis(ticker string) (*types.AnalysisReport, error)
	ListAnalyses(ticker string, limit, offset int) ([]types.AnalysisReport, error)
	SaveTradeLog(trade *storage.TradeLogRecord) error
	CloseTrade(id uint, exitPrice float64) error
	Performance() (*storage.PerformanceSummary, error)
}

// PipelineRunner triggers and inspects analysis runs.
type PipelineRunner interface {
	RunOnce(ctx context.Context, trigger string) (*types.AnalysisReport, error)
	Status() scheduler.ExecutionStatus
}

// Server wires the API handlers to their backing services.
type Server struct {
	expirations ExpirationService
	market      MarketData
	store       AnalysisStore
	runner      PipelineRunner
}

// New creates a Server. store and runner may be nil when the database or
// scheduler are disabled; the affected routes respond 503.
func New(expirations ExpirationService, market MarketData, store AnalysisStore, runner PipelineRunner) *Server {
	return &Server{
		expirations: expirations,
		market:      market,
		store:       store,
		runner:      runner,
	}
}

// RegisterRoutes mounts the API on router.
func (s *Server) RegisterRoutes(router *mux.Router) {
	router.Use(corsMiddleware)

	router.HandleFunc("/api/health", s.handleHealth).Methods(http.MethodGet, http.MethodOptions)
	router.HandleFunc("/api/market-data", s.handleMarketData).Methods(http.MethodGet, http.MethodOptions)
	router.HandleFunc("/api/market-data/overview", s.handleOverview).Methods(http.MethodGet, http.MethodOptions)
	router.HandleFunc("/api/dte/optimal", s.handleOptimalDTE).Methods(http.MethodGet, http.MethodOptions)
	router.HandleFunc("/api/analysis/latest", s.handleLatestAnalysis).Methods(http.MethodGet, http.MethodOptions)
	router.HandleFunc("/api/analysis/library", s.handleAnalysisLibrary).Methods(http.MethodGet, http.MethodOptions)
	router.HandleFunc("/api/analysis/run", s.handleRunAnalysis).Methods(http.MethodPost, http.MethodOptions)
	router.HandleFunc("/api/scheduler/status", s.handleSchedulerStatus).Methods(http.MethodGet, http.MethodOptions)
	router.HandleFunc("/api/scheduler/force", s.handleForceRun).Methods(http.MethodPost, http.MethodOptions)
	router.HandleFunc("/api/trades", s.handleLogTrade).Methods(http.MethodPost, http.MethodOptions)
	router.HandleFunc("/api/trades/{id:[0-9]+}/close", s.handleCloseTrade).Methods(http.MethodPost, http.MethodOptions)
	router.HandleFunc("/api/public/health", s.handleHealth).Methods(http.MethodGet, http.MethodOptions)
	router.HandleFunc("/api/public/performance", s.handlePerformance).Methods(http.MethodGet, http.MethodOptions)
}

func corsMiddleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Access-Control-Allow-Origin", "*")
		w.Header().Set("Access-Control-Allow-Methods", "GET, POST, DELETE, OPTIONS")
		w.Header().Set("Access-Control-Allow-Headers", "Content-Type, Authorization")

		if r.Method == http.MethodOptions {
			w.WriteHeader(http.StatusOK)
			return
		}

		next.ServeHTTP(w, r)
	})
}

func (s *Server) handleHealth(w http.ResponseWriter, r *http.Request) {
	respondJSON(w, http.StatusOK, map[string]interface{}{
		"status": "ok",
		"time":   time.Now().UTC().Format(time.RFC3339),
	})
}

func (s *Server) handleMarketData(w http.ResponseWriter, r *http.Request) {
	ticker := tickerParam(r)

	snapshot, err := s.market.Snapshot(r.Context(), ticker)
	if err != nil {
		log.Errorf("market snapshot for %s: %v", ticker, err)
		respondError(w, http.StatusBadGateway, "market data unavailable")
		return
	}
	respondJSON(w, http.StatusOK, snapshot)
}

func (s *Server) handleOverview(w http.ResponseWriter, r *http.Request) {
	overview, err := s.market.Overview(r.Context())
	if err != nil {
		log.Errorf("market overview: %v", err)
		respondError(w, http.StatusBadGateway, "market data unavailable")
		return
	}
	respondJSON(w, http.StatusOK, overview)
}

// handleOptimalDTE runs expiration discovery. Query parameters: ticker,
// target, tolerance, plus optional fallback_target and fallback_tolerance
// to opt in to a second attempt.
func (s *Server) handleOptimalDTE(w http.ResponseWriter, r *http.Request) {
	req := dte.DiscoveryRequest{
		Ticker:    tickerParam(r),
		TargetDTE: defaultTargetDTE,
		Tolerance: defaultTolerance,
	}

	var err error
	if req.TargetDTE, err = intParam(r, "target", defaultTargetDTE); err != nil {
		respondError(w, http.StatusBadRequest, err.Error())
		return
	}
	if req.Tolerance, err = intParam(r, "tolerance", defaultTolerance); err != nil {
		respondError(w, http.StatusBadRequest, err.Error())
		return
	}

	var result *dte.DiscoveryResult
	if r.URL.Query().Has("fallback_target") {
		fallback := dte.DiscoveryRequest{Ticker: req.Ticker}
		if fallback.TargetDTE, err = intParam(r, "fallback_target", 0); err != nil {
			respondError(w, http.StatusBadRequest, err.Error())
			return
		}
		if fallback.Tolerance, err = intParam(r, "fallback_tolerance", 0); err != nil {
			respondError(w, http.StatusBadRequest, err.Error())
			return
		}
		result, err = s.expirations.FindOptimalDTEWithFallback(r.Context(), req, fallback)
	} else {
		result, err = s.expirations.FindOptimalDTE(r.Context(), req)
	}

	if err != nil {
		if errors.Is(err, dte.ErrInvalidRequest) {
			respondError(w, http.StatusBadRequest, err.Error())
			return
		}
		log.Errorf("dte discovery for %s: %v", req.Ticker, err)
		respondError(w, http.StatusInternalServerError, "discovery failed")
		return
	}
	respondJSON(w, http.StatusOK, result)
}

func (s *Server) handleLatestAnalysis(w http.ResponseWriter, r *http.Request) {
	if s.store == nil {
		respondError(w, http.StatusServiceUnavailable, "storage disabled")
		return
	}

	report, err := s.store.LatestAnalysis(tickerParam(r))
	if err != nil {
		log.Errorf("latest analysis: %v", err)
		respondError(w, http.StatusInternalServerError, "storage error")
		return
	}
	if report == nil {
		respondError(w, http.StatusNotFound, "no analysis available")
		return
	}
	respondJSON(w, http.StatusOK, report)
}

func (s *Server) handleAnalysisLibrary(w http.ResponseWriter, r *http.Request) {
	if s.store == nil {
		respondError(w, http.StatusServiceUnavailable, "storage disabled")
		return
	}

	limit, err := intParam(r, "limit", 20)
	if err != nil {
		respondError(w, http.StatusBadRequest, err.Error())
		return
	}
	offset, err := intParam(r, "offset", 0)
	if err != nil {
		respondError(w, http.StatusBadRequest, err.Error())
		return
	}

	reports, err := s.store.ListAnalyses(r.URL.Query().Get("ticker"), limit, offset)
	if err != nil {
		log.Errorf("analysis library: %v", err)
		respondError(w, http.StatusInternalServerError, "storage error")
		return
	}
	respondJSON(w, http.StatusOK, map[string]interface{}{
		"reports": reports,
		"count":   len(reports),
	})
}

func (s *Server) handleRunAnalysis(w http.ResponseWriter, r *http.Request) {
	s.triggerRun(w, r, "manual")
}

func (s *Server) handleForceRun(w http.ResponseWriter, r *http.Request) {
	s.triggerRun(w, r, "forced")
}

func (s *Server) triggerRun(w http.ResponseWriter, r *http.Request, trigger string) {
	if s.runner == nil {
		respondError(w, http.StatusServiceUnavailable, "scheduler disabled")
		return
	}

	report, err := s.runner.RunOnce(r.Context(), trigger)
	if err != nil {
		if strings.Contains(err.Error(), "already in progress") {
			respondError(w, http.StatusConflict, err.Error())
			return
		}
		if errors.Is(err, dte.ErrInvalidRequest) {
			respondError(w, http.StatusBadRequest, err.Error())
			return
		}
		log.Errorf("%s analysis run: %v", trigger, err)
		respondError(w, http.StatusInternalServerError, err.Error())
		return
	}
	respondJSON(w, http.StatusOK, report)
}

func (s *Server) handleSchedulerStatus(w http.ResponseWriter, r *http.Request) {
	if s.runner == nil {
		respondError(w, http.StatusServiceUnavailable, "scheduler disabled")
		return
	}
	respondJSON(w, http.StatusOK, s.runner.Status())
}

type logTradeRequest struct {
	AnalysisID uint    `json:"analysis_id"`
	Ticker     string  `json:"ticker"`
	Strategy   string  `json:"strategy"`
	Direction  string  `json:"direction"`
	Strikes    string  `json:"strikes"`
	Expiration string  `json:"expiration"`
	EntryPrice float64 `json:"entry_price"`
	Quantity   int     `json:"quantity"`
}

func (s *Server) handleLogTrade(w http.ResponseWriter, r *http.Request) {
	if s.store == nil {
		respondError(w, http.StatusServiceUnavailable, "storage disabled")
		return
	}

	var req logTradeRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		respondError(w, http.StatusBadRequest, "invalid request body")
		return
	}
	if req.Ticker == "" || req.Strategy == "" {
		respondError(w, http.StatusBadRequest, "ticker and strategy are required")
		return
	}
	if req.Quantity <= 0 {
		req.Quantity = 1
	}

	trade := &storage.TradeLogRecord{
		AnalysisID: req.AnalysisID,
		Ticker:     strings.ToUpper(req.Ticker),
		Strategy:   req.Strategy,
		Direction:  req.Direction,
		Strikes:    req.Strikes,
		Expiration: req.Expiration,
		EntryPrice: req.EntryPrice,
		Quantity:   req.Quantity,
		Status:     storage.TradeStatusOpen,
	}
	if err := s.store.SaveTradeLog(trade); err != nil {
		log.Errorf("log trade: %v", err)
		respondError(w, http.StatusInternalServerError, "storage error")
		return
	}
	respondJSON(w, http.StatusCreated, trade)
}

func (s *Server) handleCloseTrade(w http.ResponseWriter, r *http.Request) {
	if s.store == nil {
		respondError(w, http.StatusServiceUnavailable, "storage disabled")
		return
	}

	id, err := strconv.ParseUint(mux.Vars(r)["id"], 10, 32)
	if err != nil {
		respondError(w, http.StatusBadRequest, "invalid trade id")
		return
	}

	var req struct {
		ExitPrice float64 `json:"exit_price"`
	}
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		respondError(w, http.StatusBadRequest, "invalid request body")
		return
	}

	if err := s.store.CloseTrade(uint(id), req.ExitPrice); err != nil {
		if errors.Is(err, storage.ErrTradeNotFound) {
			respondError(w, http.StatusNotFound, "trade not found")
			return
		}
		log.Errorf("close trade %d: %v", id, err)
		respondError(w, http.StatusInternalServerError, "storage error")
		return
	}
	respondJSON(w, http.StatusOK, map[string]interface{}{"id": id, "exit_price": req.ExitPrice})
}

func (s *Server) handlePerformance(w http.ResponseWriter, r *http.Request) {
	if s.store == nil {
		respondError(w, http.StatusServiceUnavailable, "storage disabled")
		return
	}

	summary, err := s.store.Performance()
	if err != nil {
		log.Errorf("performance summary: %v", err)
		respondError(w, http.StatusInternalServerError, "storage error")
		return
	}
	respondJSON(w, http.StatusOK, summary)
}

func tickerParam(r *http.Request) string {
	ticker := strings.ToUpper(strings.TrimSpace(r.URL.Query().Get("ticker")))
	if ticker == "" {
		return defaultTicker
	}
	return ticker
}

func intParam(r *http.Request, name string, fallback int) (int, error) {
	raw := r.URL.Query().Get(name)
	if raw == "" {
		return fallback, nil
	}
	value, err := strconv.Atoi(raw)
	if err != nil {
		return 0, errors.New("invalid " + name + " parameter")
	}
	return value, nil
}

func respondJSON(w http.ResponseWriter, status int, payload interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(payload); err != nil {
		log.Errorf("encode response: %v", err)
	}
}

func respondError(w http.ResponseWriter, status int, message string) {
	respondJSON(w, status, map[string]string{"error": message})
}
