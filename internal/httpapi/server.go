package httpapi

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"strconv"
	"strings"
	"time"

	"backlab/internal/backtest"
	"backlab/internal/domain"
	"backlab/internal/marketdata"
	"backlab/internal/store"
	"backlab/internal/strategy"
	"backlab/internal/util"
)

// Version is the API version reported by the health and info endpoints.
const Version = "1.0.0"

// defaultStrategyPageSize is the strategy list page size when no limit query
// parameter is given.
const defaultStrategyPageSize = 10

// DataService is the market data surface the API needs. Implemented by
// *marketdata.Service.
type DataService interface {
	GetBars(ctx context.Context, asset domain.AssetClass, symbol, timeframe string, start, end time.Time) ([]domain.Bar, error)
	Refresh(ctx context.Context, asset domain.AssetClass, symbol, timeframe string, start, end time.Time) (int, error)
	AvailableSymbols(ctx context.Context, timeframe string) (map[domain.AssetClass][]string, error)
	Stats() (marketdata.CacheStats, error)
	ClearCache() error
}

// Compile-time interface check.
var _ DataService = (*marketdata.Service)(nil)

// Server serves the backlab REST API.
type Server struct {
	strategies store.StrategyStore
	data       DataService
	engine     *backtest.Engine
	log        *slog.Logger
}

// NewServer creates a Server over the given stores and engine.
func NewServer(strategies store.StrategyStore, data DataService, engine *backtest.Engine, log *slog.Logger) *Server {
	if log == nil {
		log = slog.Default()
	}
	return &Server{
		strategies: strategies,
		data:       data,
		engine:     engine,
		log:        log.With("component", "httpapi"),
	}
}

// RegisterRoutes registers all API routes on the given mux.
func (s *Server) RegisterRoutes(mux *http.ServeMux) {
	mux.HandleFunc("GET /", s.handleInfo)
	mux.HandleFunc("GET /health", s.handleHealth)

	mux.HandleFunc("POST /api/v1/backtest/run", s.handleRunBacktest)

	mux.HandleFunc("GET /api/v1/strategies", s.handleListStrategies)
	mux.HandleFunc("POST /api/v1/strategies", s.handleCreateStrategy)
	mux.HandleFunc("GET /api/v1/strategies/{id}", s.handleGetStrategy)
	mux.HandleFunc("PUT /api/v1/strategies/{id}", s.handleUpdateStrategy)
	mux.HandleFunc("DELETE /api/v1/strategies/{id}", s.handleDeleteStrategy)
	mux.HandleFunc("GET /api/v1/strategies/templates/list", s.handleTemplates)

	mux.HandleFunc("POST /api/v1/data/fetch", s.handleFetchData)
	mux.HandleFunc("GET /api/v1/data/available-assets", s.handleAvailableAssets)
	mux.HandleFunc("GET /api/v1/data/cache/stats", s.handleCacheStats)
	mux.HandleFunc("POST /api/v1/data/cache/clear", s.handleCacheClear)
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

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(v); err != nil {
		slog.Error("encoding JSON response", "error", err)
	}
}

func writeError(w http.ResponseWriter, status int, msg string) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	json.NewEncoder(w).Encode(map[string]string{"error": msg})
}

// ---------------------------------------------------------------------------
// Service endpoints
// ---------------------------------------------------------------------------

func (s *Server) handleInfo(w http.ResponseWriter, r *http.Request) {
	if r.URL.Path != "/" {
		writeError(w, http.StatusNotFound, "not found")
		return
	}
	writeJSON(w, http.StatusOK, InfoResponse{
		Service: "backlab",
		Version: Version,
		Docs:    "/api/v1",
	})
}

func (s *Server) handleHealth(w http.ResponseWriter, _ *http.Request) {
	writeJSON(w, http.StatusOK, HealthResponse{Status: "ok", Version: Version})
}

// ---------------------------------------------------------------------------
// Backtest
// ---------------------------------------------------------------------------

func (s *Server) handleRunBacktest(w http.ResponseWriter, r *http.Request) {
	var req BacktestRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, fmt.Sprintf("invalid request body: %v", err))
		return
	}
	if req.Symbol == "" {
		writeError(w, http.StatusBadRequest, "symbol is required")
		return
	}
	asset := req.AssetClass
	if asset == "" {
		asset = domain.AssetStock
	}
	timeframe := req.Timeframe
	if timeframe == "" {
		timeframe = "1d"
	}

	start, end, err := parseDateRange(req.StartDate, req.EndDate)
	if err != nil {
		writeError(w, http.StatusBadRequest, err.Error())
		return
	}

	def, status, err := s.resolveDefinition(r.Context(), &req)
	if err != nil {
		writeError(w, status, err.Error())
		return
	}

	bars, err := s.data.GetBars(r.Context(), asset, req.Symbol, timeframe, start, end)
	if err != nil {
		s.log.Error("loading bars", "symbol", req.Symbol, "err", err)
		writeError(w, http.StatusBadGateway, "loading market data failed")
		return
	}
	if len(bars) == 0 {
		writeError(w, http.StatusNotFound, fmt.Sprintf("no data for %s between %s and %s", req.Symbol, req.StartDate, req.EndDate))
		return
	}

	result, err := s.engine.Run(backtest.RunParams{
		Symbol:         req.Symbol,
		AssetClass:     asset,
		Timeframe:      timeframe,
		Bars:           bars,
		Definition:     *def,
		InitialCapital: req.InitialCapital,
		CommissionRate: req.Commission,
		PeriodsPerYear: util.PeriodsPerYear(asset, timeframe),
	})
	if err != nil {
		var invalid *strategy.InvalidStrategyError
		var insufficient *backtest.InsufficientDataError
		switch {
		case errors.As(err, &invalid):
			writeError(w, http.StatusBadRequest, invalid.Error())
		case errors.As(err, &insufficient):
			writeError(w, http.StatusUnprocessableEntity, insufficient.Error())
		default:
			s.log.Error("backtest failed", "symbol", req.Symbol, "err", err)
			writeError(w, http.StatusInternalServerError, "backtest failed")
		}
		return
	}

	writeJSON(w, http.StatusOK, result)
}

// resolveDefinition returns the strategy definition to run: the inline one,
// or the stored one when strategy_id is given.
func (s *Server) resolveDefinition(ctx context.Context, req *BacktestRequest) (*domain.StrategyDefinition, int, error) {
	switch {
	case req.StrategyID != "" && req.StrategyDefinition != nil:
		return nil, http.StatusBadRequest, errors.New("provide strategy_id or strategy_definition, not both")
	case req.StrategyID != "":
		saved, err := s.strategies.GetStrategy(ctx, req.StrategyID)
		if errors.Is(err, store.ErrNotFound) {
			return nil, http.StatusNotFound, fmt.Errorf("strategy %s not found", req.StrategyID)
		}
		if err != nil {
			return nil, http.StatusInternalServerError, errors.New("loading strategy failed")
		}
		return &saved.Definition, 0, nil
	case req.StrategyDefinition != nil:
		return req.StrategyDefinition, 0, nil
	default:
		return nil, http.StatusBadRequest, errors.New("strategy_id or strategy_definition is required")
	}
}

func parseDateRange(startStr, endStr string) (start, end time.Time, err error) {
	if startStr == "" || endStr == "" {
		return start, end, errors.New("start_date and end_date are required")
	}
	start, err = time.Parse("2006-01-02", startStr)
	if err != nil {
		return start, end, fmt.Errorf("invalid start_date %q", startStr)
	}
	end, err = time.Parse("2006-01-02", endStr)
	if err != nil {
		return start, end, fmt.Errorf("invalid end_date %q", endStr)
	}
	if end.Before(start) {
		return start, end, errors.New("end_date is before start_date")
	}
	// Make the range inclusive of the whole end day.
	end = end.Add(24*time.Hour - time.Nanosecond)
	return start, end, nil
}

// ---------------------------------------------------------------------------
// Strategies
// ---------------------------------------------------------------------------

func (s *Server) handleListStrategies(w http.ResponseWriter, r *http.Request) {
	limit, err := queryInt(r, "limit", defaultStrategyPageSize)
	if err != nil {
		writeError(w, http.StatusBadRequest, err.Error())
		return
	}
	offset, err := queryInt(r, "offset", 0)
	if err != nil {
		writeError(w, http.StatusBadRequest, err.Error())
		return
	}

	list, err := s.strategies.ListStrategies(r.Context())
	if err != nil {
		s.log.Error("listing strategies", "err", err)
		writeError(w, http.StatusInternalServerError, "listing strategies failed")
		return
	}
	if search := r.URL.Query().Get("search"); search != "" {
		list = searchStrategies(list, search)
	}
	total := len(list)

	list = pageStrategies(list, offset, limit)
	if list == nil {
		list = []domain.Strategy{}
	}
	writeJSON(w, http.StatusOK, StrategiesResponse{Strategies: list, Total: total})
}

// searchStrategies keeps strategies whose name or description contains the
// term, case-insensitive.
func searchStrategies(list []domain.Strategy, term string) []domain.Strategy {
	term = strings.ToLower(term)
	var out []domain.Strategy
	for _, st := range list {
		if strings.Contains(strings.ToLower(st.Name), term) ||
			strings.Contains(strings.ToLower(st.Description), term) {
			out = append(out, st)
		}
	}
	return out
}

func pageStrategies(list []domain.Strategy, offset, limit int) []domain.Strategy {
	if offset >= len(list) {
		return nil
	}
	list = list[offset:]
	if limit < len(list) {
		list = list[:limit]
	}
	return list
}

// queryInt parses a non-negative integer query parameter, falling back to def
// when the parameter is absent.
func queryInt(r *http.Request, name string, def int) (int, error) {
	raw := r.URL.Query().Get(name)
	if raw == "" {
		return def, nil
	}
	v, err := strconv.Atoi(raw)
	if err != nil || v < 0 {
		return 0, fmt.Errorf("invalid %s %q", name, raw)
	}
	return v, nil
}

func (s *Server) handleCreateStrategy(w http.ResponseWriter, r *http.Request) {
	var req StrategyRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, fmt.Sprintf("invalid request body: %v", err))
		return
	}
	if req.Name != "" && req.Definition.Name == "" {
		req.Definition.Name = req.Name
	}
	if err := strategy.Validate(req.Definition); err != nil {
		writeError(w, http.StatusBadRequest, err.Error())
		return
	}

	st := &domain.Strategy{
		Name:        req.Name,
		Description: req.Description,
		Definition:  req.Definition,
		IsPublic:    req.IsPublic,
		Author:      req.Author,
	}
	if st.Name == "" {
		st.Name = req.Definition.Name
	}
	if err := s.strategies.CreateStrategy(r.Context(), st); err != nil {
		s.log.Error("creating strategy", "err", err)
		writeError(w, http.StatusInternalServerError, "creating strategy failed")
		return
	}
	writeJSON(w, http.StatusCreated, st)
}

func (s *Server) handleGetStrategy(w http.ResponseWriter, r *http.Request) {
	st, err := s.strategies.GetStrategy(r.Context(), r.PathValue("id"))
	if errors.Is(err, store.ErrNotFound) {
		writeError(w, http.StatusNotFound, "strategy not found")
		return
	}
	if err != nil {
		s.log.Error("getting strategy", "err", err)
		writeError(w, http.StatusInternalServerError, "getting strategy failed")
		return
	}
	writeJSON(w, http.StatusOK, st)
}

func (s *Server) handleUpdateStrategy(w http.ResponseWriter, r *http.Request) {
	var req StrategyRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, fmt.Sprintf("invalid request body: %v", err))
		return
	}
	if req.Name != "" && req.Definition.Name == "" {
		req.Definition.Name = req.Name
	}
	if err := strategy.Validate(req.Definition); err != nil {
		writeError(w, http.StatusBadRequest, err.Error())
		return
	}

	id := r.PathValue("id")
	existing, err := s.strategies.GetStrategy(r.Context(), id)
	if errors.Is(err, store.ErrNotFound) {
		writeError(w, http.StatusNotFound, "strategy not found")
		return
	}
	if err != nil {
		s.log.Error("getting strategy", "err", err)
		writeError(w, http.StatusInternalServerError, "updating strategy failed")
		return
	}

	existing.Name = req.Name
	existing.Description = req.Description
	existing.Definition = req.Definition
	existing.IsPublic = req.IsPublic
	existing.Author = req.Author
	if existing.Name == "" {
		existing.Name = req.Definition.Name
	}
	if err := s.strategies.UpdateStrategy(r.Context(), existing); err != nil {
		s.log.Error("updating strategy", "err", err)
		writeError(w, http.StatusInternalServerError, "updating strategy failed")
		return
	}
	writeJSON(w, http.StatusOK, existing)
}

func (s *Server) handleDeleteStrategy(w http.ResponseWriter, r *http.Request) {
	err := s.strategies.DeleteStrategy(r.Context(), r.PathValue("id"))
	if errors.Is(err, store.ErrNotFound) {
		writeError(w, http.StatusNotFound, "strategy not found")
		return
	}
	if err != nil {
		s.log.Error("deleting strategy", "err", err)
		writeError(w, http.StatusInternalServerError, "deleting strategy failed")
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

func (s *Server) handleTemplates(w http.ResponseWriter, _ *http.Request) {
	writeJSON(w, http.StatusOK, TemplatesResponse{Templates: strategy.Templates()})
}

// ---------------------------------------------------------------------------
// Market data
// ---------------------------------------------------------------------------

func (s *Server) handleFetchData(w http.ResponseWriter, r *http.Request) {
	var req FetchDataRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, fmt.Sprintf("invalid request body: %v", err))
		return
	}
	if req.Symbol == "" {
		writeError(w, http.StatusBadRequest, "symbol is required")
		return
	}
	asset := req.AssetClass
	if asset == "" {
		asset = domain.AssetStock
	}
	timeframe := req.Timeframe
	if timeframe == "" {
		timeframe = "1d"
	}
	start, end, err := parseDateRange(req.StartDate, req.EndDate)
	if err != nil {
		writeError(w, http.StatusBadRequest, err.Error())
		return
	}

	n, err := s.data.Refresh(r.Context(), asset, req.Symbol, timeframe, start, end)
	if err != nil {
		s.log.Error("fetching data", "symbol", req.Symbol, "err", err)
		writeError(w, http.StatusBadGateway, fmt.Sprintf("fetching data for %s failed", req.Symbol))
		return
	}
	writeJSON(w, http.StatusOK, FetchDataResponse{Symbol: req.Symbol, Bars: n})
}

func (s *Server) handleAvailableAssets(w http.ResponseWriter, r *http.Request) {
	timeframe := r.URL.Query().Get("timeframe")
	if timeframe == "" {
		timeframe = "1d"
	}
	assets, err := s.data.AvailableSymbols(r.Context(), timeframe)
	if err != nil {
		s.log.Error("listing available assets", "err", err)
		writeError(w, http.StatusInternalServerError, "listing available assets failed")
		return
	}
	writeJSON(w, http.StatusOK, AvailableAssetsResponse{Assets: assets})
}

func (s *Server) handleCacheStats(w http.ResponseWriter, _ *http.Request) {
	stats, err := s.data.Stats()
	if err != nil {
		s.log.Error("reading cache stats", "err", err)
		writeError(w, http.StatusInternalServerError, "reading cache stats failed")
		return
	}
	writeJSON(w, http.StatusOK, stats)
}

func (s *Server) handleCacheClear(w http.ResponseWriter, _ *http.Request) {
	if err := s.data.ClearCache(); err != nil {
		s.log.Error("clearing cache", "err", err)
		writeError(w, http.StatusInternalServerError, "clearing cache failed")
		return
	}
	writeJSON(w, http.StatusOK, map[string]string{"status": "cleared"})
}
