package handlers

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"strings"
	"time"

	"github.com/gorilla/mux"
	"github.com/rs/zerolog/log"

	"github.com/jwaldner/remora/internal/analysis"
	"github.com/jwaldner/remora/internal/config"
	"github.com/jwaldner/remora/internal/ibkr"
	"github.com/jwaldner/remora/internal/metrics"
	"github.com/jwaldner/remora/internal/models"
	"github.com/jwaldner/remora/internal/providers"
	"github.com/jwaldner/remora/internal/symbols"
)

// OptionsHandler serves the analysis and broker-diagnostic endpoints.
type OptionsHandler struct {
	hybrid     *providers.Hybrid
	engine     *analysis.Engine
	symbols    *symbols.Service
	ibkrClient *ibkr.Client // nil when the broker path is disabled
	cfg        *config.Config
}

// NewOptionsHandler wires the pipeline behind the HTTP surface.
func NewOptionsHandler(hybrid *providers.Hybrid, engine *analysis.Engine, symbolService *symbols.Service, ibkrClient *ibkr.Client, cfg *config.Config) *OptionsHandler {
	return &OptionsHandler{
		hybrid:     hybrid,
		engine:     engine,
		symbols:    symbolService,
		ibkrClient: ibkrClient,
		cfg:        cfg,
	}
}

// RootHandler describes the API.
func (h *OptionsHandler) RootHandler(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, map[string]interface{}{
		"message": "Unusual Options Activity API",
		"version": "1.0.0",
		"endpoints": map[string]string{
			"analyze": "/api/analyze/{ticker}",
			"status":  "/api/ibkr/status",
			"metrics": "/metrics",
		},
	})
}

// AnalyzeHandler runs one full analysis:
// GET /api/analyze/{ticker}?mode={live|position|auto}
func (h *OptionsHandler) AnalyzeHandler(w http.ResponseWriter, r *http.Request) {
	start := time.Now()

	mode, err := analysis.ParseMode(r.URL.Query().Get("mode"))
	if err != nil {
		writeError(w, http.StatusBadRequest, err.Error(), "")
		return
	}

	ticker, err := h.symbols.Normalize(mux.Vars(r)["ticker"])
	if err != nil {
		writeError(w, http.StatusBadRequest, err.Error(), "")
		return
	}

	log.Info().Str("ticker", ticker).Str("mode", mode.String()).Msg("🔍 starting analysis")

	ctx, cancel := context.WithTimeout(r.Context(),
		time.Duration(h.cfg.Features.FallbackTimeout)*time.Second)
	defer cancel()

	fetched, err := h.hybrid.Fetch(ctx, ticker)
	if err != nil {
		h.writeFetchError(w, ticker, mode, err)
		return
	}

	result := h.engine.Analyze(ticker, mode, fetched.UnderlyingPrice, fetched.Rows)

	metrics.AnalysesTotal.WithLabelValues(result.EffectiveMode.String(), "ok").Inc()
	metrics.AnalysisDuration.Observe(time.Since(start).Seconds())

	log.Info().Str("ticker", ticker).Int("unusual", len(result.UnusualContracts)).
		Str("sentiment", result.Sentiment.NetSentiment).
		Str("source", fetched.Quality.SourceUsed).
		Dur("took", time.Since(start)).Msg("✅ analysis complete")

	writeJSON(w, http.StatusOK, assemble(ticker, fetched, result))
}

// assemble is the single response-shaping point for analysis results.
func assemble(ticker string, fetched *providers.FetchResult, result *analysis.Result) models.UOAResponse {
	quality := fetched.Quality
	return models.UOAResponse{
		Ticker:           ticker,
		AnalysisDate:     time.Now().Format(time.RFC3339),
		Mode:             result.EffectiveMode.String(),
		UnderlyingPrice:  fetched.UnderlyingPrice,
		TotalContracts:   result.TotalContracts,
		UnusualContracts: result.UnusualContracts,
		MarketSentiment:  result.Sentiment,
		TopSignals:       result.TopSignals,
		RiskWarnings:     result.RiskWarnings,
		DataQuality:      &quality,
	}
}

func (h *OptionsHandler) writeFetchError(w http.ResponseWriter, ticker string, mode analysis.Mode, err error) {
	switch {
	case errors.Is(err, providers.ErrNoPriceData):
		metrics.AnalysesTotal.WithLabelValues(mode.String(), "not_found").Inc()
		suggestions := strings.Join(h.symbols.Suggestions(ticker, 5), ", ")
		writeError(w, http.StatusNotFound,
			"Could not fetch stock data for ticker '"+ticker+"'. Try these popular tickers instead: "+suggestions,
			ticker)

	case errors.Is(err, providers.ErrNoOptionsData):
		metrics.AnalysesTotal.WithLabelValues(mode.String(), "not_found").Inc()
		writeError(w, http.StatusNotFound,
			"No options data available for ticker '"+ticker+"'", ticker)

	default:
		metrics.AnalysesTotal.WithLabelValues(mode.String(), "error").Inc()
		log.Error().Err(err).Str("ticker", ticker).Msg("analysis failed")
		writeError(w, http.StatusInternalServerError,
			"Internal server error analyzing ticker '"+ticker+"'", ticker)
	}
}

func writeJSON(w http.ResponseWriter, status int, body interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(body); err != nil {
		log.Error().Err(err).Msg("encoding response")
	}
}

func writeError(w http.ResponseWriter, status int, detail, ticker string) {
	writeJSON(w, status, models.ErrorResponse{Detail: detail, Ticker: ticker})
}
