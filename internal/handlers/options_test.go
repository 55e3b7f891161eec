package handlers

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/gorilla/mux"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/jwaldner/remora/internal/analysis"
	"github.com/jwaldner/remora/internal/config"
	"github.com/jwaldner/remora/internal/models"
	"github.com/jwaldner/remora/internal/providers"
	"github.com/jwaldner/remora/internal/symbols"
)

type stubProvider struct {
	price    float64
	priceErr error
	rows     []models.OptionRow
	chainErr error
}

func (s *stubProvider) Name() string { return "yfinance" }

func (s *stubProvider) StockPrice(ctx context.Context, symbol string) (float64, error) {
	return s.price, s.priceErr
}

func (s *stubProvider) OptionsChain(ctx context.Context, symbol string) ([]models.OptionRow, error) {
	return s.rows, s.chainErr
}

func testConfig() *config.Config {
	return &config.Config{
		Port: "8000",
		Filtering: config.FilteringConfig{
			MinVolumeOiRatio: 1.0,
			MinVolume:        50,
			MinOpenInterest:  10,
			MaxDTE:           45,
			MinDTE:           1,
			MinPremiumSpent:  1000.0,
			MaxResults:       100,
		},
		Position: config.PositionConfig{MinOpenInterest: 100, MinPremium: 10000.0},
		Expert: config.ExpertConfig{
			ATMThreshold:      0.05,
			DeepOTMThreshold:  0.15,
			HighUnusualRatio:  5.0,
			ExtremeUnusualRat: 8.0,
		},
		Features:    config.FeaturesConfig{FallbackToYfinanc: true, FallbackTimeout: 30},
		CORSOrigins: []string{"http://localhost:3000"},
	}
}

func testRouter(p providers.MarketProvider) http.Handler {
	cfg := testConfig()
	hybrid := providers.NewHybrid(nil, p, func() bool { return false }, false, true)
	engine := analysis.New(cfg.Filtering, cfg.Position, cfg.Expert)
	h := NewOptionsHandler(hybrid, engine, symbols.NewService(), nil, cfg)

	r := mux.NewRouter()
	r.HandleFunc("/", h.RootHandler).Methods("GET")
	r.HandleFunc("/api/analyze/{ticker}", h.AnalyzeHandler).Methods("GET")
	r.HandleFunc("/api/ibkr/status", h.IBKRStatusHandler).Methods("GET")
	r.HandleFunc("/api/ibkr/connect", h.IBKRConnectHandler).Methods("POST")
	r.HandleFunc("/api/ibkr/disconnect", h.IBKRDisconnectHandler).Methods("POST")
	r.HandleFunc("/api/ibkr/test/{ticker}", h.IBKRTestHandler).Methods("GET")
	return CORS(cfg.CORSOrigins)(r)
}

func liveRows() []models.OptionRow {
	return []models.OptionRow{
		{
			ContractSymbol: "AAPL260918C00105000", Strike: 105, Type: "call",
			ExpirationDate: "2026-09-18", LastPrice: 2.0, Volume: 500, OpenInterest: 100,
			DTE: 14, DataSource: "yfinance", HasMarketData: true,
		},
		{
			ContractSymbol: "AAPL260918P00095000", Strike: 95, Type: "put",
			ExpirationDate: "2026-09-18", LastPrice: 1.5, Volume: 100, OpenInterest: 100,
			DTE: 14, DataSource: "yfinance", HasMarketData: true,
		},
	}
}

func doRequest(t *testing.T, r http.Handler, method, target string) *httptest.ResponseRecorder {
	t.Helper()
	req := httptest.NewRequest(method, target, nil)
	rec := httptest.NewRecorder()
	r.ServeHTTP(rec, req)
	return rec
}

func TestAnalyzeReturnsFullPayload(t *testing.T) {
	r := testRouter(&stubProvider{price: 100.0, rows: liveRows()})

	rec := doRequest(t, r, "GET", "/api/analyze/aapl?mode=live")
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, "application/json", rec.Header().Get("Content-Type"))

	var resp models.UOAResponse
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &resp))

	assert.Equal(t, "AAPL", resp.Ticker)
	assert.Equal(t, "live", resp.Mode)
	assert.Equal(t, 100.0, resp.UnderlyingPrice)
	assert.Equal(t, 2, resp.TotalContracts)
	require.NotEmpty(t, resp.UnusualContracts)

	// Highest volume/OI ratio first.
	top := resp.UnusualContracts[0]
	assert.Equal(t, "AAPL260918C00105000", top.ContractSymbol)
	assert.Equal(t, 5.0, top.VolumeToOiRatio)
	assert.Equal(t, 100000.0, top.PremiumSpent)

	assert.Equal(t, "BULLISH", resp.MarketSentiment.NetSentiment)
	assert.Equal(t, int64(500), resp.MarketSentiment.TotalCallVolume)
	assert.NotEmpty(t, resp.TopSignals)

	require.NotNil(t, resp.DataQuality)
	assert.Equal(t, "yfinance", resp.DataQuality.SourceUsed)
	assert.Equal(t, []string{"yfinance"}, resp.DataQuality.SourcesAttempted)
	assert.False(t, resp.DataQuality.FallbackUsed)
}

func TestAnalyzeEmptyChainStillSucceeds(t *testing.T) {
	r := testRouter(&stubProvider{price: 100.0})

	rec := doRequest(t, r, "GET", "/api/analyze/AAPL?mode=live")
	require.Equal(t, http.StatusOK, rec.Code)

	var resp models.UOAResponse
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &resp))

	assert.Equal(t, 0, resp.TotalContracts)
	assert.Empty(t, resp.UnusualContracts)
	assert.Equal(t, "NEUTRAL", resp.MarketSentiment.NetSentiment)
	assert.Equal(t, []string{"No unusual options activity detected"}, resp.TopSignals)
}

func TestAnalyzeUnknownTickerSuggestsAlternatives(t *testing.T) {
	r := testRouter(&stubProvider{priceErr: providers.ErrNoPriceData})

	rec := doRequest(t, r, "GET", "/api/analyze/ZZZZ")
	require.Equal(t, http.StatusNotFound, rec.Code)

	var resp models.ErrorResponse
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &resp))
	assert.Equal(t, "ZZZZ", resp.Ticker)
	assert.Contains(t, resp.Detail, "Could not fetch stock data for ticker 'ZZZZ'")
	assert.Contains(t, resp.Detail, "AAPL, MSFT, TSLA, AMZN, NVDA")
}

func TestAnalyzeNoOptionsData(t *testing.T) {
	r := testRouter(&stubProvider{price: 100.0, chainErr: providers.ErrNoOptionsData})

	rec := doRequest(t, r, "GET", "/api/analyze/AAPL")
	require.Equal(t, http.StatusNotFound, rec.Code)

	var resp models.ErrorResponse
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &resp))
	assert.Contains(t, resp.Detail, "No options data available for ticker 'AAPL'")
}

func TestAnalyzeInvalidMode(t *testing.T) {
	r := testRouter(&stubProvider{price: 100.0, rows: liveRows()})

	rec := doRequest(t, r, "GET", "/api/analyze/AAPL?mode=turbo")
	assert.Equal(t, http.StatusBadRequest, rec.Code)
}

func TestAnalyzeInvalidTicker(t *testing.T) {
	r := testRouter(&stubProvider{price: 100.0, rows: liveRows()})

	rec := doRequest(t, r, "GET", "/api/analyze/TOOLONGTICKER")
	assert.Equal(t, http.StatusBadRequest, rec.Code)
}

func TestRootDescribesAPI(t *testing.T) {
	r := testRouter(&stubProvider{})

	rec := doRequest(t, r, "GET", "/")
	require.Equal(t, http.StatusOK, rec.Code)

	var body map[string]interface{}
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &body))
	assert.Equal(t, "Unusual Options Activity API", body["message"])
}

func TestCORSHeaders(t *testing.T) {
	r := testRouter(&stubProvider{})

	req := httptest.NewRequest("GET", "/", nil)
	req.Header.Set("Origin", "http://localhost:3000")
	rec := httptest.NewRecorder()
	r.ServeHTTP(rec, req)
	assert.Equal(t, "http://localhost:3000", rec.Header().Get("Access-Control-Allow-Origin"))

	req = httptest.NewRequest("GET", "/", nil)
	req.Header.Set("Origin", "http://evil.example")
	rec = httptest.NewRecorder()
	r.ServeHTTP(rec, req)
	assert.Empty(t, rec.Header().Get("Access-Control-Allow-Origin"))
}

func TestCORSPreflight(t *testing.T) {
	r := testRouter(&stubProvider{})

	req := httptest.NewRequest("OPTIONS", "/api/analyze/AAPL", nil)
	req.Header.Set("Origin", "http://localhost:3000")
	rec := httptest.NewRecorder()
	r.ServeHTTP(rec, req)
	assert.Equal(t, http.StatusNoContent, rec.Code)
}

func TestIBKRStatusDisabled(t *testing.T) {
	r := testRouter(&stubProvider{})

	rec := doRequest(t, r, "GET", "/api/ibkr/status")
	require.Equal(t, http.StatusOK, rec.Code)

	var status models.ConnectionStatus
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &status))
	assert.False(t, status.Connected)
	assert.Equal(t, "IBKR support disabled", status.ErrorMessage)
}

func TestIBKRConnectDisabled(t *testing.T) {
	r := testRouter(&stubProvider{})

	rec := doRequest(t, r, "POST", "/api/ibkr/connect")
	assert.Equal(t, http.StatusConflict, rec.Code)
}

func TestIBKRDisconnectDisabled(t *testing.T) {
	r := testRouter(&stubProvider{})

	rec := doRequest(t, r, "POST", "/api/ibkr/disconnect")
	assert.Equal(t, http.StatusConflict, rec.Code)
}

func TestIBKRTestDisabled(t *testing.T) {
	r := testRouter(&stubProvider{})

	rec := doRequest(t, r, "GET", "/api/ibkr/test/AAPL")
	assert.Equal(t, http.StatusConflict, rec.Code)
}
