package yahoo

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"time"

	"github.com/rs/zerolog/log"
	"golang.org/x/time/rate"

	"github.com/jwaldner/remora/internal/models"
	"github.com/jwaldner/remora/internal/providers"
	"github.com/jwaldner/remora/internal/utils"
)

const (
	defaultBaseURL = "https://query2.finance.yahoo.com"
	defaultTimeout = 30 * time.Second

	// The public endpoints throttle aggressively; stay well under.
	requestsPerSecond = 2
	requestBurst      = 4
)

// Provider fetches published options chains from the public Yahoo Finance
// endpoints. No subscription step: data returns synchronously per request.
type Provider struct {
	baseURL    string
	httpClient *http.Client
	limiter    *rate.Limiter

	maxExpirations int
	minDTE, maxDTE int
}

// New creates a public-provider chain fetcher bounded to maxExpirations
// expirations inside the [minDTE, maxDTE] window.
func New(maxExpirations, minDTE, maxDTE int) *Provider {
	return &Provider{
		baseURL:        defaultBaseURL,
		httpClient:     &http.Client{Timeout: defaultTimeout},
		limiter:        rate.NewLimiter(requestsPerSecond, requestBurst),
		maxExpirations: maxExpirations,
		minDTE:         minDTE,
		maxDTE:         maxDTE,
	}
}

func (p *Provider) Name() string { return "yfinance" }

func (p *Provider) makeRequest(ctx context.Context, endpoint string) ([]byte, error) {
	if err := p.limiter.Wait(ctx); err != nil {
		return nil, err
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, p.baseURL+endpoint, nil)
	if err != nil {
		return nil, fmt.Errorf("creating request: %w", err)
	}
	req.Header.Set("User-Agent", "Mozilla/5.0 (compatible; remora/1.0)")

	resp, err := p.httpClient.Do(req)
	if err != nil {
		return nil, fmt.Errorf("network request: %w", err)
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, fmt.Errorf("reading response: %w", err)
	}

	if resp.StatusCode == http.StatusTooManyRequests {
		return nil, fmt.Errorf("rate limited by API")
	}
	if resp.StatusCode != http.StatusOK {
		return nil, fmt.Errorf("API error: %d - %s", resp.StatusCode, string(body))
	}
	return body, nil
}

// Chart response, trimmed to the fields the price lookup needs.
type chartResponse struct {
	Chart struct {
		Result []struct {
			Meta struct {
				RegularMarketPrice float64 `json:"regularMarketPrice"`
			} `json:"meta"`
			Indicators struct {
				Quote []struct {
					Close []*float64 `json:"close"`
				} `json:"quote"`
			} `json:"indicators"`
		} `json:"result"`
		Error *apiError `json:"error"`
	} `json:"chart"`
}

type optionsResponse struct {
	OptionChain struct {
		Result []struct {
			UnderlyingSymbol string  `json:"underlyingSymbol"`
			ExpirationDates  []int64 `json:"expirationDates"`
			Quote            struct {
				RegularMarketPrice float64 `json:"regularMarketPrice"`
			} `json:"quote"`
			Options []struct {
				ExpirationDate int64            `json:"expirationDate"`
				Calls          []yahooContract  `json:"calls"`
				Puts           []yahooContract  `json:"puts"`
			} `json:"options"`
		} `json:"result"`
		Error *apiError `json:"error"`
	} `json:"optionChain"`
}

type yahooContract struct {
	ContractSymbol string   `json:"contractSymbol"`
	Strike         float64  `json:"strike"`
	LastPrice      float64  `json:"lastPrice"`
	Volume         *int64   `json:"volume"`
	OpenInterest   *int64   `json:"openInterest"`
	Expiration     int64    `json:"expiration"`
	ImpliedVol     *float64 `json:"impliedVolatility"`
}

type apiError struct {
	Code        string `json:"code"`
	Description string `json:"description"`
}

// StockPrice fetches the last daily close over the trailing five days.
func (p *Provider) StockPrice(ctx context.Context, symbol string) (float64, error) {
	body, err := p.makeRequest(ctx, fmt.Sprintf("/v8/finance/chart/%s?range=5d&interval=1d", symbol))
	if err != nil {
		return 0, fmt.Errorf("%w: %s", providers.ErrNoPriceData, err)
	}

	var resp chartResponse
	if err := json.Unmarshal(body, &resp); err != nil {
		return 0, fmt.Errorf("parsing chart response: %w", err)
	}
	if resp.Chart.Error != nil || len(resp.Chart.Result) == 0 {
		return 0, fmt.Errorf("%w for %s", providers.ErrNoPriceData, symbol)
	}

	result := resp.Chart.Result[0]
	if result.Meta.RegularMarketPrice > 0 {
		return result.Meta.RegularMarketPrice, nil
	}

	// Walk closes backwards for the most recent non-null one.
	for _, quote := range result.Indicators.Quote {
		for i := len(quote.Close) - 1; i >= 0; i-- {
			if quote.Close[i] != nil && *quote.Close[i] > 0 {
				return *quote.Close[i], nil
			}
		}
	}
	return 0, fmt.Errorf("%w for %s", providers.ErrNoPriceData, symbol)
}

// OptionsChain fetches the full published chain for the nearest
// expirations inside the DTE window.
func (p *Provider) OptionsChain(ctx context.Context, symbol string) ([]models.OptionRow, error) {
	body, err := p.makeRequest(ctx, "/v7/finance/options/"+symbol)
	if err != nil {
		return nil, fmt.Errorf("%w: %s", providers.ErrNoOptionsData, err)
	}

	var resp optionsResponse
	if err := json.Unmarshal(body, &resp); err != nil {
		return nil, fmt.Errorf("parsing options response: %w", err)
	}
	if resp.OptionChain.Error != nil || len(resp.OptionChain.Result) == 0 {
		return nil, fmt.Errorf("%w for %s", providers.ErrNoOptionsData, symbol)
	}

	result := resp.OptionChain.Result[0]
	if len(result.ExpirationDates) == 0 {
		return nil, fmt.Errorf("%w for %s", providers.ErrNoOptionsData, symbol)
	}

	expirations := p.filterExpirations(result.ExpirationDates)
	log.Info().Str("symbol", symbol).Int("expirations", len(expirations)).
		Msg("📅 fetching published chains")

	var rows []models.OptionRow
	for _, exp := range expirations {
		chainRows, err := p.fetchExpiration(ctx, symbol, exp)
		if err != nil {
			// One bad expiration never aborts the run; the rest of the
			// chain is still usable.
			log.Warn().Err(err).Str("symbol", symbol).Int64("expiration", exp).
				Msg("skipping expiration")
			continue
		}
		rows = append(rows, chainRows...)
	}
	return rows, nil
}

func (p *Provider) filterExpirations(all []int64) []int64 {
	filtered := make([]int64, 0, p.maxExpirations)
	for _, exp := range all {
		dte := utils.CalculateDTE(time.Unix(exp, 0).UTC().Format("2006-01-02"))
		if dte < p.minDTE || dte > p.maxDTE {
			continue
		}
		filtered = append(filtered, exp)
		if len(filtered) == p.maxExpirations {
			break
		}
	}
	return filtered
}

func (p *Provider) fetchExpiration(ctx context.Context, symbol string, expiration int64) ([]models.OptionRow, error) {
	body, err := p.makeRequest(ctx, fmt.Sprintf("/v7/finance/options/%s?date=%d", symbol, expiration))
	if err != nil {
		return nil, err
	}

	var resp optionsResponse
	if err := json.Unmarshal(body, &resp); err != nil {
		return nil, fmt.Errorf("parsing options response: %w", err)
	}
	if len(resp.OptionChain.Result) == 0 || len(resp.OptionChain.Result[0].Options) == 0 {
		return nil, nil
	}

	chain := resp.OptionChain.Result[0].Options[0]
	isoExp := time.Unix(chain.ExpirationDate, 0).UTC().Format("2006-01-02")
	dte := utils.CalculateDTE(isoExp)

	rows := make([]models.OptionRow, 0, len(chain.Calls)+len(chain.Puts))
	for _, c := range chain.Calls {
		rows = append(rows, toRow(c, "call", isoExp, dte))
	}
	for _, c := range chain.Puts {
		rows = append(rows, toRow(c, "put", isoExp, dte))
	}
	return rows, nil
}

func toRow(c yahooContract, optType, isoExp string, dte int) models.OptionRow {
	row := models.OptionRow{
		ContractSymbol: c.ContractSymbol,
		Strike:         c.Strike,
		Type:           optType,
		ExpirationDate: isoExp,
		LastPrice:      c.LastPrice,
		DTE:            dte,
		DataSource:     "yfinance",
		HasMarketData:  c.Volume != nil && c.OpenInterest != nil && c.LastPrice > 0,
	}
	if c.Volume != nil {
		row.Volume = *c.Volume
	}
	if c.OpenInterest != nil {
		row.OpenInterest = *c.OpenInterest
	}
	return row
}
