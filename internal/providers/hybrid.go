package providers

import (
	"context"
	"fmt"
	"time"

	"github.com/rs/zerolog/log"
	"github.com/sony/gobreaker"

	"github.com/jwaldner/remora/internal/metrics"
	"github.com/jwaldner/remora/internal/models"
)

// FetchResult is one source's complete answer for a ticker, with
// provenance describing how it was obtained.
type FetchResult struct {
	UnderlyingPrice float64
	Rows            []models.OptionRow
	Quality         models.DataQuality
}

// ConnectedFunc reports whether the primary source's transport is usable
// without actually issuing a request.
type ConnectedFunc func() bool

// Hybrid selects the data source per request: the broker variant when it
// is enabled and connected, the public provider otherwise or as fallback.
// Which sources were attempted and why they failed is always recorded,
// never silently dropped.
type Hybrid struct {
	primary   MarketProvider // nil when the broker path is disabled
	fallback  MarketProvider
	connected ConnectedFunc

	usePrimary      bool
	fallbackEnabled bool

	breaker *gobreaker.CircuitBreaker
}

// NewHybrid builds the selector. primary may be nil, in which case every
// request goes straight to fallback.
func NewHybrid(primary, fallback MarketProvider, connected ConnectedFunc, usePrimary, fallbackEnabled bool) *Hybrid {
	settings := gobreaker.Settings{
		Name:     "broker-fetch",
		Interval: 60 * time.Second,
		Timeout:  60 * time.Second,
		ReadyToTrip: func(counts gobreaker.Counts) bool {
			return counts.ConsecutiveFailures >= 3
		},
	}
	return &Hybrid{
		primary:         primary,
		fallback:        fallback,
		connected:       connected,
		usePrimary:      usePrimary,
		fallbackEnabled: fallbackEnabled,
		breaker:         gobreaker.NewCircuitBreaker(settings),
	}
}

// Fetch retrieves price and chain from the selected source. A primary
// failure is folded into provenance and the fallback tried; only when
// every viable source has failed does the last error propagate.
func (h *Hybrid) Fetch(ctx context.Context, symbol string) (*FetchResult, error) {
	quality := models.DataQuality{}

	if h.primary != nil && h.usePrimary && h.connected() {
		quality.SourcesAttempted = append(quality.SourcesAttempted, h.primary.Name())

		result, err := h.fetchVia(ctx, h.primary, symbol, true)
		if err == nil {
			metrics.SourceFetches.WithLabelValues(h.primary.Name(), "ok").Inc()
			result.Quality = quality
			result.Quality.SourceUsed = h.primary.Name()
			return result, nil
		}

		metrics.SourceFetches.WithLabelValues(h.primary.Name(), "error").Inc()
		quality.Errors = append(quality.Errors, fmt.Sprintf("%s: %v", h.primary.Name(), err))
		log.Warn().Err(err).Str("symbol", symbol).Str("source", h.primary.Name()).
			Msg("primary source failed")

		if !h.fallbackEnabled {
			return nil, err
		}
		quality.FallbackUsed = true
	}

	quality.SourcesAttempted = append(quality.SourcesAttempted, h.fallback.Name())
	result, err := h.fetchVia(ctx, h.fallback, symbol, false)
	if err != nil {
		metrics.SourceFetches.WithLabelValues(h.fallback.Name(), "error").Inc()
		quality.Errors = append(quality.Errors, fmt.Sprintf("%s: %v", h.fallback.Name(), err))
		log.Error().Err(err).Str("symbol", symbol).Str("source", h.fallback.Name()).
			Strs("attempted", quality.SourcesAttempted).Msg("all sources exhausted")
		return nil, err
	}

	metrics.SourceFetches.WithLabelValues(h.fallback.Name(), "ok").Inc()
	result.Quality = quality
	result.Quality.SourceUsed = h.fallback.Name()
	return result, nil
}

// fetchVia runs one source end to end. Broker attempts go through the
// circuit breaker so a misbehaving gateway stops being retried per
// request while the public provider keeps serving.
func (h *Hybrid) fetchVia(ctx context.Context, p MarketProvider, symbol string, viaBreaker bool) (*FetchResult, error) {
	run := func() (*FetchResult, error) {
		price, err := p.StockPrice(ctx, symbol)
		if err != nil {
			return nil, err
		}
		rows, err := p.OptionsChain(ctx, symbol)
		if err != nil {
			return nil, err
		}
		return &FetchResult{UnderlyingPrice: price, Rows: rows}, nil
	}

	if !viaBreaker {
		return run()
	}

	out, err := h.breaker.Execute(func() (interface{}, error) { return run() })
	if err != nil {
		return nil, err
	}
	return out.(*FetchResult), nil
}
