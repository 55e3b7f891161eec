package providers

import (
	"context"
	"errors"

	"github.com/jwaldner/remora/internal/models"
)

// ErrNoPriceData means the underlying price could not be retrieved.
var ErrNoPriceData = errors.New("no price data available")

// ErrNoOptionsData means the ticker has no retrievable options chain.
var ErrNoOptionsData = errors.New("no options data available")

// MarketProvider is the contract shared by all chain sources: given a
// ticker, return the underlying price and a normalized option-row
// collection covering calls and puts across upcoming expirations.
type MarketProvider interface {
	// Name identifies the provider in logs and provenance ("ibkr", "yfinance").
	Name() string

	// StockPrice fetches the current price for the underlying.
	StockPrice(ctx context.Context, symbol string) (float64, error)

	// OptionsChain fetches the normalized chain for the symbol.
	OptionsChain(ctx context.Context, symbol string) ([]models.OptionRow, error)
}
