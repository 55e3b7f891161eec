package providers

import (
	"context"
	"fmt"

	"github.com/jwaldner/remora/internal/ibkr"
	"github.com/jwaldner/remora/internal/models"
)

// IBKRProvider adapts the broker connection manager to the MarketProvider
// contract. The client's own request/await protocol handles timeouts, so
// the context here only gates entry.
type IBKRProvider struct {
	client *ibkr.Client
}

// NewIBKRProvider wraps an existing (possibly not yet connected) client.
func NewIBKRProvider(client *ibkr.Client) *IBKRProvider {
	return &IBKRProvider{client: client}
}

func (p *IBKRProvider) Name() string { return "ibkr" }

// Client exposes the underlying connection manager for the diagnostic
// endpoints.
func (p *IBKRProvider) Client() *ibkr.Client { return p.client }

// Connected reports whether the gateway handshake is live.
func (p *IBKRProvider) Connected() bool { return p.client.IsConnected() }

func (p *IBKRProvider) StockPrice(ctx context.Context, symbol string) (float64, error) {
	if err := ctx.Err(); err != nil {
		return 0, err
	}
	price, err := p.client.StockPrice(symbol)
	if err != nil {
		return 0, fmt.Errorf("%w: %s", ErrNoPriceData, err)
	}
	return price, nil
}

func (p *IBKRProvider) OptionsChain(ctx context.Context, symbol string) ([]models.OptionRow, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	rows, err := p.client.OptionsChain(symbol)
	if err != nil {
		return nil, err
	}
	if len(rows) == 0 {
		return nil, fmt.Errorf("%w from broker for %s", ErrNoOptionsData, symbol)
	}
	return rows, nil
}
