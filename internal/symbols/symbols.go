package symbols

import (
	"fmt"
	"strings"
)

// Service validates ticker symbols and supplies alternatives for the
// "ticker not found" error bodies.
type Service struct {
	popular []string
}

// NewService returns a service seeded with the high-liquidity names most
// likely to have options data.
func NewService() *Service {
	return &Service{
		popular: []string{"AAPL", "MSFT", "TSLA", "AMZN", "NVDA", "META", "GOOGL"},
	}
}

// Normalize uppercases and validates a ticker symbol.
func (s *Service) Normalize(ticker string) (string, error) {
	t := strings.ToUpper(strings.TrimSpace(ticker))
	if t == "" || len(t) > 10 {
		return "", fmt.Errorf("invalid ticker symbol %q", ticker)
	}
	for _, r := range t {
		if (r < 'A' || r > 'Z') && r != '.' && r != '-' {
			return "", fmt.Errorf("invalid ticker symbol %q", ticker)
		}
	}
	return t, nil
}

// Suggestions returns up to n popular tickers, excluding the one that
// just failed.
func (s *Service) Suggestions(exclude string, n int) []string {
	out := make([]string, 0, n)
	for _, sym := range s.popular {
		if sym == exclude {
			continue
		}
		out = append(out, sym)
		if len(out) == n {
			break
		}
	}
	return out
}
