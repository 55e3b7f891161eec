package ibkr

import (
	"fmt"
	"math"
	"sort"
	"time"

	"github.com/rs/zerolog/log"

	"github.com/jwaldner/remora/internal/models"
	"github.com/jwaldner/remora/internal/utils"
)

const stockPriceTimeout = 10 * time.Second

// RelevantStrikes builds a strike ladder centered on the current price,
// rounded to the interval for that price level. Non-positive strikes are
// excluded.
func RelevantStrikes(price float64, maxStrikes int) []float64 {
	var interval float64
	switch {
	case price < 50:
		interval = 2.5
	case price < 200:
		interval = 5
	default:
		interval = 10
	}

	center := math.Round(price/interval) * interval
	strikes := make([]float64, 0, maxStrikes+1)
	for i := -maxStrikes / 2; i <= maxStrikes/2; i++ {
		strike := center + float64(i)*interval
		if strike > 0 {
			strikes = append(strikes, strike)
		}
	}
	sort.Float64s(strikes)
	return strikes
}

// StockPrice fetches the last trade price for the underlying, falling
// back to the previous close when the market is quiet.
func (c *Client) StockPrice(symbol string) (float64, error) {
	reqID, err := c.requestStock(symbol)
	if err != nil {
		return 0, err
	}
	defer c.CancelRequests([]int{reqID})

	deadline := time.Now().Add(stockPriceTimeout)
	for time.Now().Before(deadline) {
		c.mu.Lock()
		fields := c.ticks[reqID]
		last, hasLast := fields["last"]
		c.mu.Unlock()
		if hasLast && last > 0 {
			return last, nil
		}
		time.Sleep(c.pollInterval)
	}

	c.mu.Lock()
	closePrice, hasClose := c.ticks[reqID]["close"]
	c.mu.Unlock()
	if hasClose && closePrice > 0 {
		return closePrice, nil
	}
	return 0, fmt.Errorf("no price data for %s", symbol)
}

// OptionsChain requests calls and puts across the next weekly expirations
// on a ladder of strikes around the current price and merges whatever tick
// data arrived before the deadline into normalized rows. Partial fills are
// kept; subscriptions are cancelled once consumed.
func (c *Client) OptionsChain(symbol string) ([]models.OptionRow, error) {
	if !c.IsConnected() {
		return nil, fmt.Errorf("not connected to IBKR")
	}

	price, err := c.StockPrice(symbol)
	if err != nil {
		return nil, fmt.Errorf("getting stock price for %s: %w", symbol, err)
	}

	strikes := RelevantStrikes(price, c.cfg.MaxStrikes)
	expirations := utils.NextWeeklyExpirations(c.cfg.MaxExpirations)

	var rows []models.OptionRow
	for _, expiration := range expirations {
		requested, err := c.RequestChain(symbol, expiration, strikes, []string{"C", "P"})
		if err != nil {
			return rows, err
		}

		reqIDs := make([]int, 0, len(requested))
		for id := range requested {
			reqIDs = append(reqIDs, id)
		}
		sort.Ints(reqIDs)

		data := c.AwaitData(reqIDs, c.cfg.AwaitTimeout())
		c.CancelRequests(reqIDs)

		for _, id := range reqIDs {
			req, ok := requested[id]
			if !ok {
				continue
			}
			if row, ok := mergeRow(req, data[id]); ok {
				rows = append(rows, row)
			}
		}
	}

	log.Info().Str("symbol", symbol).Int("rows", len(rows)).
		Int("expirations", len(expirations)).Msg("📊 broker chain assembled")
	return rows, nil
}

// mergeRow combines a contract request with its accumulated ticks. Rows
// that never received any tick are dropped entirely; rows missing any of
// volume, open interest or last price are kept but flagged so cleaning
// can discard them.
func mergeRow(req ContractRequest, fields Fields) (models.OptionRow, bool) {
	if len(fields) == 0 {
		return models.OptionRow{}, false
	}

	optType := "put"
	if req.Right == "C" {
		optType = "call"
	}

	last, hasLast := fields["last"]
	volume, hasVolume := fields["volume"]
	oi, hasOI := fields["open_interest"]

	isoExp := utils.BrokerDateToISO(req.Expiration)
	row := models.OptionRow{
		ContractSymbol: occSymbol(req.Symbol, req.Expiration, req.Right, req.Strike),
		Strike:         req.Strike,
		Type:           optType,
		ExpirationDate: isoExp,
		LastPrice:      last,
		Volume:         int64(volume),
		OpenInterest:   int64(oi),
		DTE:            utils.CalculateDTE(isoExp),
		DataSource:     "ibkr",
		HasMarketData:  hasLast && hasVolume && hasOI,
	}

	if _, ok := fields["delta"]; ok {
		row.Greeks = &models.Greeks{
			ImpliedVol: fields["implied_vol"],
			Delta:      fields["delta"],
			Gamma:      fields["gamma"],
			Theta:      fields["theta"],
			Vega:       fields["vega"],
		}
	}
	return row, true
}

// occSymbol formats the standard OCC contract symbol:
// underlying + YYMMDD + C/P + strike in mills, zero padded to 8.
func occSymbol(symbol, expiration, right string, strike float64) string {
	yymmdd := expiration
	if len(expiration) == 8 {
		yymmdd = expiration[2:]
	}
	return fmt.Sprintf("%s%s%s%08d", symbol, yymmdd, right, int(math.Round(strike*1000)))
}
