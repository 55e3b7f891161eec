package yahoo

import (
	"context"
	"fmt"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/jwaldner/remora/internal/providers"
)

func testProvider(url string) *Provider {
	p := New(8, 1, 45)
	p.baseURL = url
	return p
}

func expiration(daysOut int) int64 {
	return time.Now().AddDate(0, 0, daysOut).Unix()
}

func TestStockPriceFromMeta(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Contains(t, r.URL.Path, "/v8/finance/chart/AAPL")
		fmt.Fprint(w, `{"chart":{"result":[{"meta":{"regularMarketPrice":232.14}}],"error":null}}`)
	}))
	defer srv.Close()

	price, err := testProvider(srv.URL).StockPrice(context.Background(), "AAPL")
	require.NoError(t, err)
	assert.Equal(t, 232.14, price)
}

func TestStockPriceFallsBackToLastClose(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		fmt.Fprint(w, `{"chart":{"result":[{"meta":{},"indicators":{"quote":[{"close":[100.5,null,101.25]}]}}]}}`)
	}))
	defer srv.Close()

	price, err := testProvider(srv.URL).StockPrice(context.Background(), "AAPL")
	require.NoError(t, err)
	assert.Equal(t, 101.25, price)
}

func TestStockPriceUnknownTicker(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusNotFound)
		fmt.Fprint(w, `{"chart":{"result":null,"error":{"code":"Not Found","description":"No data found"}}}`)
	}))
	defer srv.Close()

	_, err := testProvider(srv.URL).StockPrice(context.Background(), "ZZZZZZ")
	assert.ErrorIs(t, err, providers.ErrNoPriceData)
}

func TestOptionsChainNormalizesRows(t *testing.T) {
	exp := expiration(14)
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Query().Get("date") == "" {
			fmt.Fprintf(w, `{"optionChain":{"result":[{"underlyingSymbol":"AAPL","expirationDates":[%d],"options":[]}],"error":null}}`, exp)
			return
		}
		fmt.Fprintf(w, `{"optionChain":{"result":[{"options":[{"expirationDate":%d,
			"calls":[{"contractSymbol":"AAPL260918C00230000","strike":230,"lastPrice":2.5,"volume":400,"openInterest":150,"expiration":%d}],
			"puts":[{"contractSymbol":"AAPL260918P00230000","strike":230,"lastPrice":3.1,"openInterest":90,"expiration":%d}]}]}],"error":null}}`,
			exp, exp, exp)
	}))
	defer srv.Close()

	rows, err := testProvider(srv.URL).OptionsChain(context.Background(), "AAPL")
	require.NoError(t, err)
	require.Len(t, rows, 2)

	call := rows[0]
	assert.Equal(t, "AAPL260918C00230000", call.ContractSymbol)
	assert.Equal(t, "call", call.Type)
	assert.Equal(t, int64(400), call.Volume)
	assert.Equal(t, int64(150), call.OpenInterest)
	assert.Equal(t, "yfinance", call.DataSource)
	assert.True(t, call.HasMarketData)

	// The put has no volume field: kept but flagged for cleaning.
	put := rows[1]
	assert.Equal(t, "put", put.Type)
	assert.False(t, put.HasMarketData)
}

func TestOptionsChainFiltersExpirationsByDTE(t *testing.T) {
	var chainRequests []string
	inWindow := expiration(10)
	tooFar := expiration(200)
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		date := r.URL.Query().Get("date")
		if date == "" {
			fmt.Fprintf(w, `{"optionChain":{"result":[{"expirationDates":[%d,%d],"options":[]}],"error":null}}`, inWindow, tooFar)
			return
		}
		chainRequests = append(chainRequests, date)
		fmt.Fprintf(w, `{"optionChain":{"result":[{"options":[{"expirationDate":%s,"calls":[],"puts":[]}]}],"error":null}}`, date)
	}))
	defer srv.Close()

	_, err := testProvider(srv.URL).OptionsChain(context.Background(), "AAPL")
	require.NoError(t, err)

	require.Len(t, chainRequests, 1)
	assert.Equal(t, fmt.Sprintf("%d", inWindow), chainRequests[0])
}

func TestOptionsChainNoExpirations(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		fmt.Fprint(w, `{"optionChain":{"result":[{"expirationDates":[],"options":[]}],"error":null}}`)
	}))
	defer srv.Close()

	_, err := testProvider(srv.URL).OptionsChain(context.Background(), "AAPL")
	assert.ErrorIs(t, err, providers.ErrNoOptionsData)
}

func TestRateLimitedResponse(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusTooManyRequests)
	}))
	defer srv.Close()

	_, err := testProvider(srv.URL).StockPrice(context.Background(), "AAPL")
	require.Error(t, err)
	assert.ErrorIs(t, err, providers.ErrNoPriceData)
}
