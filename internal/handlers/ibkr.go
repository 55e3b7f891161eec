package handlers

import (
	"net/http"

	"github.com/gorilla/mux"
	"github.com/rs/zerolog/log"

	"github.com/jwaldner/remora/internal/metrics"
	"github.com/jwaldner/remora/internal/models"
)

// Broker-path diagnostics. These operate on the process-wide connection
// and never touch the analysis pipeline.

// IBKRStatusHandler reports the current gateway connection status.
func (h *OptionsHandler) IBKRStatusHandler(w http.ResponseWriter, r *http.Request) {
	if h.ibkrClient == nil {
		writeJSON(w, http.StatusOK, models.ConnectionStatus{
			Connected:    false,
			ErrorMessage: "IBKR support disabled",
		})
		return
	}
	writeJSON(w, http.StatusOK, h.ibkrClient.Status())
}

// IBKRConnectHandler connects to the gateway. Idempotent: when already
// connected it reports so instead of reconnecting.
func (h *OptionsHandler) IBKRConnectHandler(w http.ResponseWriter, r *http.Request) {
	if h.ibkrClient == nil {
		writeError(w, http.StatusConflict, "IBKR support disabled", "")
		return
	}

	if h.ibkrClient.IsConnected() {
		writeJSON(w, http.StatusOK, map[string]interface{}{
			"message": "already connected",
			"status":  h.ibkrClient.Status(),
		})
		return
	}

	metrics.BrokerReconnects.Inc()
	status := h.ibkrClient.Connect()
	code := http.StatusOK
	if !status.Connected {
		code = http.StatusBadGateway
	}
	writeJSON(w, code, status)
}

// IBKRDisconnectHandler tears the connection down. No-op when not
// connected.
func (h *OptionsHandler) IBKRDisconnectHandler(w http.ResponseWriter, r *http.Request) {
	if h.ibkrClient == nil {
		writeError(w, http.StatusConflict, "IBKR support disabled", "")
		return
	}

	if !h.ibkrClient.IsConnected() {
		writeJSON(w, http.StatusOK, map[string]string{"message": "not connected"})
		return
	}

	h.ibkrClient.Disconnect()
	writeJSON(w, http.StatusOK, h.ibkrClient.Status())
}

// IBKRTestHandler fetches a single underlying price through the broker
// path to verify end-to-end market data delivery.
func (h *OptionsHandler) IBKRTestHandler(w http.ResponseWriter, r *http.Request) {
	if h.ibkrClient == nil {
		writeError(w, http.StatusConflict, "IBKR support disabled", "")
		return
	}
	if !h.ibkrClient.IsConnected() {
		writeError(w, http.StatusConflict, "not connected to IBKR", "")
		return
	}

	ticker, err := h.symbols.Normalize(mux.Vars(r)["ticker"])
	if err != nil {
		writeError(w, http.StatusBadRequest, err.Error(), "")
		return
	}

	price, err := h.ibkrClient.StockPrice(ticker)
	if err != nil {
		log.Warn().Err(err).Str("ticker", ticker).Msg("broker price test failed")
		writeError(w, http.StatusNotFound, err.Error(), ticker)
		return
	}

	writeJSON(w, http.StatusOK, map[string]interface{}{
		"ticker": ticker,
		"price":  price,
		"source": "ibkr",
	})
}
