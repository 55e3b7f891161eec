package ibkr

import (
	"fmt"
	"net"
	"strconv"
	"sync"
	"time"

	"github.com/rs/zerolog/log"

	"github.com/jwaldner/remora/internal/config"
	"github.com/jwaldner/remora/internal/models"
)

// ContractRequest describes one options subscription issued to the gateway.
// Immutable once created; discarded when its data is merged or times out.
type ContractRequest struct {
	Symbol     string
	Strike     float64
	Expiration string // YYYYMMDD
	Right      string // "C" or "P"
	Exchange   string
	Currency   string
}

// Fields accumulates tick data for one request id. A key is present only
// once its tick has been observed; absence means "not yet known".
type Fields map[string]float64

// Client owns the gateway connection and all shared request state. All
// mutable state is guarded by a single coarse mutex; request volume is
// low enough that contention is not a concern.
type Client struct {
	cfg config.IBKRConfig

	// writeMu serializes outbound frames. Concurrent senders interleaving
	// on the socket corrupt the length-prefixed stream for the gateway.
	writeMu sync.Mutex

	mu            sync.Mutex
	conn          net.Conn
	connected     bool
	running       bool
	serverVersion int
	connTime      string
	nextReqID     int
	pending       map[int]ContractRequest
	ticks         map[int]Fields
	status        models.ConnectionStatus
	readerDone    chan struct{}

	// dial is swappable so tests can count attempts or hand the client a
	// scripted gateway.
	dial func(host string, port int, timeout time.Duration) (net.Conn, error)

	pollInterval time.Duration
}

// NewClient creates a disconnected client for the configured gateway.
func NewClient(cfg config.IBKRConfig) *Client {
	return &Client{
		cfg:          cfg,
		nextReqID:    1,
		pending:      make(map[int]ContractRequest),
		ticks:        make(map[int]Fields),
		dial:         dialTCP,
		pollInterval: 100 * time.Millisecond,
	}
}

func dialTCP(host string, port int, timeout time.Duration) (net.Conn, error) {
	return net.DialTimeout("tcp", net.JoinHostPort(host, strconv.Itoa(port)), timeout)
}

// send writes one frame under the write lock.
func (c *Client) send(conn net.Conn, fields ...string) error {
	c.writeMu.Lock()
	defer c.writeMu.Unlock()
	return writeFrame(conn, fields...)
}

// Connect attempts the gateway handshake up to MaxRetryAttempts times.
// Each attempt spawns the reader goroutine and polls the connected flag
// until the per-attempt timeout; a timed-out attempt is torn down before
// the next one. Connected is only reached after the gateway's explicit
// nextValidId handshake, not merely after the socket opens.
func (c *Client) Connect() models.ConnectionStatus {
	log.Info().Str("host", c.cfg.Host).Int("port", c.cfg.Port).Msg("🔌 connecting to IBKR gateway")

	for attempt := 1; attempt <= c.cfg.MaxRetryAttempts; attempt++ {
		if c.tryConnect(attempt) {
			c.mu.Lock()
			c.status = models.ConnectionStatus{
				Connected:      true,
				ConnectionTime: c.connTime,
				ServerVersion:  c.serverVersion,
			}
			status := c.status
			c.mu.Unlock()
			log.Info().Int("attempt", attempt).Int("server_version", status.ServerVersion).
				Msg("✅ connected to IBKR gateway")
			return status
		}

		log.Warn().Int("attempt", attempt).Msg("connection attempt timed out")
		c.teardown()

		if attempt < c.cfg.MaxRetryAttempts {
			log.Info().Dur("delay", c.cfg.RetryWait()).Msg("retrying connection")
			time.Sleep(c.cfg.RetryWait())
		}
	}

	errMsg := fmt.Sprintf("failed to connect to IBKR after %d attempts", c.cfg.MaxRetryAttempts)
	log.Error().Msg(errMsg)

	c.mu.Lock()
	c.status = models.ConnectionStatus{Connected: false, ErrorMessage: errMsg}
	status := c.status
	c.mu.Unlock()
	return status
}

func (c *Client) tryConnect(attempt int) bool {
	// One deadline covers dial, handshake and the connected-flag poll so
	// an attempt never exceeds the configured timeout.
	deadline := time.Now().Add(c.cfg.ConnectTimeout())

	conn, err := c.dial(c.cfg.Host, c.cfg.Port, time.Until(deadline))
	if err != nil {
		log.Error().Err(err).Int("attempt", attempt).Msg("gateway dial failed")
		return false
	}

	if err := c.handshake(conn, deadline); err != nil {
		log.Error().Err(err).Int("attempt", attempt).Msg("gateway handshake failed")
		conn.Close()
		return false
	}

	done := make(chan struct{})
	c.mu.Lock()
	c.conn = conn
	c.running = true
	c.readerDone = done
	c.mu.Unlock()

	go c.readLoop(conn, done)

	// Poll the connected flag; it flips when nextValidId arrives.
	for time.Now().Before(deadline) {
		c.mu.Lock()
		connected := c.connected
		c.mu.Unlock()
		if connected {
			return true
		}
		time.Sleep(c.pollInterval)
	}
	return false
}

// handshake performs the version exchange and sends startApi. The ack for
// startApi (nextValidId) arrives asynchronously on the read loop.
func (c *Client) handshake(conn net.Conn, deadline time.Time) error {
	if _, err := conn.Write([]byte("API\x00")); err != nil {
		return fmt.Errorf("sending API prefix: %w", err)
	}
	if err := writeFrame(conn, "v100..176"); err != nil {
		return fmt.Errorf("sending version range: %w", err)
	}

	conn.SetReadDeadline(deadline)
	fields, err := readFrame(conn)
	if err != nil {
		return fmt.Errorf("reading server version: %w", err)
	}
	conn.SetReadDeadline(time.Time{})

	c.mu.Lock()
	c.serverVersion = fieldInt(fields, 0)
	c.connTime = fieldStr(fields, 1)
	c.mu.Unlock()

	if err := writeFrame(conn, strconv.Itoa(outStartAPI), "2", strconv.Itoa(c.cfg.ClientID), ""); err != nil {
		return fmt.Errorf("sending startApi: %w", err)
	}
	return nil
}

// readLoop demultiplexes inbound events into shared state for the
// lifetime of the connection.
func (c *Client) readLoop(conn net.Conn, done chan struct{}) {
	defer close(done)
	for {
		fields, err := readFrame(conn)
		if err != nil {
			c.mu.Lock()
			wasRunning := c.running
			c.connected = false
			c.running = false
			c.status.Connected = false
			c.mu.Unlock()
			if wasRunning {
				log.Warn().Err(err).Msg("gateway connection closed")
			}
			return
		}
		c.dispatch(fields)
	}
}

func (c *Client) dispatch(fields []string) {
	switch fieldInt(fields, 0) {
	case inNextValidID:
		c.mu.Lock()
		if id := fieldInt(fields, 2); id > c.nextReqID {
			c.nextReqID = id
		}
		c.connected = true
		c.status.Connected = true
		c.mu.Unlock()
		log.Debug().Int("next_id", fieldInt(fields, 2)).Msg("gateway handshake complete")

	case inManagedAccts:
		log.Debug().Str("accounts", fieldStr(fields, 2)).Msg("managed accounts")

	case inTickPrice:
		c.onTickPrice(fieldInt(fields, 2), fieldInt(fields, 3), fieldFloat(fields, 4))

	case inTickSize:
		c.onTickSize(fieldInt(fields, 2), fieldInt(fields, 3), fieldFloat(fields, 4))

	case inTickGeneric:
		c.onTickGeneric(fieldInt(fields, 2), fieldInt(fields, 3), fieldFloat(fields, 4))

	case inTickOptionComp:
		c.onTickOptionComputation(fields)

	case inTickString:
		// Timestamp strings; nothing to accumulate.

	case inErrMsg:
		c.onError(fieldInt(fields, 2), fieldInt(fields, 3), fieldStr(fields, 4))
	}
}

func (c *Client) onTickPrice(reqID, tickType int, price float64) {
	field, ok := priceField(tickType)
	if !ok {
		return
	}
	c.record(reqID, field, price)
}

func (c *Client) onTickSize(reqID, tickType int, size float64) {
	field, ok := sizeField(tickType)
	if !ok {
		return
	}
	c.record(reqID, field, size)
}

func (c *Client) onTickGeneric(reqID, tickType int, value float64) {
	switch tickType {
	case tickOpenInterest:
		c.record(reqID, "open_interest", value)
	case tickOptionIV:
		c.record(reqID, "implied_vol", value)
	}
}

// tickOptionComputation carries the gateway-computed greeks:
// [21, version, reqId, tickType, iv, delta, optPrice, pvDividend,
//  gamma, vega, theta, undPrice]
func (c *Client) onTickOptionComputation(fields []string) {
	reqID := fieldInt(fields, 2)
	c.record(reqID, "implied_vol", fieldFloat(fields, 4))
	c.record(reqID, "delta", fieldFloat(fields, 5))
	c.record(reqID, "gamma", fieldFloat(fields, 8))
	c.record(reqID, "vega", fieldFloat(fields, 9))
	c.record(reqID, "theta", fieldFloat(fields, 10))
}

func priceField(tickType int) (string, bool) {
	switch tickType {
	case tickBid:
		return "bid", true
	case tickAsk:
		return "ask", true
	case tickLast:
		return "last", true
	case tickHigh:
		return "high", true
	case tickLow:
		return "low", true
	case tickClose:
		return "close", true
	}
	return "", false
}

func sizeField(tickType int) (string, bool) {
	switch tickType {
	case tickBidSize:
		return "bid_size", true
	case tickAskSize:
		return "ask_size", true
	case tickLastSize:
		return "last_size", true
	case tickVolume:
		return "volume", true
	}
	return "", false
}

// record stores a tick field for a pending request. Ticks for unknown or
// already-cancelled ids are dropped.
func (c *Client) record(reqID int, field string, value float64) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if _, ok := c.pending[reqID]; !ok {
		return
	}
	if c.ticks[reqID] == nil {
		c.ticks[reqID] = make(Fields)
	}
	c.ticks[reqID][field] = value
}

// onError classifies gateway error codes: market-data notices are logged
// and ignored, connectivity codes kill the connection, "security not
// found" drops the pending request, anything else is logged non-fatally.
func (c *Client) onError(reqID, code int, msg string) {
	switch {
	case code == 2104 || code == 2106 || code == 2107 || code == 2108:
		log.Debug().Int("code", code).Msg(msg)

	case code == 502 || code == 503 || code == 504:
		log.Error().Int("code", code).Str("msg", msg).Msg("gateway connection error")
		c.mu.Lock()
		c.connected = false
		c.status.Connected = false
		c.status.ErrorMessage = msg
		c.mu.Unlock()

	case code == 200:
		log.Warn().Int("req_id", reqID).Str("msg", msg).Msg("security not found")
		c.mu.Lock()
		delete(c.pending, reqID)
		delete(c.ticks, reqID)
		c.mu.Unlock()

	default:
		log.Error().Int("req_id", reqID).Int("code", code).Str("msg", msg).Msg("gateway error")
	}
}

// IsConnected reports whether the handshake has completed and no fatal
// error has occurred since.
func (c *Client) IsConnected() bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.connected
}

// Status returns the current connection status snapshot.
func (c *Client) Status() models.ConnectionStatus {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.status
}

func (c *Client) nextID() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	id := c.nextReqID
	c.nextReqID++
	return id
}

// RequestChain subscribes to market data for every (strike, right) pair of
// one expiration and returns the issued requests keyed by request id.
func (c *Client) RequestChain(symbol, expiration string, strikes []float64, rights []string) (map[int]ContractRequest, error) {
	c.mu.Lock()
	if !c.connected {
		c.mu.Unlock()
		return nil, fmt.Errorf("not connected to IBKR")
	}
	conn := c.conn
	c.mu.Unlock()

	requested := make(map[int]ContractRequest)
	for _, strike := range strikes {
		for _, right := range rights {
			reqID := c.nextID()
			req := ContractRequest{
				Symbol:     symbol,
				Strike:     strike,
				Expiration: expiration,
				Right:      right,
				Exchange:   "SMART",
				Currency:   "USD",
			}

			c.mu.Lock()
			c.pending[reqID] = req
			c.mu.Unlock()

			if err := c.sendReqMktData(conn, reqID, req); err != nil {
				c.mu.Lock()
				delete(c.pending, reqID)
				c.mu.Unlock()
				return requested, fmt.Errorf("requesting %s %s %.2f%s: %w",
					symbol, expiration, strike, right, err)
			}
			requested[reqID] = req

			log.Debug().Int("req_id", reqID).Str("symbol", symbol).
				Float64("strike", strike).Str("right", right).Msg("subscribed")
		}
	}
	return requested, nil
}

func (c *Client) sendReqMktData(conn net.Conn, reqID int, req ContractRequest) error {
	return c.send(conn,
		strconv.Itoa(outReqMktData), "11", strconv.Itoa(reqID),
		"0", // conId
		req.Symbol, "OPT", req.Expiration,
		strconv.FormatFloat(req.Strike, 'f', -1, 64), req.Right, "100",
		req.Exchange, "", req.Currency, "", "",
		genericTickList, "0", "0", "")
}

// requestStock subscribes to market data for the underlying itself.
func (c *Client) requestStock(symbol string) (int, error) {
	c.mu.Lock()
	if !c.connected {
		c.mu.Unlock()
		return 0, fmt.Errorf("not connected to IBKR")
	}
	conn := c.conn
	c.mu.Unlock()

	reqID := c.nextID()
	c.mu.Lock()
	c.pending[reqID] = ContractRequest{Symbol: symbol, Exchange: "SMART", Currency: "USD"}
	c.mu.Unlock()

	err := c.send(conn,
		strconv.Itoa(outReqMktData), "11", strconv.Itoa(reqID),
		"0", symbol, "STK", "", "0", "", "",
		"SMART", "", "USD", "", "",
		"", "0", "0", "")
	if err != nil {
		c.mu.Lock()
		delete(c.pending, reqID)
		c.mu.Unlock()
		return 0, err
	}
	return reqID, nil
}

// AwaitData polls until every requested id has at least one populated
// field or the timeout elapses. Partial results are returned as-is;
// callers must treat missing fields as unknown, not zero.
func (c *Client) AwaitData(reqIDs []int, timeout time.Duration) map[int]Fields {
	deadline := time.Now().Add(timeout)
	for time.Now().Before(deadline) {
		if c.allPopulated(reqIDs) {
			break
		}
		time.Sleep(c.pollInterval)
	}

	c.mu.Lock()
	defer c.mu.Unlock()
	out := make(map[int]Fields, len(reqIDs))
	for _, id := range reqIDs {
		fields := make(Fields, len(c.ticks[id]))
		for k, v := range c.ticks[id] {
			fields[k] = v
		}
		out[id] = fields
	}
	return out
}

func (c *Client) allPopulated(reqIDs []int) bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	for _, id := range reqIDs {
		if len(c.ticks[id]) == 0 {
			return false
		}
	}
	return true
}

// CancelRequests unsubscribes the given ids and clears their pending and
// accumulator entries. Consumed and timed-out subscriptions must be
// cancelled here or the shared tables grow without bound.
func (c *Client) CancelRequests(reqIDs []int) {
	c.mu.Lock()
	conn := c.conn
	connected := c.connected
	for _, id := range reqIDs {
		delete(c.pending, id)
		delete(c.ticks, id)
	}
	c.mu.Unlock()

	if !connected || conn == nil {
		return
	}
	for _, id := range reqIDs {
		if err := c.send(conn, strconv.Itoa(outCancelMktData), "2", strconv.Itoa(id)); err != nil {
			log.Debug().Err(err).Int("req_id", id).Msg("cancel failed")
			return
		}
	}
}

// Disconnect is idempotent: it stops the reader with a bounded join wait,
// closes the socket and clears the connected flag.
func (c *Client) Disconnect() {
	c.mu.Lock()
	conn := c.conn
	done := c.readerDone
	wasConnected := c.connected
	c.conn = nil
	c.connected = false
	c.running = false
	c.readerDone = nil
	c.status.Connected = false
	c.mu.Unlock()

	if conn != nil {
		conn.Close()
	}
	if done != nil {
		select {
		case <-done:
		case <-time.After(2 * time.Second):
			log.Warn().Msg("reader did not stop within join timeout")
		}
	}
	if wasConnected {
		log.Info().Msg("disconnected from IBKR gateway")
	}
}

// teardown closes a half-open connection between retry attempts.
func (c *Client) teardown() {
	c.Disconnect()
}
