package models

// OptionRow is one normalized options-chain row for a single
// (strike, expiration, right) regardless of which source produced it.
type OptionRow struct {
	ContractSymbol string  `json:"contractSymbol"`
	Strike         float64 `json:"strike"`
	Type           string  `json:"type"` // "call" or "put"
	ExpirationDate string  `json:"expirationDate"`
	LastPrice      float64 `json:"lastPrice"`
	Volume         int64   `json:"volume"`
	OpenInterest   int64   `json:"openInterest"`
	DTE            int     `json:"dte"`
	DataSource     string  `json:"dataSource"`

	// Populated by the broker feed only; passed through, never computed.
	Greeks *Greeks `json:"greeks,omitempty"`

	// False when the source could not supply volume, open interest or
	// last price. Cleaning drops such rows.
	HasMarketData bool `json:"-"`
}

// Greeks as delivered by the broker feed.
type Greeks struct {
	ImpliedVol float64 `json:"impliedVolatility"`
	Delta      float64 `json:"delta"`
	Gamma      float64 `json:"gamma"`
	Theta      float64 `json:"theta"`
	Vega       float64 `json:"vega"`
}

// UnusualContract is an OptionRow that survived filtering, with the
// derived analysis fields attached.
type UnusualContract struct {
	ContractSymbol  string  `json:"contractSymbol"`
	Strike          float64 `json:"strike"`
	Type            string  `json:"type"`
	ExpirationDate  string  `json:"expirationDate"`
	LastPrice       float64 `json:"lastPrice"`
	Volume          int64   `json:"volume"`
	OpenInterest    int64   `json:"openInterest"`
	VolumeToOiRatio float64 `json:"volumeToOiRatio"`
	PremiumSpent    float64 `json:"premiumSpent"`
	UnderlyingPrice float64 `json:"underlyingPrice"`

	Moneyness          string  `json:"moneyness"` // ITM, ATM, OTM, Deep-OTM
	DistanceFromStrike float64 `json:"distanceFromStrike"`
	UnusualityLevel    string  `json:"unusualityLevel"` // UNUSUAL, HIGH, EXTREME
	DaysToExpiration   int     `json:"daysToExpiration"`
	TimeDecayRisk      string  `json:"timeDecayRisk"` // LOW, MEDIUM, HIGH
	StrategicSignal    string  `json:"strategicSignal"`

	Greeks *Greeks `json:"greeks,omitempty"`
}

// MarketSentiment aggregates options flow over the full cleaned chain.
type MarketSentiment struct {
	TotalCallVolume int64   `json:"totalCallVolume"`
	TotalPutVolume  int64   `json:"totalPutVolume"`
	CallPutRatio    float64 `json:"callPutRatio"`
	BullishSignals  int     `json:"bullishSignals"`
	BearishSignals  int     `json:"bearishSignals"`
	NetSentiment    string  `json:"netSentiment"` // BULLISH, BEARISH, NEUTRAL
}

// DataQuality records which sources were tried and which one won.
type DataQuality struct {
	SourcesAttempted []string `json:"sourcesAttempted"`
	SourceUsed       string   `json:"sourceUsed"`
	FallbackUsed     bool     `json:"fallbackUsed"`
	Errors           []string `json:"errors,omitempty"`
}

// UOAResponse is the full analysis payload for one ticker.
type UOAResponse struct {
	Ticker           string            `json:"ticker"`
	AnalysisDate     string            `json:"analysisDate"`
	Mode             string            `json:"mode"`
	UnderlyingPrice  float64           `json:"underlyingPrice"`
	TotalContracts   int               `json:"totalContracts"`
	UnusualContracts []UnusualContract `json:"unusualContracts"`
	MarketSentiment  MarketSentiment   `json:"marketSentiment"`
	TopSignals       []string          `json:"topSignals"`
	RiskWarnings     []string          `json:"riskWarnings"`
	DataQuality      *DataQuality      `json:"dataQuality,omitempty"`
}

// ErrorResponse is the body shape for 404/500 replies.
type ErrorResponse struct {
	Detail string `json:"detail"`
	Ticker string `json:"ticker,omitempty"`
}

// ConnectionStatus is the broker gateway connection state exposed by the
// /api/ibkr endpoints. One live instance per process.
type ConnectionStatus struct {
	Connected      bool   `json:"connected"`
	ConnectionTime string `json:"connection_time,omitempty"`
	ServerVersion  int    `json:"server_version,omitempty"`
	ErrorMessage   string `json:"error_message,omitempty"`
}
