package analysis

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestMoneynessClassification(t *testing.T) {
	e := testEngine()

	tests := []struct {
		name    string
		strike  float64
		price   float64
		optType string
		want    string
	}{
		{"strike equals price is ATM for call", 100, 100, "call", "ATM"},
		{"strike equals price is ATM for put", 100, 100, "put", "ATM"},
		{"within 5 percent is ATM", 104, 100, "call", "ATM"},
		{"call below price is ITM", 90, 100, "call", "ITM"},
		{"call above price is OTM", 110, 100, "call", "OTM"},
		{"call far above price is deep OTM", 120, 100, "call", "Deep-OTM"},
		{"put above price is ITM", 110, 100, "put", "ITM"},
		{"put below price is OTM", 90, 100, "put", "OTM"},
		{"put far below price is deep OTM", 80, 100, "put", "Deep-OTM"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, _ := e.moneyness(tt.strike, tt.price, tt.optType)
			assert.Equal(t, tt.want, got)
		})
	}
}

func TestMoneynessDistanceIsPercentage(t *testing.T) {
	e := testEngine()

	_, distance := e.moneyness(110, 100, "call")
	assert.InDelta(t, 10.0, distance, 1e-9)

	_, distance = e.moneyness(90, 100, "put")
	assert.InDelta(t, -10.0, distance, 1e-9)
}

func TestUnusualityLevel(t *testing.T) {
	e := testEngine()

	assert.Equal(t, "UNUSUAL", e.unusualityLevel(1.0))
	assert.Equal(t, "UNUSUAL", e.unusualityLevel(4.99))
	assert.Equal(t, "HIGH", e.unusualityLevel(5.0))
	assert.Equal(t, "HIGH", e.unusualityLevel(7.99))
	assert.Equal(t, "EXTREME", e.unusualityLevel(8.0))
}

func TestTimeDecayRisk(t *testing.T) {
	assert.Equal(t, "HIGH", timeDecayRisk(1))
	assert.Equal(t, "HIGH", timeDecayRisk(7))
	assert.Equal(t, "MEDIUM", timeDecayRisk(8))
	assert.Equal(t, "MEDIUM", timeDecayRisk(21))
	assert.Equal(t, "LOW", timeDecayRisk(22))
}

func TestStrategicSignalRuleTable(t *testing.T) {
	tests := []struct {
		name      string
		moneyness string
		optType   string
		ratio     float64
		dte       int
		premium   float64
		want      string
	}{
		{"smart money", "OTM", "call", 6.0, 20, 150000, "🔥 SMART MONEY"},
		{"gamma squeeze", "ATM", "call", 2.0, 10, 5000, "🎯 GAMMA SQUEEZE SETUP"},
		{"lottery ticket", "Deep-OTM", "call", 9.0, 20, 5000, "🚀 LOTTERY TICKET PLAY"},
		{"conviction trade", "ITM", "put", 2.0, 20, 60000, "💪 CONVICTION TRADE"},
		{"short term bullish", "OTM", "call", 5.0, 5, 5000, "⚡ SHORT-TERM BULLISH"},
		{"long term bearish", "OTM", "put", 2.0, 35, 5000, "📉 LONG-TERM BEARISH"},
		{"plain call flow", "OTM", "call", 2.0, 20, 5000, "CALL FLOW"},
		{"plain put flow", "OTM", "put", 2.0, 20, 5000, "PUT FLOW"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got := strategicSignal(tt.moneyness, tt.optType, tt.ratio, tt.dte, tt.premium)
			assert.Equal(t, tt.want, got)
		})
	}
}

func TestStrategicSignalComposes(t *testing.T) {
	// High premium ATM call close to expiry hits several rules at once.
	got := strategicSignal("ATM", "call", 6.5, 5, 200000)
	assert.Equal(t, "🔥 SMART MONEY | 🎯 GAMMA SQUEEZE SETUP | ⚡ SHORT-TERM BULLISH", got)
}
