package analysis

import (
	"fmt"
	"math"
	"strings"

	"github.com/jwaldner/remora/internal/models"
)

// enrich attaches the derived display fields to one surviving row.
func (e *Engine) enrich(row cleanedRow, underlyingPrice float64, mode Mode) models.UnusualContract {
	moneyness, distancePct := e.moneyness(row.Strike, underlyingPrice, row.Type)

	return models.UnusualContract{
		ContractSymbol:     row.ContractSymbol,
		Strike:             row.Strike,
		Type:               row.Type,
		ExpirationDate:     row.ExpirationDate,
		LastPrice:          row.LastPrice,
		Volume:             row.Volume,
		OpenInterest:       row.OpenInterest,
		VolumeToOiRatio:    round2(row.ratio),
		PremiumSpent:       round2(row.premium),
		UnderlyingPrice:    underlyingPrice,
		Moneyness:          moneyness,
		DistanceFromStrike: round2(distancePct),
		UnusualityLevel:    e.unusualityLevel(row.ratio),
		DaysToExpiration:   row.DTE,
		TimeDecayRisk:      timeDecayRisk(row.DTE),
		StrategicSignal:    strategicSignal(moneyness, row.Type, row.ratio, row.DTE, row.premium),
		Greeks:             row.Greeks,
	}
}

// moneyness classifies strike vs. underlying using the ATM and deep-OTM
// bands. Returns the label and the signed distance as a percentage.
func (e *Engine) moneyness(strike, underlyingPrice float64, optType string) (string, float64) {
	distance := (strike - underlyingPrice) / underlyingPrice
	absDistance := distance
	if absDistance < 0 {
		absDistance = -absDistance
	}

	var label string
	switch {
	case absDistance <= e.expert.ATMThreshold:
		label = "ATM"
	case optType == "call":
		switch {
		case distance < 0:
			label = "ITM"
		case distance > e.expert.DeepOTMThreshold:
			label = "Deep-OTM"
		default:
			label = "OTM"
		}
	default: // put
		switch {
		case distance > 0:
			label = "ITM"
		case absDistance > e.expert.DeepOTMThreshold:
			label = "Deep-OTM"
		default:
			label = "OTM"
		}
	}
	return label, distance * 100
}

func (e *Engine) unusualityLevel(ratio float64) string {
	switch {
	case ratio >= e.expert.ExtremeUnusualRat:
		return "EXTREME"
	case ratio >= e.expert.HighUnusualRatio:
		return "HIGH"
	default:
		return "UNUSUAL"
	}
}

func timeDecayRisk(dte int) string {
	switch {
	case dte <= 7:
		return "HIGH"
	case dte <= 21:
		return "MEDIUM"
	default:
		return "LOW"
	}
}

// strategicSignal composes the display label from premium size, ratio,
// moneyness, option type and DTE. Display only; nothing filters on it.
func strategicSignal(moneyness, optType string, ratio float64, dte int, premium float64) string {
	var signals []string

	if premium >= 100000 && ratio >= 6.0 {
		signals = append(signals, "🔥 SMART MONEY")
	}

	switch {
	case moneyness == "ATM" && dte <= 14:
		signals = append(signals, "🎯 GAMMA SQUEEZE SETUP")
	case moneyness == "Deep-OTM" && ratio >= 8.0:
		signals = append(signals, "🚀 LOTTERY TICKET PLAY")
	case moneyness == "ITM" && premium >= 50000:
		signals = append(signals, "💪 CONVICTION TRADE")
	}

	if optType == "call" {
		if dte <= 7 && ratio >= 5.0 {
			signals = append(signals, "⚡ SHORT-TERM BULLISH")
		} else if dte >= 30 {
			signals = append(signals, "📈 LONG-TERM BULLISH")
		}
	} else {
		if dte <= 7 && ratio >= 5.0 {
			signals = append(signals, "⚡ SHORT-TERM BEARISH")
		} else if dte >= 30 {
			signals = append(signals, "📉 LONG-TERM BEARISH")
		}
	}

	if len(signals) == 0 {
		return fmt.Sprintf("%s FLOW", strings.ToUpper(optType))
	}
	return strings.Join(signals, " | ")
}

func round2(v float64) float64 {
	return math.Round(v*100) / 100
}
