package analysis

import (
	"fmt"
	"math"

	"github.com/jwaldner/remora/internal/models"
)

// signalRatio is the volume/OI ratio at or above which a cleaned row
// counts as a directional signal for sentiment.
const signalRatio = 3.0

// InfiniteRatio is the CallPutRatio sentinel emitted when put volume is
// zero: the ratio is unbounded, and JSON cannot carry +Inf.
const InfiniteRatio = -1.0

// sentiment aggregates the full cleaned set, independent of the filter
// mode applied afterwards.
func (e *Engine) sentiment(rows []cleanedRow) models.MarketSentiment {
	var callVolume, putVolume int64
	var bullish, bearish int

	for _, row := range rows {
		if row.Type == "call" {
			callVolume += row.Volume
			if row.ratio >= signalRatio {
				bullish++
			}
		} else {
			putVolume += row.Volume
			if row.ratio >= signalRatio {
				bearish++
			}
		}
	}

	ratio := callPutRatio(callVolume, putVolume)

	var net string
	switch {
	case ratio > 1.5:
		net = "BULLISH"
	case ratio < 0.67:
		net = "BEARISH"
	default:
		net = "NEUTRAL"
	}
	if callVolume == 0 && putVolume == 0 {
		net = "NEUTRAL"
	}

	reported := round2(ratio)
	if math.IsInf(ratio, 1) {
		reported = InfiniteRatio
	}

	return models.MarketSentiment{
		TotalCallVolume: callVolume,
		TotalPutVolume:  putVolume,
		CallPutRatio:    reported,
		BullishSignals:  bullish,
		BearishSignals:  bearish,
		NetSentiment:    net,
	}
}

// callPutRatio is +Inf when there is call volume but no put volume, and 0
// when there is no volume at all.
func callPutRatio(callVolume, putVolume int64) float64 {
	if putVolume == 0 {
		if callVolume == 0 {
			return 0
		}
		return math.Inf(1)
	}
	return float64(callVolume) / float64(putVolume)
}

// insights builds the trader-facing summary lines and risk warnings from
// the surviving contracts.
func (e *Engine) insights(contracts []models.UnusualContract, sentiment models.MarketSentiment) ([]string, []string) {
	if len(contracts) == 0 {
		return []string{"No unusual options activity detected"}, nil
	}

	var signals, warnings []string

	ratio := callPutRatio(sentiment.TotalCallVolume, sentiment.TotalPutVolume)
	if ratio > 2.0 {
		if math.IsInf(ratio, 1) {
			signals = append(signals, "🚀 Strong bullish sentiment: call volume with no put volume")
		} else {
			signals = append(signals, fmt.Sprintf("🚀 Strong bullish sentiment: %.1fx more call volume", ratio))
		}
	} else if ratio < 0.5 && sentiment.TotalPutVolume > 0 {
		signals = append(signals, fmt.Sprintf("🐻 Strong bearish sentiment: %.1fx call/put ratio", ratio))
	}

	var extreme, bigPremium, shortDTE, deepOTM int
	for _, c := range contracts {
		if c.VolumeToOiRatio >= e.expert.ExtremeUnusualRat {
			extreme++
		}
		if c.PremiumSpent >= 100000 {
			bigPremium++
		}
		if c.DaysToExpiration <= 7 {
			shortDTE++
		}
		if c.Moneyness == "Deep-OTM" {
			deepOTM++
		}
	}

	if extreme > 0 {
		signals = append(signals, fmt.Sprintf("🔥 %d EXTREME flows detected (%.0fx+ volume/OI)", extreme, e.expert.ExtremeUnusualRat))
	}
	if bigPremium > 0 {
		signals = append(signals, fmt.Sprintf("💰 %d high-conviction trades (>$100K premium)", bigPremium))
	}
	if shortDTE > 0 {
		warnings = append(warnings, fmt.Sprintf("⚠️ %d contracts expire within 7 days (HIGH time decay)", shortDTE))
	}
	if deepOTM > 0 {
		warnings = append(warnings, fmt.Sprintf("🎲 %d deep OTM positions detected (lottery ticket plays)", deepOTM))
	}

	if len(signals) > 5 {
		signals = signals[:5]
	}
	if len(warnings) > 3 {
		warnings = warnings[:3]
	}
	return signals, warnings
}
