package analysis

import (
	"sort"

	"github.com/rs/zerolog/log"

	"github.com/jwaldner/remora/internal/config"
	"github.com/jwaldner/remora/internal/models"
)

// Engine turns a combined option-row collection into the ranked unusual
// subset plus aggregate sentiment. It is pure computation over its
// inputs: no I/O, same input and mode always yield the same ordered
// output.
type Engine struct {
	filtering config.FilteringConfig
	position  config.PositionConfig
	expert    config.ExpertConfig
}

// New builds an engine from the consolidated threshold configuration.
func New(filtering config.FilteringConfig, position config.PositionConfig, expert config.ExpertConfig) *Engine {
	return &Engine{filtering: filtering, position: position, expert: expert}
}

// Result is one complete analysis over a cleaned chain.
type Result struct {
	TotalContracts   int
	UnusualContracts []models.UnusualContract
	Sentiment        models.MarketSentiment
	TopSignals       []string
	RiskWarnings     []string
	// EffectiveMode is the concrete policy applied (auto resolved).
	EffectiveMode Mode
}

// cleanedRow carries the mode-independent derived values alongside the
// source row.
type cleanedRow struct {
	models.OptionRow
	ratio   float64 // volume / open interest
	premium float64 // volume * lastPrice * 100
}

// Analyze runs the full pipeline: clean, derive, select policy, filter,
// sort, cap, enrich. An empty surviving set is a valid result, not an
// error.
func (e *Engine) Analyze(ticker string, mode Mode, underlyingPrice float64, rows []models.OptionRow) *Result {
	cleaned := e.clean(rows)

	var totalVolume int64
	for _, row := range cleaned {
		totalVolume += row.Volume
	}
	effective := mode.resolve(totalVolume)

	log.Debug().Str("ticker", ticker).Str("mode", mode.String()).
		Str("effective", effective.String()).Int("cleaned", len(cleaned)).
		Int64("total_volume", totalVolume).Msg("filter policy selected")

	var survivors []cleanedRow
	if effective == ModeLive {
		survivors = e.filterLive(cleaned)
	} else {
		survivors = e.filterPosition(cleaned)
	}
	survivors = e.cap(survivors)

	contracts := make([]models.UnusualContract, 0, len(survivors))
	for _, row := range survivors {
		contracts = append(contracts, e.enrich(row, underlyingPrice, effective))
	}

	sentiment := e.sentiment(cleaned)
	signals, warnings := e.insights(contracts, sentiment)

	return &Result{
		TotalContracts:   len(cleaned),
		UnusualContracts: contracts,
		Sentiment:        sentiment,
		TopSignals:       signals,
		RiskWarnings:     warnings,
		EffectiveMode:    effective,
	}
}

// clean drops rows with missing market data, non-positive volume or open
// interest, non-positive last price, or a DTE outside the configured
// window.
func (e *Engine) clean(rows []models.OptionRow) []cleanedRow {
	cleaned := make([]cleanedRow, 0, len(rows))
	for _, row := range rows {
		if !row.HasMarketData {
			continue
		}
		if row.Volume <= 0 || row.OpenInterest <= 0 || row.LastPrice <= 0 {
			continue
		}
		if row.DTE < e.filtering.MinDTE || row.DTE > e.filtering.MaxDTE {
			continue
		}
		cleaned = append(cleaned, cleanedRow{
			OptionRow: row,
			ratio:     float64(row.Volume) / float64(row.OpenInterest),
			premium:   float64(row.Volume) * row.LastPrice * 100,
		})
	}
	return cleaned
}

// filterLive keeps rows that clear every volume-based threshold, ranked
// by volume/OI ratio.
func (e *Engine) filterLive(rows []cleanedRow) []cleanedRow {
	survivors := make([]cleanedRow, 0, len(rows))
	for _, row := range rows {
		if row.ratio >= e.filtering.MinVolumeOiRatio &&
			row.Volume >= e.filtering.MinVolume &&
			row.OpenInterest >= e.filtering.MinOpenInterest &&
			row.premium >= e.filtering.MinPremiumSpent {
			survivors = append(survivors, row)
		}
	}
	sort.SliceStable(survivors, func(i, j int) bool {
		if survivors[i].ratio != survivors[j].ratio {
			return survivors[i].ratio > survivors[j].ratio
		}
		return survivors[i].ContractSymbol < survivors[j].ContractSymbol
	})
	return survivors
}

// filterPosition keeps rows by open-interest commitment, ranked by open
// interest. The premium here is theoretical (OI-based): the volume signal
// is considered unreliable in this mode.
func (e *Engine) filterPosition(rows []cleanedRow) []cleanedRow {
	survivors := make([]cleanedRow, 0, len(rows))
	for _, row := range rows {
		theoretical := float64(row.OpenInterest) * row.LastPrice * 100
		if row.OpenInterest >= e.position.MinOpenInterest &&
			theoretical >= e.position.MinPremium &&
			row.LastPrice > 0 {
			row.ratio = 0 // no volume signal in position mode
			row.premium = theoretical
			survivors = append(survivors, row)
		}
	}
	sort.SliceStable(survivors, func(i, j int) bool {
		if survivors[i].OpenInterest != survivors[j].OpenInterest {
			return survivors[i].OpenInterest > survivors[j].OpenInterest
		}
		return survivors[i].ContractSymbol < survivors[j].ContractSymbol
	})
	return survivors
}

func (e *Engine) cap(rows []cleanedRow) []cleanedRow {
	if e.filtering.MaxResults > 0 && len(rows) > e.filtering.MaxResults {
		return rows[:e.filtering.MaxResults]
	}
	return rows
}
