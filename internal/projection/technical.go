// Package projection computes the numeric inputs the Projector worker
// grounds its milestone narrative in: a per-instrument technical snapshot
// (SMA/RSI over a caller-supplied closing-price series) and a portfolio-level expected
// return/volatility estimate, following the teacher's pkg/formulas
// translations of the same indicators.
package projection

import (
	"encoding/json"

	"github.com/markcheno/go-talib"

	"github.com/arcfin/planner/internal/clientdata"
)

const technicalSnapshotTable = "technical_snapshots"

// TechnicalSnapshot is the cached moving-average/RSI signal for one symbol.
type TechnicalSnapshot struct {
	Symbol string   `json:"symbol"`
	SMA    *float64 `json:"sma"`
	RSI    *float64 `json:"rsi"`
}

// ComputeTechnicalSnapshot derives SMA/RSI from a closing-price history,
// oldest first. Returns nil fields when the series is too short for the
// requested period rather than padding with zeroes.
func ComputeTechnicalSnapshot(symbol string, closes []float64, smaPeriod, rsiPeriod int) TechnicalSnapshot {
	snap := TechnicalSnapshot{Symbol: symbol}

	if smaPeriod > 0 && len(closes) >= smaPeriod {
		sma := talib.Sma(closes, smaPeriod)
		if v := lastNonNaN(sma); v != nil {
			snap.SMA = v
		}
	}

	if rsiPeriod > 0 && len(closes) >= rsiPeriod+1 {
		rsi := talib.Rsi(closes, rsiPeriod)
		if v := lastNonNaN(rsi); v != nil {
			snap.RSI = v
		}
	}

	return snap
}

func lastNonNaN(series []float64) *float64 {
	if len(series) == 0 {
		return nil
	}
	v := series[len(series)-1]
	if v != v { // NaN
		return nil
	}
	return &v
}

// CacheSnapshot persists a technical snapshot with the configured TTL.
func CacheSnapshot(repo *clientdata.Repository, snap TechnicalSnapshot) error {
	return repo.Store(technicalSnapshotTable, snap.Symbol, snap, clientdata.TTLTechnicalSnapshot)
}

// FreshSnapshot returns a cached snapshot if still fresh, or ok=false.
func FreshSnapshot(repo *clientdata.Repository, symbol string) (TechnicalSnapshot, bool) {
	data, err := repo.GetIfFresh(technicalSnapshotTable, symbol)
	if err != nil || data == nil {
		return TechnicalSnapshot{}, false
	}
	var snap TechnicalSnapshot
	if err := json.Unmarshal(data, &snap); err != nil {
		return TechnicalSnapshot{}, false
	}
	return snap, true
}
