package projection

import (
	"math"

	"gonum.org/v1/gonum/stat"
)

// Estimate is the portfolio-level expected-return/volatility pair the
// Projector feeds into its milestone walk, grounded on the teacher's
// pkg/formulas.AnnualizedVolatility and Mean helpers.
type Estimate struct {
	ExpectedAnnualReturn float64
	AnnualVolatility     float64
}

const tradingDaysPerYear = 252

// EstimateFromDailyReturns derives an annualized expected return and
// volatility from per-symbol daily-return series, each weighted by its
// symbol's entry in weights (a symbol missing from weights contributes
// zero, even when it is the only series).
func EstimateFromDailyReturns(weightedReturns map[string][]float64, weights map[string]float64) Estimate {
	if len(weightedReturns) == 0 {
		return Estimate{}
	}

	var meanReturn, variance float64
	for symbol, returns := range weightedReturns {
		if len(returns) == 0 {
			continue
		}
		w := weights[symbol]
		meanReturn += w * stat.Mean(returns, nil)
		variance += w * w * stat.Variance(returns, nil)
	}

	return Estimate{
		ExpectedAnnualReturn: meanReturn * tradingDaysPerYear,
		AnnualVolatility:     math.Sqrt(variance) * math.Sqrt(tradingDaysPerYear),
	}
}

// ReturnsFromPrices converts a closing-price series (oldest first) into
// simple daily returns, mirroring the teacher's CalculateReturns helper.
func ReturnsFromPrices(prices []float64) []float64 {
	if len(prices) < 2 {
		return nil
	}
	returns := make([]float64, len(prices)-1)
	for i := 1; i < len(prices); i++ {
		if prices[i-1] != 0 {
			returns[i-1] = (prices[i] - prices[i-1]) / prices[i-1]
		}
	}
	return returns
}
