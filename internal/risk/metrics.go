// Package risk computes the pure risk metrics used to evaluate a monitored
// position: price drop, delta, notional exposure, drawdown, value at risk and
// option greeks. Functions here never perform I/O and never mutate inputs.
//
// Metrics that need a minimum amount of history return (0, false) below that
// minimum. Callers must treat false as "not available", never as zero.
package risk

import (
	"errors"
	"math"

	"gonum.org/v1/gonum/stat"
)

const (
	// MinDrawdownSamples is the fewest prices MaxDrawdown accepts.
	MinDrawdownSamples = 2
	// MinVaRSamples is the fewest prices ValueAtRisk95 accepts.
	MinVaRSamples = 30
	// Z95 is the one-sided 95% z-score used for VaR.
	Z95 = 1.65
)

var (
	ErrZeroEntry    = errors.New("risk: entry price is zero")
	ErrNonFinite    = errors.New("risk: non-finite input")
	ErrInvalidPrice = errors.New("risk: price must be positive")
)

// DropPercent returns how far current sits below entry, in percent of entry.
// A price above entry yields a negative drop.
func DropPercent(entry, current float64) (float64, error) {
	if !finite(entry) || !finite(current) {
		return 0, ErrNonFinite
	}
	if entry == 0 {
		return 0, ErrZeroEntry
	}
	return (entry - current) / entry * 100, nil
}

// SpotDelta is the delta of a spot holding, which equals its size.
func SpotDelta(size float64) float64 {
	return size
}

// Notional is the exposure of size units at price.
func Notional(size, price float64) float64 {
	return size * price
}

// MaxDrawdown returns the deepest peak-to-trough decline of prices, as a
// non-positive percentage. [100, 90, 95] yields -10.
func MaxDrawdown(prices []float64) (float64, bool) {
	if len(prices) < MinDrawdownSamples {
		return 0, false
	}
	runMax := prices[0]
	worst := 0.0
	for _, p := range prices {
		if !finite(p) {
			return 0, false
		}
		if p > runMax {
			runMax = p
		}
		if runMax <= 0 {
			return 0, false
		}
		if dd := (p - runMax) / runMax; dd < worst {
			worst = dd
		}
	}
	return worst * 100, true
}

// LogReturns returns ln(p[i]/p[i-1]) for consecutive prices. It reports false
// if any price is not strictly positive.
func LogReturns(prices []float64) ([]float64, bool) {
	if len(prices) < 2 {
		return nil, false
	}
	out := make([]float64, 0, len(prices)-1)
	for i := 1; i < len(prices); i++ {
		prev, cur := prices[i-1], prices[i]
		if prev <= 0 || cur <= 0 || !finite(prev) || !finite(cur) {
			return nil, false
		}
		out = append(out, math.Log(cur/prev))
	}
	return out, true
}

// ValueAtRisk95 estimates the one-period 95% parametric VaR of a position
// worth notional, from the sample standard deviation of log returns.
// The result is never negative.
func ValueAtRisk95(prices []float64, notional float64) (float64, bool) {
	if len(prices) < MinVaRSamples {
		return 0, false
	}
	returns, ok := LogReturns(prices)
	if !ok {
		return 0, false
	}
	sigma := stat.StdDev(returns, nil)
	if !finite(sigma) {
		return 0, false
	}
	v := math.Abs(notional) * sigma * Z95
	return v, true
}

// PerpHedgeSize returns the number of perpetual contracts that offsets
// spotDelta. The result is negative for a long spot holding.
func PerpHedgeSize(spotDelta, perpPrice, contractSize float64) (float64, error) {
	if perpPrice <= 0 || contractSize <= 0 {
		return 0, ErrInvalidPrice
	}
	return -spotDelta / (perpPrice * contractSize), nil
}

func finite(f float64) bool {
	return !math.IsNaN(f) && !math.IsInf(f, 0)
}
