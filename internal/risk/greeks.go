package risk

import (
	"math"

	"gonum.org/v1/gonum/stat/distuv"
)

// OptionType selects call or put pricing.
type OptionType string

const (
	OptionCall OptionType = "call"
	OptionPut  OptionType = "put"
)

// Greeks holds Black-Scholes sensitivities. Theta is per calendar day and
// Vega is per one volatility point.
type Greeks struct {
	Delta float64 `json:"delta"`
	Gamma float64 `json:"gamma"`
	Theta float64 `json:"theta"`
	Vega  float64 `json:"vega"`
}

// OptionGreeks computes Black-Scholes greeks for spot S, strike K, years to
// expiry T, risk-free rate r and volatility sigma.
//
// Degraded fallback: when the inputs cannot be priced (T <= 0, sigma <= 0,
// non-positive prices, unknown option type) or the result is not finite, the
// zero Greeks value is returned instead of an error.
func OptionGreeks(S, K, T, r, sigma float64, typ OptionType) Greeks {
	if T <= 0 || sigma <= 0 || S <= 0 || K <= 0 {
		return Greeks{}
	}
	if typ != OptionCall && typ != OptionPut {
		return Greeks{}
	}

	n := distuv.UnitNormal
	sqrtT := math.Sqrt(T)
	d1 := (math.Log(S/K) + (r+0.5*sigma*sigma)*T) / (sigma * sqrtT)
	d2 := d1 - sigma*sqrtT
	pdf := n.Prob(d1)
	disc := math.Exp(-r * T)

	var g Greeks
	g.Gamma = pdf / (S * sigma * sqrtT)
	g.Vega = S * pdf * sqrtT / 100

	switch typ {
	case OptionCall:
		g.Delta = n.CDF(d1)
		g.Theta = (-S*pdf*sigma/(2*sqrtT) - r*K*disc*n.CDF(d2)) / 365
	case OptionPut:
		g.Delta = n.CDF(d1) - 1
		g.Theta = (-S*pdf*sigma/(2*sqrtT) + r*K*disc*n.CDF(-d2)) / 365
	}

	if !finite(g.Delta) || !finite(g.Gamma) || !finite(g.Theta) || !finite(g.Vega) {
		return Greeks{}
	}
	return g
}
