package risk

import (
	"fmt"
	"math"
	"sort"

	"gonum.org/v1/gonum/stat"

	"github.com/alanyoungcy/hedgebot/internal/domain"
)

// Report is the set of metrics computed for one position at one price.
// Optional metrics are nil when there is not enough history.
type Report struct {
	Asset              string   `json:"asset"`
	EntryPrice         float64  `json:"entry_price"`
	CurrentPrice       float64  `json:"current_price"`
	Threshold          float64  `json:"threshold"`
	DropPercent        float64  `json:"drop_percent"`
	SpotDelta          float64  `json:"spot_delta"`
	Notional           float64  `json:"notional"`
	MaxDrawdown        *float64 `json:"max_drawdown,omitempty"`
	VaR95              *float64 `json:"var_95,omitempty"`
	PerpHedgeContracts *float64 `json:"perp_hedge_contracts,omitempty"`
	Samples            int      `json:"samples"`
}

// Snapshot computes a Report for pos at the current price, using the stored
// price history for drawdown and VaR. A missing or non-positive entry price
// is reported as domain.ErrInvariantViolation.
func Snapshot(pos domain.Position, current, contractSize float64) (Report, error) {
	if pos.EntryPrice <= 0 || !finite(pos.EntryPrice) {
		return Report{}, fmt.Errorf("risk: snapshot %s: entry price %v: %w", pos.Asset, pos.EntryPrice, domain.ErrInvariantViolation)
	}
	drop, err := DropPercent(pos.EntryPrice, current)
	if err != nil {
		return Report{}, fmt.Errorf("risk: snapshot %s: %w", pos.Asset, err)
	}

	prices := pos.Prices()
	delta := SpotDelta(pos.PositionSize)
	notional := Notional(pos.PositionSize, current)

	r := Report{
		Asset:        pos.Asset,
		EntryPrice:   pos.EntryPrice,
		CurrentPrice: current,
		Threshold:    pos.RiskThreshold,
		DropPercent:  drop,
		SpotDelta:    delta,
		Notional:     notional,
		Samples:      len(prices),
	}
	if dd, ok := MaxDrawdown(prices); ok {
		r.MaxDrawdown = &dd
	}
	if v, ok := ValueAtRisk95(prices, notional); ok {
		r.VaR95 = &v
	}
	if contractSize > 0 {
		if h, err := PerpHedgeSize(delta, current, contractSize); err == nil {
			r.PerpHedgeContracts = &h
		}
	}
	return r, nil
}

// Matrix is a symmetric correlation matrix indexed by Assets.
type Matrix struct {
	Assets []string    `json:"assets"`
	Values [][]float64 `json:"values"`
}

// CorrelationMatrix returns Pearson correlations of percent-change series,
// aligned on the most recent samples common to every asset. It reports false
// when fewer than two assets or fewer than three common samples exist. Pairs
// where either series has zero variance get a correlation of 0.
func CorrelationMatrix(series map[string][]float64) (Matrix, bool) {
	if len(series) < 2 {
		return Matrix{}, false
	}
	assets := make([]string, 0, len(series))
	n := math.MaxInt
	for a, s := range series {
		assets = append(assets, a)
		if len(s) < n {
			n = len(s)
		}
	}
	if n < 3 {
		return Matrix{}, false
	}
	sort.Strings(assets)

	changes := make([][]float64, len(assets))
	for i, a := range assets {
		s := series[a]
		tail := s[len(s)-n:]
		pc, ok := pctChange(tail)
		if !ok {
			return Matrix{}, false
		}
		changes[i] = pc
	}

	m := Matrix{Assets: assets, Values: make([][]float64, len(assets))}
	for i := range assets {
		m.Values[i] = make([]float64, len(assets))
		for j := range assets {
			if i == j {
				m.Values[i][j] = 1
				continue
			}
			c := stat.Correlation(changes[i], changes[j], nil)
			if !finite(c) {
				c = 0
			}
			m.Values[i][j] = c
		}
	}
	return m, true
}

func pctChange(prices []float64) ([]float64, bool) {
	out := make([]float64, 0, len(prices)-1)
	for i := 1; i < len(prices); i++ {
		if prices[i-1] == 0 {
			return nil, false
		}
		out = append(out, (prices[i]-prices[i-1])/prices[i-1])
	}
	return out, true
}
