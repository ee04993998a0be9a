package risk

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestOptionGreeksCall(t *testing.T) {
	g := OptionGreeks(100, 100, 0.5, 0.01, 0.6, OptionCall)
	assert.Greater(t, g.Delta, 0.5)
	assert.Less(t, g.Delta, 1.0)
	assert.Greater(t, g.Gamma, 0.0)
	assert.Greater(t, g.Vega, 0.0)
	assert.Less(t, g.Theta, 0.0)
}

func TestOptionGreeksPutCallDeltaParity(t *testing.T) {
	call := OptionGreeks(27000, 30000, 0.25, 0.03, 0.55, OptionCall)
	put := OptionGreeks(27000, 30000, 0.25, 0.03, 0.55, OptionPut)
	assert.InDelta(t, call.Delta-1, put.Delta, 1e-12)
	assert.InDelta(t, call.Gamma, put.Gamma, 1e-12)
	assert.InDelta(t, call.Vega, put.Vega, 1e-12)
}

func TestOptionGreeksDegradedFallback(t *testing.T) {
	cases := []struct {
		name          string
		s, k, tt, sig float64
		typ           OptionType
	}{
		{"expired", 100, 100, 0, 0.5, OptionCall},
		{"zero vol", 100, 100, 1, 0, OptionPut},
		{"zero spot", 0, 100, 1, 0.5, OptionCall},
		{"unknown type", 100, 100, 1, 0.5, OptionType("straddle")},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			assert.Equal(t, Greeks{}, OptionGreeks(tc.s, tc.k, tc.tt, 0.01, tc.sig, tc.typ))
		})
	}
}
