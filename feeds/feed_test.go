package feeds

import (
	"errors"
	"math"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/web3guy0/hitwatch/types"
)

func TestPickSymbol(t *testing.T) {
	tests := []struct {
		name      string
		base      string
		available []string
		want      string
		ok        bool
	}{
		{"exact wins", "EURUSD", []string{"EURUSDm", "EURUSD"}, "EURUSD", true},
		{"shortest suffix", "EURUSD", []string{"EURUSD.pro", "EURUSDm"}, "EURUSDm", true},
		{"tie broken by name", "BTCUSD", []string{"BTCUSDT", "BTCUSDC"}, "BTCUSDC", true},
		{"no match", "GBPUSD", []string{"EURUSD"}, "", false},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, ok := PickSymbol(tt.base, tt.available)
			assert.Equal(t, tt.ok, ok)
			assert.Equal(t, tt.want, got)
		})
	}
}

func TestConnectivityWrapsOnce(t *testing.T) {
	assert.Nil(t, Connectivity("op", nil))

	base := errors.New("timeout")
	err := Connectivity("fetch", base)
	assert.ErrorIs(t, err, types.ErrConnectivity)
	assert.ErrorIs(t, err, base)

	twice := Connectivity("outer", err)
	assert.ErrorIs(t, twice, types.ErrConnectivity)
	assert.Equal(t, "outer: "+err.Error(), twice.Error())
}

func f64(v float64) *float64 { return &v }

func TestNormalizeTick(t *testing.T) {
	tk, err := NormalizeTick(RawTick{TimeMsc: 1736157600123, Time: 1, Bid: f64(1.1), Ask: f64(math.NaN())})
	require.NoError(t, err)
	assert.Equal(t, time.UnixMilli(1736157600123).UTC(), tk.Time)
	assert.True(t, tk.Bid.Valid)
	assert.False(t, tk.Ask.Valid)

	tk, err = NormalizeTick(RawTick{Time: 1736157600})
	require.NoError(t, err)
	assert.Equal(t, time.Unix(1736157600, 0).UTC(), tk.Time)

	_, err = NormalizeTick(RawTick{Bid: f64(1)})
	assert.ErrorIs(t, err, types.ErrData)

	ticks := NormalizeTicks([]RawTick{{TimeMsc: 1}, {}, {TimeMsc: 2, Ask: f64(math.Inf(1))}})
	assert.Len(t, ticks, 2)
}

func TestNormalizeBar(t *testing.T) {
	bar, err := NormalizeBar(RawBar{Time: 1736157600, Low: 1.1, High: 1.2}, time.Minute)
	require.NoError(t, err)
	assert.Equal(t, time.Unix(1736157660, 0).UTC(), bar.End)

	for _, raw := range []RawBar{
		{Time: 1, Low: 2, High: 1},
		{Time: 1, Low: math.NaN(), High: 1},
	} {
		_, err := NormalizeBar(raw, time.Minute)
		assert.ErrorIs(t, err, types.ErrData)
	}
	_, err = NormalizeBar(RawBar{Time: 1, Low: 1, High: 2}, 0)
	assert.ErrorIs(t, err, types.ErrData)

	assert.Len(t, NormalizeBars([]RawBar{{Time: 1, Low: 1, High: 2}, {Time: 2, Low: 3, High: 2}}, time.Minute), 1)
}
