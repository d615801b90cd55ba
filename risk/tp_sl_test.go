package risk

import (
	"testing"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/web3guy0/hitwatch/types"
)

func d(v string) decimal.Decimal {
	return decimal.RequireFromString(v)
}

func bar(low, high string) types.RateBar {
	return types.RateBar{Low: d(low), High: d(high)}
}

func TestBarCrossesPrice(t *testing.T) {
	tests := []struct {
		name   string
		dir    types.Direction
		sl, tp string
		low    string
		high   string
		guard  string
		want   bool
	}{
		{"buy flat between levels", types.Buy, "11860", "11960", "11880", "11940", "0", false},
		{"buy gap above tp", types.Buy, "11860", "11960", "11970", "11980", "0", true},
		{"buy gap below sl", types.Buy, "11860", "11960", "11820", "11840", "0", true},
		{"buy low equals sl", types.Buy, "11860", "11960", "11860", "11900", "0", true},
		{"buy high equals tp", types.Buy, "11860", "11960", "11900", "11960", "0", true},
		{"sell flat between levels", types.Sell, "12010", "11960", "11970", "12000", "0", false},
		{"sell gap below tp", types.Sell, "12010", "11960", "11930", "11940", "0", true},
		{"sell gap above sl", types.Sell, "12010", "11960", "12020", "12040", "0", true},
		{"sell high equals sl", types.Sell, "12010", "11960", "11990", "12010", "0", true},
		{"buy guard widens sl side", types.Buy, "11860", "11960", "11865", "11900", "5", true},
		{"sell guard widens tp side", types.Sell, "12010", "11960", "11965", "12000", "5", true},
		{"negative guard treated as zero", types.Buy, "11860", "11960", "11865", "11900", "-10", false},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got := BarCrossesPrice(bar(tt.low, tt.high), tt.dir, d(tt.sl), d(tt.tp), d(tt.guard))
			assert.Equal(t, tt.want, got)
		})
	}
}

func TestCheckPrice(t *testing.T) {
	tm := NewTPSLManager()

	kind, ok := tm.CheckPrice(types.Buy, d("1.0990"), d("1.1000"), d("1.1100"))
	assert.True(t, ok)
	assert.Equal(t, types.StopLoss, kind)

	kind, ok = tm.CheckPrice(types.Buy, d("1.1100"), d("1.1000"), d("1.1100"))
	assert.True(t, ok)
	assert.Equal(t, types.TakeProfit, kind)

	_, ok = tm.CheckPrice(types.Buy, d("1.1050"), d("1.1000"), d("1.1100"))
	assert.False(t, ok)

	kind, ok = tm.CheckPrice(types.Sell, d("1.1000"), d("1.1000"), d("1.0900"))
	assert.True(t, ok)
	assert.Equal(t, types.StopLoss, kind)

	kind, ok = tm.CheckPrice(types.Sell, d("1.0850"), d("1.1000"), d("1.0900"))
	assert.True(t, ok)
	assert.Equal(t, types.TakeProfit, kind)
}

func TestCheckPriceTieBreak(t *testing.T) {
	// inverted levels so one price satisfies both
	sl, tp := d("1.2000"), d("1.1000")

	kind, ok := NewTPSLManager().CheckPrice(types.Buy, d("1.1500"), sl, tp)
	assert.True(t, ok)
	assert.Equal(t, types.StopLoss, kind)

	tm := NewTPSLManager().WithTieBreak(TakeProfitFirst)
	kind, ok = tm.CheckPrice(types.Buy, d("1.1500"), sl, tp)
	assert.True(t, ok)
	assert.Equal(t, types.TakeProfit, kind)
	assert.Equal(t, "tp_first", tm.TieBreak().String())
}

func TestSpreadGuard(t *testing.T) {
	assert.True(t, SpreadGuard(d("0"), d("20")).IsZero())
	assert.True(t, SpreadGuard(d("-0.1"), d("20")).IsZero())
	// 1.5 * 2 = 3 < 5 points
	assert.True(t, d("0.00005").Equal(SpreadGuard(d("0.00001"), d("2"))))
	// 1.5 * 20 = 30 points
	assert.True(t, d("0.0003").Equal(SpreadGuard(d("0.00001"), d("20"))))
}

func TestParseTieBreak(t *testing.T) {
	tb, err := ParseTieBreak("TP_FIRST")
	require.NoError(t, err)
	assert.Equal(t, TakeProfitFirst, tb)

	tb, err = ParseTieBreak("")
	require.NoError(t, err)
	assert.Equal(t, StopLossFirst, tb)

	_, err = ParseTieBreak("coin_flip")
	assert.ErrorIs(t, err, types.ErrConfig)
}
