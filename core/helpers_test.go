package core

import (
	"testing"
	"time"

	"github.com/shopspring/decimal"

	"github.com/web3guy0/hitwatch/types"
)

func ts(t *testing.T, s string) time.Time {
	t.Helper()
	v, err := time.Parse(time.RFC3339Nano, s)
	if err != nil {
		t.Fatalf("bad time %q: %v", s, err)
	}
	return v.UTC()
}

func dec(v string) decimal.Decimal {
	return decimal.RequireFromString(v)
}

func price(v string) decimal.NullDecimal {
	return decimal.NewNullDecimal(decimal.RequireFromString(v))
}

// quote builds a tick with both sides set to the same price
func quote(at time.Time, v string) types.Tick {
	return types.Tick{Time: at, Bid: price(v), Ask: price(v)}
}

func buySetup(id int64, symbol string, asOf time.Time) types.Setup {
	return types.Setup{
		ID:         id,
		Symbol:     symbol,
		Direction:  types.Buy,
		StopLoss:   dec("100"),
		TakeProfit: dec("110"),
		AsOf:       asOf,
	}
}

func rateBar(start time.Time, span time.Duration, low, high string) types.RateBar {
	return types.RateBar{Start: start, End: start.Add(span), Low: dec(low), High: dec(high)}
}
