package feeds

import (
	"fmt"
	"math"
	"time"

	"github.com/rs/zerolog/log"
	"github.com/shopspring/decimal"

	"github.com/web3guy0/hitwatch/types"
)

// ═══════════════════════════════════════════════════════════════════════════════
// NORMALIZATION - Raw provider records to typed ticks and bars
// ═══════════════════════════════════════════════════════════════════════════════

// RawTick is a tick as providers hand it over. TimeMsc wins over Time.
type RawTick struct {
	TimeMsc int64    `json:"time_msc"`
	Time    int64    `json:"time,omitempty"` // epoch seconds
	Bid     *float64 `json:"bid,omitempty"`
	Ask     *float64 `json:"ask,omitempty"`
}

// RawBar is an OHLC record keyed by its start in epoch seconds
type RawBar struct {
	Time int64   `json:"time"`
	Low  float64 `json:"low"`
	High float64 `json:"high"`
}

func finite(v float64) bool {
	return !math.IsNaN(v) && !math.IsInf(v, 0)
}

func nullPrice(v *float64) decimal.NullDecimal {
	if v == nil || !finite(*v) {
		return decimal.NullDecimal{}
	}
	return decimal.NewNullDecimal(decimal.NewFromFloat(*v))
}

// NormalizeTick converts a raw tick. Missing or non-finite prices leave that
// side empty; a tick without any timestamp is an ErrData.
func NormalizeTick(raw RawTick) (types.Tick, error) {
	var ts time.Time
	switch {
	case raw.TimeMsc > 0:
		ts = time.UnixMilli(raw.TimeMsc).UTC()
	case raw.Time > 0:
		ts = time.Unix(raw.Time, 0).UTC()
	default:
		return types.Tick{}, fmt.Errorf("%w: tick without timestamp", types.ErrData)
	}
	return types.Tick{Time: ts, Bid: nullPrice(raw.Bid), Ask: nullPrice(raw.Ask)}, nil
}

// NormalizeTicks converts a batch, skipping malformed records
func NormalizeTicks(raws []RawTick) []types.Tick {
	out := make([]types.Tick, 0, len(raws))
	dropped := 0
	for _, r := range raws {
		tk, err := NormalizeTick(r)
		if err != nil {
			dropped++
			continue
		}
		out = append(out, tk)
	}
	if dropped > 0 {
		log.Debug().Int("dropped", dropped).Int("kept", len(out)).Msg("malformed ticks skipped")
	}
	return out
}

// NormalizeBar converts a raw bar spanning [time, time+timeframe)
func NormalizeBar(raw RawBar, timeframe time.Duration) (types.RateBar, error) {
	if timeframe <= 0 {
		return types.RateBar{}, fmt.Errorf("%w: bar timeframe %s", types.ErrData, timeframe)
	}
	if !finite(raw.Low) || !finite(raw.High) {
		return types.RateBar{}, fmt.Errorf("%w: non-finite bar at %d", types.ErrData, raw.Time)
	}
	if raw.Low > raw.High {
		return types.RateBar{}, fmt.Errorf("%w: bar low %v above high %v", types.ErrData, raw.Low, raw.High)
	}
	start := time.Unix(raw.Time, 0).UTC()
	return types.RateBar{
		Start: start,
		End:   start.Add(timeframe),
		Low:   decimal.NewFromFloat(raw.Low),
		High:  decimal.NewFromFloat(raw.High),
	}, nil
}

// NormalizeBars converts a batch, skipping malformed records
func NormalizeBars(raws []RawBar, timeframe time.Duration) []types.RateBar {
	out := make([]types.RateBar, 0, len(raws))
	for _, r := range raws {
		b, err := NormalizeBar(r, timeframe)
		if err != nil {
			log.Debug().Err(err).Msg("malformed bar skipped")
			continue
		}
		out = append(out, b)
	}
	return out
}
