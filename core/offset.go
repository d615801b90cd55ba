package core

import (
	"math"
	"time"

	"github.com/web3guy0/hitwatch/types"
)

// ═══════════════════════════════════════════════════════════════════════════════
// CLOCK OFFSET - Provider clock vs UTC in whole hours
// ═══════════════════════════════════════════════════════════════════════════════

const (
	offsetTolerance = 10 * time.Minute
	maxOffsetHours  = 12
)

// OffsetTranslator maps UTC boundaries onto the provider clock and back
type OffsetTranslator struct {
	Hours int
}

// InferOffset guesses the provider offset from its latest tick. Anything
// ambiguous yields 0.
func InferOffset(latestTick, nowUTC time.Time) OffsetTranslator {
	if latestTick.IsZero() || nowUTC.IsZero() {
		return OffsetTranslator{}
	}
	diff := latestTick.Sub(nowUTC)
	if diff.Abs() <= offsetTolerance {
		return OffsetTranslator{}
	}
	est := int(math.Round(diff.Hours()))
	if est < -maxOffsetHours || est > maxOffsetHours {
		return OffsetTranslator{}
	}
	return OffsetTranslator{Hours: est}
}

func (o OffsetTranslator) shift() time.Duration {
	return time.Duration(o.Hours) * time.Hour
}

// ToFeed converts a UTC instant to the provider clock
func (o OffsetTranslator) ToFeed(t time.Time) time.Time {
	return t.Add(o.shift())
}

// ToUTC converts a provider timestamp to UTC
func (o OffsetTranslator) ToUTC(t time.Time) time.Time {
	return t.Add(-o.shift()).UTC()
}

// BarsToUTC returns copies of bars with UTC bounds
func (o OffsetTranslator) BarsToUTC(bars []types.RateBar) []types.RateBar {
	out := make([]types.RateBar, len(bars))
	for i, b := range bars {
		b.Start = o.ToUTC(b.Start)
		b.End = o.ToUTC(b.End)
		out[i] = b
	}
	return out
}
