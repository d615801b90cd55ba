package core

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"

	"github.com/web3guy0/hitwatch/types"
)

func TestInferOffset(t *testing.T) {
	now := ts(t, "2025-03-10T12:00:00Z")

	tests := []struct {
		name string
		tick time.Time
		want int
	}{
		{"in sync", now.Add(-3 * time.Second), 0},
		{"within tolerance", now.Add(9 * time.Minute), 0},
		{"three hours ahead", now.Add(3*time.Hour + 2*time.Second), 3},
		{"rounds to nearest hour", now.Add(2*time.Hour + 40*time.Minute), 3},
		{"behind", now.Add(-5 * time.Hour), -5},
		{"implausible", now.Add(14 * time.Hour), 0},
		{"stale feed", now.Add(-30 * time.Hour), 0},
		{"missing tick", time.Time{}, 0},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, InferOffset(tt.tick, now).Hours)
		})
	}
}

func TestOffsetRoundTrip(t *testing.T) {
	o := OffsetTranslator{Hours: 2}
	utc := ts(t, "2025-03-10T12:00:00Z")

	feed := o.ToFeed(utc)
	assert.Equal(t, ts(t, "2025-03-10T14:00:00Z"), feed.UTC())
	assert.Equal(t, utc, o.ToUTC(feed))

	bars := o.BarsToUTC([]types.RateBar{rateBar(feed, time.Minute, "1", "2")})
	assert.Equal(t, utc, bars[0].Start)
	assert.Equal(t, utc.Add(time.Minute), bars[0].End)
}
