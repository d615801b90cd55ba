package core

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/web3guy0/hitwatch/feeds"
	"github.com/web3guy0/hitwatch/internal/feedtest"
	"github.com/web3guy0/hitwatch/types"
)

// minuteTicks writes one tick per minute from start, all at the given prices
func minuteTicks(feed *feedtest.MemoryFeed, symbol string, start time.Time, prices ...string) {
	for i, p := range prices {
		feed.AddTicks(symbol, quote(start.Add(time.Duration(i)*time.Minute), p))
	}
}

func buyRequest(start, end time.Time) ScanRequest {
	return ScanRequest{
		Symbol:     "EURUSD",
		Direction:  types.Buy,
		StopLoss:   dec("100"),
		TakeProfit: dec("110"),
		Start:      start,
		End:        end,
	}
}

func TestScanEmptySpan(t *testing.T) {
	feed := feedtest.NewMemoryFeed()
	s := NewTickScanner(feed, feeds.Fetcher{}, nil)
	at := ts(t, "2025-01-01T10:00:00Z")

	hit, stats, chunks, err := s.Scan(context.Background(), buyRequest(at, at))
	require.NoError(t, err)
	assert.Nil(t, hit)
	assert.Zero(t, chunks)
	assert.Equal(t, types.TickFetchStats{}, stats)
	assert.Empty(t, feed.TickCalls())
}

func TestScanChunkedMatchesSingleShot(t *testing.T) {
	start := ts(t, "2025-01-01T10:00:00Z")
	end := start.Add(30 * time.Minute)

	feed := feedtest.NewMemoryFeed()
	prices := make([]string, 30)
	for i := range prices {
		prices[i] = "105"
	}
	prices[17] = "110.5"
	prices[25] = "99"
	minuteTicks(feed, "EURUSD", start, prices...)

	single := NewTickScanner(feed, feeds.Fetcher{}, nil)
	hit1, _, chunks1, err := single.Scan(context.Background(), buyRequest(start, end))
	require.NoError(t, err)
	require.NotNil(t, hit1)
	assert.Equal(t, 1, chunks1)

	req := buyRequest(start, end)
	req.ChunkMinutes = 5
	hit2, stats2, chunks2, err := single.Scan(context.Background(), req)
	require.NoError(t, err)
	require.NotNil(t, hit2)

	assert.Equal(t, *hit1, *hit2)
	assert.Equal(t, types.TakeProfit, hit2.Kind)
	assert.Equal(t, start.Add(17*time.Minute), hit2.Time)
	assert.Equal(t, 4, chunks2)
	assert.True(t, stats2.EarlyStop)
}

func TestScanPagedMatchesRanged(t *testing.T) {
	start := ts(t, "2025-01-01T10:00:00Z")
	end := start.Add(20 * time.Minute)

	feed := feedtest.NewMemoryFeed()
	minuteTicks(feed, "EURUSD", start, "105", "104", "103", "106", "107", "102", "100", "111")

	ranged := NewTickScanner(feed, feeds.Fetcher{}, nil)
	paged := NewTickScanner(feed, feeds.Fetcher{PageSize: 2}, nil)

	hitR, _, _, err := ranged.Scan(context.Background(), buyRequest(start, end))
	require.NoError(t, err)
	hitP, statsP, _, err := paged.Scan(context.Background(), buyRequest(start, end))
	require.NoError(t, err)

	require.NotNil(t, hitR)
	require.NotNil(t, hitP)
	assert.Equal(t, *hitR, *hitP)
	assert.Equal(t, types.StopLoss, hitP.Kind)
	assert.Equal(t, start.Add(6*time.Minute), hitP.Time)

	// stopped on the page holding the hit
	assert.Equal(t, 4, statsP.Pages)
	assert.Equal(t, 8, statsP.TotalTicks)
	assert.True(t, statsP.EarlyStop)
	assert.Len(t, feed.PageCalls(), 4)
}

func TestFetchRangePagedEqualsRanged(t *testing.T) {
	start := ts(t, "2025-01-01T10:00:00Z")
	feed := feedtest.NewMemoryFeed()
	minuteTicks(feed, "EURUSD", start, "1", "2", "3", "4", "5", "6", "7")

	end := start.Add(5 * time.Minute)
	all, _, err := feeds.Fetcher{}.FetchRange(context.Background(), feed, "EURUSD", start, end)
	require.NoError(t, err)
	pagedAll, stats, err := feeds.Fetcher{PageSize: 4}.FetchRange(context.Background(), feed, "EURUSD", start, end)
	require.NoError(t, err)

	assert.Equal(t, all, pagedAll)
	assert.Len(t, pagedAll, 6)
	assert.Equal(t, 2, stats.Pages)
	assert.False(t, stats.EarlyStop)
}

func TestScanNoHit(t *testing.T) {
	start := ts(t, "2025-01-01T10:00:00Z")
	feed := feedtest.NewMemoryFeed()
	minuteTicks(feed, "EURUSD", start, "105", "106", "104")

	hit, stats, chunks, err := NewTickScanner(feed, feeds.Fetcher{}, nil).Scan(context.Background(), buyRequest(start, start.Add(10*time.Minute)))
	require.NoError(t, err)
	assert.Nil(t, hit)
	assert.Equal(t, 1, chunks)
	assert.Equal(t, 3, stats.TotalTicks)
	assert.False(t, stats.EarlyStop)
}

func TestScanFetchErrorIsConnectivity(t *testing.T) {
	start := ts(t, "2025-01-01T10:00:00Z")
	feed := feedtest.NewMemoryFeed()
	feed.FailTicksWith(func(string, time.Time, time.Time) error { return errors.New("socket closed") })

	_, _, _, err := NewTickScanner(feed, feeds.Fetcher{}, nil).Scan(context.Background(), buyRequest(start, start.Add(time.Minute)))
	require.Error(t, err)
	assert.ErrorIs(t, err, types.ErrConnectivity)
}

func TestScanAppliesOffset(t *testing.T) {
	start := ts(t, "2025-01-01T10:00:00Z")
	offset := OffsetTranslator{Hours: 2}

	feed := feedtest.NewMemoryFeed()
	// provider clock runs two hours ahead
	minuteTicks(feed, "EURUSD", offset.ToFeed(start), "105", "99")

	req := buyRequest(start, start.Add(5*time.Minute))
	req.Offset = offset
	hit, _, _, err := NewTickScanner(feed, feeds.Fetcher{}, nil).Scan(context.Background(), req)
	require.NoError(t, err)
	require.NotNil(t, hit)
	assert.Equal(t, start.Add(time.Minute), hit.Time)
	assert.Equal(t, offset.ToFeed(start), feed.TickCalls()[0].Start)
}

func TestEarliestHitCarriesLastSide(t *testing.T) {
	at := ts(t, "2025-01-01T10:00:00Z")
	ticks := []types.Tick{
		// nothing known yet
		{Time: at},
		{Time: at.Add(time.Second), Ask: price("1.2050")},
		{Time: at.Add(2 * time.Second), Bid: price("1.2010")},
		{Time: at.Add(3 * time.Second), Bid: price("1.2030")},
		// bid carried from the previous tick
		{Time: at.Add(4 * time.Second), Ask: price("1.1990")},
	}
	req := ScanRequest{Direction: types.Sell, StopLoss: dec("1.2100"), TakeProfit: dec("1.2000")}

	hit := EarliestHit(ticks, req)
	require.NotNil(t, hit)
	assert.Equal(t, types.TakeProfit, hit.Kind)
	assert.Equal(t, at.Add(4*time.Second), hit.Time)
	assert.True(t, dec("1.1990").Equal(hit.Price))

	// buy side sees the carried bid on the ask-only tick and never hits
	req = ScanRequest{Direction: types.Buy, StopLoss: dec("1.1900"), TakeProfit: dec("1.2040")}
	assert.Nil(t, EarliestHit(ticks, req))
}

func TestEarliestHitStopLossWinsTie(t *testing.T) {
	at := ts(t, "2025-01-01T10:00:00Z")
	// inverted levels: one bid satisfies both
	req := ScanRequest{Direction: types.Buy, StopLoss: dec("1.2"), TakeProfit: dec("1.1")}
	hit := EarliestHit([]types.Tick{quote(at, "1.15")}, req)
	require.NotNil(t, hit)
	assert.Equal(t, types.StopLoss, hit.Kind)
}

func TestEarliestHitAdverseExcursion(t *testing.T) {
	at := ts(t, "2025-01-01T10:00:00Z")
	req := ScanRequest{
		Direction:  types.Buy,
		StopLoss:   dec("95"),
		TakeProfit: dec("110"),
		EntryPrice: price("100"),
	}
	ticks := []types.Tick{
		quote(at, "101"),
		quote(at.Add(time.Second), "97"),
		quote(at.Add(2*time.Second), "104"),
		quote(at.Add(3*time.Second), "110"),
	}
	hit := EarliestHit(ticks, req)
	require.NotNil(t, hit)
	assert.Equal(t, types.TakeProfit, hit.Kind)
	assert.True(t, dec("97").Equal(hit.AdversePrice.Decimal))
	assert.True(t, dec("3").Equal(hit.AdverseMove.Decimal))
	assert.True(t, dec("0.3").Equal(hit.DrawdownRatio.Decimal))
}
