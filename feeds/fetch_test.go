package feeds_test

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/web3guy0/hitwatch/feeds"
	"github.com/web3guy0/hitwatch/internal/feedtest"
	"github.com/web3guy0/hitwatch/types"
)

func memTick(at time.Time, bid string) types.Tick {
	p := decimal.NewNullDecimal(decimal.RequireFromString(bid))
	return types.Tick{Time: at, Bid: p, Ask: p}
}

func TestFetcherPagedEarlyStop(t *testing.T) {
	base := time.Date(2025, 1, 6, 10, 0, 0, 0, time.UTC)
	feed := feedtest.NewMemoryFeed()
	for i := 0; i < 6; i++ {
		feed.AddTicks("EURUSD", memTick(base.Add(time.Duration(i)*time.Second), "1.1"))
	}

	seen := 0
	stats, err := feeds.Fetcher{PageSize: 2}.Stream(context.Background(), feed, "EURUSD", base, base.Add(time.Minute), func(ticks []types.Tick) bool {
		seen += len(ticks)
		return seen >= 4
	})
	require.NoError(t, err)
	assert.True(t, stats.EarlyStop)
	assert.Equal(t, 2, stats.Pages)
	assert.Len(t, feed.PageCalls(), 2)
	assert.Equal(t, base.Add(time.Second+time.Millisecond), feed.PageCalls()[1])
}

func TestFetcherFallsBackToRanged(t *testing.T) {
	base := time.Date(2025, 1, 6, 10, 0, 0, 0, time.UTC)
	feed := feedtest.NewMemoryFeed()
	feed.AddTicks("EURUSD", memTick(base, "1.1"), memTick(base.Add(time.Second), "1.2"))

	ticks, stats, err := feeds.Fetcher{}.FetchRange(context.Background(), feed, "EURUSD", base, base.Add(time.Second))
	require.NoError(t, err)
	assert.Len(t, ticks, 2)
	assert.Equal(t, 1, stats.Pages)
	assert.Empty(t, feed.PageCalls())
	assert.Len(t, feed.TickCalls(), 1)
}

func TestFetcherErrorIsConnectivity(t *testing.T) {
	base := time.Date(2025, 1, 6, 10, 0, 0, 0, time.UTC)
	feed := feedtest.NewMemoryFeed()
	feed.FailTicksWith(func(string, time.Time, time.Time) error { return errors.New("boom") })

	_, _, err := feeds.Fetcher{PageSize: 10}.FetchRange(context.Background(), feed, "EURUSD", base, base.Add(time.Minute))
	assert.ErrorIs(t, err, types.ErrConnectivity)

	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	_, _, err = feeds.Fetcher{PageSize: 10}.FetchRange(ctx, feedtest.NewMemoryFeed(), "EURUSD", base, base.Add(time.Minute))
	assert.ErrorIs(t, err, context.Canceled)
}
