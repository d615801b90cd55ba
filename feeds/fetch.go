package feeds

import (
	"context"
	"time"

	"github.com/rs/zerolog/log"

	"github.com/web3guy0/hitwatch/types"
)

// ═══════════════════════════════════════════════════════════════════════════════
// TICK FETCH - Paged forward-advance or single ranged call
// ═══════════════════════════════════════════════════════════════════════════════

// pageStep is how far past the last tick of a page the next page starts
const pageStep = time.Millisecond

// PageVisitor sees ticks in chronological order. Returning true stops the fetch.
type PageVisitor func(ticks []types.Tick) (stop bool)

// Fetcher pulls ticks in [from, to] from a session. When PageSize > 0 and
// the session implements TickPager, ticks arrive page by page; otherwise a
// single ranged call is made. Both produce the same sequence.
type Fetcher struct {
	PageSize int
	Trace    bool
}

// Stream feeds ticks to visit until the range is exhausted or visit stops it
func (f Fetcher) Stream(ctx context.Context, s Session, symbol string, from, to time.Time, visit PageVisitor) (types.TickFetchStats, error) {
	if pager, ok := s.(TickPager); ok && f.PageSize > 0 {
		return f.paged(ctx, pager, symbol, from, to, visit)
	}
	return f.ranged(ctx, s, symbol, from, to, visit)
}

// FetchRange collects every tick in [from, to]
func (f Fetcher) FetchRange(ctx context.Context, s Session, symbol string, from, to time.Time) ([]types.Tick, types.TickFetchStats, error) {
	var all []types.Tick
	stats, err := f.Stream(ctx, s, symbol, from, to, func(ticks []types.Tick) bool {
		all = append(all, ticks...)
		return false
	})
	return all, stats, err
}

func (f Fetcher) ranged(ctx context.Context, s Session, symbol string, from, to time.Time, visit PageVisitor) (types.TickFetchStats, error) {
	var stats types.TickFetchStats
	t0 := time.Now()

	ticks, err := s.FetchTicks(ctx, symbol, from, to)
	stats.Fetch = time.Since(t0)
	if err != nil {
		stats.Elapsed = time.Since(t0)
		return stats, Connectivity("fetch ticks "+symbol, err)
	}

	ticks = clipTicks(ticks, to)
	if len(ticks) > 0 {
		stats.Pages = 1
	}
	stats.TotalTicks = len(ticks)
	if f.Trace {
		log.Debug().Str("symbol", symbol).Int("ticks", len(ticks)).Dur("took", stats.Fetch).Msg("ticks-range")
	}
	if len(ticks) > 0 && visit(ticks) {
		stats.EarlyStop = true
	}
	stats.Elapsed = time.Since(t0)
	return stats, nil
}

func (f Fetcher) paged(ctx context.Context, pager TickPager, symbol string, from, to time.Time, visit PageVisitor) (types.TickFetchStats, error) {
	var stats types.TickFetchStats
	t0 := time.Now()
	cur := from

	for !cur.After(to) {
		if err := ctx.Err(); err != nil {
			stats.Elapsed = time.Since(t0)
			return stats, Connectivity("fetch ticks "+symbol, err)
		}

		callT0 := time.Now()
		page, err := pager.FetchTicksPage(ctx, symbol, cur, f.PageSize)
		callDt := time.Since(callT0)
		stats.Fetch += callDt
		if err != nil {
			stats.Elapsed = time.Since(t0)
			return stats, Connectivity("fetch tick page "+symbol, err)
		}
		if f.Trace {
			log.Debug().
				Str("symbol", symbol).
				Int("page", stats.Pages+1).
				Time("from", cur).
				Int("ticks", len(page)).
				Dur("took", callDt).
				Msg("ticks-page")
		}
		if len(page) == 0 {
			break
		}
		stats.Pages++

		next := page[len(page)-1].Time.Add(pageStep)
		page = clipTicks(page, to)
		stats.TotalTicks += len(page)
		if len(page) > 0 && visit(page) {
			stats.EarlyStop = true
			break
		}
		if !next.After(cur) {
			// provider returned nothing newer than the cursor
			break
		}
		cur = next
	}

	stats.Elapsed = time.Since(t0)
	return stats, nil
}

// clipTicks drops ticks stamped after to
func clipTicks(ticks []types.Tick, to time.Time) []types.Tick {
	if n := len(ticks); n == 0 || !ticks[n-1].Time.After(to) {
		return ticks
	}
	out := make([]types.Tick, 0, len(ticks))
	for _, tk := range ticks {
		if !tk.Time.After(to) {
			out = append(out, tk)
		}
	}
	return out
}
