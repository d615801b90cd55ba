package core

import (
	"context"
	"time"

	"github.com/rs/zerolog/log"
	"github.com/shopspring/decimal"

	"github.com/web3guy0/hitwatch/feeds"
	"github.com/web3guy0/hitwatch/risk"
	"github.com/web3guy0/hitwatch/types"
)

// ═══════════════════════════════════════════════════════════════════════════════
// TICK SCANNER - Chunked tick fetch with first-hit short circuit
// ═══════════════════════════════════════════════════════════════════════════════

// ScanRequest describes one tick scan over [Start, End] in UTC
type ScanRequest struct {
	Symbol       string // provider symbol
	Direction    types.Direction
	StopLoss     decimal.Decimal
	TakeProfit   decimal.Decimal
	EntryPrice   decimal.NullDecimal
	Offset       OffsetTranslator
	Start        time.Time
	End          time.Time
	ChunkMinutes int
	Trace        bool
}

type TickScanner struct {
	session feeds.Session
	fetcher feeds.Fetcher
	tpsl    *risk.TPSLManager
}

// NewTickScanner creates a scanner over one session
func NewTickScanner(session feeds.Session, fetcher feeds.Fetcher, tpsl *risk.TPSLManager) *TickScanner {
	if tpsl == nil {
		tpsl = risk.NewTPSLManager()
	}
	return &TickScanner{session: session, fetcher: fetcher, tpsl: tpsl}
}

// Scan returns the earliest hit in the request span, the summed fetch stats
// and the number of chunks fetched. Fetch errors abort the scan.
func (s *TickScanner) Scan(ctx context.Context, req ScanRequest) (*types.Hit, types.TickFetchStats, int, error) {
	var stats types.TickFetchStats
	if !req.End.After(req.Start) {
		return nil, stats, 0, nil
	}

	step := req.End.Sub(req.Start)
	if req.ChunkMinutes > 0 {
		step = time.Duration(req.ChunkMinutes) * time.Minute
	}

	fetcher := s.fetcher
	fetcher.Trace = fetcher.Trace || req.Trace
	tracker := newHitTracker(req, s.tpsl)
	t0 := time.Now()
	chunks := 0

	for chunkStart := req.Start; chunkStart.Before(req.End); {
		chunkEnd := minTime(chunkStart.Add(step), req.End)
		from, to := req.Offset.ToFeed(chunkStart), req.Offset.ToFeed(chunkEnd)

		var hit *types.Hit
		cs, err := fetcher.Stream(ctx, s.session, req.Symbol, from, to, func(ticks []types.Tick) bool {
			hit = tracker.feed(ticks)
			return hit != nil
		})
		chunks++
		stats.Add(cs)
		if req.Trace {
			log.Debug().
				Str("symbol", req.Symbol).
				Time("from", chunkStart).
				Time("to", chunkEnd).
				Int("ticks", cs.TotalTicks).
				Int("pages", cs.Pages).
				Msg("chunk scanned")
		}
		if err != nil {
			stats.Elapsed = time.Since(t0)
			return nil, stats, chunks, err
		}
		if hit != nil {
			stats.EarlyStop = true
			stats.Elapsed = time.Since(t0)
			return hit, stats, chunks, nil
		}
		chunkStart = chunkEnd
	}

	stats.Elapsed = time.Since(t0)
	return nil, stats, chunks, nil
}

// EarliestHit returns the first tick touching SL or TP, SL first on ties
func EarliestHit(ticks []types.Tick, req ScanRequest) *types.Hit {
	return newHitTracker(req, risk.NewTPSLManager()).feed(ticks)
}

// hitTracker walks ticks in order and remembers the last seen bid and ask,
// so a tick quoting one side reuses the other side's previous value
type hitTracker struct {
	req     ScanRequest
	tpsl    *risk.TPSLManager
	lastBid decimal.NullDecimal
	lastAsk decimal.NullDecimal
	adverse decimal.NullDecimal
}

func newHitTracker(req ScanRequest, tpsl *risk.TPSLManager) *hitTracker {
	return &hitTracker{req: req, tpsl: tpsl, adverse: req.EntryPrice}
}

func (t *hitTracker) feed(ticks []types.Tick) *types.Hit {
	for _, tk := range ticks {
		if tk.Bid.Valid {
			t.lastBid = tk.Bid
		}
		if tk.Ask.Valid {
			t.lastAsk = tk.Ask
		}

		price := t.lastBid
		if t.req.Direction == types.Sell {
			price = t.lastAsk
		}
		if !price.Valid {
			continue
		}
		t.trackAdverse(price.Decimal)

		kind, ok := t.tpsl.CheckPrice(t.req.Direction, price.Decimal, t.req.StopLoss, t.req.TakeProfit)
		if !ok {
			continue
		}
		hit := &types.Hit{
			Kind:         kind,
			Time:         t.req.Offset.ToUTC(tk.Time),
			Price:        price.Decimal,
			AdversePrice: t.adverse,
		}
		t.fillDrawdown(hit)
		return hit
	}
	return nil
}

func (t *hitTracker) trackAdverse(price decimal.Decimal) {
	if !t.adverse.Valid {
		t.adverse = decimal.NewNullDecimal(price)
		return
	}
	if t.req.Direction == types.Buy {
		t.adverse.Decimal = decimal.Min(t.adverse.Decimal, price)
	} else {
		t.adverse.Decimal = decimal.Max(t.adverse.Decimal, price)
	}
}

// fillDrawdown needs the entry price; without it only AdversePrice is set
func (t *hitTracker) fillDrawdown(hit *types.Hit) {
	entry := t.req.EntryPrice
	if !entry.Valid || !t.adverse.Valid {
		return
	}
	var move, span decimal.Decimal
	if t.req.Direction == types.Buy {
		move = decimal.Max(decimal.Zero, entry.Decimal.Sub(t.adverse.Decimal))
		span = decimal.Max(decimal.Zero, t.req.TakeProfit.Sub(entry.Decimal))
	} else {
		move = decimal.Max(decimal.Zero, t.adverse.Decimal.Sub(entry.Decimal))
		span = decimal.Max(decimal.Zero, entry.Decimal.Sub(t.req.TakeProfit))
	}
	hit.AdverseMove = decimal.NewNullDecimal(move)
	if span.IsPositive() {
		hit.DrawdownRatio = decimal.NewNullDecimal(move.Div(span))
	}
}
