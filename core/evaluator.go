package core

import (
	"context"
	"time"

	"github.com/rs/zerolog/log"
	"github.com/shopspring/decimal"

	"github.com/web3guy0/hitwatch/risk"
	"github.com/web3guy0/hitwatch/types"
)

// ═══════════════════════════════════════════════════════════════════════════════
// HIT EVALUATOR - One setup, one pass: bars → windows → ticks → cursor
// ═══════════════════════════════════════════════════════════════════════════════
//
// PENDING → SCANNING → HIT_FOUND | NO_HIT_ADVANCED
//
// ═══════════════════════════════════════════════════════════════════════════════

// EntryEpsilon discards hits stamped at or before as_of plus this. Scanning
// then resumes 1ms after the discarded tick inside the same window rather
// than abandoning the window, so a real touch later in it is still found.
const EntryEpsilon = time.Millisecond

// DefaultTickPadding widens candidate windows on both sides
const DefaultTickPadding = time.Second

type EvalState string

const (
	StatePending       EvalState = "PENDING"
	StateScanning      EvalState = "SCANNING"
	StateHitFound      EvalState = "HIT_FOUND"
	StateNoHitAdvanced EvalState = "NO_HIT_ADVANCED"
)

// EvaluatorConfig tunes window building and tick scanning
type EvaluatorConfig struct {
	TickPadding  time.Duration
	ChunkMinutes int
	Trace        bool
}

type HitEvaluator struct {
	quiet QuietHoursFilter
	tpsl  *risk.TPSLManager
	cfg   EvaluatorConfig
}

// NewHitEvaluator creates an evaluator. A nil filter disables quiet hours.
func NewHitEvaluator(quiet QuietHoursFilter, tpsl *risk.TPSLManager, cfg EvaluatorConfig) *HitEvaluator {
	if quiet == nil {
		quiet = NoQuietHours{}
	}
	if tpsl == nil {
		tpsl = risk.NewTPSLManager()
	}
	if cfg.TickPadding < 0 {
		cfg.TickPadding = 0
	}
	return &HitEvaluator{quiet: quiet, tpsl: tpsl, cfg: cfg}
}

// EvalInput is everything needed to evaluate one setup
type EvalInput struct {
	Setup       types.Setup
	Symbol      *SymbolEntry
	Bars        []types.RateBar // UTC bounds
	LastChecked time.Time       // zero when never checked
	Now         time.Time
	Scanner     *TickScanner
}

// Result is the outcome and diagnostics of one evaluation
type Result struct {
	SetupID       int64
	State         EvalState
	Hit           *types.Hit
	IgnoredHit    *types.Hit // touch at or before entry, discarded
	LastChecked   time.Time
	ActiveRanges  []types.TimeRange
	Windows       []types.CandidateWindow
	ScanCalls     int
	FailedWindows int
	Chunks        int
	Stats         types.TickFetchStats
	Elapsed       time.Duration
}

// Evaluate runs one pass for one setup. It never regresses the cursor.
func (e *HitEvaluator) Evaluate(ctx context.Context, in EvalInput) Result {
	t0 := time.Now()
	setup := in.Setup
	res := Result{SetupID: setup.ID, State: StatePending, LastChecked: in.LastChecked}

	cursor := maxTime(in.LastChecked, setup.AsOf)
	if !in.Now.After(cursor) {
		res.State = StateNoHitAdvanced
		res.LastChecked = maxTime(in.LastChecked, in.Now)
		res.Elapsed = time.Since(t0)
		return res
	}

	class := ClassifySymbol(setup.Symbol)
	if in.Symbol != nil {
		class = in.Symbol.Class
	}
	res.ActiveRanges = e.quiet.ActiveRanges(cursor, in.Now, class, setup.Symbol)
	res.State = StateScanning

	var hit *types.Hit
	if len(res.ActiveRanges) > 0 {
		res.Windows = e.buildWindows(in, res.ActiveRanges)
		hit = e.scanWindows(ctx, in, &res)
	}

	if hit != nil {
		res.Hit = hit
		res.State = StateHitFound
		res.LastChecked = maxTime(in.LastChecked, minTime(hit.Time, in.Now))
	} else {
		res.State = StateNoHitAdvanced
		res.LastChecked = maxTime(in.LastChecked, in.Now)
	}
	res.Elapsed = time.Since(t0)
	return res
}

// buildWindows turns flagged bars, plus any span of the range no bar covers,
// into padded windows, one merge per range
func (e *HitEvaluator) buildWindows(in EvalInput, ranges []types.TimeRange) []types.CandidateWindow {
	setup := in.Setup
	guard := decimal.Zero
	if in.Symbol != nil {
		guard = in.Symbol.Guard
	}
	span := types.TimeRange{Start: setup.AsOf, End: in.Now}

	var out []types.CandidateWindow
	for _, r := range ranges {
		bounds := intersect(r, span)
		if bounds.Empty() {
			continue
		}

		var candidates []types.CandidateWindow
		for _, b := range in.Bars {
			if !risk.BarCrossesPrice(b, setup.Direction, setup.StopLoss, setup.TakeProfit, guard) {
				continue
			}
			clip := intersect(types.TimeRange{Start: b.Start, End: b.End}, bounds)
			if clip.Empty() {
				continue
			}
			candidates = append(candidates, types.CandidateWindow{
				SetupID:  setup.ID,
				Start:    clip.Start,
				End:      clip.End,
				BarStart: b.Start,
				BarEnd:   b.End,
			})
		}

		// no bar data for these spans (missing or not yet formed): scan ticks
		for _, gap := range Uncovered(bounds, in.Bars) {
			candidates = append(candidates, types.CandidateWindow{
				SetupID: setup.ID,
				Start:   gap.Start,
				End:     gap.End,
			})
		}

		for _, w := range MergeWindows(candidates) {
			if padded, ok := PadWindow(w, e.cfg.TickPadding, bounds); ok {
				out = append(out, padded)
			}
		}
	}
	return out
}

// scanWindows scans in order and returns the first hit past the entry
func (e *HitEvaluator) scanWindows(ctx context.Context, in EvalInput, res *Result) *types.Hit {
	if in.Scanner == nil || len(res.Windows) == 0 {
		return nil
	}
	setup := in.Setup
	symbol := setup.Symbol
	offset := OffsetTranslator{}
	if in.Symbol != nil {
		if in.Symbol.Resolved != "" {
			symbol = in.Symbol.Resolved
		}
		offset = in.Symbol.Offset
	}
	entryCutoff := setup.AsOf.Add(EntryEpsilon)

	for _, w := range res.Windows {
		start := w.Start
		for start.Before(w.End) {
			req := ScanRequest{
				Symbol:       symbol,
				Direction:    setup.Direction,
				StopLoss:     setup.StopLoss,
				TakeProfit:   setup.TakeProfit,
				EntryPrice:   setup.EntryPrice,
				Offset:       offset,
				Start:        start,
				End:          w.End,
				ChunkMinutes: e.cfg.ChunkMinutes,
				Trace:        e.cfg.Trace,
			}
			hit, stats, chunks, err := in.Scanner.Scan(ctx, req)
			res.ScanCalls++
			res.Chunks += chunks
			res.Stats.Add(stats)

			if err != nil {
				res.FailedWindows++
				log.Warn().
					Err(err).
					Int64("setup_id", setup.ID).
					Str("symbol", symbol).
					Time("from", start).
					Time("to", w.End).
					Msg("⚠️ Window scan failed, advancing")
				break
			}
			if hit == nil {
				break
			}
			if !hit.Time.After(entryCutoff) {
				res.IgnoredHit = hit
				log.Debug().
					Int64("setup_id", setup.ID).
					Str("kind", string(hit.Kind)).
					Time("hit_at", hit.Time).
					Msg("hit at entry ignored")
				start = maxTime(hit.Time.Add(time.Millisecond), start.Add(time.Millisecond))
				continue
			}
			return hit
		}
	}
	return nil
}
