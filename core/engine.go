package core

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/rs/zerolog/log"

	"github.com/web3guy0/hitwatch/feeds"
	"github.com/web3guy0/hitwatch/risk"
	"github.com/web3guy0/hitwatch/types"
)

// ═══════════════════════════════════════════════════════════════════════════════
// ENGINE - Central orchestrator
// ═══════════════════════════════════════════════════════════════════════════════
//
// Flow per pass:
//   Store → Session → Symbols → Bars → Evaluator → Store (hit + cursor) → Router
//
// ═══════════════════════════════════════════════════════════════════════════════

// Store is the durable state the engine reads and writes
type Store interface {
	LoadSetups(ctx context.Context, filter types.SetupFilter) ([]types.Setup, error)
	RecordedIDs(ctx context.Context, ids []int64) (map[int64]bool, error)
	LoadCursors(ctx context.Context, ids []int64) (map[int64]time.Time, error)
	SaveCursors(ctx context.Context, cursors map[int64]time.Time) error
	// RecordHitWithCursor writes the hit and the cursor atomically
	RecordHitWithCursor(ctx context.Context, setup types.Setup, hit types.Hit, cursor time.Time) error
}

// SessionFactory opens one feed session per pass
type SessionFactory func(ctx context.Context) (feeds.Session, error)

// EngineConfig tunes the polling loop
type EngineConfig struct {
	PollInterval time.Duration
	BarTimeframe time.Duration
	BarBacktrack time.Duration
	PageSize     int
	Evaluator    EvaluatorConfig
	Filter       types.SetupFilter
	SinceWindow  time.Duration // > 0 limits each pass to setups inserted within it
	TieBreak     risk.TieBreak
	DryRun       bool
	Trace        bool
}

// RunReport summarizes one pass
type RunReport struct {
	Now             time.Time
	Loaded          int
	AlreadyRecorded int
	Skipped         int // invalid setups
	Unresolved      int // symbol missing on the feed
	Checked         int
	Hits            int
	Ignored         int
	FailedWindows   int
	WriteErrors     int
	Windows         int
	ScanCalls       int
	Ticks           int
	Pages           int
	Elapsed         time.Duration
	Results         []Result
}

type Engine struct {
	mu sync.RWMutex

	// Components
	store     Store
	sessions  SessionFactory
	evaluator *HitEvaluator
	tpsl      *risk.TPSLManager
	router    *Router
	cfg       EngineConfig
	clock     func() time.Time

	// State
	running bool
	paused  bool
	stopCh  chan struct{}
	doneCh  chan struct{}

	// Stats
	passes     int
	totalHits  int
	lastReport *RunReport
}

// NewEngine creates a new hit-detection engine
func NewEngine(store Store, sessions SessionFactory, quiet QuietHoursFilter, cfg EngineConfig) *Engine {
	if cfg.PollInterval <= 0 {
		cfg.PollInterval = time.Minute
	}
	if cfg.BarTimeframe <= 0 {
		cfg.BarTimeframe = time.Minute
	}
	if cfg.BarBacktrack < 0 {
		cfg.BarBacktrack = 0
	}
	cfg.Evaluator.Trace = cfg.Evaluator.Trace || cfg.Trace

	tpsl := risk.NewTPSLManager().WithTieBreak(cfg.TieBreak)
	return &Engine{
		store:     store,
		sessions:  sessions,
		evaluator: NewHitEvaluator(quiet, tpsl, cfg.Evaluator),
		tpsl:      tpsl,
		router:    NewRouter(),
		cfg:       cfg,
		clock:     func() time.Time { return time.Now().UTC() },
	}
}

// SetClock overrides the UTC clock used for "now"
func (e *Engine) SetClock(clock func() time.Time) {
	e.clock = clock
}

// Router returns the notifier fan-out
func (e *Engine) Router() *Router {
	return e.router
}

// Start runs passes in the background until Stop
func (e *Engine) Start() {
	e.mu.Lock()
	if e.running {
		e.mu.Unlock()
		return
	}
	e.running = true
	e.stopCh = make(chan struct{})
	e.doneCh = make(chan struct{})
	e.mu.Unlock()

	go func() {
		defer close(e.doneCh)
		ctx, cancel := context.WithCancel(context.Background())
		defer cancel()
		go func() {
			<-e.stopCh
			cancel()
		}()
		e.Run(ctx)
	}()

	log.Info().Dur("interval", e.cfg.PollInterval).Msg("⚡ Engine started")
}

// Stop waits for the in-flight pass to finish
func (e *Engine) Stop() {
	e.mu.Lock()
	if !e.running {
		e.mu.Unlock()
		return
	}
	e.running = false
	close(e.stopCh)
	done := e.doneCh
	e.mu.Unlock()

	<-done
	log.Info().Msg("Engine stopped")
}

// Run repeats passes until ctx is cancelled. Cancellation is observed only
// between passes.
func (e *Engine) Run(ctx context.Context) {
	ticker := time.NewTicker(e.cfg.PollInterval)
	defer ticker.Stop()

	for {
		if e.IsPaused() {
			log.Debug().Msg("Engine paused, pass skipped")
		} else if _, err := e.RunOnce(context.WithoutCancel(ctx), e.clock()); err != nil {
			log.Error().Err(err).Msg("❌ Pass failed")
			e.router.RouteError(err)
		}

		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
		}
	}
}

// Pause skips passes until Resume; a pass in flight completes
func (e *Engine) Pause() {
	e.mu.Lock()
	e.paused = true
	e.mu.Unlock()
	log.Info().Msg("⏸️ Engine paused")
}

func (e *Engine) Resume() {
	e.mu.Lock()
	e.paused = false
	e.mu.Unlock()
	log.Info().Msg("▶️ Engine resumed")
}

func (e *Engine) IsPaused() bool {
	e.mu.RLock()
	defer e.mu.RUnlock()
	return e.paused
}

// passFilter applies the rolling since window relative to now
func (e *Engine) passFilter(now time.Time) types.SetupFilter {
	f := e.cfg.Filter
	if e.cfg.SinceWindow > 0 {
		f.Since = now.Add(-e.cfg.SinceWindow)
	}
	return f
}

// RunOnce performs a single pass over all pending setups
func (e *Engine) RunOnce(ctx context.Context, now time.Time) (RunReport, error) {
	t0 := time.Now()
	now = now.UTC()
	report := RunReport{Now: now}

	setups, err := e.store.LoadSetups(ctx, e.passFilter(now))
	if err != nil {
		return report, fmt.Errorf("load setups: %w", err)
	}
	report.Loaded = len(setups)

	pending, err := e.pendingSetups(ctx, setups, &report)
	if err != nil {
		return report, err
	}
	if len(pending) == 0 {
		report.Elapsed = time.Since(t0)
		e.finishPass(&report)
		return report, nil
	}

	session, err := e.sessions(ctx)
	if err != nil {
		return report, feeds.Connectivity("open session", err)
	}
	defer func() {
		if cerr := session.Close(); cerr != nil {
			log.Warn().Err(cerr).Msg("session close failed")
		}
	}()

	ids := make([]int64, len(pending))
	for i, s := range pending {
		ids[i] = s.ID
	}
	cursors, err := e.store.LoadCursors(ctx, ids)
	if err != nil {
		return report, fmt.Errorf("load cursors: %w", err)
	}

	rc := NewRunContext(session, now)
	scanner := NewTickScanner(session, feeds.Fetcher{PageSize: e.cfg.PageSize, Trace: e.cfg.Trace}, e.tpsl)
	advanced := make(map[int64]time.Time)

	for _, group := range groupBySymbol(pending) {
		entry := rc.Symbol(ctx, group.symbol)
		if entry.Err != nil {
			report.Unresolved += len(group.setups)
			continue
		}

		bars := e.loadBars(ctx, rc, entry, group.setups, cursors)

		for _, setup := range group.setups {
			res := e.evaluator.Evaluate(ctx, EvalInput{
				Setup:       setup,
				Symbol:      entry,
				Bars:        bars,
				LastChecked: cursors[setup.ID],
				Now:         now,
				Scanner:     scanner,
			})
			e.collect(&report, res)

			if res.Hit == nil {
				if res.LastChecked.After(cursors[setup.ID]) {
					advanced[setup.ID] = res.LastChecked
				}
				continue
			}
			e.handleHit(ctx, setup, *res.Hit, res.LastChecked, &report)
		}
	}

	if !e.cfg.DryRun && len(advanced) > 0 {
		if err := e.store.SaveCursors(ctx, advanced); err != nil {
			report.WriteErrors++
			log.Error().Err(err).Int("setups", len(advanced)).Msg("❌ Cursor save failed")
		}
	}

	report.Elapsed = time.Since(t0)
	e.finishPass(&report)
	return report, nil
}

// pendingSetups drops recorded and invalid setups
func (e *Engine) pendingSetups(ctx context.Context, setups []types.Setup, report *RunReport) ([]types.Setup, error) {
	if len(setups) == 0 {
		return nil, nil
	}
	ids := make([]int64, len(setups))
	for i, s := range setups {
		ids[i] = s.ID
	}
	recorded, err := e.store.RecordedIDs(ctx, ids)
	if err != nil {
		return nil, fmt.Errorf("load recorded ids: %w", err)
	}

	pending := make([]types.Setup, 0, len(setups))
	for _, s := range setups {
		if recorded[s.ID] {
			report.AlreadyRecorded++
			continue
		}
		if err := s.Validate(); err != nil {
			report.Skipped++
			log.Warn().Err(err).Int64("setup_id", s.ID).Msg("⚠️ Setup skipped")
			continue
		}
		pending = append(pending, s)
	}
	return pending, nil
}

// loadBars fetches one bar series covering every setup of the group
func (e *Engine) loadBars(ctx context.Context, rc *RunContext, entry *SymbolEntry, setups []types.Setup, cursors map[int64]time.Time) []types.RateBar {
	var from time.Time
	for _, s := range setups {
		c := maxTime(cursors[s.ID], s.AsOf)
		if from.IsZero() || c.Before(from) {
			from = c
		}
	}
	from = from.Add(-e.cfg.BarBacktrack)
	to := rc.Now().Add(e.cfg.BarTimeframe)
	if !to.After(from) {
		return nil
	}

	bars, err := rc.Session().FetchBars(ctx, entry.Resolved, e.cfg.BarTimeframe, entry.Offset.ToFeed(from), entry.Offset.ToFeed(to))
	if err != nil {
		log.Warn().Err(err).Str("symbol", entry.Resolved).Msg("⚠️ Bars unavailable, scanning ticks directly")
		return nil
	}
	return entry.Offset.BarsToUTC(bars)
}

func (e *Engine) collect(report *RunReport, res Result) {
	report.Checked++
	report.Windows += len(res.Windows)
	report.ScanCalls += res.ScanCalls
	report.FailedWindows += res.FailedWindows
	report.Ticks += res.Stats.TotalTicks
	report.Pages += res.Stats.Pages
	if res.IgnoredHit != nil {
		report.Ignored++
	}
	report.Results = append(report.Results, res)

	log.Debug().
		Int64("setup_id", res.SetupID).
		Str("state", string(res.State)).
		Int("windows", len(res.Windows)).
		Int("ticks", res.Stats.TotalTicks).
		Time("cursor", res.LastChecked).
		Dur("took", res.Elapsed).
		Msg("setup evaluated")
}

func (e *Engine) handleHit(ctx context.Context, setup types.Setup, hit types.Hit, cursor time.Time, report *RunReport) {
	report.Hits++
	evt := log.Info().
		Int64("setup_id", setup.ID).
		Str("symbol", setup.Symbol).
		Str("direction", string(setup.Direction)).
		Str("kind", string(hit.Kind)).
		Str("price", hit.Price.String()).
		Time("hit_at", hit.Time)

	if e.cfg.DryRun {
		evt.Msg("🎯 Hit found (dry run)")
		return
	}
	if err := e.store.RecordHitWithCursor(ctx, setup, hit, cursor); err != nil {
		report.WriteErrors++
		log.Error().Err(err).Int64("setup_id", setup.ID).Msg("❌ Hit write failed")
		return
	}
	evt.Msg("🎯 Hit recorded")

	e.mu.Lock()
	e.totalHits++
	e.mu.Unlock()
	e.router.Route(setup, hit)
}

func (e *Engine) finishPass(report *RunReport) {
	e.mu.Lock()
	e.passes++
	e.lastReport = report
	e.mu.Unlock()

	log.Info().
		Int("loaded", report.Loaded).
		Int("checked", report.Checked).
		Int("hits", report.Hits).
		Int("ignored", report.Ignored).
		Int("skipped", report.Skipped+report.Unresolved).
		Int("failed_windows", report.FailedWindows).
		Int("ticks", report.Ticks).
		Dur("took", report.Elapsed).
		Msg("📊 Pass complete")
}

// GetStats returns pass count, recorded hits and the last report
func (e *Engine) GetStats() (passes, hits int, last *RunReport) {
	e.mu.RLock()
	defer e.mu.RUnlock()
	return e.passes, e.totalHits, e.lastReport
}

type symbolGroup struct {
	symbol string
	setups []types.Setup
}

// groupBySymbol keeps first-seen order of symbols and setups
func groupBySymbol(setups []types.Setup) []symbolGroup {
	index := make(map[string]int)
	var groups []symbolGroup
	for _, s := range setups {
		i, ok := index[s.Symbol]
		if !ok {
			i = len(groups)
			index[s.Symbol] = i
			groups = append(groups, symbolGroup{symbol: s.Symbol})
		}
		groups[i].setups = append(groups[i].setups, s)
	}
	return groups
}
