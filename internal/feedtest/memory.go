package feedtest

import (
	"context"
	"fmt"
	"sort"
	"sync"
	"time"

	"github.com/web3guy0/hitwatch/feeds"
	"github.com/web3guy0/hitwatch/types"
)

// ═══════════════════════════════════════════════════════════════════════════════
// MEMORY FEED - In-process session with call recording and fault injection
// ═══════════════════════════════════════════════════════════════════════════════

// MemoryFeed serves ticks and bars held in memory. Times are provider clock.
type MemoryFeed struct {
	mu sync.Mutex

	ticks  map[string][]types.Tick
	bars   map[string][]types.RateBar
	infos  map[string]feeds.SymbolInfo
	latest map[string]types.Tick

	// Optional failure injection per tick request
	failTicks func(symbol string, from, to time.Time) error
	failBars  error

	tickCalls []types.TimeRange
	pageCalls []time.Time
	barCalls  int
	closed    bool
}

var (
	_ feeds.Session   = (*MemoryFeed)(nil)
	_ feeds.TickPager = (*MemoryFeed)(nil)
)

// NewMemoryFeed creates an empty feed
func NewMemoryFeed() *MemoryFeed {
	return &MemoryFeed{
		ticks:  make(map[string][]types.Tick),
		bars:   make(map[string][]types.RateBar),
		infos:  make(map[string]feeds.SymbolInfo),
		latest: make(map[string]types.Tick),
	}
}

// AddTicks appends ticks and keeps the series chronological
func (m *MemoryFeed) AddTicks(symbol string, ticks ...types.Tick) {
	m.mu.Lock()
	defer m.mu.Unlock()
	series := append(m.ticks[symbol], ticks...)
	sort.SliceStable(series, func(i, j int) bool { return series[i].Time.Before(series[j].Time) })
	m.ticks[symbol] = series
}

// AddBars appends bars and keeps them ordered by start
func (m *MemoryFeed) AddBars(symbol string, bars ...types.RateBar) {
	m.mu.Lock()
	defer m.mu.Unlock()
	series := append(m.bars[symbol], bars...)
	sort.SliceStable(series, func(i, j int) bool { return series[i].Start.Before(series[j].Start) })
	m.bars[symbol] = series
}

func (m *MemoryFeed) SetSymbolInfo(info feeds.SymbolInfo) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.infos[info.Name] = info
}

// SetLatest overrides the tick returned by LatestTick
func (m *MemoryFeed) SetLatest(symbol string, tick types.Tick) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.latest[symbol] = tick
}

// FailTicksWith makes tick requests fail when fn returns an error
func (m *MemoryFeed) FailTicksWith(fn func(symbol string, from, to time.Time) error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.failTicks = fn
}

func (m *MemoryFeed) FailBarsWith(err error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.failBars = err
}

// TickCalls returns the ranged requests served so far
func (m *MemoryFeed) TickCalls() []types.TimeRange {
	m.mu.Lock()
	defer m.mu.Unlock()
	return append([]types.TimeRange(nil), m.tickCalls...)
}

// PageCalls returns the start of every page requested so far
func (m *MemoryFeed) PageCalls() []time.Time {
	m.mu.Lock()
	defer m.mu.Unlock()
	return append([]time.Time(nil), m.pageCalls...)
}

func (m *MemoryFeed) BarCalls() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.barCalls
}

func (m *MemoryFeed) Closed() bool {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.closed
}

func (m *MemoryFeed) ResolveSymbol(_ context.Context, name string) (string, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	known := make([]string, 0, len(m.ticks)+len(m.bars)+len(m.infos))
	for s := range m.ticks {
		known = append(known, s)
	}
	for s := range m.bars {
		known = append(known, s)
	}
	for s := range m.infos {
		known = append(known, s)
	}
	if sym, ok := feeds.PickSymbol(name, known); ok {
		return sym, nil
	}
	return "", fmt.Errorf("%w: %s", feeds.ErrSymbolNotFound, name)
}

func (m *MemoryFeed) LatestTick(_ context.Context, symbol string) (types.Tick, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if tk, ok := m.latest[symbol]; ok {
		return tk, nil
	}
	series := m.ticks[symbol]
	if len(series) == 0 {
		return types.Tick{}, fmt.Errorf("%w: no ticks for %s", types.ErrConnectivity, symbol)
	}
	return series[len(series)-1], nil
}

func (m *MemoryFeed) FetchTicks(_ context.Context, symbol string, from, to time.Time) ([]types.Tick, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.tickCalls = append(m.tickCalls, types.TimeRange{Start: from, End: to})
	if m.failTicks != nil {
		if err := m.failTicks(symbol, from, to); err != nil {
			return nil, err
		}
	}
	var out []types.Tick
	for _, tk := range m.ticks[symbol] {
		if tk.Time.Before(from) || tk.Time.After(to) {
			continue
		}
		out = append(out, tk)
	}
	return out, nil
}

func (m *MemoryFeed) FetchTicksPage(_ context.Context, symbol string, from time.Time, limit int) ([]types.Tick, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.pageCalls = append(m.pageCalls, from)
	if m.failTicks != nil {
		if err := m.failTicks(symbol, from, time.Time{}); err != nil {
			return nil, err
		}
	}
	var out []types.Tick
	for _, tk := range m.ticks[symbol] {
		if tk.Time.Before(from) {
			continue
		}
		out = append(out, tk)
		if limit > 0 && len(out) >= limit {
			break
		}
	}
	return out, nil
}

func (m *MemoryFeed) FetchBars(_ context.Context, symbol string, _ time.Duration, from, to time.Time) ([]types.RateBar, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.barCalls++
	if m.failBars != nil {
		return nil, m.failBars
	}
	var out []types.RateBar
	for _, b := range m.bars[symbol] {
		if b.Start.Before(from) || b.Start.After(to) {
			continue
		}
		out = append(out, b)
	}
	return out, nil
}

func (m *MemoryFeed) SymbolInfo(_ context.Context, symbol string) (feeds.SymbolInfo, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if info, ok := m.infos[symbol]; ok {
		return info, nil
	}
	return feeds.SymbolInfo{Name: symbol}, nil
}

func (m *MemoryFeed) Close() error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.closed = true
	return nil
}
