package feeds

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/shopspring/decimal"

	"github.com/web3guy0/hitwatch/types"
)

// ═══════════════════════════════════════════════════════════════════════════════
// FEED SESSION - What the hit engine needs from a market data provider
// ═══════════════════════════════════════════════════════════════════════════════
//
// All times passed in and returned are on the provider clock. The engine
// translates to and from UTC with the inferred offset.
//
// ═══════════════════════════════════════════════════════════════════════════════

// SymbolInfo is instrument metadata used for the spread guard and rounding
type SymbolInfo struct {
	Name   string
	Point  decimal.Decimal // minimum price increment
	Spread decimal.Decimal // current spread in points
	Digits int
}

// Session is one open connection to a feed
type Session interface {
	// ResolveSymbol maps a setup symbol to the provider's name
	ResolveSymbol(ctx context.Context, name string) (string, error)
	LatestTick(ctx context.Context, symbol string) (types.Tick, error)
	// FetchTicks returns every tick in [from, to] in chronological order
	FetchTicks(ctx context.Context, symbol string, from, to time.Time) ([]types.Tick, error)
	// FetchBars returns bars whose start lies in [from, to]
	FetchBars(ctx context.Context, symbol string, timeframe time.Duration, from, to time.Time) ([]types.RateBar, error)
	SymbolInfo(ctx context.Context, symbol string) (SymbolInfo, error)
	Close() error
}

// TickPager is implemented by sessions that can return ticks a page at a
// time starting at a point in time
type TickPager interface {
	FetchTicksPage(ctx context.Context, symbol string, from time.Time, limit int) ([]types.Tick, error)
}

// FixedOffset is implemented by sessions whose clock offset is known up
// front. The latest tick is then not used to infer one, so a stale feed
// cannot be mistaken for a shifted clock.
type FixedOffset interface {
	FixedOffsetHours() int
}

// ErrSymbolNotFound is returned when no provider symbol matches
var ErrSymbolNotFound = errors.New("symbol not found")

// Connectivity wraps err as a connectivity failure unless it already is one
func Connectivity(op string, err error) error {
	if err == nil {
		return nil
	}
	if errors.Is(err, types.ErrConnectivity) {
		return fmt.Errorf("%s: %w", op, err)
	}
	return fmt.Errorf("%s: %w: %w", op, types.ErrConnectivity, err)
}

// PickSymbol returns base when available, else the shortest available name
// that starts with base (suffixed broker symbols such as EURUSDm)
func PickSymbol(base string, available []string) (string, bool) {
	best := ""
	for _, name := range available {
		if name == base {
			return name, true
		}
		if !strings.HasPrefix(name, base) {
			continue
		}
		if best == "" || len(name) < len(best) || (len(name) == len(best) && name < best) {
			best = name
		}
	}
	return best, best != ""
}
