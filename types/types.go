package types

import (
	"fmt"
	"strings"
	"time"

	"github.com/shopspring/decimal"
)

// ═══════════════════════════════════════════════════════════════════════════════
// SHARED TYPES - Avoid import cycles
// ═══════════════════════════════════════════════════════════════════════════════

// Direction is the side of a setup
type Direction string

const (
	Buy  Direction = "buy"
	Sell Direction = "sell"
)

// ParseDirection accepts buy/sell in any case, plus long/short aliases
func ParseDirection(s string) (Direction, error) {
	switch strings.ToLower(strings.TrimSpace(s)) {
	case "buy", "long":
		return Buy, nil
	case "sell", "short":
		return Sell, nil
	}
	return "", fmt.Errorf("%w: unknown direction %q", ErrConfig, s)
}

// HitKind is the level that was touched first
type HitKind string

const (
	TakeProfit HitKind = "TP"
	StopLoss   HitKind = "SL"
)

// AssetClass drives the quiet-hours schedule
type AssetClass string

const (
	AssetCrypto  AssetClass = "crypto"
	AssetIndices AssetClass = "indices"
	AssetForex   AssetClass = "forex"
	AssetOther   AssetClass = "other"
)

// Setup is a directional trade idea anchored to an entry time
type Setup struct {
	ID         int64
	Symbol     string
	Direction  Direction
	StopLoss   decimal.Decimal
	TakeProfit decimal.Decimal
	EntryPrice decimal.NullDecimal
	AsOf       time.Time // UTC entry timestamp
}

// Validate reports a config error for setups that cannot be scanned
func (s Setup) Validate() error {
	if strings.TrimSpace(s.Symbol) == "" {
		return fmt.Errorf("%w: setup %d has no symbol", ErrConfig, s.ID)
	}
	if s.Direction != Buy && s.Direction != Sell {
		return fmt.Errorf("%w: setup %d has invalid direction %q", ErrConfig, s.ID, s.Direction)
	}
	if s.StopLoss.Sign() <= 0 {
		return fmt.Errorf("%w: setup %d has no stop-loss", ErrConfig, s.ID)
	}
	if s.TakeProfit.Sign() <= 0 {
		return fmt.Errorf("%w: setup %d has no take-profit", ErrConfig, s.ID)
	}
	if s.AsOf.IsZero() {
		return fmt.Errorf("%w: setup %d has no entry time", ErrConfig, s.ID)
	}
	return nil
}

// Hit is the earliest confirmed touch of SL or TP
type Hit struct {
	Kind  HitKind
	Time  time.Time // UTC
	Price decimal.Decimal

	// Worst price seen against the setup before the hit, among the ticks
	// of the scan that found it
	AdversePrice  decimal.NullDecimal
	AdverseMove   decimal.NullDecimal
	DrawdownRatio decimal.NullDecimal // adverse move / distance entry→tp
}

func (h Hit) String() string {
	return fmt.Sprintf("%s @ %s on %s", h.Kind, h.Price.String(), h.Time.UTC().Format(time.RFC3339Nano))
}

// Tick is a normalized bid/ask update. Time is on the provider clock.
type Tick struct {
	Time time.Time
	Bid  decimal.NullDecimal
	Ask  decimal.NullDecimal
}

// RateBar is a coarse [Start, End) period with its extremes
type RateBar struct {
	Start time.Time
	End   time.Time
	Low   decimal.Decimal
	High  decimal.Decimal
}

// TimeRange is a half-open UTC interval
type TimeRange struct {
	Start time.Time
	End   time.Time
}

// Empty reports whether the range covers no time
func (r TimeRange) Empty() bool {
	return !r.End.After(r.Start)
}

// CandidateWindow is a time range worth tick-scanning
type CandidateWindow struct {
	SetupID  int64
	Start    time.Time
	End      time.Time
	BarStart time.Time
	BarEnd   time.Time
}

// TickFetchStats are diagnostics for tick retrieval
type TickFetchStats struct {
	Pages      int
	TotalTicks int
	Elapsed    time.Duration
	Fetch      time.Duration
	EarlyStop  bool
}

// Add accumulates another fetch into s
func (s *TickFetchStats) Add(o TickFetchStats) {
	s.Pages += o.Pages
	s.TotalTicks += o.TotalTicks
	s.Elapsed += o.Elapsed
	s.Fetch += o.Fetch
	s.EarlyStop = s.EarlyStop || o.EarlyStop
}

// SetupFilter narrows which setups a pass loads. Zero values match all.
type SetupFilter struct {
	IDs     []int64
	Symbols []string
	Since   time.Time // inserted at or after, ignored when IDs is set
}

// WatchState is the persisted per-setup cursor
type WatchState struct {
	SetupID     int64
	LastChecked time.Time
}
