package risk

import (
	"fmt"
	"strings"

	"github.com/shopspring/decimal"

	"github.com/web3guy0/hitwatch/types"
)

// ═══════════════════════════════════════════════════════════════════════════════
// TP/SL CHECKS - Tick triggers and bar pre-scan for exit levels
// ═══════════════════════════════════════════════════════════════════════════════

// TieBreak decides which level wins when one price satisfies both
type TieBreak int

const (
	// StopLossFirst is the conservative default
	StopLossFirst TieBreak = iota
	TakeProfitFirst
)

func (t TieBreak) String() string {
	if t == TakeProfitFirst {
		return "tp_first"
	}
	return "sl_first"
}

// ParseTieBreak accepts sl_first or tp_first
func ParseTieBreak(s string) (TieBreak, error) {
	switch strings.ToLower(strings.TrimSpace(s)) {
	case "", "sl_first", "sl":
		return StopLossFirst, nil
	case "tp_first", "tp":
		return TakeProfitFirst, nil
	}
	return StopLossFirst, fmt.Errorf("%w: tie break %q", types.ErrConfig, s)
}

var (
	minGuardPoints   = decimal.NewFromInt(5)
	spreadMultiplier = decimal.NewFromFloat(1.5)
)

type TPSLManager struct {
	tieBreak TieBreak
}

// NewTPSLManager creates a checker with the SL-first policy
func NewTPSLManager() *TPSLManager {
	return &TPSLManager{tieBreak: StopLossFirst}
}

// WithTieBreak returns a copy using the given policy
func (tm *TPSLManager) WithTieBreak(tb TieBreak) *TPSLManager {
	return &TPSLManager{tieBreak: tb}
}

func (tm *TPSLManager) TieBreak() TieBreak {
	return tm.tieBreak
}

// CheckPrice reports whether price touches SL or TP for the direction.
// Buy setups are fed the bid, sell setups the ask.
func (tm *TPSLManager) CheckPrice(dir types.Direction, price, sl, tp decimal.Decimal) (types.HitKind, bool) {
	var slHit, tpHit bool
	switch dir {
	case types.Buy:
		slHit = price.LessThanOrEqual(sl)
		tpHit = price.GreaterThanOrEqual(tp)
	case types.Sell:
		slHit = price.GreaterThanOrEqual(sl)
		tpHit = price.LessThanOrEqual(tp)
	default:
		return "", false
	}

	if slHit && tpHit {
		if tm.tieBreak == TakeProfitFirst {
			return types.TakeProfit, true
		}
		return types.StopLoss, true
	}
	if slHit {
		return types.StopLoss, true
	}
	if tpHit {
		return types.TakeProfit, true
	}
	return "", false
}

// BarCrossesPrice is the coarse filter. A false result guarantees the bar
// holds no touch of either level. Bounds are inclusive.
func BarCrossesPrice(bar types.RateBar, dir types.Direction, sl, tp, guard decimal.Decimal) bool {
	if guard.IsNegative() {
		guard = decimal.Zero
	}
	switch dir {
	case types.Buy:
		return bar.Low.LessThanOrEqual(sl.Add(guard)) || bar.High.GreaterThanOrEqual(tp.Sub(guard))
	case types.Sell:
		return bar.High.GreaterThanOrEqual(sl.Sub(guard)) || bar.Low.LessThanOrEqual(tp.Add(guard))
	}
	return false
}

// SpreadGuard = point * max(1.5 * spread, 5). Zero when point is unknown.
func SpreadGuard(point, spreadPoints decimal.Decimal) decimal.Decimal {
	if point.Sign() <= 0 {
		return decimal.Zero
	}
	points := decimal.Max(spreadPoints.Mul(spreadMultiplier), minGuardPoints)
	return point.Mul(points)
}
