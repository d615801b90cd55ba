package core

import (
	"context"
	"strings"
	"sync"
	"time"
	"unicode"

	"github.com/rs/zerolog/log"
	"github.com/shopspring/decimal"

	"github.com/web3guy0/hitwatch/feeds"
	"github.com/web3guy0/hitwatch/risk"
	"github.com/web3guy0/hitwatch/types"
)

// ═══════════════════════════════════════════════════════════════════════════════
// SYMBOLS - Per-pass symbol metadata and asset classification
// ═══════════════════════════════════════════════════════════════════════════════

var cryptoTickers = []string{
	"BTC", "ETH", "XRP", "ADA", "SOL", "DOGE", "BNB", "DOT", "AVAX", "LINK", "LNK", "LTC",
	"BCH", "XLM", "TRX", "ETC", "UNI", "ATOM", "APT", "SHIB", "PEPE", "AVX", "DOG", "XTZ",
}

var indexKeywords = []string{
	"US30", "US100", "US500", "SP500", "SPX", "NDX", "NAS100", "USTEC", "DAX", "DE30", "DE40",
	"GER30", "GER40", "FTSE", "UK100", "CAC", "FCHI", "FR40", "JP225", "NIKKEI", "N225",
	"AUS200", "ASX200", "HK50", "HSI", "ES35", "IBEX", "IT40", "EU50", "STOXX",
}

var isoCurrencies = map[string]bool{
	"USD": true, "EUR": true, "JPY": true, "GBP": true, "AUD": true, "NZD": true, "CAD": true,
	"CHF": true, "NOK": true, "SEK": true, "DKK": true, "ZAR": true, "TRY": true, "MXN": true,
	"PLN": true, "CZK": true, "HUF": true, "CNH": true, "CNY": true, "HKD": true, "SGD": true,
}

var metals = map[string]bool{"XAU": true, "XAG": true, "XPT": true, "XPD": true}

func containsAny(s string, tokens []string) bool {
	for _, t := range tokens {
		if strings.Contains(s, t) {
			return true
		}
	}
	return false
}

// ClassifySymbol buckets a symbol for the quiet-hours schedule
func ClassifySymbol(symbol string) types.AssetClass {
	s := strings.ToUpper(strings.TrimSpace(symbol))
	if s == "" {
		return types.AssetOther
	}
	if containsAny(s, cryptoTickers) {
		return types.AssetCrypto
	}
	if containsAny(s, indexKeywords) {
		return types.AssetIndices
	}
	if len(s) >= 6 {
		base, quote := s[:3], s[3:6]
		if (isoCurrencies[base] || metals[base]) && isoCurrencies[quote] {
			return types.AssetForex
		}
	}
	for _, r := range s {
		if unicode.IsDigit(r) {
			return types.AssetIndices
		}
	}
	return types.AssetForex
}

// SymbolEntry is everything a pass learns about one setup symbol
type SymbolEntry struct {
	Requested string
	Resolved  string
	Class     types.AssetClass
	Offset    OffsetTranslator
	Info      feeds.SymbolInfo
	Guard     decimal.Decimal
	Err       error // resolution failure, cached so it is logged once
}

// RunContext caches symbol metadata for one pass over one session
type RunContext struct {
	mu      sync.RWMutex
	session feeds.Session
	now     time.Time
	entries map[string]*SymbolEntry
}

// NewRunContext creates the per-pass cache
func NewRunContext(session feeds.Session, now time.Time) *RunContext {
	return &RunContext{
		session: session,
		now:     now,
		entries: make(map[string]*SymbolEntry),
	}
}

func (rc *RunContext) Session() feeds.Session { return rc.session }

func (rc *RunContext) Now() time.Time { return rc.now }

// Symbol resolves a setup symbol once per pass
func (rc *RunContext) Symbol(ctx context.Context, name string) *SymbolEntry {
	rc.mu.RLock()
	e, ok := rc.entries[name]
	rc.mu.RUnlock()
	if ok {
		return e
	}

	e = rc.load(ctx, name)

	rc.mu.Lock()
	rc.entries[name] = e
	rc.mu.Unlock()
	return e
}

// Count returns how many symbols were touched this pass
func (rc *RunContext) Count() int {
	rc.mu.RLock()
	defer rc.mu.RUnlock()
	return len(rc.entries)
}

// offset prefers a session-declared offset over inference from the latest tick
func (rc *RunContext) offset(ctx context.Context, symbol string) OffsetTranslator {
	if fixed, ok := rc.session.(feeds.FixedOffset); ok {
		return OffsetTranslator{Hours: fixed.FixedOffsetHours()}
	}
	tk, err := rc.session.LatestTick(ctx, symbol)
	if err != nil {
		log.Debug().Err(err).Str("symbol", symbol).Msg("no latest tick, assuming offset 0")
		return OffsetTranslator{}
	}
	return InferOffset(tk.Time, rc.now)
}

func (rc *RunContext) load(ctx context.Context, name string) *SymbolEntry {
	e := &SymbolEntry{Requested: name, Class: ClassifySymbol(name)}

	resolved, err := rc.session.ResolveSymbol(ctx, name)
	if err != nil {
		e.Err = err
		log.Warn().Err(err).Str("symbol", name).Msg("⚠️ Symbol not resolved")
		return e
	}
	e.Resolved = resolved

	e.Offset = rc.offset(ctx, resolved)

	if info, err := rc.session.SymbolInfo(ctx, resolved); err != nil {
		log.Debug().Err(err).Str("symbol", resolved).Msg("no symbol info, guard disabled")
	} else {
		e.Info = info
		e.Guard = risk.SpreadGuard(info.Point, info.Spread)
	}

	log.Debug().
		Str("symbol", name).
		Str("resolved", resolved).
		Str("class", string(e.Class)).
		Int("offset_h", e.Offset.Hours).
		Str("guard", e.Guard.String()).
		Msg("symbol ready")
	return e
}
