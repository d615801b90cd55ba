package feeds

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strconv"
	"strings"
	"sync"
	"time"

	"github.com/rs/zerolog/log"
	"github.com/shopspring/decimal"

	"github.com/web3guy0/hitwatch/types"
)

// ═══════════════════════════════════════════════════════════════════════════════
// BINANCE SESSION - REST ticks (aggTrades) and bars (klines)
// ═══════════════════════════════════════════════════════════════════════════════
//
// Aggregate trades stand in for quotes: bid and ask both carry the trade
// price. Binance timestamps are UTC so the session declares a fixed offset of 0.
//
// ═══════════════════════════════════════════════════════════════════════════════

const (
	BinanceAPIURL   = "https://api.binance.com"
	binanceMaxLimit = 1000
)

var klineIntervals = map[time.Duration]string{
	time.Minute:      "1m",
	3 * time.Minute:  "3m",
	5 * time.Minute:  "5m",
	15 * time.Minute: "15m",
	30 * time.Minute: "30m",
	time.Hour:        "1h",
	2 * time.Hour:    "2h",
	4 * time.Hour:    "4h",
	6 * time.Hour:    "6h",
	8 * time.Hour:    "8h",
	12 * time.Hour:   "12h",
	24 * time.Hour:   "1d",
}

// BinanceSession talks to the Binance spot REST API
type BinanceSession struct {
	restURL string
	client  *http.Client

	mu      sync.RWMutex
	symbols []string
	infos   map[string]SymbolInfo
}

// NewBinanceSession creates a session against restURL (BinanceAPIURL when empty)
func NewBinanceSession(restURL string) *BinanceSession {
	if restURL == "" {
		restURL = BinanceAPIURL
	}
	return &BinanceSession{
		restURL: strings.TrimRight(restURL, "/"),
		client:  &http.Client{Timeout: 15 * time.Second},
	}
}

func (b *BinanceSession) getJSON(ctx context.Context, path string, query url.Values, out any) error {
	u := b.restURL + path
	if len(query) > 0 {
		u += "?" + query.Encode()
	}
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, u, nil)
	if err != nil {
		return err
	}

	resp, err := b.client.Do(req)
	if err != nil {
		return Connectivity("binance "+path, err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		body, _ := io.ReadAll(io.LimitReader(resp.Body, 512))
		return Connectivity("binance "+path, fmt.Errorf("status %d: %s", resp.StatusCode, strings.TrimSpace(string(body))))
	}
	if err := json.NewDecoder(resp.Body).Decode(out); err != nil {
		return fmt.Errorf("%w: binance %s: %v", types.ErrData, path, err)
	}
	return nil
}

// loadExchangeInfo caches tradable symbols and their tick sizes
func (b *BinanceSession) loadExchangeInfo(ctx context.Context) error {
	b.mu.RLock()
	loaded := b.infos != nil
	b.mu.RUnlock()
	if loaded {
		return nil
	}

	var raw struct {
		Symbols []struct {
			Symbol  string `json:"symbol"`
			Status  string `json:"status"`
			Filters []struct {
				FilterType string `json:"filterType"`
				TickSize   string `json:"tickSize"`
			} `json:"filters"`
		} `json:"symbols"`
	}
	if err := b.getJSON(ctx, "/api/v3/exchangeInfo", nil, &raw); err != nil {
		return err
	}

	symbols := make([]string, 0, len(raw.Symbols))
	infos := make(map[string]SymbolInfo, len(raw.Symbols))
	for _, s := range raw.Symbols {
		if s.Status != "" && s.Status != "TRADING" {
			continue
		}
		info := SymbolInfo{Name: s.Symbol}
		for _, f := range s.Filters {
			if f.FilterType != "PRICE_FILTER" {
				continue
			}
			if tick, err := decimal.NewFromString(f.TickSize); err == nil && tick.Sign() > 0 {
				info.Point = tick
				info.Digits = decimalPlaces(tick)
			}
		}
		symbols = append(symbols, s.Symbol)
		infos[s.Symbol] = info
	}

	b.mu.Lock()
	b.symbols = symbols
	b.infos = infos
	b.mu.Unlock()

	log.Debug().Int("symbols", len(symbols)).Msg("Binance exchange info loaded")
	return nil
}

// decimalPlaces counts significant fraction digits; tickSize comes zero padded
func decimalPlaces(d decimal.Decimal) int {
	s := d.String()
	if i := strings.IndexByte(s, '.'); i >= 0 {
		return len(s) - i - 1
	}
	return 0
}

// ResolveSymbol prefers the exact name, then the USDT pair, then any prefix match
func (b *BinanceSession) ResolveSymbol(ctx context.Context, name string) (string, error) {
	if err := b.loadExchangeInfo(ctx); err != nil {
		return "", err
	}
	base := strings.ToUpper(strings.TrimSpace(name))

	b.mu.RLock()
	defer b.mu.RUnlock()
	for _, candidate := range []string{base, base + "T"} {
		if _, ok := b.infos[candidate]; ok {
			return candidate, nil
		}
	}
	if picked, ok := PickSymbol(base, b.symbols); ok {
		return picked, nil
	}
	return "", fmt.Errorf("%w: %s", ErrSymbolNotFound, name)
}

// LatestTick returns the current book top stamped with the server clock
func (b *BinanceSession) LatestTick(ctx context.Context, symbol string) (types.Tick, error) {
	var serverTime struct {
		ServerTime int64 `json:"serverTime"`
	}
	if err := b.getJSON(ctx, "/api/v3/time", nil, &serverTime); err != nil {
		return types.Tick{}, err
	}

	var book struct {
		BidPrice string `json:"bidPrice"`
		AskPrice string `json:"askPrice"`
	}
	if err := b.getJSON(ctx, "/api/v3/ticker/bookTicker", url.Values{"symbol": {symbol}}, &book); err != nil {
		return types.Tick{}, err
	}

	return types.Tick{
		Time: time.UnixMilli(serverTime.ServerTime).UTC(),
		Bid:  parseNullDecimal(book.BidPrice),
		Ask:  parseNullDecimal(book.AskPrice),
	}, nil
}

func parseNullDecimal(s string) decimal.NullDecimal {
	d, err := decimal.NewFromString(s)
	if err != nil {
		return decimal.NullDecimal{}
	}
	return decimal.NewNullDecimal(d)
}

type aggTrade struct {
	Price string `json:"p"`
	Time  int64  `json:"T"`
}

// FetchTicksPage returns up to limit trades at or after from
func (b *BinanceSession) FetchTicksPage(ctx context.Context, symbol string, from time.Time, limit int) ([]types.Tick, error) {
	if limit <= 0 || limit > binanceMaxLimit {
		limit = binanceMaxLimit
	}
	q := url.Values{
		"symbol":    {symbol},
		"startTime": {strconv.FormatInt(from.UnixMilli(), 10)},
		"limit":     {strconv.Itoa(limit)},
	}
	var raw []aggTrade
	if err := b.getJSON(ctx, "/api/v3/aggTrades", q, &raw); err != nil {
		return nil, err
	}

	ticks := make([]types.Tick, 0, len(raw))
	for _, t := range raw {
		price, err := decimal.NewFromString(t.Price)
		if err != nil || t.Time <= 0 {
			continue
		}
		p := decimal.NewNullDecimal(price)
		ticks = append(ticks, types.Tick{Time: time.UnixMilli(t.Time).UTC(), Bid: p, Ask: p})
	}
	return ticks, nil
}

// FetchTicks pages through aggTrades until to is passed
func (b *BinanceSession) FetchTicks(ctx context.Context, symbol string, from, to time.Time) ([]types.Tick, error) {
	var out []types.Tick
	cur := from
	for !cur.After(to) {
		page, err := b.FetchTicksPage(ctx, symbol, cur, binanceMaxLimit)
		if err != nil {
			return nil, err
		}
		if len(page) == 0 {
			break
		}
		next := page[len(page)-1].Time.Add(pageStep)
		out = append(out, clipTicks(page, to)...)
		if len(page) < binanceMaxLimit || !next.After(cur) {
			break
		}
		cur = next
	}
	return out, nil
}

// FetchBars returns klines whose open time lies in [from, to]
func (b *BinanceSession) FetchBars(ctx context.Context, symbol string, timeframe time.Duration, from, to time.Time) ([]types.RateBar, error) {
	interval, ok := klineIntervals[timeframe]
	if !ok {
		return nil, fmt.Errorf("%w: no kline interval for %s", types.ErrConfig, timeframe)
	}

	var bars []types.RateBar
	cur := from
	for !cur.After(to) {
		q := url.Values{
			"symbol":    {symbol},
			"interval":  {interval},
			"startTime": {strconv.FormatInt(cur.UnixMilli(), 10)},
			"endTime":   {strconv.FormatInt(to.UnixMilli(), 10)},
			"limit":     {strconv.Itoa(binanceMaxLimit)},
		}
		var raw [][]any
		if err := b.getJSON(ctx, "/api/v3/klines", q, &raw); err != nil {
			return nil, err
		}
		if len(raw) == 0 {
			break
		}

		var last time.Time
		for _, k := range raw {
			bar, err := parseKline(k, timeframe)
			if err != nil {
				log.Debug().Err(err).Str("symbol", symbol).Msg("kline skipped")
				continue
			}
			bars = append(bars, bar)
			last = bar.Start
		}
		if len(raw) < binanceMaxLimit || last.IsZero() {
			break
		}
		cur = last.Add(timeframe)
	}
	return bars, nil
}

func parseKline(k []any, timeframe time.Duration) (types.RateBar, error) {
	if len(k) < 5 {
		return types.RateBar{}, fmt.Errorf("%w: short kline", types.ErrData)
	}
	openTime, ok := k[0].(float64)
	if !ok {
		return types.RateBar{}, fmt.Errorf("%w: kline open time", types.ErrData)
	}
	highStr, _ := k[2].(string)
	lowStr, _ := k[3].(string)
	high, err := decimal.NewFromString(highStr)
	if err != nil {
		return types.RateBar{}, fmt.Errorf("%w: kline high %q", types.ErrData, highStr)
	}
	low, err := decimal.NewFromString(lowStr)
	if err != nil {
		return types.RateBar{}, fmt.Errorf("%w: kline low %q", types.ErrData, lowStr)
	}
	if low.GreaterThan(high) {
		return types.RateBar{}, fmt.Errorf("%w: kline low above high", types.ErrData)
	}
	start := time.UnixMilli(int64(openTime)).UTC()
	return types.RateBar{Start: start, End: start.Add(timeframe), Low: low, High: high}, nil
}

// SymbolInfo returns the PRICE_FILTER tick size as the point. Binance has no
// quoted spread so Spread stays zero and the guard uses its floor.
func (b *BinanceSession) SymbolInfo(ctx context.Context, symbol string) (SymbolInfo, error) {
	if err := b.loadExchangeInfo(ctx); err != nil {
		return SymbolInfo{}, err
	}
	b.mu.RLock()
	defer b.mu.RUnlock()
	info, ok := b.infos[symbol]
	if !ok {
		return SymbolInfo{}, fmt.Errorf("%w: %s", ErrSymbolNotFound, symbol)
	}
	return info, nil
}

// FixedOffsetHours is 0: Binance timestamps are UTC
func (b *BinanceSession) FixedOffsetHours() int { return 0 }

func (b *BinanceSession) Close() error {
	b.client.CloseIdleConnections()
	return nil
}
