package feeds

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strconv"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/web3guy0/hitwatch/types"
)

var testTrades = []aggTrade{
	{Price: "65000.10", Time: 1736157600000},
	{Price: "65001.00", Time: 1736157601000},
	{Price: "64990.50", Time: 1736157602500},
	{Price: "64980.00", Time: 1736157605000},
}

func newBinanceServer(t *testing.T) *httptest.Server {
	t.Helper()
	mux := http.NewServeMux()
	mux.HandleFunc("/api/v3/exchangeInfo", func(w http.ResponseWriter, _ *http.Request) {
		_, _ = w.Write([]byte(`{"symbols":[
			{"symbol":"BTCUSDC","status":"TRADING","filters":[{"filterType":"PRICE_FILTER","tickSize":"0.01000000"}]},
			{"symbol":"BTCUSDT","status":"TRADING","filters":[{"filterType":"LOT_SIZE"},{"filterType":"PRICE_FILTER","tickSize":"0.01000000"}]},
			{"symbol":"ETHBTC","status":"BREAK","filters":[]}
		]}`))
	})
	mux.HandleFunc("/api/v3/time", func(w http.ResponseWriter, _ *http.Request) {
		_, _ = w.Write([]byte(`{"serverTime":1736161200000}`))
	})
	mux.HandleFunc("/api/v3/ticker/bookTicker", func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Query().Get("symbol") != "BTCUSDT" {
			http.Error(w, `{"code":-1121,"msg":"Invalid symbol."}`, http.StatusBadRequest)
			return
		}
		_, _ = w.Write([]byte(`{"symbol":"BTCUSDT","bidPrice":"64999.99","askPrice":"65000.01"}`))
	})
	mux.HandleFunc("/api/v3/aggTrades", func(w http.ResponseWriter, r *http.Request) {
		start, _ := strconv.ParseInt(r.URL.Query().Get("startTime"), 10, 64)
		limit, _ := strconv.Atoi(r.URL.Query().Get("limit"))
		out := []aggTrade{}
		for _, tr := range testTrades {
			if tr.Time >= start && len(out) < limit {
				out = append(out, tr)
			}
		}
		_ = json.NewEncoder(w).Encode(out)
	})
	mux.HandleFunc("/api/v3/klines", func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "1m", r.URL.Query().Get("interval"))
		_, _ = w.Write([]byte(`[
			[1736157600000,"65000.1","65010.0","64990.0","65005.0","1.2",1736157659999],
			[1736157660000,"65005.0","65020.0","bad","65015.0","0.7",1736157719999],
			[1736157720000,"65015.0","65030.0","65001.0","65025.0","0.9",1736157779999]
		]`))
	})
	srv := httptest.NewServer(mux)
	t.Cleanup(srv.Close)
	return srv
}

func TestBinanceResolveSymbol(t *testing.T) {
	s := NewBinanceSession(newBinanceServer(t).URL)
	ctx := context.Background()

	got, err := s.ResolveSymbol(ctx, "btcusd")
	require.NoError(t, err)
	assert.Equal(t, "BTCUSDT", got)

	_, err = s.ResolveSymbol(ctx, "ETHBTC")
	assert.ErrorIs(t, err, ErrSymbolNotFound)

	info, err := s.SymbolInfo(ctx, "BTCUSDT")
	require.NoError(t, err)
	assert.Equal(t, "0.01", info.Point.String())
	assert.Equal(t, 2, info.Digits)
}

func TestBinanceLatestTick(t *testing.T) {
	s := NewBinanceSession(newBinanceServer(t).URL)

	tick, err := s.LatestTick(context.Background(), "BTCUSDT")
	require.NoError(t, err)
	assert.Equal(t, time.UnixMilli(1736161200000).UTC(), tick.Time)
	assert.Equal(t, "64999.99", tick.Bid.Decimal.String())
	assert.Equal(t, "65000.01", tick.Ask.Decimal.String())

	_, err = s.LatestTick(context.Background(), "NOPE")
	assert.ErrorIs(t, err, types.ErrConnectivity)
}

func TestBinanceTicksPagedMatchesRanged(t *testing.T) {
	s := NewBinanceSession(newBinanceServer(t).URL)
	ctx := context.Background()
	from := time.UnixMilli(1736157600000).UTC()
	to := time.UnixMilli(1736157602500).UTC()

	ranged, err := s.FetchTicks(ctx, "BTCUSDT", from, to)
	require.NoError(t, err)
	require.Len(t, ranged, 3)
	assert.True(t, ranged[0].Bid.Decimal.Equal(ranged[0].Ask.Decimal))

	paged, stats, err := Fetcher{PageSize: 2}.FetchRange(ctx, s, "BTCUSDT", from, to)
	require.NoError(t, err)
	assert.Equal(t, ranged, paged)
	assert.Equal(t, 3, stats.TotalTicks)
}

func TestBinanceFetchBars(t *testing.T) {
	s := NewBinanceSession(newBinanceServer(t).URL)
	from := time.UnixMilli(1736157600000).UTC()

	bars, err := s.FetchBars(context.Background(), "BTCUSDT", time.Minute, from, from.Add(3*time.Minute))
	require.NoError(t, err)
	// malformed middle kline dropped
	require.Len(t, bars, 2)
	assert.Equal(t, from, bars[0].Start)
	assert.Equal(t, from.Add(time.Minute), bars[0].End)
	assert.Equal(t, "64990", bars[0].Low.String())

	_, err = s.FetchBars(context.Background(), "BTCUSDT", 7*time.Minute, from, from.Add(time.Hour))
	assert.ErrorIs(t, err, types.ErrConfig)
}

func TestBinanceServerDown(t *testing.T) {
	srv := newBinanceServer(t)
	url := srv.URL
	srv.Close()

	_, err := NewBinanceSession(url).ResolveSymbol(context.Background(), "BTCUSD")
	assert.ErrorIs(t, err, types.ErrConnectivity)
}
