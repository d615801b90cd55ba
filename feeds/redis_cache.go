package feeds

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"strconv"
	"strings"
	"time"

	"github.com/redis/go-redis/v9"
	"github.com/rs/zerolog/log"
	"github.com/shopspring/decimal"

	"github.com/web3guy0/hitwatch/types"
)

// ═══════════════════════════════════════════════════════════════════════════════
// REDIS TICK CACHE - Ticks recorded by the live recorder
// ═══════════════════════════════════════════════════════════════════════════════
//
// Layout:
//   {prefix}:ticks:{symbol}            sorted set, score = time_msc, member = JSON tick
//   {prefix}:state:last_tick:{symbol}  newest time_msc written
//   {prefix}:info:{symbol}             hash with point / spread / digits
//
// The cache holds no bars, so every active range is scanned tick by tick.
//
// ═══════════════════════════════════════════════════════════════════════════════

const DefaultRedisPrefix = "monitor"

// RedisTickStore reads and writes the tick cache
type RedisTickStore struct {
	rdb    *redis.Client
	prefix string
}

// NewRedisTickStore wraps an existing client. The client is owned by the caller.
func NewRedisTickStore(rdb *redis.Client, prefix string) *RedisTickStore {
	prefix = strings.TrimRight(prefix, ":")
	if prefix == "" {
		prefix = DefaultRedisPrefix
	}
	return &RedisTickStore{rdb: rdb, prefix: prefix}
}

// DialRedis parses url and pings the server
func DialRedis(ctx context.Context, url string) (*redis.Client, error) {
	opts, err := redis.ParseURL(url)
	if err != nil {
		return nil, fmt.Errorf("%w: redis url: %v", types.ErrConfig, err)
	}
	rdb := redis.NewClient(opts)
	if err := rdb.Ping(ctx).Err(); err != nil {
		_ = rdb.Close()
		return nil, Connectivity("redis ping", err)
	}
	return rdb, nil
}

func (r *RedisTickStore) ticksKey(symbol string) string {
	return r.prefix + ":ticks:" + symbol
}

func (r *RedisTickStore) lastTickKey(symbol string) string {
	return r.prefix + ":state:last_tick:" + symbol
}

func (r *RedisTickStore) infoKey(symbol string) string {
	return r.prefix + ":info:" + symbol
}

// Symbols lists every symbol with a tick set
func (r *RedisTickStore) Symbols(ctx context.Context) ([]string, error) {
	match := r.ticksKey("*")
	trim := len(r.ticksKey(""))

	var out []string
	var cursor uint64
	for {
		keys, next, err := r.rdb.Scan(ctx, cursor, match, 200).Result()
		if err != nil {
			return nil, Connectivity("redis scan", err)
		}
		for _, k := range keys {
			out = append(out, k[trim:])
		}
		if next == 0 {
			return out, nil
		}
		cursor = next
	}
}

func (r *RedisTickStore) ResolveSymbol(ctx context.Context, name string) (string, error) {
	symbols, err := r.Symbols(ctx)
	if err != nil {
		return "", err
	}
	if picked, ok := PickSymbol(name, symbols); ok {
		return picked, nil
	}
	return "", fmt.Errorf("%w: %s", ErrSymbolNotFound, name)
}

func (r *RedisTickStore) LatestTick(ctx context.Context, symbol string) (types.Tick, error) {
	res, err := r.rdb.ZRevRangeWithScores(ctx, r.ticksKey(symbol), 0, 0).Result()
	if err != nil {
		return types.Tick{}, Connectivity("redis latest "+symbol, err)
	}
	ticks := decodeTicks(res)
	if len(ticks) == 0 {
		return types.Tick{}, Connectivity("redis latest "+symbol, errors.New("no cached ticks"))
	}
	return ticks[0], nil
}

// FetchTicks returns cached ticks with time_msc in [from, to]
func (r *RedisTickStore) FetchTicks(ctx context.Context, symbol string, from, to time.Time) ([]types.Tick, error) {
	if to.Before(from) {
		return nil, nil
	}
	res, err := r.rdb.ZRangeByScoreWithScores(ctx, r.ticksKey(symbol), &redis.ZRangeBy{
		Min: strconv.FormatInt(from.UnixMilli(), 10),
		Max: strconv.FormatInt(to.UnixMilli(), 10),
	}).Result()
	if err != nil {
		return nil, Connectivity("redis ticks "+symbol, err)
	}
	return decodeTicks(res), nil
}

// FetchTicksPage returns up to limit ticks at or after from
func (r *RedisTickStore) FetchTicksPage(ctx context.Context, symbol string, from time.Time, limit int) ([]types.Tick, error) {
	res, err := r.rdb.ZRangeByScoreWithScores(ctx, r.ticksKey(symbol), &redis.ZRangeBy{
		Min:   strconv.FormatInt(from.UnixMilli(), 10),
		Max:   "+inf",
		Count: int64(limit),
	}).Result()
	if err != nil {
		return nil, Connectivity("redis tick page "+symbol, err)
	}
	return decodeTicks(res), nil
}

// FetchBars always returns no bars
func (r *RedisTickStore) FetchBars(context.Context, string, time.Duration, time.Time, time.Time) ([]types.RateBar, error) {
	return nil, nil
}

// SymbolInfo reads the optional info hash; a missing hash is not an error
func (r *RedisTickStore) SymbolInfo(ctx context.Context, symbol string) (SymbolInfo, error) {
	info := SymbolInfo{Name: symbol}
	fields, err := r.rdb.HGetAll(ctx, r.infoKey(symbol)).Result()
	if err != nil {
		return info, Connectivity("redis info "+symbol, err)
	}
	if v, err := decimal.NewFromString(fields["point"]); err == nil {
		info.Point = v
	}
	if v, err := decimal.NewFromString(fields["spread"]); err == nil {
		info.Spread = v
	}
	if v, err := strconv.Atoi(fields["digits"]); err == nil {
		info.Digits = v
	}
	return info, nil
}

// SetSymbolInfo stores instrument metadata for SymbolInfo
func (r *RedisTickStore) SetSymbolInfo(ctx context.Context, info SymbolInfo) error {
	return r.rdb.HSet(ctx, r.infoKey(info.Name),
		"point", info.Point.String(),
		"spread", info.Spread.String(),
		"digits", info.Digits,
	).Err()
}

func (r *RedisTickStore) Close() error { return nil }

// FixedOffsetHours is 0: the recorder stamps ticks in UTC
func (r *RedisTickStore) FixedOffsetHours() int { return 0 }

// Append writes ticks newer than minTime (NX, so replays are harmless), trims
// the set to retention behind the newest tick and bumps the last-tick marker.
// It returns the newest time written.
func (r *RedisTickStore) Append(ctx context.Context, symbol string, ticks []types.Tick, retention time.Duration) (time.Time, error) {
	if len(ticks) == 0 {
		return time.Time{}, nil
	}
	key := r.ticksKey(symbol)
	pipe := r.rdb.TxPipeline()

	var newest int64
	for _, tk := range ticks {
		ms := tk.Time.UnixMilli()
		payload, err := json.Marshal(rawFromTick(tk))
		if err != nil {
			return time.Time{}, err
		}
		pipe.ZAddNX(ctx, key, redis.Z{Score: float64(ms), Member: string(payload)})
		if ms > newest {
			newest = ms
		}
	}
	if retention > 0 {
		cutoff := newest - retention.Milliseconds()
		pipe.ZRemRangeByScore(ctx, key, "0", "("+strconv.FormatInt(cutoff, 10))
	}
	pipe.Set(ctx, r.lastTickKey(symbol), newest, 0)

	if _, err := pipe.Exec(ctx); err != nil {
		return time.Time{}, Connectivity("redis append "+symbol, err)
	}
	return time.UnixMilli(newest).UTC(), nil
}

// LastTickTime returns the marker written by Append
func (r *RedisTickStore) LastTickTime(ctx context.Context, symbol string) (time.Time, bool, error) {
	v, err := r.rdb.Get(ctx, r.lastTickKey(symbol)).Int64()
	if errors.Is(err, redis.Nil) {
		return time.Time{}, false, nil
	}
	if err != nil {
		return time.Time{}, false, Connectivity("redis last tick "+symbol, err)
	}
	return time.UnixMilli(v).UTC(), true, nil
}

func rawFromTick(tk types.Tick) RawTick {
	raw := RawTick{TimeMsc: tk.Time.UnixMilli()}
	if tk.Bid.Valid {
		f := tk.Bid.Decimal.InexactFloat64()
		raw.Bid = &f
	}
	if tk.Ask.Valid {
		f := tk.Ask.Decimal.InexactFloat64()
		raw.Ask = &f
	}
	return raw
}

// decodeTicks parses members; the score is authoritative for the time
func decodeTicks(res []redis.Z) []types.Tick {
	out := make([]types.Tick, 0, len(res))
	for _, z := range res {
		member, ok := z.Member.(string)
		if !ok {
			continue
		}
		var raw RawTick
		if err := json.Unmarshal([]byte(member), &raw); err != nil {
			log.Debug().Err(err).Msg("undecodable cached tick skipped")
			continue
		}
		raw.TimeMsc = int64(z.Score)
		tk, err := NormalizeTick(raw)
		if err != nil {
			continue
		}
		out = append(out, tk)
	}
	return out
}
