package main

import (
	"context"
	"os"
	"os/signal"
	"syscall"

	"github.com/joho/godotenv"
	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"

	"github.com/web3guy0/hitwatch/feeds"
	"github.com/web3guy0/hitwatch/internal/config"
)

func main() {
	// Load environment
	if err := godotenv.Load(); err != nil {
		log.Warn().Msg("No .env file found")
	}

	// Setup logging
	zerolog.TimeFieldFormat = zerolog.TimeFormatUnix
	log.Logger = log.Output(zerolog.ConsoleWriter{Out: os.Stderr, TimeFormat: "15:04:05"})

	cfg, err := config.Load()
	if err != nil {
		log.Fatal().Err(err).Msg("Invalid configuration")
	}
	if cfg.Debug {
		zerolog.SetGlobalLevel(zerolog.DebugLevel)
	} else {
		zerolog.SetGlobalLevel(zerolog.InfoLevel)
	}
	if len(cfg.RecorderSymbols) == 0 {
		log.Fatal().Msg("RECORDER_SYMBOLS not set")
	}

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	rdb, err := feeds.DialRedis(ctx, cfg.RedisURL)
	if err != nil {
		log.Fatal().Err(err).Msg("Redis connection failed")
	}
	defer rdb.Close()
	store := feeds.NewRedisTickStore(rdb, cfg.RedisPrefix)

	// Seed instrument metadata so the spread guard has a point size
	rest := feeds.NewBinanceSession(cfg.BinanceAPIURL)
	symbols := make([]string, 0, len(cfg.RecorderSymbols))
	for _, name := range cfg.RecorderSymbols {
		symbol, err := rest.ResolveSymbol(ctx, name)
		if err != nil {
			log.Warn().Err(err).Str("symbol", name).Msg("Symbol info not seeded")
			symbols = append(symbols, name)
			continue
		}
		symbols = append(symbols, symbol)
		info, err := rest.SymbolInfo(ctx, symbol)
		if err == nil {
			err = store.SetSymbolInfo(ctx, info)
		}
		if err != nil {
			log.Warn().Err(err).Str("symbol", symbol).Msg("Symbol info not seeded")
		}
	}
	rest.Close()

	recorder := feeds.NewRecorder(symbols, store, feeds.RecorderConfig{
		StreamURL:     cfg.BinanceStreamURL,
		Retention:     cfg.RecorderRetention,
		FlushInterval: cfg.RecorderFlush,
	})
	recorder.Start(ctx)

	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, syscall.SIGINT, syscall.SIGTERM)
	<-sigCh

	log.Info().Msg("🛑 Shutting down...")
	recorder.Stop()
	log.Info().Msg("👋 Goodbye!")
}
