package main

import (
	"context"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/joho/godotenv"
	"github.com/redis/go-redis/v9"
	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"

	"github.com/web3guy0/hitwatch/bot"
	"github.com/web3guy0/hitwatch/core"
	"github.com/web3guy0/hitwatch/feeds"
	"github.com/web3guy0/hitwatch/internal/config"
	"github.com/web3guy0/hitwatch/storage"
)

func main() {
	// ═══════════════════════════════════════════════════════════════════════════════
	// BOOTSTRAP
	// ═══════════════════════════════════════════════════════════════════════════════

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

	log.Info().Msg("═══════════════════════════════════════════════════════════════")
	log.Info().Msg("              HITWATCH - TP/SL HIT DETECTION")
	log.Info().Msg("═══════════════════════════════════════════════════════════════")

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	// ═══════════════════════════════════════════════════════════════════════════════
	// INITIALIZE COMPONENTS
	// ═══════════════════════════════════════════════════════════════════════════════

	// 1. Storage
	db, err := storage.New(cfg.DatabasePath)
	if err != nil {
		log.Fatal().Err(err).Msg("Database connection failed")
	}
	defer db.Close()
	log.Info().Msg("✅ Storage layer initialized")

	// 2. Feed sessions
	sessions, rdb, err := sessionFactory(ctx, cfg)
	if err != nil {
		log.Fatal().Err(err).Msg("Failed to initialize feed")
	}
	if rdb != nil {
		defer rdb.Close()
	}
	log.Info().Str("feed", cfg.Feed).Msg("✅ Feed initialized")

	// 3. Quiet hours
	quiet, err := cfg.QuietFilter()
	if err != nil {
		log.Fatal().Err(err).Msg("Invalid quiet hours")
	}

	// 4. Core engine
	engine := core.NewEngine(db, sessions, quiet, cfg.EngineConfig())
	log.Info().Msg("✅ Core engine initialized")

	// 5. Telegram (optional)
	var tg *bot.TelegramBot
	if cfg.TelegramToken != "" {
		tg, err = bot.NewTelegramBot(cfg.TelegramToken, cfg.TelegramChatID, engine, db)
		if err != nil {
			log.Warn().Err(err).Msg("Telegram disabled")
		} else {
			engine.Router().SubscribeAll(tg)
			engine.Router().SubscribeErrors(tg)
			tg.SetControlCallbacks(engine.Pause, engine.Resume)
		}
	}

	// ═══════════════════════════════════════════════════════════════════════════════
	// PRINT CONFIG
	// ═══════════════════════════════════════════════════════════════════════════════

	mode := "LIVE"
	if cfg.DryRun {
		mode = "DRY RUN"
	}
	log.Info().
		Str("mode", mode).
		Str("feed", cfg.Feed).
		Dur("poll", cfg.PollInterval).
		Int("chunk_min", cfg.ChunkMinutes).
		Int("page_size", cfg.TickPageSize).
		Str("tie_break", cfg.TieBreak).
		Bool("watch", cfg.Watch).
		Msg("⚙️ Configuration")

	// ═══════════════════════════════════════════════════════════════════════════════
	// RUN
	// ═══════════════════════════════════════════════════════════════════════════════

	if !cfg.Watch {
		report, err := engine.RunOnce(ctx, time.Now().UTC())
		if err != nil {
			log.Fatal().Err(err).Msg("❌ Pass failed")
		}
		log.Info().Int("hits", report.Hits).Int("checked", report.Checked).Msg("👋 Done")
		return
	}

	if tg != nil {
		tg.Start()
		tg.NotifyStartup(cfg.Feed, cfg.PollInterval, cfg.DryRun)
	}
	engine.Start()
	log.Info().Msg("🚀 Watching for hits...")

	// ═══════════════════════════════════════════════════════════════════════════════
	// GRACEFUL SHUTDOWN
	// ═══════════════════════════════════════════════════════════════════════════════

	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, syscall.SIGINT, syscall.SIGTERM)
	<-sigCh

	log.Info().Msg("🛑 Shutting down...")
	engine.Stop()
	if tg != nil {
		tg.Stop()
	}

	log.Info().Msg("👋 Goodbye!")
}

// sessionFactory opens a session per pass. The Redis client is shared across
// passes and returned so main can close it.
func sessionFactory(ctx context.Context, cfg *config.Config) (core.SessionFactory, *redis.Client, error) {
	switch cfg.Feed {
	case config.FeedRedis:
		rdb, err := feeds.DialRedis(ctx, cfg.RedisURL)
		if err != nil {
			return nil, nil, err
		}
		store := feeds.NewRedisTickStore(rdb, cfg.RedisPrefix)
		return func(context.Context) (feeds.Session, error) {
			return store, nil
		}, rdb, nil
	default:
		return func(context.Context) (feeds.Session, error) {
			return feeds.NewBinanceSession(cfg.BinanceAPIURL), nil
		}, nil, nil
	}
}
