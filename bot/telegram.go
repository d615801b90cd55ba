package bot

import (
	"context"
	"fmt"
	"strings"
	"sync"
	"time"

	tgbotapi "github.com/go-telegram-bot-api/telegram-bot-api/v5"
	"github.com/rs/zerolog/log"

	"github.com/web3guy0/hitwatch/core"
	"github.com/web3guy0/hitwatch/storage"
	"github.com/web3guy0/hitwatch/types"
)

// ═══════════════════════════════════════════════════════════════════════════════
// TELEGRAM BOT - Hit notifications & watcher control
// ═══════════════════════════════════════════════════════════════════════════════
//
// Features:
//   🎯 TP/SL hit alerts
//   📊 Pass statistics (/status, /stats)
//   📜 Recent hits (/hits)
//   🎛️ Pause / resume polling
//
// ═══════════════════════════════════════════════════════════════════════════════

// StatsProvider exposes engine counters
type StatsProvider interface {
	GetStats() (passes, hits int, last *core.RunReport)
	IsPaused() bool
}

// HitHistory lists recorded hits
type HitHistory interface {
	RecentHits(ctx context.Context, limit int) ([]storage.HitRow, error)
	HitCounts(ctx context.Context) (map[types.HitKind]int64, error)
}

type sender interface {
	Send(c tgbotapi.Chattable) (tgbotapi.Message, error)
}

// TelegramBot manages the Telegram interface
type TelegramBot struct {
	mu      sync.RWMutex
	api     *tgbotapi.BotAPI
	out     sender
	chatID  int64
	running bool
	stopCh  chan struct{}

	stats   StatsProvider
	history HitHistory

	// Control callbacks
	onPause  func()
	onResume func()
}

// NewTelegramBot connects with token and talks to chatID only
func NewTelegramBot(token string, chatID int64, stats StatsProvider, history HitHistory) (*TelegramBot, error) {
	if token == "" {
		return nil, fmt.Errorf("%w: TELEGRAM_BOT_TOKEN not set", types.ErrConfig)
	}
	if chatID == 0 {
		return nil, fmt.Errorf("%w: TELEGRAM_CHAT_ID not set", types.ErrConfig)
	}

	api, err := tgbotapi.NewBotAPI(token)
	if err != nil {
		return nil, fmt.Errorf("failed to create bot: %w", err)
	}

	bot := &TelegramBot{
		api:     api,
		out:     api,
		chatID:  chatID,
		stopCh:  make(chan struct{}),
		stats:   stats,
		history: history,
	}

	log.Info().Str("username", api.Self.UserName).Msg("🤖 Telegram bot initialized")
	return bot, nil
}

// SetControlCallbacks sets pause/resume handlers
func (b *TelegramBot) SetControlCallbacks(onPause, onResume func()) {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.onPause = onPause
	b.onResume = onResume
}

// Start begins listening for commands
func (b *TelegramBot) Start() {
	b.mu.Lock()
	if b.running {
		b.mu.Unlock()
		return
	}
	b.running = true
	b.mu.Unlock()

	go b.commandLoop()
	log.Info().Msg("📱 Telegram bot started")
}

// Stop stops the bot
func (b *TelegramBot) Stop() {
	b.mu.Lock()
	defer b.mu.Unlock()

	if !b.running {
		return
	}

	b.running = false
	close(b.stopCh)
	if b.api != nil {
		b.api.StopReceivingUpdates()
	}
	log.Info().Msg("Telegram bot stopped")
}

// ═══════════════════════════════════════════════════════════════════════════════
// NOTIFICATIONS
// ═══════════════════════════════════════════════════════════════════════════════

// NotifyHit implements core.HitNotifier
func (b *TelegramBot) NotifyHit(setup types.Setup, hit types.Hit) {
	b.sendMarkdown(FormatHit(setup, hit))
}

// FormatHit renders a hit alert
func FormatHit(setup types.Setup, hit types.Hit) string {
	emoji := "💰"
	title := "TAKE PROFIT HIT"
	if hit.Kind == types.StopLoss {
		emoji = "🛑"
		title = "STOP LOSS HIT"
	}

	var sb strings.Builder
	fmt.Fprintf(&sb, "%s *%s*\n\n", emoji, title)
	fmt.Fprintf(&sb, "📊 *%s* — %s #%d\n", setup.Symbol, strings.ToUpper(string(setup.Direction)), setup.ID)
	sb.WriteString("━━━━━━━━━━━━━━━━\n")
	if setup.EntryPrice.Valid {
		fmt.Fprintf(&sb, "💵 Entry: *%s*\n", setup.EntryPrice.Decimal.String())
	}
	fmt.Fprintf(&sb, "🎯 TP: *%s*\n", setup.TakeProfit.String())
	fmt.Fprintf(&sb, "🛑 SL: *%s*\n", setup.StopLoss.String())
	fmt.Fprintf(&sb, "⚡ Hit: *%s* at %s UTC\n", hit.Price.String(), hit.Time.UTC().Format("Jan 2 15:04:05"))
	fmt.Fprintf(&sb, "⏱️ After: %s", hit.Time.Sub(setup.AsOf).Round(time.Second))
	if hit.DrawdownRatio.Valid {
		pct := hit.DrawdownRatio.Decimal.Shift(2).StringFixed(1)
		fmt.Fprintf(&sb, "\n📉 Drawdown: %s%% of target", pct)
	}
	return sb.String()
}

// NotifyError sends an error alert
func (b *TelegramBot) NotifyError(err error) {
	b.sendMarkdown(fmt.Sprintf("⚠️ *ERROR*\n\n`%s`", err.Error()))
}

// NotifyStartup sends startup notification
func (b *TelegramBot) NotifyStartup(feed string, interval time.Duration, dryRun bool) {
	mode := "LIVE"
	if dryRun {
		mode = "DRY RUN"
	}
	msg := fmt.Sprintf(`🚀 *HITWATCH STARTED*
━━━━━━━━━━━━━━━━━━━━

📡 Feed: *%s*
📊 Mode: *%s*
⏱️ Poll: *%s*

Use /help for commands`, feed, mode, interval)

	b.sendMarkdown(msg)
}

// ═══════════════════════════════════════════════════════════════════════════════
// COMMAND HANDLING
// ═══════════════════════════════════════════════════════════════════════════════

func (b *TelegramBot) commandLoop() {
	u := tgbotapi.NewUpdate(0)
	u.Timeout = 30

	updates := b.api.GetUpdatesChan(u)

	for {
		select {
		case <-b.stopCh:
			return
		case update, ok := <-updates:
			if !ok {
				return
			}
			if update.Message == nil || !update.Message.IsCommand() {
				continue
			}

			// Only respond to authorized chat
			if update.Message.Chat.ID != b.chatID {
				continue
			}

			b.handleCommand(update.Message.Command())
		}
	}
}

func (b *TelegramBot) handleCommand(command string) {
	switch strings.ToLower(command) {
	case "start", "help":
		b.sendMarkdown(helpText)
	case "status":
		b.cmdStatus()
	case "stats":
		b.cmdStats()
	case "hits":
		b.cmdHits()
	case "pause":
		b.cmdControl(false)
	case "resume":
		b.cmdControl(true)
	case "ping":
		b.send("🏓 Pong!")
	default:
		b.send("❓ Unknown command. Use /help")
	}
}

const helpText = `🤖 *HITWATCH COMMANDS*
━━━━━━━━━━━━━━━━━━━━

📊 /status — Watcher status
📈 /stats — Hit statistics
📜 /hits — Last 10 hits
⏸️ /pause — Pause polling
▶️ /resume — Resume polling
🏓 /ping — Test connection`

func (b *TelegramBot) cmdStatus() {
	if b.stats == nil {
		b.send("❌ Status not available")
		return
	}
	passes, hits, last := b.stats.GetStats()
	b.sendMarkdown(FormatStatus(passes, hits, last, b.stats.IsPaused()))
}

// FormatStatus renders the /status reply
func FormatStatus(passes, hits int, last *core.RunReport, paused bool) string {
	status := "🟢 RUNNING"
	if paused {
		status = "⏸️ PAUSED"
	}
	msg := fmt.Sprintf(`📊 *WATCHER STATUS*
━━━━━━━━━━━━━━━━━━━━

%s
🔁 Passes: *%d*
🎯 Hits recorded: *%d*`, status, passes, hits)

	if last != nil {
		msg += fmt.Sprintf(`

Last pass %s
✅ Checked: %d | ⏭️ Skipped: %d
🔎 Windows: %d | Ticks: %d
⏱️ Took: %s`,
			last.Now.Format("Jan 2 15:04:05"),
			last.Checked, last.Skipped+last.Unresolved+last.AlreadyRecorded,
			last.Windows, last.Ticks,
			last.Elapsed.Round(time.Millisecond),
		)
	}
	return msg
}

func (b *TelegramBot) cmdStats() {
	if b.history == nil {
		b.send("❌ Stats not available")
		return
	}
	counts, err := b.history.HitCounts(context.Background())
	if err != nil {
		b.send("❌ Failed to fetch stats")
		return
	}

	tp, sl := counts[types.TakeProfit], counts[types.StopLoss]
	winRate := float64(0)
	if tp+sl > 0 {
		winRate = float64(tp) / float64(tp+sl) * 100
	}

	b.sendMarkdown(fmt.Sprintf(`📈 *HIT STATS*
━━━━━━━━━━━━━━━━━━━━

💰 Take profit: *%d*
🛑 Stop loss: *%d*
📈 TP rate: *%.1f%%*`, tp, sl, winRate))
}

func (b *TelegramBot) cmdHits() {
	if b.history == nil {
		b.send("❌ Hits not available")
		return
	}
	rows, err := b.history.RecentHits(context.Background(), 10)
	if err != nil {
		b.send("❌ Failed to fetch hits")
		return
	}
	if len(rows) == 0 {
		b.send("📭 No hits recorded yet")
		return
	}
	b.sendMarkdown(FormatHitList(rows))
}

// FormatHitList renders the /hits reply
func FormatHitList(rows []storage.HitRow) string {
	msg := "📜 *LAST HITS*\n━━━━━━━━━━━━━━━━━━━━\n\n"
	for _, r := range rows {
		emoji := "💰"
		if r.Hit == string(types.StopLoss) {
			emoji = "🛑"
		}
		msg += fmt.Sprintf("%s %s %s #%d @ %s\n   _%s_\n\n",
			emoji, r.Hit, r.Symbol, r.SetupID, r.HitPrice.String(),
			r.HitTime.UTC().Format("Jan 2 15:04"),
		)
	}
	return msg
}

func (b *TelegramBot) cmdControl(resume bool) {
	b.mu.RLock()
	cb := b.onPause
	if resume {
		cb = b.onResume
	}
	b.mu.RUnlock()

	if cb != nil {
		cb()
	}

	if resume {
		b.send("▶️ Polling resumed")
		log.Info().Msg("Polling resumed via Telegram")
		return
	}
	b.send("⏸️ Polling paused")
	log.Info().Msg("Polling paused via Telegram")
}

// ═══════════════════════════════════════════════════════════════════════════════
// HELPERS
// ═══════════════════════════════════════════════════════════════════════════════

func (b *TelegramBot) send(text string) {
	msg := tgbotapi.NewMessage(b.chatID, text)
	if _, err := b.out.Send(msg); err != nil {
		log.Error().Err(err).Msg("Failed to send Telegram message")
	}
}

func (b *TelegramBot) sendMarkdown(text string) {
	msg := tgbotapi.NewMessage(b.chatID, text)
	msg.ParseMode = "Markdown"
	if _, err := b.out.Send(msg); err != nil {
		log.Error().Err(err).Msg("Failed to send Telegram message")
	}
}
