package bot

import (
	"context"
	"testing"
	"time"

	tgbotapi "github.com/go-telegram-bot-api/telegram-bot-api/v5"
	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/web3guy0/hitwatch/core"
	"github.com/web3guy0/hitwatch/storage"
	"github.com/web3guy0/hitwatch/types"
)

type fakeSender struct {
	sent []tgbotapi.MessageConfig
}

func (f *fakeSender) Send(c tgbotapi.Chattable) (tgbotapi.Message, error) {
	if m, ok := c.(tgbotapi.MessageConfig); ok {
		f.sent = append(f.sent, m)
	}
	return tgbotapi.Message{}, nil
}

type fakeStats struct{ paused bool }

func (f *fakeStats) GetStats() (int, int, *core.RunReport) {
	return 3, 1, &core.RunReport{Now: time.Date(2025, 1, 6, 11, 0, 0, 0, time.UTC), Checked: 4, Skipped: 1}
}

func (f *fakeStats) IsPaused() bool { return f.paused }

type fakeHistory struct{}

func (fakeHistory) RecentHits(context.Context, int) ([]storage.HitRow, error) {
	return []storage.HitRow{{SetupID: 7, Symbol: "EURUSD", Hit: "SL", HitPrice: decimal.RequireFromString("1.08"), HitTime: time.Date(2025, 1, 6, 10, 30, 0, 0, time.UTC)}}, nil
}

func (fakeHistory) HitCounts(context.Context) (map[types.HitKind]int64, error) {
	return map[types.HitKind]int64{types.TakeProfit: 3, types.StopLoss: 1}, nil
}

func newTestBot() (*TelegramBot, *fakeSender) {
	out := &fakeSender{}
	return &TelegramBot{out: out, chatID: 42, stopCh: make(chan struct{}), stats: &fakeStats{}, history: fakeHistory{}}, out
}

func TestFormatHit(t *testing.T) {
	asOf := time.Date(2025, 1, 6, 10, 0, 0, 0, time.UTC)
	setup := types.Setup{
		ID: 7, Symbol: "EURUSD", Direction: types.Buy,
		StopLoss: decimal.RequireFromString("1.08"), TakeProfit: decimal.RequireFromString("1.1"),
		EntryPrice: decimal.NewNullDecimal(decimal.RequireFromString("1.09")), AsOf: asOf,
	}
	hit := types.Hit{
		Kind: types.TakeProfit, Time: asOf.Add(90 * time.Minute), Price: decimal.RequireFromString("1.1"),
		DrawdownRatio: decimal.NewNullDecimal(decimal.RequireFromString("0.25")),
	}

	msg := FormatHit(setup, hit)
	assert.Contains(t, msg, "TAKE PROFIT HIT")
	assert.Contains(t, msg, "EURUSD")
	assert.Contains(t, msg, "BUY #7")
	assert.Contains(t, msg, "Entry: *1.09*")
	assert.Contains(t, msg, "After: 1h30m0s")
	assert.Contains(t, msg, "Drawdown: 25.0%")

	hit.Kind = types.StopLoss
	assert.Contains(t, FormatHit(setup, hit), "STOP LOSS HIT")
}

func TestNotifyHitSendsMarkdown(t *testing.T) {
	b, out := newTestBot()
	b.NotifyHit(types.Setup{ID: 1, Symbol: "BTCUSDT", Direction: types.Sell}, types.Hit{Kind: types.StopLoss})

	require.Len(t, out.sent, 1)
	assert.Equal(t, int64(42), out.sent[0].ChatID)
	assert.Equal(t, "Markdown", out.sent[0].ParseMode)
}

func TestCommands(t *testing.T) {
	b, out := newTestBot()
	paused, resumed := false, false
	b.SetControlCallbacks(func() { paused = true }, func() { resumed = true })

	b.handleCommand("status")
	b.handleCommand("Stats")
	b.handleCommand("hits")
	b.handleCommand("pause")
	b.handleCommand("resume")
	b.handleCommand("nope")

	require.Len(t, out.sent, 6)
	assert.Contains(t, out.sent[0].Text, "Passes: *3*")
	assert.Contains(t, out.sent[0].Text, "Checked: 4")
	assert.Contains(t, out.sent[1].Text, "TP rate: *75.0%*")
	assert.Contains(t, out.sent[2].Text, "SL EURUSD #7 @ 1.08")
	assert.True(t, paused)
	assert.True(t, resumed)
	assert.Contains(t, out.sent[5].Text, "Unknown command")
}

func TestFormatStatusPaused(t *testing.T) {
	msg := FormatStatus(0, 0, nil, true)
	assert.Contains(t, msg, "PAUSED")
	assert.NotContains(t, msg, "Last pass")
}
