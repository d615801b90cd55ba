package config

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/web3guy0/hitwatch/core"
	"github.com/web3guy0/hitwatch/risk"
	"github.com/web3guy0/hitwatch/types"
)

func TestLoadDefaults(t *testing.T) {
	for _, k := range []string{"FEED", "POLL_INTERVAL", "QUIET_HOURS", "TIE_BREAK", "SETUP_IDS", "TELEGRAM_CHAT_ID"} {
		t.Setenv(k, "")
	}

	cfg, err := Load()
	require.NoError(t, err)
	assert.Equal(t, FeedBinance, cfg.Feed)
	assert.Equal(t, time.Minute, cfg.PollInterval)
	assert.Equal(t, "data/hitwatch.db", cfg.DatabasePath)
	assert.Equal(t, "monitor", cfg.RedisPrefix)
	assert.Empty(t, cfg.SetupIDs)

	q, err := cfg.QuietFilter()
	require.NoError(t, err)
	assert.IsType(t, &core.QuietSchedule{}, q)
}

func TestLoadOverrides(t *testing.T) {
	t.Setenv("FEED", "Redis")
	t.Setenv("POLL_INTERVAL", "30s")
	t.Setenv("SETUP_IDS", "3, 7,,9")
	t.Setenv("SETUP_SYMBOLS", "EURUSD,XAUUSD")
	t.Setenv("TELEGRAM_CHAT_ID", "-1001")
	t.Setenv("TIE_BREAK", "tp_first")
	t.Setenv("DRY_RUN", "1")
	t.Setenv("QUIET_HOURS", "off")

	cfg, err := Load()
	require.NoError(t, err)
	assert.Equal(t, FeedRedis, cfg.Feed)
	assert.Equal(t, 30*time.Second, cfg.PollInterval)
	assert.Equal(t, []int64{3, 7, 9}, cfg.SetupIDs)
	assert.Equal(t, []string{"EURUSD", "XAUUSD"}, cfg.SetupSymbols)
	assert.Equal(t, int64(-1001), cfg.TelegramChatID)
	assert.True(t, cfg.DryRun)

	q, err := cfg.QuietFilter()
	require.NoError(t, err)
	assert.Equal(t, core.NoQuietHours{}, q)

	ec := cfg.EngineConfig()
	assert.Equal(t, risk.TakeProfitFirst, ec.TieBreak)
	assert.True(t, ec.DryRun)
}

func TestLoadRejectsBadValues(t *testing.T) {
	cases := map[string][2]string{
		"feed":      {"FEED", "mt5"},
		"setup id":  {"SETUP_IDS", "1,x"},
		"chat id":   {"TELEGRAM_CHAT_ID", "abc"},
		"tie break": {"TIE_BREAK", "coin"},
		"quiet":     {"QUIET_HOURS", "25:00-26:00"},
	}
	for name, kv := range cases {
		t.Run(name, func(t *testing.T) {
			t.Setenv(kv[0], kv[1])
			_, err := Load()
			assert.ErrorIs(t, err, types.ErrConfig)
		})
	}
}

func TestSinceWindowIsRelative(t *testing.T) {
	cfg := &Config{SinceHours: 6, SetupIDs: []int64{1}}
	ec := cfg.EngineConfig()
	assert.Equal(t, 6*time.Hour, ec.SinceWindow)
	assert.True(t, ec.Filter.Since.IsZero())
	assert.Equal(t, []int64{1}, ec.Filter.IDs)

	assert.Zero(t, (&Config{}).SinceWindow())
}

func TestCustomQuietWindowsKeepWeekend(t *testing.T) {
	cfg := &Config{QuietHours: "22:00-23:00"}
	q, err := cfg.QuietFilter()
	require.NoError(t, err)
	schedule, ok := q.(*core.QuietSchedule)
	require.True(t, ok)
	require.Len(t, schedule.Windows, 1)
	assert.Equal(t, core.Clock{Hour: 22}, schedule.Windows[0].Start)
	assert.NotNil(t, schedule.Weekend)
}
