package app

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"pagewatch/internal/acquire"
	"pagewatch/internal/auth"
	"pagewatch/internal/config"
	logx "pagewatch/pkg/logx"
)

func baseConfig() *config.Config {
	return &config.Config{Telegram: config.TelegramConfig{Token: "t", OwnerUserIDs: []int64{1}}}
}

func TestStorageConfigDefaults(t *testing.T) {
	cases := []struct {
		name       string
		in         config.StorageConfig
		wantDriver string
		wantPath   string
	}{
		{"empty is sqlite", config.StorageConfig{}, "sqlite", "./pagewatch.db"},
		{"bolt default path", config.StorageConfig{Driver: "Bolt"}, "bolt", "./pagewatch.bolt"},
		{"explicit path kept", config.StorageConfig{Driver: "sqlite", Path: " /var/lib/pw.db "}, "sqlite", "/var/lib/pw.db"},
		{"postgres has no path", config.StorageConfig{Driver: "postgres", DSN: "postgres://x"}, "postgres", ""},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			cfg := baseConfig()
			cfg.Storage = tc.in
			sc := StorageConfig(cfg)
			assert.Equal(t, tc.wantDriver, sc.Driver)
			assert.Equal(t, tc.wantPath, sc.Path)
		})
	}
}

func TestMappingDefaults(t *testing.T) {
	cfg := baseConfig()
	assert.Equal(t, acquire.DefaultMaxFileSize, maxFileSize(cfg))
	assert.Equal(t, defaultDownloadDir, downloadDir(cfg))
	assert.Equal(t, time.Second, deliveryConfig(cfg).ChunkDelay)
	assert.Equal(t, int64(0), GroupLogChat(cfg))

	cfg.Acquire.MaxFileSizeMB = 20
	cfg.Telegram.GroupLog = "-1001234"
	cfg.Scheduler.Timezone = "Asia/Jakarta"
	assert.Equal(t, int64(20<<20), maxFileSize(cfg))
	assert.Equal(t, int64(-1001234), GroupLogChat(cfg))
	assert.Equal(t, "Asia/Jakarta", trackerConfig(cfg).Timezone)
}

func TestTrackerNightHoursMapping(t *testing.T) {
	cfg := baseConfig()
	tc := trackerConfig(cfg)
	assert.Equal(t, 6, tc.NightStartHour)
	assert.Equal(t, 22, tc.NightEndHour)

	zero := 0
	cfg.Tracker.NightStartHour, cfg.Tracker.NightEndHour = &zero, &zero
	tc = trackerConfig(cfg)
	assert.Equal(t, 0, tc.NightStartHour)
	assert.Equal(t, 0, tc.NightEndHour)
}

func TestLogConfigHoldsTelegramSink(t *testing.T) {
	cfg := baseConfig()
	cfg.Logging.Telegram.Enabled = true
	assert.False(t, LogConfig(cfg, false).Telegram.Enabled)
	assert.True(t, LogConfig(cfg, true).Telegram.Enabled)
}

func testApp(t *testing.T, owners []int64) *App {
	t.Helper()
	logs, log := logx.New(logx.Config{Level: "error"}, nil)
	t.Cleanup(func() { _ = logs.Close() })
	return &App{log: log, logs: logs, auth: auth.New(owners, nil, log)}
}

func TestApplyConfig(t *testing.T) {
	a := testApp(t, []int64{1})
	prev := baseConfig()

	next := baseConfig()
	next.Telegram.OwnerUserIDs = []int64{1, 2}
	next.Logging.Level = "debug"
	next.Storage.Driver = "bolt"

	ch := a.applyConfig(prev, next)
	assert.True(t, a.auth.IsOwner(2))
	assert.Equal(t, []string{"storage"}, ch.Restart)

	assert.True(t, a.applyConfig(next, next).Empty())
}

func TestReloadLoopCoalesces(t *testing.T) {
	a := testApp(t, []int64{1})
	a.cfgm = config.NewConfigManager("unused.json")

	sub := make(chan *config.Config, 4)
	first := baseConfig()
	first.Telegram.OwnerUserIDs = []int64{5}
	second := baseConfig()
	second.Telegram.OwnerUserIDs = []int64{6}
	sub <- first
	sub <- second

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan struct{})
	go func() {
		defer close(done)
		a.reloadLoop(ctx, sub)
	}()

	assert.Eventually(t, func() bool { return a.auth.IsOwner(6) }, 2*time.Second, 10*time.Millisecond)
	cancel()
	<-done
	assert.False(t, a.auth.IsOwner(5))
}

func TestStepBoundsSlowSteps(t *testing.T) {
	a := testApp(t, nil)

	ran := false
	a.step(context.Background(), "quick", time.Second, func(context.Context) error {
		ran = true
		return errors.New("logged only")
	})
	assert.True(t, ran)

	release := make(chan struct{})
	defer close(release)
	start := time.Now()
	a.step(context.Background(), "stuck", 50*time.Millisecond, func(context.Context) error {
		<-release
		return nil
	})
	assert.Less(t, time.Since(start), time.Second)

	require.NotPanics(t, func() {
		a.step(context.Background(), "panics", time.Second, func(context.Context) error { panic("boom") })
	})
}
