package app

import (
	"strconv"
	"strings"
	"time"

	"pagewatch/internal/acquire"
	"pagewatch/internal/config"
	"pagewatch/internal/delivery"
	"pagewatch/internal/fetch"
	"pagewatch/internal/observability/ops"
	"pagewatch/internal/storage"
	"pagewatch/internal/task/scheduler"
	"pagewatch/internal/tracker"
	logx "pagewatch/pkg/logx"
)

const defaultDownloadDir = "./downloads"

// LogConfig maps the logging section. The Telegram sink stays off when
// withTelegram is false so the target can be set before it is enabled.
func LogConfig(cfg *config.Config, withTelegram bool) logx.Config {
	l := cfg.Logging
	return logx.Config{
		Level:   l.Level,
		Console: l.Console,
		File: logx.FileConfig{
			Enabled:    l.File.Enabled,
			Path:       l.File.Path,
			MaxSizeMB:  l.File.MaxSizeMB,
			MaxBackups: l.File.MaxBackups,
		},
		Telegram: logx.TelegramConfig{
			Enabled:    withTelegram && l.Telegram.Enabled,
			ThreadID:   l.Telegram.ThreadID,
			MinLevel:   l.Telegram.MinLevel,
			RatePerSec: l.Telegram.RatePerSec,
		},
	}
}

// GroupLogChat parses telegram.group_log; 0 means unset.
func GroupLogChat(cfg *config.Config) int64 {
	raw := strings.TrimSpace(cfg.Telegram.GroupLog)
	if raw == "" {
		return 0
	}
	id, err := strconv.ParseInt(raw, 10, 64)
	if err != nil {
		return 0
	}
	return id
}

// StorageConfig maps the storage section; sqlite at ./pagewatch.db is the default.
func StorageConfig(cfg *config.Config) storage.Config {
	s := cfg.Storage
	out := storage.Config{
		Driver:      strings.ToLower(strings.TrimSpace(s.Driver)),
		Path:        strings.TrimSpace(s.Path),
		DSN:         strings.TrimSpace(s.DSN),
		BusyTimeout: config.DurationOr(s.BusyTimeout, 0),
	}
	if out.Driver == "" {
		out.Driver = "sqlite"
	}
	if out.Path == "" {
		switch out.Driver {
		case "sqlite":
			out.Path = "./pagewatch.db"
		case "bolt":
			out.Path = "./pagewatch.bolt"
		}
	}
	return out
}

func FetchConfig(cfg *config.Config) fetch.Config {
	return fetch.Config{
		PageTimeout:     config.DurationOr(cfg.Fetch.PageTimeout, 0),
		ResourceTimeout: config.DurationOr(cfg.Fetch.ResourceTimeout, 0),
		UserAgent:       cfg.Fetch.UserAgent,
	}
}

func schedulerConfig(cfg *config.Config) scheduler.Config {
	return scheduler.Config{
		Timezone:   cfg.Scheduler.Timezone,
		JobTimeout: config.DurationOr(cfg.Scheduler.JobTimeout, 0),
	}
}

func trackerConfig(cfg *config.Config) tracker.Config {
	start, end := cfg.Tracker.NightHours()
	return tracker.Config{
		MaxPerOwner:    cfg.Tracker.MaxPerOwner,
		NightStartHour: start,
		NightEndHour:   end,
		Timezone:       cfg.Scheduler.Timezone,
	}
}

func deliveryConfig(cfg *config.Config) delivery.Config {
	return delivery.Config{
		ChunkDelay: config.DurationOr(cfg.Delivery.ChunkDelay, time.Second),
		RatePerSec: cfg.Delivery.RatePerSec,
	}
}

// maxFileSize is acquire.max_file_size_mb in bytes.
func maxFileSize(cfg *config.Config) int64 {
	if mb := cfg.Acquire.MaxFileSizeMB; mb > 0 {
		return int64(mb) << 20
	}
	return acquire.DefaultMaxFileSize
}

func downloadDir(cfg *config.Config) string {
	if d := strings.TrimSpace(cfg.Acquire.Dir); d != "" {
		return d
	}
	return defaultDownloadDir
}

func opsConfig(cfg *config.Config) ops.Config {
	return ops.Config{
		Addr:        cfg.Ops.Addr,
		Token:       cfg.Ops.Token,
		EventBuffer: cfg.Ops.EventBuffer,
	}
}
