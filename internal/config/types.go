package config

// Config is the on-disk configuration (JSON or YAML). Durations are Go
// duration strings such as "90s" or "5m".
type Config struct {
	Telegram  TelegramConfig  `json:"telegram"`
	Logging   LoggingConfig   `json:"logging"`
	Scheduler SchedulerConfig `json:"scheduler"`
	Tracker   TrackerConfig   `json:"tracker"`
	Fetch     FetchConfig     `json:"fetch"`
	Acquire   AcquireConfig   `json:"acquire"`
	Delivery  DeliveryConfig  `json:"delivery"`
	Storage   StorageConfig   `json:"storage"`
	Ops       OpsConfig       `json:"ops"`
}

type TelegramConfig struct {
	// Token may be left empty when BOT_TOKEN is set.
	Token        string  `json:"token" validate:"required"`
	OwnerUserIDs []int64 `json:"owner_user_ids" validate:"required,min=1,dive,ne=0"`
	// GroupLog is the chat id receiving warn+ log lines.
	GroupLog    string `json:"group_log,omitempty" validate:"omitempty,chatid"`
	PollTimeout string `json:"poll_timeout,omitempty" validate:"omitempty,duration"`
}

type LoggingConfig struct {
	Level    string          `json:"level" validate:"omitempty,loglevel"`
	Console  bool            `json:"console"`
	File     LoggingFile     `json:"file"`
	Telegram LoggingTelegram `json:"telegram"`
}

type LoggingFile struct {
	Enabled    bool   `json:"enabled"`
	Path       string `json:"path" validate:"required_if=Enabled true"`
	MaxSizeMB  int    `json:"max_size_mb,omitempty" validate:"min=0"`
	MaxBackups int    `json:"max_backups,omitempty" validate:"min=0"`
}

type LoggingTelegram struct {
	Enabled    bool   `json:"enabled"`
	ThreadID   int    `json:"thread_id"`
	MinLevel   string `json:"min_level" validate:"omitempty,loglevel"`
	RatePerSec int    `json:"rate_per_sec" validate:"min=0"`
}

type SchedulerConfig struct {
	Timezone   string `json:"timezone,omitempty" validate:"omitempty,tzname"`
	JobTimeout string `json:"job_timeout,omitempty" validate:"omitempty,duration"`
}

type TrackerConfig struct {
	MaxPerOwner int `json:"max_per_owner,omitempty" validate:"min=0"`
	// Night-mode active hours. Omitted fields default to 6 and 22; an
	// explicit 0 is midnight.
	NightStartHour *int `json:"night_start_hour,omitempty" validate:"omitempty,min=0,max=23"`
	NightEndHour   *int `json:"night_end_hour,omitempty" validate:"omitempty,min=0,max=23"`
}

type FetchConfig struct {
	PageTimeout     string `json:"page_timeout,omitempty" validate:"omitempty,duration"`
	ResourceTimeout string `json:"resource_timeout,omitempty" validate:"omitempty,duration"`
	UserAgent       string `json:"user_agent,omitempty"`
}

type AcquireConfig struct {
	Dir           string `json:"dir,omitempty"`
	MaxFileSizeMB int    `json:"max_file_size_mb,omitempty" validate:"min=0,max=2000"`
	YTDLPPath     string `json:"ytdlp_path,omitempty"`
	// YTDLPEnabled defaults to true when omitted.
	YTDLPEnabled *bool `json:"ytdlp_enabled,omitempty"`
}

type DeliveryConfig struct {
	ChunkDelay string `json:"chunk_delay,omitempty" validate:"omitempty,duration"`
	RatePerSec int    `json:"rate_per_sec,omitempty" validate:"min=0"`
}

type StorageConfig struct {
	Driver      string `json:"driver,omitempty" validate:"omitempty,oneof=sqlite bolt postgres"`
	Path        string `json:"path,omitempty"`
	DSN         string `json:"dsn,omitempty" validate:"required_if=Driver postgres"`
	BusyTimeout string `json:"busy_timeout,omitempty" validate:"omitempty,duration"`
}

// OpsConfig controls the operational HTTP endpoint (health, jobs, events,
// profiling).
type OpsConfig struct {
	Enabled bool   `json:"enabled"`
	Addr    string `json:"addr,omitempty" validate:"omitempty,hostname_port"`
	// Token is required for non-loopback addresses.
	Token       string `json:"token,omitempty"`
	EventBuffer int    `json:"event_buffer,omitempty" validate:"min=0"`
}

// NightHours resolves the night-mode window defaults.
func (t TrackerConfig) NightHours() (start, end int) {
	start, end = 6, 22
	if t.NightStartHour != nil {
		start = *t.NightStartHour
	}
	if t.NightEndHour != nil {
		end = *t.NightEndHour
	}
	return start, end
}

// YTDLPOn resolves the ytdlp_enabled default.
func (a AcquireConfig) YTDLPOn() bool { return a.YTDLPEnabled == nil || *a.YTDLPEnabled }
