package scheduler

import (
	"context"
	"sync"
	"sync/atomic"
	"time"

	"github.com/robfig/cron/v3"
	logx "pagewatch/pkg/logx"
)

// DefaultMaxConcurrent is the per-job execution cap.
const DefaultMaxConcurrent = 2

type Config struct {
	Timezone      string // IANA TZ, e.g. "Asia/Jakarta"
	JobTimeout    time.Duration
	MaxConcurrent int
}

// RunFunc is a job body. ctx is cancelled on Stop or when JobTimeout elapses.
type RunFunc func(ctx context.Context) error

type job struct {
	key     string
	trigger cron.Schedule
	run     RunFunc
	entryID cron.EntryID
	limit   *limiter

	runs     atomic.Uint64
	dropped  atomic.Uint64
	failures atomic.Uint64
	lastErr  atomic.Pointer[string]
}

type Service struct {
	mu sync.Mutex

	log logx.Logger
	cfg Config
	loc *time.Location

	c      *cron.Cron
	jobs   map[string]*job
	runCtx context.Context
	cancel context.CancelFunc
}

type JobInfo struct {
	Key       string    `json:"key"`
	Next      time.Time `json:"next,omitempty"`
	Prev      time.Time `json:"prev,omitempty"`
	InFlight  int       `json:"in_flight"`
	Runs      uint64    `json:"runs"`
	Dropped   uint64    `json:"dropped"`
	Failures  uint64    `json:"failures"`
	LastError string    `json:"last_error,omitempty"`
}

type Snapshot struct {
	Running  bool      `json:"running"`
	Timezone string    `json:"timezone"`
	Jobs     []JobInfo `json:"jobs"`
}
