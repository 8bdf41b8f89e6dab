package scheduler

import (
	"hash/fnv"
	"math/rand/v2"
	"time"

	"github.com/robfig/cron/v3"
)

const maxStartupSpread = 30 * time.Second

// delayedFirst fires once at first, then follows base.
type delayedFirst struct {
	base  cron.Schedule
	first time.Time
}

func (d delayedFirst) Next(t time.Time) time.Time {
	if t.Before(d.first) {
		return d.first
	}
	return d.base.Next(t)
}

// withSpread puts the first run at now+every plus a jitter below
// min(every, maxStartupSpread). The jitter is derived from tag and now.
func withSpread(base cron.Schedule, every time.Duration, now time.Time, tag string) (cron.Schedule, time.Duration) {
	span := min(every, maxStartupSpread)
	if span <= 0 {
		return base, 0
	}
	h := fnv.New64a()
	_, _ = h.Write([]byte(tag))
	rng := rand.New(rand.NewPCG(h.Sum64(), uint64(now.UnixNano())))
	jitter := time.Duration(rng.Int64N(int64(span)))
	return delayedFirst{base: base, first: now.Add(every + jitter)}, jitter
}
