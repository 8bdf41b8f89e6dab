package scheduler

import (
	"time"

	"github.com/robfig/cron/v3"
)

// maxWindowProbes bounds the search for an in-window tick. A one-minute
// interval needs at most 1440 probes to cross a full day.
const maxWindowProbes = 1 << 16

// ActiveWindow restricts firing to local hours [StartHour, EndHour],
// inclusive. StartHour > EndHour wraps midnight.
type ActiveWindow struct {
	StartHour int
	EndHour   int
	Loc       *time.Location
}

// Contains reports whether t falls inside the window.
func (w ActiveWindow) Contains(t time.Time) bool {
	loc := w.Loc
	if loc == nil {
		loc = time.Local
	}
	h := t.In(loc).Hour()
	if w.StartHour <= w.EndHour {
		return h >= w.StartHour && h <= w.EndHour
	}
	return h >= w.StartHour || h <= w.EndHour
}

// windowSchedule yields the base ticks that land inside win. Ticks outside
// are skipped, not deferred to the window start.
type windowSchedule struct {
	base cron.Schedule
	win  ActiveWindow
}

func (s windowSchedule) Next(t time.Time) time.Time {
	n := t
	for i := 0; i < maxWindowProbes; i++ {
		n = s.base.Next(n)
		if n.IsZero() || s.win.Contains(n) {
			return n
		}
	}
	return time.Time{}
}

type triggerOptions struct {
	spreadFrom time.Time
	spreadTag  string
}

type TriggerOption func(*triggerOptions)

// WithStartupSpread delays the first tick by a random jitter so jobs
// registered together at boot do not fire in the same second.
func WithStartupSpread(now time.Time, tag string) TriggerOption {
	return func(o *triggerOptions) {
		o.spreadFrom = now
		o.spreadTag = tag
	}
}

// BuildTrigger composes a fixed interval with an optional active window.
func BuildTrigger(every time.Duration, win *ActiveWindow, opts ...TriggerOption) cron.Schedule {
	var o triggerOptions
	for _, fn := range opts {
		fn(&o)
	}

	var base cron.Schedule = cron.Every(every)
	if !o.spreadFrom.IsZero() {
		base, _ = withSpread(base, every, o.spreadFrom, o.spreadTag)
	}
	if win == nil {
		return base
	}
	return windowSchedule{base: base, win: *win}
}
