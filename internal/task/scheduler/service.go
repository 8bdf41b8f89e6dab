package scheduler

import (
	"context"
	"errors"
	"fmt"
	"runtime/debug"
	"strings"
	"time"

	"github.com/robfig/cron/v3"
	logx "pagewatch/pkg/logx"
)

func New(cfg Config, log logx.Logger) *Service {
	if log.IsZero() {
		log = logx.Nop()
	}
	if cfg.MaxConcurrent <= 0 {
		cfg.MaxConcurrent = DefaultMaxConcurrent
	}
	s := &Service{cfg: cfg, log: log, jobs: map[string]*job{}}
	s.loc = loadLocation(cfg.Timezone, log)
	return s
}

// Location is the scheduler timezone; window triggers default to it.
func (s *Service) Location() *time.Location {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.loc
}

// Upsert registers run under key, replacing any previous job with the same
// key. Jobs registered before Start are scheduled when Start runs.
func (s *Service) Upsert(key string, trigger cron.Schedule, run RunFunc) error {
	key = strings.TrimSpace(key)
	if key == "" {
		return errors.New("job key required")
	}
	if trigger == nil || run == nil {
		return fmt.Errorf("job %s: trigger and run are required", key)
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	j := &job{key: key, trigger: trigger, run: run}
	if old, ok := s.jobs[key]; ok {
		if s.c != nil && old.entryID != 0 {
			s.c.Remove(old.entryID)
		}
		// Executions of the replaced job still count against the cap.
		j.limit = old.limit
	} else {
		j.limit = newLimiter(s.cfg.MaxConcurrent)
	}
	s.jobs[key] = j

	if s.c != nil {
		s.scheduleLocked(j)
		e := s.c.Entry(j.entryID)
		s.log.Debug("job registered", logx.String("key", key), logx.Time("next", e.Next))
	}
	return nil
}

// Remove unschedules key. In-flight executions finish on their own.
func (s *Service) Remove(key string) bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	j, ok := s.jobs[key]
	if !ok {
		return false
	}
	if s.c != nil && j.entryID != 0 {
		s.c.Remove(j.entryID)
	}
	delete(s.jobs, key)
	s.log.Debug("job removed", logx.String("key", key))
	return true
}

func (s *Service) Has(key string) bool {
	s.mu.Lock()
	_, ok := s.jobs[key]
	s.mu.Unlock()
	return ok
}

func (s *Service) Len() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.jobs)
}

// Start begins triggering. ctx bounds every job execution.
func (s *Service) Start(ctx context.Context) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.c != nil {
		return
	}
	s.runCtx, s.cancel = context.WithCancel(ctx)
	s.c = cron.New(cron.WithLocation(s.loc))
	for _, j := range s.jobs {
		s.scheduleLocked(j)
	}
	s.c.Start()
	s.log.Info("scheduler started", logx.String("tz", s.loc.String()), logx.Int("jobs", len(s.jobs)))
}

// Stop halts triggering, cancels running executions and waits for them
// until ctx is done. Registered jobs are kept; a later Start resumes them.
func (s *Service) Stop(ctx context.Context) {
	start := time.Now()

	s.mu.Lock()
	c := s.c
	cancel := s.cancel
	s.c = nil
	s.cancel = nil
	for _, j := range s.jobs {
		j.entryID = 0
	}
	s.mu.Unlock()

	if c == nil {
		return
	}
	if cancel != nil {
		cancel()
	}
	select {
	case <-c.Stop().Done():
	case <-ctx.Done():
		s.log.Warn("scheduler stop timed out; executions still running")
	}
	s.log.Info("scheduler stopped", logx.Duration("took", time.Since(start)))
}

func (s *Service) scheduleLocked(j *job) {
	j.entryID = s.c.Schedule(j.trigger, cron.FuncJob(func() { s.fire(j) }))
}

// fire runs one tick of j. It returns immediately when the job is at its
// concurrency cap.
func (s *Service) fire(j *job) {
	if !j.limit.tryAcquire() {
		j.dropped.Add(1)
		s.log.Debug("tick dropped: job at capacity", logx.String("key", j.key))
		return
	}
	defer j.limit.release()

	s.mu.Lock()
	base := s.runCtx
	timeout := s.cfg.JobTimeout
	s.mu.Unlock()
	if base == nil {
		return
	}
	ctx := base
	if timeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(base, timeout)
		defer cancel()
	}

	j.runs.Add(1)
	start := time.Now()
	err := s.safeRun(ctx, j)
	if err != nil {
		j.failures.Add(1)
		msg := err.Error()
		j.lastErr.Store(&msg)
		s.log.Warn("job failed", logx.String("key", j.key), logx.Duration("took", time.Since(start)), logx.Err(err))
		return
	}
	s.log.Trace("job done", logx.String("key", j.key), logx.Duration("took", time.Since(start)))
}

func (s *Service) safeRun(ctx context.Context, j *job) (err error) {
	defer func() {
		if r := recover(); r != nil {
			s.log.Error("job panic", logx.String("key", j.key), logx.Any("panic", r), logx.Stack(string(debug.Stack())))
			err = fmt.Errorf("panic: %v", r)
		}
	}()
	return j.run(ctx)
}

func loadLocation(tz string, log logx.Logger) *time.Location {
	tz = strings.TrimSpace(tz)
	if tz == "" {
		return time.Local
	}
	loc, err := time.LoadLocation(tz)
	if err != nil {
		log.Warn("invalid timezone; using local", logx.String("tz", tz), logx.Err(err))
		return time.Local
	}
	return loc
}
