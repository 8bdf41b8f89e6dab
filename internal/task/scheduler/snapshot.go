package scheduler

import (
	"sort"
)

// Snapshot reports registered jobs with their next/previous fire times and
// counters, ordered by key.
func (s *Service) Snapshot() Snapshot {
	s.mu.Lock()
	defer s.mu.Unlock()

	out := Snapshot{Running: s.c != nil, Timezone: s.loc.String()}
	out.Jobs = make([]JobInfo, 0, len(s.jobs))
	for _, j := range s.jobs {
		it := JobInfo{
			Key:      j.key,
			InFlight: j.limit.inFlight(),
			Runs:     j.runs.Load(),
			Dropped:  j.dropped.Load(),
			Failures: j.failures.Load(),
		}
		if p := j.lastErr.Load(); p != nil {
			it.LastError = *p
		}
		if s.c != nil && j.entryID != 0 {
			e := s.c.Entry(j.entryID)
			it.Next = e.Next
			it.Prev = e.Prev
		}
		out.Jobs = append(out.Jobs, it)
	}
	sort.Slice(out.Jobs, func(a, b int) bool { return out.Jobs[a].Key < out.Jobs[b].Key })
	return out
}
