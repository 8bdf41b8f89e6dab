package scheduler

// limiter is a channel-based semaphore pre-filled with limit tokens.
type limiter struct {
	ch chan struct{}
}

func newLimiter(limit int) *limiter {
	if limit <= 0 {
		limit = 1
	}
	l := &limiter{ch: make(chan struct{}, limit)}
	for i := 0; i < limit; i++ {
		l.ch <- struct{}{}
	}
	return l
}

func (l *limiter) tryAcquire() bool {
	select {
	case <-l.ch:
		return true
	default:
		return false
	}
}

func (l *limiter) release() {
	// Never block on release.
	select {
	case l.ch <- struct{}{}:
	default:
	}
}

func (l *limiter) inFlight() int { return cap(l.ch) - len(l.ch) }
