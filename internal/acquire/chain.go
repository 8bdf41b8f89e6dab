// Package acquire turns a resource URL into a local file using an ordered
// list of download strategies.
package acquire

import (
	"context"
	"errors"
	"fmt"
	"time"

	logx "pagewatch/pkg/logx"
)

var (
	// ErrUnavailable is returned when every strategy failed. It wraps the
	// last strategy error.
	ErrUnavailable = errors.New("resource unavailable")
	// ErrTooLarge is returned when the resource exceeds the size ceiling.
	ErrTooLarge = errors.New("resource exceeds size limit")
	// ErrDisabled is returned by a strategy that is switched off.
	ErrDisabled = errors.New("strategy disabled")
)

// DefaultMaxFileSize is the delivery platform's upload ceiling.
const DefaultMaxFileSize int64 = 50 << 20

// Strategy downloads url and returns the local file path.
type Strategy interface {
	Name() string
	Fetch(ctx context.Context, url string) (string, error)
}

type Chain struct {
	strategies []Strategy
	log        logx.Logger
}

func NewChain(log logx.Logger, strategies ...Strategy) *Chain {
	if log.IsZero() {
		log = logx.Nop()
	}
	return &Chain{strategies: strategies, log: log}
}

// Acquire tries each strategy in order and returns the first success.
func (c *Chain) Acquire(ctx context.Context, url string) (string, error) {
	lastErr := errors.New("no strategies configured")
	for _, s := range c.strategies {
		if err := ctx.Err(); err != nil {
			return "", fmt.Errorf("%w: %w", ErrUnavailable, err)
		}
		start := time.Now()
		path, err := s.Fetch(ctx, url)
		if err == nil {
			c.log.Debug("resource acquired",
				logx.String("url", url),
				logx.String("strategy", s.Name()),
				logx.String("path", path),
				logx.Duration("took", time.Since(start)),
			)
			return path, nil
		}
		if !errors.Is(err, ErrDisabled) {
			c.log.Debug("strategy failed", logx.String("url", url), logx.String("strategy", s.Name()), logx.Err(err))
		}
		lastErr = fmt.Errorf("%s: %w", s.Name(), err)
	}
	return "", fmt.Errorf("%w: %w", ErrUnavailable, lastErr)
}
