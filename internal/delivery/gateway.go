// Package delivery sends texts and files to a chat through the transport
// adapter. Sends never fail loudly: they report false and log a warning.
package delivery

import (
	"context"
	"os"
	"time"
	"unicode/utf8"

	"golang.org/x/time/rate"

	"pagewatch/internal/media"
	kit "pagewatch/internal/transport"
	logx "pagewatch/pkg/logx"
)

const (
	DefaultChunkSize    = 4096
	DefaultCaptionLimit = 1024
)

type Config struct {
	ChunkSize    int           // max runes per text message
	ChunkDelay   time.Duration // pause between chunks of one text
	CaptionLimit int           // max runes per media caption
	RatePerSec   int           // outbound sends per second, all chats
	TextTimeout  time.Duration
	MediaTimeout time.Duration
}

func (c Config) withDefaults() Config {
	if c.ChunkSize <= 0 {
		c.ChunkSize = DefaultChunkSize
	}
	if c.ChunkDelay < 0 {
		c.ChunkDelay = 0
	}
	if c.CaptionLimit <= 0 {
		c.CaptionLimit = DefaultCaptionLimit
	}
	if c.RatePerSec <= 0 {
		c.RatePerSec = 20
	}
	if c.TextTimeout <= 0 {
		c.TextTimeout = 30 * time.Second
	}
	if c.MediaTimeout <= 0 {
		c.MediaTimeout = 5 * time.Minute
	}
	return c
}

type Gateway struct {
	adapter kit.Adapter
	log     logx.Logger
	cfg     Config
	limiter *rate.Limiter

	remove func(string) error
}

func New(cfg Config, adapter kit.Adapter, log logx.Logger) *Gateway {
	if log.IsZero() {
		log = logx.Nop()
	}
	cfg = cfg.withDefaults()
	return &Gateway{
		adapter: adapter,
		log:     log,
		cfg:     cfg,
		limiter: rate.NewLimiter(rate.Limit(cfg.RatePerSec), cfg.RatePerSec),
		remove:  os.Remove,
	}
}

// SendText delivers text in chunks of at most ChunkSize runes, in order,
// pausing ChunkDelay between chunks. It stops at the first failed chunk.
func (g *Gateway) SendText(ctx context.Context, chatID int64, text string) bool {
	chunks := SplitText(text, g.cfg.ChunkSize)
	for i, chunk := range chunks {
		if i > 0 && g.cfg.ChunkDelay > 0 {
			if !sleep(ctx, g.cfg.ChunkDelay) {
				return false
			}
		}
		if err := g.limiter.Wait(ctx); err != nil {
			return false
		}
		sctx, cancel := context.WithTimeout(ctx, g.cfg.TextTimeout)
		_, err := g.adapter.SendText(sctx, kit.ChatTarget{ChatID: chatID}, chunk, &kit.SendOptions{DisablePreview: true})
		cancel()
		if err != nil {
			g.log.Warn("send text failed",
				logx.Int64("chat_id", chatID),
				logx.Int("chunk", i+1),
				logx.Int("chunks", len(chunks)),
				logx.Err(err),
			)
			return false
		}
	}
	return true
}

// SendMedia uploads the file at path as kind and removes it after a
// successful send. An unknown kind is sent as a document.
func (g *Gateway) SendMedia(ctx context.Context, chatID int64, kind media.Kind, path, caption string) bool {
	if !media.Valid(kind) {
		kind = media.Document
	}
	if err := g.limiter.Wait(ctx); err != nil {
		return false
	}
	sctx, cancel := context.WithTimeout(ctx, g.cfg.MediaTimeout)
	defer cancel()

	m := kit.Media{Kind: kind, Path: path, Caption: TruncateRunes(caption, g.cfg.CaptionLimit)}
	if _, err := g.adapter.SendMedia(sctx, kit.ChatTarget{ChatID: chatID}, m, nil); err != nil {
		g.log.Warn("send media failed",
			logx.Int64("chat_id", chatID),
			logx.String("kind", string(kind)),
			logx.String("path", path),
			logx.Err(err),
		)
		return false
	}
	if err := g.remove(path); err != nil && !os.IsNotExist(err) {
		g.log.Warn("remove delivered file failed", logx.String("path", path), logx.Err(err))
	}
	return true
}

// SplitText cuts s into consecutive pieces of at most limit runes. Empty
// input yields no pieces.
func SplitText(s string, limit int) []string {
	if s == "" {
		return nil
	}
	if limit <= 0 || utf8.RuneCountInString(s) <= limit {
		return []string{s}
	}
	var out []string
	start, n := 0, 0
	for i := range s {
		if n == limit {
			out = append(out, s[start:i])
			start, n = i, 0
		}
		n++
	}
	return append(out, s[start:])
}

// TruncateRunes keeps the first limit runes of s.
func TruncateRunes(s string, limit int) string {
	if limit <= 0 || utf8.RuneCountInString(s) <= limit {
		return s
	}
	n := 0
	for i := range s {
		if n == limit {
			return s[:i]
		}
		n++
	}
	return s
}

func sleep(ctx context.Context, d time.Duration) bool {
	t := time.NewTimer(d)
	defer t.Stop()
	select {
	case <-t.C:
		return true
	case <-ctx.Done():
		return false
	}
}
