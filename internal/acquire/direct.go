package acquire

import (
	"context"
	"crypto/md5"
	"encoding/hex"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"time"

	"pagewatch/internal/fetch"
	"pagewatch/internal/media"
)

// Getter is the HTTP surface Direct needs (fetch.Client).
type Getter interface {
	Get(ctx context.Context, url string, timeout time.Duration, limit int64) ([]byte, error)
}

// Direct downloads the body over HTTP and stores it as
// <dir>/<md5(body)><ext[:4]>.
type Direct struct {
	Dir     string
	MaxSize int64
	Timeout time.Duration
	HTTP    Getter
}

func (d *Direct) Name() string { return "direct" }

func (d *Direct) Fetch(ctx context.Context, url string) (string, error) {
	limit := d.MaxSize
	if limit <= 0 {
		limit = DefaultMaxFileSize
	}
	body, err := d.HTTP.Get(ctx, url, d.Timeout, limit)
	if errors.Is(err, fetch.ErrTooLarge) {
		return "", fmt.Errorf("%w: %w", ErrTooLarge, err)
	}
	if err != nil {
		return "", err
	}

	ext := media.Ext(url)
	if len(ext) > 4 {
		ext = ext[:4]
	}
	sum := md5.Sum(body)
	dst := filepath.Join(d.Dir, hex.EncodeToString(sum[:])+ext)
	if err := writeFileAtomic(dst, body); err != nil {
		return "", err
	}
	return dst, nil
}

// writeFileAtomic writes through a temp file in the same directory and
// renames it into place, so a failed write never leaves a partial dst.
func writeFileAtomic(dst string, data []byte) error {
	dir := filepath.Dir(dst)
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return err
	}
	tmp, err := os.CreateTemp(dir, ".part-*")
	if err != nil {
		return err
	}
	name := tmp.Name()
	if _, err := tmp.Write(data); err != nil {
		_ = tmp.Close()
		_ = os.Remove(name)
		return err
	}
	if err := tmp.Close(); err != nil {
		_ = os.Remove(name)
		return err
	}
	if err := os.Rename(name, dst); err != nil {
		_ = os.Remove(name)
		return err
	}
	return nil
}
