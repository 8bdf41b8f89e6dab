// Package fetch is the process-wide HTTP session used for page and resource
// downloads.
package fetch

import (
	"context"
	"errors"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"

	logx "pagewatch/pkg/logx"
)

var (
	// ErrStatus is returned for non-2xx responses.
	ErrStatus = errors.New("unexpected http status")
	// ErrTooLarge is returned when a body exceeds the caller's limit.
	ErrTooLarge = errors.New("response body too large")
)

const defaultUserAgent = "Mozilla/5.0 (compatible; pagewatch/1.0)"

type Config struct {
	PageTimeout     time.Duration
	ResourceTimeout time.Duration
	UserAgent       string
}

func (c Config) withDefaults() Config {
	if c.PageTimeout <= 0 {
		c.PageTimeout = 30 * time.Second
	}
	if c.ResourceTimeout <= 0 {
		c.ResourceTimeout = 60 * time.Second
	}
	if strings.TrimSpace(c.UserAgent) == "" {
		c.UserAgent = defaultUserAgent
	}
	return c
}

// Client wraps one shared *http.Client. It is safe for concurrent use.
type Client struct {
	cfg  Config
	http *http.Client
	log  logx.Logger
}

func New(cfg Config, log logx.Logger) *Client {
	if log.IsZero() {
		log = logx.Nop()
	}
	tr := http.DefaultTransport.(*http.Transport).Clone()
	tr.MaxIdleConnsPerHost = 4
	return &Client{cfg: cfg.withDefaults(), http: &http.Client{Transport: tr}, log: log}
}

// NewWithHTTP is New with a caller-provided client (tests use httptest clients).
func NewWithHTTP(cfg Config, hc *http.Client, log logx.Logger) *Client {
	c := New(cfg, log)
	if hc != nil {
		c.http = hc
	}
	return c
}

func (c *Client) PageTimeout() time.Duration     { return c.cfg.PageTimeout }
func (c *Client) ResourceTimeout() time.Duration { return c.cfg.ResourceTimeout }

// Get downloads url within timeout. A limit > 0 caps the body size: larger
// bodies fail with ErrTooLarge once limit+1 bytes were read.
func (c *Client) Get(ctx context.Context, url string, timeout time.Duration, limit int64) ([]byte, error) {
	if timeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, timeout)
		defer cancel()
	}
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, url, nil)
	if err != nil {
		return nil, err
	}
	req.Header.Set("User-Agent", c.cfg.UserAgent)

	resp, err := c.http.Do(req)
	if err != nil {
		return nil, err
	}
	defer resp.Body.Close()

	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		_, _ = io.Copy(io.Discard, io.LimitReader(resp.Body, 4<<10))
		return nil, fmt.Errorf("%w: %d", ErrStatus, resp.StatusCode)
	}
	if limit > 0 && resp.ContentLength > limit {
		return nil, fmt.Errorf("%w: content-length %d > %d", ErrTooLarge, resp.ContentLength, limit)
	}

	var r io.Reader = resp.Body
	if limit > 0 {
		r = io.LimitReader(resp.Body, limit+1)
	}
	body, err := io.ReadAll(r)
	if err != nil {
		return nil, err
	}
	if limit > 0 && int64(len(body)) > limit {
		return nil, fmt.Errorf("%w: more than %d bytes", ErrTooLarge, limit)
	}
	return body, nil
}

// Close releases idle connections.
func (c *Client) Close() {
	c.http.CloseIdleConnections()
}
