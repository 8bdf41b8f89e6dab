// Package extract fetches a page and lists the downloadable resources it
// links to, each identified by a content hash.
package extract

import (
	"bytes"
	"context"
	"crypto/md5"
	"encoding/hex"
	"net/url"
	"strings"
	"time"

	"github.com/PuerkitoBio/goquery"

	"pagewatch/internal/media"
	logx "pagewatch/pkg/logx"
)

// Resource is a downloadable file referenced by a page.
type Resource struct {
	URL  string
	Kind media.Kind
	Hash string
}

// Page is the result of one extraction. An empty Content means the page
// could not be read; callers must treat that as "no information".
type Page struct {
	URL       string
	Content   string
	Resources []Resource
}

func (p Page) Empty() bool { return p.Content == "" }

// Getter is the HTTP surface the extractor needs (fetch.Client).
type Getter interface {
	Get(ctx context.Context, url string, timeout time.Duration, limit int64) ([]byte, error)
}

type Config struct {
	PageTimeout     time.Duration
	ResourceTimeout time.Duration
	// MaxPageSize caps the page body; 0 means unlimited.
	MaxPageSize int64
	// MaxResourceSize caps the bytes fetched to hash a resource. Larger
	// resources are identified by the hash of their URL.
	MaxResourceSize int64
}

type Extractor struct {
	cfg Config
	get Getter
	log logx.Logger
}

func New(cfg Config, get Getter, log logx.Logger) *Extractor {
	if cfg.PageTimeout <= 0 {
		cfg.PageTimeout = 30 * time.Second
	}
	if cfg.ResourceTimeout <= 0 {
		cfg.ResourceTimeout = 60 * time.Second
	}
	if log.IsZero() {
		log = logx.Nop()
	}
	return &Extractor{cfg: cfg, get: get, log: log}
}

// Extract never fails: fetch and parse errors are logged and yield an empty
// Page (or a Page without resources when only parsing failed).
func (e *Extractor) Extract(ctx context.Context, pageURL string) Page {
	body, err := e.get.Get(ctx, pageURL, e.cfg.PageTimeout, e.cfg.MaxPageSize)
	if err != nil {
		e.log.Warn("page fetch failed", logx.String("url", pageURL), logx.Err(err))
		return Page{URL: pageURL}
	}
	page := Page{URL: pageURL, Content: string(body)}

	cands, err := Candidates(pageURL, body)
	if err != nil {
		e.log.Warn("page parse failed", logx.String("url", pageURL), logx.Err(err))
		return page
	}

	seen := make(map[string]struct{}, len(cands))
	for _, c := range cands {
		if ctx.Err() != nil {
			break
		}
		h := e.hashResource(ctx, c.URL)
		if _, dup := seen[h]; dup {
			continue
		}
		seen[h] = struct{}{}
		c.Hash = h
		page.Resources = append(page.Resources, c)
	}
	e.log.Debug("page extracted",
		logx.String("url", pageURL),
		logx.Int("bytes", len(body)),
		logx.Int("candidates", len(cands)),
		logx.Int("resources", len(page.Resources)),
	)
	return page
}

func (e *Extractor) hashResource(ctx context.Context, resURL string) string {
	b, err := e.get.Get(ctx, resURL, e.cfg.ResourceTimeout, e.cfg.MaxResourceSize)
	if err != nil {
		e.log.Debug("resource fetch failed; hashing url", logx.String("url", resURL), logx.Err(err))
		return HashString(resURL)
	}
	return HashBytes(b)
}

const selectors = "a[href], img[src], audio[src], video[src], source[src]"

// Candidates parses html and returns, in document order, every linked
// resource with a supported extension. References are resolved against
// pageURL and compared unescaped; each resource appears once and keeps
// its escaped URL for fetching. Hash is left empty.
func Candidates(pageURL string, html []byte) ([]Resource, error) {
	base, err := url.Parse(pageURL)
	if err != nil {
		return nil, err
	}
	doc, err := goquery.NewDocumentFromReader(bytes.NewReader(html))
	if err != nil {
		return nil, err
	}

	var out []Resource
	visited := map[string]struct{}{}
	doc.Find(selectors).Each(func(_ int, s *goquery.Selection) {
		attr := "src"
		if goquery.NodeName(s) == "a" {
			attr = "href"
		}
		raw, ok := s.Attr(attr)
		raw = strings.TrimSpace(raw)
		if !ok || raw == "" {
			return
		}
		abs, ok := resolve(base, raw)
		if !ok {
			return
		}
		kind, ok := media.ClassifyPath(abs.Path)
		if !ok {
			return
		}
		key := dedupKey(abs)
		if _, dup := visited[key]; dup {
			return
		}
		visited[key] = struct{}{}
		out = append(out, Resource{URL: abs.String(), Kind: kind})
	})
	return out, nil
}

func resolve(base *url.URL, ref string) (*url.URL, bool) {
	u, err := url.Parse(ref)
	if err != nil {
		return nil, false
	}
	abs := base.ResolveReference(u)
	if abs.Scheme != "http" && abs.Scheme != "https" {
		return nil, false
	}
	return abs, true
}

// dedupKey compares links by their unescaped form, so "a%20b.pdf" and
// "a b.pdf" are one resource. The key is never fetched.
func dedupKey(u *url.URL) string {
	s := u.String()
	if unescaped, err := url.PathUnescape(s); err == nil {
		return unescaped
	}
	return s
}

// HashBytes returns the hex MD5 of b.
func HashBytes(b []byte) string {
	sum := md5.Sum(b)
	return hex.EncodeToString(sum[:])
}

// HashString returns the hex MD5 of s.
func HashString(s string) string { return HashBytes([]byte(s)) }
