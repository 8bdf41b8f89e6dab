package extract

import (
	"context"
	"errors"
	"net/http"
	"net/http/httptest"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"pagewatch/internal/fetch"
	"pagewatch/internal/media"
	logx "pagewatch/pkg/logx"
)

type fakeGetter struct {
	mu    sync.Mutex
	pages map[string]string
	calls []string
}

func (f *fakeGetter) Get(_ context.Context, url string, _ time.Duration, _ int64) ([]byte, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.calls = append(f.calls, url)
	body, ok := f.pages[url]
	if !ok {
		return nil, errors.New("404")
	}
	return []byte(body), nil
}

const page = `<html><body>
<a href="/files/report.pdf">report</a>
<a href="about.html">about</a>
<img src="https://cdn.example.com/img/cat.JPG">
<a href="/files/report.pdf">again</a>
<video src="/media/clip.mp4"></video>
<audio><source src="/media/song%20one.mp3"></audio>
<a href="mailto:someone@example.com">mail</a>
<a href="/files/copy-of-report.pdf">copy</a>
<a href="/files/missing.png">missing</a>
</body></html>`

func TestCandidates(t *testing.T) {
	t.Parallel()

	got, err := Candidates("https://example.com/dir/index.html", []byte(page))
	require.NoError(t, err)

	want := []Resource{
		{URL: "https://example.com/files/report.pdf", Kind: media.Document},
		{URL: "https://cdn.example.com/img/cat.JPG", Kind: media.Image},
		{URL: "https://example.com/media/clip.mp4", Kind: media.Video},
		{URL: "https://example.com/media/song%20one.mp3", Kind: media.Audio},
		{URL: "https://example.com/files/copy-of-report.pdf", Kind: media.Document},
		{URL: "https://example.com/files/missing.png", Kind: media.Image},
	}
	assert.Equal(t, want, got)
}

func TestExtract(t *testing.T) {
	t.Parallel()

	g := &fakeGetter{pages: map[string]string{
		"https://example.com/dir/index.html":           page,
		"https://example.com/files/report.pdf":         "PDF-1",
		"https://example.com/files/copy-of-report.pdf": "PDF-1",
		"https://cdn.example.com/img/cat.JPG":          "JPEG",
		"https://example.com/media/clip.mp4":           "MP4",
		"https://example.com/media/song%20one.mp3":     "MP3",
	}}
	e := New(Config{}, g, logx.Nop())

	p := e.Extract(context.Background(), "https://example.com/dir/index.html")
	require.False(t, p.Empty())
	assert.Equal(t, page, p.Content)

	var urls []string
	for _, r := range p.Resources {
		urls = append(urls, r.URL)
	}
	// the copy has the same bytes as report.pdf and is dropped
	assert.Equal(t, []string{
		"https://example.com/files/report.pdf",
		"https://cdn.example.com/img/cat.JPG",
		"https://example.com/media/clip.mp4",
		"https://example.com/media/song%20one.mp3",
		"https://example.com/files/missing.png",
	}, urls)

	assert.Equal(t, HashString("PDF-1"), p.Resources[0].Hash)
	// unreachable resource falls back to the hash of its URL
	assert.Equal(t, HashString("https://example.com/files/missing.png"), p.Resources[4].Hash)

	// non-media links are never fetched
	assert.NotContains(t, g.calls, "https://example.com/dir/about.html")
}

func TestCandidatesEscapedNames(t *testing.T) {
	t.Parallel()

	const html = `<html><body>
<a href="notes%23v2.pdf">notes</a>
<a href="q%3Fa.pdf">question</a>
<a href="p%25.pdf">percent</a>
<a href="a%20b.pdf">spaced</a>
<a href="a b.pdf">same file</a>
</body></html>`
	got, err := Candidates("https://ex.com/dir/", []byte(html))
	require.NoError(t, err)

	want := []Resource{
		{URL: "https://ex.com/dir/notes%23v2.pdf", Kind: media.Document},
		{URL: "https://ex.com/dir/q%3Fa.pdf", Kind: media.Document},
		{URL: "https://ex.com/dir/p%25.pdf", Kind: media.Document},
		{URL: "https://ex.com/dir/a%20b.pdf", Kind: media.Document},
	}
	assert.Equal(t, want, got)
}

func TestExtractEscapedNamesHashBody(t *testing.T) {
	t.Parallel()

	bodies := map[string]string{
		"/100%.pdf":     "PDF-100",
		"/notes#v2.pdf": "NOTES",
	}
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path == "/" {
			_, _ = w.Write([]byte(`<a href="/100%25.pdf">a</a><a href="/notes%23v2.pdf">b</a>`))
			return
		}
		body, ok := bodies[r.URL.Path]
		if !ok {
			http.NotFound(w, r)
			return
		}
		_, _ = w.Write([]byte(body))
	}))
	defer srv.Close()

	httpc := fetch.New(fetch.Config{}, logx.Nop())
	defer httpc.Close()
	p := New(Config{}, httpc, logx.Nop()).Extract(context.Background(), srv.URL+"/")
	require.Len(t, p.Resources, 2)
	assert.Equal(t, srv.URL+"/100%25.pdf", p.Resources[0].URL)
	assert.Equal(t, HashString("PDF-100"), p.Resources[0].Hash)
	assert.Equal(t, HashString("NOTES"), p.Resources[1].Hash)
}

func TestExtractUnreachablePage(t *testing.T) {
	t.Parallel()

	e := New(Config{}, &fakeGetter{}, logx.Nop())
	p := e.Extract(context.Background(), "https://down.example.com/")
	assert.True(t, p.Empty())
	assert.Empty(t, p.Resources)
}

func TestHash(t *testing.T) {
	t.Parallel()
	assert.Equal(t, "5d41402abc4b2a76b9719d911017c592", HashString("hello"))
	assert.Equal(t, HashString("abc"), HashBytes([]byte("abc")))
}
