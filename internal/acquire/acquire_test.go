package acquire

import (
	"context"
	"errors"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"pagewatch/internal/fetch"
	logx "pagewatch/pkg/logx"
)

type stubStrategy struct {
	name  string
	path  string
	err   error
	calls int
}

func (s *stubStrategy) Name() string { return s.name }

func (s *stubStrategy) Fetch(ctx context.Context, url string) (string, error) {
	s.calls++
	return s.path, s.err
}

func TestChainFallbackOrder(t *testing.T) {
	first := &stubStrategy{name: "a", err: errors.New("boom")}
	second := &stubStrategy{name: "b", path: "/tmp/x.mp4"}
	third := &stubStrategy{name: "c", path: "/tmp/never"}

	c := NewChain(logx.Nop(), first, second, third)
	got, err := c.Acquire(context.Background(), "https://example.com/x.mp4")
	require.NoError(t, err)
	assert.Equal(t, "/tmp/x.mp4", got)
	assert.Equal(t, 1, first.calls)
	assert.Equal(t, 1, second.calls)
	assert.Equal(t, 0, third.calls)
}

func TestChainAllFail(t *testing.T) {
	c := NewChain(logx.Nop(),
		&stubStrategy{name: "a", err: ErrDisabled},
		&stubStrategy{name: "b", err: ErrTooLarge},
	)
	_, err := c.Acquire(context.Background(), "https://example.com/x.zip")
	require.Error(t, err)
	assert.ErrorIs(t, err, ErrUnavailable)
	assert.ErrorIs(t, err, ErrTooLarge)
	assert.Contains(t, err.Error(), "b:")
}

func TestChainEmpty(t *testing.T) {
	_, err := NewChain(logx.Nop()).Acquire(context.Background(), "https://example.com/a.pdf")
	assert.ErrorIs(t, err, ErrUnavailable)
}

func TestChainCancelled(t *testing.T) {
	s := &stubStrategy{name: "a", path: "/tmp/a"}
	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	_, err := NewChain(logx.Nop(), s).Acquire(ctx, "https://example.com/a.pdf")
	assert.ErrorIs(t, err, ErrUnavailable)
	assert.ErrorIs(t, err, context.Canceled)
	assert.Equal(t, 0, s.calls)
}

type fakeGetter struct {
	body []byte
	err  error
}

func (g fakeGetter) Get(ctx context.Context, url string, timeout time.Duration, limit int64) ([]byte, error) {
	if g.err != nil {
		return nil, g.err
	}
	if limit > 0 && int64(len(g.body)) > limit {
		return nil, fetch.ErrTooLarge
	}
	return g.body, nil
}

func TestDirectFetch(t *testing.T) {
	dir := t.TempDir()
	d := &Direct{Dir: dir, MaxSize: 1024, HTTP: fakeGetter{body: []byte("hello")}}

	path, err := d.Fetch(context.Background(), "https://example.com/files/report.PDF?x=1")
	require.NoError(t, err)
	// md5("hello")
	assert.Equal(t, filepath.Join(dir, "5d41402abc4b2a76b9719d911017c592.pdf"), path)

	b, err := os.ReadFile(path)
	require.NoError(t, err)
	assert.Equal(t, "hello", string(b))
}

func TestDirectFetchEscapedURL(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path != "/100%.pdf" {
			http.NotFound(w, r)
			return
		}
		_, _ = w.Write([]byte("hello"))
	}))
	defer srv.Close()

	httpc := fetch.New(fetch.Config{}, logx.Nop())
	defer httpc.Close()
	dir := t.TempDir()
	d := &Direct{Dir: dir, MaxSize: 1024, HTTP: httpc}

	path, err := d.Fetch(context.Background(), srv.URL+"/100%25.pdf")
	require.NoError(t, err)
	assert.Equal(t, filepath.Join(dir, "5d41402abc4b2a76b9719d911017c592.pdf"), path)
}

func TestDirectExtensionTruncated(t *testing.T) {
	dir := t.TempDir()
	d := &Direct{Dir: dir, HTTP: fakeGetter{body: []byte("x")}}
	path, err := d.Fetch(context.Background(), "https://example.com/a.webm")
	require.NoError(t, err)
	assert.True(t, strings.HasSuffix(path, ".web"), path)
}

func TestDirectTooLargeLeavesNothing(t *testing.T) {
	dir := t.TempDir()
	d := &Direct{Dir: dir, MaxSize: 3, HTTP: fakeGetter{body: []byte("too big")}}

	_, err := d.Fetch(context.Background(), "https://example.com/a.zip")
	assert.ErrorIs(t, err, ErrTooLarge)

	entries, err := os.ReadDir(dir)
	require.NoError(t, err)
	assert.Empty(t, entries)
}

// fakeYTDLP emulates the two yt-dlp invocations: a filename probe and the
// download, which writes size bytes to the predicted path.
type fakeYTDLP struct {
	path      string
	size      int
	downloads int
	dlErr     error
}

func (f *fakeYTDLP) run(ctx context.Context, name string, args ...string) ([]byte, error) {
	for _, a := range args {
		if a == "--skip-download" {
			return []byte("[info] something\n" + f.path + "\n"), nil
		}
	}
	f.downloads++
	if f.dlErr != nil {
		_ = os.WriteFile(f.path+".part", []byte("partial"), 0o644)
		return nil, f.dlErr
	}
	if f.size > 0 {
		return nil, os.WriteFile(f.path, make([]byte, f.size), 0o644)
	}
	return nil, nil
}

func TestYTDLPDisabled(t *testing.T) {
	y := &YTDLP{Enabled: false, Dir: t.TempDir()}
	_, err := y.Fetch(context.Background(), "https://example.com/v")
	assert.ErrorIs(t, err, ErrDisabled)
}

func TestYTDLPDownloads(t *testing.T) {
	dir := t.TempDir()
	f := &fakeYTDLP{path: filepath.Join(dir, "abc.mp4"), size: 10}
	y := &YTDLP{Enabled: true, Dir: dir, MaxSize: 100, Run: f.run}

	got, err := y.Fetch(context.Background(), "https://video.example.com/watch?v=abc")
	require.NoError(t, err)
	assert.Equal(t, f.path, got)
	assert.Equal(t, 1, f.downloads)
}

func TestYTDLPReusesExistingFile(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "abc.mp4")
	require.NoError(t, os.WriteFile(path, []byte("cached"), 0o644))

	f := &fakeYTDLP{path: path, size: 10}
	y := &YTDLP{Enabled: true, Dir: dir, MaxSize: 100, Run: f.run}

	got, err := y.Fetch(context.Background(), "https://video.example.com/watch?v=abc")
	require.NoError(t, err)
	assert.Equal(t, path, got)
	assert.Equal(t, 0, f.downloads)
}

func TestYTDLPSizeCeiling(t *testing.T) {
	tests := []struct {
		name string
		size int
	}{
		{name: "rejected by max-filesize", size: 0},
		{name: "oversized file written", size: 200},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			dir := t.TempDir()
			f := &fakeYTDLP{path: filepath.Join(dir, "big.mp4"), size: tt.size}
			y := &YTDLP{Enabled: true, Dir: dir, MaxSize: 100, Run: f.run}

			_, err := y.Fetch(context.Background(), "https://video.example.com/big")
			assert.ErrorIs(t, err, ErrTooLarge)

			entries, err := os.ReadDir(dir)
			require.NoError(t, err)
			assert.Empty(t, entries)
		})
	}
}

func TestYTDLPFailureCleansPartial(t *testing.T) {
	dir := t.TempDir()
	f := &fakeYTDLP{path: filepath.Join(dir, "v.mp4"), dlErr: errors.New("exit status 1")}
	y := &YTDLP{Enabled: true, Dir: dir, Run: f.run}

	_, err := y.Fetch(context.Background(), "https://video.example.com/v")
	require.Error(t, err)

	entries, err := os.ReadDir(dir)
	require.NoError(t, err)
	assert.Empty(t, entries)
}

func TestChainFallsBackToDirect(t *testing.T) {
	dir := t.TempDir()
	y := &YTDLP{Enabled: true, Dir: dir, Run: func(ctx context.Context, name string, args ...string) ([]byte, error) {
		return nil, errors.New("unsupported url")
	}}
	d := &Direct{Dir: dir, HTTP: fakeGetter{body: []byte("%PDF")}}

	got, err := NewChain(logx.Nop(), y, d).Acquire(context.Background(), "https://example.com/doc.pdf")
	require.NoError(t, err)
	assert.Equal(t, dir, filepath.Dir(got))
	assert.Equal(t, ".pdf", filepath.Ext(got))
}
