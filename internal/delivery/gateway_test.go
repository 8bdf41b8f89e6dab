package delivery

import (
	"context"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"
	"unicode/utf8"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"pagewatch/internal/media"
	kit "pagewatch/internal/transport"
	"pagewatch/internal/transport/transporttest"
	logx "pagewatch/pkg/logx"
)

func TestSplitText(t *testing.T) {
	tests := []struct {
		name  string
		in    string
		limit int
		want  []string
	}{
		{"empty", "", 10, nil},
		{"short", "hello", 10, []string{"hello"}},
		{"exact", "abcd", 4, []string{"abcd"}},
		{"split", "abcdefghij", 4, []string{"abcd", "efgh", "ij"}},
		{"runes", "ééééé", 2, []string{"éé", "éé", "é"}},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, SplitText(tt.in, tt.limit))
		})
	}
}

func TestSplitTextTelegramLimit(t *testing.T) {
	s := strings.Repeat("x", 9000)
	parts := SplitText(s, DefaultChunkSize)
	require.Len(t, parts, 3)
	assert.Equal(t, 4096, len(parts[0]))
	assert.Equal(t, 808, len(parts[2]))
	assert.Equal(t, s, strings.Join(parts, ""))
}

func TestTruncateRunes(t *testing.T) {
	assert.Equal(t, "héllo", TruncateRunes("héllo", 10))
	assert.Equal(t, "hé", TruncateRunes("héllo", 2))
	long := strings.Repeat("ü", 2000)
	assert.Equal(t, DefaultCaptionLimit, utf8.RuneCountInString(TruncateRunes(long, DefaultCaptionLimit)))
}

func newGateway(rec *transporttest.Recorder) *Gateway {
	return New(Config{ChunkSize: 5, ChunkDelay: time.Millisecond, CaptionLimit: 3, RatePerSec: 1000}, rec, logx.Nop())
}

func TestSendTextChunksInOrder(t *testing.T) {
	rec := &transporttest.Recorder{}
	g := newGateway(rec)

	ok := g.SendText(context.Background(), 7, "aaaaabbbbbcc")
	require.True(t, ok)
	assert.Equal(t, []string{"aaaaa", "bbbbb", "cc"}, rec.Texts())
	for _, s := range rec.Sent() {
		assert.Equal(t, int64(7), s.To.ChatID)
	}
}

func TestSendTextStopsOnFailure(t *testing.T) {
	rec := &transporttest.Recorder{FailText: func(text string) error {
		if text == "bbbbb" {
			return transporttest.ErrInjected
		}
		return nil
	}}
	g := newGateway(rec)

	assert.False(t, g.SendText(context.Background(), 7, "aaaaabbbbbcc"))
	assert.Equal(t, []string{"aaaaa"}, rec.Texts())
}

func TestSendTextCancelledBetweenChunks(t *testing.T) {
	rec := &transporttest.Recorder{}
	g := New(Config{ChunkSize: 1, ChunkDelay: time.Hour, RatePerSec: 1000}, rec, logx.Nop())

	ctx, cancel := context.WithTimeout(context.Background(), 20*time.Millisecond)
	defer cancel()
	assert.False(t, g.SendText(ctx, 1, "ab"))
	assert.Equal(t, []string{"a"}, rec.Texts())
}

func TestSendMediaRemovesFileOnSuccess(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "clip.mp4")
	require.NoError(t, os.WriteFile(path, []byte("x"), 0o644))

	rec := &transporttest.Recorder{}
	g := newGateway(rec)

	require.True(t, g.SendMedia(context.Background(), 9, media.Video, path, "caption"))
	sent := rec.Media()
	require.Len(t, sent, 1)
	assert.Equal(t, kit.Media{Kind: media.Video, Path: path, Caption: "cap"}, sent[0])

	_, err := os.Stat(path)
	assert.True(t, os.IsNotExist(err))
}

func TestSendMediaFailureKeepsFile(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "doc.pdf")
	require.NoError(t, os.WriteFile(path, []byte("x"), 0o644))

	rec := &transporttest.Recorder{FailMedia: func(kit.Media) error { return transporttest.ErrInjected }}
	g := newGateway(rec)

	assert.False(t, g.SendMedia(context.Background(), 9, media.Document, path, ""))
	_, err := os.Stat(path)
	assert.NoError(t, err)
}

func TestSendMediaUnknownKindFallsBackToDocument(t *testing.T) {
	rec := &transporttest.Recorder{}
	g := newGateway(rec)
	g.remove = func(string) error { return nil }

	require.True(t, g.SendMedia(context.Background(), 9, media.Kind("sticker"), "/tmp/x.bin", ""))
	assert.Equal(t, media.Document, rec.Media()[0].Kind)
}
