package media

import (
	"sort"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestClassify(t *testing.T) {
	t.Parallel()

	cases := []struct {
		in   string
		kind Kind
		ok   bool
	}{
		{"https://ex.com/files/Report.PDF", Document, true},
		{"https://ex.com/a/photo.jpeg?size=large#top", Image, true},
		{"https://ex.com/song.m4a", Audio, true},
		{"https://ex.com/clip.webm", Video, true},
		{"https://ex.com/page.html", "", false},
		{"https://ex.com/archive.tar.gz", "", false},
		{"https://ex.com/noext", "", false},
		{"relative/path/file.png", Image, true},
	}
	for _, tc := range cases {
		t.Run(tc.in, func(t *testing.T) {
			k, ok := Classify(tc.in)
			assert.Equal(t, tc.ok, ok)
			assert.Equal(t, tc.kind, k)
		})
	}
}

func TestClassifyPath(t *testing.T) {
	t.Parallel()

	for _, p := range []string{"/dir/notes#v2.pdf", "/dir/q?a.pdf", "/dir/100%.PDF"} {
		k, ok := ClassifyPath(p)
		assert.True(t, ok, p)
		assert.Equal(t, Document, k, p)
	}
	_, ok := ClassifyPath("/dir/index.html")
	assert.False(t, ok)
}

func TestKindOfFallsBackToDocument(t *testing.T) {
	t.Parallel()
	assert.Equal(t, Document, KindOf("downloads/abc.zip"))
	assert.Equal(t, Video, KindOf("downloads/abc.mp4"))
}

func TestSupported(t *testing.T) {
	t.Parallel()
	got := Supported(Audio)
	sort.Strings(got)
	require.Equal(t, []string{".m4a", ".mp3", ".ogg", ".wav"}, got)
}

func TestValid(t *testing.T) {
	assert.True(t, Valid(Video))
	assert.True(t, Valid(Document))
	assert.False(t, Valid(Kind("sticker")))
	assert.False(t, Valid(""))
}
