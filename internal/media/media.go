// Package media classifies downloadable resources by file extension.
package media

import (
	"net/url"
	"path"
	"strings"
)

// Kind selects how a resource is delivered.
type Kind string

const (
	Document Kind = "document"
	Image    Kind = "image"
	Audio    Kind = "audio"
	Video    Kind = "video"
)

var byExt = map[string]Kind{
	".pdf":  Document,
	".jpg":  Image,
	".jpeg": Image,
	".png":  Image,
	".webp": Image,
	".mp3":  Audio,
	".wav":  Audio,
	".ogg":  Audio,
	".m4a":  Audio,
	".mp4":  Video,
	".mkv":  Video,
	".mov":  Video,
	".webm": Video,
}

// Ext returns the lowercased extension of the URL path (query and fragment
// ignored), or "" when there is none.
func Ext(rawURL string) string {
	p := rawURL
	if u, err := url.Parse(rawURL); err == nil {
		p = u.Path
	}
	return strings.ToLower(path.Ext(p))
}

// Classify reports the kind for a supported extension.
func Classify(rawURL string) (Kind, bool) {
	k, ok := byExt[Ext(rawURL)]
	return k, ok
}

// ClassifyPath is Classify for an already decoded URL path, which may
// contain '#', '?' or '%' as literal characters.
func ClassifyPath(p string) (Kind, bool) {
	k, ok := byExt[strings.ToLower(path.Ext(p))]
	return k, ok
}

// KindOf is Classify with Document as the fallback.
func KindOf(name string) Kind {
	if k, ok := Classify(name); ok {
		return k
	}
	return Document
}

// Supported lists the accepted extensions for a kind.
func Supported(k Kind) []string {
	var out []string
	for ext, kk := range byExt {
		if kk == k {
			out = append(out, ext)
		}
	}
	return out
}

// Valid reports whether k is one of the known kinds.
func Valid(k Kind) bool {
	switch k {
	case Document, Image, Audio, Video:
		return true
	}
	return false
}
