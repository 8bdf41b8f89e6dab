package storage

import (
	"crypto/md5"
	"encoding/hex"
	"errors"
	"strconv"
	"time"
)

var (
	ErrDisabled = errors.New("storage disabled")
	ErrNotFound = errors.New("target not found")
)

// Config configures storage.
type Config struct {
	Driver      string
	Path        string        // sqlite, bolt
	DSN         string        // postgres
	BusyTimeout time.Duration // sqlite only; 0 means default
}

// Window restricts checks to local hours [StartHour, EndHour] in Timezone.
type Window struct {
	StartHour int    `json:"start_hour"`
	EndHour   int    `json:"end_hour"`
	Timezone  string `json:"timezone"`
}

// Target is one tracked URL of one owner. (OwnerID, URL) is the identity.
type Target struct {
	OwnerID         int64     `json:"owner_id"`
	URL             string    `json:"url"`
	Name            string    `json:"name"`
	IntervalMinutes int       `json:"interval_minutes"`
	Window          *Window   `json:"window,omitempty"`
	Fingerprint     string    `json:"fingerprint,omitempty"`
	SentHashes      []string  `json:"sent_hashes,omitempty"`
	CreatedAt       time.Time `json:"created_at"`
	LastCheckedAt   time.Time `json:"last_checked_at,omitempty"`
}

// Key is the stable job identity of the target.
func (t Target) Key() string { return TargetKey(t.OwnerID, t.URL) }

// HasSent reports whether a resource hash was already delivered.
func (t Target) HasSent(hash string) bool {
	for _, h := range t.SentHashes {
		if h == hash {
			return true
		}
	}
	return false
}

// TargetKey derives "<ownerID>_<md5hex(url)>".
func TargetKey(ownerID int64, url string) string {
	sum := md5.Sum([]byte(url))
	return strconv.FormatInt(ownerID, 10) + "_" + hex.EncodeToString(sum[:])
}

// CheckUpdate is the result of one successful check.
//
// An empty Fingerprint keeps the stored one. AddHashes are merged into the
// sent set (duplicates ignored).
type CheckUpdate struct {
	Fingerprint string
	AddHashes   []string
	CheckedAt   time.Time
}

func mergeHashes(have, add []string) []string {
	seen := make(map[string]struct{}, len(have)+len(add))
	out := make([]string, 0, len(have)+len(add))
	for _, list := range [][]string{have, add} {
		for _, h := range list {
			if h == "" {
				continue
			}
			if _, ok := seen[h]; ok {
				continue
			}
			seen[h] = struct{}{}
			out = append(out, h)
		}
	}
	return out
}
