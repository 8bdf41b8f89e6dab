package storage

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"os"
	"path/filepath"
	"sort"
	"strconv"
	"strings"
	"time"

	"go.etcd.io/bbolt"

	logx "pagewatch/pkg/logx"
)

const (
	boltBucketTargets = "targets" // key: TargetKey -> Target JSON
	boltBucketSudo    = "sudo"    // key: user id -> added_at
	boltBucketChats   = "chats"   // key: chat id -> added_at
)

type boltStore struct {
	db  *bbolt.DB
	log logx.Logger
}

func openBolt(cfg Config, log logx.Logger) (Store, error) {
	path := strings.TrimSpace(cfg.Path)
	if path == "" {
		return nil, errors.New("bolt path is required")
	}
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return nil, err
	}
	db, err := bbolt.Open(path, 0o600, &bbolt.Options{Timeout: time.Second})
	if err != nil {
		return nil, err
	}
	if err := db.Update(func(tx *bbolt.Tx) error {
		for _, b := range []string{boltBucketTargets, boltBucketSudo, boltBucketChats} {
			if _, err := tx.CreateBucketIfNotExists([]byte(b)); err != nil {
				return err
			}
		}
		return nil
	}); err != nil {
		_ = db.Close()
		return nil, err
	}
	log.Debug("bolt store opened", logx.String("path", path))
	return &boltStore{db: db, log: log}, nil
}

func (s *boltStore) Close() error {
	if s == nil || s.db == nil {
		return nil
	}
	return s.db.Close()
}

func getTarget(b *bbolt.Bucket, key string) (Target, bool, error) {
	raw := b.Get([]byte(key))
	if raw == nil {
		return Target{}, false, nil
	}
	var t Target
	if err := json.Unmarshal(raw, &t); err != nil {
		return Target{}, false, err
	}
	return t, true, nil
}

func putTarget(b *bbolt.Bucket, t Target) error {
	raw, err := json.Marshal(t)
	if err != nil {
		return err
	}
	return b.Put([]byte(t.Key()), raw)
}

func (s *boltStore) UpsertTarget(_ context.Context, t Target) error {
	return s.db.Update(func(tx *bbolt.Tx) error {
		b := tx.Bucket([]byte(boltBucketTargets))
		prev, ok, err := getTarget(b, t.Key())
		if err != nil {
			return err
		}
		if ok {
			t.SentHashes = prev.SentHashes
			t.CreatedAt = prev.CreatedAt
			t.LastCheckedAt = prev.LastCheckedAt
		} else {
			t.SentHashes = nil
		}
		if t.CreatedAt.IsZero() {
			t.CreatedAt = time.Now()
		}
		return putTarget(b, t)
	})
}

func (s *boltStore) GetTarget(_ context.Context, ownerID int64, url string) (Target, bool, error) {
	var (
		t  Target
		ok bool
	)
	err := s.db.View(func(tx *bbolt.Tx) error {
		var err error
		t, ok, err = getTarget(tx.Bucket([]byte(boltBucketTargets)), TargetKey(ownerID, url))
		return err
	})
	return t, ok, err
}

// Keys are "<owner>_<md5>", so one owner's targets share a key prefix.
func (s *boltStore) ListTargetsByOwner(_ context.Context, ownerID int64) ([]Target, error) {
	prefix := []byte(strconv.FormatInt(ownerID, 10) + "_")
	var out []Target
	err := s.db.View(func(tx *bbolt.Tx) error {
		c := tx.Bucket([]byte(boltBucketTargets)).Cursor()
		for k, v := c.Seek(prefix); k != nil && bytes.HasPrefix(k, prefix); k, v = c.Next() {
			var t Target
			if err := json.Unmarshal(v, &t); err != nil {
				return err
			}
			out = append(out, t)
		}
		return nil
	})
	sortTargets(out)
	return out, err
}

func (s *boltStore) ListAllTargets(_ context.Context) ([]Target, error) {
	var out []Target
	err := s.db.View(func(tx *bbolt.Tx) error {
		return tx.Bucket([]byte(boltBucketTargets)).ForEach(func(_, v []byte) error {
			var t Target
			if err := json.Unmarshal(v, &t); err != nil {
				return err
			}
			out = append(out, t)
			return nil
		})
	})
	sortTargets(out)
	return out, err
}

func sortTargets(ts []Target) {
	sort.SliceStable(ts, func(i, j int) bool {
		if ts[i].OwnerID != ts[j].OwnerID {
			return ts[i].OwnerID < ts[j].OwnerID
		}
		if !ts[i].CreatedAt.Equal(ts[j].CreatedAt) {
			return ts[i].CreatedAt.Before(ts[j].CreatedAt)
		}
		return ts[i].URL < ts[j].URL
	})
}

func (s *boltStore) CountTargetsByOwner(ctx context.Context, ownerID int64) (int, error) {
	ts, err := s.ListTargetsByOwner(ctx, ownerID)
	return len(ts), err
}

func (s *boltStore) DeleteTarget(_ context.Context, ownerID int64, url string) (bool, error) {
	var removed bool
	err := s.db.Update(func(tx *bbolt.Tx) error {
		b := tx.Bucket([]byte(boltBucketTargets))
		key := []byte(TargetKey(ownerID, url))
		if b.Get(key) == nil {
			return nil
		}
		removed = true
		return b.Delete(key)
	})
	return removed, err
}

func (s *boltStore) UpdateCheckState(_ context.Context, ownerID int64, url string, u CheckUpdate) (bool, error) {
	if u.CheckedAt.IsZero() {
		u.CheckedAt = time.Now()
	}
	var found bool
	err := s.db.Update(func(tx *bbolt.Tx) error {
		b := tx.Bucket([]byte(boltBucketTargets))
		t, ok, err := getTarget(b, TargetKey(ownerID, url))
		if err != nil || !ok {
			return err
		}
		found = true
		if u.Fingerprint != "" {
			t.Fingerprint = u.Fingerprint
		}
		t.SentHashes = mergeHashes(t.SentHashes, u.AddHashes)
		t.LastCheckedAt = u.CheckedAt
		return putTarget(b, t)
	})
	return found, err
}

func (s *boltStore) SetWindow(_ context.Context, ownerID int64, url string, w *Window) (bool, error) {
	var found bool
	err := s.db.Update(func(tx *bbolt.Tx) error {
		b := tx.Bucket([]byte(boltBucketTargets))
		t, ok, err := getTarget(b, TargetKey(ownerID, url))
		if err != nil || !ok {
			return err
		}
		found = true
		t.Window = w
		return putTarget(b, t)
	})
	return found, err
}

func idKey(id int64) []byte { return []byte(strconv.FormatInt(id, 10)) }

func (s *boltStore) addID(bucket string, id int64) error {
	return s.db.Update(func(tx *bbolt.Tx) error {
		b := tx.Bucket([]byte(bucket))
		if b.Get(idKey(id)) != nil {
			return nil
		}
		return b.Put(idKey(id), []byte(time.Now().UTC().Format(time.RFC3339)))
	})
}

func (s *boltStore) removeID(bucket string, id int64) (bool, error) {
	var removed bool
	err := s.db.Update(func(tx *bbolt.Tx) error {
		b := tx.Bucket([]byte(bucket))
		if b.Get(idKey(id)) == nil {
			return nil
		}
		removed = true
		return b.Delete(idKey(id))
	})
	return removed, err
}

func (s *boltStore) hasID(bucket string, id int64) (bool, error) {
	var ok bool
	err := s.db.View(func(tx *bbolt.Tx) error {
		ok = tx.Bucket([]byte(bucket)).Get(idKey(id)) != nil
		return nil
	})
	return ok, err
}

func (s *boltStore) AddSudo(_ context.Context, userID int64) error { return s.addID(boltBucketSudo, userID) }
func (s *boltStore) RemoveSudo(_ context.Context, userID int64) (bool, error) {
	return s.removeID(boltBucketSudo, userID)
}
func (s *boltStore) IsSudo(_ context.Context, userID int64) (bool, error) {
	return s.hasID(boltBucketSudo, userID)
}

func (s *boltStore) ListSudo(_ context.Context) ([]int64, error) {
	var out []int64
	err := s.db.View(func(tx *bbolt.Tx) error {
		return tx.Bucket([]byte(boltBucketSudo)).ForEach(func(k, _ []byte) error {
			id, err := strconv.ParseInt(string(k), 10, 64)
			if err != nil {
				return err
			}
			out = append(out, id)
			return nil
		})
	})
	sort.Slice(out, func(i, j int) bool { return out[i] < out[j] })
	return out, err
}

func (s *boltStore) AuthorizeChat(_ context.Context, chatID int64) error {
	return s.addID(boltBucketChats, chatID)
}
func (s *boltStore) UnauthorizeChat(_ context.Context, chatID int64) (bool, error) {
	return s.removeID(boltBucketChats, chatID)
}
func (s *boltStore) IsChatAuthorized(_ context.Context, chatID int64) (bool, error) {
	return s.hasID(boltBucketChats, chatID)
}
