// Package detector decides whether a tracked page changed and delivers the
// notice and the newly discovered files to the owner.
package detector

import (
	"context"
	"crypto/md5"
	"encoding/hex"
	"errors"
	"fmt"
	"runtime/debug"
	"time"

	"github.com/google/uuid"

	"pagewatch/internal/eventbus"
	"pagewatch/internal/extract"
	"pagewatch/internal/media"
	"pagewatch/internal/storage"
	logx "pagewatch/pkg/logx"
)

const persistTimeout = 5 * time.Second

// Store is the storage surface the detector needs.
type Store interface {
	GetTarget(ctx context.Context, ownerID int64, url string) (storage.Target, bool, error)
	UpdateCheckState(ctx context.Context, ownerID int64, url string, u storage.CheckUpdate) (bool, error)
}

type Extractor interface {
	Extract(ctx context.Context, url string) extract.Page
}

type Acquirer interface {
	Acquire(ctx context.Context, url string) (string, error)
}

type Sender interface {
	SendText(ctx context.Context, chatID int64, text string) bool
	SendMedia(ctx context.Context, chatID int64, kind media.Kind, path, caption string) bool
}

type Deps struct {
	Store     Store
	Extractor Extractor
	Acquirer  Acquirer
	Sender    Sender
	Bus       eventbus.Bus // optional
	Log       logx.Logger
	Now       func() time.Time
	// Loc formats the detection time in notices.
	Loc *time.Location
}

type Detector struct {
	d Deps
}

func New(d Deps) *Detector {
	if d.Log.IsZero() {
		d.Log = logx.Nop()
	}
	if d.Now == nil {
		d.Now = time.Now
	}
	if d.Loc == nil {
		d.Loc = time.Local
	}
	return &Detector{d: d}
}

// Result describes one check.
type Result struct {
	Found        bool
	Changed      bool
	Fingerprint  string
	NewResources []extract.Resource
	Delivered    []string // hashes of resources sent in this check
	Skipped      int
	// Persisted is false when the target was removed while the check ran.
	Persisted bool
}

// Fingerprint is the MD5 hex digest of the raw page text.
func Fingerprint(content string) string {
	sum := md5.Sum([]byte(content))
	return hex.EncodeToString(sum[:])
}

// Evaluate compares a fresh page against the stored target. A page is
// changed when its fingerprint differs or it links at least one resource
// whose hash was never delivered.
func Evaluate(t storage.Target, p extract.Page) (fp string, fresh []extract.Resource, changed bool) {
	fp = Fingerprint(p.Content)
	for _, r := range p.Resources {
		if !t.HasSent(r.Hash) {
			fresh = append(fresh, r)
		}
	}
	return fp, fresh, fp != t.Fingerprint || len(fresh) > 0
}

// Check runs one detection pass for (ownerID, url). A missing target or an
// unreadable page is a no-op. State is persisted only after every delivery
// attempt finished.
func (d *Detector) Check(ctx context.Context, ownerID int64, url string) (Result, error) {
	var res Result
	t, ok, err := d.d.Store.GetTarget(ctx, ownerID, url)
	if err != nil {
		return res, fmt.Errorf("load target: %w", err)
	}
	if !ok {
		return res, nil
	}
	res.Found = true

	page := d.d.Extractor.Extract(ctx, url)
	if err := ctx.Err(); err != nil {
		return res, err
	}
	if page.Empty() {
		d.d.Log.Debug("page empty; skipping check", logx.String("url", url))
		return res, nil
	}

	fp, fresh, changed := Evaluate(t, page)
	res.Fingerprint, res.NewResources, res.Changed = fp, fresh, changed
	now := d.d.Now()

	if !changed {
		return res, d.persist(ctx, ownerID, url, storage.CheckUpdate{CheckedAt: now}, &res)
	}

	d.d.Sender.SendText(ctx, ownerID, changeNotice(url, now.In(d.d.Loc)))

	var abort error
	for _, r := range fresh {
		if err := ctx.Err(); err != nil {
			abort = err
			break
		}
		if d.deliver(ctx, t, r) {
			res.Delivered = append(res.Delivered, r.Hash)
		} else {
			res.Skipped++
		}
	}
	if abort == nil {
		abort = ctx.Err()
	}
	if abort == nil && fp == t.Fingerprint && len(res.Delivered) == 0 {
		// Only undeliverable resources made this pass "changed"; the notice
		// repeats every tick until they can be acquired.
		d.d.Log.Warn("update notice repeated for undeliverable resources",
			logx.String("url", url), logx.Int("skipped", res.Skipped))
	}

	u := storage.CheckUpdate{Fingerprint: fp, AddHashes: res.Delivered, CheckedAt: now}
	if abort != nil {
		// Keep the stored fingerprint so the next pass retries the rest.
		u.Fingerprint = ""
	}
	if err := d.persist(ctx, ownerID, url, u, &res); err != nil {
		return res, err
	}
	return res, abort
}

func (d *Detector) deliver(ctx context.Context, t storage.Target, r extract.Resource) bool {
	path, err := d.d.Acquirer.Acquire(ctx, r.URL)
	if err != nil {
		d.d.Log.Info("resource skipped", logx.String("resource", r.URL), logx.Err(err))
		return false
	}
	return d.d.Sender.SendMedia(ctx, t.OwnerID, r.Kind, path, mediaCaption(t, r))
}

func (d *Detector) persist(ctx context.Context, ownerID int64, url string, u storage.CheckUpdate, res *Result) error {
	// Deliveries already happened; record them even if the job context ended.
	pctx, cancel := context.WithTimeout(context.WithoutCancel(ctx), persistTimeout)
	defer cancel()
	ok, err := d.d.Store.UpdateCheckState(pctx, ownerID, url, u)
	if err != nil {
		return fmt.Errorf("persist check state: %w", err)
	}
	if !ok {
		d.d.Log.Debug("target removed during check", logx.String("url", url))
	}
	res.Persisted = ok
	return nil
}

// RunCheck is the scheduled entry point. Failures and panics are reported
// to the owner as an error notice; shutdown cancellation is not.
func (d *Detector) RunCheck(ctx context.Context, ownerID int64, url string) (err error) {
	runID := uuid.NewString()
	log := d.d.Log.With(logx.String("run_id", runID), logx.Int64("owner_id", ownerID), logx.String("url", url))
	start := time.Now()
	var res Result

	defer func() {
		if r := recover(); r != nil {
			log.Error("check panic", logx.Any("panic", r), logx.Stack(string(debug.Stack())))
			err = fmt.Errorf("check panic: %v", r)
		}
		if err != nil && !errors.Is(err, context.Canceled) {
			nctx, cancel := context.WithTimeout(context.WithoutCancel(ctx), 30*time.Second)
			d.d.Sender.SendText(nctx, ownerID, errorNotice(url))
			cancel()
		}
		d.publish(runID, ownerID, url, res, err, time.Since(start))
	}()

	res, err = d.Check(ctx, ownerID, url)
	if err != nil {
		log.Warn("check failed", logx.Err(err))
		return err
	}
	if res.Changed {
		log.Info("change detected",
			logx.Int("new_resources", len(res.NewResources)),
			logx.Int("delivered", len(res.Delivered)),
			logx.Int("skipped", res.Skipped),
		)
	}
	return nil
}

func (d *Detector) publish(runID string, ownerID int64, url string, res Result, err error, took time.Duration) {
	if d.d.Bus == nil {
		return
	}
	ev := eventbus.CheckDone{
		RunID:     runID,
		OwnerID:   ownerID,
		URL:       url,
		Changed:   res.Changed,
		Delivered: len(res.Delivered),
		Skipped:   res.Skipped,
		Took:      took,
	}
	if err != nil {
		ev.Err = err.Error()
	}
	d.d.Bus.Publish(eventbus.Event{Type: eventbus.TypeCheckDone, Data: ev})
}

func changeNotice(url string, at time.Time) string {
	return fmt.Sprintf("🔄 Website updated: %s\n📅 Change detected at: %s", url, at.Format("2006-01-02 15:04:05"))
}

func errorNotice(url string) string {
	return "⚠️ Error checking updates for " + url
}

func mediaCaption(t storage.Target, r extract.Resource) string {
	name := t.Name
	if name == "" {
		name = "Unnamed"
	}
	return fmt.Sprintf("📁 %s\n🔗 Source: %s\n📥 Direct URL: %s", name, t.URL, r.URL)
}
