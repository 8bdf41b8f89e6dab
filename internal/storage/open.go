package storage

import (
	"context"
	"errors"
	"strings"

	logx "pagewatch/pkg/logx"
)

// Store is the persistence API used by the tracker, detector and auth.
type Store interface {
	// UpsertTarget creates or replaces the target's settings (name, interval,
	// window, fingerprint). The sent-hash set and CreatedAt of an existing
	// target are preserved.
	UpsertTarget(ctx context.Context, t Target) error
	GetTarget(ctx context.Context, ownerID int64, url string) (Target, bool, error)
	ListTargetsByOwner(ctx context.Context, ownerID int64) ([]Target, error)
	ListAllTargets(ctx context.Context) ([]Target, error)
	CountTargetsByOwner(ctx context.Context, ownerID int64) (int, error)
	// DeleteTarget reports whether a record was removed.
	DeleteTarget(ctx context.Context, ownerID int64, url string) (bool, error)
	// UpdateCheckState applies u in one transaction. It reports false, and
	// writes nothing, when the target no longer exists.
	UpdateCheckState(ctx context.Context, ownerID int64, url string, u CheckUpdate) (bool, error)
	// SetWindow replaces the active window (nil clears it).
	SetWindow(ctx context.Context, ownerID int64, url string, w *Window) (bool, error)

	AddSudo(ctx context.Context, userID int64) error
	RemoveSudo(ctx context.Context, userID int64) (bool, error)
	IsSudo(ctx context.Context, userID int64) (bool, error)
	ListSudo(ctx context.Context) ([]int64, error)

	AuthorizeChat(ctx context.Context, chatID int64) error
	UnauthorizeChat(ctx context.Context, chatID int64) (bool, error)
	IsChatAuthorized(ctx context.Context, chatID int64) (bool, error)

	Close() error
}

// Open initializes the configured store.
func Open(ctx context.Context, cfg Config, log logx.Logger) (Store, error) {
	driver := strings.ToLower(strings.TrimSpace(cfg.Driver))
	if log.IsZero() {
		log = logx.Nop()
	}
	switch driver {
	case "", "sqlite", "sqlite3":
		return openSQLite(ctx, cfg, log)
	case "bolt", "bbolt":
		return openBolt(cfg, log)
	case "postgres", "postgresql":
		return openPostgres(ctx, cfg, log)
	case "none":
		return nil, ErrDisabled
	default:
		return nil, errors.New("unknown storage driver: " + driver)
	}
}

// Migrate applies the schema for SQL drivers without opening a full store.
// The bolt driver has no schema; its buckets are created on open.
func Migrate(ctx context.Context, cfg Config, log logx.Logger) error {
	st, err := Open(ctx, cfg, log)
	if err != nil {
		return err
	}
	return st.Close()
}
