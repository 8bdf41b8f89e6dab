package storage

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"strconv"
	"strings"
	"time"

	logx "pagewatch/pkg/logx"
)

// sqlStore implements Store over database/sql. Queries are written with "?"
// placeholders and rebound per dialect.
type sqlStore struct {
	db      *sql.DB
	log     logx.Logger
	dialect string
}

const targetColumns = `owner_id, url, name, interval_minutes, window_start, window_end, window_tz, fingerprint, created_at, last_checked_at`

func (s *sqlStore) q(query string) string {
	if s.dialect != "postgres" {
		return query
	}
	var b strings.Builder
	n := 0
	for i := 0; i < len(query); i++ {
		if query[i] == '?' {
			n++
			b.WriteByte('$')
			b.WriteString(strconv.Itoa(n))
			continue
		}
		b.WriteByte(query[i])
	}
	return b.String()
}

func (s *sqlStore) Close() error {
	if s == nil || s.db == nil {
		return nil
	}
	return s.db.Close()
}

func (s *sqlStore) UpsertTarget(ctx context.Context, t Target) error {
	if t.CreatedAt.IsZero() {
		t.CreatedAt = time.Now()
	}
	ws, we, wtz := windowArgs(t.Window)
	_, err := s.db.ExecContext(ctx, s.q(
		`INSERT INTO targets(`+targetColumns+`)
		 VALUES(?,?,?,?,?,?,?,?,?,?)
		 ON CONFLICT(owner_id, url) DO UPDATE SET
		   name=excluded.name,
		   interval_minutes=excluded.interval_minutes,
		   window_start=excluded.window_start,
		   window_end=excluded.window_end,
		   window_tz=excluded.window_tz,
		   fingerprint=excluded.fingerprint`),
		t.OwnerID, t.URL, t.Name, t.IntervalMinutes, ws, we, wtz, t.Fingerprint,
		toMillis(t.CreatedAt), toMillis(t.LastCheckedAt),
	)
	if err != nil {
		return fmt.Errorf("upsert target: %w", err)
	}
	return nil
}

func (s *sqlStore) GetTarget(ctx context.Context, ownerID int64, url string) (Target, bool, error) {
	row := s.db.QueryRowContext(ctx, s.q(`SELECT `+targetColumns+` FROM targets WHERE owner_id = ? AND url = ?`), ownerID, url)
	t, err := scanTarget(row)
	if errors.Is(err, sql.ErrNoRows) {
		return Target{}, false, nil
	}
	if err != nil {
		return Target{}, false, fmt.Errorf("get target: %w", err)
	}
	hashes, err := s.hashesFor(ctx, ownerID, url)
	if err != nil {
		return Target{}, false, err
	}
	t.SentHashes = hashes
	return t, true, nil
}

func (s *sqlStore) hashesFor(ctx context.Context, ownerID int64, url string) ([]string, error) {
	rows, err := s.db.QueryContext(ctx, s.q(`SELECT hash FROM sent_hashes WHERE owner_id = ? AND url = ? ORDER BY sent_at, hash`), ownerID, url)
	if err != nil {
		return nil, fmt.Errorf("list sent hashes: %w", err)
	}
	defer rows.Close()
	var out []string
	for rows.Next() {
		var h string
		if err := rows.Scan(&h); err != nil {
			return nil, err
		}
		out = append(out, h)
	}
	return out, rows.Err()
}

func (s *sqlStore) ListTargetsByOwner(ctx context.Context, ownerID int64) ([]Target, error) {
	return s.listTargets(ctx, ` WHERE owner_id = ?`, ownerID)
}

func (s *sqlStore) ListAllTargets(ctx context.Context) ([]Target, error) {
	return s.listTargets(ctx, "")
}

func (s *sqlStore) listTargets(ctx context.Context, where string, args ...any) ([]Target, error) {
	rows, err := s.db.QueryContext(ctx, s.q(`SELECT `+targetColumns+` FROM targets`+where+` ORDER BY owner_id, created_at, url`), args...)
	if err != nil {
		return nil, fmt.Errorf("list targets: %w", err)
	}
	var out []Target
	for rows.Next() {
		t, err := scanTarget(rows)
		if err != nil {
			_ = rows.Close()
			return nil, err
		}
		out = append(out, t)
	}
	if err := rows.Err(); err != nil {
		_ = rows.Close()
		return nil, err
	}
	_ = rows.Close()

	// sqlite runs with a single connection, so hashes are read after the
	// target cursor is closed.
	for i := range out {
		hashes, err := s.hashesFor(ctx, out[i].OwnerID, out[i].URL)
		if err != nil {
			return nil, err
		}
		out[i].SentHashes = hashes
	}
	return out, nil
}

func (s *sqlStore) CountTargetsByOwner(ctx context.Context, ownerID int64) (int, error) {
	var n int
	err := s.db.QueryRowContext(ctx, s.q(`SELECT COUNT(*) FROM targets WHERE owner_id = ?`), ownerID).Scan(&n)
	if err != nil {
		return 0, fmt.Errorf("count targets: %w", err)
	}
	return n, nil
}

func (s *sqlStore) DeleteTarget(ctx context.Context, ownerID int64, url string) (bool, error) {
	var removed bool
	err := s.inTx(ctx, func(tx *sql.Tx) error {
		if _, err := tx.ExecContext(ctx, s.q(`DELETE FROM sent_hashes WHERE owner_id = ? AND url = ?`), ownerID, url); err != nil {
			return err
		}
		res, err := tx.ExecContext(ctx, s.q(`DELETE FROM targets WHERE owner_id = ? AND url = ?`), ownerID, url)
		if err != nil {
			return err
		}
		n, _ := res.RowsAffected()
		removed = n > 0
		return nil
	})
	if err != nil {
		return false, fmt.Errorf("delete target: %w", err)
	}
	return removed, nil
}

func (s *sqlStore) UpdateCheckState(ctx context.Context, ownerID int64, url string, u CheckUpdate) (bool, error) {
	if u.CheckedAt.IsZero() {
		u.CheckedAt = time.Now()
	}
	var found bool
	err := s.inTx(ctx, func(tx *sql.Tx) error {
		var res sql.Result
		var err error
		if u.Fingerprint != "" {
			res, err = tx.ExecContext(ctx, s.q(`UPDATE targets SET fingerprint = ?, last_checked_at = ? WHERE owner_id = ? AND url = ?`),
				u.Fingerprint, toMillis(u.CheckedAt), ownerID, url)
		} else {
			res, err = tx.ExecContext(ctx, s.q(`UPDATE targets SET last_checked_at = ? WHERE owner_id = ? AND url = ?`),
				toMillis(u.CheckedAt), ownerID, url)
		}
		if err != nil {
			return err
		}
		n, err := res.RowsAffected()
		if err != nil {
			return err
		}
		if n == 0 {
			return errNoTarget
		}
		found = true
		for _, h := range mergeHashes(nil, u.AddHashes) {
			if _, err := tx.ExecContext(ctx, s.q(`INSERT INTO sent_hashes(owner_id, url, hash, sent_at) VALUES(?,?,?,?) ON CONFLICT DO NOTHING`),
				ownerID, url, h, toMillis(u.CheckedAt)); err != nil {
				return err
			}
		}
		return nil
	})
	if errors.Is(err, errNoTarget) {
		return false, nil
	}
	if err != nil {
		return false, fmt.Errorf("update check state: %w", err)
	}
	return found, nil
}

func (s *sqlStore) SetWindow(ctx context.Context, ownerID int64, url string, w *Window) (bool, error) {
	ws, we, wtz := windowArgs(w)
	res, err := s.db.ExecContext(ctx, s.q(`UPDATE targets SET window_start = ?, window_end = ?, window_tz = ? WHERE owner_id = ? AND url = ?`),
		ws, we, wtz, ownerID, url)
	if err != nil {
		return false, fmt.Errorf("set window: %w", err)
	}
	n, _ := res.RowsAffected()
	return n > 0, nil
}

func (s *sqlStore) AddSudo(ctx context.Context, userID int64) error {
	_, err := s.db.ExecContext(ctx, s.q(`INSERT INTO sudo_users(user_id, added_at) VALUES(?,?) ON CONFLICT DO NOTHING`), userID, toMillis(time.Now()))
	return err
}

func (s *sqlStore) RemoveSudo(ctx context.Context, userID int64) (bool, error) {
	return s.deleteID(ctx, `DELETE FROM sudo_users WHERE user_id = ?`, userID)
}

func (s *sqlStore) IsSudo(ctx context.Context, userID int64) (bool, error) {
	return s.exists(ctx, `SELECT 1 FROM sudo_users WHERE user_id = ?`, userID)
}

func (s *sqlStore) ListSudo(ctx context.Context) ([]int64, error) {
	rows, err := s.db.QueryContext(ctx, `SELECT user_id FROM sudo_users ORDER BY user_id`)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	var out []int64
	for rows.Next() {
		var id int64
		if err := rows.Scan(&id); err != nil {
			return nil, err
		}
		out = append(out, id)
	}
	return out, rows.Err()
}

func (s *sqlStore) AuthorizeChat(ctx context.Context, chatID int64) error {
	_, err := s.db.ExecContext(ctx, s.q(`INSERT INTO authorized_chats(chat_id, added_at) VALUES(?,?) ON CONFLICT DO NOTHING`), chatID, toMillis(time.Now()))
	return err
}

func (s *sqlStore) UnauthorizeChat(ctx context.Context, chatID int64) (bool, error) {
	return s.deleteID(ctx, `DELETE FROM authorized_chats WHERE chat_id = ?`, chatID)
}

func (s *sqlStore) IsChatAuthorized(ctx context.Context, chatID int64) (bool, error) {
	return s.exists(ctx, `SELECT 1 FROM authorized_chats WHERE chat_id = ?`, chatID)
}

func (s *sqlStore) deleteID(ctx context.Context, query string, id int64) (bool, error) {
	res, err := s.db.ExecContext(ctx, s.q(query), id)
	if err != nil {
		return false, err
	}
	n, _ := res.RowsAffected()
	return n > 0, nil
}

func (s *sqlStore) exists(ctx context.Context, query string, id int64) (bool, error) {
	var one int
	err := s.db.QueryRowContext(ctx, s.q(query), id).Scan(&one)
	if errors.Is(err, sql.ErrNoRows) {
		return false, nil
	}
	if err != nil {
		return false, err
	}
	return true, nil
}

var errNoTarget = errors.New("no target")

func (s *sqlStore) inTx(ctx context.Context, fn func(tx *sql.Tx) error) error {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return err
	}
	if err := fn(tx); err != nil {
		_ = tx.Rollback()
		return err
	}
	return tx.Commit()
}

type rowScanner interface {
	Scan(dest ...any) error
}

func scanTarget(r rowScanner) (Target, error) {
	var (
		t                 Target
		ws, we            sql.NullInt64
		wtz               sql.NullString
		created, lastSeen int64
	)
	if err := r.Scan(&t.OwnerID, &t.URL, &t.Name, &t.IntervalMinutes, &ws, &we, &wtz, &t.Fingerprint, &created, &lastSeen); err != nil {
		return Target{}, err
	}
	if ws.Valid && we.Valid {
		t.Window = &Window{StartHour: int(ws.Int64), EndHour: int(we.Int64), Timezone: wtz.String}
	}
	t.CreatedAt = fromMillis(created)
	t.LastCheckedAt = fromMillis(lastSeen)
	return t, nil
}

func windowArgs(w *Window) (any, any, any) {
	if w == nil {
		return nil, nil, nil
	}
	return w.StartHour, w.EndHour, w.Timezone
}

func toMillis(t time.Time) int64 {
	if t.IsZero() {
		return 0
	}
	return t.UnixMilli()
}

func fromMillis(ms int64) time.Time {
	if ms == 0 {
		return time.Time{}
	}
	return time.UnixMilli(ms)
}
