package bot

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	tele "gopkg.in/telebot.v4"

	"pagewatch/internal/acquire"
	"pagewatch/internal/delivery"
	"pagewatch/internal/extract"
	"pagewatch/internal/media"
	"pagewatch/internal/storage"
	"pagewatch/internal/task/scheduler"
	"pagewatch/internal/tracker"
	kit "pagewatch/internal/transport"
	"pagewatch/internal/transport/telegram/router"
	"pagewatch/internal/transport/transporttest"
	logx "pagewatch/pkg/logx"
)

const owner = int64(42)

type pageProber struct{ down map[string]bool }

func (p pageProber) Extract(_ context.Context, url string) extract.Page {
	if p.down[url] {
		return extract.Page{URL: url}
	}
	return extract.Page{URL: url, Content: "<html>" + url + "</html>"}
}

type noopChecker struct{}

func (noopChecker) RunCheck(context.Context, int64, string) error { return nil }

type fakeAcquirer struct {
	path string
	err  error
}

func (f fakeAcquirer) Acquire(context.Context, string) (string, error) { return f.path, f.err }

type harness struct {
	bot   *Bot
	rec   *transporttest.Recorder
	store storage.Store
	sched *scheduler.Service
	acq   *fakeAcquirer
}

func newHarness(t *testing.T) *harness {
	t.Helper()
	st, err := storage.Open(context.Background(), storage.Config{Driver: "sqlite", Path: filepath.Join(t.TempDir(), "bot.db")}, logx.Nop())
	require.NoError(t, err)
	t.Cleanup(func() { _ = st.Close() })

	rec := &transporttest.Recorder{}
	sched := scheduler.New(scheduler.Config{Timezone: "UTC"}, logx.Nop())
	trk := tracker.New(tracker.Config{MaxPerOwner: 2}, st, pageProber{down: map[string]bool{"https://down.example": true}}, sched, noopChecker{}, nil, logx.Nop())
	acq := &fakeAcquirer{}
	b := New(Deps{
		Tracker:     trk,
		Acquirer:    acq,
		Sender:      delivery.New(delivery.Config{}, rec, logx.Nop()),
		Admin:       st,
		MaxFileSize: acquire.DefaultMaxFileSize,
	})
	return &harness{bot: b, rec: rec, store: st, sched: sched, acq: acq}
}

func (h *harness) req(args ...string) *router.Request {
	return &router.Request{
		Update:  kit.Update{Kind: kit.UpdateMessage, Message: &kit.Message{ChatID: owner, FromID: owner}},
		Chat:    kit.ChatTarget{ChatID: owner},
		FromID:  owner,
		Args:    args,
		Adapter: h.rec,
		Logger:  logx.Nop(),
	}
}

func (h *harness) cbReq(messageID int) *router.Request {
	r := h.req()
	r.Update = kit.Update{Kind: kit.UpdateCallback, Callback: &kit.Callback{ID: "cb", ChatID: owner, FromID: owner, MessageID: messageID}}
	return r
}

func (h *harness) lastText(t *testing.T) string {
	t.Helper()
	texts := h.rec.Texts()
	require.NotEmpty(t, texts)
	return texts[len(texts)-1]
}

func (h *harness) track(t *testing.T, args ...string) {
	t.Helper()
	require.NoError(t, h.bot.cmdTrack(context.Background(), h.req(args...)))
}

func TestParseTrack(t *testing.T) {
	cases := []struct {
		name string
		args []string
		ok   bool
		want tracker.TrackRequest
	}{
		{"minimal", []string{"docs", "https://a.example", "5"}, true, tracker.TrackRequest{OwnerID: owner, Name: "docs", URL: "https://a.example", IntervalMinutes: 5}},
		{"night", []string{"docs", "https://a.example", "5", "NIGHT"}, true, tracker.TrackRequest{OwnerID: owner, Name: "docs", URL: "https://a.example", IntervalMinutes: 5, NightMode: true}},
		{"other fourth word", []string{"docs", "https://a.example", "5", "day"}, true, tracker.TrackRequest{OwnerID: owner, Name: "docs", URL: "https://a.example", IntervalMinutes: 5}},
		{"too few", []string{"docs", "https://a.example"}, false, tracker.TrackRequest{}},
		{"non numeric interval", []string{"docs", "https://a.example", "five"}, false, tracker.TrackRequest{}},
		{"zero interval", []string{"docs", "https://a.example", "0"}, false, tracker.TrackRequest{}},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			got, ok := parseTrack(owner, tc.args)
			assert.Equal(t, tc.ok, ok)
			assert.Equal(t, tc.want, got)
		})
	}
}

func TestTrackReplies(t *testing.T) {
	h := newHarness(t)
	cases := []struct {
		name string
		args []string
		want string
	}{
		{"started", []string{"docs", "https://a.example", "5"}, "✅ Tracking started for docs\nURL: https://a.example"},
		{"missing args", []string{"docs"}, msgTrackFormat},
		{"bad interval", []string{"docs", "https://a.example", "x"}, msgTrackFormat},
		{"unreachable", []string{"down", "https://down.example", "5"}, msgUnreachable},
		{"not a url", []string{"bad", "ftp://nope", "5"}, msgUnreachable},
		{"second target", []string{"b", "https://b.example", "5"}, "✅ Tracking started for b\nURL: https://b.example"},
		{"capacity", []string{"c", "https://c.example", "5"}, "❌ Tracking limit reached (2 URLs)"},
		{"retrack at capacity", []string{"docs2", "https://a.example", "10"}, "✅ Tracking started for docs2\nURL: https://a.example"},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			require.NoError(t, h.bot.cmdTrack(context.Background(), h.req(tc.args...)))
			assert.Equal(t, tc.want, h.lastText(t))
		})
	}
	assert.Equal(t, 2, h.sched.Len())
}

func TestUntrackReplies(t *testing.T) {
	h := newHarness(t)
	ctx := context.Background()
	h.track(t, "docs", "https://a.example", "5")

	require.NoError(t, h.bot.cmdUntrack(ctx, h.req()))
	assert.Equal(t, msgUntrackFormat, h.lastText(t))

	require.NoError(t, h.bot.cmdUntrack(ctx, h.req("https://other.example")))
	assert.Equal(t, msgNotFound, h.lastText(t))
	assert.Equal(t, 1, h.sched.Len())

	require.NoError(t, h.bot.cmdUntrack(ctx, h.req("https://a.example")))
	assert.Equal(t, "❎ Tracking stopped: https://a.example", h.lastText(t))
	assert.Equal(t, 0, h.sched.Len())
}

func TestListRendersButtons(t *testing.T) {
	h := newHarness(t)
	ctx := context.Background()

	require.NoError(t, h.bot.cmdList(ctx, h.req()))
	assert.Equal(t, msgEmptyList, h.lastText(t))

	h.track(t, "docs", "https://a.example", "5", "night")
	h.track(t, "b&c", "https://b.example", "15")
	h.rec.Reset()

	require.NoError(t, h.bot.cmdList(ctx, h.req()))
	sent := h.rec.Sent()
	require.Len(t, sent, 1)
	assert.Contains(t, sent[0].Text, "<b>docs</b>")
	assert.Contains(t, sent[0].Text, "<b>b&amp;c</b>")
	assert.Contains(t, sent[0].Text, "every 15 min, night mode off")
	assert.Contains(t, sent[0].Text, "night mode on (06-22)")
	require.NotNil(t, sent[0].Options)
	assert.Equal(t, "HTML", sent[0].Options.ParseMode)

	rm, ok := sent[0].Options.ReplyMarkupAdapter.(*tele.ReplyMarkup)
	require.True(t, ok)
	require.Len(t, rm.InlineKeyboard, 2)
	var data []string
	for _, row := range rm.InlineKeyboard {
		for _, btn := range row {
			assert.LessOrEqual(t, len(btn.Data), 64)
			data = append(data, btn.Data)
		}
	}
	keyA := storage.TargetKey(owner, "https://a.example")
	assert.Contains(t, data, "t:night:"+keyA)
	assert.Contains(t, data, "t:del:"+keyA)
}

func TestToggleNightCallback(t *testing.T) {
	h := newHarness(t)
	ctx := context.Background()
	h.track(t, "docs", "https://a.example", "5")
	key := storage.TargetKey(owner, "https://a.example")

	require.NoError(t, h.bot.cbToggleNight(ctx, h.cbReq(7), key))
	tg, ok, err := h.store.GetTarget(ctx, owner, "https://a.example")
	require.NoError(t, err)
	require.True(t, ok)
	require.NotNil(t, tg.Window)
	assert.Equal(t, 6, tg.Window.StartHour)

	edits := h.rec.Edits()
	require.Len(t, edits, 1)
	assert.Equal(t, 7, edits[0].Ref.MessageID)
	assert.Contains(t, edits[0].Text, "night mode on")

	require.NoError(t, h.bot.cbToggleNight(ctx, h.cbReq(7), key))
	tg, _, err = h.store.GetTarget(ctx, owner, "https://a.example")
	require.NoError(t, err)
	assert.Nil(t, tg.Window)
	assert.True(t, h.sched.Has(key))
}

func TestDeleteCallback(t *testing.T) {
	h := newHarness(t)
	ctx := context.Background()
	h.track(t, "docs", "https://a.example", "5")
	key := storage.TargetKey(owner, "https://a.example")

	require.NoError(t, h.bot.cbDelete(ctx, h.cbReq(9), key))
	assert.Equal(t, "❎ Tracking stopped: https://a.example", h.lastText(t))
	assert.False(t, h.sched.Has(key))
	edits := h.rec.Edits()
	require.Len(t, edits, 1)
	assert.Equal(t, msgEmptyList, edits[0].Text)

	// A stale button only refreshes the message.
	require.NoError(t, h.bot.cbDelete(ctx, h.cbReq(9), key))
	assert.Len(t, h.rec.Edits(), 2)
}

func TestDownload(t *testing.T) {
	ctx := context.Background()

	t.Run("usage", func(t *testing.T) {
		h := newHarness(t)
		require.NoError(t, h.bot.cmdDownload(ctx, h.req("not-a-url")))
		assert.Equal(t, msgDownloadUsage, h.lastText(t))
	})

	t.Run("sends media and removes file", func(t *testing.T) {
		h := newHarness(t)
		file := filepath.Join(t.TempDir(), "clip.mp4")
		require.NoError(t, os.WriteFile(file, []byte("x"), 0o644))
		h.acq.path = file

		require.NoError(t, h.bot.cmdDownload(ctx, h.req("https://a.example/clip")))
		ms := h.rec.Media()
		require.Len(t, ms, 1)
		assert.Equal(t, media.Video, ms[0].Kind)
		assert.Equal(t, "📁 clip.mp4\n🔗 Source: https://a.example/clip", ms[0].Caption)
		assert.NoFileExists(t, file)
	})

	t.Run("too large", func(t *testing.T) {
		h := newHarness(t)
		h.acq.err = fmt.Errorf("%w: yt-dlp", acquire.ErrTooLarge)
		require.NoError(t, h.bot.cmdDownload(ctx, h.req("https://a.example/big")))
		assert.Equal(t, "❌ File exceeds the 50MB limit", h.lastText(t))
	})

	t.Run("unavailable", func(t *testing.T) {
		h := newHarness(t)
		h.acq.err = acquire.ErrUnavailable
		require.NoError(t, h.bot.cmdDownload(ctx, h.req("https://a.example/gone")))
		assert.Equal(t, msgDownloadFail, h.lastText(t))
	})

	t.Run("upload failure removes file", func(t *testing.T) {
		h := newHarness(t)
		file := filepath.Join(t.TempDir(), "doc.bin")
		require.NoError(t, os.WriteFile(file, []byte("x"), 0o644))
		h.acq.path = file
		h.rec.FailMedia = func(kit.Media) error { return transporttest.ErrInjected }

		require.NoError(t, h.bot.cmdDownload(ctx, h.req("https://a.example/doc")))
		assert.Equal(t, msgUploadFailed, h.lastText(t))
		assert.NoFileExists(t, file)
	})
}

func TestAdminCommands(t *testing.T) {
	h := newHarness(t)
	ctx := context.Background()

	steps := []struct {
		name string
		run  func(context.Context, *router.Request) error
		args []string
		want string
	}{
		{"addsudo usage", h.bot.cmdAddSudo, nil, "Format: /addsudo <user_id>"},
		{"addsudo", h.bot.cmdAddSudo, []string{"7"}, "✅ User 7 added to sudo"},
		{"sudolist", h.bot.cmdSudoList, nil, "👥 Sudo users:\n• 7"},
		{"removesudo", h.bot.cmdRemoveSudo, []string{"7"}, "✅ User 7 removed from sudo"},
		{"removesudo again", h.bot.cmdRemoveSudo, []string{"7"}, "❌ User 7 is not sudo"},
		{"sudolist empty", h.bot.cmdSudoList, nil, "📭 No sudo users"},
		{"authchat current", h.bot.cmdAuthChat, nil, fmt.Sprintf("✅ Chat %d authorized", owner)},
		{"authchat explicit", h.bot.cmdAuthChat, []string{"-100123"}, "✅ Chat -100123 authorized"},
		{"authchat bad id", h.bot.cmdAuthChat, []string{"abc"}, "Format: /authchat [chat_id]"},
		{"unauthchat", h.bot.cmdUnauthChat, []string{"-100123"}, "✅ Chat -100123 deauthorized"},
		{"unauthchat unknown", h.bot.cmdUnauthChat, []string{"-100123"}, "❌ Chat -100123 was not authorized"},
	}
	for _, s := range steps {
		t.Run(s.name, func(t *testing.T) {
			require.NoError(t, s.run(ctx, h.req(s.args...)))
			assert.Equal(t, s.want, h.lastText(t))
		})
	}

	ok, err := h.store.IsChatAuthorized(ctx, owner)
	require.NoError(t, err)
	assert.True(t, ok)
}

func TestStartAndHelp(t *testing.T) {
	h := newHarness(t)
	ctx := context.Background()
	h.bot.commands = h.bot.Commands

	require.NoError(t, h.bot.cmdStart(ctx, h.req()))
	start := h.lastText(t)
	assert.True(t, strings.HasPrefix(start, "🤖 URL Tracker Bot\n\nCommands:\n"))
	assert.Contains(t, start, "/track <name> <url> <interval> [night] - Start tracking a page")
	assert.NotContains(t, start, "addsudo")

	require.NoError(t, h.bot.cmdHelp(ctx, h.req()))
	help := h.lastText(t)
	assert.Contains(t, help, "📌 Max file size: 50MB")
	assert.Contains(t, help, "📌 Max tracked URLs per user: 2")
}

func TestChannelPostOwnedByChat(t *testing.T) {
	h := newHarness(t)
	r := h.req("docs", "https://a.example", "5")
	r.FromID = 0
	r.Chat = kit.ChatTarget{ChatID: -1001}
	require.NoError(t, h.bot.cmdTrack(context.Background(), r))

	_, ok, err := h.store.GetTarget(context.Background(), -1001, "https://a.example")
	require.NoError(t, err)
	assert.True(t, ok)
}
