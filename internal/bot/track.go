package bot

import (
	"context"
	"errors"
	"strconv"
	"strings"

	"pagewatch/internal/tracker"
	kit "pagewatch/internal/transport"
	"pagewatch/internal/transport/telegram/router"
	logx "pagewatch/pkg/logx"
)

func (b *Bot) cmdStart(ctx context.Context, req *router.Request) error {
	return req.Reply(ctx, startText(b.commands()))
}

func (b *Bot) cmdHelp(ctx context.Context, req *router.Request) error {
	return req.Reply(ctx, helpText(b.d.MaxFileSize>>20, b.d.Tracker.MaxPerOwner()))
}

// parseTrack reads "<name> <url> <interval> [night]".
func parseTrack(owner int64, args []string) (tracker.TrackRequest, bool) {
	if len(args) < 3 {
		return tracker.TrackRequest{}, false
	}
	every, err := strconv.Atoi(args[2])
	if err != nil || every < 1 {
		return tracker.TrackRequest{}, false
	}
	return tracker.TrackRequest{
		OwnerID:         owner,
		Name:            args[0],
		URL:             args[1],
		IntervalMinutes: every,
		NightMode:       len(args) > 3 && strings.EqualFold(args[3], "night"),
	}, true
}

func (b *Bot) cmdTrack(ctx context.Context, req *router.Request) error {
	tr, ok := parseTrack(ownerOf(req), req.Args)
	if !ok {
		return req.Reply(ctx, msgTrackFormat)
	}
	t, err := b.d.Tracker.Track(ctx, tr)
	var capErr *tracker.CapacityError
	switch {
	case err == nil:
		return req.Reply(ctx, trackedText(t))
	case errors.As(err, &capErr):
		return req.Reply(ctx, "❌ "+capitalize(capErr.Error()))
	case errors.Is(err, tracker.ErrInvalidURL), errors.Is(err, tracker.ErrUnreachable):
		return req.Reply(ctx, msgUnreachable)
	case errors.Is(err, tracker.ErrInvalidInterval):
		return req.Reply(ctx, msgTrackFormat)
	default:
		_ = req.Reply(ctx, "❌ Error: "+err.Error())
		return err
	}
}

func (b *Bot) cmdUntrack(ctx context.Context, req *router.Request) error {
	if len(req.Args) < 1 {
		return req.Reply(ctx, msgUntrackFormat)
	}
	u := req.Args[0]
	err := b.d.Tracker.Untrack(ctx, ownerOf(req), u)
	switch {
	case err == nil:
		return req.Reply(ctx, untrackedText(u))
	case errors.Is(err, tracker.ErrNotFound):
		return req.Reply(ctx, msgNotFound)
	default:
		_ = req.Reply(ctx, "❌ Error: "+err.Error())
		return err
	}
}

func (b *Bot) cmdList(ctx context.Context, req *router.Request) error {
	ts, err := b.d.Tracker.List(ctx, ownerOf(req))
	if err != nil {
		return err
	}
	if len(ts) == 0 {
		return req.Reply(ctx, msgEmptyList)
	}
	text, kb := listView(ts)
	return req.ReplyHTML(ctx, text, kb.Markup())
}

func (b *Bot) cbToggleNight(ctx context.Context, req *router.Request, key string) error {
	t, err := b.d.Tracker.ToggleNight(ctx, ownerOf(req), key)
	if err != nil {
		if errors.Is(err, tracker.ErrNotFound) {
			return b.refreshList(ctx, req)
		}
		return err
	}
	req.Logger.Info("night mode toggled", logx.String("url", t.URL), logx.Bool("night", t.Window != nil))
	return b.refreshList(ctx, req)
}

func (b *Bot) cbDelete(ctx context.Context, req *router.Request, key string) error {
	t, err := b.d.Tracker.UntrackKey(ctx, ownerOf(req), key)
	if err != nil && !errors.Is(err, tracker.ErrNotFound) {
		return err
	}
	if err == nil {
		_ = req.Reply(ctx, untrackedText(t.URL))
	}
	return b.refreshList(ctx, req)
}

// refreshList re-renders the /list message the button belongs to.
func (b *Bot) refreshList(ctx context.Context, req *router.Request) error {
	cb := req.Update.Callback
	if cb == nil || cb.MessageID == 0 {
		return nil
	}
	ts, err := b.d.Tracker.List(ctx, ownerOf(req))
	if err != nil {
		return err
	}
	ref := kit.MessageRef{ChatID: cb.ChatID, ThreadID: cb.ThreadID, MessageID: cb.MessageID}
	if len(ts) == 0 {
		return req.Adapter.EditText(ctx, ref, msgEmptyList, nil)
	}
	text, kb := listView(ts)
	return req.Adapter.EditText(ctx, ref, text, &kit.SendOptions{ParseMode: "HTML", DisablePreview: true, ReplyMarkupAdapter: kb.Markup()})
}

func capitalize(s string) string {
	if s == "" {
		return s
	}
	return strings.ToUpper(s[:1]) + s[1:]
}
