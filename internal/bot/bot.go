// Package bot holds the chat command and button handlers.
package bot

import (
	"context"
	"time"

	"pagewatch/internal/media"
	"pagewatch/internal/storage"
	"pagewatch/internal/tracker"
	"pagewatch/internal/transport/telegram/router"
	logx "pagewatch/pkg/logx"
)

// Callback scope and actions of the /list buttons.
const (
	scopeTarget = "t"
	actionNight = "night"
	actionDel   = "del"
)

type Tracker interface {
	Track(ctx context.Context, req tracker.TrackRequest) (storage.Target, error)
	Untrack(ctx context.Context, ownerID int64, url string) error
	List(ctx context.Context, ownerID int64) ([]storage.Target, error)
	ToggleNight(ctx context.Context, ownerID int64, key string) (storage.Target, error)
	UntrackKey(ctx context.Context, ownerID int64, key string) (storage.Target, error)
	MaxPerOwner() int
}

type Acquirer interface {
	Acquire(ctx context.Context, url string) (string, error)
}

type Sender interface {
	SendMedia(ctx context.Context, chatID int64, kind media.Kind, path, caption string) bool
}

// Admin is the slice of the store behind the owner commands.
type Admin interface {
	AddSudo(ctx context.Context, userID int64) error
	RemoveSudo(ctx context.Context, userID int64) (bool, error)
	ListSudo(ctx context.Context) ([]int64, error)
	AuthorizeChat(ctx context.Context, chatID int64) error
	UnauthorizeChat(ctx context.Context, chatID int64) (bool, error)
}

type Deps struct {
	Tracker  Tracker
	Acquirer Acquirer
	Sender   Sender
	Admin    Admin
	// MaxFileSize is shown in /help and in /dl failures.
	MaxFileSize int64
	Log         logx.Logger
}

type Bot struct {
	d   Deps
	log logx.Logger

	// commands lists the registry for /start; set by Register.
	commands func() []router.Command
}

func New(d Deps) *Bot {
	if d.Log.IsZero() {
		d.Log = logx.Nop()
	}
	return &Bot{d: d, log: d.Log, commands: func() []router.Command { return nil }}
}

// Register installs every command and button route on r.
func (b *Bot) Register(ctx context.Context, r *router.Router) {
	b.commands = r.Commands
	r.SetRegistry(ctx, b.Commands(), b.Callbacks())
}

func (b *Bot) Commands() []router.Command {
	return []router.Command{
		{Name: "start", Description: "Show the welcome message", Usage: "/start", Access: router.AccessPublic, Handle: b.cmdStart},
		{Name: "help", Description: "Show the help menu", Usage: "/help", Access: router.AccessPublic, Handle: b.cmdHelp},
		{
			Name:        "track",
			Description: "Start tracking a page",
			Usage:       "/track <name> <url> <interval> [night]",
			Timeout:     90 * time.Second,
			Handle:      b.cmdTrack,
		},
		{Name: "untrack", Description: "Stop tracking a page", Usage: "/untrack <url>", Timeout: 30 * time.Second, Handle: b.cmdUntrack},
		{Name: "list", Description: "Show tracked URLs", Usage: "/list", Timeout: 30 * time.Second, Handle: b.cmdList},
		{Name: "dl", Description: "Download a file now", Usage: "/dl <url>", Timeout: 10 * time.Minute, Handle: b.cmdDownload},
		{Name: "addsudo", Description: "Grant sudo", Usage: "/addsudo <user_id>", Access: router.AccessOwnerOnly, Handle: b.cmdAddSudo},
		{Name: "removesudo", Description: "Revoke sudo", Usage: "/removesudo <user_id>", Access: router.AccessOwnerOnly, Handle: b.cmdRemoveSudo},
		{Name: "sudolist", Description: "List sudo users", Usage: "/sudolist", Access: router.AccessOwnerOnly, Handle: b.cmdSudoList},
		{Name: "authchat", Description: "Authorize a chat", Usage: "/authchat [chat_id]", Access: router.AccessOwnerOnly, Handle: b.cmdAuthChat},
		{Name: "unauthchat", Description: "Deauthorize a chat", Usage: "/unauthchat [chat_id]", Access: router.AccessOwnerOnly, Handle: b.cmdUnauthChat},
	}
}

func (b *Bot) Callbacks() []router.CallbackRoute {
	return []router.CallbackRoute{
		{Scope: scopeTarget, Action: actionNight, Timeout: 30 * time.Second, Handle: b.cbToggleNight},
		{Scope: scopeTarget, Action: actionDel, Timeout: 30 * time.Second, Handle: b.cbDelete},
	}
}

// ownerOf is the account a request acts for. Channel posts have no sender,
// so the channel itself owns what it tracks.
func ownerOf(req *router.Request) int64 {
	if req.FromID != 0 {
		return req.FromID
	}
	return req.Chat.ChatID
}
