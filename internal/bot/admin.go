package bot

import (
	"context"
	"fmt"
	"strconv"
	"strings"

	"pagewatch/internal/transport/telegram/router"
	logx "pagewatch/pkg/logx"
)

func parseID(args []string) (int64, bool) {
	if len(args) < 1 {
		return 0, false
	}
	id, err := strconv.ParseInt(strings.TrimSpace(args[0]), 10, 64)
	return id, err == nil && id != 0
}

// chatArg is the chat named in args, or the current chat.
func chatArg(req *router.Request) (int64, bool) {
	if len(req.Args) == 0 {
		return req.Chat.ChatID, true
	}
	return parseID(req.Args)
}

func (b *Bot) cmdAddSudo(ctx context.Context, req *router.Request) error {
	id, ok := parseID(req.Args)
	if !ok {
		return req.Reply(ctx, "Format: /addsudo <user_id>")
	}
	if err := b.d.Admin.AddSudo(ctx, id); err != nil {
		return err
	}
	req.Logger.Info("sudo granted", logx.Int64("user_id", id))
	return req.Reply(ctx, fmt.Sprintf("✅ User %d added to sudo", id))
}

func (b *Bot) cmdRemoveSudo(ctx context.Context, req *router.Request) error {
	id, ok := parseID(req.Args)
	if !ok {
		return req.Reply(ctx, "Format: /removesudo <user_id>")
	}
	removed, err := b.d.Admin.RemoveSudo(ctx, id)
	if err != nil {
		return err
	}
	if !removed {
		return req.Reply(ctx, fmt.Sprintf("❌ User %d is not sudo", id))
	}
	req.Logger.Info("sudo revoked", logx.Int64("user_id", id))
	return req.Reply(ctx, fmt.Sprintf("✅ User %d removed from sudo", id))
}

func (b *Bot) cmdSudoList(ctx context.Context, req *router.Request) error {
	ids, err := b.d.Admin.ListSudo(ctx)
	if err != nil {
		return err
	}
	if len(ids) == 0 {
		return req.Reply(ctx, "📭 No sudo users")
	}
	lines := make([]string, 0, len(ids)+1)
	lines = append(lines, "👥 Sudo users:")
	for _, id := range ids {
		lines = append(lines, "• "+strconv.FormatInt(id, 10))
	}
	return req.Reply(ctx, strings.Join(lines, "\n"))
}

func (b *Bot) cmdAuthChat(ctx context.Context, req *router.Request) error {
	id, ok := chatArg(req)
	if !ok {
		return req.Reply(ctx, "Format: /authchat [chat_id]")
	}
	if err := b.d.Admin.AuthorizeChat(ctx, id); err != nil {
		return err
	}
	req.Logger.Info("chat authorized", logx.Int64("target_chat", id))
	return req.Reply(ctx, fmt.Sprintf("✅ Chat %d authorized", id))
}

func (b *Bot) cmdUnauthChat(ctx context.Context, req *router.Request) error {
	id, ok := chatArg(req)
	if !ok {
		return req.Reply(ctx, "Format: /unauthchat [chat_id]")
	}
	removed, err := b.d.Admin.UnauthorizeChat(ctx, id)
	if err != nil {
		return err
	}
	if !removed {
		return req.Reply(ctx, fmt.Sprintf("❌ Chat %d was not authorized", id))
	}
	req.Logger.Info("chat deauthorized", logx.Int64("target_chat", id))
	return req.Reply(ctx, fmt.Sprintf("✅ Chat %d deauthorized", id))
}
