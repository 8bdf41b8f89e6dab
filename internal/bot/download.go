package bot

import (
	"context"
	"errors"
	"fmt"
	"os"
	"path/filepath"

	"pagewatch/internal/acquire"
	"pagewatch/internal/media"
	"pagewatch/internal/tracker"
	"pagewatch/internal/transport/telegram/router"
	logx "pagewatch/pkg/logx"
)

// cmdDownload runs the acquisition chain for one URL and uploads the result
// to the requesting chat.
func (b *Bot) cmdDownload(ctx context.Context, req *router.Request) error {
	if len(req.Args) < 1 {
		return req.Reply(ctx, msgDownloadUsage)
	}
	u, err := tracker.ValidateURL(req.Args[0])
	if err != nil {
		return req.Reply(ctx, msgDownloadUsage)
	}
	_ = req.Reply(ctx, msgDownloading)

	file, err := b.d.Acquirer.Acquire(ctx, u)
	if err != nil {
		req.Logger.Warn("download failed", logx.String("url", u), logx.Err(err))
		if errors.Is(err, acquire.ErrTooLarge) {
			return req.Reply(ctx, fmt.Sprintf("❌ File exceeds the %dMB limit", b.d.MaxFileSize>>20))
		}
		return req.Reply(ctx, msgDownloadFail)
	}

	caption := downloadCaption(filepath.Base(file), u)
	if !b.d.Sender.SendMedia(ctx, req.Chat.ChatID, media.KindOf(file), file, caption) {
		_ = os.Remove(file)
		return req.Reply(ctx, msgUploadFailed)
	}
	return nil
}
