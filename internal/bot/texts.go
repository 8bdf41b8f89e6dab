package bot

import (
	"fmt"
	"strings"

	"pagewatch/internal/storage"
	"pagewatch/internal/transport/telegram/router"
	"pagewatch/pkg/tgui"
)

const (
	msgTrackFormat   = "Format: /track <name> <url> <interval> [night]"
	msgUntrackFormat = "Format: /untrack <url>"
	msgDownloadUsage = "Format: /dl <url>"
	msgUnreachable   = "❌ Invalid URL or unable to access"
	msgNotFound      = "❌ URL not found"
	msgEmptyList     = "📭 You are not tracking any URLs yet"
	msgDownloading   = "⏬ Downloading..."
	msgUploadFailed  = "❌ Upload failed"
	msgDownloadFail  = "❌ Download failed"
)

func startText(cmds []router.Command) string {
	var public []router.Command
	for _, c := range cmds {
		if c.Access != router.AccessOwnerOnly {
			public = append(public, c)
		}
	}
	lines := append([]string{"🤖 URL Tracker Bot", "", "Commands:"}, router.UsageLines(public)...)
	return strings.Join(lines, "\n")
}

func helpText(maxFileMB int64, perOwner int) string {
	return strings.Join([]string{
		"🆘 Help Menu",
		"",
		"• Track websites for file changes",
		"• Supports PDF, Images, Audio & Video",
		"• Automatic yt-dlp integration",
		"• Night mode avoids late notifications",
		"",
		fmt.Sprintf("📌 Max file size: %dMB", maxFileMB),
		fmt.Sprintf("📌 Max tracked URLs per user: %d", perOwner),
	}, "\n")
}

func trackedText(t storage.Target) string {
	return fmt.Sprintf("✅ Tracking started for %s\nURL: %s", t.Name, t.URL)
}

func untrackedText(url string) string { return "❎ Tracking stopped: " + url }

func downloadCaption(name, url string) string {
	return fmt.Sprintf("📁 %s\n🔗 Source: %s", name, url)
}

// listView renders the owner's targets with one button row per target.
func listView(ts []storage.Target) (string, *tgui.Inline) {
	kb := tgui.NewInline()
	blocks := []tgui.H{tgui.B("📜 Tracked URLs")}
	for i, t := range ts {
		night := "off"
		if t.Window != nil {
			night = fmt.Sprintf("on (%02d-%02d)", t.Window.StartHour, t.Window.EndHour)
		}
		blocks = append(blocks, tgui.JoinH("\n",
			tgui.Raw(fmt.Sprintf("%d. ", i+1)+tgui.B(t.Name).String()),
			tgui.Link(t.URL, t.URL),
			tgui.Esc(fmt.Sprintf("every %d min, night mode %s", t.IntervalMinutes, night)),
		))

		nightData, err1 := tgui.Data(scopeTarget, actionNight, t.Key())
		delData, err2 := tgui.Data(scopeTarget, actionDel, t.Key())
		if err1 != nil || err2 != nil {
			continue
		}
		label := "🌙 Night on"
		if t.Window != nil {
			label = "☀️ Night off"
		}
		kb.Row(
			tgui.Btn(fmt.Sprintf("%d. %s", i+1, label), nightData),
			tgui.Btn(fmt.Sprintf("%d. 🗑 Delete", i+1), delData),
		)
	}
	return tgui.JoinH("\n\n", blocks...).String(), kb
}
