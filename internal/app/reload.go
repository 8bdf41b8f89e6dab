package app

import (
	"context"
	"strings"

	"pagewatch/internal/config"
	logx "pagewatch/pkg/logx"
)

// reloadLoop applies published configs until ctx is done. Bursts collapse
// to the newest config.
func (a *App) reloadLoop(ctx context.Context, sub chan *config.Config) {
	defer a.cfgm.Unsubscribe(sub)
	last := a.cfgm.Get()
	for {
		select {
		case <-ctx.Done():
			return
		case next, ok := <-sub:
			if !ok {
				return
			}
		drain:
			for {
				select {
				case newer := <-sub:
					if newer != nil {
						next = newer
					}
				default:
					break drain
				}
			}
			if next == nil {
				continue
			}
			a.applyConfig(last, next)
			last = next
		}
	}
}

// applyConfig applies the live sections of next. Sections that need a
// restart are only reported.
func (a *App) applyConfig(prev, next *config.Config) config.Change {
	if prev == nil {
		prev = &config.Config{}
	}
	ch := config.Diff(prev, next)
	if ch.Empty() {
		a.log.Debug("config reload received, no effective changes")
		return ch
	}

	if config.OwnersChanged(prev, next) {
		a.auth.SetOwners(next.Telegram.OwnerUserIDs)
	}
	// Target before Apply so enabling the Telegram sink does not warn.
	a.logs.SetTelegramTarget(GroupLogChat(next), next.Logging.Telegram.ThreadID)
	a.logs.Apply(LogConfig(next, true))

	if len(ch.Restart) > 0 {
		a.log.Warn("config sections changed that need a restart", logx.String("sections", strings.Join(ch.Restart, ",")))
	}
	a.log.Info("config reloaded", logx.String("changed", strings.Join(ch.Sections, ",")))
	return ch
}
