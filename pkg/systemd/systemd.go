// Package systemd reports service state to systemd over the notify socket.
// Every call is a no-op when the process is not started by systemd.
package systemd

import (
	"context"
	"strings"
	"time"

	"github.com/coreos/go-systemd/v22/daemon"

	logx "pagewatch/pkg/logx"
)

// Ready reports READY=1 with a status line.
func Ready(log logx.Logger, status string) bool {
	return notify(log, daemon.SdNotifyReady, "STATUS="+status)
}

// Stopping reports STOPPING=1.
func Stopping(log logx.Logger) bool {
	return notify(log, daemon.SdNotifyStopping)
}

// Status updates the free-form status line shown by systemctl status.
func Status(log logx.Logger, status string) bool {
	return notify(log, "STATUS="+status)
}

// Watchdog pings WATCHDOG=1 at half the configured WatchdogSec until ctx is
// done. It returns at once when the unit has no watchdog.
func Watchdog(ctx context.Context, log logx.Logger) {
	every, err := daemon.SdWatchdogEnabled(false)
	if err != nil {
		log.Warn("systemd watchdog config invalid", logx.Err(err))
		return
	}
	if every <= 0 {
		return
	}
	t := time.NewTicker(every / 2)
	defer t.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-t.C:
			notify(log, daemon.SdNotifyWatchdog)
		}
	}
}

func notify(log logx.Logger, lines ...string) bool {
	sent, err := daemon.SdNotify(false, strings.Join(lines, "\n"))
	if err != nil {
		log.Debug("sd_notify failed", logx.Err(err))
	}
	return sent
}
