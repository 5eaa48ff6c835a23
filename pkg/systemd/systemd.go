// Package systemd reports service state to the systemd manager. Every call
// is a no-op when the process was not started with NOTIFY_SOCKET.
package systemd

import (
	"context"
	"time"

	"github.com/coreos/go-systemd/v22/daemon"
)

func notify(state string) error {
	_, err := daemon.SdNotify(false, state)
	return err
}

func Ready() error     { return notify(daemon.SdNotifyReady) }
func Stopping() error  { return notify(daemon.SdNotifyStopping) }
func Reloading() error { return notify(daemon.SdNotifyReloading) }

// Status sets the free-form status line shown by systemctl status.
func Status(text string) error { return notify("STATUS=" + text) }

// WatchdogInterval returns half the configured WatchdogSec, or zero when
// the watchdog is off.
func WatchdogInterval() time.Duration {
	d, err := daemon.SdWatchdogEnabled(false)
	if err != nil || d <= 0 {
		return 0
	}
	return d / 2
}

// Watchdog pings the manager until ctx is done. healthy gates each ping;
// nil means always healthy.
func Watchdog(ctx context.Context, healthy func() bool) error {
	every := WatchdogInterval()
	if every <= 0 {
		return nil
	}
	t := time.NewTicker(every)
	defer t.Stop()
	for {
		select {
		case <-ctx.Done():
			return nil
		case <-t.C:
			if healthy != nil && !healthy() {
				continue
			}
			if err := notify(daemon.SdNotifyWatchdog); err != nil {
				return err
			}
		}
	}
}
