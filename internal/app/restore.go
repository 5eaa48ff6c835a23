package app

import (
	"context"
	"errors"
	"fmt"

	"aprelay/internal/monitor"
	"aprelay/internal/storage"
	kit "aprelay/internal/transport"
	logx "aprelay/pkg/logx"
	"aprelay/pkg/systemd"
)

const restoreFailedText = "Could not reconnect to Archipelago at **%s** after a restart. The server may be down."

// restoreMonitors re-creates every persisted monitor that is not running yet.
func (a *App) restoreMonitors(ctx context.Context) {
	conns, err := a.store.ListConnections(ctx)
	if err != nil {
		a.log.Error("list stored monitors failed", logx.Err(err))
		return
	}
	restored := 0
	for _, c := range conns {
		if ctx.Err() != nil {
			return
		}
		id := monitor.IdentityOf(c)
		if a.registry.Exists(id) {
			continue
		}
		if _, err := a.registry.Create(ctx, c); err != nil {
			if errors.Is(err, monitor.ErrAlreadyMonitoring) {
				continue
			}
			a.log.Warn("restore monitor failed", logx.String("monitor", id.String()), logx.Err(err))
			if errors.Is(err, monitor.ErrConnect) {
				a.offerRemonitor(ctx, c)
			}
			continue
		}
		restored++
	}
	a.log.Info("monitors restored", logx.Int("restored", restored), logx.Int("stored", len(conns)))
	_ = systemd.Status(fmt.Sprintf("relaying %d sessions", a.registry.Len()))
}

func (a *App) offerRemonitor(ctx context.Context, c storage.Connection) {
	msg := kit.OutgoingMessage{
		ChannelID: c.ChannelID,
		Content:   fmt.Sprintf(restoreFailedText, monitor.IdentityOf(c).Address()),
		Buttons:   []kit.Button{{Label: "Re-monitor", ActionID: monitor.RemonitorAction(c.ID)}},
	}
	if _, err := a.out.Send(ctx, msg); err != nil {
		a.log.Warn("re-monitor offer failed", logx.String("channel", c.ChannelID), logx.Err(err))
	}
}
