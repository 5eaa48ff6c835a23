package commands

import (
	"context"
	"fmt"
	"strconv"

	"aprelay/internal/monitor"
	"aprelay/internal/transport/discord/router"
	logx "aprelay/pkg/logx"
)

const (
	goneText       = "Monitor configuration not found in database."
	serverDownText = "Failed to connect to Archipelago. Please check if the server is up."
)

// Remonitor handles the button posted when a monitor could not reconnect.
// The payload is the persisted connection id.
type Remonitor struct{ Deps }

func (c *Remonitor) Handle(ctx context.Context, req *router.Request, payload string) error {
	id, err := strconv.ParseInt(payload, 10, 64)
	if err != nil {
		return reply(ctx, req, goneText)
	}
	cfg, ok, err := c.Store.GetConnection(ctx, id)
	if err != nil {
		return err
	}
	if !ok {
		return reply(ctx, req, goneText)
	}

	if err := req.Respond.Defer(ctx, true); err != nil {
		return err
	}
	ident := monitor.IdentityOf(cfg)
	c.Registry.Remove(ctx, ident, false)
	if _, err := c.Registry.Create(ctx, cfg); err != nil {
		req.Logger.Warn("remonitor failed", logx.String("monitor", ident.String()), logx.Err(err))
		return req.Respond.Edit(ctx, serverDownText)
	}
	return req.Respond.Edit(ctx, fmt.Sprintf("Now monitoring Archipelago on %s.", ident.Address()))
}
