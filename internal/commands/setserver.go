package commands

import (
	"context"
	"fmt"

	"aprelay/internal/storage"
	"aprelay/internal/transport"
	"aprelay/internal/transport/discord/router"
	logx "aprelay/pkg/logx"
)

// SetServer stores the guild's default host and port.
type SetServer struct{ Deps }

func (*SetServer) Spec() transport.CommandSpec {
	return transport.CommandSpec{
		Name:        "set-server",
		Description: "Set the default Archipelago server for this Discord server.",
		ManageGuild: true,
		Options: []transport.OptionSpec{
			{Name: "host", Description: "The host to use (e.g., archipelago.gg)", Type: transport.OptionString, Required: true},
			{Name: "port", Description: "The port to use", Type: transport.OptionInteger, Required: true},
		},
	}
}

func (c *SetServer) Execute(ctx context.Context, req *router.Request) error {
	if req.GuildID == "" {
		return reply(ctx, req, guildOnlyText)
	}
	host := req.String("host")
	port, _ := req.Int("port")
	if !validHost(host) {
		return reply(ctx, req, invalidHostText)
	}
	if err := c.Store.SetGuildServer(ctx, storage.GuildServer{GuildID: req.GuildID, Host: host, Port: int(port)}); err != nil {
		req.Logger.Warn("set guild server failed", logx.Err(err))
		return reply(ctx, req, "Failed to save the default server.")
	}
	return reply(ctx, req, fmt.Sprintf("Default server set to **%s:%d**. Members can now use `/monitor` without specifying host and port.", host, port))
}
