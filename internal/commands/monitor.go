package commands

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"aprelay/internal/monitor"
	"aprelay/internal/storage"
	"aprelay/internal/transport"
	"aprelay/internal/transport/discord/router"
	logx "aprelay/pkg/logx"
)

const (
	noDefaultServerText = "No default server set for this Discord server. Please provide `host` and `port`, or ask an admin to use `/set-server` to set a default."
	badChannelText      = "Could not find the specified channel in cache or it is not text-based."
	trackingText        = "This monitor will now track Archipelago on this channel."
)

var mentionOptions = []transport.OptionSpec{
	{Name: "mention_join_leave", Description: "Mention linked users when players join or leave (default: false)", Type: transport.OptionBoolean},
	{Name: "mention_item_finder", Description: "Mention linked users when they find an item (default: true)", Type: transport.OptionBoolean},
	{Name: "mention_item_receiver", Description: "Mention linked users when they receive an item (default: true)", Type: transport.OptionBoolean},
	{Name: "mention_completion", Description: "Mention linked users when they complete their goal (default: true)", Type: transport.OptionBoolean},
	{Name: "mention_hints", Description: "Mention linked users on hints (default: true)", Type: transport.OptionBoolean},
}

// Monitor starts relaying a session to a channel.
type Monitor struct{ Deps }

func (*Monitor) Spec() transport.CommandSpec {
	opts := []transport.OptionSpec{
		{Name: "game", Description: "The game the player is playing", Type: transport.OptionString, Required: true},
		{Name: "player", Description: "The slot name to connect as", Type: transport.OptionString, Required: true},
		{Name: "channel", Description: "The channel to post updates in", Type: transport.OptionChannel, Required: true},
		{Name: "host", Description: "The host to monitor (defaults to the server set with /set-server)", Type: transport.OptionString},
		{Name: "port", Description: "The port to monitor", Type: transport.OptionInteger},
	}
	return transport.CommandSpec{
		Name:        "monitor",
		Description: "Setup the Archipelago tracker for a given game",
		Options:     append(opts, mentionOptions...),
	}
}

func (c *Monitor) Execute(ctx context.Context, req *router.Request) error {
	if req.GuildID == "" {
		return reply(ctx, req, guildOnlyText)
	}

	host := strings.TrimSpace(req.String("host"))
	port, hasPort := req.Int("port")
	if host == "" || !hasPort {
		gs, ok, err := c.Store.GetGuildServer(ctx, req.GuildID)
		if err != nil {
			return err
		}
		if !ok {
			return reply(ctx, req, noDefaultServerText)
		}
		if host == "" {
			host = gs.Host
		}
		if !hasPort {
			port = int64(gs.Port)
		}
	}
	if !validHost(host) {
		return reply(ctx, req, invalidHostText)
	}

	cfg := storage.Connection{
		Host:      host,
		Port:      int(port),
		Game:      unquote(req.String("game")),
		Player:    unquote(req.String("player")),
		ChannelID: req.String("channel"),
		Mentions: storage.MentionFlags{
			JoinLeave:    req.Bool("mention_join_leave", false),
			ItemFinder:   req.Bool("mention_item_finder", true),
			ItemReceiver: req.Bool("mention_item_receiver", true),
			Completion:   req.Bool("mention_completion", true),
			Hints:        req.Bool("mention_hints", true),
		},
	}
	id := monitor.IdentityOf(cfg)
	if c.Registry.Exists(id) {
		return reply(ctx, req, fmt.Sprintf("Already monitoring %s on that host!", cfg.Player))
	}

	ch, err := c.Channels.ResolveChannel(ctx, cfg.ChannelID)
	if err != nil || !ch.Text || ch.GuildID != req.GuildID {
		return reply(ctx, req, badChannelText)
	}

	if err := req.Respond.Defer(ctx, true); err != nil {
		return err
	}
	if _, err := c.Registry.Create(ctx, cfg); err != nil {
		req.Logger.Warn("monitor create failed", logx.String("monitor", id.String()), logx.Err(err))
		switch {
		case errors.Is(err, monitor.ErrAlreadyMonitoring):
			return req.Respond.Edit(ctx, fmt.Sprintf("Already monitoring %s on that host!", cfg.Player))
		case errors.Is(err, monitor.ErrConnect):
			return req.Respond.Edit(ctx, connectFailText)
		default:
			return req.Respond.Edit(ctx, badChannelText)
		}
	}

	if _, err := c.Sender.Send(ctx, transport.OutgoingMessage{ChannelID: ch.ID, Content: trackingText}); err != nil {
		req.Logger.Warn("tracking notice failed", logx.String("channel", ch.ID), logx.Err(err))
	}
	return req.Respond.Edit(ctx, fmt.Sprintf("Now monitoring Archipelago on %s.", id.Address()))
}
