package commands

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/samber/lo"

	"aprelay/internal/monitor"
	"aprelay/internal/transport"
	"aprelay/internal/transport/discord/router"
	logx "aprelay/pkg/logx"
)

const (
	noPlayerText = "Could not determine which player to hint as. Please provide the `player` option or use `/link` to link your Discord account to an Archipelago player."
	noGameText   = "Please provide the `game` parameter (e.g., \"YARG\", \"Clique\", etc.) to connect to the server."
	noHintsText  = "**No hints found.**"
)

// Hint requests a hint through the player's monitor, or through a
// temporary connection when no monitor exists.
type Hint struct{ Deps }

func (*Hint) Spec() transport.CommandSpec {
	return transport.CommandSpec{
		Name:        "hint",
		Description: "Request a hint for an item from Archipelago",
		Options: []transport.OptionSpec{
			{Name: "item", Description: "The item to hint for", Type: transport.OptionString, Required: true, Autocomplete: true},
			{Name: "player", Description: "The player to hint as (defaults to your linked player)", Type: transport.OptionString},
			{Name: "host", Description: "Host for a temporary connection", Type: transport.OptionString},
			{Name: "port", Description: "Port for a temporary connection", Type: transport.OptionInteger},
			{Name: "game", Description: "Game for a temporary connection", Type: transport.OptionString},
			{Name: "password", Description: "Room password for a temporary connection", Type: transport.OptionString},
		},
	}
}

// player resolves the slot to hint as: the option, else the caller's link.
func (c *Hint) player(ctx context.Context, req *router.Request) (string, error) {
	if p := unquote(req.String("player")); p != "" {
		return p, nil
	}
	p, _, err := linkedPlayer(ctx, c.Store, req.GuildID, req.UserID)
	return p, err
}

func (c *Hint) Execute(ctx context.Context, req *router.Request) error {
	if req.GuildID == "" {
		return reply(ctx, req, guildOnlyText)
	}
	item := unquote(req.String("item"))
	player, err := c.player(ctx, req)
	if err != nil {
		return err
	}
	if player == "" {
		return reply(ctx, req, noPlayerText)
	}

	if m, ok := c.Registry.FindByPlayer(req.GuildID, player); ok {
		err := m.Say(ctx, "!hint "+item)
		if err == nil {
			return reply(ctx, req, fmt.Sprintf("Hint request for \"**%s**\" sent to Archipelago as player \"**%s**\".", item, player))
		}
		req.Logger.Debug("monitor say failed, using temporary connection", logx.Err(err))
	}

	host := strings.TrimSpace(req.String("host"))
	port, hasPort := req.Int("port")
	if host == "" || !hasPort {
		return reply(ctx, req, fmt.Sprintf("No active monitor found for player \"**%s**\". Please provide `host`, `port`, and `game` parameters to create a temporary connection, or use `/monitor` to set up a persistent monitor.", player))
	}
	game := unquote(req.String("game"))
	if game == "" {
		return reply(ctx, req, noGameText)
	}

	if err := req.Respond.Defer(ctx, true); err != nil {
		return err
	}
	p := monitor.DialParams{
		Host:     host,
		Port:     int(port),
		Player:   player,
		Game:     game,
		Password: req.String("password"),
		Tags:     c.HintTags,
	}
	hints, err := monitor.CollectHints(ctx, c.Dialer, p, item, c.Hint)
	switch {
	case errors.Is(err, monitor.ErrHintTimeout):
		return req.Respond.Edit(ctx, fmt.Sprintf("Hint request timed out after %d seconds", int(c.hintTimeout().Seconds())))
	case err != nil:
		req.Logger.Warn("temporary hint connection failed", logx.String("host", host), logx.Err(err))
		return req.Respond.Edit(ctx, "Failed to connect to Archipelago server: "+err.Error())
	case len(hints) == 0:
		return req.Respond.Edit(ctx, noHintsText)
	}

	chunks := monitor.ChunkHints(hints)
	if err := req.Respond.Edit(ctx, chunks[0]); err != nil {
		return err
	}
	for _, ch := range chunks[1:] {
		if err := req.Respond.Followup(ctx, ch, true); err != nil {
			return err
		}
	}
	return nil
}

func (c *Hint) hintTimeout() time.Duration {
	if c.Hint.First > 0 {
		return c.Hint.First
	}
	return monitor.DefaultHintFirstTimeout
}

// Autocomplete offers item names of the player's monitored game.
func (c *Hint) Autocomplete(ctx context.Context, req *router.Request) ([]transport.Choice, error) {
	player, err := c.player(ctx, req)
	if err != nil || player == "" {
		return nil, err
	}
	m, ok := c.Registry.FindByPlayer(req.GuildID, player)
	if !ok {
		return nil, nil
	}
	sess := m.Session()
	if sess == nil {
		return nil, nil
	}
	focused, _ := req.Focused()
	typed, _ := focused.Value.(string)
	typed = strings.ToLower(unquote(typed))

	names := lo.Filter(sess.ItemNames(m.Config().Game), func(n string, _ int) bool {
		return strings.Contains(strings.ToLower(n), typed)
	})
	return toChoices(names), nil
}
