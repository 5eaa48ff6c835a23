package commands

import (
	"context"
	"fmt"
	"strings"

	"github.com/samber/lo"

	"aprelay/internal/monitor"
	"aprelay/internal/transport"
	"aprelay/internal/transport/discord/router"
)

const maxChoices = 25

// Unmonitor stops a monitor and forgets its config.
type Unmonitor struct{ Deps }

func (*Unmonitor) Spec() transport.CommandSpec {
	return transport.CommandSpec{
		Name:        "unmonitor",
		Description: "Stop monitoring an Archipelago session",
		Options: []transport.OptionSpec{
			{Name: "uri", Description: "The monitor to stop (host:port:player)", Type: transport.OptionString, Required: true, Autocomplete: true},
		},
	}
}

func (c *Unmonitor) Execute(ctx context.Context, req *router.Request) error {
	if req.GuildID == "" {
		return reply(ctx, req, guildOnlyText)
	}
	uri := strings.TrimSpace(req.String("uri"))
	id, err := monitor.ParseIdentity(uri)
	if err != nil {
		return reply(ctx, req, fmt.Sprintf("There is no active monitor on %s.", uri))
	}
	// Monitors of other guilds are invisible here.
	m, ok := c.Registry.Get(id)
	if !ok || m.GuildID() != req.GuildID {
		return reply(ctx, req, fmt.Sprintf("There is no active monitor on %s.", uri))
	}
	c.Registry.Remove(ctx, id, true)
	return reply(ctx, req, fmt.Sprintf("The tracker will no longer track %s.", uri))
}

func (c *Unmonitor) Autocomplete(ctx context.Context, req *router.Request) ([]transport.Choice, error) {
	focused, _ := req.Focused()
	prefix, _ := focused.Value.(string)
	prefix = strings.ToLower(prefix)

	ids := lo.Map(c.Registry.ListByGuild(req.GuildID), func(m *monitor.Monitor, _ int) string { return m.Identity().String() })
	ids = lo.Filter(ids, func(s string, _ int) bool { return strings.Contains(strings.ToLower(s), prefix) })
	return toChoices(ids), nil
}

func toChoices(values []string) []transport.Choice {
	if len(values) > maxChoices {
		values = values[:maxChoices]
	}
	return lo.Map(values, func(v string, _ int) transport.Choice { return transport.Choice{Name: v, Value: v} })
}
