package commands

import (
	"context"
	"fmt"
	"sort"
	"strings"

	"aprelay/internal/storage"
	"aprelay/internal/transport"
	"aprelay/internal/transport/discord/router"
	logx "aprelay/pkg/logx"
)

// Link maps a player name to a guild member.
type Link struct{ Deps }

func (*Link) Spec() transport.CommandSpec {
	opts := []transport.OptionSpec{
		{Name: "player", Description: "The Archipelago player (slot) name", Type: transport.OptionString, Required: true},
		{Name: "user", Description: "The user to link (defaults to you)", Type: transport.OptionUser},
	}
	return transport.CommandSpec{
		Name:        "link",
		Description: "Link an Archipelago player to a Discord user for mentions",
		Options:     append(opts, mentionOptions...),
	}
}

func (c *Link) Execute(ctx context.Context, req *router.Request) error {
	if req.GuildID == "" {
		return reply(ctx, req, guildOnlyText)
	}
	player := unquote(req.String("player"))
	user := req.String("user")
	if user == "" {
		user = req.UserID
	}
	l := storage.Link{
		GuildID: req.GuildID,
		Player:  player,
		UserID:  user,
		Prefs: storage.MentionPrefs{
			JoinLeave:    req.BoolPtr("mention_join_leave"),
			ItemFinder:   req.BoolPtr("mention_item_finder"),
			ItemReceiver: req.BoolPtr("mention_item_receiver"),
			Completion:   req.BoolPtr("mention_completion"),
			Hints:        req.BoolPtr("mention_hints"),
		},
	}
	if err := c.Store.UpsertLink(ctx, l); err != nil {
		req.Logger.Warn("link failed", logx.String("player", player), logx.Err(err))
		return reply(ctx, req, "Failed to link user in database.")
	}
	return reply(ctx, req, fmt.Sprintf("Linked Archipelago player **%s** to <@%s>. Notifications involving this player will now mention them.", player, user))
}

type Unlink struct{ Deps }

func (*Unlink) Spec() transport.CommandSpec {
	return transport.CommandSpec{
		Name:        "unlink",
		Description: "Remove the link of an Archipelago player",
		Options: []transport.OptionSpec{
			{Name: "player", Description: "The Archipelago player (slot) name", Type: transport.OptionString, Required: true},
		},
	}
}

func (c *Unlink) Execute(ctx context.Context, req *router.Request) error {
	if req.GuildID == "" {
		return reply(ctx, req, guildOnlyText)
	}
	player := unquote(req.String("player"))
	if _, err := c.Store.DeleteLink(ctx, req.GuildID, player); err != nil {
		req.Logger.Warn("unlink failed", logx.String("player", player), logx.Err(err))
		return reply(ctx, req, "Failed to unlink user in database.")
	}
	return reply(ctx, req, fmt.Sprintf("Unlinked Archipelago player **%s**.", player))
}

type Links struct{ Deps }

func (*Links) Spec() transport.CommandSpec {
	return transport.CommandSpec{Name: "links", Description: "List the linked Archipelago players of this server"}
}

func (c *Links) Execute(ctx context.Context, req *router.Request) error {
	if req.GuildID == "" {
		return reply(ctx, req, guildOnlyText)
	}
	links, err := c.Store.ListLinks(ctx, req.GuildID)
	if err != nil {
		req.Logger.Warn("list links failed", logx.Err(err))
		return reply(ctx, req, "Failed to retrieve links from database.")
	}
	if len(links) == 0 {
		return reply(ctx, req, "No players are currently linked in this server.")
	}
	sort.Slice(links, func(i, j int) bool { return strings.ToLower(links[i].Player) < strings.ToLower(links[j].Player) })

	var b strings.Builder
	b.WriteString("**Linked Archipelago Players**")
	for _, l := range links {
		fmt.Fprintf(&b, "\n**%s**: <@%s>", l.Player, l.UserID)
	}
	return reply(ctx, req, b.String())
}
