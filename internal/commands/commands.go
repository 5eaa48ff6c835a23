// Package commands implements the slash commands and button actions.
package commands

import (
	"context"
	"regexp"
	"strings"
	"time"

	"aprelay/internal/monitor"
	"aprelay/internal/storage"
	"aprelay/internal/transport"
	"aprelay/internal/transport/discord/router"
	logx "aprelay/pkg/logx"
)

const (
	guildOnlyText   = "This command can only be used in a server."
	invalidHostText = "Invalid host name format. Please use domain name (e.g: archipelago.gg)"
	connectFailText = "Failed to connect to Archipelago. Please check host and port."
)

// hostPattern accepts dotted domain names such as archipelago.gg.
var hostPattern = regexp.MustCompile(`^(?:[a-z0-9](?:[a-z0-9-]{0,61}[a-z0-9])?\.)+[a-z0-9][a-z0-9-]{0,61}[a-z0-9]$`)

func validHost(host string) bool { return hostPattern.MatchString(host) }

// Deps are shared by all commands.
type Deps struct {
	Registry *monitor.Registry
	Store    storage.Store
	Channels monitor.ChannelResolver
	Sender   transport.Sender
	// Dialer opens temporary sessions for hint requests.
	Dialer   monitor.Dialer
	Hint     monitor.HintOptions
	HintTags []string
	Log      logx.Logger
}

// All returns every slash command.
func All(d Deps) []router.Command {
	return []router.Command{
		&Monitor{d},
		&Unmonitor{d},
		&Link{d},
		&Unlink{d},
		&Links{d},
		&Hint{d},
		Ping{},
		&SetServer{d},
	}
}

// Actions returns the button handlers.
func Actions(d Deps) []router.ActionRoute {
	r := &Remonitor{d}
	return []router.ActionRoute{{Prefix: strings.TrimSuffix(monitor.RemonitorPrefix, ":"), Timeout: time.Minute, Handle: r.Handle}}
}

func reply(ctx context.Context, req *router.Request, text string) error {
	return req.Respond.Reply(ctx, text, true)
}

// unquote strips one pair of surrounding quotes that Discord clients may add.
func unquote(s string) string {
	s = strings.TrimSpace(s)
	if len(s) >= 2 && (s[0] == '"' || s[0] == '\'') && (s[len(s)-1] == '"' || s[len(s)-1] == '\'') {
		return s[1 : len(s)-1]
	}
	return s
}

// linkedPlayer returns the player name linked to the user in the guild.
func linkedPlayer(ctx context.Context, st storage.Store, guildID, userID string) (string, bool, error) {
	l, ok, err := st.FindLinkByUser(ctx, guildID, userID)
	if err != nil || !ok {
		return "", false, err
	}
	return l.Player, true, nil
}
