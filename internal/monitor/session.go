package monitor

import (
	"context"
	"time"

	"aprelay/internal/archipelago"
	"aprelay/internal/storage"
	"aprelay/internal/transport"
	logx "aprelay/pkg/logx"
)

// Session is one live connection to a game server.
type Session interface {
	Events() <-chan archipelago.Event
	Say(ctx context.Context, text string) error
	Close() error
	Names() *archipelago.Names
	ItemNames(game string) []string
}

type DialParams struct {
	Host     string
	Port     int
	Player   string
	Game     string
	Password string
	Tags     []string
}

func ParamsOf(c storage.Connection) DialParams {
	return DialParams{Host: c.Host, Port: c.Port, Player: c.Player, Game: c.Game}
}

type Dialer interface {
	Dial(ctx context.Context, p DialParams) (Session, error)
}

// ChannelResolver resolves a channel id to a send-capable channel.
type ChannelResolver interface {
	ResolveChannel(ctx context.Context, id string) (transport.Channel, error)
}

// LinkDirectory returns a group's recipient links.
type LinkDirectory interface {
	ListLinks(ctx context.Context, guildID string) ([]storage.Link, error)
}

// ClientDialer opens sessions with the archipelago client.
type ClientDialer struct {
	Version archipelago.Version
	Tags    []string // used when DialParams.Tags is empty
	Timeout time.Duration
	Log     logx.Logger
}

func (d ClientDialer) Dial(ctx context.Context, p DialParams) (Session, error) {
	tags := p.Tags
	if len(tags) == 0 {
		tags = d.Tags
	}
	c, err := archipelago.Dial(ctx, archipelago.Options{
		Host:             p.Host,
		Port:             p.Port,
		Name:             p.Player,
		Game:             p.Game,
		Password:         p.Password,
		Tags:             tags,
		Version:          d.Version,
		Items:            archipelago.ItemsHandlingAll,
		HandshakeTimeout: d.Timeout,
		Log:              d.Log,
	})
	if err != nil {
		return nil, err
	}
	return c, nil
}
