package commands

import (
	"context"

	"aprelay/internal/transport"
	"aprelay/internal/transport/discord/router"
)

type Ping struct{}

func (Ping) Spec() transport.CommandSpec {
	return transport.CommandSpec{Name: "ping", Description: "Test the bot's responsiveness by a ping."}
}

func (Ping) Execute(ctx context.Context, req *router.Request) error {
	return reply(ctx, req, "Pong!")
}
