package router

import (
	"context"
	"time"

	"aprelay/internal/storage"
	kit "aprelay/internal/transport"
	logx "aprelay/pkg/logx"
)

// Request is one routed interaction.
type Request struct {
	kit.Interaction

	// Route is the command name or action prefix that matched.
	Route   string
	Payload string // button payload after the action prefix
	ReqID   string
	Logger  logx.Logger
}

type HandlerFunc func(ctx context.Context, req *Request) error

// Command is a slash command. Commands are independent values registered
// in a name table.
type Command interface {
	Spec() kit.CommandSpec
	Execute(ctx context.Context, req *Request) error
}

// Autocompleter is implemented by commands with autocompleted options.
type Autocompleter interface {
	Autocomplete(ctx context.Context, req *Request) ([]kit.Choice, error)
}

type ActionHandlerFunc func(ctx context.Context, req *Request, payload string) error

// ActionRoute handles buttons whose action id is "<Prefix>:<payload>".
type ActionRoute struct {
	Prefix  string
	Timeout time.Duration
	Handle  ActionHandlerFunc
}

// ActivityLog records who did what in a guild.
type ActivityLog interface {
	AppendActivity(ctx context.Context, e storage.ActivityEntry) error
}
