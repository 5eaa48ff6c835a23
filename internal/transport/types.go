package transport

import "context"

// Channel is a resolved chat destination.
type Channel struct {
	ID      string
	GuildID string
	Name    string
	Text    bool // accepts text messages
}

type EmbedField struct {
	Name  string
	Value string
}

type Embed struct {
	Title       string
	Description string
	Fields      []EmbedField
}

// Button is a message component that triggers an interaction carrying ActionID.
type Button struct {
	Label    string
	ActionID string
}

type OutgoingMessage struct {
	ChannelID string
	// Content is sent as plain text. Only users listed in Mentions may be
	// pinged by it.
	Content  string
	Mentions []string
	Embeds   []Embed
	Buttons  []Button
}

type MessageRef struct {
	ChannelID string
	MessageID string
}

type InteractionKind string

const (
	InteractionCommand      InteractionKind = "command"
	InteractionAutocomplete InteractionKind = "autocomplete"
	InteractionButton       InteractionKind = "button"
	InteractionGuildJoin    InteractionKind = "guild_join"
	InteractionGuildLeave   InteractionKind = "guild_leave"
)

type OptionType string

const (
	OptionString  OptionType = "string"
	OptionInteger OptionType = "integer"
	OptionBoolean OptionType = "boolean"
	OptionChannel OptionType = "channel"
	OptionUser    OptionType = "user"
)

// Option is one parsed command argument. Value holds string, int64 or bool
// depending on Type; channel and user options carry the snowflake as string.
type Option struct {
	Name    string
	Type    OptionType
	Value   any
	Focused bool
}

type Choice struct {
	Name  string
	Value string
}

// Responder answers a single interaction. Implementations are adapter specific.
type Responder interface {
	Reply(ctx context.Context, text string, ephemeral bool) error
	Defer(ctx context.Context, ephemeral bool) error
	Edit(ctx context.Context, text string) error
	Followup(ctx context.Context, text string, ephemeral bool) error
	Choices(ctx context.Context, choices []Choice) error
}

type Interaction struct {
	Kind      InteractionKind
	GuildID   string
	ChannelID string
	UserID    string
	Command   string
	Options   []Option
	ActionID  string
	Respond   Responder
}

type OptionSpec struct {
	Name         string
	Description  string
	Type         OptionType
	Required     bool
	Autocomplete bool
}

type CommandSpec struct {
	Name        string
	Description string
	Options     []OptionSpec
	// ManageGuild restricts the command to members with the Manage Guild permission.
	ManageGuild bool
}

type Adapter interface {
	Start(ctx context.Context, out chan<- Interaction) error
	Stop(ctx context.Context) error

	ResolveChannel(ctx context.Context, id string) (Channel, error)
	Send(ctx context.Context, msg OutgoingMessage) (MessageRef, error)
	RegisterCommands(ctx context.Context, cmds []CommandSpec) error
}

// Sender is the subset of Adapter used by delivery paths.
type Sender interface {
	Send(ctx context.Context, msg OutgoingMessage) (MessageRef, error)
}
