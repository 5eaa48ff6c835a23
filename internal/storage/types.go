package storage

import (
	"errors"
	"strings"
	"time"
)

var ErrClosed = errors.New("storage closed")

type Config struct {
	Driver      string
	Path        string
	BusyTimeout time.Duration // sqlite only; 0 means default
}

// Mention is a notification category subject to mention policy.
type Mention int

const (
	MentionJoinLeave Mention = iota
	MentionItemFinder
	MentionItemReceiver
	MentionCompletion
	MentionHints
)

func (m Mention) String() string {
	switch m {
	case MentionJoinLeave:
		return "join_leave"
	case MentionItemFinder:
		return "item_finder"
	case MentionItemReceiver:
		return "item_receiver"
	case MentionCompletion:
		return "completion"
	case MentionHints:
		return "hints"
	}
	return "unknown"
}

// DefaultMention is the value used when a monitor or link leaves a
// category unset: everything except join/leave mentions.
func DefaultMention(m Mention) bool { return m != MentionJoinLeave }

// MentionFlags is a monitor's per-category mention switch.
type MentionFlags struct {
	JoinLeave    bool `json:"join_leave"`
	ItemFinder   bool `json:"item_finder"`
	ItemReceiver bool `json:"item_receiver"`
	Completion   bool `json:"completion"`
	Hints        bool `json:"hints"`
}

func DefaultMentionFlags() MentionFlags {
	return MentionFlags{ItemFinder: true, ItemReceiver: true, Completion: true, Hints: true}
}

func (f MentionFlags) Allows(m Mention) bool {
	switch m {
	case MentionJoinLeave:
		return f.JoinLeave
	case MentionItemFinder:
		return f.ItemFinder
	case MentionItemReceiver:
		return f.ItemReceiver
	case MentionCompletion:
		return f.Completion
	case MentionHints:
		return f.Hints
	}
	return false
}

// MentionPrefs is a recipient's opt-in per category. Nil means unset.
type MentionPrefs struct {
	JoinLeave    *bool `json:"join_leave,omitempty"`
	ItemFinder   *bool `json:"item_finder,omitempty"`
	ItemReceiver *bool `json:"item_receiver,omitempty"`
	Completion   *bool `json:"completion,omitempty"`
	Hints        *bool `json:"hints,omitempty"`
}

func (p MentionPrefs) get(m Mention) *bool {
	switch m {
	case MentionJoinLeave:
		return p.JoinLeave
	case MentionItemFinder:
		return p.ItemFinder
	case MentionItemReceiver:
		return p.ItemReceiver
	case MentionCompletion:
		return p.Completion
	case MentionHints:
		return p.Hints
	}
	return nil
}

func (p MentionPrefs) Allows(m Mention) bool {
	if v := p.get(m); v != nil {
		return *v
	}
	return DefaultMention(m)
}

// Connection is a persisted monitor configuration.
type Connection struct {
	ID        int64        `json:"id"`
	Host      string       `json:"host"`
	Port      int          `json:"port"`
	Game      string       `json:"game"`
	Player    string       `json:"player"`
	ChannelID string       `json:"channel"`
	Mentions  MentionFlags `json:"mentions"`
}

// Link maps a session participant (slot name) to a chat user within a guild.
type Link struct {
	GuildID string       `json:"guild_id"`
	Player  string       `json:"player"`
	UserID  string       `json:"user_id"`
	Prefs   MentionPrefs `json:"prefs"`
}

// GuildServer is a guild's default session host.
type GuildServer struct {
	GuildID string `json:"guild_id"`
	Host    string `json:"host"`
	Port    int    `json:"port"`
}

// SystemUser marks activity not caused by a chat user.
const SystemUser = "0"

type ActivityEntry struct {
	GuildID string    `json:"guild_id"`
	UserID  string    `json:"user_id"`
	Action  string    `json:"action"`
	At      time.Time `json:"at"`
}

func sameHost(a, b string) bool { return strings.EqualFold(strings.TrimSpace(a), strings.TrimSpace(b)) }
