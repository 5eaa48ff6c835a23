package archipelago

import (
	"strconv"
	"strings"
)

type SegmentKind int

const (
	SegmentText SegmentKind = iota
	SegmentPlayer
	SegmentItem
	SegmentLocation
)

// Segment is one typed piece of a server message.
//
// For id-based segments Text holds the raw id and ID is parsed from it;
// ByName is set when the server already sent a display name.
type Segment struct {
	Kind   SegmentKind
	Text   string
	Slot   int // player segment: the player; item/location: owning player
	ID     int64
	ByName bool
	Flags  ItemFlags
}

// Event is a decoded session event. The set of implementations is closed.
type Event interface{ isEvent() }

type ItemSent struct {
	Segments  []Segment
	Item      NetworkItem // Item.Player is the finding slot
	Receiving int
	Cheat     bool
}

type ItemHinted struct {
	Segments  []Segment
	Item      NetworkItem
	Receiving int
	Found     bool
}

type PlayerJoined struct {
	Segments []Segment
	Slot     int
	Tags     []string
}

type PlayerLeft struct {
	Segments []Segment
	Slot     int
}

type GoalCompleted struct {
	Segments []Segment
	Slot     int
}

type ItemsReleased struct {
	Segments []Segment
	Slot     int
}

type ItemsCollected struct {
	Segments []Segment
	Slot     int
}

// CommandResult is the server's reply to a client command such as !hint.
type CommandResult struct {
	Segments []Segment
}

type ServerChat struct {
	Segments []Segment
	Message  string
}

// Message is any other PrintJSON packet (chat, tutorial, countdown, ...).
type Message struct {
	Type     string
	Segments []Segment
}

// ConnectionLost is the last event of a session; the channel closes after it.
type ConnectionLost struct {
	Err error
}

func (ItemSent) isEvent()       {}
func (ItemHinted) isEvent()     {}
func (PlayerJoined) isEvent()   {}
func (PlayerLeft) isEvent()     {}
func (GoalCompleted) isEvent()  {}
func (ItemsReleased) isEvent()  {}
func (ItemsCollected) isEvent() {}
func (CommandResult) isEvent()  {}
func (ServerChat) isEvent()     {}
func (Message) isEvent()        {}
func (ConnectionLost) isEvent() {}

func HasTag(tags []string, tag string) bool {
	for _, t := range tags {
		if strings.EqualFold(t, tag) {
			return true
		}
	}
	return false
}

func toSegments(parts []messagePart) []Segment {
	out := make([]Segment, 0, len(parts))
	for _, p := range parts {
		seg := Segment{Text: p.Text, Slot: p.Player, Flags: p.Flags}
		switch p.Type {
		case "player_id":
			seg.Kind = SegmentPlayer
			if n, err := strconv.Atoi(p.Text); err == nil {
				seg.Slot = n
				seg.ID = int64(n)
			}
		case "player_name":
			seg.Kind = SegmentPlayer
			seg.ByName = true
		case "item_id":
			seg.Kind = SegmentItem
			seg.ID, _ = strconv.ParseInt(p.Text, 10, 64)
		case "item_name":
			seg.Kind = SegmentItem
			seg.ByName = true
		case "location_id":
			seg.Kind = SegmentLocation
			seg.ID, _ = strconv.ParseInt(p.Text, 10, 64)
		case "location_name":
			seg.Kind = SegmentLocation
			seg.ByName = true
		default:
			seg.Kind = SegmentText
		}
		out = append(out, seg)
	}
	return out
}

func toEvent(p printJSON) Event {
	segs := toSegments(p.Data)
	var item NetworkItem
	if p.Item != nil {
		item = *p.Item
	}
	switch p.Type {
	case "ItemSend", "ItemCheat":
		return ItemSent{Segments: segs, Item: item, Receiving: p.Receiving, Cheat: p.Type == "ItemCheat"}
	case "Hint":
		found := p.Found != nil && *p.Found
		return ItemHinted{Segments: segs, Item: item, Receiving: p.Receiving, Found: found}
	case "Join":
		return PlayerJoined{Segments: segs, Slot: p.Slot, Tags: p.Tags}
	case "Part":
		return PlayerLeft{Segments: segs, Slot: p.Slot}
	case "Goal":
		return GoalCompleted{Segments: segs, Slot: p.Slot}
	case "Release":
		return ItemsReleased{Segments: segs, Slot: p.Slot}
	case "Collect":
		return ItemsCollected{Segments: segs, Slot: p.Slot}
	case "CommandResult", "AdminCommandResult":
		return CommandResult{Segments: segs}
	case "ServerChat":
		return ServerChat{Segments: segs, Message: p.Message}
	default:
		return Message{Type: p.Type, Segments: segs}
	}
}

// PlainText renders segments without markup, resolving ids through names.
func PlainText(segs []Segment, names *Names) string {
	var b strings.Builder
	for _, s := range segs {
		b.WriteString(names.Resolve(s))
	}
	return b.String()
}
