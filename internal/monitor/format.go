package monitor

import (
	"github.com/samber/lo"

	"aprelay/internal/archipelago"
	"aprelay/internal/storage"
)

// Rendered is formatted text plus the users it mentions, in first-seen order.
type Rendered struct {
	Text     string
	Mentions []string
}

// LinkSnapshot indexes a group's links by participant name.
type LinkSnapshot map[string]storage.Link

func NewLinkSnapshot(links []storage.Link) LinkSnapshot {
	return lo.SliceToMap(links, func(l storage.Link) (string, storage.Link) { return l.Player, l })
}

// Formatter renders session text for one monitor. It never fails: unknown
// references degrade to their literal text or a fixed placeholder.
type Formatter struct {
	Names *archipelago.Names
	Links LinkSnapshot
	Flags storage.MentionFlags
}

// Categorizer picks the mention category for a player segment.
type Categorizer func(seg archipelago.Segment) storage.Mention

func Always(m storage.Mention) Categorizer {
	return func(archipelago.Segment) storage.Mention { return m }
}

func mentionTag(userID string) string { return "<@" + userID + ">" }

// Recipient returns the user to mention for a participant, applying the
// rule: link exists AND monitor flag AND recipient preference.
func (f Formatter) Recipient(names []string, cat storage.Mention) (string, bool) {
	if !f.Flags.Allows(cat) {
		return "", false
	}
	for _, n := range names {
		if n == "" {
			continue
		}
		if l, ok := f.Links[n]; ok {
			if l.Prefs.Allows(cat) && l.UserID != "" {
				return l.UserID, true
			}
			return "", false
		}
	}
	return "", false
}

// Player renders a participant reference by slot.
func (f Formatter) Player(slot int, cat storage.Mention) Rendered {
	p, ok := f.Names.Player(slot)
	if !ok {
		return Rendered{Text: "**Unknown Player**"}
	}
	return f.player(p.DisplayName(), []string{p.Name, p.Alias}, cat)
}

func (f Formatter) player(display string, keys []string, cat storage.Mention) Rendered {
	if uid, ok := f.Recipient(keys, cat); ok {
		return Rendered{Text: mentionTag(uid), Mentions: []string{uid}}
	}
	return Rendered{Text: "**" + display + "**"}
}

func (f Formatter) Render(segs []archipelago.Segment, category Categorizer) Rendered {
	var (
		text     []byte
		mentions []string
	)
	for _, s := range segs {
		switch s.Kind {
		case archipelago.SegmentPlayer:
			display := f.Names.Resolve(s)
			keys := []string{display}
			if p, ok := f.Names.Player(s.Slot); ok && !s.ByName {
				keys = []string{p.Name, p.Alias}
			}
			r := f.player(display, keys, category(s))
			text = append(text, r.Text...)
			mentions = append(mentions, r.Mentions...)
		case archipelago.SegmentItem:
			text = append(text, itemMarkup(f.Names.Resolve(s), s.Flags)...)
		case archipelago.SegmentLocation:
			text = append(text, "**"+f.Names.Resolve(s)+"**"...)
		default:
			text = append(text, s.Text...)
		}
	}
	return Rendered{Text: string(text), Mentions: lo.Uniq(mentions)}
}

// itemMarkup wraps an item name in italics; progression items are also
// bold, never-exclude items underlined and traps struck through.
func itemMarkup(name string, flags archipelago.ItemFlags) string {
	inner := name
	if flags.Has(archipelago.FlagTrap) {
		inner = "~~" + inner + "~~"
	}
	if flags.Has(archipelago.FlagProgression) {
		inner = "**" + inner + "**"
	}
	inner = "*" + inner + "*"
	if flags.Has(archipelago.FlagNeverExclude) {
		inner = "__" + inner + "__"
	}
	return inner
}
