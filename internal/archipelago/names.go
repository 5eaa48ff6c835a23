package archipelago

import (
	"sort"
	"strconv"
)

const (
	UnknownItem     = "Unknown Item"
	UnknownLocation = "Unknown Location"

	serverGame = "Archipelago"
)

// Player describes a slot in the multiworld.
type Player struct {
	Slot  int
	Team  int
	Name  string // slot name, stable across the session
	Alias string // display alias, may change
	Game  string
}

// DisplayName prefers the alias.
func (p Player) DisplayName() string {
	if p.Alias != "" {
		return p.Alias
	}
	return p.Name
}

type gameNames struct {
	itemByName map[string]int64
	items      map[int64]string
	locations  map[int64]string
}

// Names resolves slot, item and location ids for one session. It is
// immutable after the handshake; a nil *Names resolves nothing.
type Names struct {
	players map[int]Player
	games   map[string]*gameNames
}

func newNames(c connected, games map[string]gameData) *Names {
	n := &Names{players: map[int]Player{}, games: map[string]*gameNames{}}
	for slotKey, info := range c.SlotInfo {
		slot, err := strconv.Atoi(slotKey)
		if err != nil {
			continue
		}
		n.players[slot] = Player{Slot: slot, Name: info.Name, Game: info.Game}
	}
	for _, p := range c.Players {
		cur := n.players[p.Slot]
		cur.Slot, cur.Team, cur.Alias = p.Slot, p.Team, p.Alias
		if cur.Name == "" {
			cur.Name = p.Name
		}
		n.players[p.Slot] = cur
	}
	for game, data := range games {
		g := &gameNames{
			itemByName: data.ItemNameToID,
			items:      make(map[int64]string, len(data.ItemNameToID)),
			locations:  make(map[int64]string, len(data.LocationNameToID)),
		}
		for name, id := range data.ItemNameToID {
			g.items[id] = name
		}
		for name, id := range data.LocationNameToID {
			g.locations[id] = name
		}
		n.games[game] = g
	}
	return n
}

// NewNames builds a Names table from explicit tables, keyed by game.
func NewNames(players []Player, items, locations map[string]map[int64]string) *Names {
	n := &Names{players: map[int]Player{}, games: map[string]*gameNames{}}
	for _, p := range players {
		n.players[p.Slot] = p
	}
	game := func(name string) *gameNames {
		g := n.games[name]
		if g == nil {
			g = &gameNames{itemByName: map[string]int64{}, items: map[int64]string{}, locations: map[int64]string{}}
			n.games[name] = g
		}
		return g
	}
	for name, m := range items {
		g := game(name)
		for id, item := range m {
			g.items[id] = item
			g.itemByName[item] = id
		}
	}
	for name, m := range locations {
		g := game(name)
		for id, loc := range m {
			g.locations[id] = loc
		}
	}
	return n
}

func (n *Names) Player(slot int) (Player, bool) {
	if n == nil {
		return Player{}, false
	}
	p, ok := n.players[slot]
	return p, ok
}

// ItemName looks the id up in the owning slot's game. Slot 0 is the
// server and resolves through the Archipelago game.
func (n *Names) ItemName(slot int, id int64) (string, bool) {
	return n.lookup(slot, func(g *gameNames) (string, bool) {
		s, ok := g.items[id]
		return s, ok
	})
}

func (n *Names) LocationName(slot int, id int64) (string, bool) {
	return n.lookup(slot, func(g *gameNames) (string, bool) {
		s, ok := g.locations[id]
		return s, ok
	})
}

// lookup never guesses across games for a known owner. Only a slot missing
// from the table walks every game, in name order.
func (n *Names) lookup(slot int, get func(*gameNames) (string, bool)) (string, bool) {
	if n == nil {
		return "", false
	}
	game, known := serverGame, slot == 0
	if p, ok := n.players[slot]; ok && p.Game != "" {
		game, known = p.Game, true
	}
	if known {
		if g := n.games[game]; g != nil {
			return get(g)
		}
		return "", false
	}
	games := make([]string, 0, len(n.games))
	for name := range n.games {
		games = append(games, name)
	}
	sort.Strings(games)
	for _, name := range games {
		if s, ok := get(n.games[name]); ok {
			return s, true
		}
	}
	return "", false
}

// ItemNames returns the sorted item names of a game.
func (n *Names) ItemNames(game string) []string {
	if n == nil {
		return nil
	}
	g := n.games[game]
	if g == nil {
		return nil
	}
	out := make([]string, 0, len(g.itemByName))
	for name := range g.itemByName {
		out = append(out, name)
	}
	sort.Strings(out)
	return out
}

// Resolve returns the display text of a segment.
func (n *Names) Resolve(s Segment) string {
	switch s.Kind {
	case SegmentPlayer:
		if s.ByName {
			return s.Text
		}
		if p, ok := n.Player(s.Slot); ok {
			return p.DisplayName()
		}
		return s.Text
	case SegmentItem:
		if s.ByName {
			return s.Text
		}
		if name, ok := n.ItemName(s.Slot, s.ID); ok {
			return name
		}
		return UnknownItem
	case SegmentLocation:
		if s.ByName {
			return s.Text
		}
		if name, ok := n.LocationName(s.Slot, s.ID); ok {
			return name
		}
		return UnknownLocation
	default:
		return s.Text
	}
}
