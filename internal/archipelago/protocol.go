package archipelago

import "encoding/json"

// Version is the client version advertised in Connect.
type Version struct {
	Major int    `json:"major"`
	Minor int    `json:"minor"`
	Build int    `json:"build"`
	Class string `json:"class"`
}

func NewVersion(major, minor, build int) Version {
	return Version{Major: major, Minor: minor, Build: build, Class: "Version"}
}

// ItemsHandlingAll requests remote items, own-world items and starting inventory.
const ItemsHandlingAll = 0b111

// Tags understood by servers.
const (
	TagIgnoreGame = "IgnoreGame"
	TagMonitor    = "Monitor"
	TagTextOnly   = "TextOnly"
	TagTracker    = "Tracker"
)

// ItemFlags classify an item.
type ItemFlags int

const (
	FlagProgression  ItemFlags = 0b001
	FlagNeverExclude ItemFlags = 0b010
	FlagTrap         ItemFlags = 0b100
)

func (f ItemFlags) Has(x ItemFlags) bool { return f&x != 0 }

type packetHeader struct {
	Cmd string `json:"cmd"`
}

type roomInfo struct {
	Games    []string `json:"games"`
	Password bool     `json:"password"`
	Version  Version  `json:"version"`
	SeedName string   `json:"seed_name"`
}

type getDataPackage struct {
	Cmd   string   `json:"cmd"`
	Games []string `json:"games,omitempty"`
}

type dataPackage struct {
	Data struct {
		Games map[string]gameData `json:"games"`
	} `json:"data"`
}

type gameData struct {
	ItemNameToID     map[string]int64 `json:"item_name_to_id"`
	LocationNameToID map[string]int64 `json:"location_name_to_id"`
	Checksum         string           `json:"checksum"`
}

type connectPacket struct {
	Cmd           string   `json:"cmd"`
	Password      string   `json:"password"`
	Game          string   `json:"game"`
	Name          string   `json:"name"`
	UUID          string   `json:"uuid"`
	Version       Version  `json:"version"`
	ItemsHandling int      `json:"items_handling"`
	Tags          []string `json:"tags"`
	SlotData      bool     `json:"slot_data"`
}

type networkPlayer struct {
	Team  int    `json:"team"`
	Slot  int    `json:"slot"`
	Alias string `json:"alias"`
	Name  string `json:"name"`
}

type networkSlot struct {
	Name string `json:"name"`
	Game string `json:"game"`
	Type int    `json:"type"`
}

type connected struct {
	Team     int                    `json:"team"`
	Slot     int                    `json:"slot"`
	Players  []networkPlayer        `json:"players"`
	SlotInfo map[string]networkSlot `json:"slot_info"`
}

type connectionRefused struct {
	Errors []string `json:"errors"`
}

// NetworkItem is an item placement as reported by the server.
type NetworkItem struct {
	Item     int64     `json:"item"`
	Location int64     `json:"location"`
	Player   int       `json:"player"`
	Flags    ItemFlags `json:"flags"`
}

type messagePart struct {
	Type   string    `json:"type"`
	Text   string    `json:"text"`
	Player int       `json:"player"`
	Flags  ItemFlags `json:"flags"`
}

type printJSON struct {
	Type      string        `json:"type"`
	Data      []messagePart `json:"data"`
	Receiving int           `json:"receiving"`
	Item      *NetworkItem  `json:"item"`
	Found     *bool         `json:"found"`
	Team      int           `json:"team"`
	Slot      int           `json:"slot"`
	Tags      []string      `json:"tags"`
	Message   string        `json:"message"`
}

type sayPacket struct {
	Cmd  string `json:"cmd"`
	Text string `json:"text"`
}

func decodeFrame(b []byte) ([]json.RawMessage, error) {
	var packets []json.RawMessage
	if err := json.Unmarshal(b, &packets); err != nil {
		return nil, err
	}
	return packets, nil
}
