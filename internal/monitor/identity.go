package monitor

import (
	"fmt"
	"strconv"
	"strings"

	"aprelay/internal/storage"
)

// Identity is the canonical key of a monitored session.
type Identity struct {
	Host   string
	Port   int
	Player string
}

func NewIdentity(host string, port int, player string) Identity {
	return Identity{Host: strings.ToLower(strings.TrimSpace(host)), Port: port, Player: player}
}

func IdentityOf(c storage.Connection) Identity { return NewIdentity(c.Host, c.Port, c.Player) }

func (id Identity) String() string {
	return id.Host + ":" + strconv.Itoa(id.Port) + ":" + id.Player
}

// Address is host:port.
func (id Identity) Address() string { return id.Host + ":" + strconv.Itoa(id.Port) }

// ParseIdentity parses host:port:player. The player part may contain colons.
func ParseIdentity(s string) (Identity, error) {
	parts := strings.SplitN(strings.TrimSpace(s), ":", 3)
	if len(parts) != 3 || parts[0] == "" || parts[2] == "" {
		return Identity{}, fmt.Errorf("invalid identity %q: want host:port:player", s)
	}
	port, err := strconv.Atoi(parts[1])
	if err != nil || port <= 0 || port > 65535 {
		return Identity{}, fmt.Errorf("invalid port in identity %q", s)
	}
	return NewIdentity(parts[0], port, parts[2]), nil
}
