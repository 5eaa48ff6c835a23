package archipelago

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/url"
	"strconv"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/gorilla/websocket"
	"github.com/samber/oops"

	logx "aprelay/pkg/logx"
)

var (
	ErrRefused   = errors.New("connection refused by server")
	ErrHandshake = errors.New("handshake failed")
	ErrClosed    = errors.New("session closed")
)

// Options describe one login.
type Options struct {
	Host     string // bare host or URL with scheme
	Port     int
	Name     string // slot name
	Game     string
	Password string
	Tags     []string
	Version  Version
	Items    int // items_handling bits

	HandshakeTimeout time.Duration
	Dialer           *websocket.Dialer
	Log              logx.Logger
}

// Client is one live session. Events are delivered in server order on a
// single channel that closes after ConnectionLost.
type Client struct {
	conn  *websocket.Conn
	url   string
	slot  int
	team  int
	names *Names
	log   logx.Logger

	pending []json.RawMessage

	writeMu sync.Mutex
	events  chan Event
	stop    chan struct{} // closed by Close
	done    chan struct{} // closed when the read loop exits

	stopOnce sync.Once
}

// Candidates returns the websocket URLs to try for host and port: an
// explicit scheme is honored, otherwise secure first then plain.
func Candidates(host string, port int) []string {
	host = strings.TrimSpace(host)
	if strings.Contains(host, "://") {
		u := host
		if port > 0 {
			u += ":" + strconv.Itoa(port)
		}
		return []string{u}
	}
	hp := host
	if port > 0 {
		hp += ":" + strconv.Itoa(port)
	}
	return []string{"wss://" + hp, "ws://" + hp}
}

// Dial connects, performs the handshake and starts the read loop.
func Dial(ctx context.Context, opts Options) (*Client, error) {
	if opts.Log.IsZero() {
		opts.Log = logx.Nop()
	}
	if opts.HandshakeTimeout <= 0 {
		opts.HandshakeTimeout = 15 * time.Second
	}
	if opts.Version == (Version{}) {
		opts.Version = NewVersion(0, 6, 2)
	}
	d := opts.Dialer
	if d == nil {
		d = &websocket.Dialer{HandshakeTimeout: opts.HandshakeTimeout}
	}
	errb := oops.In("archipelago").With("host", opts.Host, "port", opts.Port, "player", opts.Name)

	var lastErr error
	for _, u := range Candidates(opts.Host, opts.Port) {
		if _, err := url.Parse(u); err != nil {
			lastErr = err
			continue
		}
		dctx, cancel := context.WithTimeout(ctx, opts.HandshakeTimeout)
		conn, _, err := d.DialContext(dctx, u, nil)
		cancel()
		if err != nil {
			lastErr = err
			opts.Log.Debug("websocket dial failed", logx.String("url", u), logx.Err(err))
			continue
		}
		c, err := handshake(ctx, conn, u, opts)
		if err != nil {
			_ = conn.Close()
			return nil, errb.With("url", u).Wrap(err)
		}
		go c.readLoop()
		return c, nil
	}
	if lastErr == nil {
		lastErr = errors.New("no candidate urls")
	}
	return nil, errb.Wrapf(lastErr, "dial")
}

func handshake(ctx context.Context, conn *websocket.Conn, u string, opts Options) (*Client, error) {
	deadline := time.Now().Add(opts.HandshakeTimeout)
	if d, ok := ctx.Deadline(); ok && d.Before(deadline) {
		deadline = d
	}
	_ = conn.SetReadDeadline(deadline)
	_ = conn.SetWriteDeadline(deadline)

	r := &packetReader{conn: conn}
	raw, err := r.expect("RoomInfo")
	if err != nil {
		return nil, err
	}
	var room roomInfo
	if err := json.Unmarshal(raw, &room); err != nil {
		return nil, fmt.Errorf("%w: RoomInfo: %v", ErrHandshake, err)
	}

	if err := conn.WriteJSON([]any{getDataPackage{Cmd: "GetDataPackage", Games: room.Games}}); err != nil {
		return nil, err
	}
	raw, err = r.expect("DataPackage")
	if err != nil {
		return nil, err
	}
	var pkg dataPackage
	if err := json.Unmarshal(raw, &pkg); err != nil {
		return nil, fmt.Errorf("%w: DataPackage: %v", ErrHandshake, err)
	}

	items := opts.Items
	if items == 0 {
		items = ItemsHandlingAll
	}
	if err := conn.WriteJSON([]any{connectPacket{
		Cmd:           "Connect",
		Password:      opts.Password,
		Game:          opts.Game,
		Name:          opts.Name,
		UUID:          uuid.NewString(),
		Version:       opts.Version,
		ItemsHandling: items,
		Tags:          opts.Tags,
	}}); err != nil {
		return nil, err
	}

	raw, cmd, err := r.next("Connected", "ConnectionRefused")
	if err != nil {
		return nil, err
	}
	if cmd == "ConnectionRefused" {
		var ref connectionRefused
		_ = json.Unmarshal(raw, &ref)
		return nil, fmt.Errorf("%w: %s", ErrRefused, strings.Join(ref.Errors, ", "))
	}
	var conf connected
	if err := json.Unmarshal(raw, &conf); err != nil {
		return nil, fmt.Errorf("%w: Connected: %v", ErrHandshake, err)
	}

	_ = conn.SetReadDeadline(time.Time{})
	_ = conn.SetWriteDeadline(time.Time{})

	c := &Client{
		conn:   conn,
		url:    u,
		slot:   conf.Slot,
		team:   conf.Team,
		names:  newNames(conf, pkg.Data.Games),
		log:    opts.Log.With(logx.String("url", u)),
		events: make(chan Event, 256),
		stop:   make(chan struct{}),
		done:   make(chan struct{}),
	}
	// Packets that arrived with Connected in the same frame.
	c.pending = r.rest()
	return c, nil
}

// packetReader splits frames into packets and skips uninteresting ones.
type packetReader struct {
	conn  *websocket.Conn
	queue []json.RawMessage
}

func (r *packetReader) read() (json.RawMessage, string, error) {
	for len(r.queue) == 0 {
		_, b, err := r.conn.ReadMessage()
		if err != nil {
			return nil, "", err
		}
		packets, err := decodeFrame(b)
		if err != nil {
			return nil, "", fmt.Errorf("%w: %v", ErrHandshake, err)
		}
		r.queue = packets
	}
	raw := r.queue[0]
	r.queue = r.queue[1:]
	var h packetHeader
	_ = json.Unmarshal(raw, &h)
	return raw, h.Cmd, nil
}

func (r *packetReader) next(cmds ...string) (json.RawMessage, string, error) {
	for {
		raw, cmd, err := r.read()
		if err != nil {
			return nil, "", err
		}
		for _, want := range cmds {
			if cmd == want {
				return raw, cmd, nil
			}
		}
	}
}

func (r *packetReader) expect(cmd string) (json.RawMessage, error) {
	raw, _, err := r.next(cmd)
	return raw, err
}

func (r *packetReader) rest() []json.RawMessage {
	out := r.queue
	r.queue = nil
	return out
}

func (c *Client) URL() string { return c.url }
func (c *Client) Slot() int   { return c.slot }
func (c *Client) Team() int   { return c.team }

// Names returns the session's id tables.
func (c *Client) Names() *Names { return c.names }

func (c *Client) ItemNames(game string) []string { return c.names.ItemNames(game) }

func (c *Client) Events() <-chan Event { return c.events }

// Say sends a chat message or client command (e.g. "!hint Hookshot").
func (c *Client) Say(ctx context.Context, text string) error {
	select {
	case <-c.stop:
		return ErrClosed
	case <-c.done:
		return ErrClosed
	default:
	}
	c.writeMu.Lock()
	defer c.writeMu.Unlock()
	if d, ok := ctx.Deadline(); ok {
		_ = c.conn.SetWriteDeadline(d)
		defer c.conn.SetWriteDeadline(time.Time{})
	}
	return c.conn.WriteJSON([]any{sayPacket{Cmd: "Say", Text: text}})
}

// Close ends the session without emitting ConnectionLost.
func (c *Client) Close() error {
	var err error
	c.stopOnce.Do(func() {
		close(c.stop)
		c.writeMu.Lock()
		_ = c.conn.WriteControl(websocket.CloseMessage,
			websocket.FormatCloseMessage(websocket.CloseNormalClosure, ""),
			time.Now().Add(time.Second))
		c.writeMu.Unlock()
		err = c.conn.Close()
	})
	return err
}

func (c *Client) closedByUs() bool {
	select {
	case <-c.stop:
		return true
	default:
		return false
	}
}

// Done is closed once the read loop has exited.
func (c *Client) Done() <-chan struct{} { return c.done }

func (c *Client) readLoop() {
	defer func() {
		close(c.events)
		close(c.done)
	}()

	for _, raw := range c.pending {
		if !c.dispatch(raw) {
			return
		}
	}
	c.pending = nil

	for {
		_, b, err := c.conn.ReadMessage()
		if err != nil {
			if !c.closedByUs() {
				c.log.Info("session connection lost", logx.Err(err))
				c.emit(ConnectionLost{Err: err})
			}
			return
		}
		packets, err := decodeFrame(b)
		if err != nil {
			c.log.Debug("undecodable frame", logx.Err(err))
			continue
		}
		for _, raw := range packets {
			if !c.dispatch(raw) {
				return
			}
		}
	}
}

// dispatch reports false when the client is shutting down.
func (c *Client) dispatch(raw json.RawMessage) bool {
	var h packetHeader
	if err := json.Unmarshal(raw, &h); err != nil {
		return true
	}
	switch h.Cmd {
	case "PrintJSON":
		var p printJSON
		if err := json.Unmarshal(raw, &p); err != nil {
			c.log.Debug("bad PrintJSON", logx.Err(err))
			return true
		}
		return c.emit(toEvent(p))
	case "ConnectionRefused":
		var ref connectionRefused
		_ = json.Unmarshal(raw, &ref)
		err := fmt.Errorf("%w: %s", ErrRefused, strings.Join(ref.Errors, ", "))
		c.emit(ConnectionLost{Err: err})
		_ = c.Close()
		return false
	}
	return true
}

func (c *Client) emit(ev Event) bool {
	select {
	case c.events <- ev:
		return true
	case <-c.stop:
		return false
	}
}
