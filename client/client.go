package client

import (
	"context"
	"encoding/json"
	"math"
	"net"
	"sync"
	"time"

	"github.com/gobwas/ws"
	"github.com/gobwas/ws/wsutil"
	"github.com/labstack/gommon/log"
	"theatre.live/model"
	"theatre.live/pkg/utils"
	"theatre.live/pkg/websocket"
)

// maxMessageLen bounds a single outgoing chat message.
const maxMessageLen = 500

// Events are the application callbacks, all optional. They fire from the
// client's read goroutine.
type Events struct {
	OnConnected    func(id string)
	OnInitialState func(room *model.Room)
	OnUsers        func(users []*model.User)
	OnFileChange   func(kind, payload string)
	OnPlay         func()
	OnPause        func()
	OnSeek         func(seconds float64)
	OnMessage      func(m *model.ChatMessage)
	OnSignal       func(event, from string, payload json.RawMessage)
}

// Client speaks the room protocol over one websocket connection and keeps
// the local playback mirror, the echo guard and the chat dedup set. The
// Local* methods are meant to be wired to the media element's callbacks, the
// guard decides whether they reach the wire.
type Client struct {
	conn   net.Conn
	events Events
	guard  EchoGuard
	dedup  *Dedup

	mu      sync.Mutex
	id      string
	name    string
	room    string
	users   []*model.User
	playing bool
	current float64

	writeMu sync.Mutex
}

func Dial(ctx context.Context, url string, events Events) (*Client, error) {
	conn, _, _, err := ws.Dial(ctx, url)
	if err != nil {
		return nil, err
	}
	c := &Client{conn: conn, events: events, dedup: NewDedup()}
	go c.readLoop()
	return c, nil
}

func (c *Client) Close() error {
	return c.conn.Close()
}

// ID returns the connection id assigned by the server, empty until the
// welcome event arrives.
func (c *Client) ID() string {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.id
}

// Name returns the display name assigned on join, which may differ from the
// requested one.
func (c *Client) Name() string {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.name
}

// Host reports whether this connection currently occupies the first slot of
// the room's user list. It is recomputed from every user-list update, the
// server never pushes a host flag.
func (c *Client) Host() bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	return len(c.users) > 0 && c.users[0].ID == c.id
}

// Playing returns the local playback mirror.
func (c *Client) Playing() bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.playing
}

// Position returns the last known playback position in seconds.
func (c *Client) Position() float64 {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.current
}

func (c *Client) Join(room, name string) error {
	c.mu.Lock()
	c.room = room
	c.mu.Unlock()
	return c.emit(websocket.EvtJoinRoom, &websocket.JoinParams{Room: room, Name: name})
}

func (c *Client) ChangeFile(kind, payload string) error {
	c.mu.Lock()
	room := c.room
	c.mu.Unlock()
	return c.emit(websocket.EvtFileChange,
		&websocket.FileChangeParams{Room: room, Kind: kind, Payload: payload})
}

// LocalPlay is wired to the element's play callback. Swallowed while the
// echo guard is armed.
func (c *Client) LocalPlay() error {
	c.mu.Lock()
	c.playing = true
	room := c.room
	c.mu.Unlock()
	if c.guard.Suppressed() {
		return nil
	}
	return c.emit(websocket.EvtPlay, &websocket.RoomParams{Room: room})
}

// LocalPause is wired to the element's pause callback. Swallowed while the
// echo guard is armed.
func (c *Client) LocalPause() error {
	c.mu.Lock()
	c.playing = false
	room := c.room
	c.mu.Unlock()
	if c.guard.Suppressed() {
		return nil
	}
	return c.emit(websocket.EvtPause, &websocket.RoomParams{Room: room})
}

// LocalProgress is wired to the element's time-update callback. The position
// is always mirrored, but a seek goes out only when the guard is idle and the
// drift against the last known position exceeds SeekDriftThreshold.
func (c *Client) LocalProgress(seconds float64) error {
	c.mu.Lock()
	drift := math.Abs(seconds - c.current)
	c.current = seconds
	room := c.room
	c.mu.Unlock()
	if c.guard.Suppressed() || drift <= SeekDriftThreshold {
		return nil
	}
	return c.emit(websocket.EvtSeek, &websocket.SeekParams{Room: room, Time: seconds})
}

// SendMessage posts a chat message. Blank or oversized input is dropped
// without touching the wire, matching the send-button behavior.
func (c *Client) SendMessage(text string) error {
	if !utils.IsLengthValid(text, 1, maxMessageLen) {
		return nil
	}
	c.mu.Lock()
	m := model.ChatMessage{
		Room:    c.room,
		Author:  c.name,
		Message: text,
		Time:    time.Now().Format("15:04"),
	}
	c.mu.Unlock()
	return c.emit(websocket.EvtSendMessage, &m)
}

func (c *Client) Offer(to string, payload json.RawMessage) error {
	return c.signal(websocket.EvtOffer, to, payload)
}

func (c *Client) Answer(to string, payload json.RawMessage) error {
	return c.signal(websocket.EvtAnswer, to, payload)
}

func (c *Client) ICECandidate(to string, payload json.RawMessage) error {
	return c.signal(websocket.EvtICECandidate, to, payload)
}

func (c *Client) signal(event, to string, payload json.RawMessage) error {
	return c.emit(event, &websocket.SignalParams{To: to, Payload: payload})
}

func (c *Client) emit(event string, v interface{}) error {
	b, err := websocket.NewEvent(event, v)
	if err != nil {
		return err
	}
	c.writeMu.Lock()
	defer c.writeMu.Unlock()
	return wsutil.WriteClientText(c.conn, b)
}

func (c *Client) readLoop() {
	for {
		b, err := wsutil.ReadServerText(c.conn)
		if err != nil {
			return
		}

		var ev websocket.Event
		if err = json.Unmarshal(b, &ev); err != nil {
			log.Warn(err)
			continue
		}
		c.handle(&ev)
	}
}

func (c *Client) handle(ev *websocket.Event) {
	switch ev.Event {
	case websocket.EvtConnected:
		var p websocket.ConnectedParams
		if !decode(ev.Data, &p) {
			return
		}
		c.mu.Lock()
		c.id = p.ID
		c.mu.Unlock()
		if c.events.OnConnected != nil {
			c.events.OnConnected(p.ID)
		}

	case websocket.EvtInitialState:
		var room model.Room
		if !decode(ev.Data, &room) {
			return
		}
		c.mu.Lock()
		c.playing = room.IsPlaying
		c.current = room.CurrentTime
		c.users = room.Users
		for _, u := range room.Users {
			if u.ID == c.id {
				c.name = u.Name
			}
		}
		c.mu.Unlock()
		if c.events.OnInitialState != nil {
			c.events.OnInitialState(&room)
		}

	case websocket.EvtUserJoined:
		var users []*model.User
		if !decode(ev.Data, &users) {
			return
		}
		c.mu.Lock()
		c.users = users
		for _, u := range users {
			if u.ID == c.id {
				c.name = u.Name
			}
		}
		c.mu.Unlock()
		if c.events.OnUsers != nil {
			c.events.OnUsers(users)
		}

	case websocket.EvtSyncFileChange:
		var p websocket.FileChangeParams
		if !decode(ev.Data, &p) {
			return
		}
		if c.events.OnFileChange != nil {
			c.events.OnFileChange(p.Kind, p.Payload)
		}

	case websocket.EvtSyncPlay:
		c.guard.Arm()
		c.mu.Lock()
		c.playing = true
		c.mu.Unlock()
		if c.events.OnPlay != nil {
			c.events.OnPlay()
		}

	case websocket.EvtSyncPause:
		c.guard.Arm()
		c.mu.Lock()
		c.playing = false
		c.mu.Unlock()
		if c.events.OnPause != nil {
			c.events.OnPause()
		}

	case websocket.EvtSyncSeek:
		var p websocket.SeekParams
		if !decode(ev.Data, &p) {
			return
		}
		c.guard.Arm()
		c.mu.Lock()
		c.current = p.Time
		c.mu.Unlock()
		if c.events.OnSeek != nil {
			c.events.OnSeek(p.Time)
		}

	case websocket.EvtReceiveMessage:
		var m model.ChatMessage
		if !decode(ev.Data, &m) {
			return
		}
		if c.dedup.Observe(&m) && c.events.OnMessage != nil {
			c.events.OnMessage(&m)
		}

	case websocket.EvtOffer, websocket.EvtAnswer, websocket.EvtICECandidate:
		var p websocket.SignalEvent
		if !decode(ev.Data, &p) {
			return
		}
		if c.events.OnSignal != nil {
			c.events.OnSignal(ev.Event, p.From, p.Payload)
		}

	default:
		log.Warnf("unknown event '%s'", ev.Event)
	}
}

func decode(data json.RawMessage, v interface{}) bool {
	if err := json.Unmarshal(data, v); err != nil {
		log.Warn(err)
		return false
	}
	return true
}
