package model

import (
	"net"
	"strconv"
	"strings"
	"sync"

	"github.com/gobwas/ws"
	"github.com/gobwas/ws/wsutil"
)

// DefaultName is assigned when a joiner provides no display name.
const DefaultName = "Author"

// Known file types. The server stores whatever kind a client sends,
// routing by type is a client concern.
const (
	FileTypeVideo = "video"
	FileTypeImage = "image"
	FileTypePDF   = "pdf"
	FileTypeText  = "text"
)

type (
	// Room is the authoritative state of one watch-together session.
	// IsPlaying and CurrentTime mirror the last accepted playback event,
	// not the true position of any client's media element.
	Room struct {
		ID          string        `json:"id"`
		Users       []*User       `json:"users"`
		FileType    string        `json:"fileType"`
		FileSource  string        `json:"fileSource"`
		IsPlaying   bool          `json:"isPlaying"`
		CurrentTime float64       `json:"currentTime"`
		Messages    []ChatMessage `json:"messages"`
	}

	// User is one live connection inside a room. Users keeps join order,
	// the first element is the host.
	User struct {
		ID     string   `json:"id"`
		Name   string   `json:"name"`
		RoomID string   `json:"-"`
		Conn   net.Conn `json:"-"`

		// writeMu serializes frame writes. Room fan-out, the signaling
		// relay and the ping ticker may all target one connection at once,
		// and a frame is emitted as more than one write.
		writeMu sync.Mutex
	}

	// ChatMessage is immutable once appended. Receivers dedup by the
	// (author, time, message) triple.
	ChatMessage struct {
		Room    string `json:"room"`
		Author  string `json:"author"`
		Message string `json:"message"`
		Time    string `json:"time"`
	}
)

// Send writes one text frame to the user's connection.
func (u *User) Send(b []byte) error {
	u.writeMu.Lock()
	defer u.writeMu.Unlock()
	return wsutil.WriteServerText(u.Conn, b)
}

// Ping writes a ping control frame, serialized against Send.
func (u *User) Ping() error {
	u.writeMu.Lock()
	defer u.writeMu.Unlock()
	return wsutil.WriteServerMessage(u.Conn, ws.OpPing, []byte("ping"))
}

// HasName reports whether a member already uses the given display name.
func (r *Room) HasName(name string) bool {
	for _, u := range r.Users {
		if u.Name == name {
			return true
		}
	}
	return false
}

// HasConn reports whether the connection is already a member.
func (r *Room) HasConn(connID string) bool {
	for _, u := range r.Users {
		if u.ID == connID {
			return true
		}
	}
	return false
}

// ResolveName returns a display name unique within the room. The requested
// name is trimmed, an empty name falls back to DefaultName and collisions get
// a counter appended to the requested base ("Ann", "Ann1", "Ann2").
func (r *Room) ResolveName(requested string) string {
	name := strings.TrimSpace(requested)
	if name == "" {
		name = DefaultName
	}
	base := name
	for i := 1; r.HasName(name); i++ {
		name = base + strconv.Itoa(i)
	}
	return name
}

// HostID returns the connection id of the host, the oldest remaining member.
func (r *Room) HostID() string {
	if len(r.Users) == 0 {
		return ""
	}
	return r.Users[0].ID
}

// RemoveUser drops the member with the given connection id and reports
// whether anything was removed. Join order of the remaining members is
// preserved so that host reassignment stays positional.
func (r *Room) RemoveUser(connID string) bool {
	removed := false
	users := r.Users[:0]
	for _, u := range r.Users {
		if u.ID == connID {
			removed = true
			continue
		}
		users = append(users, u)
	}
	if removed {
		for i := len(users); i < len(r.Users); i++ {
			r.Users[i] = nil
		}
		r.Users = users
	}
	return removed
}

// Clone returns a copy safe to read and marshal outside the room's lock.
func (r *Room) Clone() *Room {
	c := *r
	c.Users = make([]*User, len(r.Users))
	for i, u := range r.Users {
		c.Users[i] = &User{ID: u.ID, Name: u.Name, RoomID: u.RoomID}
	}
	c.Messages = make([]ChatMessage, len(r.Messages))
	copy(c.Messages, r.Messages)
	return &c
}
