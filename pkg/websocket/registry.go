package websocket

import (
	"sync"

	"theatre.live/model"
)

// Registry tracks every live connection by its id. A connection belongs to at
// most one room at a time, recorded on the user itself.
type Registry struct {
	sync.Mutex
	conns map[string]*model.User
}

func NewRegistry() *Registry {
	return &Registry{
		conns: make(map[string]*model.User),
	}
}

func (reg *Registry) Register(u *model.User) {
	reg.Lock()
	reg.conns[u.ID] = u
	reg.Unlock()
}

func (reg *Registry) Deregister(u *model.User) {
	reg.Lock()
	delete(reg.conns, u.ID)
	reg.Unlock()
}

// Connection resolves a connection id to its live user.
func (reg *Registry) Connection(connID string) (*model.User, bool) {
	reg.Lock()
	u, exists := reg.conns[connID]
	reg.Unlock()
	return u, exists
}

func (reg *Registry) Len() int {
	reg.Lock()
	n := len(reg.conns)
	reg.Unlock()
	return n
}
