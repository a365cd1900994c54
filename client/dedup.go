package client

import (
	"sync"

	"theatre.live/model"
)

type dedupKey struct {
	author  string
	time    string
	message string
}

// Dedup enforces the receiver-side chat contract: messages with an identical
// (author, time, message) triple render once, however many times they arrive.
type Dedup struct {
	mu   sync.Mutex
	seen map[dedupKey]struct{}
}

func NewDedup() *Dedup {
	return &Dedup{seen: make(map[dedupKey]struct{})}
}

// Observe reports whether the message is new to this receiver.
func (d *Dedup) Observe(m *model.ChatMessage) bool {
	k := dedupKey{author: m.Author, time: m.Time, message: m.Message}
	d.mu.Lock()
	defer d.mu.Unlock()
	if _, dup := d.seen[k]; dup {
		return false
	}
	d.seen[k] = struct{}{}
	return true
}
