package client

import (
	"sync"
	"time"
)

// SuppressWindow bounds how long a remotely-applied state change keeps the
// local element's callbacks from re-emitting it.
const SuppressWindow = 200 * time.Millisecond

// SeekDriftThreshold is the drift, in seconds, between the element's reported
// time and the last known position above which a local seek is announced.
// Continuous playback advances the position in small steps and stays below it.
const SeekDriftThreshold = 10.0

// EchoGuard is the suppress-next-local-event state, armed whenever a sync
// event is applied to the local media element.
type EchoGuard struct {
	mu    sync.Mutex
	until time.Time
}

func (g *EchoGuard) Arm() {
	g.ArmFor(SuppressWindow)
}

func (g *EchoGuard) ArmFor(d time.Duration) {
	g.mu.Lock()
	g.until = time.Now().Add(d)
	g.mu.Unlock()
}

// Suppressed reports whether a local media callback firing right now must be
// swallowed instead of emitted.
func (g *EchoGuard) Suppressed() bool {
	g.mu.Lock()
	defer g.mu.Unlock()
	return time.Now().Before(g.until)
}
