package client

import (
	"encoding/json"
	"net"
	"strings"
	"testing"
	"time"

	"github.com/gobwas/ws/wsutil"
	"github.com/stretchr/testify/assert"
	"theatre.live/model"
	"theatre.live/pkg/websocket"
)

// pipeClient returns a client wired to one end of an in-memory pipe and a
// channel carrying every event the client puts on the wire.
func pipeClient(t *testing.T) (*Client, chan websocket.Event, func()) {
	srv, cli := net.Pipe()
	c := &Client{conn: cli, dedup: NewDedup(), room: "r1", id: "me", name: "Alice"}

	emitted := make(chan websocket.Event, 16)
	go func() {
		for {
			b, err := wsutil.ReadClientText(srv)
			if err != nil {
				return
			}
			var ev websocket.Event
			if err := json.Unmarshal(b, &ev); err != nil {
				t.Error(err)
				return
			}
			emitted <- ev
		}
	}()

	return c, emitted, func() {
		_ = cli.Close()
		_ = srv.Close()
	}
}

func expectEvent(t *testing.T, ch chan websocket.Event, name string) websocket.Event {
	select {
	case ev := <-ch:
		assert.Equal(t, name, ev.Event)
		return ev
	case <-time.After(time.Second):
		t.Fatalf("no '%s' event emitted", name)
		return websocket.Event{}
	}
}

func expectSilence(t *testing.T, ch chan websocket.Event) {
	select {
	case ev := <-ch:
		t.Fatalf("unexpected '%s' event emitted", ev.Event)
	case <-time.After(time.Millisecond * 50):
	}
}

func TestLocalCallbacksEmit(t *testing.T) {
	c, emitted, done := pipeClient(t)
	defer done()

	assert.NoError(t, c.LocalPlay())
	expectEvent(t, emitted, websocket.EvtPlay)
	assert.True(t, c.Playing())

	assert.NoError(t, c.LocalPause())
	expectEvent(t, emitted, websocket.EvtPause)
	assert.False(t, c.Playing())
}

func TestSyncEventsArmTheGuard(t *testing.T) {
	c, emitted, done := pipeClient(t)
	defer done()

	// A remotely-applied play triggers the element's play callback, the
	// guard keeps it from echoing back to the server.
	c.handle(&websocket.Event{Event: websocket.EvtSyncPlay})
	assert.True(t, c.Playing())
	assert.NoError(t, c.LocalPlay())
	expectSilence(t, emitted)

	time.Sleep(SuppressWindow + time.Millisecond*20)
	assert.NoError(t, c.LocalPause())
	expectEvent(t, emitted, websocket.EvtPause)
}

func TestSeekDriftThreshold(t *testing.T) {
	c, emitted, done := pipeClient(t)
	defer done()

	// Continuous playback advances in small steps, nothing is emitted.
	assert.NoError(t, c.LocalProgress(5))
	assert.NoError(t, c.LocalProgress(9.5))
	expectSilence(t, emitted)
	assert.Equal(t, 9.5, c.Position())

	// A real jump beyond the threshold goes out.
	assert.NoError(t, c.LocalProgress(25))
	ev := expectEvent(t, emitted, websocket.EvtSeek)
	var p websocket.SeekParams
	assert.NoError(t, json.Unmarshal(ev.Data, &p))
	assert.Equal(t, 25.0, p.Time)

	// A remotely-applied seek moves the mirror without re-emitting.
	c.handle(&websocket.Event{
		Event: websocket.EvtSyncSeek,
		Data:  json.RawMessage(`{"time":300}`),
	})
	assert.Equal(t, 300.0, c.Position())
	assert.NoError(t, c.LocalProgress(300.4))
	expectSilence(t, emitted)
}

func TestReceiveMessageDedup(t *testing.T) {
	received := 0
	c := &Client{dedup: NewDedup()}
	c.events = Events{OnMessage: func(*model.ChatMessage) { received++ }}

	data := json.RawMessage(`{"room":"r1","author":"Alice1","message":"hi","time":"21:15"}`)
	c.handle(&websocket.Event{Event: websocket.EvtReceiveMessage, Data: data})
	c.handle(&websocket.Event{Event: websocket.EvtReceiveMessage, Data: data})
	assert.Equal(t, 1, received, "a duplicated broadcast renders once")

	c.handle(&websocket.Event{
		Event: websocket.EvtReceiveMessage,
		Data:  json.RawMessage(`{"room":"r1","author":"Alice1","message":"hi","time":"21:16"}`),
	})
	assert.Equal(t, 2, received)
}

func TestSendMessageSkipsBlankAndOversizedInput(t *testing.T) {
	c, emitted, done := pipeClient(t)
	defer done()

	assert.NoError(t, c.SendMessage(""))
	assert.NoError(t, c.SendMessage(strings.Repeat("x", maxMessageLen+1)))
	expectSilence(t, emitted)

	assert.NoError(t, c.SendMessage("hi"))
	ev := expectEvent(t, emitted, websocket.EvtSendMessage)
	var m model.ChatMessage
	assert.NoError(t, json.Unmarshal(ev.Data, &m))
	assert.Equal(t, "hi", m.Message)
	assert.Equal(t, "Alice", m.Author)
}

func TestHostIsRecomputedFromUserList(t *testing.T) {
	c := &Client{dedup: NewDedup(), id: "b"}

	c.handle(&websocket.Event{
		Event: websocket.EvtUserJoined,
		Data:  json.RawMessage(`[{"id":"a","name":"Alice"},{"id":"b","name":"Alice1"}]`),
	})
	assert.False(t, c.Host())
	assert.Equal(t, "Alice1", c.Name(), "assigned name is taken from the list")

	// The previous host left, the first slot moved.
	c.handle(&websocket.Event{
		Event: websocket.EvtUserJoined,
		Data:  json.RawMessage(`[{"id":"b","name":"Alice1"}]`),
	})
	assert.True(t, c.Host())
}

func TestConnectedAssignsID(t *testing.T) {
	var got string
	c := &Client{dedup: NewDedup()}
	c.events = Events{OnConnected: func(id string) { got = id }}

	c.handle(&websocket.Event{
		Event: websocket.EvtConnected,
		Data:  json.RawMessage(`{"id":"conn42"}`),
	})
	assert.Equal(t, "conn42", c.ID())
	assert.Equal(t, "conn42", got)
}

func TestSignalPassthrough(t *testing.T) {
	c, emitted, done := pipeClient(t)
	defer done()

	assert.NoError(t, c.Offer("peer", json.RawMessage(`{"sdp":"v=0"}`)))
	ev := expectEvent(t, emitted, websocket.EvtOffer)
	var p websocket.SignalParams
	assert.NoError(t, json.Unmarshal(ev.Data, &p))
	assert.Equal(t, "peer", p.To)
	assert.JSONEq(t, `{"sdp":"v=0"}`, string(p.Payload))

	var from string
	c.events.OnSignal = func(event, f string, payload json.RawMessage) { from = f }
	c.handle(&websocket.Event{
		Event: websocket.EvtAnswer,
		Data:  json.RawMessage(`{"from":"peer","payload":{"sdp":"v=0"}}`),
	})
	assert.Equal(t, "peer", from)
}
