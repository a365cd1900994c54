package websocket

import (
	"encoding/json"
	"testing"

	"github.com/stretchr/testify/assert"
	"theatre.live/model"
)

func TestValidate(t *testing.T) {
	e := &Event{}
	assert.Error(t, e.Validate())

	e = &Event{Event: "   "}
	assert.Error(t, e.Validate())

	e = &Event{Event: EvtPlay}
	assert.Error(t, e.Validate(), "room events require data")

	e = &Event{Event: EvtPlay, Data: json.RawMessage(`{"room":"r1"}`)}
	assert.NoError(t, e.Validate())

	// Unknown events pass validation, the router ignores them later.
	e = &Event{Event: "made-up"}
	assert.NoError(t, e.Validate())
}

func TestNewEvent(t *testing.T) {
	b, err := NewEvent(EvtSyncSeek, &SeekParams{Time: 42.5})
	assert.NoError(t, err)

	var e Event
	assert.NoError(t, json.Unmarshal(b, &e))
	assert.Equal(t, EvtSyncSeek, e.Event)

	var p SeekParams
	assert.NoError(t, json.Unmarshal(e.Data, &p))
	assert.Equal(t, 42.5, p.Time)

	b, err = NewEvent(EvtSyncPlay, nil)
	assert.NoError(t, err)
	var e2 Event
	assert.NoError(t, json.Unmarshal(b, &e2))
	assert.Empty(t, e2.Data)
}

func TestRegistry(t *testing.T) {
	reg := NewRegistry()
	a := &model.User{ID: "a"}
	b := &model.User{ID: "b"}

	reg.Register(a)
	reg.Register(b)
	assert.Equal(t, 2, reg.Len())

	got, exists := reg.Connection("a")
	assert.True(t, exists)
	assert.Same(t, a, got)

	reg.Deregister(a)
	_, exists = reg.Connection("a")
	assert.False(t, exists)
	assert.Equal(t, 1, reg.Len())
}
