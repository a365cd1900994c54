package websocket

import (
	"encoding/json"
	"fmt"
	"strings"
)

// Inbound event names.
const (
	EvtJoinRoom     = "join-room"
	EvtFileChange   = "file-change"
	EvtPlay         = "play-video"
	EvtPause        = "pause-video"
	EvtSeek         = "seek-video"
	EvtSendMessage  = "send_message"
	EvtOffer        = "offer"
	EvtAnswer       = "answer"
	EvtICECandidate = "ice-candidate"
)

// Outbound event names. Offer, answer and ice-candidate keep their inbound
// names, tagged with the sender's connection id.
const (
	EvtConnected      = "connected"
	EvtInitialState   = "initial-state"
	EvtUserJoined     = "user-joined"
	EvtSyncFileChange = "sync-file-change"
	EvtSyncPlay       = "sync-play"
	EvtSyncPause      = "sync-pause"
	EvtSyncSeek       = "sync-seek"
	EvtReceiveMessage = "receive_message"
)

type (
	// Event is the envelope of every message on the wire, in both directions.
	Event struct {
		Event string          `json:"event"`
		Data  json.RawMessage `json:"data,omitempty"`
	}

	JoinParams struct {
		Room string `json:"room"`
		Name string `json:"name"`
	}

	RoomParams struct {
		Room string `json:"room"`
	}

	FileChangeParams struct {
		Room    string `json:"room,omitempty"`
		Kind    string `json:"kind"`
		Payload string `json:"payload"`
	}

	SeekParams struct {
		Room string  `json:"room,omitempty"`
		Time float64 `json:"time"`
	}

	// SignalParams addresses a signaling payload to one connection.
	// The payload is opaque to the server.
	SignalParams struct {
		To      string          `json:"to"`
		Payload json.RawMessage `json:"payload"`
	}

	// SignalEvent is the outbound side of a relayed signal.
	SignalEvent struct {
		From    string          `json:"from"`
		Payload json.RawMessage `json:"payload"`
	}

	ConnectedParams struct {
		ID string `json:"id"`
	}
)

// NewEvent marshals v into an enveloped wire message.
func NewEvent(name string, v interface{}) ([]byte, error) {
	e := Event{Event: name}
	if v != nil {
		data, err := json.Marshal(v)
		if err != nil {
			return nil, err
		}
		e.Data = data
	}
	return json.Marshal(&e)
}

func (e *Event) Validate() error {
	if strings.TrimSpace(e.Event) == "" {
		return fmt.Errorf("invalid event name")
	}

	switch e.Event {
	case EvtJoinRoom, EvtFileChange, EvtPlay, EvtPause, EvtSeek,
		EvtSendMessage, EvtOffer, EvtAnswer, EvtICECandidate:
		if len(e.Data) == 0 {
			return fmt.Errorf("event '%s' requires data", e.Event)
		}
	}
	return nil
}
