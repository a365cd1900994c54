package api

import (
	"encoding/json"
	"time"

	"github.com/labstack/gommon/log"
	"theatre.live/model"
	"theatre.live/pkg/msgbroker"
	"theatre.live/pkg/websocket"
)

// Author name for operator announcements injected via the message broker.
const systemAuthor = "theatre"

// dispatch routes one inbound event. Every room mutation and the fan-out it
// triggers run under the room's lock, so events touching one room are
// strictly serialized while different rooms proceed in parallel.
func (api *API) dispatch(u *model.User, ev *websocket.Event) {
	switch ev.Event {
	case websocket.EvtJoinRoom:
		api.joinRoom(u, ev.Data)
	case websocket.EvtFileChange:
		api.fileChange(u, ev.Data)
	case websocket.EvtPlay:
		api.play(u, ev.Data)
	case websocket.EvtPause:
		api.pause(u, ev.Data)
	case websocket.EvtSeek:
		api.seek(u, ev.Data)
	case websocket.EvtSendMessage:
		api.sendMessage(u, ev.Data)
	case websocket.EvtOffer, websocket.EvtAnswer, websocket.EvtICECandidate:
		api.relaySignal(u, ev.Event, ev.Data)
	default:
		log.Warnf("unknown event '%s' from %s", ev.Event, u.ID)
	}
}

func (api *API) joinRoom(u *model.User, data json.RawMessage) {
	var p websocket.JoinParams
	if err := json.Unmarshal(data, &p); err != nil || p.Room == "" {
		log.Warnf("join from %s rejected: %v", u.ID, err)
		return
	}

	// A connection belongs to at most one room.
	if u.RoomID != "" && u.RoomID != p.Room {
		api.leaveRoom(u)
	}

	api.rooms.Update(p.Room, true, func(r *model.Room) {
		if !r.HasConn(u.ID) {
			u.Name = r.ResolveName(p.Name)
			u.RoomID = r.ID
			r.Users = append(r.Users, u)
		}
		api.send(u, websocket.EvtInitialState, r)
		api.broadcast(r.Users, websocket.EvtUserJoined, r.Users, "")
		log.Infof("user %s joined room %s as '%s'", u.ID, r.ID, u.Name)
	})
}

func (api *API) leaveRoom(u *model.User) {
	roomID := u.RoomID
	u.RoomID = ""
	api.rooms.Update(roomID, false, func(r *model.Room) {
		if r.RemoveUser(u.ID) {
			api.broadcast(r.Users, websocket.EvtUserJoined, r.Users, "")
		}
	})
}

func (api *API) fileChange(u *model.User, data json.RawMessage) {
	var p websocket.FileChangeParams
	if err := json.Unmarshal(data, &p); err != nil {
		log.Warn(err)
		return
	}
	// The kind is stored as sent, even when unknown. Interpreting it is the
	// clients' job.
	api.rooms.Update(p.Room, false, func(r *model.Room) {
		r.FileType = p.Kind
		r.FileSource = p.Payload
		api.broadcast(r.Users, websocket.EvtSyncFileChange,
			&websocket.FileChangeParams{Kind: p.Kind, Payload: p.Payload}, "")
	})
}

func (api *API) play(u *model.User, data json.RawMessage) {
	var p websocket.RoomParams
	if err := json.Unmarshal(data, &p); err != nil {
		log.Warn(err)
		return
	}
	api.rooms.Update(p.Room, false, func(r *model.Room) {
		r.IsPlaying = true
		api.broadcast(r.Users, websocket.EvtSyncPlay, nil, u.ID)
	})
}

func (api *API) pause(u *model.User, data json.RawMessage) {
	var p websocket.RoomParams
	if err := json.Unmarshal(data, &p); err != nil {
		log.Warn(err)
		return
	}
	api.rooms.Update(p.Room, false, func(r *model.Room) {
		r.IsPlaying = false
		api.broadcast(r.Users, websocket.EvtSyncPause, nil, u.ID)
	})
}

func (api *API) seek(u *model.User, data json.RawMessage) {
	var p websocket.SeekParams
	if err := json.Unmarshal(data, &p); err != nil {
		log.Warn(err)
		return
	}
	api.rooms.Update(p.Room, false, func(r *model.Room) {
		r.CurrentTime = p.Time
		api.broadcast(r.Users, websocket.EvtSyncSeek,
			&websocket.SeekParams{Time: p.Time}, u.ID)
	})
}

func (api *API) sendMessage(u *model.User, data json.RawMessage) {
	var m model.ChatMessage
	if err := json.Unmarshal(data, &m); err != nil || m.Room == "" {
		log.Warnf("message from %s rejected: %v", u.ID, err)
		return
	}

	// Dropped silently when the room is gone, the protocol is at-most-once
	// and the sender is never told.
	delivered := api.rooms.Update(m.Room, false, func(r *model.Room) {
		r.Messages = append(r.Messages, m)
		api.broadcast(r.Users, websocket.EvtReceiveMessage, &m, "")
	})
	if !delivered || api.msgBroker == nil {
		return
	}

	b, err := json.Marshal(&m)
	if err != nil {
		log.Error(err)
		return
	}
	if err = api.msgBroker.Publish(b, api.messagesChannel+m.Room); err != nil {
		log.Warn(err)
	}
}

// relaySignal forwards an offer, answer or ICE candidate verbatim to the
// addressed connection. The room store is never consulted, a call is between
// two specific connections.
func (api *API) relaySignal(u *model.User, event string, data json.RawMessage) {
	var p websocket.SignalParams
	if err := json.Unmarshal(data, &p); err != nil || p.To == "" {
		log.Warnf("%s from %s rejected: %v", event, u.ID, err)
		return
	}

	target, exists := api.registry.Connection(p.To)
	if !exists {
		log.Infof("%s from %s dropped, target %s is gone", event, u.ID, p.To)
		return
	}
	api.send(target, event, &websocket.SignalEvent{From: u.ID, Payload: p.Payload})
}

// disconnect removes the connection from every room it is found in. Rooms
// left empty are deleted on the spot, survivors get the updated user list,
// which implicitly reassigns the host when the first slot changed.
func (api *API) disconnect(u *model.User) {
	api.rooms.RemoveConnection(u.ID, func(roomID string, users []*model.User) {
		api.broadcast(users, websocket.EvtUserJoined, users, "")
	})
}

// handleAnnouncements turns operator messages published on announce:<roomID>
// into system chat messages for that room.
func (api *API) handleAnnouncements(msg *msgbroker.Message) {
	api.workerPool.Submit(func() {
		if len(msg.Channel) <= len(api.announceChannel) {
			return
		}
		roomID := msg.Channel[len(api.announceChannel):]
		m := model.ChatMessage{
			Room:    roomID,
			Author:  systemAuthor,
			Message: string(msg.Data),
			Time:    time.Now().Format("15:04"),
		}
		api.rooms.Update(roomID, false, func(r *model.Room) {
			r.Messages = append(r.Messages, m)
			api.broadcast(r.Users, websocket.EvtReceiveMessage, &m, "")
		})
	})
}

func (api *API) send(u *model.User, event string, v interface{}) {
	b, err := websocket.NewEvent(event, v)
	if err != nil {
		log.Error(err)
		return
	}
	if err = u.Send(b); err != nil {
		log.Warn(err)
	}
}

// broadcast delivers one event to every listed user except exclude. Delivery
// is best effort, a failed write to one recipient does not stop the rest.
func (api *API) broadcast(users []*model.User, event string, v interface{}, exclude string) {
	b, err := websocket.NewEvent(event, v)
	if err != nil {
		log.Error(err)
		return
	}
	for _, m := range users {
		if m.ID == exclude {
			continue
		}
		if err = m.Send(b); err != nil {
			log.Warn(err)
		}
	}
}
