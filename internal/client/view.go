package client

import (
	"slices"
	"strings"

	"roomrelay/internal/app/chat"
	"roomrelay/internal/app/user"
)

// RoomView folds relay events into the local state of the room being displayed.
// It is not safe for concurrent use.
type RoomView struct {
	// Self is this client's username; it is left out of the typing line.
	Self string

	Room     string
	Messages []chat.Message
	Users    []user.User

	// typing keeps arrival order.
	typing []string
}

// NewRoomView returns an empty view of room.
func NewRoomView(self, room string) *RoomView {
	return &RoomView{Self: self, Room: room}
}

// SwitchRoom clears everything that belonged to the previous room.
func (v *RoomView) SwitchRoom(room string) {
	v.Room = room
	v.Messages = nil
	v.Users = nil
	v.typing = nil
}

// Apply updates the view with one event. Events for other rooms are ignored; typing
// events carry no room and always apply.
func (v *RoomView) Apply(env chat.Envelope) error {
	switch env.Type {
	case chat.EventRoomHistory:
		p, err := Decode[chat.RoomHistoryPayload](env)
		if err != nil || p.Room != v.Room {
			return err
		}
		v.Messages = p.Messages

	case chat.EventChatMessage:
		p, err := Decode[chat.ChatMessagePayload](env)
		if err != nil || p.Room != v.Room {
			return err
		}
		v.Messages = append(v.Messages, p.Message)

	case chat.EventMessageEdit:
		p, err := Decode[chat.MessageEditPayload](env)
		if err != nil || p.Room != v.Room {
			return err
		}
		for i := range v.Messages {
			if v.Messages[i].ID == p.MessageID {
				v.Messages[i].Text = p.NewText
				v.Messages[i].Timestamp = p.NewTimestamp
				v.Messages[i].Edited = true
			}
		}

	case chat.EventMessageDelete:
		p, err := Decode[chat.MessageDeletePayload](env)
		if err != nil || p.Room != v.Room {
			return err
		}
		v.Messages = slices.DeleteFunc(v.Messages, func(m chat.Message) bool {
			return m.ID == p.MessageID
		})

	case chat.EventRoomUsers:
		p, err := Decode[chat.RoomUsersPayload](env)
		if err != nil || p.Room != v.Room {
			return err
		}
		v.Users = p.Users

	case chat.EventTyping:
		p, err := Decode[chat.TypingPayload](env)
		if err != nil {
			return err
		}
		if !slices.Contains(v.typing, p.Username) {
			v.typing = append(v.typing, p.Username)
		}

	case chat.EventStopTyping:
		p, err := Decode[chat.TypingPayload](env)
		if err != nil {
			return err
		}
		v.typing = slices.DeleteFunc(v.typing, func(name string) bool {
			return name == p.Username
		})
	}

	return nil
}

// TypingText renders who else is typing, e.g. "alice is typing...".
func (v *RoomView) TypingText() string {
	others := slices.DeleteFunc(slices.Clone(v.typing), func(name string) bool {
		return name == v.Self
	})

	switch len(others) {
	case 0:
		return ""
	case 1:
		return others[0] + " is typing..."
	case 2:
		return strings.Join(others, ", ") + " are typing..."
	default:
		return strings.Join(others[:2], ", ") + " and others are typing..."
	}
}
