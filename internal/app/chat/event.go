/*
Package chat is the relay's session and messaging engine.

It tracks which connection registered which display name, which room each connection is in,
the ordered message log of every room, and fans state changes out to the right connections.

This file defines the wire protocol: every frame is a JSON envelope {"type", "payload"}.
Inbound frames decode into a closed set of typed variants; outbound payloads are plain structs.
*/
package chat

import (
	"bytes"
	"encoding/json"

	"github.com/go-playground/validator/v10"

	"roomrelay/internal/app/user"
	"roomrelay/internal/pkg/errs"
)

// EventType names a frame on the realtime channel.
type EventType string

// Inbound event types.
const (
	EventRegisterUser  EventType = "registerUser"
	EventJoinRoom      EventType = "joinRoom"
	EventChatMessage   EventType = "chatMessage"
	EventEditMessage   EventType = "editMessage"
	EventDeleteMessage EventType = "deleteMessage"
	EventTyping        EventType = "typing"
	EventStopTyping    EventType = "stopTyping"
)

// Outbound event types. chatMessage, typing and stopTyping reuse the inbound names.
const (
	EventRoomHistory   EventType = "roomHistory"
	EventMessageEdit   EventType = "messageEdit"
	EventMessageDelete EventType = "messageDelete"
	EventRoomUsers     EventType = "roomUsers"
)

// Envelope is the frame layout shared by both directions.
type Envelope struct {
	Type    EventType       `json:"type"`
	Payload json.RawMessage `json:"payload,omitempty"`
}

// Inbound is an event received from a client. The set of implementations is closed.
type Inbound interface {
	EventType() EventType
}

// RegisterUser binds a display name to the sending connection.
type RegisterUser struct {
	Username string `json:"username" validate:"required"`
}

// JoinRoom moves the sending connection into a room.
type JoinRoom struct {
	Room string `json:"room" validate:"required"`
}

// ChatMessage posts text to the sender's current room.
type ChatMessage struct {
	Text string `json:"text" validate:"required"`
}

// EditMessage replaces the text of one of the sender's messages.
type EditMessage struct {
	MessageID int64  `json:"messageId" validate:"required,gt=0"`
	NewText   string `json:"newText" validate:"required"`
}

// DeleteMessage removes one of the sender's messages.
type DeleteMessage struct {
	MessageID int64 `json:"messageId" validate:"required,gt=0"`
}

// StartTyping announces that the sender is typing.
type StartTyping struct{}

// StopTyping announces that the sender stopped typing.
type StopTyping struct{}

func (RegisterUser) EventType() EventType  { return EventRegisterUser }
func (JoinRoom) EventType() EventType      { return EventJoinRoom }
func (ChatMessage) EventType() EventType   { return EventChatMessage }
func (EditMessage) EventType() EventType   { return EventEditMessage }
func (DeleteMessage) EventType() EventType { return EventDeleteMessage }
func (StartTyping) EventType() EventType   { return EventTyping }
func (StopTyping) EventType() EventType    { return EventStopTyping }

// RoomHistoryPayload is sent to a joining connection only.
type RoomHistoryPayload struct {
	Room     string    `json:"room"`
	Messages []Message `json:"messages"`
}

// ChatMessagePayload announces a new message to the room.
type ChatMessagePayload struct {
	Room    string  `json:"room"`
	Message Message `json:"message"`
}

// MessageEditPayload announces an edit to the room.
type MessageEditPayload struct {
	Room         string `json:"room"`
	MessageID    int64  `json:"messageId"`
	NewText      string `json:"newText"`
	NewTimestamp int64  `json:"newTimestamp"`
}

// MessageDeletePayload announces a deletion to the room.
type MessageDeletePayload struct {
	Room      string `json:"room"`
	MessageID int64  `json:"messageId"`
}

// RoomUsersPayload carries a room's presence snapshot.
type RoomUsersPayload struct {
	Room  string      `json:"room"`
	Users []user.User `json:"users"`
}

// TypingPayload is relayed for both typing and stopTyping.
type TypingPayload struct {
	Username string `json:"username"`
}

var validate = validator.New(validator.WithRequiredStructEnabled())

// DecodeInbound parses and validates one client frame.
func DecodeInbound(frame []byte) (Inbound, *errs.CustomError) {
	var env Envelope
	if err := json.Unmarshal(frame, &env); err != nil {
		return nil, errs.NewError(errs.ErrMalformedEvent)
	}

	switch env.Type {
	case EventRegisterUser:
		return decodePayload[RegisterUser](env.Payload)
	case EventJoinRoom:
		return decodePayload[JoinRoom](env.Payload)
	case EventChatMessage:
		return decodePayload[ChatMessage](env.Payload)
	case EventEditMessage:
		return decodePayload[EditMessage](env.Payload)
	case EventDeleteMessage:
		return decodePayload[DeleteMessage](env.Payload)
	case EventTyping:
		return StartTyping{}, nil
	case EventStopTyping:
		return StopTyping{}, nil
	default:
		return nil, errs.NewError(errs.ErrUnknownEventType, env.Type)
	}
}

func decodePayload[T Inbound](raw json.RawMessage) (Inbound, *errs.CustomError) {
	var payload T

	raw = bytes.TrimSpace(raw)
	if len(raw) == 0 || bytes.Equal(raw, []byte("null")) {
		return nil, errs.NewError(errs.ErrInvalidParams)
	}

	if err := json.Unmarshal(raw, &payload); err != nil {
		return nil, errs.NewError(errs.ErrMalformedEvent)
	}

	if err := validate.Struct(payload); err != nil {
		return nil, errs.NewError(errs.ErrInvalidParams)
	}

	return payload, nil
}

// EncodeEvent builds an outbound frame.
func EncodeEvent(t EventType, payload any) ([]byte, error) {
	raw, err := json.Marshal(payload)
	if err != nil {
		return nil, err
	}

	return json.Marshal(Envelope{Type: t, Payload: raw})
}
