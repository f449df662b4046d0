package chat

import (
	"slices"
	"sync"

	"github.com/rs/zerolog"

	"roomrelay/internal/pkg/errs"
	"roomrelay/internal/pkg/logx"
)

// Room is one statically configured channel. It exists whether or not anyone is in it.
//
// Every mutation of the membership or the log, and the fan-out that announces it, runs
// under mu. Events in one room are therefore observed by all members in one order, and
// history sent to a joiner never overlaps with the live events that follow it.
type Room struct {
	// Name identifies the room and never changes.
	Name string

	mu sync.Mutex

	// members is kept in join order.
	members []*Connection

	log MessageLog

	logger zerolog.Logger
}

func newRoom(name string) *Room {
	return &Room{
		Name: name,
		logger: logx.Logger().With().
			Str("room", name).
			Logger(),
	}
}

// MemberCount returns the number of connections in the room.
func (r *Room) MemberCount() int {
	r.mu.Lock()
	defer r.mu.Unlock()
	return len(r.members)
}

// join adds c, replays recent history to c alone and announces the new roster.
func (r *Room) join(c *Connection, historyLimit int) {
	r.mu.Lock()
	defer r.mu.Unlock()

	if !slices.Contains(r.members, c) {
		r.members = append(r.members, c)
	}
	c.setRoom(r)

	r.logger.Info().
		Str("socket_id", c.ID).
		Int("total_users", len(r.members)).
		Msg("Connection joined room.")

	r.sendTo(c, EventRoomHistory, RoomHistoryPayload{
		Room:     r.Name,
		Messages: r.log.Recent(historyLimit),
	})
	r.broadcastPresence()
}

// leave removes c and announces the roster to whoever remains.
func (r *Room) leave(c *Connection) {
	r.mu.Lock()
	defer r.mu.Unlock()

	idx := slices.Index(r.members, c)
	if idx < 0 {
		return
	}

	r.members = slices.Delete(r.members, idx, idx+1)
	if c.Room() == r {
		c.setRoom(nil)
	}

	r.logger.Info().
		Str("socket_id", c.ID).
		Int("total_users", len(r.members)).
		Msg("Connection left room.")

	r.broadcastPresence()
}

// post appends a new message authored by c and announces it to every member.
func (r *Room) post(c *Connection, author, text string, nextID func() int64, now int64) (Message, *errs.CustomError) {
	r.mu.Lock()
	defer r.mu.Unlock()

	if !slices.Contains(r.members, c) {
		return Message{}, errs.NewError(errs.ErrNotInRoom)
	}

	// the id is drawn under the room lock so the log stays in id order
	msg := Message{
		ID:        nextID(),
		Username:  author,
		Text:      text,
		Timestamp: now,
	}
	r.log.Append(msg)

	r.broadcast(EventChatMessage, ChatMessagePayload{Room: r.Name, Message: msg}, nil)
	return msg, nil
}

// edit rewrites message id if requester authored it.
func (r *Room) edit(requester string, id int64, text string, now int64) (Message, *errs.CustomError) {
	r.mu.Lock()
	defer r.mu.Unlock()

	if err := r.checkOwnership(requester, id); err != nil {
		return Message{}, err
	}

	msg, _ := r.log.Edit(id, text, now)

	r.broadcast(EventMessageEdit, MessageEditPayload{
		Room:         r.Name,
		MessageID:    msg.ID,
		NewText:      msg.Text,
		NewTimestamp: msg.Timestamp,
	}, nil)
	return msg, nil
}

// remove deletes message id if requester authored it.
func (r *Room) remove(requester string, id int64) *errs.CustomError {
	r.mu.Lock()
	defer r.mu.Unlock()

	if err := r.checkOwnership(requester, id); err != nil {
		return err
	}

	r.log.Remove(id)

	r.broadcast(EventMessageDelete, MessageDeletePayload{Room: r.Name, MessageID: id}, nil)
	return nil
}

// checkOwnership compares display names only; there is no stronger identity to check.
func (r *Room) checkOwnership(requester string, id int64) *errs.CustomError {
	msg, ok := r.log.Find(id)
	if !ok {
		return errs.NewError(errs.ErrMessageNotFound, id)
	}

	if !msg.IsAuthoredBy(requester) {
		return errs.NewError(errs.ErrNotMessageAuthor)
	}

	return nil
}

// MessageCount returns the number of messages in the room's log.
func (r *Room) MessageCount() int {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.log.Len()
}

// history returns a copy of the last n messages.
func (r *Room) history(n int) []Message {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.log.Recent(n)
}

// sendTo delivers one event to c only. Callers hold mu.
func (r *Room) sendTo(c *Connection, t EventType, payload any) {
	frame, err := EncodeEvent(t, payload)
	if err != nil {
		r.logger.Error().Err(err).Str("event", string(t)).Msg("Failed to encode event.")
		return
	}

	r.deliver(c, frame)
}

// broadcast delivers one event to every member except skip. Callers hold mu.
func (r *Room) broadcast(t EventType, payload any, skip *Connection) {
	frame, err := EncodeEvent(t, payload)
	if err != nil {
		r.logger.Error().Err(err).Str("event", string(t)).Msg("Failed to encode event for broadcast.")
		return
	}

	for _, member := range r.members {
		if member != skip {
			r.deliver(member, frame)
		}
	}
}

func (r *Room) deliver(c *Connection, frame []byte) {
	if !c.out.Send(frame) {
		r.logger.Warn().
			Str("socket_id", c.ID).
			Msg("Send queue full or closed, frame dropped.")
	}
}
