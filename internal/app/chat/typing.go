package chat

import (
	"slices"

	"roomrelay/internal/pkg/errs"
)

// Typing relays a typing or stopped-typing signal from c to the other members of its
// room. Nothing is stored: clients expire stale indicators themselves.
func (h *Hub) Typing(c *Connection, started bool) *errs.CustomError {
	name, room := c.snapshot()
	if name == "" {
		return errs.NewError(errs.ErrNotRegistered)
	}
	if room == nil {
		return errs.NewError(errs.ErrNotInRoom)
	}

	t := EventStopTyping
	if started {
		t = EventTyping
	}

	room.mu.Lock()
	defer room.mu.Unlock()

	if !slices.Contains(room.members, c) {
		return errs.NewError(errs.ErrNotInRoom)
	}

	room.broadcast(t, TypingPayload{Username: name}, c)
	return nil
}
