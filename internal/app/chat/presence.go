package chat

import (
	"github.com/samber/lo"

	"roomrelay/internal/app/user"
)

// roster is the presence snapshot of the room. Callers hold mu.
func (r *Room) roster() []user.User {
	return lo.Map(r.members, func(c *Connection, _ int) user.User {
		return c.User()
	})
}

// broadcastPresence recomputes the roster and sends it to every current member.
// Callers hold mu, so the snapshot always matches the membership it is sent to.
func (r *Room) broadcastPresence() {
	r.broadcast(EventRoomUsers, RoomUsersPayload{
		Room:  r.Name,
		Users: r.roster(),
	}, nil)
}

// Roster returns the current presence snapshot.
func (r *Room) Roster() []user.User {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.roster()
}
