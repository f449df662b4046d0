package chat

import (
	"sync"

	"roomrelay/internal/app/user"
)

// Sender delivers encoded frames to one client. Send must not block: it either queues
// the frame or reports false.
type Sender interface {
	Send(frame []byte) bool
	Close()
}

// Connection is the hub's view of one live client session.
type Connection struct {
	// ID is stable for the lifetime of the network session.
	ID string

	out Sender

	// mu guards name and room. When both are needed, a Room lock is taken first.
	mu   sync.RWMutex
	name string
	room *Room
}

// NewConnection wraps out as an unregistered connection with the given id.
func NewConnection(id string, out Sender) *Connection {
	return &Connection{ID: id, out: out}
}

// Name returns the registered display name, empty before registration.
func (c *Connection) Name() string {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return c.name
}

// Registered reports whether the connection has a display name.
func (c *Connection) Registered() bool {
	return c.Name() != ""
}

// Room returns the current room, nil if none.
func (c *Connection) Room() *Room {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return c.room
}

// User returns the presence entry for this connection.
func (c *Connection) User() user.User {
	c.mu.RLock()
	defer c.mu.RUnlock()

	u := user.User{SocketID: c.ID, Username: c.name}
	if c.room != nil {
		u.Room = c.room.Name
	}
	return u
}

func (c *Connection) snapshot() (string, *Room) {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return c.name, c.room
}

func (c *Connection) setName(name string) {
	c.mu.Lock()
	c.name = name
	c.mu.Unlock()
}

func (c *Connection) setRoom(r *Room) {
	c.mu.Lock()
	c.room = r
	c.mu.Unlock()
}
