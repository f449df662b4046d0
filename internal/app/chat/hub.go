package chat

import (
	"slices"
	"strings"
	"sync"
	"sync/atomic"
	"time"

	"github.com/rs/zerolog"
	"github.com/samber/lo"

	"roomrelay/internal/app/user"
	"roomrelay/internal/pkg/errs"
	"roomrelay/internal/pkg/logx"
)

const (
	// DefaultHistoryLimit is how many recent messages a joining connection receives.
	DefaultHistoryLimit = 20

	// DefaultMaxMessageLength caps message text, in UTF-16 code units.
	DefaultMaxMessageLength = 2000
)

// DefaultRooms is the room list used when none is configured.
var DefaultRooms = []string{"General", "Sports", "Tech"}

// Options configures a Hub.
type Options struct {
	Rooms            []string
	HistoryLimit     int
	MaxMessageLength int
}

// Hub owns all shared chat state: the connection registry, the room directory and the
// message id sequence.
type Hub struct {
	// rooms is built once in NewHub and only read afterwards.
	rooms     map[string]*Room
	roomNames []string

	// mu guards conns.
	mu sync.RWMutex

	// conns holds every live connection, registered or not.
	conns map[string]*Connection

	// seq is the last message id handed out, shared by all rooms.
	seq atomic.Int64

	historyLimit int
	maxLength    int

	now func() time.Time

	logger zerolog.Logger
}

// NewHub builds a hub with the configured rooms. Zero option values fall back to the
// package defaults.
func NewHub(opts Options) *Hub {
	names := lo.Uniq(opts.Rooms)
	if len(names) == 0 {
		names = slices.Clone(DefaultRooms)
	}

	h := &Hub{
		rooms:        make(map[string]*Room, len(names)),
		roomNames:    names,
		conns:        make(map[string]*Connection),
		historyLimit: lo.Ternary(opts.HistoryLimit > 0, opts.HistoryLimit, DefaultHistoryLimit),
		maxLength:    lo.Ternary(opts.MaxMessageLength > 0, opts.MaxMessageLength, DefaultMaxMessageLength),
		now:          time.Now,
		logger:       logx.Component("hub"),
	}

	for _, name := range names {
		h.rooms[name] = newRoom(name)
	}

	h.logger.Info().Strs("rooms", names).Msg("Hub created.")
	return h
}

// Rooms returns the configured room names in configuration order.
func (h *Hub) Rooms() []string {
	return slices.Clone(h.roomNames)
}

// Room looks up a room by name.
func (h *Hub) Room(name string) (*Room, bool) {
	r, ok := h.rooms[name]
	return r, ok
}

// Connect adds a new, unregistered connection to the registry.
func (h *Hub) Connect(c *Connection) {
	h.mu.Lock()
	h.conns[c.ID] = c
	total := len(h.conns)
	h.mu.Unlock()

	h.logger.Debug().Str("socket_id", c.ID).Int("connections", total).Msg("Connection attached.")
}

// Register binds displayName to c. A second registration replaces the first; if c is
// already in a room, that room's roster is re-announced with the new name.
func (h *Hub) Register(c *Connection, displayName string) *errs.CustomError {
	name := strings.TrimSpace(displayName)
	if name == "" {
		return errs.NewError(errs.ErrInvalidParams)
	}

	if !h.attached(c) {
		return errs.NewError(errs.ErrNotRegistered)
	}

	c.setName(name)
	h.logger.Info().Str("socket_id", c.ID).Str("username", name).Msg("User registered.")

	if room := c.Room(); room != nil {
		room.mu.Lock()
		room.broadcastPresence()
		room.mu.Unlock()
	}

	return nil
}

// Unregister is the disconnect path: c leaves its room, the room's roster is
// re-announced, and c is dropped from the registry.
func (h *Hub) Unregister(c *Connection) {
	if room := c.Room(); room != nil {
		room.leave(c)
	}

	h.mu.Lock()
	if current, ok := h.conns[c.ID]; ok && current == c {
		delete(h.conns, c.ID)
	}
	total := len(h.conns)
	h.mu.Unlock()

	h.logger.Info().
		Str("socket_id", c.ID).
		Str("username", c.Name()).
		Int("connections", total).
		Msg("Connection disconnected.")
}

// CurrentRoom returns the name of the room connID occupies.
func (h *Hub) CurrentRoom(connID string) (string, bool) {
	h.mu.RLock()
	c, ok := h.conns[connID]
	h.mu.RUnlock()

	if !ok {
		return "", false
	}

	room := c.Room()
	if room == nil {
		return "", false
	}
	return room.Name, true
}

// Join moves c into roomName. Leaving the previous room, including its roster update,
// completes before the new room is touched, so c never shows in two rosters.
func (h *Hub) Join(c *Connection, roomName string) *errs.CustomError {
	if !h.registered(c) {
		return errs.NewError(errs.ErrNotRegistered)
	}

	target, ok := h.rooms[roomName]
	if !ok {
		return errs.NewError(errs.ErrRoomNotFound, roomName)
	}

	current := c.Room()
	if current == target {
		return nil
	}

	if current != nil {
		current.leave(c)
	}

	target.join(c, h.historyLimit)
	return nil
}

// Chat appends text to c's current room and broadcasts it to every member, c included.
// Blank text is rejected; anything else is stored as sent, up to the length cap.
func (h *Hub) Chat(c *Connection, text string) (Message, *errs.CustomError) {
	name, room, err := h.actor(c)
	if err != nil {
		return Message{}, err
	}

	if strings.TrimSpace(text) == "" {
		return Message{}, errs.NewError(errs.ErrEmptyText)
	}

	return room.post(c, name, TruncateText(text, h.maxLength), h.nextID, h.now().UnixMilli())
}

// Edit replaces the text of message id in c's current room if c's display name
// authored it.
func (h *Hub) Edit(c *Connection, id int64, newText string) (Message, *errs.CustomError) {
	name, room, err := h.actor(c)
	if err != nil {
		return Message{}, err
	}

	if strings.TrimSpace(newText) == "" {
		return Message{}, errs.NewError(errs.ErrEmptyText)
	}

	return room.edit(name, id, TruncateText(newText, h.maxLength), h.now().UnixMilli())
}

// Delete removes message id from c's current room if c's display name authored it.
func (h *Hub) Delete(c *Connection, id int64) *errs.CustomError {
	name, room, err := h.actor(c)
	if err != nil {
		return err
	}

	return room.remove(name, id)
}

// Users returns registered users sorted by name, limited to room when it is non-empty.
func (h *Hub) Users(room string) []user.User {
	h.mu.RLock()
	conns := lo.Values(h.conns)
	h.mu.RUnlock()

	users := lo.FilterMap(conns, func(c *Connection, _ int) (user.User, bool) {
		u := c.User()
		if u.Username == "" {
			return u, false
		}
		return u, room == "" || u.InRoom(room)
	})

	slices.SortFunc(users, func(a, b user.User) int {
		if a.Username != b.Username {
			return strings.Compare(a.Username, b.Username)
		}
		return strings.Compare(a.SocketID, b.SocketID)
	})

	if users == nil {
		users = []user.User{}
	}
	return users
}

// RoomStats summarises one room at a point in time.
type RoomStats struct {
	Name     string `json:"name"`
	Members  int    `json:"members"`
	Messages int    `json:"messages"`
}

// Stats returns member and message counts for every room in configuration order.
func (h *Hub) Stats() []RoomStats {
	return lo.Map(h.roomNames, func(name string, _ int) RoomStats {
		r := h.rooms[name]
		return RoomStats{Name: name, Members: r.MemberCount(), Messages: r.MessageCount()}
	})
}

// ConnectionCount returns the number of live connections.
func (h *Hub) ConnectionCount() int {
	h.mu.RLock()
	defer h.mu.RUnlock()
	return len(h.conns)
}

// Shutdown closes every live connection. Their disconnect paths run as usual.
func (h *Hub) Shutdown() {
	h.logger.Info().Msg("Shutting down hub...")

	h.mu.RLock()
	conns := lo.Values(h.conns)
	h.mu.RUnlock()

	for _, c := range conns {
		c.out.Close()
	}

	h.logger.Info().Int("closed", len(conns)).Msg("Hub shutdown complete.")
}

func (h *Hub) nextID() int64 {
	return h.seq.Add(1)
}

func (h *Hub) attached(c *Connection) bool {
	h.mu.RLock()
	defer h.mu.RUnlock()
	current, ok := h.conns[c.ID]
	return ok && current == c
}

func (h *Hub) registered(c *Connection) bool {
	return c.Registered() && h.attached(c)
}

// actor resolves the display name and room of a connection that wants to act on a log.
func (h *Hub) actor(c *Connection) (string, *Room, *errs.CustomError) {
	if !h.registered(c) {
		return "", nil, errs.NewError(errs.ErrNotRegistered)
	}

	name, room := c.snapshot()
	if room == nil {
		return "", nil, errs.NewError(errs.ErrNotInRoom)
	}

	return name, room, nil
}
