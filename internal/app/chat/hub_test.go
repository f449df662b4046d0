package chat

import (
	"encoding/json"
	"fmt"
	"math/rand/v2"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/samber/lo"
	"github.com/stretchr/testify/require"

	"roomrelay/internal/app/user"
	"roomrelay/internal/pkg/errs"
)

// recorder is a Sender that keeps every frame it receives.
type recorder struct {
	mu     sync.Mutex
	frames []Envelope
	closed bool
}

func (r *recorder) Send(frame []byte) bool {
	var env Envelope
	if err := json.Unmarshal(frame, &env); err != nil {
		panic(err)
	}

	r.mu.Lock()
	defer r.mu.Unlock()
	r.frames = append(r.frames, env)
	return true
}

func (r *recorder) Close() {
	r.mu.Lock()
	r.closed = true
	r.mu.Unlock()
}

func (r *recorder) all() []Envelope {
	r.mu.Lock()
	defer r.mu.Unlock()
	return append([]Envelope(nil), r.frames...)
}

func (r *recorder) ofType(t EventType) []Envelope {
	return lo.Filter(r.all(), func(env Envelope, _ int) bool { return env.Type == t })
}

func (r *recorder) reset() {
	r.mu.Lock()
	r.frames = nil
	r.mu.Unlock()
}

func decode[T any](t *testing.T, env Envelope) T {
	t.Helper()
	var payload T
	require.NoError(t, json.Unmarshal(env.Payload, &payload))
	return payload
}

func last[T any](t *testing.T, rec *recorder, typ EventType) T {
	t.Helper()
	frames := rec.ofType(typ)
	require.NotEmpty(t, frames, "no %s frame received", typ)
	return decode[T](t, frames[len(frames)-1])
}

func usernames(users []user.User) []string {
	return lo.Map(users, func(u user.User, _ int) string { return u.Username })
}

func newTestHub() *Hub {
	h := NewHub(Options{})
	h.now = func() time.Time { return time.UnixMilli(1_700_000_000_000) }
	return h
}

// connect attaches a connection and registers name unless it is empty.
func connect(t *testing.T, h *Hub, id, name string) (*Connection, *recorder) {
	t.Helper()
	rec := &recorder{}
	c := NewConnection(id, rec)
	h.Connect(c)
	if name != "" {
		require.Nil(t, h.Register(c, name))
	}
	return c, rec
}

func requireCode(t *testing.T, err *errs.CustomError, code int) {
	t.Helper()
	require.NotNil(t, err)
	require.Equal(t, code, err.Code)
}

func TestHub_ActionsBeforeRegisterAreIgnored(t *testing.T) {
	req := require.New(t)
	h := newTestHub()
	c, rec := connect(t, h, "c1", "")

	requireCode(t, h.Join(c, "General"), errs.ErrNotRegistered)
	_, err := h.Chat(c, "hello")
	requireCode(t, err, errs.ErrNotRegistered)
	requireCode(t, h.Delete(c, 1), errs.ErrNotRegistered)
	requireCode(t, h.Typing(c, true), errs.ErrNotRegistered)

	_, ok := h.CurrentRoom("c1")
	req.False(ok)
	req.Empty(rec.all())
	req.Empty(h.Users(""))
}

func TestHub_RegisterRejectsBlankName(t *testing.T) {
	h := newTestHub()
	c, _ := connect(t, h, "c1", "")

	requireCode(t, h.Register(c, "   "), errs.ErrInvalidParams)
	require.False(t, c.Registered())
}

func TestHub_RegisterTwiceReplacesName(t *testing.T) {
	req := require.New(t)
	h := newTestHub()
	c, _ := connect(t, h, "c1", "alice")

	req.Nil(h.Register(c, " alicia "))

	users := h.Users("")
	req.Len(users, 1)
	req.Equal("alicia", users[0].Username)
	req.Equal("c1", users[0].SocketID)
}

func TestHub_JoinUnknownRoom(t *testing.T) {
	h := newTestHub()
	c, rec := connect(t, h, "c1", "alice")

	requireCode(t, h.Join(c, "Nowhere"), errs.ErrRoomNotFound)
	require.Nil(t, c.Room())
	require.Empty(t, rec.all())
}

func TestHub_JoinSendsHistoryThenRoster(t *testing.T) {
	req := require.New(t)
	h := newTestHub()
	alice, rec := connect(t, h, "c1", "alice")

	req.Nil(h.Join(alice, "General"))

	frames := rec.all()
	req.Len(frames, 2)
	req.Equal(EventRoomHistory, frames[0].Type)
	req.Equal(EventRoomUsers, frames[1].Type)

	history := decode[RoomHistoryPayload](t, frames[0])
	req.Equal("General", history.Room)
	req.NotNil(history.Messages)
	req.Empty(history.Messages)

	roster := decode[RoomUsersPayload](t, frames[1])
	req.Equal("General", roster.Room)
	req.Equal([]user.User{{SocketID: "c1", Username: "alice", Room: "General"}}, roster.Users)

	room, ok := h.CurrentRoom("c1")
	req.True(ok)
	req.Equal("General", room)
}

func TestHub_RejoinSameRoomIsNoop(t *testing.T) {
	req := require.New(t)
	h := newTestHub()
	alice, aliceRec := connect(t, h, "c1", "alice")
	bob, bobRec := connect(t, h, "c2", "bob")

	req.Nil(h.Join(alice, "General"))
	req.Nil(h.Join(bob, "General"))
	aliceRec.reset()
	bobRec.reset()

	req.Nil(h.Join(alice, "General"))

	req.Empty(aliceRec.all())
	req.Empty(bobRec.all())

	room, _ := h.Room("General")
	req.Equal(2, room.MemberCount())
}

func TestHub_QuickSwitchLeavesPreviousRoster(t *testing.T) {
	req := require.New(t)
	h := newTestHub()
	alice, aliceRec := connect(t, h, "c1", "alice")
	bob, bobRec := connect(t, h, "c2", "bob")
	carol, carolRec := connect(t, h, "c3", "carol")

	req.Nil(h.Join(bob, "General"))
	req.Nil(h.Join(carol, "Sports"))

	// When alice joins General then Sports without leaving in between
	req.Nil(h.Join(alice, "General"))
	req.Nil(h.Join(alice, "Sports"))

	// Then General's final roster, as seen by bob, no longer has alice
	general := last[RoomUsersPayload](t, bobRec, EventRoomUsers)
	req.Equal("General", general.Room)
	req.Equal([]string{"bob"}, usernames(general.Users))

	// And Sports' roster has both carol and alice
	sports := last[RoomUsersPayload](t, carolRec, EventRoomUsers)
	req.Equal("Sports", sports.Room)
	req.ElementsMatch([]string{"carol", "alice"}, usernames(sports.Users))

	// And alice was not sent General's post-leave roster
	aliceRosters := aliceRec.ofType(EventRoomUsers)
	req.Len(aliceRosters, 2)
	req.Equal("General", decode[RoomUsersPayload](t, aliceRosters[0]).Room)
	req.Equal("Sports", decode[RoomUsersPayload](t, aliceRosters[1]).Room)

	generalRoom, _ := h.Room("General")
	req.Equal([]string{"bob"}, usernames(generalRoom.Roster()))
}

func TestHub_JoinSequenceKeepsSingleMembership(t *testing.T) {
	req := require.New(t)
	h := newTestHub()
	alice, _ := connect(t, h, "c1", "alice")
	rooms := h.Rooms()

	rng := rand.New(rand.NewPCG(1, 2))
	for range 200 {
		target := rooms[rng.IntN(len(rooms))]
		req.Nil(h.Join(alice, target))

		current, ok := h.CurrentRoom("c1")
		req.True(ok)
		req.Equal(target, current)

		appearances := 0
		for _, name := range rooms {
			room, _ := h.Room(name)
			if lo.ContainsBy(room.Roster(), func(u user.User) bool { return u.SocketID == "c1" }) {
				appearances++
				req.Equal(target, name)
			}
		}
		req.Equal(1, appearances)
	}
}

func TestHub_ChatBroadcastsToRoomOnly(t *testing.T) {
	req := require.New(t)
	h := newTestHub()
	alice, aliceRec := connect(t, h, "c1", "alice")
	bob, bobRec := connect(t, h, "c2", "bob")
	carol, carolRec := connect(t, h, "c3", "carol")

	req.Nil(h.Join(alice, "General"))
	req.Nil(h.Join(bob, "General"))
	req.Nil(h.Join(carol, "Sports"))

	msg, err := h.Chat(alice, "hi")
	req.Nil(err)
	req.Equal("hi", msg.Text)

	for _, rec := range []*recorder{aliceRec, bobRec} {
		got := last[ChatMessagePayload](t, rec, EventChatMessage)
		req.Equal("General", got.Room)
		req.Equal("alice", got.Message.Username)
		req.Equal("hi", got.Message.Text)
		req.False(got.Message.Edited)
		req.Equal(int64(1_700_000_000_000), got.Message.Timestamp)
	}
	req.Empty(carolRec.ofType(EventChatMessage))
}

func TestHub_ChatRejections(t *testing.T) {
	req := require.New(t)
	h := newTestHub()
	alice, rec := connect(t, h, "c1", "alice")

	_, err := h.Chat(alice, "hi")
	requireCode(t, err, errs.ErrNotInRoom)

	req.Nil(h.Join(alice, "General"))
	rec.reset()

	_, err = h.Chat(alice, " \n\t ")
	requireCode(t, err, errs.ErrEmptyText)
	req.Empty(rec.all())

	room, _ := h.Room("General")
	req.Empty(room.history(20))
}

func TestHub_ChatKeepsTextAsSent(t *testing.T) {
	req := require.New(t)
	h := newTestHub()
	alice, rec := connect(t, h, "c1", "alice")
	req.Nil(h.Join(alice, "General"))

	msg, err := h.Chat(alice, "  indented\n")
	req.Nil(err)
	req.Equal("  indented\n", msg.Text)
	req.Equal("  indented\n", last[ChatMessagePayload](t, rec, EventChatMessage).Message.Text)

	edited, err := h.Edit(alice, msg.ID, " spaced ")
	req.Nil(err)
	req.Equal(" spaced ", edited.Text)
	req.Equal(" spaced ", last[MessageEditPayload](t, rec, EventMessageEdit).NewText)
}

func TestHub_ChatTruncatesLongText(t *testing.T) {
	h := newTestHub()
	alice, _ := connect(t, h, "c1", "alice")
	require.Nil(t, h.Join(alice, "General"))

	msg, err := h.Chat(alice, strings.Repeat("a", 2500))
	require.Nil(t, err)
	require.Len(t, msg.Text, 2000)
}

func TestHub_MessageIDsIncreaseAcrossRooms(t *testing.T) {
	req := require.New(t)
	h := newTestHub()
	alice, _ := connect(t, h, "c1", "alice")
	bob, _ := connect(t, h, "c2", "bob")
	req.Nil(h.Join(alice, "General"))
	req.Nil(h.Join(bob, "Tech"))

	var prev int64
	for i := range 10 {
		sender := lo.Ternary(i%2 == 0, alice, bob)
		msg, err := h.Chat(sender, fmt.Sprintf("message %d", i))
		req.Nil(err)
		req.Greater(msg.ID, prev)
		prev = msg.ID
	}
	req.Equal(int64(10), prev)
}

func TestHub_ConcurrentChatKeepsIDsUniqueAndLogsOrdered(t *testing.T) {
	req := require.New(t)
	h := newTestHub()
	rooms := h.Rooms()

	const perConn = 50
	var wg sync.WaitGroup
	ids := make(chan int64, len(rooms)*2*perConn)

	for i := range len(rooms) * 2 {
		c, _ := connect(t, h, fmt.Sprintf("c%d", i), fmt.Sprintf("user%d", i))
		req.Nil(h.Join(c, rooms[i%len(rooms)]))

		wg.Add(1)
		go func() {
			defer wg.Done()
			for j := range perConn {
				msg, err := h.Chat(c, fmt.Sprintf("m%d", j))
				if err == nil {
					ids <- msg.ID
				}
			}
		}()
	}
	wg.Wait()
	close(ids)

	seen := make(map[int64]struct{})
	for id := range ids {
		_, dup := seen[id]
		req.False(dup, "duplicate id %d", id)
		seen[id] = struct{}{}
	}
	req.Len(seen, len(rooms)*2*perConn)

	for _, name := range rooms {
		room, _ := h.Room(name)
		history := room.history(1000)
		req.Len(history, 2*perConn)
		for i := 1; i < len(history); i++ {
			req.Greater(history[i].ID, history[i-1].ID)
		}
	}
}

func TestHub_HistoryWindowIsRecentAndRoomLocal(t *testing.T) {
	req := require.New(t)
	h := newTestHub()
	alice, _ := connect(t, h, "c1", "alice")
	bob, _ := connect(t, h, "c2", "bob")
	req.Nil(h.Join(alice, "General"))
	req.Nil(h.Join(bob, "Sports"))

	for i := range 25 {
		_, err := h.Chat(alice, fmt.Sprintf("general %d", i))
		req.Nil(err)
		_, err = h.Chat(bob, fmt.Sprintf("sports %d", i))
		req.Nil(err)
	}

	carol, carolRec := connect(t, h, "c3", "carol")
	req.Nil(h.Join(carol, "General"))

	history := last[RoomHistoryPayload](t, carolRec, EventRoomHistory)
	req.Equal("General", history.Room)
	req.Len(history.Messages, 20)
	for i, msg := range history.Messages {
		req.Equal(fmt.Sprintf("general %d", i+5), msg.Text)
		req.Equal("alice", msg.Username)
		if i > 0 {
			req.Greater(msg.ID, history.Messages[i-1].ID)
		}
	}
}

func TestHub_EditDeleteScenario(t *testing.T) {
	req := require.New(t)
	h := newTestHub()
	alice, aliceRec := connect(t, h, "c1", "alice")
	bob, bobRec := connect(t, h, "c2", "bob")
	req.Nil(h.Join(alice, "General"))
	req.Nil(h.Join(bob, "General"))

	// Given alice says hi
	msg, err := h.Chat(alice, "hi")
	req.Nil(err)

	// When alice edits it
	h.now = func() time.Time { return time.UnixMilli(1_700_000_000_500) }
	edited, err := h.Edit(alice, msg.ID, "hello")
	req.Nil(err)
	req.True(edited.Edited)
	req.Equal("alice", edited.Username)

	// Then both members receive the edit
	for _, rec := range []*recorder{aliceRec, bobRec} {
		got := last[MessageEditPayload](t, rec, EventMessageEdit)
		req.Equal(MessageEditPayload{
			Room:         "General",
			MessageID:    msg.ID,
			NewText:      "hello",
			NewTimestamp: 1_700_000_000_500,
		}, got)
	}

	// And a later joiner sees the edited text
	carol, carolRec := connect(t, h, "c3", "carol")
	req.Nil(h.Join(carol, "General"))
	history := last[RoomHistoryPayload](t, carolRec, EventRoomHistory)
	req.Len(history.Messages, 1)
	req.Equal("hello", history.Messages[0].Text)
	req.True(history.Messages[0].Edited)

	// When bob tries to delete alice's message it stays
	requireCode(t, h.Delete(bob, msg.ID), errs.ErrNotMessageAuthor)
	req.Empty(aliceRec.ofType(EventMessageDelete))
	room, _ := h.Room("General")
	req.Len(room.history(20), 1)

	// When alice deletes it everyone is told
	req.Nil(h.Delete(alice, msg.ID))
	for _, rec := range []*recorder{aliceRec, bobRec, carolRec} {
		got := last[MessageDeletePayload](t, rec, EventMessageDelete)
		req.Equal(MessageDeletePayload{Room: "General", MessageID: msg.ID}, got)
	}

	// And a new joiner no longer sees it
	dave, daveRec := connect(t, h, "c4", "dave")
	req.Nil(h.Join(dave, "General"))
	req.Empty(last[RoomHistoryPayload](t, daveRec, EventRoomHistory).Messages)
}

func TestHub_DeleteTwiceBroadcastsOnce(t *testing.T) {
	req := require.New(t)
	h := newTestHub()
	alice, rec := connect(t, h, "c1", "alice")
	req.Nil(h.Join(alice, "General"))

	msg, err := h.Chat(alice, "oops")
	req.Nil(err)

	req.Nil(h.Delete(alice, msg.ID))
	requireCode(t, h.Delete(alice, msg.ID), errs.ErrMessageNotFound)
	req.Len(rec.ofType(EventMessageDelete), 1)

	_, err = h.Edit(alice, msg.ID, "back")
	requireCode(t, err, errs.ErrMessageNotFound)
	req.Empty(rec.ofType(EventMessageEdit))
}

func TestHub_OwnershipFollowsDisplayName(t *testing.T) {
	req := require.New(t)
	h := newTestHub()
	alice, _ := connect(t, h, "c1", "alice")
	bob, _ := connect(t, h, "c2", "bob")
	impostor, _ := connect(t, h, "c3", "alice")
	for _, c := range []*Connection{alice, bob, impostor} {
		req.Nil(h.Join(c, "General"))
	}

	msg, err := h.Chat(alice, "mine")
	req.Nil(err)

	_, err = h.Edit(bob, msg.ID, "bob was here")
	requireCode(t, err, errs.ErrNotMessageAuthor)

	room, _ := h.Room("General")
	req.Equal("mine", room.history(1)[0].Text)
	req.False(room.history(1)[0].Edited)

	// a second connection with the same display name counts as the author
	_, err = h.Edit(impostor, msg.ID, "same name")
	req.Nil(err)
	req.Equal("same name", room.history(1)[0].Text)
}

func TestHub_EditRejections(t *testing.T) {
	req := require.New(t)
	h := newTestHub()
	alice, rec := connect(t, h, "c1", "alice")
	req.Nil(h.Join(alice, "General"))

	msg, err := h.Chat(alice, "original")
	req.Nil(err)

	_, err = h.Edit(alice, msg.ID, "   ")
	requireCode(t, err, errs.ErrEmptyText)

	_, err = h.Edit(alice, msg.ID+100, "nope")
	requireCode(t, err, errs.ErrMessageNotFound)

	// lookup only covers the current room
	req.Nil(h.Join(alice, "Sports"))
	_, err = h.Edit(alice, msg.ID, "from elsewhere")
	requireCode(t, err, errs.ErrMessageNotFound)
	requireCode(t, h.Delete(alice, msg.ID), errs.ErrMessageNotFound)

	req.Empty(rec.ofType(EventMessageEdit))
	general, _ := h.Room("General")
	req.Equal("original", general.history(1)[0].Text)
}

func TestHub_EditTruncates(t *testing.T) {
	h := newTestHub()
	alice, _ := connect(t, h, "c1", "alice")
	require.Nil(t, h.Join(alice, "General"))

	msg, err := h.Chat(alice, "short")
	require.Nil(t, err)

	edited, err := h.Edit(alice, msg.ID, strings.Repeat("b", 3000))
	require.Nil(t, err)
	require.Len(t, edited.Text, 2000)
}

func TestHub_TypingGoesToOtherMembers(t *testing.T) {
	req := require.New(t)
	h := newTestHub()
	alice, aliceRec := connect(t, h, "c1", "alice")
	bob, bobRec := connect(t, h, "c2", "bob")
	carol, carolRec := connect(t, h, "c3", "carol")

	requireCode(t, h.Typing(alice, true), errs.ErrNotInRoom)

	req.Nil(h.Join(alice, "General"))
	req.Nil(h.Join(bob, "General"))
	req.Nil(h.Join(carol, "Tech"))

	req.Nil(h.Typing(alice, true))
	req.Nil(h.Typing(alice, false))

	req.Equal(TypingPayload{Username: "alice"}, last[TypingPayload](t, bobRec, EventTyping))
	req.Equal(TypingPayload{Username: "alice"}, last[TypingPayload](t, bobRec, EventStopTyping))
	req.Empty(aliceRec.ofType(EventTyping))
	req.Empty(aliceRec.ofType(EventStopTyping))
	req.Empty(carolRec.ofType(EventTyping))
}

func TestHub_DisconnectUpdatesRoster(t *testing.T) {
	req := require.New(t)
	h := newTestHub()
	alice, aliceRec := connect(t, h, "c1", "alice")
	bob, _ := connect(t, h, "c2", "bob")
	req.Nil(h.Join(alice, "General"))
	req.Nil(h.Join(bob, "General"))
	req.Equal(2, h.ConnectionCount())

	h.Unregister(bob)

	roster := last[RoomUsersPayload](t, aliceRec, EventRoomUsers)
	req.Equal([]string{"alice"}, usernames(roster.Users))
	req.Equal(1, h.ConnectionCount())
	req.Equal([]string{"alice"}, usernames(h.Users("")))

	_, ok := h.CurrentRoom("c2")
	req.False(ok)

	// a stale handle does nothing once it is gone
	requireCode(t, h.Join(bob, "General"), errs.ErrNotRegistered)
}

func TestHub_RenameInRoomRebroadcastsRoster(t *testing.T) {
	req := require.New(t)
	h := newTestHub()
	alice, _ := connect(t, h, "c1", "alice")
	bob, bobRec := connect(t, h, "c2", "bob")
	req.Nil(h.Join(alice, "General"))
	req.Nil(h.Join(bob, "General"))

	req.Nil(h.Register(alice, "alicia"))

	roster := last[RoomUsersPayload](t, bobRec, EventRoomUsers)
	req.ElementsMatch([]string{"alicia", "bob"}, usernames(roster.Users))

	current, ok := h.CurrentRoom("c1")
	req.True(ok)
	req.Equal("General", current)
}

func TestHub_UsersFilter(t *testing.T) {
	req := require.New(t)
	h := newTestHub()
	alice, _ := connect(t, h, "c1", "alice")
	bob, _ := connect(t, h, "c2", "bob")
	connect(t, h, "c3", "carol")
	connect(t, h, "c4", "")
	req.Nil(h.Join(alice, "General"))
	req.Nil(h.Join(bob, "Sports"))

	req.Equal([]string{"alice", "bob", "carol"}, usernames(h.Users("")))
	req.Equal([]user.User{{SocketID: "c1", Username: "alice", Room: "General"}}, h.Users("General"))
	req.Empty(h.Users("Tech"))
	req.NotNil(h.Users("Nowhere"))
}

func TestHub_ConcurrentSwitchingKeepsRostersConsistent(t *testing.T) {
	req := require.New(t)
	h := newTestHub()
	rooms := h.Rooms()

	const conns = 12
	var wg sync.WaitGroup
	for i := range conns {
		c, _ := connect(t, h, fmt.Sprintf("c%d", i), fmt.Sprintf("user%d", i))

		wg.Add(1)
		go func(seed uint64) {
			defer wg.Done()
			rng := rand.New(rand.NewPCG(seed, seed+1))
			for range 100 {
				_ = h.Join(c, rooms[rng.IntN(len(rooms))])
				_, _ = h.Chat(c, "ping")
				_ = h.Typing(c, true)
			}
		}(uint64(i))
	}
	wg.Wait()

	total := 0
	for _, name := range rooms {
		room, _ := h.Room(name)
		for _, u := range room.Roster() {
			req.Equal(name, u.Room)
			current, ok := h.CurrentRoom(u.SocketID)
			req.True(ok)
			req.Equal(name, current)
			total++
		}
	}
	req.Equal(conns, total)
}

func TestHub_ShutdownClosesConnections(t *testing.T) {
	h := newTestHub()
	_, rec1 := connect(t, h, "c1", "alice")
	_, rec2 := connect(t, h, "c2", "")

	h.Shutdown()

	require.True(t, rec1.closed)
	require.True(t, rec2.closed)
}

func TestNewHub_Defaults(t *testing.T) {
	req := require.New(t)

	h := NewHub(Options{})
	req.Equal([]string{"General", "Sports", "Tech"}, h.Rooms())

	custom := NewHub(Options{Rooms: []string{"Lobby", "Lobby", "Games"}, HistoryLimit: 5})
	req.Equal([]string{"Lobby", "Games"}, custom.Rooms())
	_, ok := custom.Room("General")
	req.False(ok)
}

func TestHub_StatsCountsMembersAndMessages(t *testing.T) {
	req := require.New(t)
	h := newTestHub()
	alice, _ := connect(t, h, "c1", "alice")
	bob, _ := connect(t, h, "c2", "bob")
	req.Nil(h.Join(alice, "General"))
	req.Nil(h.Join(bob, "General"))

	for range 3 {
		_, err := h.Chat(alice, "hello")
		req.Nil(err)
	}
	req.Nil(h.Join(bob, "Tech"))

	req.Equal([]RoomStats{
		{Name: "General", Members: 1, Messages: 3},
		{Name: "Sports", Members: 0, Messages: 0},
		{Name: "Tech", Members: 1, Messages: 0},
	}, h.Stats())
}
