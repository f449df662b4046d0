/*
Package user defines how a connected participant is presented to other clients.

A User is a point-in-time view of one connection: its id, the display name it registered
and the room it currently occupies. Rosters and the HTTP user listing are built from it.
*/
package user

// User is one entry of a presence snapshot.
type User struct {
	// SocketID is the opaque identifier of the underlying connection.
	SocketID string `json:"socketId"`

	// Username is the display name the connection registered. It is not unique.
	Username string `json:"username"`

	// Room is the room the connection currently occupies, empty if none.
	Room string `json:"room,omitempty"`
}

// InRoom reports whether the user currently occupies room.
func (u User) InRoom(room string) bool {
	return room != "" && u.Room == room
}
