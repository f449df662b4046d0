/*
Package handler wires the relay's HTTP surface: the WebSocket endpoint and the read-only
query endpoints for rooms and present users.
*/
package handler

import (
	"net/http"

	"roomrelay/internal/app/user"
	"roomrelay/internal/pkg/resp"
)

// RoomsResponse lists the configured rooms.
type RoomsResponse struct {
	Rooms []string `json:"rooms"`
}

// UsersResponse lists registered users at the time of the request.
type UsersResponse struct {
	Users []user.User `json:"users"`
}

// HandleListRooms returns the configured room names.
func HandleListRooms(deps *AppDeps) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		resp.RespondSuccess(w, r, RoomsResponse{Rooms: deps.Hub.Rooms()})
	}
}

// HandleListUsers returns the registered users, optionally filtered with ?room=.
// An unknown room simply yields an empty list.
func HandleListUsers(deps *AppDeps) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		room := r.URL.Query().Get("room")
		resp.RespondSuccess(w, r, UsersResponse{Users: deps.Hub.Users(room)})
	}
}
