/*
Package errs defines the relay's application error codes and the CustomError type that
carries them.

Codes are grouped by range: 1xxx for request handling, 2xxx for rooms and messages,
5xxx for internal failures.
*/
package errs

// 1xxx: request handling
const (
	// ErrInvalidParams indicates that request parameters failed validation.
	ErrInvalidParams = 1001

	// ErrMalformedEvent indicates a realtime frame that is not a valid event envelope.
	ErrMalformedEvent = 1002

	// ErrUnknownEventType indicates a realtime frame with an unsupported event type.
	ErrUnknownEventType = 1003

	// ErrRateLimitExceeded indicates that the caller exceeded the connection rate limit.
	ErrRateLimitExceeded = 1007
)

// 2xxx: rooms and messages
const (
	// ErrRoomNotFound indicates a room name outside the configured room list.
	ErrRoomNotFound = 2101

	// ErrNotRegistered indicates an action from a connection that has not registered a display name.
	ErrNotRegistered = 2102

	// ErrNotInRoom indicates an action that requires a current room from a connection without one.
	ErrNotInRoom = 2103

	// ErrEmptyText indicates message text that is empty after trimming.
	ErrEmptyText = 2201

	// ErrMessageNotFound indicates a message id absent from the current room's log.
	ErrMessageNotFound = 2202

	// ErrNotMessageAuthor indicates an edit or delete from someone other than the author.
	ErrNotMessageAuthor = 2203
)

// 5xxx: internal
const (
	// ErrUnknown represents an unclassified internal error.
	ErrUnknown = 5000
)
