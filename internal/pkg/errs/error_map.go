package errs

import "net/http"

// errorMap holds the template for every known code. A zero Status means HTTP 200, since
// the JSON envelope carries the business code.
var errorMap = map[int]CustomError{
	ErrInvalidParams:     {Code: ErrInvalidParams, Message: "Invalid request parameters."},
	ErrMalformedEvent:    {Code: ErrMalformedEvent, Message: "Malformed event."},
	ErrUnknownEventType:  {Code: ErrUnknownEventType, Message: "Unsupported event type %q."},
	ErrRateLimitExceeded: {Code: ErrRateLimitExceeded, Message: "Too many requests. Please try again later.", Status: http.StatusTooManyRequests},

	ErrRoomNotFound:     {Code: ErrRoomNotFound, Message: "Room %q does not exist.", Status: http.StatusNotFound},
	ErrNotRegistered:    {Code: ErrNotRegistered, Message: "Register a username first."},
	ErrNotInRoom:        {Code: ErrNotInRoom, Message: "Join a room first."},
	ErrEmptyText:        {Code: ErrEmptyText, Message: "Message text is empty."},
	ErrMessageNotFound:  {Code: ErrMessageNotFound, Message: "Message %d not found."},
	ErrNotMessageAuthor: {Code: ErrNotMessageAuthor, Message: "Only the author can change this message."},

	ErrUnknown: {Code: ErrUnknown, Message: "Something went wrong. Please try again.", Status: http.StatusInternalServerError},
}
