package chat

import (
	"unicode/utf16"
)

// Message is one chat entry in a room's log.
type Message struct {
	// ID is assigned from a single process-wide sequence, so ids from different rooms
	// still order by creation time.
	ID int64 `json:"id"`

	// Username is the author's display name at creation time. It never changes.
	Username string `json:"username"`

	Text string `json:"text"`

	// Timestamp is the creation time, or the time of the latest edit, in Unix milliseconds.
	Timestamp int64 `json:"timestamp"`

	// Edited flips to true on the first edit and stays true.
	Edited bool `json:"edited"`
}

// IsAuthoredBy reports whether username owns the message.
func (m Message) IsAuthoredBy(username string) bool {
	return m.Username == username
}

// MessageLog is the ordered message history of one room. It is not safe for concurrent
// use; the owning Room serializes access.
type MessageLog struct {
	messages []Message
}

// Len returns the number of messages in the log.
func (l *MessageLog) Len() int {
	return len(l.messages)
}

// Append adds m at the end of the log.
func (l *MessageLog) Append(m Message) {
	l.messages = append(l.messages, m)
}

// Recent returns a copy of the last n messages in creation order.
func (l *MessageLog) Recent(n int) []Message {
	start := max(len(l.messages)-n, 0)

	recent := make([]Message, len(l.messages)-start)
	copy(recent, l.messages[start:])
	return recent
}

// Find returns the message with the given id.
func (l *MessageLog) Find(id int64) (Message, bool) {
	idx := l.index(id)
	if idx < 0 {
		return Message{}, false
	}
	return l.messages[idx], true
}

// Edit replaces the text of message id, stamps it with ts and marks it edited.
func (l *MessageLog) Edit(id int64, text string, ts int64) (Message, bool) {
	idx := l.index(id)
	if idx < 0 {
		return Message{}, false
	}

	m := &l.messages[idx]
	m.Text = text
	m.Timestamp = ts
	m.Edited = true

	return *m, true
}

// Remove deletes message id from the log.
func (l *MessageLog) Remove(id int64) bool {
	idx := l.index(id)
	if idx < 0 {
		return false
	}

	l.messages = append(l.messages[:idx], l.messages[idx+1:]...)
	return true
}

// index searches from the tail, where recent edits and deletes land.
func (l *MessageLog) index(id int64) int {
	for i := len(l.messages) - 1; i >= 0; i-- {
		if l.messages[i].ID == id {
			return i
		}
	}
	return -1
}

// TruncateText caps s at limit UTF-16 code units, the unit browser clients count in.
// A character that would straddle the limit is dropped whole.
func TruncateText(s string, limit int) string {
	units := 0
	for i, r := range s {
		n := utf16.RuneLen(r)
		if n < 0 {
			n = 1
		}
		if units+n > limit {
			return s[:i]
		}
		units += n
	}
	return s
}
