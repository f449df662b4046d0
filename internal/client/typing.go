package client

import (
	"sync"
	"time"
)

// DefaultQuietPeriod is how long after the last keystroke a typing indicator is cleared.
const DefaultQuietPeriod = time.Second

// TypingSignal turns keystrokes into typing/stopTyping events. The relay keeps no typing
// state, so the sender is responsible for clearing its own indicator.
type TypingSignal struct {
	quiet time.Duration
	emit  func(typing bool) error

	mu     sync.Mutex
	timer  *time.Timer
	active bool
	gen    uint64
}

// NewTypingSignal returns a signal that reports through emit. A non-positive quiet
// period means DefaultQuietPeriod.
func NewTypingSignal(quiet time.Duration, emit func(typing bool) error) *TypingSignal {
	if quiet <= 0 {
		quiet = DefaultQuietPeriod
	}
	return &TypingSignal{quiet: quiet, emit: emit}
}

// Keystroke marks the user as typing and restarts the quiet period.
func (s *TypingSignal) Keystroke() {
	s.mu.Lock()
	defer s.mu.Unlock()

	if !s.active {
		s.active = true
		_ = s.emit(true)
	}

	s.gen++
	gen := s.gen
	if s.timer != nil {
		s.timer.Stop()
	}
	s.timer = time.AfterFunc(s.quiet, func() { s.expire(gen) })
}

// Sent clears the indicator right away, as after sending a message.
func (s *TypingSignal) Sent() {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.clear()
}

// Active reports whether a typing indicator is currently announced.
func (s *TypingSignal) Active() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.active
}

func (s *TypingSignal) expire(gen uint64) {
	s.mu.Lock()
	defer s.mu.Unlock()

	// a newer keystroke owns the timer now
	if gen != s.gen {
		return
	}
	s.clear()
}

func (s *TypingSignal) clear() {
	s.gen++
	if s.timer != nil {
		s.timer.Stop()
		s.timer = nil
	}
	if s.active {
		s.active = false
		_ = s.emit(false)
	}
}
