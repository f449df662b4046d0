/*
Package client is a Go client for the room relay's realtime endpoint.

A Client registers its username as soon as it connects, remembers the last room it joined,
and restores both after Reconnect. With AutoReconnect set it also redials on its own when
the socket drops. Received frames are exposed undecoded on Events; use
Decode to read a payload and RoomView to fold events into local room state.
*/
package client

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"sync"
	"time"

	"github.com/gorilla/websocket"
	"github.com/rs/zerolog"

	"roomrelay/internal/app/chat"
	"roomrelay/internal/pkg/logx"
)

const (
	writeWait = 10 * time.Second

	// DefaultEventBuffer is the capacity of the Events channel.
	DefaultEventBuffer = 128

	// DefaultReconnectDelay is the pause between automatic reconnect attempts.
	DefaultReconnectDelay = 500 * time.Millisecond
)

// ErrClosed is returned by operations on a closed client.
var ErrClosed = errors.New("client: closed")

// Options configures Dial.
type Options struct {
	// URL is the relay's WebSocket endpoint, e.g. ws://localhost:4000/ws.
	URL string

	// Username is registered on every (re)connect.
	Username string

	// Header is sent with the handshake, e.g. to set Origin.
	Header http.Header

	// Dialer defaults to websocket.DefaultDialer.
	Dialer *websocket.Dialer

	// EventBuffer defaults to DefaultEventBuffer.
	EventBuffer int

	// AutoReconnect redials whenever the socket drops, until Close is called.
	AutoReconnect bool

	// ReconnectDelay defaults to DefaultReconnectDelay.
	ReconnectDelay time.Duration
}

// Client is safe for concurrent use.
type Client struct {
	opts Options

	events chan chat.Envelope

	// mu guards conn, stop, room and closed; writeMu serializes writes on conn.
	mu      sync.Mutex
	writeMu sync.Mutex
	conn    *websocket.Conn
	readers sync.WaitGroup
	room    string
	closed  bool

	// stop is closed to release the read loop of the current conn.
	stop chan struct{}

	// reconnectMu serializes Reconnect calls.
	reconnectMu sync.Mutex

	done chan struct{}

	logger zerolog.Logger
}

// Dial connects to the relay and registers opts.Username.
func Dial(ctx context.Context, opts Options) (*Client, error) {
	if opts.URL == "" || opts.Username == "" {
		return nil, errors.New("client: URL and Username are required")
	}
	if opts.Dialer == nil {
		opts.Dialer = websocket.DefaultDialer
	}
	if opts.EventBuffer <= 0 {
		opts.EventBuffer = DefaultEventBuffer
	}
	if opts.ReconnectDelay <= 0 {
		opts.ReconnectDelay = DefaultReconnectDelay
	}

	c := &Client{
		opts:   opts,
		events: make(chan chat.Envelope, opts.EventBuffer),
		done:   make(chan struct{}),
		logger: logx.Component("client").With().Str("username", opts.Username).Logger(),
	}

	if err := c.connect(ctx); err != nil {
		return nil, err
	}

	return c, nil
}

// Events delivers every frame received from the relay. It is never closed; select on
// Done to notice shutdown.
func (c *Client) Events() <-chan chat.Envelope {
	return c.events
}

// Done is closed once Close has been called.
func (c *Client) Done() <-chan struct{} {
	return c.done
}

// Username returns the registered display name.
func (c *Client) Username() string {
	return c.opts.Username
}

// Join requests a move into room and remembers it for Reconnect.
func (c *Client) Join(room string) error {
	c.mu.Lock()
	c.room = room
	c.mu.Unlock()

	return c.emit(chat.EventJoinRoom, chat.JoinRoom{Room: room})
}

// Say posts text to the current room.
func (c *Client) Say(text string) error {
	return c.emit(chat.EventChatMessage, chat.ChatMessage{Text: text})
}

// Edit replaces the text of one of this user's messages.
func (c *Client) Edit(messageID int64, newText string) error {
	return c.emit(chat.EventEditMessage, chat.EditMessage{MessageID: messageID, NewText: newText})
}

// Delete removes one of this user's messages.
func (c *Client) Delete(messageID int64) error {
	return c.emit(chat.EventDeleteMessage, chat.DeleteMessage{MessageID: messageID})
}

// SetTyping sends typing or stopTyping.
func (c *Client) SetTyping(typing bool) error {
	if typing {
		return c.emit(chat.EventTyping, nil)
	}
	return c.emit(chat.EventStopTyping, nil)
}

// Reconnect drops the current socket, dials again and restores the registration and
// room. The relay treats it as a brand new connection.
func (c *Client) Reconnect(ctx context.Context) error {
	c.reconnectMu.Lock()
	defer c.reconnectMu.Unlock()

	c.mu.Lock()
	if c.closed {
		c.mu.Unlock()
		return ErrClosed
	}
	old, stop := c.conn, c.stop
	c.stop = nil
	c.mu.Unlock()

	if stop != nil {
		close(stop)
	}
	if old != nil {
		_ = old.Close()
	}
	if err := c.waitReaders(ctx); err != nil {
		return err
	}

	if err := c.connect(ctx); err != nil {
		return err
	}

	c.mu.Lock()
	room := c.room
	c.mu.Unlock()

	if room == "" {
		return nil
	}
	return c.emit(chat.EventJoinRoom, chat.JoinRoom{Room: room})
}

// Close sends a close frame and releases the connection.
func (c *Client) Close() error {
	c.mu.Lock()
	if c.closed {
		c.mu.Unlock()
		return nil
	}
	c.closed = true
	conn := c.conn
	close(c.done)
	c.mu.Unlock()

	c.writeMu.Lock()
	_ = conn.WriteControl(websocket.CloseMessage,
		websocket.FormatCloseMessage(websocket.CloseNormalClosure, ""),
		time.Now().Add(writeWait))
	c.writeMu.Unlock()

	err := conn.Close()
	c.readers.Wait()
	return err
}

func (c *Client) connect(ctx context.Context) error {
	conn, _, err := c.opts.Dialer.DialContext(ctx, c.opts.URL, c.opts.Header)
	if err != nil {
		return fmt.Errorf("client: dial %s: %w", c.opts.URL, err)
	}

	stop := make(chan struct{})

	c.mu.Lock()
	if c.closed {
		c.mu.Unlock()
		_ = conn.Close()
		return ErrClosed
	}
	c.conn = conn
	c.stop = stop
	c.readers.Add(1)
	c.mu.Unlock()

	go c.readLoop(conn, stop)

	return c.emit(chat.EventRegisterUser, chat.RegisterUser{Username: c.opts.Username})
}

func (c *Client) waitReaders(ctx context.Context) error {
	finished := make(chan struct{})
	go func() {
		c.readers.Wait()
		close(finished)
	}()

	select {
	case <-finished:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}

// readLoop forwards frames from conn until it fails or stop is closed. An unexpected
// failure starts the redial loop when AutoReconnect is set.
func (c *Client) readLoop(conn *websocket.Conn, stop <-chan struct{}) {
	dropped := c.read(conn, stop)
	c.readers.Done()

	if dropped && c.opts.AutoReconnect {
		go c.redial()
	}
}

// read reports whether the loop ended because the socket dropped, as opposed to being
// stopped by Reconnect or Close.
func (c *Client) read(conn *websocket.Conn, stop <-chan struct{}) bool {
	for {
		_, frame, err := conn.ReadMessage()
		if err != nil {
			select {
			case <-stop:
				return false
			case <-c.done:
				return false
			default:
			}
			c.logger.Debug().Err(err).Msg("Read loop stopped")
			return true
		}

		var env chat.Envelope
		if err := json.Unmarshal(frame, &env); err != nil {
			c.logger.Warn().Err(err).Msg("Relay sent an invalid frame")
			continue
		}

		select {
		case c.events <- env:
		case <-stop:
			return false
		case <-c.done:
			return false
		}
	}
}

// redial retries Reconnect every ReconnectDelay until it succeeds or the client closes.
func (c *Client) redial() {
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	go func() {
		select {
		case <-c.done:
			cancel()
		case <-ctx.Done():
		}
	}()

	for attempt := 1; ; attempt++ {
		select {
		case <-ctx.Done():
			return
		case <-time.After(c.opts.ReconnectDelay):
		}

		err := c.Reconnect(ctx)
		if err == nil {
			c.logger.Info().Int("attempt", attempt).Msg("Reconnected")
			return
		}
		if errors.Is(err, ErrClosed) {
			return
		}
		c.logger.Debug().Err(err).Int("attempt", attempt).Msg("Reconnect failed, retrying")
	}
}

func (c *Client) emit(t chat.EventType, payload any) error {
	var (
		frame []byte
		err   error
	)
	if payload == nil {
		frame, err = json.Marshal(chat.Envelope{Type: t})
	} else {
		frame, err = chat.EncodeEvent(t, payload)
	}
	if err != nil {
		return fmt.Errorf("client: encode %s: %w", t, err)
	}

	c.mu.Lock()
	conn, closed := c.conn, c.closed
	c.mu.Unlock()

	if closed {
		return ErrClosed
	}

	c.writeMu.Lock()
	defer c.writeMu.Unlock()

	if err := conn.SetWriteDeadline(time.Now().Add(writeWait)); err != nil {
		return err
	}
	return conn.WriteMessage(websocket.TextMessage, frame)
}

// Decode unmarshals the payload of env into T.
func Decode[T any](env chat.Envelope) (T, error) {
	var payload T
	if err := json.Unmarshal(env.Payload, &payload); err != nil {
		return payload, fmt.Errorf("client: decode %s: %w", env.Type, err)
	}
	return payload, nil
}
