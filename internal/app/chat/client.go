package chat

import (
	"sync"
	"time"

	"github.com/gorilla/websocket"
	"github.com/rs/zerolog"

	"roomrelay/internal/pkg/errs"
	"roomrelay/internal/pkg/logx"
)

const (
	// timeout for a single write to the WebSocket.
	writeWait = 10 * time.Second

	// how long the server waits for a Pong before giving up on the client.
	pongWait = 60 * time.Second

	// how often the server pings; must be shorter than pongWait.
	pingPeriod = (pongWait * 9) / 10

	// maximum inbound frame size in bytes. Message text is capped separately.
	maxFrameSize = 16 * 1024

	// DefaultSendQueueSize is the per-connection outbound buffer, in frames.
	DefaultSendQueueSize = 256
)

// Client is the WebSocket side of one connection. It decodes inbound frames, dispatches
// them to the Hub and writes queued outbound frames. It implements Sender.
type Client struct {
	hub *Hub

	conn *websocket.Conn

	session *Connection

	// send queues encoded frames for WritePump. It is never closed; done signals shutdown.
	send chan []byte

	done      chan struct{}
	closeOnce sync.Once

	logger zerolog.Logger
}

// NewClient wraps a WebSocket as connection id and attaches it to hub.
func NewClient(hub *Hub, wsConn *websocket.Conn, id string, queueSize int) *Client {
	if queueSize <= 0 {
		queueSize = DefaultSendQueueSize
	}

	c := &Client{
		hub:  hub,
		conn: wsConn,
		send: make(chan []byte, queueSize),
		done: make(chan struct{}),
		logger: logx.Logger().With().
			Str("socket_id", id).
			Logger(),
	}
	c.session = NewConnection(id, c)
	hub.Connect(c.session)

	return c
}

// Session returns the hub-side connection.
func (c *Client) Session() *Connection {
	return c.session
}

// Send queues frame without blocking. A client that cannot keep up is disconnected
// rather than allowed to hold up the rest of its room.
func (c *Client) Send(frame []byte) bool {
	select {
	case <-c.done:
		return false
	default:
	}

	select {
	case c.send <- frame:
		return true
	default:
		c.logger.Warn().Int("queue_len", len(c.send)).Msg("Client send queue full, disconnecting.")
		c.Close()
		return false
	}
}

// Close stops WritePump, which closes the socket; ReadPump then runs the disconnect path.
func (c *Client) Close() {
	c.closeOnce.Do(func() {
		close(c.done)
	})
}

// ReadPump reads frames until the connection fails, then unregisters the connection
// from the hub before returning. Run it on the goroutine that owns the connection.
func (c *Client) ReadPump() {
	defer c.cleanupOnDisconnect()

	c.conn.SetReadLimit(maxFrameSize)

	if err := c.conn.SetReadDeadline(time.Now().Add(pongWait)); err != nil {
		c.logger.Error().Err(err).Msg("Failed to set read deadline")
		return
	}

	c.conn.SetPongHandler(func(string) error {
		return c.conn.SetReadDeadline(time.Now().Add(pongWait))
	})

	for {
		msgType, frame, err := c.conn.ReadMessage()
		if err != nil {
			if websocket.IsUnexpectedCloseError(err, websocket.CloseGoingAway, websocket.CloseNormalClosure) {
				c.logger.Info().Err(err).Msg("Connection closed unexpectedly")
			}
			return
		}

		if msgType != websocket.TextMessage {
			c.logger.Debug().Int("frame_type", msgType).Msg("Ignoring non-text frame")
			continue
		}

		c.dispatch(frame)
	}
}

// cleanupOnDisconnect runs the hub's disconnect path synchronously, so the connection's
// roster entries are gone before this goroutine exits.
func (c *Client) cleanupOnDisconnect() {
	c.hub.Unregister(c.session)
	c.Close()

	if err := c.conn.Close(); err != nil {
		c.logger.Debug().Err(err).Msg("Connection close error")
	}
}

// dispatch routes one inbound frame. Rejected events are logged and otherwise ignored.
func (c *Client) dispatch(frame []byte) {
	event, decodeErr := DecodeInbound(frame)
	if decodeErr != nil {
		c.logger.Warn().
			Int("code", decodeErr.Code).
			Int("frame_bytes", len(frame)).
			Msg(decodeErr.Message)
		return
	}

	var err *errs.CustomError

	switch e := event.(type) {
	case RegisterUser:
		err = c.hub.Register(c.session, e.Username)
	case JoinRoom:
		err = c.hub.Join(c.session, e.Room)
	case ChatMessage:
		_, err = c.hub.Chat(c.session, e.Text)
	case EditMessage:
		_, err = c.hub.Edit(c.session, e.MessageID, e.NewText)
	case DeleteMessage:
		err = c.hub.Delete(c.session, e.MessageID)
	case StartTyping:
		err = c.hub.Typing(c.session, true)
	case StopTyping:
		err = c.hub.Typing(c.session, false)
	}

	if err != nil {
		c.logger.Debug().
			Str("event", string(event.EventType())).
			Int("code", err.Code).
			Msg(err.Message)
	}
}

// WritePump writes queued frames and keeps the connection alive with pings. It owns
// all writes to the socket.
func (c *Client) WritePump() {
	ticker := time.NewTicker(pingPeriod)

	defer func() {
		ticker.Stop()

		if err := c.conn.Close(); err != nil {
			c.logger.Debug().Err(err).Msg("Connection close error in WritePump")
		}
	}()

	for {
		select {
		case frame := <-c.send:
			if !c.write(websocket.TextMessage, frame) {
				return
			}

		case <-ticker.C:
			if !c.write(websocket.PingMessage, nil) {
				return
			}

		case <-c.done:
			c.writeClose()
			return
		}
	}
}

func (c *Client) write(messageType int, data []byte) bool {
	if err := c.conn.SetWriteDeadline(time.Now().Add(writeWait)); err != nil {
		c.logger.Error().Err(err).Msg("Failed to set write deadline")
		return false
	}

	if err := c.conn.WriteMessage(messageType, data); err != nil {
		c.logger.Debug().Err(err).Int("message_type", messageType).Msg("Error writing to connection")
		return false
	}

	return true
}

func (c *Client) writeClose() {
	msg := websocket.FormatCloseMessage(websocket.CloseGoingAway, "server closing connection")
	if err := c.conn.WriteControl(websocket.CloseMessage, msg, time.Now().Add(writeWait)); err != nil {
		c.logger.Debug().Err(err).Msg("Failed to write close frame")
	}
}
