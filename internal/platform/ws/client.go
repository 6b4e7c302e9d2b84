package ws

import (
	"net/http"
	"sync"

	"github.com/google/uuid"
	gorillawebsocket "github.com/gorilla/websocket"
	"github.com/labstack/echo/v4"
)

// Conn abstracts a WebSocket connection for testability.
type Conn interface {
	ReadMessage() (messageType int, p []byte, err error)
	WriteMessage(messageType int, data []byte) error
	Close() error
}

// Client represents a single WebSocket connection.
type Client struct {
	ID   string
	Send chan []byte
	conn Conn

	mu     sync.Mutex
	rooms  map[Room]struct{}
	closed bool
}

// NewClient wraps a connection in a Client with a buffered send queue.
func NewClient(conn Conn) *Client {
	return &Client{
		ID:    uuid.New().String(),
		Send:  make(chan []byte, 256),
		conn:  conn,
		rooms: make(map[Room]struct{}),
	}
}

func (c *Client) addRoom(r Room) {
	c.mu.Lock()
	c.rooms[r] = struct{}{}
	c.mu.Unlock()
}

func (c *Client) removeRoom(r Room) {
	c.mu.Lock()
	delete(c.rooms, r)
	c.mu.Unlock()
}

// takeRooms returns and clears the client's room memberships.
func (c *Client) takeRooms() []Room {
	c.mu.Lock()
	defer c.mu.Unlock()
	rooms := make([]Room, 0, len(c.rooms))
	for r := range c.rooms {
		rooms = append(rooms, r)
	}
	c.rooms = make(map[Room]struct{})
	return rooms
}

func (c *Client) closeSend() {
	c.mu.Lock()
	defer c.mu.Unlock()
	if !c.closed {
		c.closed = true
		close(c.Send)
	}
}

// WritePump drains the Send channel onto the connection. It exits when the
// channel is closed or a write fails.
func (c *Client) WritePump() {
	defer c.conn.Close()

	for message := range c.Send {
		if err := c.conn.WriteMessage(gorillawebsocket.TextMessage, message); err != nil {
			break
		}
	}
}

// ReadPump reads inbound frames until the connection drops, then disconnects
// the client from the hub. onMessage may be nil for channels where inbound
// frames are only keep-alives.
func (c *Client) ReadPump(h *Hub, onMessage func(data []byte)) {
	defer func() {
		h.Disconnect(c)
		c.conn.Close()
	}()

	for {
		_, message, err := c.conn.ReadMessage()
		if err != nil {
			break
		}
		if onMessage != nil {
			onMessage(message)
		}
	}
}

var upgrader = gorillawebsocket.Upgrader{
	ReadBufferSize:  1024,
	WriteBufferSize: 1024,
	CheckOrigin: func(r *http.Request) bool {
		return true // Allow all origins; tighten in production.
	},
}

// Upgrade performs the HTTP-to-WebSocket upgrade for an echo request and
// returns a hub-ready client.
func Upgrade(c echo.Context) (*Client, error) {
	conn, err := upgrader.Upgrade(c.Response(), c.Request(), nil)
	if err != nil {
		return nil, err
	}
	return NewClient(&gorillaConnAdapter{conn}), nil
}

// gorillaConnAdapter wraps a gorilla/websocket.Conn to satisfy the Conn interface.
type gorillaConnAdapter struct {
	conn *gorillawebsocket.Conn
}

func (a *gorillaConnAdapter) ReadMessage() (int, []byte, error) {
	return a.conn.ReadMessage()
}

func (a *gorillaConnAdapter) WriteMessage(messageType int, data []byte) error {
	return a.conn.WriteMessage(messageType, data)
}

func (a *gorillaConnAdapter) Close() error {
	return a.conn.Close()
}
