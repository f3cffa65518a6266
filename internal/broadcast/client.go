package broadcast

import (
	"log"
	"sync"
	"time"

	"github.com/gorilla/websocket"
	"github.com/studyhive/studyroom/internal/types"
)

const (
	writeWait      = 10 * time.Second
	pongWait       = 60 * time.Second
	pingInterval   = (pongWait * 9) / 10
	maxMessageSize = 4096
)

// ConnHandler is what a Client reports to: inbound frames go to Relay,
// connection teardown to Disconnect. The room coordinator implements it.
type ConnHandler interface {
	Relay(roomCode string, raw []byte, sender *Client)
	Disconnect(client *Client)
}

// Client wraps one live websocket connection subscribed to a single room.
type Client struct {
	conn     *websocket.Conn
	handler  ConnHandler
	log      *log.Logger
	user     types.User
	roomCode string
	send     chan []byte
	stop     chan struct{}
	stopOnce sync.Once
}

func NewClient(user types.User, roomCode string, conn *websocket.Conn, handler ConnHandler, l *log.Logger) *Client {
	return &Client{
		conn:     conn,
		handler:  handler,
		log:      l,
		user:     user,
		roomCode: roomCode,
		send:     make(chan []byte, 256),
		stop:     make(chan struct{}),
	}
}

func (c *Client) User() types.User {
	return c.user
}

func (c *Client) RoomCode() string {
	return c.roomCode
}

func (c *Client) Write() {
	ticker := time.NewTicker(pingInterval)
	defer func() {
		ticker.Stop()
		c.conn.Close()
		c.log.Println("write exiting")
	}()

	for {
		select {
		case msg, ok := <-c.send:
			if !ok {
				return
			}

			if !c.sendMessage(websocket.TextMessage, msg) {
				return
			}
		case <-c.stop:
			return
		case <-ticker.C:
			if !c.sendMessage(websocket.PingMessage, nil) {
				return
			}
		}
	}
}

func (c *Client) Read() {
	defer func() {
		c.conn.Close()
		c.cleanup()
		c.log.Println("read exiting")
	}()

	c.conn.SetReadLimit(maxMessageSize)
	c.conn.SetReadDeadline(time.Now().Add(pongWait))
	c.conn.SetPongHandler(func(appData string) error { c.conn.SetReadDeadline(time.Now().Add(pongWait)); return nil })
	for {
		_, raw, err := c.conn.ReadMessage()
		if err != nil {
			if websocket.IsUnexpectedCloseError(err, websocket.CloseGoingAway, websocket.CloseAbnormalClosure,
				websocket.CloseNormalClosure) {
				c.log.Printf("ws: read: %v", err)
			}
			break
		}

		c.handler.Relay(c.roomCode, raw, c)
	}
}

// queueMessage enqueues an outbound frame without blocking. A slow peer with
// a full buffer loses the frame rather than stalling the room.
func (c *Client) queueMessage(msg []byte) bool {
	select {
	case c.send <- msg:
	default:
		c.log.Printf("dropping frame for %q, send buffer full", c.user.Username)
		return false
	}

	return true
}

func (c *Client) sendMessage(msgType int, msg []byte) bool {
	c.conn.SetWriteDeadline(time.Now().Add(writeWait))

	if err := c.conn.WriteMessage(msgType, msg); err != nil {
		if websocket.IsUnexpectedCloseError(err, websocket.CloseGoingAway, websocket.CloseAbnormalClosure,
			websocket.CloseNormalClosure) {
			c.log.Printf("write message: %s", err)
		}
		return false
	}

	return true
}

// Stop signals the write pump to exit. Both the read pump's cleanup and
// Caster.Shutdown call it, so it must tolerate being called twice.
func (c *Client) Stop() {
	c.stopOnce.Do(func() {
		close(c.stop)
	})
}

func (c *Client) cleanup() {
	c.handler.Disconnect(c)
	c.Stop()
}
