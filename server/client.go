package server

import (
	"log"
	"sync"
	"time"

	"github.com/gorilla/websocket"
)

const (
	// WebSocket heartbeat settings to detect disconnected clients
	PING_INTERVAL = 10 * time.Second // Frequency of sending ping messages
	PONG_WAIT     = 60 * time.Second // Time to wait for a pong response before considering client disconnected
	WRITE_WAIT    = 10 * time.Second
)

// WebSocketClient represents a single connected client and the agent it
// controls.
type WebSocketClient struct {
	conn    *websocket.Conn
	send    chan []byte // outgoing messages, closed on unregister
	agentID string
	MapID   string // channel the client is subscribed to
	done    chan struct{}
	kick    sync.Once
}

// NewWebSocketClient creates and returns a new WebSocketClient instance.
func NewWebSocketClient(conn *websocket.Conn, agentID string) *WebSocketClient {
	return &WebSocketClient{
		conn:    conn,
		send:    make(chan []byte, 256),
		agentID: agentID,
		done:    make(chan struct{}),
	}
}

// AgentID returns the agent the client controls.
func (c *WebSocketClient) AgentID() string { return c.agentID }

// Kick closes the connection, which ends ReadPump and unregisters the client.
func (c *WebSocketClient) Kick() {
	c.kick.Do(func() { _ = c.conn.Close() })
}

// ReadPump continuously reads messages from the WebSocket connection.
// It handles disconnection detection and signals the WritePump to terminate.
func (c *WebSocketClient) ReadPump(server *Server) {
	defer func() {
		server.unregisterClient(c)
		close(c.done)
		c.Kick()
	}()

	c.conn.SetReadDeadline(time.Now().Add(PONG_WAIT))
	c.conn.SetPongHandler(func(string) error {
		c.conn.SetReadDeadline(time.Now().Add(PONG_WAIT))
		return nil
	})

	for {
		_, message, err := c.conn.ReadMessage()
		if err != nil {
			if websocket.IsUnexpectedCloseError(err, websocket.CloseGoingAway, websocket.CloseNormalClosure) {
				log.Printf("Client %s: Unexpected WebSocket close error: %v", c.agentID, err)
			}
			break
		}
		server.handleClientMessage(c, message)
	}
}

// WritePump continuously sends messages from the 'send' channel to the WebSocket connection.
// It also sends periodic pings for heartbeat and terminates gracefully on signal.
func (c *WebSocketClient) WritePump() {
	ticker := time.NewTicker(PING_INTERVAL)
	defer func() {
		ticker.Stop()
		c.Kick()
	}()

	for {
		select {
		case message, ok := <-c.send:
			c.conn.SetWriteDeadline(time.Now().Add(WRITE_WAIT))
			if !ok {
				// The 'send' channel was closed, indicating client unregistration.
				c.conn.WriteMessage(websocket.CloseMessage, []byte{})
				return
			}
			if err := c.conn.WriteMessage(websocket.TextMessage, message); err != nil {
				log.Printf("Client %s: Error sending message: %v", c.agentID, err)
				return
			}

		case <-ticker.C:
			c.conn.SetWriteDeadline(time.Now().Add(WRITE_WAIT))
			if err := c.conn.WriteMessage(websocket.PingMessage, nil); err != nil {
				log.Printf("Client %s: Error sending ping: %v", c.agentID, err)
				return
			}
		case <-c.done:
			err := c.conn.WriteMessage(websocket.CloseMessage, websocket.FormatCloseMessage(websocket.CloseNormalClosure, ""))
			if err != nil && err != websocket.ErrCloseSent {
				log.Printf("Client %s: Error sending final close message: %v", c.agentID, err)
			}
			return
		}
	}
}
