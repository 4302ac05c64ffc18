package server

import (
	"encoding/json"
	"log"
	"sync"

	"cyberia-pathway/pathfinding"
)

const (
	// maxEventHistory defines the maximum number of path events kept per map.
	maxEventHistory = 100
)

// Channel groups the websocket clients watching one map. It keeps a short
// history of path events so late joiners can catch up.
type Channel struct {
	ID                string
	clients           map[*WebSocketClient]bool
	clientsMutex      sync.RWMutex
	eventHistory      []pathfinding.Event
	eventHistoryMutex sync.RWMutex
}

// NewChannel creates an empty channel for a map.
func NewChannel(id string) *Channel {
	return &Channel{
		ID:           id,
		clients:      make(map[*WebSocketClient]bool),
		eventHistory: make([]pathfinding.Event, 0, maxEventHistory),
	}
}

// AddClient subscribes a client and sends it the recent event history.
func (c *Channel) AddClient(client *WebSocketClient) {
	c.clientsMutex.Lock()
	c.clients[client] = true
	c.clientsMutex.Unlock()

	client.MapID = c.ID
	log.Printf("Channel %s: Client %s joined.", c.ID, client.agentID)
	c.sendEventHistoryToClient(client)
}

// RemoveClient unsubscribes a client. It reports whether the client was
// subscribed.
func (c *Channel) RemoveClient(client *WebSocketClient) bool {
	c.clientsMutex.Lock()
	defer c.clientsMutex.Unlock()
	if _, exists := c.clients[client]; !exists {
		return false
	}
	delete(c.clients, client)
	log.Printf("Channel %s: Client %s left.", c.ID, client.agentID)
	return true
}

// ClientCount returns the number of subscribed clients.
func (c *Channel) ClientCount() int {
	c.clientsMutex.RLock()
	defer c.clientsMutex.RUnlock()
	return len(c.clients)
}

// Broadcast sends a message to every subscribed client. Clients whose send
// buffer is full are disconnected.
func (c *Channel) Broadcast(msg any) {
	c.clientsMutex.RLock()
	defer c.clientsMutex.RUnlock()
	if len(c.clients) == 0 {
		return
	}

	payload, err := json.Marshal(msg)
	if err != nil {
		log.Printf("Channel %s: ERROR marshaling broadcast: %v", c.ID, err)
		return
	}
	for client := range c.clients {
		select {
		case client.send <- payload:
		default:
			log.Printf("Channel %s: WARNING Client %s send buffer full, disconnecting.", c.ID, client.agentID)
			client.Kick()
		}
	}
}

// PublishEvent records a path event and broadcasts it.
func (c *Channel) PublishEvent(ev pathfinding.Event) {
	c.eventHistoryMutex.Lock()
	c.eventHistory = append(c.eventHistory, ev)
	if len(c.eventHistory) > maxEventHistory {
		c.eventHistory = c.eventHistory[len(c.eventHistory)-maxEventHistory:]
	}
	c.eventHistoryMutex.Unlock()

	c.Broadcast(pathEventMessage{Type: "path_event", MapID: c.ID, Event: ev})
}

// EventHistory returns a copy of the recorded events, oldest first.
func (c *Channel) EventHistory() []pathfinding.Event {
	c.eventHistoryMutex.RLock()
	defer c.eventHistoryMutex.RUnlock()
	return append([]pathfinding.Event(nil), c.eventHistory...)
}

func (c *Channel) sendEventHistoryToClient(client *WebSocketClient) {
	history := c.EventHistory()
	if len(history) == 0 {
		return
	}
	payload, err := json.Marshal(map[string]any{
		"type":   "event_history",
		"map_id": c.ID,
		"events": history,
	})
	if err != nil {
		log.Printf("Channel %s: ERROR marshaling event history for client %s: %v", c.ID, client.agentID, err)
		return
	}
	select {
	case client.send <- payload:
	default:
		log.Printf("Channel %s: WARNING Client %s send buffer full when sending event history.", c.ID, client.agentID)
	}
}

// Close drops every subscription.
func (c *Channel) Close() {
	c.clientsMutex.Lock()
	c.clients = make(map[*WebSocketClient]bool)
	c.clientsMutex.Unlock()
	log.Printf("Channel %s: Closed.", c.ID)
}
