package server

import (
	"log"
	"sync"
)

// ChannelManager manages the per-map channels.
type ChannelManager struct {
	channels      map[string]*Channel
	channelsMutex sync.RWMutex
}

// NewChannelManager creates a manager with a channel for each given map.
func NewChannelManager(mapIDs ...string) *ChannelManager {
	cm := &ChannelManager{channels: make(map[string]*Channel)}
	for _, id := range mapIDs {
		cm.getOrCreateChannel(id)
	}
	return cm
}

func (cm *ChannelManager) getOrCreateChannel(mapID string) *Channel {
	cm.channelsMutex.RLock()
	ch, exists := cm.channels[mapID]
	cm.channelsMutex.RUnlock()

	if !exists {
		cm.channelsMutex.Lock()
		// Double check after acquiring write lock
		ch, exists = cm.channels[mapID]
		if !exists {
			log.Printf("Creating new channel: %s", mapID)
			ch = NewChannel(mapID)
			cm.channels[mapID] = ch
		}
		cm.channelsMutex.Unlock()
	}
	return ch
}

// AddClientToChannel subscribes a client to a map's channel.
func (cm *ChannelManager) AddClientToChannel(client *WebSocketClient, mapID string) {
	cm.getOrCreateChannel(mapID).AddClient(client)
}

// RemoveClientFromChannel unsubscribes a client from its current channel.
func (cm *ChannelManager) RemoveClientFromChannel(client *WebSocketClient) {
	if client.MapID == "" {
		return
	}
	if ch, exists := cm.GetChannel(client.MapID); exists {
		ch.RemoveClient(client)
	}
}

// SwitchClientChannel moves a client from its current channel to a new one.
func (cm *ChannelManager) SwitchClientChannel(client *WebSocketClient, mapID string) {
	cm.RemoveClientFromChannel(client)
	cm.AddClientToChannel(client, mapID)
	log.Printf("Client %s switched to channel %s", client.agentID, mapID)
}

func (cm *ChannelManager) GetChannel(mapID string) (*Channel, bool) {
	cm.channelsMutex.RLock()
	defer cm.channelsMutex.RUnlock()
	ch, exists := cm.channels[mapID]
	return ch, exists
}

// CloseAllChannels drops every subscription.
func (cm *ChannelManager) CloseAllChannels() {
	cm.channelsMutex.Lock()
	defer cm.channelsMutex.Unlock()
	for _, ch := range cm.channels {
		ch.Close()
	}
	log.Println("All channels closed.")
}
