package server

import (
	"encoding/json"
	"log"
)

// clientMessage represents the generic structure of messages from the client.
type clientMessage struct {
	Type string          `json:"type"`
	Data json.RawMessage `json:"data"`
}

// moveRequestData is the payload of a "move_request". An empty agent ID
// means the client's own agent.
type moveRequestData struct {
	AgentID string `json:"agent_id"`
	MoveRequest
}

type stopRequestData struct {
	AgentID string `json:"agent_id"`
}

type switchMapData struct {
	MapID string `json:"map_id"`
}

// handleClientMessage processes incoming JSON messages from a specific client.
func (s *Server) handleClientMessage(client *WebSocketClient, message []byte) {
	var msg clientMessage
	if err := json.Unmarshal(message, &msg); err != nil {
		log.Printf("Client %s: ERROR unmarshaling incoming message: %v", client.agentID, err)
		client.reply(errorMessage{Type: "error", Text: "malformed message"})
		return
	}

	switch msg.Type {
	case "move_request":
		var data moveRequestData
		if err := json.Unmarshal(msg.Data, &data); err != nil {
			log.Printf("Client %s: ERROR unmarshaling move request data: %v", client.agentID, err)
			client.reply(errorMessage{Type: "error", Text: "malformed move_request"})
			return
		}
		s.processMoveRequest(client, data)
	case "stop_request":
		var data stopRequestData
		if len(msg.Data) > 0 {
			if err := json.Unmarshal(msg.Data, &data); err != nil {
				log.Printf("Client %s: ERROR unmarshaling stop request data: %v", client.agentID, err)
				client.reply(errorMessage{Type: "error", Text: "malformed stop_request"})
				return
			}
		}
		if data.AgentID == "" {
			data.AgentID = client.agentID
		}
		if err := s.Stop(data.AgentID); err != nil {
			client.reply(errorMessage{Type: "error", Text: err.Error()})
		}
	case "switch_map":
		var data switchMapData
		if err := json.Unmarshal(msg.Data, &data); err != nil || data.MapID == "" {
			client.reply(errorMessage{Type: "error", Text: "malformed switch_map"})
			return
		}
		s.processSwitchMap(client, data.MapID)
	default:
		log.Printf("Client %s: WARNING unknown message type '%s'.", client.agentID, msg.Type)
		client.reply(errorMessage{Type: "error", Text: "unknown message type " + msg.Type})
	}
}

func (s *Server) processMoveRequest(client *WebSocketClient, data moveRequestData) {
	if data.AgentID == "" {
		data.AgentID = client.agentID
	}
	pathID, err := s.Move(data.AgentID, data.MoveRequest)
	if err != nil {
		log.Printf("WARNING: move request for %s to (%.0f,%.0f) rejected: %v", data.AgentID, data.X, data.Y, err)
		client.reply(errorMessage{Type: "error", Text: err.Error()})
		return
	}
	client.reply(map[string]any{
		"type":     "move_accepted",
		"agent_id": data.AgentID,
		"path_id":  pathID,
	})
}

// processSwitchMap moves the client's agent to another map and subscribes
// the client to that map's channel.
func (s *Server) processSwitchMap(client *WebSocketClient, mapID string) {
	view, err := s.Relocate(client.agentID, mapID)
	if err != nil {
		client.reply(errorMessage{Type: "error", Text: err.Error()})
		return
	}
	s.channels.SwitchClientChannel(client, mapID)
	client.reply(map[string]any{
		"type":     "agent_assigned",
		"agent_id": view.ID,
		"map_id":   view.MapID,
		"x":        view.Position.X,
		"y":        view.Position.Y,
	})
}

// reply queues a message for this client only.
func (c *WebSocketClient) reply(msg any) {
	payload, err := json.Marshal(msg)
	if err != nil {
		log.Printf("Client %s: ERROR marshaling reply: %v", c.agentID, err)
		return
	}
	select {
	case c.send <- payload:
	default:
		log.Printf("WARNING: Failed to send reply to client %s (send channel full).", c.agentID)
	}
}
