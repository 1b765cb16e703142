package sse

import (
	"fmt"
	"log"
	"sync"
)

// Event represents a Server-Sent Event
type Event struct {
	EventType string `json:"event"`
	Data      string `json:"data"`
}

// Client represents a connected SSE client
type Client struct {
	ID     string
	UserID string
	Events chan Event
}

// Hub manages all SSE client connections
type Hub struct {
	mu      sync.RWMutex
	clients map[string]*Client
}

// GlobalHub is the singleton SSE Hub instance
var GlobalHub = NewHub()

// NewHub creates a new SSE Hub
func NewHub() *Hub {
	return &Hub{
		clients: make(map[string]*Client),
	}
}

// Register adds a new client to the hub
func (h *Hub) Register(client *Client) {
	h.mu.Lock()
	defer h.mu.Unlock()
	h.clients[client.ID] = client
	log.Printf("[SSE] Client registered: id=%s user=%s (total: %d)", client.ID, client.UserID, len(h.clients))
}

// Unregister removes a client from the hub
func (h *Hub) Unregister(clientID string) {
	h.mu.Lock()
	defer h.mu.Unlock()
	if client, ok := h.clients[clientID]; ok {
		close(client.Events)
		delete(h.clients, clientID)
		log.Printf("[SSE] Client unregistered: id=%s (total: %d)", clientID, len(h.clients))
	}
}

// Broadcast sends an event to all connected clients
func (h *Hub) Broadcast(event Event) {
	h.mu.RLock()
	defer h.mu.RUnlock()
	for _, client := range h.clients {
		select {
		case client.Events <- event:
		default:
			log.Printf("[SSE] Client %s buffer full, skipping event", client.ID)
		}
	}
}

// PublishDefectUpdate sends a defect update event to all connected clients
func PublishDefectUpdate(defectID, assetID, action string) {
	data := fmt.Sprintf(`{"defect_id":"%s","asset_id":"%s","action":"%s"}`, defectID, assetID, action)
	GlobalHub.Broadcast(Event{
		EventType: "defect_update",
		Data:      data,
	})
	log.Printf("[SSE] Published defect_update: defect=%s asset=%s action=%s", defectID, assetID, action)
}

// PublishAssetUpdate sends an asset update event to all connected clients
func PublishAssetUpdate(assetID, action string) {
	data := fmt.Sprintf(`{"asset_id":"%s","action":"%s"}`, assetID, action)
	GlobalHub.Broadcast(Event{
		EventType: "asset_update",
		Data:      data,
	})
	log.Printf("[SSE] Published asset_update: asset=%s action=%s", assetID, action)
}

// PublishWorkOrderUpdate sends a work order update event to all connected clients
func PublishWorkOrderUpdate(workOrderID, assetID, action string) {
	data := fmt.Sprintf(`{"work_order_id":"%s","asset_id":"%s","action":"%s"}`, workOrderID, assetID, action)
	GlobalHub.Broadcast(Event{
		EventType: "work_order_update",
		Data:      data,
	})
	log.Printf("[SSE] Published work_order_update: work_order=%s asset=%s action=%s", workOrderID, assetID, action)
}

// SendToUser delivers an event to a specific user's clients only
func SendToUser(userID string, event Event) {
	GlobalHub.mu.RLock()
	defer GlobalHub.mu.RUnlock()
	for _, client := range GlobalHub.clients {
		if client.UserID == userID {
			select {
			case client.Events <- event:
			default:
				log.Printf("[SSE] Client %s buffer full, skipping user event", client.ID)
			}
		}
	}
}
