package hub

import (
	"encoding/json"
	"log/slog"
	"sync"
)

// MessageType represents the type of WebSocket message
type MessageType string

const (
	MessageTypeSubscribe   MessageType = "subscribe"
	MessageTypeUnsubscribe MessageType = "unsubscribe"
	MessageTypeDelivery    MessageType = "delivery"
	MessageTypeError       MessageType = "error"
)

// WSMessage represents a WebSocket message
type WSMessage struct {
	Type      MessageType `json:"type"`
	MappingID uint        `json:"mapping_id,omitempty"`
	Event     interface{} `json:"event,omitempty"`
	Error     string      `json:"error,omitempty"`
}

// DeliveryPayload is the notification sent when a message matched a routing
// rule and was delivered to its destination.
type DeliveryPayload struct {
	LoggedMailID uint   `json:"id"`
	Sender       string `json:"sender"`
	Recipient    string `json:"recipient"`
	Subject      string `json:"subject,omitempty"`
	DeliveredAt  string `json:"delivered_at"`
}

// Hub maintains the set of active clients and fans delivery notifications
// out to clients subscribed to a routing rule.
type Hub struct {
	clients map[*Client]bool

	// Rule subscriptions: mappingID -> set of clients
	subscriptions map[uint]map[*Client]bool

	register    chan *Client
	unregister  chan *Client
	subscribe   chan *subscriptionRequest
	unsubscribe chan *subscriptionRequest
	broadcast   chan *broadcastMessage

	mu     sync.RWMutex
	logger *slog.Logger
}

type subscriptionRequest struct {
	client    *Client
	mappingID uint
}

type broadcastMessage struct {
	mappingID uint
	message   []byte
}

// NewHub creates a new Hub instance
func NewHub(logger *slog.Logger) *Hub {
	if logger == nil {
		logger = slog.Default()
	}
	return &Hub{
		clients:       make(map[*Client]bool),
		subscriptions: make(map[uint]map[*Client]bool),
		register:      make(chan *Client),
		unregister:    make(chan *Client),
		subscribe:     make(chan *subscriptionRequest),
		unsubscribe:   make(chan *subscriptionRequest),
		broadcast:     make(chan *broadcastMessage, 256),
		logger:        logger,
	}
}

// Run starts the hub's main loop
func (h *Hub) Run() {
	for {
		select {
		case client := <-h.register:
			h.mu.Lock()
			h.clients[client] = true
			h.mu.Unlock()
			h.logger.Debug("client registered")

		case client := <-h.unregister:
			h.mu.Lock()
			if _, ok := h.clients[client]; ok {
				delete(h.clients, client)
				close(client.send)
				for mappingID, subscribers := range h.subscriptions {
					delete(subscribers, client)
					if len(subscribers) == 0 {
						delete(h.subscriptions, mappingID)
					}
				}
			}
			h.mu.Unlock()
			h.logger.Debug("client unregistered")

		case req := <-h.subscribe:
			h.mu.Lock()
			if h.subscriptions[req.mappingID] == nil {
				h.subscriptions[req.mappingID] = make(map[*Client]bool)
			}
			h.subscriptions[req.mappingID][req.client] = true
			h.mu.Unlock()
			h.logger.Debug("client subscribed to rule", slog.Uint64("mapping_id", uint64(req.mappingID)))

		case req := <-h.unsubscribe:
			h.mu.Lock()
			if subscribers, ok := h.subscriptions[req.mappingID]; ok {
				delete(subscribers, req.client)
				if len(subscribers) == 0 {
					delete(h.subscriptions, req.mappingID)
				}
			}
			h.mu.Unlock()
			h.logger.Debug("client unsubscribed from rule", slog.Uint64("mapping_id", uint64(req.mappingID)))

		case msg := <-h.broadcast:
			h.mu.RLock()
			subscribers := h.subscriptions[msg.mappingID]
			for client := range subscribers {
				select {
				case client.send <- msg.message:
				default:
					// Client buffer full, skip
				}
			}
			h.mu.RUnlock()
		}
	}
}

// Register adds a client to the hub
func (h *Hub) Register(client *Client) {
	h.register <- client
}

// Unregister removes a client from the hub
func (h *Hub) Unregister(client *Client) {
	h.unregister <- client
}

// Subscribe subscribes a client to a routing rule
func (h *Hub) Subscribe(client *Client, mappingID uint) {
	h.subscribe <- &subscriptionRequest{client: client, mappingID: mappingID}
}

// Unsubscribe unsubscribes a client from a routing rule
func (h *Hub) Unsubscribe(client *Client, mappingID uint) {
	h.unsubscribe <- &subscriptionRequest{client: client, mappingID: mappingID}
}

// BroadcastDelivery notifies subscribers of the rule about a completed
// delivery.
func (h *Hub) BroadcastDelivery(mappingID uint, payload *DeliveryPayload) {
	msg := WSMessage{
		Type:      MessageTypeDelivery,
		MappingID: mappingID,
		Event:     payload,
	}

	data, err := json.Marshal(msg)
	if err != nil {
		h.logger.Error("failed to marshal broadcast message", slog.Any("error", err))
		return
	}

	h.broadcast <- &broadcastMessage{
		mappingID: mappingID,
		message:   data,
	}
}
