package realtime

import (
	"context"

	"github.com/rs/zerolog"
)

// Hub manages WebSocket clients and routes progress messages by run id.
type Hub struct {
	// Registered clients
	clients map[*Client]bool

	// runID -> set of subscribed clients
	subscriptions map[string]map[*Client]bool

	register   chan *Client
	unregister chan *Client
	subscribe  chan subscribeMsg
	broadcast  chan broadcastMsg
	logger     zerolog.Logger
}

type subscribeMsg struct {
	client *Client
	runID  string
}

type broadcastMsg struct {
	runID   string
	payload []byte
}

func NewHub(logger zerolog.Logger) *Hub {
	return &Hub{
		clients:       make(map[*Client]bool),
		subscriptions: make(map[string]map[*Client]bool),
		register:      make(chan *Client),
		unregister:    make(chan *Client),
		subscribe:     make(chan subscribeMsg),
		broadcast:     make(chan broadcastMsg, 256),
		logger:        logger,
	}
}

// Run serves the hub until ctx is done.
func (h *Hub) Run(ctx context.Context) {
	for {
		select {
		case <-ctx.Done():
			for client := range h.clients {
				close(client.send)
			}
			h.clients = map[*Client]bool{}
			h.subscriptions = map[string]map[*Client]bool{}
			return

		case client := <-h.register:
			h.clients[client] = true
			h.logger.Debug().Int("clients", len(h.clients)).Msg("Client registered")

		case client := <-h.unregister:
			h.remove(client)

		case msg := <-h.subscribe:
			if _, ok := h.clients[msg.client]; !ok {
				continue
			}
			if _, ok := h.subscriptions[msg.runID]; !ok {
				h.subscriptions[msg.runID] = make(map[*Client]bool)
			}
			h.subscriptions[msg.runID][msg.client] = true
			h.logger.Debug().Str("run", msg.runID).Int("subscribers", len(h.subscriptions[msg.runID])).Msg("Client subscribed")

		case msg := <-h.broadcast:
			for client := range h.subscriptions[msg.runID] {
				select {
				case client.send <- msg.payload:
				default:
					// buffer full
					h.remove(client)
				}
			}
		}
	}
}

// Publish queues payload for the subscribers of runID.
func (h *Hub) Publish(runID string, payload []byte) {
	h.broadcast <- broadcastMsg{runID: runID, payload: payload}
}

func (h *Hub) remove(client *Client) {
	if _, ok := h.clients[client]; !ok {
		return
	}
	delete(h.clients, client)
	close(client.send)
	for runID, subs := range h.subscriptions {
		delete(subs, client)
		if len(subs) == 0 {
			delete(h.subscriptions, runID)
		}
	}
	h.logger.Debug().Int("clients", len(h.clients)).Msg("Client unregistered")
}
