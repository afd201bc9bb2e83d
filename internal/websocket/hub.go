// Attune - Customer Interaction Ingestion and Sentiment Analytics
// Copyright 2026 M. Reyes (attune-cx)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/attune-cx/attune

// Package websocket implements tenant-scoped real-time fan-out of
// ingestion events. Every connection is authenticated before the upgrade
// and joined to its principal's tenant room; events published for one
// tenant are never visible to another.
package websocket

import (
	"context"
	"sort"
	"sync"

	"github.com/attune-cx/attune/internal/logging"
	"github.com/attune-cx/attune/internal/metrics"
	"github.com/attune-cx/attune/internal/models"
)

// Message types for WebSocket communication.
const (
	MessageTypeInteraction = "interaction.created"
	MessageTypePing        = "ping"
	MessageTypePong        = "pong"
)

// Message is the WebSocket frame envelope.
type Message struct {
	Type string `json:"type"`
	Data any    `json:"data"`
}

// tenantMessage routes a message to one tenant's room.
type tenantMessage struct {
	tenantID string
	message  Message
}

// Hub maintains the set of active clients grouped by tenant and fans
// events out to the right room.
type Hub struct {
	rooms      map[string]map[*Client]bool
	broadcast  chan tenantMessage
	Register   chan *Client
	Unregister chan *Client
	mu         sync.RWMutex
}

// NewHub creates an empty hub.
func NewHub() *Hub {
	return &Hub{
		rooms:      make(map[string]map[*Client]bool),
		broadcast:  make(chan tenantMessage, 256),
		Register:   make(chan *Client),
		Unregister: make(chan *Client),
	}
}

// BroadcastToTenant publishes an ingestion event to the tenant's room.
// Never blocks the caller: if the hub's queue is full the event is dropped
// and counted, because ingestion latency outranks fan-out completeness.
func (h *Hub) BroadcastToTenant(tenantID string, event models.InteractionCreatedEvent) {
	msg := tenantMessage{
		tenantID: tenantID,
		message:  Message{Type: MessageTypeInteraction, Data: event},
	}
	select {
	case h.broadcast <- msg:
	default:
		metrics.WSMessagesDropped.Inc()
		logging.Warn().Str("tenant_id", tenantID).Msg("Fan-out queue full, event dropped")
	}
}

// RunWithContext runs the hub until the context is canceled, then closes
// every client. Lifecycle events are drained before broadcasts so a
// departing client never receives a post-unregister message.
func (h *Hub) RunWithContext(ctx context.Context) error {
	for {
		select {
		case <-ctx.Done():
			h.shutdown()
			return ctx.Err()
		default:
		}

		select {
		case client := <-h.Register:
			h.add(client)
			continue
		case client := <-h.Unregister:
			h.remove(client)
			continue
		default:
		}

		select {
		case <-ctx.Done():
			h.shutdown()
			return ctx.Err()
		case client := <-h.Register:
			h.add(client)
		case client := <-h.Unregister:
			h.remove(client)
		case msg := <-h.broadcast:
			h.deliver(msg)
		}
	}
}

func (h *Hub) add(client *Client) {
	h.mu.Lock()
	room, ok := h.rooms[client.tenantID]
	if !ok {
		room = make(map[*Client]bool)
		h.rooms[client.tenantID] = room
	}
	room[client] = true
	total := h.clientCountLocked()
	h.mu.Unlock()

	metrics.WSConnections.Inc()
	logging.Info().
		Str("tenant_id", client.tenantID).
		Int("total_clients", total).
		Msg("WebSocket client connected")
}

func (h *Hub) remove(client *Client) {
	h.mu.Lock()
	room, ok := h.rooms[client.tenantID]
	if ok {
		if _, present := room[client]; present {
			delete(room, client)
			close(client.send)
			metrics.WSConnections.Dec()
		}
		if len(room) == 0 {
			delete(h.rooms, client.tenantID)
		}
	}
	total := h.clientCountLocked()
	h.mu.Unlock()

	logging.Info().
		Str("tenant_id", client.tenantID).
		Int("total_clients", total).
		Msg("WebSocket client disconnected")
}

// deliver sends a message to every client of one tenant room in id order.
// A client whose buffer is full is dropped; a subscriber that cannot keep
// up must not stall the others.
func (h *Hub) deliver(msg tenantMessage) {
	h.mu.Lock()
	defer h.mu.Unlock()

	room := h.rooms[msg.tenantID]
	if len(room) == 0 {
		return
	}

	clients := make([]*Client, 0, len(room))
	for client := range room {
		clients = append(clients, client)
	}
	sort.Slice(clients, func(i, j int) bool {
		return clients[i].id < clients[j].id
	})

	var toRemove []*Client
	for _, client := range clients {
		select {
		case client.send <- msg.message:
			metrics.WSMessagesSent.Inc()
		default:
			toRemove = append(toRemove, client)
		}
	}

	for _, client := range toRemove {
		close(client.send)
		delete(room, client)
		metrics.WSConnections.Dec()
		metrics.WSMessagesDropped.Inc()
		logging.Warn().
			Str("tenant_id", msg.tenantID).
			Msg("Slow WebSocket client dropped")
	}
	if len(room) == 0 {
		delete(h.rooms, msg.tenantID)
	}
}

func (h *Hub) shutdown() {
	h.mu.Lock()
	closed := 0
	for tenantID, room := range h.rooms {
		for client := range room {
			close(client.send)
			closed++
		}
		delete(h.rooms, tenantID)
	}
	h.mu.Unlock()

	metrics.WSConnections.Set(0)
	logging.Info().
		Str("component", "websocket-hub").
		Int("clients_closed", closed).
		Msg("WebSocket hub stopped")
}

// ClientCount returns the number of connected clients across all tenants.
func (h *Hub) ClientCount() int {
	h.mu.RLock()
	defer h.mu.RUnlock()
	return h.clientCountLocked()
}

// TenantClientCount returns the number of clients in one tenant's room.
func (h *Hub) TenantClientCount(tenantID string) int {
	h.mu.RLock()
	defer h.mu.RUnlock()
	return len(h.rooms[tenantID])
}

func (h *Hub) clientCountLocked() int {
	n := 0
	for _, room := range h.rooms {
		n += len(room)
	}
	return n
}
