// Attune - Customer Interaction Ingestion and Sentiment Analytics
// Copyright 2026 M. Reyes (attune-cx)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/attune-cx/attune

package websocket

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/google/uuid"

	"github.com/attune-cx/attune/internal/models"
)

// newHubClient builds a client without a network connection; the pumps
// are never started, so tests drain client.send directly.
func newHubClient(hub *Hub, tenantID string, buffer int) *Client {
	return NewClient(hub, nil, tenantID, buffer)
}

func testEvent() models.InteractionCreatedEvent {
	return models.InteractionCreatedEvent{
		Type:          models.EventTypeInteractionCreated,
		InteractionID: uuid.New(),
		CustomerID:    "cust-1",
		Timestamp:     time.Now().UTC(),
	}
}

func TestHubTenantIsolation(t *testing.T) {
	hub := NewHub()
	clientA := newHubClient(hub, "tenant-a", 8)
	clientB := newHubClient(hub, "tenant-b", 8)
	hub.add(clientA)
	hub.add(clientB)

	event := testEvent()
	hub.deliver(tenantMessage{
		tenantID: "tenant-a",
		message:  Message{Type: MessageTypeInteraction, Data: event},
	})

	select {
	case msg := <-clientA.send:
		if msg.Type != MessageTypeInteraction {
			t.Errorf("message type = %s", msg.Type)
		}
	default:
		t.Fatal("tenant-a client received nothing")
	}

	select {
	case msg := <-clientB.send:
		t.Fatalf("tenant-b client received %v across the tenant boundary", msg)
	default:
	}
}

func TestHubDeliversToEveryRoomClient(t *testing.T) {
	hub := NewHub()
	clients := make([]*Client, 3)
	for i := range clients {
		clients[i] = newHubClient(hub, "tenant-a", 8)
		hub.add(clients[i])
	}

	hub.deliver(tenantMessage{
		tenantID: "tenant-a",
		message:  Message{Type: MessageTypeInteraction, Data: testEvent()},
	})

	for i, client := range clients {
		select {
		case <-client.send:
		default:
			t.Errorf("client %d received nothing", i)
		}
	}
}

func TestHubDropsSlowClient(t *testing.T) {
	hub := NewHub()
	slow := newHubClient(hub, "tenant-a", 1)
	fast := newHubClient(hub, "tenant-a", 8)
	hub.add(slow)
	hub.add(fast)

	// Fill the slow client's buffer, then deliver one more.
	for i := 0; i < 2; i++ {
		hub.deliver(tenantMessage{
			tenantID: "tenant-a",
			message:  Message{Type: MessageTypeInteraction, Data: testEvent()},
		})
	}

	if n := hub.TenantClientCount("tenant-a"); n != 1 {
		t.Errorf("room size = %d, want slow client dropped", n)
	}
	if _, open := <-slow.send; open {
		// One buffered message is fine; the channel must be closed after it.
		if _, open = <-slow.send; open {
			t.Error("slow client's send channel left open after drop")
		}
	}

	// The fast client keeps receiving.
	received := 0
	for {
		select {
		case <-fast.send:
			received++
			continue
		default:
		}
		break
	}
	if received != 2 {
		t.Errorf("fast client received %d messages, want 2", received)
	}
}

func TestHubClientCounts(t *testing.T) {
	hub := NewHub()
	if hub.ClientCount() != 0 {
		t.Fatalf("fresh hub ClientCount = %d", hub.ClientCount())
	}

	a1 := newHubClient(hub, "tenant-a", 8)
	a2 := newHubClient(hub, "tenant-a", 8)
	b1 := newHubClient(hub, "tenant-b", 8)
	hub.add(a1)
	hub.add(a2)
	hub.add(b1)

	if n := hub.ClientCount(); n != 3 {
		t.Errorf("ClientCount = %d, want 3", n)
	}
	if n := hub.TenantClientCount("tenant-a"); n != 2 {
		t.Errorf("TenantClientCount(tenant-a) = %d, want 2", n)
	}

	hub.remove(a1)
	hub.remove(a2)
	if n := hub.TenantClientCount("tenant-a"); n != 0 {
		t.Errorf("TenantClientCount(tenant-a) = %d after removals", n)
	}
	if n := hub.ClientCount(); n != 1 {
		t.Errorf("ClientCount = %d, want 1", n)
	}
}

func TestHubRemoveIsIdempotent(t *testing.T) {
	hub := NewHub()
	client := newHubClient(hub, "tenant-a", 8)
	hub.add(client)
	hub.remove(client)
	hub.remove(client)

	if n := hub.ClientCount(); n != 0 {
		t.Errorf("ClientCount = %d, want 0", n)
	}
}

func TestHubBroadcastNeverBlocks(t *testing.T) {
	hub := NewHub()

	// Nobody drains the broadcast queue; overflow must be dropped, not
	// block the ingestion path.
	done := make(chan struct{})
	go func() {
		defer close(done)
		for i := 0; i < 1000; i++ {
			hub.BroadcastToTenant("tenant-a", testEvent())
		}
	}()

	select {
	case <-done:
	case <-time.After(5 * time.Second):
		t.Fatal("BroadcastToTenant blocked on a full queue")
	}
}

func TestHubRunWithContext(t *testing.T) {
	hub := NewHub()
	ctx, cancel := context.WithCancel(context.Background())

	errCh := make(chan error, 1)
	go func() { errCh <- hub.RunWithContext(ctx) }()

	client := newHubClient(hub, "tenant-a", 8)
	hub.Register <- client

	deadline := time.After(2 * time.Second)
	for hub.ClientCount() != 1 {
		select {
		case <-deadline:
			t.Fatal("client never registered")
		case <-time.After(5 * time.Millisecond):
		}
	}

	hub.BroadcastToTenant("tenant-a", testEvent())
	select {
	case msg := <-client.send:
		if msg.Type != MessageTypeInteraction {
			t.Errorf("message type = %s", msg.Type)
		}
	case <-time.After(2 * time.Second):
		t.Fatal("event never delivered")
	}

	cancel()
	select {
	case err := <-errCh:
		if !errors.Is(err, context.Canceled) {
			t.Errorf("RunWithContext returned %v", err)
		}
	case <-time.After(2 * time.Second):
		t.Fatal("hub did not stop on cancel")
	}

	// Shutdown closes every client channel.
	if _, open := <-client.send; open {
		t.Error("client send channel left open after shutdown")
	}
	if hub.ClientCount() != 0 {
		t.Errorf("ClientCount = %d after shutdown", hub.ClientCount())
	}
}
