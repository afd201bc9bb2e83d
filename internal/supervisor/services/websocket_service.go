// Attune - Customer Interaction Ingestion and Sentiment Analytics
// Copyright 2026 M. Reyes (attune-cx)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/attune-cx/attune

package services

import (
	"context"
)

// ContextHub matches websocket.Hub's RunWithContext. Declared here so the
// wrapper does not import the websocket package.
type ContextHub interface {
	RunWithContext(ctx context.Context) error
}

// WebSocketHubService supervises the tenant fan-out hub. The hub's run
// loop already follows the suture contract, so this only adds a name.
type WebSocketHubService struct {
	hub ContextHub
}

// NewWebSocketHubService wraps hub for supervision.
func NewWebSocketHubService(hub ContextHub) *WebSocketHubService {
	return &WebSocketHubService{hub: hub}
}

// Serve implements suture.Service.
func (w *WebSocketHubService) Serve(ctx context.Context) error {
	return w.hub.RunWithContext(ctx)
}

// String identifies the service in supervision logs.
func (w *WebSocketHubService) String() string { return "websocket-hub" }
