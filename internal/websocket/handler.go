// Attune - Customer Interaction Ingestion and Sentiment Analytics
// Copyright 2026 M. Reyes (attune-cx)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/attune-cx/attune

package websocket

import (
	"net/http"

	"github.com/gorilla/websocket"

	"github.com/attune-cx/attune/internal/auth"
	"github.com/attune-cx/attune/internal/logging"
)

// Handler upgrades authenticated requests into hub clients.
type Handler struct {
	hub        *Hub
	upgrader   websocket.Upgrader
	sendBuffer int
}

// NewHandler builds the upgrade handler. allowedOrigins restricts
// cross-origin upgrades; empty means same-origin only.
func NewHandler(hub *Hub, allowedOrigins []string, sendBuffer int) *Handler {
	origins := make(map[string]bool, len(allowedOrigins))
	allowAll := false
	for _, o := range allowedOrigins {
		if o == "*" {
			allowAll = true
		}
		origins[o] = true
	}

	return &Handler{
		hub:        hub,
		sendBuffer: sendBuffer,
		upgrader: websocket.Upgrader{
			ReadBufferSize:  1024,
			WriteBufferSize: 1024,
			CheckOrigin: func(r *http.Request) bool {
				origin := r.Header.Get("Origin")
				if origin == "" {
					return true
				}
				if allowAll {
					return true
				}
				if origins[origin] {
					return true
				}
				// Same-origin requests are always allowed.
				return origin == "http://"+r.Host || origin == "https://"+r.Host
			},
		},
	}
}

// ServeHTTP upgrades the connection and joins it to the principal's
// tenant room. Runs behind the authentication middleware; an absent
// principal means the route is miswired, not an anonymous caller.
func (h *Handler) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	principal, ok := auth.PrincipalFromContext(r.Context())
	if !ok {
		http.Error(w, "authentication required", http.StatusUnauthorized)
		return
	}

	conn, err := h.upgrader.Upgrade(w, r, nil)
	if err != nil {
		// Upgrade already wrote the error response.
		logging.Debug().Err(err).Msg("WebSocket upgrade failed")
		return
	}

	client := NewClient(h.hub, conn, principal.TenantID, h.sendBuffer)
	h.hub.Register <- client
	client.Start()
}
