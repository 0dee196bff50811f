// Copyright 2026 The Atelier Authors
// SPDX-License-Identifier: Apache-2.0

package registry

import (
	"encoding/json"
	"net/http"

	"github.com/gorilla/mux"
	"github.com/gorilla/websocket"

	"github.com/atelier-dev/atelier/protocol"
)

// upgrader accepts the session websocket. Origins are not checked:
// the hub does no authentication by design, and share URLs are handed
// out-of-band.
var upgrader = websocket.Upgrader{
	ReadBufferSize:  4096,
	WriteBufferSize: 4096,
	CheckOrigin:     func(r *http.Request) bool { return true },
}

// Routes registers the registry's HTTP surface on router:
//
//	POST /api/sessions  — create a session, returns {session_id, share_url}
//	GET  /ws            — the session websocket
//	GET  /healthz       — liveness
func (r *Registry) Routes(router *mux.Router) {
	router.HandleFunc("/api/sessions", r.handleCreateSession).Methods(http.MethodPost)
	router.HandleFunc("/ws", r.handleSocket)
	router.HandleFunc("/healthz", r.handleHealth).Methods(http.MethodGet)
}

// handleCreateSession is POST /api/sessions.
func (r *Registry) handleCreateSession(w http.ResponseWriter, req *http.Request) {
	var request protocol.CreateSessionRequest
	if err := json.NewDecoder(req.Body).Decode(&request); err != nil {
		http.Error(w, "invalid request body: "+err.Error(), http.StatusBadRequest)
		return
	}

	response, err := r.CreateSession(req.Context(), request)
	if err != nil {
		r.logger.Error("session creation failed", "error", err)
		http.Error(w, "session creation failed", http.StatusInternalServerError)
		return
	}

	w.Header().Set("Content-Type", "application/json")
	if err := json.NewEncoder(w).Encode(response); err != nil {
		r.logger.Debug("failed to write create response", "error", err)
	}
}

// handleSocket is GET /ws: upgrade and serve the session protocol
// until the connection ends.
func (r *Registry) handleSocket(w http.ResponseWriter, req *http.Request) {
	ws, err := upgrader.Upgrade(w, req, nil)
	if err != nil {
		// Upgrade already wrote the HTTP error response.
		r.logger.Debug("websocket upgrade failed", "error", err)
		return
	}
	r.ServeConn(req.Context(), protocol.NewConn(ws))
}

// handleHealth is GET /healthz.
func (r *Registry) handleHealth(w http.ResponseWriter, req *http.Request) {
	w.Header().Set("Content-Type", "application/json")
	_ = json.NewEncoder(w).Encode(map[string]any{
		"ok":       true,
		"sessions": r.SessionCount(),
	})
}
