// Copyright 2026 The Atelier Authors
// SPDX-License-Identifier: Apache-2.0

package runner

import (
	"encoding/json"
	"net/http"

	"github.com/gorilla/mux"

	"github.com/atelier-dev/atelier/protocol"
)

// maxCodeSize bounds the request body. A megabyte of source is far
// past anything the editor produces.
const maxCodeSize = 1 << 20

// Routes registers the execution endpoint on router.
func (r *Runner) Routes(router *mux.Router) {
	router.HandleFunc("/api/execute", r.handleExecute).Methods(http.MethodPost)
}

func (r *Runner) handleExecute(w http.ResponseWriter, req *http.Request) {
	var request protocol.ExecuteRequest
	if err := json.NewDecoder(http.MaxBytesReader(w, req.Body, maxCodeSize)).Decode(&request); err != nil {
		http.Error(w, "malformed execute request: "+err.Error(), http.StatusBadRequest)
		return
	}

	response, err := r.Run(req.Context(), request.Code, request.Language)
	if err != nil {
		r.logger.Error("execution setup failed", "error", err)
		http.Error(w, "execution failed", http.StatusInternalServerError)
		return
	}

	w.Header().Set("Content-Type", "application/json")
	if err := json.NewEncoder(w).Encode(response); err != nil {
		r.logger.Error("encode execute response", "error", err)
	}
}
