// Copyright 2026 The Atelier Authors
// SPDX-License-Identifier: Apache-2.0

// Package terminal relays a shell running in a pty over a websocket,
// backing the session's shared terminal pane. Output is broadcast as
// binary frames; input arrives as binary frames, with resize requests
// as small JSON text frames.
package terminal

import (
	"encoding/json"
	"log/slog"
	"net/http"
	"os/exec"

	"github.com/creack/pty"
	"github.com/gorilla/mux"
	"github.com/gorilla/websocket"
)

var upgrader = websocket.Upgrader{
	ReadBufferSize:  4096,
	WriteBufferSize: 4096,
	// Session access control is the share URL itself; the hub serves
	// collaborators from any origin on the LAN.
	CheckOrigin: func(*http.Request) bool { return true },
}

// resizeRequest is the JSON text frame the terminal client sends when
// its viewport changes.
type resizeRequest struct {
	Type string `json:"type"`
	Cols uint16 `json:"cols"`
	Rows uint16 `json:"rows"`
}

// Handler serves one shell per websocket connection.
type Handler struct {
	shell  string
	logger *slog.Logger
}

// NewHandler constructs a Handler running the given shell command.
func NewHandler(shell string, logger *slog.Logger) *Handler {
	return &Handler{shell: shell, logger: logger}
}

// Routes registers the terminal endpoint on router.
func (h *Handler) Routes(router *mux.Router) {
	router.HandleFunc("/ws/terminal", h.handleSocket).Methods(http.MethodGet)
}

func (h *Handler) handleSocket(w http.ResponseWriter, req *http.Request) {
	ws, err := upgrader.Upgrade(w, req, nil)
	if err != nil {
		h.logger.Warn("terminal upgrade failed", "error", err)
		return
	}
	defer ws.Close()

	command := exec.Command(h.shell)
	ptmx, err := pty.Start(command)
	if err != nil {
		h.logger.Error("start shell", "shell", h.shell, "error", err)
		ws.WriteMessage(websocket.TextMessage, []byte("failed to start shell\r\n"))
		return
	}
	defer func() {
		ptmx.Close()
		command.Process.Kill()
		command.Wait()
	}()
	h.logger.Info("terminal session started", "shell", h.shell, "remote", req.RemoteAddr)

	// Shell output to the socket. Exits when the pty closes, which
	// the deferred cleanup triggers on any input-side failure.
	outputDone := make(chan struct{})
	go func() {
		defer close(outputDone)
		buffer := make([]byte, 4096)
		for {
			n, err := ptmx.Read(buffer)
			if n > 0 {
				if writeErr := ws.WriteMessage(websocket.BinaryMessage, buffer[:n]); writeErr != nil {
					return
				}
			}
			if err != nil {
				return
			}
		}
	}()

	// Socket input to the shell.
	for {
		messageType, data, err := ws.ReadMessage()
		if err != nil {
			break
		}
		switch messageType {
		case websocket.TextMessage:
			var resize resizeRequest
			if err := json.Unmarshal(data, &resize); err != nil || resize.Type != "resize" {
				h.logger.Debug("unrecognized terminal control frame ignored")
				continue
			}
			if err := pty.Setsize(ptmx, &pty.Winsize{Cols: resize.Cols, Rows: resize.Rows}); err != nil {
				h.logger.Warn("pty resize failed", "error", err)
			}
		case websocket.BinaryMessage:
			if _, err := ptmx.Write(data); err != nil {
				h.logger.Warn("pty write failed", "error", err)
			}
		}
	}

	ptmx.Close()
	<-outputDone
	h.logger.Info("terminal session ended", "remote", req.RemoteAddr)
}
