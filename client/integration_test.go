// Copyright 2026 The Atelier Authors
// SPDX-License-Identifier: Apache-2.0

package client

import (
	"context"
	"encoding/json"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/gorilla/mux"

	"github.com/atelier-dev/atelier/lib/clock"
	"github.com/atelier-dev/atelier/lib/testutil"
	"github.com/atelier-dev/atelier/protocol"
	"github.com/atelier-dev/atelier/registry"
	"github.com/atelier-dev/atelier/workspace"
)

// TestOwnerPersistsSessionState drives the sharer side against a fake
// connection: remote edits to the open file reach disk immediately,
// local edits after their debounce.
func TestOwnerPersistsSessionState(t *testing.T) {
	t.Parallel()
	directory := t.TempDir()
	if err := os.WriteFile(filepath.Join(directory, "main.py"), []byte("v1"), 0o644); err != nil {
		t.Fatal(err)
	}
	backend, err := workspace.NewLocalBackend(directory)
	if err != nil {
		t.Fatalf("NewLocalBackend: %v", err)
	}

	hub := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, req *http.Request) {
		if req.Method != http.MethodPost || req.URL.Path != "/api/sessions" {
			http.NotFound(w, req)
			return
		}
		var request protocol.CreateSessionRequest
		if err := json.NewDecoder(req.Body).Decode(&request); err != nil {
			http.Error(w, err.Error(), http.StatusBadRequest)
			return
		}
		if request.Files["main.py"] != "v1" {
			t.Errorf("session request main.py = %q, want v1", request.Files["main.py"])
		}
		json.NewEncoder(w).Encode(protocol.CreateSessionResponse{
			SessionID: "owner-session",
			ShareURL:  "http://hub.test/?session=owner-session",
		})
	}))
	t.Cleanup(hub.Close)

	fake := clock.Fake(clientEpoch)
	conn := newFakeConn()
	conn.fromHub <- protocol.MustEvent(protocol.EventSessionJoined, protocol.SessionJoinedPayload{
		Files:       map[string]string{"main.py": "v1"},
		CurrentFile: "main.py",
	})
	updates := make(chan string, 8)

	c, err := New(Config{
		HubURL: hub.URL,
		Logger: slog.New(slog.DiscardHandler),
		Clock:  fake,
		Dial: func(ctx context.Context, socketURL string) (protocol.EventConn, error) {
			return conn, nil
		},
		Handlers: Handlers{
			BufferUpdated: func(name, content string) { updates <- content },
		},
	})
	if err != nil {
		t.Fatalf("New: %v", err)
	}
	response, err := c.Share(t.Context(), backend, "demo")
	if err != nil {
		t.Fatalf("Share: %v", err)
	}
	if response.SessionID != "owner-session" {
		t.Fatalf("session id = %q, want owner-session", response.SessionID)
	}
	t.Cleanup(func() { conn.Close() })
	conn.sent(t, protocol.EventJoin)

	// A collaborator's edit to the open file hits disk with no
	// debounce: the owner's storage must not trail what everyone is
	// looking at.
	conn.deliver(t, protocol.MustEvent(protocol.EventCodeUpdate, protocol.CodeUpdatePayload{
		Filename: "main.py",
		Content:  "v2",
	}))
	testutil.RequireReceive(t, updates, waitTimeout, "remote edit never applied")
	if got := readWorkspaceFile(t, directory, "main.py"); got != "v2" {
		t.Fatalf("disk content = %q, want v2 immediately", got)
	}

	// The owner's own edit is debounced on both paths: emitted after
	// the send delay, persisted after the longer persist delay.
	c.Edit("main.py", "v3")
	fake.Advance(DefaultSendDelay)
	change := decodePayload[protocol.CodeChangePayload](t, conn.sent(t, protocol.EventCodeChange))
	if change.Content != "v3" {
		t.Fatalf("emitted content = %q, want v3", change.Content)
	}
	if got := readWorkspaceFile(t, directory, "main.py"); got != "v2" {
		t.Fatalf("disk content = %q, want v2 until the persist delay elapses", got)
	}
	fake.Advance(workspace.DefaultPersistDelay - DefaultSendDelay)
	if got := readWorkspaceFile(t, directory, "main.py"); got != "v3" {
		t.Fatalf("disk content = %q, want v3 after the persist delay", got)
	}
}

func readWorkspaceFile(t *testing.T, directory, name string) string {
	t.Helper()
	data, err := os.ReadFile(filepath.Join(directory, name))
	if err != nil {
		t.Fatalf("read %s: %v", name, err)
	}
	return string(data)
}

// TestEndToEndCollaboration runs a real hub over HTTP and websockets
// with an owner and a collaborator, and checks convergence in both
// directions without echo.
func TestEndToEndCollaboration(t *testing.T) {
	t.Parallel()
	reg := registry.New(registry.Config{
		Store:     registry.NewMemoryStore(),
		Logger:    slog.New(slog.DiscardHandler),
		PublicURL: "http://hub.test",
	})
	router := mux.NewRouter()
	reg.Routes(router)
	hub := httptest.NewServer(router)
	t.Cleanup(hub.Close)

	directory := t.TempDir()
	if err := os.WriteFile(filepath.Join(directory, "main.py"), []byte("print('v1')"), 0o644); err != nil {
		t.Fatal(err)
	}
	backend, err := workspace.NewLocalBackend(directory)
	if err != nil {
		t.Fatalf("NewLocalBackend: %v", err)
	}

	ownerUpdates := make(chan string, 8)
	owner, err := New(Config{
		HubURL:       hub.URL,
		Logger:       slog.New(slog.DiscardHandler),
		SendDelay:    20 * time.Millisecond,
		PersistDelay: 20 * time.Millisecond,
		Handlers: Handlers{
			BufferUpdated: func(name, content string) { ownerUpdates <- content },
		},
	})
	if err != nil {
		t.Fatalf("New(owner): %v", err)
	}
	response, err := owner.Share(t.Context(), backend, "demo")
	if err != nil {
		t.Fatalf("Share: %v", err)
	}

	collaboratorUpdates := make(chan string, 8)
	collaborator, err := New(Config{
		HubURL:    hub.URL,
		Logger:    slog.New(slog.DiscardHandler),
		SendDelay: 20 * time.Millisecond,
		Handlers: Handlers{
			BufferUpdated: func(name, content string) { collaboratorUpdates <- content },
		},
	})
	if err != nil {
		t.Fatalf("New(collaborator): %v", err)
	}
	if err := collaborator.Join(t.Context(), response.SessionID); err != nil {
		t.Fatalf("Join: %v", err)
	}
	if content, _ := collaborator.Store().Get("main.py"); content != "print('v1')" {
		t.Fatalf("collaborator seed = %q, want the shared content", content)
	}
	if got := collaborator.OpenFile(); got != "main.py" {
		t.Fatalf("collaborator open file = %q, want main.py", got)
	}

	// Collaborator edits; the owner sees it and persists it, the
	// collaborator hears nothing back.
	collaborator.Edit("main.py", "print('v2')")
	if got := testutil.RequireReceive(t, ownerUpdates, waitTimeout, "edit never reached owner"); got != "print('v2')" {
		t.Fatalf("owner received %q, want print('v2')", got)
	}
	waitForFileContent(t, directory, "main.py", "print('v2')")
	if len(collaboratorUpdates) != 0 {
		t.Error("collaborator received an echo of its own edit")
	}

	// Owner edits; the collaborator converges.
	owner.Edit("main.py", "print('v3')")
	if got := testutil.RequireReceive(t, collaboratorUpdates, waitTimeout, "edit never reached collaborator"); got != "print('v3')" {
		t.Fatalf("collaborator received %q, want print('v3')", got)
	}

	if err := collaborator.Leave(t.Context()); err != nil {
		t.Fatalf("collaborator Leave: %v", err)
	}
	if err := owner.Leave(t.Context()); err != nil {
		t.Fatalf("owner Leave: %v", err)
	}
	waitForFileContent(t, directory, "main.py", "print('v3')")
}

// waitForFileContent polls until the file under directory has the
// wanted content, or fails after the shared timeout.
func waitForFileContent(t *testing.T, directory, name, want string) {
	t.Helper()
	deadline := time.Now().Add(waitTimeout)
	for {
		data, err := os.ReadFile(filepath.Join(directory, name))
		if err == nil && string(data) == want {
			return
		}
		if time.Now().After(deadline) {
			t.Fatalf("file %s = %q (err %v), want %q", name, data, err, want)
		}
		time.Sleep(10 * time.Millisecond)
	}
}
