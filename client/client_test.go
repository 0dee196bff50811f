// Copyright 2026 The Atelier Authors
// SPDX-License-Identifier: Apache-2.0

package client

import (
	"context"
	"errors"
	"log/slog"
	"sync"
	"testing"
	"time"

	"github.com/atelier-dev/atelier/lib/clock"
	"github.com/atelier-dev/atelier/lib/testutil"
	"github.com/atelier-dev/atelier/protocol"
)

const waitTimeout = 5 * time.Second

var clientEpoch = time.Date(2026, 1, 1, 0, 0, 0, 0, time.UTC)

// fakeConn is an in-memory protocol.EventConn seen from the client
// side: WriteEvent lands in toHub, ReadEvent drains fromHub.
type fakeConn struct {
	toHub   chan protocol.Envelope
	fromHub chan protocol.Envelope

	closeOnce sync.Once
	closed    chan struct{}
}

func newFakeConn() *fakeConn {
	return &fakeConn{
		toHub:   make(chan protocol.Envelope, 64),
		fromHub: make(chan protocol.Envelope, 64),
		closed:  make(chan struct{}),
	}
}

func (c *fakeConn) ReadEvent() (protocol.Envelope, error) {
	select {
	case envelope := <-c.fromHub:
		return envelope, nil
	case <-c.closed:
		return protocol.Envelope{}, errors.New("connection closed")
	}
}

func (c *fakeConn) WriteEvent(envelope protocol.Envelope) error {
	select {
	case c.toHub <- envelope:
		return nil
	case <-c.closed:
		return errors.New("connection closed")
	}
}

func (c *fakeConn) Close() error {
	c.closeOnce.Do(func() { close(c.closed) })
	return nil
}

// deliver pushes a hub event at the client.
func (c *fakeConn) deliver(t *testing.T, envelope protocol.Envelope) {
	t.Helper()
	testutil.RequireSend(t, c.fromHub, envelope, waitTimeout, "client stopped reading")
}

// sent returns the next event the client wrote, failing unless it has
// the wanted type.
func (c *fakeConn) sent(t *testing.T, wantType string) protocol.Envelope {
	t.Helper()
	envelope := testutil.RequireReceive(t, c.toHub, waitTimeout, "no outbound event")
	if envelope.Type != wantType {
		t.Fatalf("outbound event type = %q, want %q", envelope.Type, wantType)
	}
	return envelope
}

// requireQuiet fails if the client has emitted anything.
func (c *fakeConn) requireQuiet(t *testing.T) {
	t.Helper()
	select {
	case envelope := <-c.toHub:
		t.Fatalf("unexpected outbound %s event", envelope.Type)
	default:
	}
}

func decodePayload[T any](t *testing.T, envelope protocol.Envelope) T {
	t.Helper()
	var payload T
	if err := envelope.DecodePayload(&payload); err != nil {
		t.Fatalf("decode %s payload: %v", envelope.Type, err)
	}
	return payload
}

// newJoinedClient builds a SyncClient over a fake connection, already
// joined as a collaborator to a session with the given seed.
func newJoinedClient(t *testing.T, seed map[string]string, currentFile string, fake *clock.FakeClock, handlers Handlers) (*SyncClient, *fakeConn) {
	t.Helper()
	conn := newFakeConn()
	// The seed reply waits in the pipe before Join sends the request,
	// so Join completes synchronously.
	conn.fromHub <- protocol.MustEvent(protocol.EventSessionJoined, protocol.SessionJoinedPayload{
		Files:       seed,
		CurrentFile: currentFile,
	})

	c, err := New(Config{
		HubURL:   "http://hub.test:7009",
		Logger:   slog.New(slog.DiscardHandler),
		Clock:    fake,
		Handlers: handlers,
		Dial: func(ctx context.Context, socketURL string) (protocol.EventConn, error) {
			return conn, nil
		},
	})
	if err != nil {
		t.Fatalf("New: %v", err)
	}
	if err := c.Join(t.Context(), "session-1"); err != nil {
		t.Fatalf("Join: %v", err)
	}
	t.Cleanup(func() { conn.Close() })

	join := decodePayload[protocol.JoinPayload](t, conn.sent(t, protocol.EventJoin))
	if join.SessionID != "session-1" {
		t.Fatalf("join session id = %q, want session-1", join.SessionID)
	}
	return c, conn
}

func TestJoinInstallsSeed(t *testing.T) {
	t.Parallel()
	fake := clock.Fake(clientEpoch)
	c, _ := newJoinedClient(t, map[string]string{
		"main.py": "print('hi')",
		"util.py": "pass",
	}, "main.py", fake, Handlers{})

	if got := c.Store().Len(); got != 2 {
		t.Fatalf("store has %d files, want 2", got)
	}
	if content, _ := c.Store().Get("util.py"); content != "pass" {
		t.Errorf("util.py = %q, want pass", content)
	}
	if got := c.OpenFile(); got != "main.py" {
		t.Errorf("OpenFile() = %q, want main.py", got)
	}
	if got := c.SessionID(); got != "session-1" {
		t.Errorf("SessionID() = %q, want session-1", got)
	}
}

func TestJoinFallsBackToFirstSortedFile(t *testing.T) {
	t.Parallel()
	fake := clock.Fake(clientEpoch)
	c, _ := newJoinedClient(t, map[string]string{
		"zeta.py":  "",
		"alpha.py": "",
	}, "deleted.py", fake, Handlers{})

	if got := c.OpenFile(); got != "alpha.py" {
		t.Errorf("OpenFile() = %q, want alpha.py (first sorted)", got)
	}
}

func TestJoinUnknownSession(t *testing.T) {
	t.Parallel()
	conn := newFakeConn()
	conn.fromHub <- protocol.MustEvent(protocol.EventError, protocol.ErrorPayload{
		Message: "session nope not found",
	})
	c, err := New(Config{
		HubURL: "http://hub.test:7009",
		Logger: slog.New(slog.DiscardHandler),
		Dial: func(ctx context.Context, socketURL string) (protocol.EventConn, error) {
			return conn, nil
		},
	})
	if err != nil {
		t.Fatalf("New: %v", err)
	}
	err = c.Join(t.Context(), "nope")
	if !errors.Is(err, ErrSessionNotFound) {
		t.Fatalf("Join error = %v, want ErrSessionNotFound", err)
	}
	if got := c.SessionID(); got != "" {
		t.Errorf("SessionID() after failed join = %q, want empty", got)
	}
}

func TestTypingBurstEmitsOneCodeChange(t *testing.T) {
	t.Parallel()
	fake := clock.Fake(clientEpoch)
	c, conn := newJoinedClient(t, map[string]string{"main.py": ""}, "main.py", fake, Handlers{})

	for _, content := range []string{"p", "pr", "print('hi')"} {
		if err := c.Edit("main.py", content); err != nil {
			t.Fatalf("Edit: %v", err)
		}
	}
	conn.requireQuiet(t)

	fake.Advance(DefaultSendDelay)
	change := decodePayload[protocol.CodeChangePayload](t, conn.sent(t, protocol.EventCodeChange))
	if change.Filename != "main.py" || change.Content != "print('hi')" {
		t.Errorf("code_change = %q/%q, want main.py with the final content", change.Filename, change.Content)
	}
	conn.requireQuiet(t)
}

func TestEditReArmsDebounce(t *testing.T) {
	t.Parallel()
	fake := clock.Fake(clientEpoch)
	c, conn := newJoinedClient(t, map[string]string{"main.py": ""}, "main.py", fake, Handlers{})

	c.Edit("main.py", "a")
	fake.Advance(DefaultSendDelay / 2)
	c.Edit("main.py", "ab")
	fake.Advance(DefaultSendDelay / 2)
	conn.requireQuiet(t)

	fake.Advance(DefaultSendDelay / 2)
	change := decodePayload[protocol.CodeChangePayload](t, conn.sent(t, protocol.EventCodeChange))
	if change.Content != "ab" {
		t.Errorf("code_change content = %q, want ab", change.Content)
	}
}

func TestRemoteUpdateIsNotEchoedBack(t *testing.T) {
	t.Parallel()
	fake := clock.Fake(clientEpoch)
	updates := make(chan protocol.CodeUpdatePayload, 8)
	c, conn := newJoinedClient(t, map[string]string{"main.py": ""}, "main.py", fake, Handlers{
		BufferUpdated: func(name, content string) {
			updates <- protocol.CodeUpdatePayload{Filename: name, Content: content}
		},
	})

	conn.deliver(t, protocol.MustEvent(protocol.EventCodeUpdate, protocol.CodeUpdatePayload{
		Filename: "main.py",
		Content:  "remote edit",
	}))
	update := testutil.RequireReceive(t, updates, waitTimeout, "remote edit never reached the editor")
	if update.Content != "remote edit" {
		t.Fatalf("buffer update content = %q, want the remote edit", update.Content)
	}

	// The editor reports the buffer it just installed. That is the
	// echo; nothing may be scheduled or emitted.
	if err := c.Edit("main.py", "remote edit"); err != nil {
		t.Fatalf("Edit: %v", err)
	}
	if got := fake.PendingCount(); got != 0 {
		t.Fatalf("pending timers = %d, want 0 after suppressed echo", got)
	}
	fake.Advance(DefaultSendDelay)
	conn.requireQuiet(t)

	// A genuinely new local edit on top of the remote content still
	// goes out.
	c.Edit("main.py", "remote edit plus mine")
	fake.Advance(DefaultSendDelay)
	change := decodePayload[protocol.CodeChangePayload](t, conn.sent(t, protocol.EventCodeChange))
	if change.Content != "remote edit plus mine" {
		t.Errorf("code_change content = %q, want the new local edit", change.Content)
	}
}

func TestRemoteUpdateToBackgroundFileSkipsEditor(t *testing.T) {
	t.Parallel()
	fake := clock.Fake(clientEpoch)
	updates := make(chan string, 8)
	c, conn := newJoinedClient(t, map[string]string{"main.py": "", "bg.py": ""}, "main.py", fake, Handlers{
		BufferUpdated: func(name, content string) { updates <- name },
	})

	conn.deliver(t, protocol.MustEvent(protocol.EventCodeUpdate, protocol.CodeUpdatePayload{
		Filename: "bg.py",
		Content:  "background",
	}))
	conn.deliver(t, protocol.MustEvent(protocol.EventCodeUpdate, protocol.CodeUpdatePayload{
		Filename: "main.py",
		Content:  "foreground",
	}))

	// Events apply in order, so seeing the open file's update proves
	// the background one was already applied silently.
	name := testutil.RequireReceive(t, updates, waitTimeout, "open-file update never arrived")
	if name != "main.py" {
		t.Fatalf("buffer update for %q, want main.py only", name)
	}
	if len(updates) != 0 {
		t.Error("background file update reached the editor")
	}
	if content, _ := c.Store().Get("bg.py"); content != "background" {
		t.Errorf("bg.py = %q, want the background update applied to the replica", content)
	}
}

func TestSwitchFileBroadcastsContent(t *testing.T) {
	t.Parallel()
	fake := clock.Fake(clientEpoch)
	c, conn := newJoinedClient(t, map[string]string{"main.py": "m", "util.py": "u"}, "main.py", fake, Handlers{})

	if err := c.SwitchFile("util.py"); err != nil {
		t.Fatalf("SwitchFile: %v", err)
	}
	switched := decodePayload[protocol.SwitchFilePayload](t, conn.sent(t, protocol.EventSwitchFile))
	if switched.Filename != "util.py" || switched.Content != "u" {
		t.Errorf("switch_file = %q/%q, want util.py/u", switched.Filename, switched.Content)
	}
	if got := c.OpenFile(); got != "util.py" {
		t.Errorf("OpenFile() = %q, want util.py", got)
	}

	if err := c.SwitchFile("missing.py"); err == nil {
		t.Error("SwitchFile to a missing file succeeded")
	}
}

func TestFileSwitchedFollowsOwner(t *testing.T) {
	t.Parallel()
	fake := clock.Fake(clientEpoch)
	switches := make(chan string, 8)
	c, conn := newJoinedClient(t, map[string]string{"main.py": "m", "util.py": "stale"}, "main.py", fake, Handlers{
		FileSwitched: func(name, content string) { switches <- name },
	})

	conn.deliver(t, protocol.MustEvent(protocol.EventFileSwitched, protocol.FileSwitchedPayload{
		Filename: "util.py",
		Content:  "fresh",
	}))
	name := testutil.RequireReceive(t, switches, waitTimeout, "file_switched never applied")
	if name != "util.py" {
		t.Fatalf("switched to %q, want util.py", name)
	}
	if got := c.OpenFile(); got != "util.py" {
		t.Errorf("OpenFile() = %q, want util.py", got)
	}
	if content, _ := c.Store().Get("util.py"); content != "fresh" {
		t.Errorf("util.py = %q, want the riding content installed", content)
	}
}

func TestStaleFileSwitchedIgnored(t *testing.T) {
	t.Parallel()
	fake := clock.Fake(clientEpoch)
	updates := make(chan string, 8)
	switches := make(chan string, 8)
	c, conn := newJoinedClient(t, map[string]string{"main.py": "m"}, "main.py", fake, Handlers{
		BufferUpdated: func(name, content string) { updates <- name },
		FileSwitched:  func(name, content string) { switches <- name },
	})

	// A switch to a file this replica never saw, carrying no content:
	// the file was deleted after the switch was emitted.
	conn.deliver(t, protocol.MustEvent(protocol.EventFileSwitched, protocol.FileSwitchedPayload{
		Filename: "ghost.py",
	}))
	// A later update serves as the synchronization point.
	conn.deliver(t, protocol.MustEvent(protocol.EventCodeUpdate, protocol.CodeUpdatePayload{
		Filename: "main.py",
		Content:  "after",
	}))
	testutil.RequireReceive(t, updates, waitTimeout, "follow-up update never applied")

	if got := c.OpenFile(); got != "main.py" {
		t.Errorf("OpenFile() = %q, want main.py (stale switch ignored)", got)
	}
	if len(switches) != 0 {
		t.Error("stale file_switched reached the editor")
	}
	if _, exists := c.Store().Get("ghost.py"); exists {
		t.Error("stale switch created a replica key")
	}
}

func TestFileOperationsBroadcast(t *testing.T) {
	t.Parallel()
	fake := clock.Fake(clientEpoch)
	lists := make(chan []string, 8)
	c, conn := newJoinedClient(t, map[string]string{"main.py": "m"}, "main.py", fake, Handlers{
		FileListChanged: func(files []string) { lists <- files },
	})

	if err := c.CreateFile("util.py", ""); err != nil {
		t.Fatalf("CreateFile: %v", err)
	}
	created := decodePayload[protocol.FileOperationPayload](t, conn.sent(t, protocol.EventFileOperation))
	if created.Op != protocol.OpCreate || created.Filename != "util.py" {
		t.Fatalf("broadcast = %+v, want create util.py", created)
	}
	testutil.RequireReceive(t, lists, waitTimeout, "file list change not reported")

	if err := c.CreateFile("util.py", ""); err == nil {
		t.Error("CreateFile over an existing file succeeded")
	}
	if err := c.CreateFile("../escape.py", ""); err == nil {
		t.Error("CreateFile with a path-escaping name succeeded")
	}

	// Renaming the open file carries the pointer.
	if err := c.RenameFile("main.py", "app.py"); err != nil {
		t.Fatalf("RenameFile: %v", err)
	}
	renamed := decodePayload[protocol.FileOperationPayload](t, conn.sent(t, protocol.EventFileOperation))
	if renamed.Op != protocol.OpRename || renamed.NewFilename != "app.py" || renamed.Content != "m" {
		t.Fatalf("broadcast = %+v, want rename main.py to app.py carrying content", renamed)
	}
	if got := c.OpenFile(); got != "app.py" {
		t.Errorf("OpenFile() = %q, want app.py", got)
	}

	// Deleting the open file falls back to the first remaining file.
	if err := c.DeleteFile("app.py"); err != nil {
		t.Fatalf("DeleteFile: %v", err)
	}
	deleted := decodePayload[protocol.FileOperationPayload](t, conn.sent(t, protocol.EventFileOperation))
	if deleted.Op != protocol.OpDelete || deleted.Filename != "app.py" {
		t.Fatalf("broadcast = %+v, want delete app.py", deleted)
	}
	if got := c.OpenFile(); got != "util.py" {
		t.Errorf("OpenFile() = %q, want util.py", got)
	}
}

func TestRenameCarriesPendingEdit(t *testing.T) {
	t.Parallel()
	fake := clock.Fake(clientEpoch)
	c, conn := newJoinedClient(t, map[string]string{"main.py": "m"}, "main.py", fake, Handlers{})

	c.Edit("main.py", "edited")
	if err := c.RenameFile("main.py", "app.py"); err != nil {
		t.Fatalf("RenameFile: %v", err)
	}
	conn.sent(t, protocol.EventFileOperation)

	fake.Advance(DefaultSendDelay)
	change := decodePayload[protocol.CodeChangePayload](t, conn.sent(t, protocol.EventCodeChange))
	if change.Filename != "app.py" || change.Content != "edited" {
		t.Errorf("code_change = %q/%q, want the pending edit under the new name", change.Filename, change.Content)
	}
}

func TestDeleteCancelsPendingEdit(t *testing.T) {
	t.Parallel()
	fake := clock.Fake(clientEpoch)
	c, conn := newJoinedClient(t, map[string]string{"main.py": "m", "other.py": "o"}, "main.py", fake, Handlers{})

	c.Edit("main.py", "doomed")
	if err := c.DeleteFile("main.py"); err != nil {
		t.Fatalf("DeleteFile: %v", err)
	}
	conn.sent(t, protocol.EventFileOperation)

	fake.Advance(DefaultSendDelay)
	conn.requireQuiet(t)
}

func TestRemoteDeleteOfOpenFileMovesPointer(t *testing.T) {
	t.Parallel()
	fake := clock.Fake(clientEpoch)
	lists := make(chan []string, 8)
	c, conn := newJoinedClient(t, map[string]string{"main.py": "m", "other.py": "o"}, "main.py", fake, Handlers{
		FileListChanged: func(files []string) { lists <- files },
	})

	conn.deliver(t, protocol.MustEvent(protocol.EventFileOperation, protocol.FileOperationPayload{
		SessionID: "session-1",
		Op:        protocol.OpDelete,
		Filename:  "main.py",
	}))
	files := testutil.RequireReceive(t, lists, waitTimeout, "file list change not reported")
	if len(files) != 1 || files[0] != "other.py" {
		t.Fatalf("file list = %v, want [other.py]", files)
	}
	if got := c.OpenFile(); got != "other.py" {
		t.Errorf("OpenFile() = %q, want other.py", got)
	}
}

func TestSessionClosedByOwner(t *testing.T) {
	t.Parallel()
	fake := clock.Fake(clientEpoch)
	closed := make(chan string, 1)
	_, conn := newJoinedClient(t, map[string]string{"main.py": "m"}, "main.py", fake, Handlers{
		SessionClosed: func(message string) { closed <- message },
	})

	conn.deliver(t, protocol.MustEvent(protocol.EventError, protocol.ErrorPayload{
		Message: "session closed by owner",
	}))
	message := testutil.RequireReceive(t, closed, waitTimeout, "session close never reported")
	if message != "session closed by owner" {
		t.Errorf("close message = %q, want %q", message, "session closed by owner")
	}
}

func TestLeaveFlushesPendingEdits(t *testing.T) {
	t.Parallel()
	fake := clock.Fake(clientEpoch)
	c, conn := newJoinedClient(t, map[string]string{"main.py": "m"}, "main.py", fake, Handlers{})

	c.Edit("main.py", "last words")
	if err := c.Leave(t.Context()); err != nil {
		t.Fatalf("Leave: %v", err)
	}

	change := decodePayload[protocol.CodeChangePayload](t, conn.sent(t, protocol.EventCodeChange))
	if change.Content != "last words" {
		t.Errorf("flushed content = %q, want the pending edit", change.Content)
	}
	conn.sent(t, protocol.EventLeave)

	if got := c.SessionID(); got != "" {
		t.Errorf("SessionID() after leave = %q, want empty", got)
	}
	if err := c.Edit("main.py", "too late"); !errors.Is(err, ErrNotJoined) {
		t.Errorf("Edit after leave = %v, want ErrNotJoined", err)
	}
}

func TestDisconnectReported(t *testing.T) {
	t.Parallel()
	fake := clock.Fake(clientEpoch)
	dropped := make(chan error, 1)
	_, conn := newJoinedClient(t, map[string]string{"main.py": "m"}, "main.py", fake, Handlers{
		Disconnected: func(err error) { dropped <- err },
	})

	conn.Close()
	if err := testutil.RequireReceive(t, dropped, waitTimeout, "disconnect never reported"); err == nil {
		t.Error("disconnect reported with nil error")
	}
}
