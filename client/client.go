// Copyright 2026 The Atelier Authors
// SPDX-License-Identifier: Apache-2.0

package client

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"net/url"
	"strings"
	"sync"
	"time"

	"github.com/gorilla/websocket"

	"github.com/atelier-dev/atelier/lib/clock"
	"github.com/atelier-dev/atelier/protocol"
	"github.com/atelier-dev/atelier/workspace"
)

var (
	// ErrSessionNotFound reports a join against a session id the hub
	// does not know.
	ErrSessionNotFound = errors.New("session not found")

	// ErrTransportUnavailable reports that the hub could not be
	// reached at all.
	ErrTransportUnavailable = errors.New("hub unreachable")

	// ErrNotJoined reports an editing operation before a session is
	// joined or after it ended.
	ErrNotJoined = errors.New("not joined to a session")
)

// DefaultSendDelay is the idle period after the last keystroke before
// a local edit is emitted to the hub. Short enough to feel live,
// long enough to coalesce a typing burst into one event.
const DefaultSendDelay = 300 * time.Millisecond

// Dialer establishes the event connection to the hub. The production
// dialer opens a websocket; tests substitute an in-memory pipe.
type Dialer func(ctx context.Context, socketURL string) (protocol.EventConn, error)

// Handlers receives relayed session activity. All callbacks are
// invoked from the client's event goroutine, one at a time; nil
// callbacks are skipped.
type Handlers struct {
	// BufferUpdated fires when a remote edit lands on the file the
	// participant currently has open.
	BufferUpdated func(name, content string)

	// FileSwitched fires when the owner moves the session to another
	// file.
	FileSwitched func(name, content string)

	// FileListChanged fires after any operation that changes the set
	// of files, with the new sorted file list.
	FileListChanged func(files []string)

	// ParticipantJoined and ParticipantLeft track session membership.
	ParticipantJoined func(participantID string)
	ParticipantLeft   func(participantID string)

	// SessionClosed fires when the hub reports a session-level error,
	// including the owner ending the session.
	SessionClosed func(message string)

	// Disconnected fires when the connection to the hub is lost for
	// any reason other than a local Leave.
	Disconnected func(err error)
}

// Config configures a SyncClient.
type Config struct {
	// HubURL is the hub's base URL, e.g. "http://192.168.1.20:7009".
	// Required.
	HubURL string

	// Logger is required.
	Logger *slog.Logger

	// Dial overrides the websocket dialer. Nil means dial HubURL's
	// /ws endpoint.
	Dial Dialer

	// HTTPClient is used for the session-creation API call. Nil means
	// http.DefaultClient.
	HTTPClient *http.Client

	// Clock drives the send debounce and the persistence bridge.
	// Nil means the real clock.
	Clock clock.Clock

	// SendDelay is the outbound edit debounce. Defaults to
	// DefaultSendDelay.
	SendDelay time.Duration

	// PersistDelay is the owner's disk-write debounce. Defaults to
	// workspace.DefaultPersistDelay.
	PersistDelay time.Duration

	Handlers Handlers
}

// SyncClient is one participant's replication engine.
type SyncClient struct {
	hubURL       string
	logger       *slog.Logger
	dial         Dialer
	httpClient   *http.Client
	clock        clock.Clock
	sendDelay    time.Duration
	persistDelay time.Duration
	handlers     Handlers

	store *workspace.FileStore

	mu        sync.Mutex
	conn      protocol.EventConn
	sessionID string
	openFile  string
	backend   workspace.Backend  // non-nil only for the sharer
	bridge    *workspace.Bridge  // non-nil only for the sharer
	pending   map[string]*pendingSend
	leaving   bool
	readDone  chan struct{}
}

// pendingSend is one armed outbound debounce timer and the content it
// will emit.
type pendingSend struct {
	content string
	timer   *clock.Timer
}

// New constructs a SyncClient. The client is idle until Share or Join
// connects it to a session.
func New(config Config) (*SyncClient, error) {
	if config.HubURL == "" {
		return nil, fmt.Errorf("client: HubURL is required")
	}
	if config.Logger == nil {
		return nil, fmt.Errorf("client: Logger is required")
	}
	c := &SyncClient{
		hubURL:       strings.TrimRight(config.HubURL, "/"),
		logger:       config.Logger,
		dial:         config.Dial,
		httpClient:   config.HTTPClient,
		clock:        config.Clock,
		sendDelay:    config.SendDelay,
		persistDelay: config.PersistDelay,
		handlers:     config.Handlers,
		store:        workspace.NewFileStore(),
		pending:      make(map[string]*pendingSend),
	}
	if c.dial == nil {
		c.dial = dialWebsocket
	}
	if c.httpClient == nil {
		c.httpClient = http.DefaultClient
	}
	if c.clock == nil {
		c.clock = clock.Real()
	}
	if c.sendDelay <= 0 {
		c.sendDelay = DefaultSendDelay
	}
	return c, nil
}

// dialWebsocket is the production Dialer.
func dialWebsocket(ctx context.Context, socketURL string) (protocol.EventConn, error) {
	ws, _, err := websocket.DefaultDialer.DialContext(ctx, socketURL, nil)
	if err != nil {
		return nil, fmt.Errorf("%w: dial %s: %v", ErrTransportUnavailable, socketURL, err)
	}
	return protocol.NewConn(ws), nil
}

// socketURL derives the websocket endpoint from the hub's base URL.
func socketURL(hubURL string) (string, error) {
	parsed, err := url.Parse(hubURL)
	if err != nil {
		return "", fmt.Errorf("parse hub URL %q: %w", hubURL, err)
	}
	switch parsed.Scheme {
	case "http":
		parsed.Scheme = "ws"
	case "https":
		parsed.Scheme = "wss"
	case "ws", "wss":
	default:
		return "", fmt.Errorf("hub URL %q: unsupported scheme %q", hubURL, parsed.Scheme)
	}
	parsed.Path = "/ws"
	return parsed.String(), nil
}

// Store exposes the replicated file state (read-only use expected;
// mutations go through Edit and the file operations).
func (c *SyncClient) Store() *workspace.FileStore { return c.store }

// SessionID returns the joined session's id, or "".
func (c *SyncClient) SessionID() string {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.sessionID
}

// OpenFile returns the name of the file the participant currently has
// open, or "".
func (c *SyncClient) OpenFile() string {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.openFile
}

// Share registers the backend's files as a new session on the hub,
// joins it as owner, and wires the persistence bridge so the session's
// state keeps flowing back to the backend. Returns the hub's response,
// whose ShareURL is what the owner hands to collaborators.
func (c *SyncClient) Share(ctx context.Context, backend *workspace.LocalBackend, workspaceName string) (protocol.CreateSessionResponse, error) {
	files, err := backend.LoadFiles()
	if err != nil {
		return protocol.CreateSessionResponse{}, fmt.Errorf("load workspace: %w", err)
	}
	currentFile := ""
	if len(files) > 0 {
		names := make([]string, 0, len(files))
		for name := range files {
			names = append(names, name)
		}
		currentFile = minString(names)
	}

	response, err := c.createSession(ctx, protocol.CreateSessionRequest{
		Files:         files,
		WorkspaceName: workspaceName,
		CurrentFile:   currentFile,
	})
	if err != nil {
		return protocol.CreateSessionResponse{}, err
	}

	bridge := workspace.NewBridge(workspace.BridgeConfig{
		Backend: backend,
		Clock:   c.clock,
		Delay:   c.persistDelay,
		Logger:  c.logger,
	})
	if err := c.join(ctx, response.SessionID, backend, bridge); err != nil {
		bridge.Close()
		return protocol.CreateSessionResponse{}, err
	}
	return response, nil
}

// Join connects to an existing session as a collaborator. The replica
// lives in memory only; nothing this client receives is written to
// disk.
func (c *SyncClient) Join(ctx context.Context, sessionID string) error {
	return c.join(ctx, sessionID, nil, nil)
}

// createSession calls the hub's session-creation API.
func (c *SyncClient) createSession(ctx context.Context, request protocol.CreateSessionRequest) (protocol.CreateSessionResponse, error) {
	body, err := json.Marshal(request)
	if err != nil {
		return protocol.CreateSessionResponse{}, fmt.Errorf("encode session request: %w", err)
	}
	httpRequest, err := http.NewRequestWithContext(ctx, http.MethodPost, c.hubURL+"/api/sessions", bytes.NewReader(body))
	if err != nil {
		return protocol.CreateSessionResponse{}, err
	}
	httpRequest.Header.Set("Content-Type", "application/json")

	httpResponse, err := c.httpClient.Do(httpRequest)
	if err != nil {
		return protocol.CreateSessionResponse{}, fmt.Errorf("%w: %v", ErrTransportUnavailable, err)
	}
	defer httpResponse.Body.Close()
	if httpResponse.StatusCode != http.StatusOK {
		detail, _ := io.ReadAll(io.LimitReader(httpResponse.Body, 512))
		return protocol.CreateSessionResponse{}, fmt.Errorf("create session: hub returned %s: %s",
			httpResponse.Status, strings.TrimSpace(string(detail)))
	}

	var response protocol.CreateSessionResponse
	if err := json.NewDecoder(httpResponse.Body).Decode(&response); err != nil {
		return protocol.CreateSessionResponse{}, fmt.Errorf("decode session response: %w", err)
	}
	return response, nil
}

// join dials the hub, subscribes to sessionID, and installs the seed
// snapshot. Blocks until the hub confirms or rejects the join.
func (c *SyncClient) join(ctx context.Context, sessionID string, backend workspace.Backend, bridge *workspace.Bridge) error {
	c.mu.Lock()
	if c.conn != nil {
		c.mu.Unlock()
		return fmt.Errorf("already joined to session %s", c.sessionID)
	}
	c.mu.Unlock()

	address, err := socketURL(c.hubURL)
	if err != nil {
		return err
	}
	conn, err := c.dial(ctx, address)
	if err != nil {
		return err
	}

	join, err := protocol.NewEvent(protocol.EventJoin, protocol.JoinPayload{SessionID: sessionID})
	if err != nil {
		conn.Close()
		return err
	}
	if err := conn.WriteEvent(join); err != nil {
		conn.Close()
		return fmt.Errorf("%w: %v", ErrTransportUnavailable, err)
	}

	seed, err := awaitSeed(conn)
	if err != nil {
		conn.Close()
		return err
	}

	c.store.Replace(seed.Files)
	openFile := seed.CurrentFile
	if _, ok := c.store.Get(openFile); !ok {
		openFile = ""
		if names := c.store.Files(); len(names) > 0 {
			openFile = names[0]
		}
	}

	c.mu.Lock()
	c.conn = conn
	c.sessionID = sessionID
	c.openFile = openFile
	c.backend = backend
	c.bridge = bridge
	c.leaving = false
	c.readDone = make(chan struct{})
	done := c.readDone
	c.mu.Unlock()

	go c.readLoop(conn, done)
	c.logger.Info("joined session", "session", sessionID, "files", c.store.Len(), "open", openFile)
	return nil
}

// awaitSeed reads events until the join is confirmed with a snapshot
// or rejected with an error.
func awaitSeed(conn protocol.EventConn) (protocol.SessionJoinedPayload, error) {
	for {
		envelope, err := conn.ReadEvent()
		if err != nil {
			return protocol.SessionJoinedPayload{}, fmt.Errorf("%w: %v", ErrTransportUnavailable, err)
		}
		switch envelope.Type {
		case protocol.EventSessionJoined:
			var seed protocol.SessionJoinedPayload
			if err := envelope.DecodePayload(&seed); err != nil {
				return protocol.SessionJoinedPayload{}, fmt.Errorf("decode session seed: %w", err)
			}
			return seed, nil
		case protocol.EventError:
			var failure protocol.ErrorPayload
			if err := envelope.DecodePayload(&failure); err != nil {
				return protocol.SessionJoinedPayload{}, fmt.Errorf("decode join error: %w", err)
			}
			if strings.Contains(failure.Message, "not found") {
				return protocol.SessionJoinedPayload{}, fmt.Errorf("%w: %s", ErrSessionNotFound, failure.Message)
			}
			return protocol.SessionJoinedPayload{}, errors.New(failure.Message)
		default:
			// user_joined for someone racing us in, or similar.
			// The seed is still coming.
		}
	}
}

// Leave flushes pending work, notifies the hub, and disconnects.
// Safe to call when not joined.
func (c *SyncClient) Leave(ctx context.Context) error {
	c.mu.Lock()
	conn := c.conn
	if conn == nil {
		c.mu.Unlock()
		return nil
	}
	sessionID := c.sessionID
	c.leaving = true
	drained := c.drainPendingLocked()
	bridge := c.bridge
	done := c.readDone
	c.mu.Unlock()

	for name, content := range drained {
		c.emitCodeChange(conn, sessionID, name, content)
	}
	if bridge != nil {
		bridge.Close()
	}

	leave, err := protocol.NewEvent(protocol.EventLeave, protocol.LeavePayload{SessionID: sessionID})
	if err == nil {
		if writeErr := conn.WriteEvent(leave); writeErr != nil {
			c.logger.Debug("leave notification failed", "error", writeErr)
		}
	}
	conn.Close()

	select {
	case <-done:
	case <-ctx.Done():
		return ctx.Err()
	}
	return nil
}

// Edit records a local edit to name and schedules its emission. An
// Edit whose content matches a remote-origin mutation is the editor
// echoing an update this client just applied, and is dropped.
func (c *SyncClient) Edit(name, content string) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.conn == nil {
		return ErrNotJoined
	}

	if current, ok := c.store.Get(name); ok && current == content {
		if origin, ok := c.store.LastOrigin(name); ok && origin == workspace.OriginRemote {
			return nil
		}
	}

	c.store.Set(name, content, workspace.OriginLocal)
	if c.bridge != nil {
		c.bridge.FileChanged(name, content, workspace.OriginLocal, name == c.openFile)
	}
	c.scheduleSendLocked(name, content)
	return nil
}

// SwitchFile moves this participant's open file to name and, when this
// participant owns the session, drags collaborators along. The hub
// ignores the broadcast from non-owners; their pointer moves locally
// only.
func (c *SyncClient) SwitchFile(name string) error {
	c.mu.Lock()
	if c.conn == nil {
		c.mu.Unlock()
		return ErrNotJoined
	}
	content, ok := c.store.Get(name)
	if !ok {
		c.mu.Unlock()
		return fmt.Errorf("switch to %q: no such file", name)
	}
	c.openFile = name
	conn := c.conn
	sessionID := c.sessionID
	c.mu.Unlock()

	event, err := protocol.NewEvent(protocol.EventSwitchFile, protocol.SwitchFilePayload{
		SessionID: sessionID,
		Filename:  name,
		Content:   content,
	})
	if err != nil {
		return err
	}
	return conn.WriteEvent(event)
}

// CreateFile adds a new file to the workspace and broadcasts it.
func (c *SyncClient) CreateFile(name, content string) error {
	if err := workspace.ValidateName(name); err != nil {
		return err
	}
	c.mu.Lock()
	if c.conn == nil {
		c.mu.Unlock()
		return ErrNotJoined
	}
	if _, exists := c.store.Get(name); exists {
		c.mu.Unlock()
		return fmt.Errorf("create %q: file already exists", name)
	}
	c.store.Set(name, content, workspace.OriginLocal)
	if c.bridge != nil {
		c.bridge.FileChanged(name, content, workspace.OriginLocal, false)
	}
	conn := c.conn
	sessionID := c.sessionID
	c.mu.Unlock()

	c.notifyFileList()
	return c.emitFileOperation(conn, protocol.FileOperationPayload{
		SessionID: sessionID,
		Op:        protocol.OpCreate,
		Filename:  name,
		Content:   content,
	})
}

// RenameFile renames a workspace file, locally first and then on the
// wire. The open-file pointer follows the rename, and a pending edit
// emission is carried to the new name so no content is lost.
func (c *SyncClient) RenameFile(oldName, newName string) error {
	if err := workspace.ValidateName(newName); err != nil {
		return err
	}
	c.mu.Lock()
	if c.conn == nil {
		c.mu.Unlock()
		return ErrNotJoined
	}
	if err := c.store.Rename(oldName, newName, workspace.OriginLocal); err != nil {
		c.mu.Unlock()
		return err
	}
	if c.openFile == oldName {
		c.openFile = newName
	}
	if pending, ok := c.pending[oldName]; ok {
		pending.timer.Stop()
		delete(c.pending, oldName)
		c.scheduleSendLocked(newName, pending.content)
	}
	if c.backend != nil {
		if err := c.backend.Rename(oldName, newName); err != nil {
			c.logger.Warn("rename on storage failed", "from", oldName, "to", newName, "error", err)
		}
	}
	if c.bridge != nil {
		c.bridge.FileRenamed(oldName, newName)
	}
	content, _ := c.store.Get(newName)
	conn := c.conn
	sessionID := c.sessionID
	c.mu.Unlock()

	c.notifyFileList()
	return c.emitFileOperation(conn, protocol.FileOperationPayload{
		SessionID:   sessionID,
		Op:          protocol.OpRename,
		Filename:    oldName,
		NewFilename: newName,
		Content:     content,
	})
}

// DeleteFile removes a workspace file locally and broadcasts the
// deletion. A pending edit emission for the file is cancelled.
func (c *SyncClient) DeleteFile(name string) error {
	c.mu.Lock()
	if c.conn == nil {
		c.mu.Unlock()
		return ErrNotJoined
	}
	if !c.store.Delete(name, workspace.OriginLocal) {
		c.mu.Unlock()
		return fmt.Errorf("delete %q: no such file", name)
	}
	if pending, ok := c.pending[name]; ok {
		pending.timer.Stop()
		delete(c.pending, name)
	}
	if c.openFile == name {
		c.openFile = ""
		if names := c.store.Files(); len(names) > 0 {
			c.openFile = names[0]
		}
	}
	if c.backend != nil {
		if err := c.backend.Remove(name); err != nil {
			c.logger.Warn("remove on storage failed", "file", name, "error", err)
		}
	}
	if c.bridge != nil {
		c.bridge.FileRemoved(name)
	}
	conn := c.conn
	sessionID := c.sessionID
	c.mu.Unlock()

	c.notifyFileList()
	return c.emitFileOperation(conn, protocol.FileOperationPayload{
		SessionID: sessionID,
		Op:        protocol.OpDelete,
		Filename:  name,
	})
}

// Flush emits every pending edit immediately. Useful before running
// code or handing off the session.
func (c *SyncClient) Flush() {
	c.mu.Lock()
	conn := c.conn
	sessionID := c.sessionID
	drained := c.drainPendingLocked()
	c.mu.Unlock()
	if conn == nil {
		return
	}
	for name, content := range drained {
		c.emitCodeChange(conn, sessionID, name, content)
	}
}

// drainPendingLocked stops all pending timers and returns their
// contents. Caller holds c.mu.
func (c *SyncClient) drainPendingLocked() map[string]string {
	drained := make(map[string]string, len(c.pending))
	for name, pending := range c.pending {
		pending.timer.Stop()
		drained[name] = pending.content
	}
	c.pending = make(map[string]*pendingSend)
	return drained
}

// scheduleSendLocked arms or re-arms the outbound debounce for name.
// Caller holds c.mu.
func (c *SyncClient) scheduleSendLocked(name, content string) {
	if pending, ok := c.pending[name]; ok {
		pending.content = content
		pending.timer.Reset(c.sendDelay)
		return
	}
	pending := &pendingSend{content: content}
	pending.timer = c.clock.AfterFunc(c.sendDelay, func() { c.fireSend(name) })
	c.pending[name] = pending
}

// fireSend is the debounce timer callback for name.
func (c *SyncClient) fireSend(name string) {
	c.mu.Lock()
	pending, ok := c.pending[name]
	if !ok {
		c.mu.Unlock()
		return
	}
	delete(c.pending, name)
	content := pending.content
	conn := c.conn
	sessionID := c.sessionID
	c.mu.Unlock()
	if conn == nil {
		return
	}
	c.emitCodeChange(conn, sessionID, name, content)
}

func (c *SyncClient) emitCodeChange(conn protocol.EventConn, sessionID, name, content string) {
	event, err := protocol.NewEvent(protocol.EventCodeChange, protocol.CodeChangePayload{
		SessionID: sessionID,
		Filename:  name,
		Content:   content,
	})
	if err != nil {
		c.logger.Error("encode code_change", "file", name, "error", err)
		return
	}
	if err := conn.WriteEvent(event); err != nil {
		c.logger.Warn("emit code_change failed", "file", name, "error", err)
	}
}

func (c *SyncClient) emitFileOperation(conn protocol.EventConn, operation protocol.FileOperationPayload) error {
	event, err := protocol.NewEvent(protocol.EventFileOperation, operation)
	if err != nil {
		return err
	}
	return conn.WriteEvent(event)
}

// readLoop applies relayed events until the connection fails or is
// closed locally.
func (c *SyncClient) readLoop(conn protocol.EventConn, done chan struct{}) {
	defer close(done)
	for {
		envelope, err := conn.ReadEvent()
		if err != nil {
			c.disconnected(conn, err)
			return
		}
		c.handleEvent(envelope)
	}
}

// disconnected tears down session state after the connection ends.
func (c *SyncClient) disconnected(conn protocol.EventConn, err error) {
	c.mu.Lock()
	if c.conn != conn {
		// A newer join already replaced this connection.
		c.mu.Unlock()
		return
	}
	leaving := c.leaving
	bridge := c.bridge
	for name, pending := range c.pending {
		pending.timer.Stop()
		delete(c.pending, name)
	}
	c.conn = nil
	c.sessionID = ""
	c.backend = nil
	c.bridge = nil
	c.mu.Unlock()

	if bridge != nil {
		bridge.Close()
	}
	if leaving {
		return
	}
	c.logger.Warn("disconnected from hub", "error", err)
	if c.handlers.Disconnected != nil {
		c.handlers.Disconnected(err)
	}
}

// handleEvent applies one relayed event to the replica and notifies
// the shell.
func (c *SyncClient) handleEvent(envelope protocol.Envelope) {
	switch envelope.Type {
	case protocol.EventCodeUpdate:
		var update protocol.CodeUpdatePayload
		if err := envelope.DecodePayload(&update); err != nil {
			c.logger.Warn("malformed code_update", "error", err)
			return
		}
		c.applyCodeUpdate(update)

	case protocol.EventFileSwitched:
		var switched protocol.FileSwitchedPayload
		if err := envelope.DecodePayload(&switched); err != nil {
			c.logger.Warn("malformed file_switched", "error", err)
			return
		}
		c.applyFileSwitched(switched)

	case protocol.EventFileOperation:
		var operation protocol.FileOperationPayload
		if err := envelope.DecodePayload(&operation); err != nil {
			c.logger.Warn("malformed file_operation", "error", err)
			return
		}
		c.applyFileOperation(operation)

	case protocol.EventUserJoined:
		var joined protocol.UserJoinedPayload
		if err := envelope.DecodePayload(&joined); err != nil {
			return
		}
		if c.handlers.ParticipantJoined != nil {
			c.handlers.ParticipantJoined(joined.ParticipantID)
		}

	case protocol.EventUserLeft:
		var left protocol.UserLeftPayload
		if err := envelope.DecodePayload(&left); err != nil {
			return
		}
		if c.handlers.ParticipantLeft != nil {
			c.handlers.ParticipantLeft(left.ParticipantID)
		}

	case protocol.EventError:
		var failure protocol.ErrorPayload
		if err := envelope.DecodePayload(&failure); err != nil {
			return
		}
		c.logger.Warn("session error from hub", "message", failure.Message)
		if c.handlers.SessionClosed != nil {
			c.handlers.SessionClosed(failure.Message)
		}

	default:
		c.logger.Debug("unknown event type ignored", "type", envelope.Type)
	}
}

// applyCodeUpdate installs a remote edit. The mutation is tagged
// remote so the editor's subsequent echo of the same content is not
// re-emitted.
func (c *SyncClient) applyCodeUpdate(update protocol.CodeUpdatePayload) {
	c.store.Set(update.Filename, update.Content, workspace.OriginRemote)

	c.mu.Lock()
	open := c.openFile == update.Filename
	bridge := c.bridge
	c.mu.Unlock()

	if bridge != nil {
		bridge.FileChanged(update.Filename, update.Content, workspace.OriginRemote, open)
	}
	if open && c.handlers.BufferUpdated != nil {
		c.handlers.BufferUpdated(update.Filename, update.Content)
	}
}

// applyFileSwitched follows the owner to another file. A switch for a
// filename this replica has never seen and that carries no content is
// stale (the file was deleted after the switch was sent) and ignored.
func (c *SyncClient) applyFileSwitched(switched protocol.FileSwitchedPayload) {
	_, known := c.store.Get(switched.Filename)
	if !known && switched.Content == "" {
		c.logger.Debug("stale file_switched ignored", "file", switched.Filename)
		return
	}
	if switched.Content != "" {
		c.store.Set(switched.Filename, switched.Content, workspace.OriginRemote)
	}

	c.mu.Lock()
	c.openFile = switched.Filename
	bridge := c.bridge
	c.mu.Unlock()

	if bridge != nil {
		bridge.FileChanged(switched.Filename, switched.Content, workspace.OriginRemote, true)
	}
	if c.handlers.FileSwitched != nil {
		content, _ := c.store.Get(switched.Filename)
		c.handlers.FileSwitched(switched.Filename, content)
	}
}

// applyFileOperation replays another participant's file lifecycle
// operation on this replica.
func (c *SyncClient) applyFileOperation(operation protocol.FileOperationPayload) {
	switch operation.Op {
	case protocol.OpCreate:
		c.store.Set(operation.Filename, operation.Content, workspace.OriginRemote)
		c.mu.Lock()
		bridge := c.bridge
		c.mu.Unlock()
		if bridge != nil {
			bridge.FileChanged(operation.Filename, operation.Content, workspace.OriginRemote, false)
		}

	case protocol.OpRename:
		if err := c.store.Rename(operation.Filename, operation.NewFilename, workspace.OriginRemote); err != nil {
			// Relay order can deliver a rename after this replica
			// already dropped the source; install the content the
			// payload carries.
			c.store.Set(operation.NewFilename, operation.Content, workspace.OriginRemote)
		}
		c.mu.Lock()
		if c.openFile == operation.Filename {
			c.openFile = operation.NewFilename
		}
		backend := c.backend
		bridge := c.bridge
		c.mu.Unlock()
		if backend != nil {
			if err := backend.Rename(operation.Filename, operation.NewFilename); err != nil {
				c.logger.Warn("rename on storage failed",
					"from", operation.Filename, "to", operation.NewFilename, "error", err)
			}
		}
		if bridge != nil {
			bridge.FileRenamed(operation.Filename, operation.NewFilename)
		}

	case protocol.OpDelete:
		c.store.Delete(operation.Filename, workspace.OriginRemote)
		c.mu.Lock()
		if pending, ok := c.pending[operation.Filename]; ok {
			pending.timer.Stop()
			delete(c.pending, operation.Filename)
		}
		if c.openFile == operation.Filename {
			c.openFile = ""
			if names := c.store.Files(); len(names) > 0 {
				c.openFile = names[0]
			}
		}
		backend := c.backend
		bridge := c.bridge
		c.mu.Unlock()
		if backend != nil {
			if err := backend.Remove(operation.Filename); err != nil {
				c.logger.Warn("remove on storage failed", "file", operation.Filename, "error", err)
			}
		}
		if bridge != nil {
			bridge.FileRemoved(operation.Filename)
		}

	default:
		c.logger.Warn("unknown file operation ignored", "op", operation.Op)
		return
	}

	c.notifyFileList()
}

// notifyFileList reports the current sorted file list to the shell.
func (c *SyncClient) notifyFileList() {
	if c.handlers.FileListChanged != nil {
		c.handlers.FileListChanged(c.store.Files())
	}
}

func minString(names []string) string {
	smallest := names[0]
	for _, name := range names[1:] {
		if name < smallest {
			smallest = name
		}
	}
	return smallest
}
