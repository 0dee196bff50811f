// Copyright 2026 The Atelier Authors
// SPDX-License-Identifier: Apache-2.0

package registry

import (
	"context"
	"fmt"
	"log/slog"
	"net/url"
	"sync"

	"github.com/google/uuid"

	"github.com/atelier-dev/atelier/protocol"
)

// Config configures a Registry.
type Config struct {
	// Store persists session snapshots. Required.
	Store SessionStore

	// Logger receives hub activity. Required.
	Logger *slog.Logger

	// PublicURL is the externally reachable base URL of the hub,
	// embedded in share URLs (e.g. "http://192.168.1.20:7009").
	PublicURL string
}

// Registry is the hub's session table and relay. One Registry exists
// per process, constructed in main and handed to the HTTP layer.
type Registry struct {
	store     SessionStore
	logger    *slog.Logger
	publicURL string

	mu       sync.Mutex
	sessions map[string]*session
}

// session is one live collaboration session. Its mutex serializes
// every snapshot mutation and the fan-out it triggers, which is what
// gives the session a single total event order.
type session struct {
	id string

	mu           sync.Mutex
	snapshot     Snapshot
	ownerID      string // participant id of the owner; "" until the creator joins
	participants map[string]*participant
}

// participant is the hub's handle on one connected client: an
// ordered, buffered outbound queue plus a kick switch for consumers
// that stop draining it.
type participant struct {
	id string

	// kick force-closes the underlying connection. Called when the
	// send queue is full; the read loop then unwinds through the
	// normal disconnect path.
	kick func()

	// mu serializes enqueue against closeSend. Session teardown can
	// close a collaborator's queue from the owner's read loop while
	// the collaborator's own read loop is replying; without the
	// guard that is a send on a closed channel.
	mu     sync.Mutex
	closed bool
	send   chan protocol.Envelope
}

// closeSend closes the outbound queue, stopping the write pump after
// it drains the events already queued. Idempotent.
func (p *participant) closeSend() {
	p.mu.Lock()
	defer p.mu.Unlock()
	if !p.closed {
		p.closed = true
		close(p.send)
	}
}

// sendQueueSize bounds the outbound queue per participant. A full
// queue means the consumer has stalled for hundreds of events; such
// connections are kicked rather than allowed to stall the relay.
const sendQueueSize = 256

// New constructs a Registry. Panics if Store or Logger is nil.
func New(config Config) *Registry {
	if config.Store == nil || config.Logger == nil {
		panic("registry.New: Store and Logger are required")
	}
	return &Registry{
		store:     config.Store,
		logger:    config.Logger,
		publicURL: config.PublicURL,
		sessions:  make(map[string]*session),
	}
}

// CreateSession registers a new session seeded with the request's
// workspace files and returns its identifier and share URL. The
// creator is expected to join over the websocket immediately after;
// the first participant to join a fresh session is recorded as its
// owner.
func (r *Registry) CreateSession(ctx context.Context, request protocol.CreateSessionRequest) (protocol.CreateSessionResponse, error) {
	files := request.Files
	if files == nil {
		files = make(map[string]string)
	}

	id := uuid.NewString()
	snapshot := Snapshot{
		Files:         files,
		WorkspaceName: request.WorkspaceName,
		CurrentFile:   request.CurrentFile,
	}

	if err := r.store.Save(ctx, id, snapshot); err != nil {
		return protocol.CreateSessionResponse{}, fmt.Errorf("save session snapshot: %w", err)
	}

	r.mu.Lock()
	r.sessions[id] = &session{
		id:           id,
		snapshot:     snapshot.clone(),
		participants: make(map[string]*participant),
	}
	r.mu.Unlock()

	r.logger.Info("session created",
		"session", id,
		"workspace", request.WorkspaceName,
		"files", len(files),
	)

	return protocol.CreateSessionResponse{
		SessionID: id,
		ShareURL:  r.shareURL(id),
	}, nil
}

// shareURL embeds the session id as a query parameter on the hub's
// public URL.
func (r *Registry) shareURL(sessionID string) string {
	return fmt.Sprintf("%s/?session=%s", r.publicURL, url.QueryEscape(sessionID))
}

// SessionCount returns the number of live sessions.
func (r *Registry) SessionCount() int {
	r.mu.Lock()
	defer r.mu.Unlock()
	return len(r.sessions)
}

// lookup returns the live session for id, resurrecting it from the
// store if the hub restarted since it was created. The ok result is
// false when the id is unknown everywhere.
func (r *Registry) lookup(ctx context.Context, id string) (*session, bool) {
	r.mu.Lock()
	if s, ok := r.sessions[id]; ok {
		r.mu.Unlock()
		return s, true
	}
	r.mu.Unlock()

	snapshot, found, err := r.store.Load(ctx, id)
	if err != nil {
		r.logger.Error("session store load failed", "session", id, "error", err)
		return nil, false
	}
	if !found {
		return nil, false
	}

	r.mu.Lock()
	defer r.mu.Unlock()
	// Another connection may have resurrected it while the store
	// round-trip was in flight.
	if s, ok := r.sessions[id]; ok {
		return s, true
	}
	s := &session{
		id:           id,
		snapshot:     snapshot,
		participants: make(map[string]*participant),
	}
	r.sessions[id] = s
	r.logger.Info("session resurrected from store", "session", id)
	return s, true
}

// join adds p to the session and returns the snapshot seed. The first
// participant to join a session with no owner becomes the owner
// (always the creator in the create-then-join flow). Other
// participants are notified with user_joined.
func (r *Registry) join(ctx context.Context, p *participant, sessionID string) (protocol.SessionJoinedPayload, error) {
	s, ok := r.lookup(ctx, sessionID)
	if !ok {
		return protocol.SessionJoinedPayload{}, fmt.Errorf("session %s not found", sessionID)
	}

	s.mu.Lock()
	defer s.mu.Unlock()
	if s.ownerID == "" {
		s.ownerID = p.id
	}
	s.participants[p.id] = p

	s.relayLocked(p.id, protocol.MustEvent(protocol.EventUserJoined, protocol.UserJoinedPayload{
		ParticipantID: p.id,
	}))

	seed := s.snapshot.clone()
	return protocol.SessionJoinedPayload{
		Files:         seed.Files,
		CurrentFile:   seed.CurrentFile,
		WorkspaceName: seed.WorkspaceName,
	}, nil
}

// leave removes p from the session. Idempotent: leaving a session p
// is not part of does nothing. If p is the owner, the session is torn
// down: the owner's storage is the durable source of truth, and a
// session without its authority can only diverge.
func (r *Registry) leave(ctx context.Context, p *participant, sessionID string) {
	r.mu.Lock()
	s, ok := r.sessions[sessionID]
	r.mu.Unlock()
	if !ok {
		return
	}

	s.mu.Lock()
	if _, member := s.participants[p.id]; !member {
		s.mu.Unlock()
		return
	}
	delete(s.participants, p.id)

	if s.ownerID == p.id {
		remaining := make([]*participant, 0, len(s.participants))
		for _, other := range s.participants {
			remaining = append(remaining, other)
		}
		closed := protocol.MustEvent(protocol.EventError, protocol.ErrorPayload{
			Message: "session closed by owner",
		})
		for _, other := range remaining {
			other.enqueue(closed)
			other.closeSend()
		}
		s.participants = make(map[string]*participant)
		s.mu.Unlock()

		r.mu.Lock()
		delete(r.sessions, sessionID)
		r.mu.Unlock()
		if err := r.store.Delete(ctx, sessionID); err != nil {
			r.logger.Error("session store delete failed", "session", sessionID, "error", err)
		}
		r.logger.Info("session closed", "session", sessionID, "collaborators", len(remaining))
		return
	}

	s.relayLocked(p.id, protocol.MustEvent(protocol.EventUserLeft, protocol.UserLeftPayload{
		ParticipantID: p.id,
	}))
	s.mu.Unlock()
}

// applyCodeChange updates the session snapshot for one file and
// relays the content to every other participant. A code_change for a
// filename absent from the snapshot re-creates it: delivery order at
// the hub is authoritative for key existence.
func (r *Registry) applyCodeChange(ctx context.Context, p *participant, change protocol.CodeChangePayload) {
	r.mu.Lock()
	s, ok := r.sessions[change.SessionID]
	r.mu.Unlock()
	if !ok {
		r.logger.Debug("code_change for unknown session", "session", change.SessionID)
		return
	}

	s.mu.Lock()
	defer s.mu.Unlock()
	if _, member := s.participants[p.id]; !member {
		r.logger.Debug("code_change from non-member", "session", s.id, "participant", p.id)
		return
	}

	s.snapshot.Files[change.Filename] = change.Content
	r.saveLocked(ctx, s)

	s.relayLocked(p.id, protocol.MustEvent(protocol.EventCodeUpdate, protocol.CodeUpdatePayload{
		Filename: change.Filename,
		Content:  change.Content,
	}))
}

// switchFile records the owner's new current file and tells
// collaborators to follow. Ignored (with a log line) when the sender
// is not the owner — collaborators may browse freely without dragging
// the session along.
func (r *Registry) switchFile(ctx context.Context, p *participant, switched protocol.SwitchFilePayload) {
	r.mu.Lock()
	s, ok := r.sessions[switched.SessionID]
	r.mu.Unlock()
	if !ok {
		return
	}

	s.mu.Lock()
	defer s.mu.Unlock()
	if s.ownerID != p.id {
		r.logger.Debug("switch_file from non-owner ignored", "session", s.id, "participant", p.id)
		return
	}

	s.snapshot.CurrentFile = switched.Filename
	if switched.Content != "" {
		s.snapshot.Files[switched.Filename] = switched.Content
	}
	r.saveLocked(ctx, s)

	s.relayLocked(p.id, protocol.MustEvent(protocol.EventFileSwitched, protocol.FileSwitchedPayload{
		Filename: switched.Filename,
		Content:  switched.Content,
	}))
}

// applyFileOperation mutates the snapshot's key set and relays the
// operation verbatim to every other participant.
func (r *Registry) applyFileOperation(ctx context.Context, p *participant, operation protocol.FileOperationPayload) error {
	if err := operation.Validate(); err != nil {
		return err
	}

	r.mu.Lock()
	s, ok := r.sessions[operation.SessionID]
	r.mu.Unlock()
	if !ok {
		return fmt.Errorf("session %s not found", operation.SessionID)
	}

	s.mu.Lock()
	defer s.mu.Unlock()
	if _, member := s.participants[p.id]; !member {
		return fmt.Errorf("not a participant of session %s", operation.SessionID)
	}

	switch operation.Op {
	case protocol.OpCreate:
		s.snapshot.Files[operation.Filename] = operation.Content
	case protocol.OpRename:
		content, exists := s.snapshot.Files[operation.Filename]
		if !exists {
			// The initiator renamed a file the hub never saw
			// (created and renamed within one debounce window).
			// Trust the payload's content.
			content = operation.Content
		}
		s.snapshot.Files[operation.NewFilename] = content
		delete(s.snapshot.Files, operation.Filename)
		if s.snapshot.CurrentFile == operation.Filename {
			s.snapshot.CurrentFile = operation.NewFilename
		}
	case protocol.OpDelete:
		delete(s.snapshot.Files, operation.Filename)
		if s.snapshot.CurrentFile == operation.Filename {
			s.snapshot.CurrentFile = ""
		}
	}
	r.saveLocked(ctx, s)

	s.relayLocked(p.id, protocol.MustEvent(protocol.EventFileOperation, operation))
	return nil
}

// saveLocked writes the session snapshot through to the store. Called
// with s.mu held so store writes observe mutations in relay order;
// store failures are logged and do not interrupt replication.
func (r *Registry) saveLocked(ctx context.Context, s *session) {
	if err := r.store.Save(ctx, s.id, s.snapshot); err != nil {
		r.logger.Error("session store save failed", "session", s.id, "error", err)
	}
}

// relayLocked enqueues envelope to every participant except sender,
// in map-iteration order. Callers hold s.mu, so successive relays
// reach every queue in the same order. Participants whose queue is
// full are kicked: their connection closes and the read loop unwinds
// through the normal disconnect path.
func (s *session) relayLocked(senderID string, envelope protocol.Envelope) {
	for id, other := range s.participants {
		if id == senderID {
			continue
		}
		if !other.enqueue(envelope) {
			other.kick()
		}
	}
}

// enqueue attempts a non-blocking send. Returns false if the queue is
// full. Events enqueued after the queue closed are silently dropped —
// the connection is already on its way out.
func (p *participant) enqueue(envelope protocol.Envelope) bool {
	p.mu.Lock()
	defer p.mu.Unlock()
	if p.closed {
		return true
	}
	select {
	case p.send <- envelope:
		return true
	default:
		return false
	}
}
