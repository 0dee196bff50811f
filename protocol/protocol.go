// Copyright 2026 The Atelier Authors
// SPDX-License-Identifier: Apache-2.0

// Package protocol defines the wire format for Atelier collaboration
// sessions: the event vocabulary exchanged between participants and
// the hub, and the envelope codec that carries events over a
// persistent websocket.
//
// Every frame on the session socket is a single CBOR-encoded Envelope.
// The envelope's type string selects the payload structure; payloads
// are decoded lazily so unknown event types can be skipped without
// breaking the stream.
//
// The protocol is deliberately last-writer-wins: a code_update always
// carries the full file content and fully replaces the receiver's
// copy. No diffs, no merge.
package protocol

import (
	"fmt"

	"github.com/atelier-dev/atelier/lib/codec"
)

// Event type constants. Direction notes: C is a participant client,
// S is the hub.
const (
	// EventJoin subscribes the connection to a session. C→S. The hub
	// answers with session_joined on success or error on failure.
	EventJoin = "join"

	// EventLeave unsubscribes the connection from a session. C→S.
	// Idempotent: leaving a session the connection is not part of is
	// not an error.
	EventLeave = "leave"

	// EventSessionJoined delivers the snapshot seed to a joining
	// participant. S→C, sent once per successful join.
	EventSessionJoined = "session_joined"

	// EventCodeChange carries a participant's debounced edit to the
	// hub. C→S. The hub updates its snapshot and relays the content
	// as code_update to every other participant of the session.
	EventCodeChange = "code_change"

	// EventCodeUpdate carries another participant's edit. S→C. The
	// receiver overwrites its copy of the file; if the file is open,
	// the buffer is replaced and the mutation is marked remote-origin.
	EventCodeUpdate = "code_update"

	// EventSwitchFile tells the hub the owner opened a different
	// file. C→S, owner only.
	EventSwitchFile = "switch_file"

	// EventFileSwitched tells collaborators to follow the owner to a
	// different file. S→C, collaborators only.
	EventFileSwitched = "file_switched"

	// EventFileOperation carries a create, rename, or delete.
	// C→S→C, relayed verbatim to every other participant.
	EventFileOperation = "file_operation"

	// EventUserJoined and EventUserLeft are informational membership
	// notifications. S→C. No replicated state changes.
	EventUserJoined = "user_joined"
	EventUserLeft   = "user_left"

	// EventError carries a human-readable failure message. S→C.
	// A join that names an unknown session is answered with one of
	// these; so is session teardown when the owner departs.
	EventError = "error"
)

// File operation kinds for FileOperationPayload.Op.
const (
	OpCreate = "create"
	OpRename = "rename"
	OpDelete = "delete"
)

// Envelope is the frame structure for every session socket message.
type Envelope struct {
	// Type is one of the Event constants.
	Type string `cbor:"type"`

	// Payload is the CBOR-encoded payload for Type. Empty for events
	// that carry no payload.
	Payload codec.RawMessage `cbor:"payload,omitempty"`
}

// NewEvent builds an envelope of the given type around payload.
func NewEvent(eventType string, payload any) (Envelope, error) {
	if payload == nil {
		return Envelope{Type: eventType}, nil
	}
	raw, err := codec.Marshal(payload)
	if err != nil {
		return Envelope{}, fmt.Errorf("marshal %s payload: %w", eventType, err)
	}
	return Envelope{Type: eventType, Payload: raw}, nil
}

// MustEvent is NewEvent for payloads that cannot fail to marshal
// (plain structs of strings and maps). Panics on marshal failure.
func MustEvent(eventType string, payload any) Envelope {
	envelope, err := NewEvent(eventType, payload)
	if err != nil {
		panic(err)
	}
	return envelope
}

// DecodePayload unmarshals the envelope's payload into v.
func (e Envelope) DecodePayload(v any) error {
	if len(e.Payload) == 0 {
		return fmt.Errorf("%s event has no payload", e.Type)
	}
	if err := codec.Unmarshal(e.Payload, v); err != nil {
		return fmt.Errorf("decode %s payload: %w", e.Type, err)
	}
	return nil
}

// JoinPayload subscribes to a session.
type JoinPayload struct {
	SessionID string `cbor:"session_id"`
}

// LeavePayload unsubscribes from a session.
type LeavePayload struct {
	SessionID string `cbor:"session_id"`
}

// SessionJoinedPayload is the snapshot seed delivered on join. Files
// is a full copy of the session's replicated file state at join time.
type SessionJoinedPayload struct {
	Files         map[string]string `cbor:"files"`
	CurrentFile   string            `cbor:"current_file"`
	WorkspaceName string            `cbor:"workspace_name"`
}

// CodeChangePayload is a participant's debounced edit.
type CodeChangePayload struct {
	SessionID string `cbor:"session_id"`
	Filename  string `cbor:"filename"`
	Content   string `cbor:"content"`
}

// CodeUpdatePayload is a relayed edit. Content is the complete file
// text, not a diff.
type CodeUpdatePayload struct {
	Filename string `cbor:"filename"`
	Content  string `cbor:"content"`
}

// SwitchFilePayload announces the owner's new current file. Content
// rides along so collaborators can display the file without a
// round-trip even if their replica is stale.
type SwitchFilePayload struct {
	SessionID string `cbor:"session_id"`
	Filename  string `cbor:"filename"`
	Content   string `cbor:"content"`
}

// FileSwitchedPayload tells a collaborator to follow the owner.
type FileSwitchedPayload struct {
	Filename string `cbor:"filename"`
	Content  string `cbor:"content"`
}

// FileOperationPayload carries a file lifecycle operation. NewFilename
// is set only for renames. Content is set for create (initial content,
// usually empty) and rename (content under the new name).
type FileOperationPayload struct {
	SessionID   string `cbor:"session_id"`
	Op          string `cbor:"op"`
	Filename    string `cbor:"filename"`
	NewFilename string `cbor:"new_filename,omitempty"`
	Content     string `cbor:"content,omitempty"`
}

// Validate checks the operation's shape before it is applied or
// relayed.
func (p FileOperationPayload) Validate() error {
	switch p.Op {
	case OpCreate, OpDelete:
		if p.Filename == "" {
			return fmt.Errorf("%s operation requires a filename", p.Op)
		}
	case OpRename:
		if p.Filename == "" || p.NewFilename == "" {
			return fmt.Errorf("rename operation requires both filenames")
		}
		if p.Filename == p.NewFilename {
			return fmt.Errorf("rename operation with identical names %q", p.Filename)
		}
	default:
		return fmt.Errorf("unknown file operation %q", p.Op)
	}
	return nil
}

// UserJoinedPayload announces a new participant.
type UserJoinedPayload struct {
	ParticipantID string `cbor:"participant_id"`
}

// UserLeftPayload announces a departed participant.
type UserLeftPayload struct {
	ParticipantID string `cbor:"participant_id"`
}

// ErrorPayload carries a human-readable failure message.
type ErrorPayload struct {
	Message string `cbor:"message"`
}

// CreateSessionRequest is the JSON body of POST /api/sessions.
type CreateSessionRequest struct {
	Files         map[string]string `json:"files"`
	WorkspaceName string            `json:"workspace_name"`
	CurrentFile   string            `json:"current_file"`
}

// CreateSessionResponse is the JSON response of POST /api/sessions.
// ShareURL embeds the session ID as a query parameter so a recipient
// can auto-join.
type CreateSessionResponse struct {
	SessionID string `json:"session_id"`
	ShareURL  string `json:"share_url"`
}

// ExecuteRequest is the JSON body of POST /api/execute.
type ExecuteRequest struct {
	Code     string `json:"code"`
	Language string `json:"language"`
}

// ExecuteResponse is the JSON response of POST /api/execute. Output
// and Error can both be set when a program writes to stderr and still
// produces output.
type ExecuteResponse struct {
	Output string `json:"output,omitempty"`
	Error  string `json:"error,omitempty"`
}
