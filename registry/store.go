// Copyright 2026 The Atelier Authors
// SPDX-License-Identifier: Apache-2.0

package registry

import (
	"context"
	"sync"
)

// Snapshot is the durable state of a session: the replicated file
// contents plus the metadata a joining participant needs. Connection
// membership is deliberately absent — connections cannot outlive the
// hub process, snapshots can.
type Snapshot struct {
	Files         map[string]string `cbor:"files"`
	WorkspaceName string            `cbor:"workspace_name"`
	CurrentFile   string            `cbor:"current_file"`
}

// clone returns a deep copy. Snapshots cross goroutine boundaries
// (join seeds, store writes), so the live map is never shared.
func (s Snapshot) clone() Snapshot {
	files := make(map[string]string, len(s.Files))
	for name, content := range s.Files {
		files[name] = content
	}
	return Snapshot{
		Files:         files,
		WorkspaceName: s.WorkspaceName,
		CurrentFile:   s.CurrentFile,
	}
}

// SessionStore persists session snapshots. The registry writes
// through on every mutation and reads on join when the session is not
// already live (which after a hub restart resurrects the session).
//
// MemoryStore serves a single-instance deployment; RedisStore adds
// restart durability. Neither replicates connection membership.
type SessionStore interface {
	// Save stores the snapshot for id, replacing any prior one.
	Save(ctx context.Context, id string, snapshot Snapshot) error

	// Load returns the snapshot for id, with ok false if absent.
	Load(ctx context.Context, id string) (snapshot Snapshot, ok bool, err error)

	// Delete removes the snapshot for id. Deleting an absent id is
	// not an error.
	Delete(ctx context.Context, id string) error
}

// MemoryStore is the in-process SessionStore.
type MemoryStore struct {
	mu        sync.Mutex
	snapshots map[string]Snapshot
}

// NewMemoryStore returns an empty MemoryStore.
func NewMemoryStore() *MemoryStore {
	return &MemoryStore{snapshots: make(map[string]Snapshot)}
}

// Save stores a deep copy of snapshot.
func (m *MemoryStore) Save(ctx context.Context, id string, snapshot Snapshot) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.snapshots[id] = snapshot.clone()
	return nil
}

// Load returns a deep copy of the stored snapshot.
func (m *MemoryStore) Load(ctx context.Context, id string) (Snapshot, bool, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	snapshot, ok := m.snapshots[id]
	if !ok {
		return Snapshot{}, false, nil
	}
	return snapshot.clone(), true, nil
}

// Delete removes the snapshot for id.
func (m *MemoryStore) Delete(ctx context.Context, id string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	delete(m.snapshots, id)
	return nil
}
