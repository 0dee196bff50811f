// Copyright 2026 The Atelier Authors
// SPDX-License-Identifier: Apache-2.0

package workspace

import (
	"fmt"
	"strings"
	"sync"
)

// Backend is the storage capability a participant holds. Two
// implementations exist:
//
//   - *LocalBackend: the owner's real directory. Writes are durable;
//     this is the authoritative copy of the workspace.
//   - *ReplicaBackend: a collaborator's in-memory view. Writes
//     succeed but touch no durable storage.
//
// The backend is chosen once when the participant starts and never
// branched on afterwards: code that holds a Backend does not know or
// care which side of the session it is on.
type Backend interface {
	// ReadFile returns the content of name.
	ReadFile(name string) (string, error)

	// WriteFile overwrites name with content, creating it if absent.
	// Whole-file overwrite; there are no partial patches.
	WriteFile(name, content string) error

	// Remove deletes name.
	Remove(name string) error

	// Rename moves oldName to newName. The new file is written
	// before the old one is removed, so a crash between the two
	// leaves both rather than neither.
	Rename(oldName, newName string) error

	// List returns the filenames in the workspace.
	List() ([]string, error)
}

// ValidateName rejects filenames that escape the flat replicated
// namespace. The protocol has no directory nesting, so a name with a
// path separator is either a client bug or an attempt to write
// outside the workspace root.
func ValidateName(name string) error {
	if name == "" {
		return fmt.Errorf("empty filename")
	}
	if strings.ContainsAny(name, "/\\") {
		return fmt.Errorf("filename %q contains a path separator", name)
	}
	if name == "." || name == ".." {
		return fmt.Errorf("filename %q is not a file", name)
	}
	return nil
}

// ReplicaBackend is the memory-only Backend collaborators use. It
// satisfies reads and writes against a private map; nothing reaches
// durable storage. A collaborator's durable copy does not exist by
// design: the owner's disk is the single authoritative store.
type ReplicaBackend struct {
	mu    sync.RWMutex
	files map[string]string
}

// NewReplicaBackend returns a ReplicaBackend seeded with the given
// files (typically the join snapshot).
func NewReplicaBackend(seed map[string]string) *ReplicaBackend {
	files := make(map[string]string, len(seed))
	for name, content := range seed {
		files[name] = content
	}
	return &ReplicaBackend{files: files}
}

// ReadFile returns the replica's content for name.
func (b *ReplicaBackend) ReadFile(name string) (string, error) {
	if err := ValidateName(name); err != nil {
		return "", err
	}
	b.mu.RLock()
	defer b.mu.RUnlock()
	content, ok := b.files[name]
	if !ok {
		return "", fmt.Errorf("read %q: no such file", name)
	}
	return content, nil
}

// WriteFile records content in the replica.
func (b *ReplicaBackend) WriteFile(name, content string) error {
	if err := ValidateName(name); err != nil {
		return err
	}
	b.mu.Lock()
	defer b.mu.Unlock()
	b.files[name] = content
	return nil
}

// Remove deletes name from the replica.
func (b *ReplicaBackend) Remove(name string) error {
	if err := ValidateName(name); err != nil {
		return err
	}
	b.mu.Lock()
	defer b.mu.Unlock()
	if _, ok := b.files[name]; !ok {
		return fmt.Errorf("remove %q: no such file", name)
	}
	delete(b.files, name)
	return nil
}

// Rename moves oldName to newName in the replica.
func (b *ReplicaBackend) Rename(oldName, newName string) error {
	if err := ValidateName(oldName); err != nil {
		return err
	}
	if err := ValidateName(newName); err != nil {
		return err
	}
	b.mu.Lock()
	defer b.mu.Unlock()
	content, ok := b.files[oldName]
	if !ok {
		return fmt.Errorf("rename %q: no such file", oldName)
	}
	b.files[newName] = content
	delete(b.files, oldName)
	return nil
}

// List returns the replica's filenames.
func (b *ReplicaBackend) List() ([]string, error) {
	b.mu.RLock()
	defer b.mu.RUnlock()
	names := make([]string, 0, len(b.files))
	for name := range b.files {
		names = append(names, name)
	}
	return names, nil
}
