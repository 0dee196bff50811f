// Copyright 2026 The Atelier Authors
// SPDX-License-Identifier: Apache-2.0

package workspace

import (
	"fmt"
	"sort"
	"sync"
)

// Origin identifies where a FileStore mutation came from. The outbound
// sync debouncer inspects the origin of the mutation that armed it and
// suppresses the emit for remote-origin mutations, which is what keeps
// a just-applied update from echoing back to the hub.
type Origin string

const (
	// OriginLocal marks a mutation produced by this participant's own
	// editing.
	OriginLocal Origin = "local"

	// OriginRemote marks a mutation applied from a relayed event.
	OriginRemote Origin = "remote"
)

// FileStore is a participant's replicated file state: a flat mapping
// from filename to full text content. Content is always whole-file;
// the protocol never ships diffs.
//
// FileStore is safe for concurrent use.
type FileStore struct {
	mu      sync.RWMutex
	files   map[string]string
	origins map[string]Origin
}

// NewFileStore returns an empty store.
func NewFileStore() *FileStore {
	return &FileStore{
		files:   make(map[string]string),
		origins: make(map[string]Origin),
	}
}

// Set overwrites the content for name, creating the key if absent.
// A remote Set for a filename the participant has since deleted
// re-creates it: the hub's delivery order is authoritative for key
// existence as well as content.
func (s *FileStore) Set(name, content string, origin Origin) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.files[name] = content
	s.origins[name] = origin
}

// Get returns the content for name and whether the key exists.
func (s *FileStore) Get(name string) (string, bool) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	content, ok := s.files[name]
	return content, ok
}

// LastOrigin returns the origin of the most recent mutation to name.
func (s *FileStore) LastOrigin(name string) (Origin, bool) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	origin, ok := s.origins[name]
	return origin, ok
}

// Delete removes name from the store. Returns false if the key was
// absent (deleting an already-deleted file is not an error; the
// relayed operation may simply have lost the race).
func (s *FileStore) Delete(name string, origin Origin) bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, ok := s.files[name]; !ok {
		return false
	}
	delete(s.files, name)
	delete(s.origins, name)
	return true
}

// Rename moves oldName's content to newName and removes oldName. The
// new key is written before the old one is removed, so no observer of
// the store ever sees the content missing under both names.
func (s *FileStore) Rename(oldName, newName string, origin Origin) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	content, ok := s.files[oldName]
	if !ok {
		return fmt.Errorf("rename %q: no such file", oldName)
	}
	s.files[newName] = content
	s.origins[newName] = origin
	delete(s.files, oldName)
	delete(s.origins, oldName)
	return nil
}

// Replace discards the store's contents and installs snapshot
// wholesale. Used when a join delivers the session seed. All keys are
// marked remote-origin.
func (s *FileStore) Replace(snapshot map[string]string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.files = make(map[string]string, len(snapshot))
	s.origins = make(map[string]Origin, len(snapshot))
	for name, content := range snapshot {
		s.files[name] = content
		s.origins[name] = OriginRemote
	}
}

// Snapshot returns a defensive copy of the filename→content mapping.
func (s *FileStore) Snapshot() map[string]string {
	s.mu.RLock()
	defer s.mu.RUnlock()
	snapshot := make(map[string]string, len(s.files))
	for name, content := range s.files {
		snapshot[name] = content
	}
	return snapshot
}

// Files returns the filenames in the store, sorted. Sorted order is
// the deterministic fallback when a join snapshot's current file is
// missing and the client must pick one to open.
func (s *FileStore) Files() []string {
	s.mu.RLock()
	defer s.mu.RUnlock()
	names := make([]string, 0, len(s.files))
	for name := range s.files {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}

// Len returns the number of files in the store.
func (s *FileStore) Len() int {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return len(s.files)
}
