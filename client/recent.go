// Copyright 2026 The Atelier Authors
// SPDX-License-Identifier: Apache-2.0

package client

import (
	"fmt"
	"sort"
	"time"

	bolt "go.etcd.io/bbolt"

	"github.com/atelier-dev/atelier/lib/codec"
)

// recentBucket holds one entry per workspace path.
var recentBucket = []byte("recent")

// RecentEntry records one workspace this machine shared or joined,
// so the CLI can offer it again without retyping paths and URLs.
type RecentEntry struct {
	// Path is the workspace directory for shared workspaces, or ""
	// for sessions joined as a collaborator.
	Path string `cbor:"path"`

	// WorkspaceName is the display name used when sharing.
	WorkspaceName string `cbor:"workspace_name"`

	// HubURL and SessionID identify the last session this workspace
	// was part of. The session is likely gone by the next run; they
	// are kept for display, not resumption.
	HubURL    string `cbor:"hub_url"`
	SessionID string `cbor:"session_id"`

	// LastOpened orders the list, most recent first.
	LastOpened time.Time `cbor:"last_opened"`
}

// key is what the entry is stored under: the path for shared
// workspaces, the session id for joined ones.
func (e RecentEntry) key() ([]byte, error) {
	if e.Path != "" {
		return []byte("path:" + e.Path), nil
	}
	if e.SessionID != "" {
		return []byte("session:" + e.SessionID), nil
	}
	return nil, fmt.Errorf("recent entry needs a path or a session id")
}

// RecentStore is a small bolt database of RecentEntry records, one
// per workspace.
type RecentStore struct {
	db *bolt.DB
}

// OpenRecentStore opens (creating if needed) the database at path.
// The one-second timeout keeps a second CLI invocation from hanging
// on the file lock held by a running one.
func OpenRecentStore(path string) (*RecentStore, error) {
	db, err := bolt.Open(path, 0o600, &bolt.Options{Timeout: time.Second})
	if err != nil {
		return nil, fmt.Errorf("open recent-workspace store %s: %w", path, err)
	}
	err = db.Update(func(tx *bolt.Tx) error {
		_, err := tx.CreateBucketIfNotExists(recentBucket)
		return err
	})
	if err != nil {
		db.Close()
		return nil, fmt.Errorf("initialize recent-workspace store: %w", err)
	}
	return &RecentStore{db: db}, nil
}

// Touch inserts or refreshes the entry. A zero LastOpened is stamped
// with the current time.
func (s *RecentStore) Touch(entry RecentEntry) error {
	key, err := entry.key()
	if err != nil {
		return err
	}
	if entry.LastOpened.IsZero() {
		entry.LastOpened = time.Now()
	}
	value, err := codec.Marshal(entry)
	if err != nil {
		return fmt.Errorf("encode recent entry: %w", err)
	}
	return s.db.Update(func(tx *bolt.Tx) error {
		return tx.Bucket(recentBucket).Put(key, value)
	})
}

// List returns all entries, most recently opened first.
func (s *RecentStore) List() ([]RecentEntry, error) {
	var entries []RecentEntry
	err := s.db.View(func(tx *bolt.Tx) error {
		return tx.Bucket(recentBucket).ForEach(func(key, value []byte) error {
			var entry RecentEntry
			if err := codec.Unmarshal(value, &entry); err != nil {
				return fmt.Errorf("decode recent entry %q: %w", key, err)
			}
			entries = append(entries, entry)
			return nil
		})
	})
	if err != nil {
		return nil, err
	}
	sort.Slice(entries, func(i, j int) bool {
		return entries[i].LastOpened.After(entries[j].LastOpened)
	})
	return entries, nil
}

// Forget removes the entry for the given key fields, if present.
func (s *RecentStore) Forget(entry RecentEntry) error {
	key, err := entry.key()
	if err != nil {
		return err
	}
	return s.db.Update(func(tx *bolt.Tx) error {
		return tx.Bucket(recentBucket).Delete(key)
	})
}

// Close releases the database file.
func (s *RecentStore) Close() error {
	return s.db.Close()
}
