// Copyright 2026 The Atelier Authors
// SPDX-License-Identifier: Apache-2.0

package workspace

import (
	"fmt"
	"os"
	"path/filepath"
)

// LocalBackend is the owner's Backend: a real directory on disk.
// Only the owner process constructs one, and only the persistence
// bridge writes through it.
type LocalBackend struct {
	root string
}

// NewLocalBackend opens the workspace rooted at directory. The
// directory must already exist; a missing workspace is the
// "no folder open" precondition failure of session creation.
func NewLocalBackend(directory string) (*LocalBackend, error) {
	info, err := os.Stat(directory)
	if err != nil {
		return nil, fmt.Errorf("workspace %s: %w", directory, err)
	}
	if !info.IsDir() {
		return nil, fmt.Errorf("workspace %s: not a directory", directory)
	}
	return &LocalBackend{root: directory}, nil
}

// Root returns the workspace directory.
func (b *LocalBackend) Root() string {
	return b.root
}

// path resolves name inside the workspace root after validating it
// cannot escape.
func (b *LocalBackend) path(name string) (string, error) {
	if err := ValidateName(name); err != nil {
		return "", err
	}
	return filepath.Join(b.root, name), nil
}

// ReadFile reads name from the workspace directory.
func (b *LocalBackend) ReadFile(name string) (string, error) {
	p, err := b.path(name)
	if err != nil {
		return "", err
	}
	data, err := os.ReadFile(p)
	if err != nil {
		return "", fmt.Errorf("read %q: %w", name, err)
	}
	return string(data), nil
}

// WriteFile overwrites name in the workspace directory.
func (b *LocalBackend) WriteFile(name, content string) error {
	p, err := b.path(name)
	if err != nil {
		return err
	}
	if err := os.WriteFile(p, []byte(content), 0o644); err != nil {
		return fmt.Errorf("write %q: %w", name, err)
	}
	return nil
}

// Remove deletes name from the workspace directory.
func (b *LocalBackend) Remove(name string) error {
	p, err := b.path(name)
	if err != nil {
		return err
	}
	if err := os.Remove(p); err != nil {
		return fmt.Errorf("remove %q: %w", name, err)
	}
	return nil
}

// Rename moves oldName to newName by writing the new file first and
// removing the old one only after the write succeeds. os.Rename would
// be atomic here, but copy-then-remove matches the replicated
// operation's semantics exactly: a failure mid-way leaves the old
// file intact.
func (b *LocalBackend) Rename(oldName, newName string) error {
	content, err := b.ReadFile(oldName)
	if err != nil {
		return err
	}
	if err := b.WriteFile(newName, content); err != nil {
		return err
	}
	return b.Remove(oldName)
}

// List returns the regular files in the workspace directory.
// Subdirectories are skipped: the replicated namespace is flat.
func (b *LocalBackend) List() ([]string, error) {
	entries, err := os.ReadDir(b.root)
	if err != nil {
		return nil, fmt.Errorf("list workspace %s: %w", b.root, err)
	}
	var names []string
	for _, entry := range entries {
		if entry.Type().IsRegular() {
			names = append(names, entry.Name())
		}
	}
	return names, nil
}

// LoadFiles reads every regular file in the workspace into a
// filename→content map, the seed for session creation.
func (b *LocalBackend) LoadFiles() (map[string]string, error) {
	names, err := b.List()
	if err != nil {
		return nil, err
	}
	files := make(map[string]string, len(names))
	for _, name := range names {
		content, err := b.ReadFile(name)
		if err != nil {
			return nil, err
		}
		files[name] = content
	}
	return files, nil
}
