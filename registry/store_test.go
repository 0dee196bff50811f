// Copyright 2026 The Atelier Authors
// SPDX-License-Identifier: Apache-2.0

package registry

import (
	"testing"
)

func TestMemoryStoreIsolatesSnapshots(t *testing.T) {
	t.Parallel()
	store := NewMemoryStore()

	original := Snapshot{
		Files:       map[string]string{"main.py": "v1"},
		CurrentFile: "main.py",
	}
	if err := store.Save(t.Context(), "s1", original); err != nil {
		t.Fatalf("Save: %v", err)
	}

	// Mutating the caller's map after Save must not leak into the
	// store, and mutating a loaded copy must not leak back.
	original.Files["main.py"] = "mutated"

	loaded, ok, err := store.Load(t.Context(), "s1")
	if err != nil || !ok {
		t.Fatalf("Load() = %v, %t", err, ok)
	}
	if loaded.Files["main.py"] != "v1" {
		t.Errorf("stored content = %q, want v1", loaded.Files["main.py"])
	}
	loaded.Files["main.py"] = "also mutated"

	again, _, err := store.Load(t.Context(), "s1")
	if err != nil {
		t.Fatalf("Load: %v", err)
	}
	if again.Files["main.py"] != "v1" {
		t.Errorf("stored content after load mutation = %q, want v1", again.Files["main.py"])
	}
}

func TestMemoryStoreDelete(t *testing.T) {
	t.Parallel()
	store := NewMemoryStore()

	if err := store.Save(t.Context(), "s1", Snapshot{Files: map[string]string{}}); err != nil {
		t.Fatalf("Save: %v", err)
	}
	if err := store.Delete(t.Context(), "s1"); err != nil {
		t.Fatalf("Delete: %v", err)
	}
	if _, ok, _ := store.Load(t.Context(), "s1"); ok {
		t.Error("snapshot survived Delete")
	}
	if err := store.Delete(t.Context(), "s1"); err != nil {
		t.Errorf("Delete of absent id: %v", err)
	}
}

func TestSnapshotCodecRoundTrip(t *testing.T) {
	t.Parallel()
	original := Snapshot{
		Files: map[string]string{
			"main.py":  "print('hello')\n" + string(make([]byte, 4096)),
			"notes.md": "# notes",
		},
		WorkspaceName: "demo",
		CurrentFile:   "main.py",
	}

	data, err := encodeSnapshot(original)
	if err != nil {
		t.Fatalf("encodeSnapshot: %v", err)
	}
	decoded, err := decodeSnapshot(data)
	if err != nil {
		t.Fatalf("decodeSnapshot: %v", err)
	}
	if decoded.WorkspaceName != original.WorkspaceName || decoded.CurrentFile != original.CurrentFile {
		t.Errorf("metadata = %q/%q, want %q/%q",
			decoded.WorkspaceName, decoded.CurrentFile,
			original.WorkspaceName, original.CurrentFile)
	}
	if len(decoded.Files) != 2 || decoded.Files["main.py"] != original.Files["main.py"] {
		t.Error("decoded files differ from original")
	}
}

func TestDecodeSnapshotRejectsGarbage(t *testing.T) {
	t.Parallel()
	if _, err := decodeSnapshot([]byte("not zstd at all")); err == nil {
		t.Fatal("decodeSnapshot accepted garbage")
	}
}
