// Copyright 2026 The Atelier Authors
// SPDX-License-Identifier: Apache-2.0

package workspace

import (
	"os"
	"path/filepath"
	"sort"
	"testing"
)

func TestValidateName(t *testing.T) {
	t.Parallel()

	for _, name := range []string{"a.py", "Main.java", "notes.txt", ".env"} {
		if err := ValidateName(name); err != nil {
			t.Errorf("ValidateName(%q): got %v, want nil", name, err)
		}
	}
	for _, name := range []string{"", "a/b.py", `a\b.py`, "..", "."} {
		if err := ValidateName(name); err == nil {
			t.Errorf("ValidateName(%q): got nil, want error", name)
		}
	}
}

func TestReplicaBackendWritesStayInMemory(t *testing.T) {
	t.Parallel()
	replica := NewReplicaBackend(map[string]string{"a.py": "print(1)"})

	if err := replica.WriteFile("b.py", "print(2)"); err != nil {
		t.Fatalf("WriteFile: %v", err)
	}
	content, err := replica.ReadFile("b.py")
	if err != nil || content != "print(2)" {
		t.Fatalf("ReadFile: got %q/%v", content, err)
	}

	if err := replica.Rename("a.py", "c.py"); err != nil {
		t.Fatalf("Rename: %v", err)
	}
	if _, err := replica.ReadFile("a.py"); err == nil {
		t.Fatal("old name readable after rename")
	}

	if err := replica.Remove("c.py"); err != nil {
		t.Fatalf("Remove: %v", err)
	}
	if err := replica.Remove("c.py"); err == nil {
		t.Fatal("Remove of absent file: got nil error")
	}
}

func TestLocalBackendRequiresExistingDirectory(t *testing.T) {
	t.Parallel()
	if _, err := NewLocalBackend(filepath.Join(t.TempDir(), "missing")); err == nil {
		t.Fatal("NewLocalBackend on missing directory: got nil error")
	}
}

func TestLocalBackendRoundTrip(t *testing.T) {
	t.Parallel()
	directory := t.TempDir()
	backend, err := NewLocalBackend(directory)
	if err != nil {
		t.Fatalf("NewLocalBackend: %v", err)
	}

	if err := backend.WriteFile("a.py", "print(1)"); err != nil {
		t.Fatalf("WriteFile: %v", err)
	}
	content, err := backend.ReadFile("a.py")
	if err != nil || content != "print(1)" {
		t.Fatalf("ReadFile: got %q/%v", content, err)
	}

	// Renaming leaves the content under the new name on disk.
	if err := backend.Rename("a.py", "b.py"); err != nil {
		t.Fatalf("Rename: %v", err)
	}
	if _, err := os.Stat(filepath.Join(directory, "a.py")); !os.IsNotExist(err) {
		t.Fatalf("old file on disk after rename: stat err %v", err)
	}
	data, err := os.ReadFile(filepath.Join(directory, "b.py"))
	if err != nil || string(data) != "print(1)" {
		t.Fatalf("renamed file on disk: got %q/%v", data, err)
	}
}

func TestLocalBackendRejectsEscapingNames(t *testing.T) {
	t.Parallel()
	backend, err := NewLocalBackend(t.TempDir())
	if err != nil {
		t.Fatalf("NewLocalBackend: %v", err)
	}
	if err := backend.WriteFile("../escape.py", "x"); err == nil {
		t.Fatal("WriteFile with path separator: got nil error")
	}
	if _, err := backend.ReadFile(".."); err == nil {
		t.Fatal("ReadFile('..'): got nil error")
	}
}

func TestLocalBackendListSkipsDirectories(t *testing.T) {
	t.Parallel()
	directory := t.TempDir()
	if err := os.WriteFile(filepath.Join(directory, "a.py"), []byte("1"), 0o644); err != nil {
		t.Fatal(err)
	}
	if err := os.WriteFile(filepath.Join(directory, "b.py"), []byte("2"), 0o644); err != nil {
		t.Fatal(err)
	}
	if err := os.Mkdir(filepath.Join(directory, "nested"), 0o755); err != nil {
		t.Fatal(err)
	}

	backend, err := NewLocalBackend(directory)
	if err != nil {
		t.Fatalf("NewLocalBackend: %v", err)
	}

	files, err := backend.LoadFiles()
	if err != nil {
		t.Fatalf("LoadFiles: %v", err)
	}
	var names []string
	for name := range files {
		names = append(names, name)
	}
	sort.Strings(names)
	if len(names) != 2 || names[0] != "a.py" || names[1] != "b.py" {
		t.Fatalf("LoadFiles names: got %v, want [a.py b.py]", names)
	}
	if files["b.py"] != "2" {
		t.Fatalf("LoadFiles content: got %q, want 2", files["b.py"])
	}
}
