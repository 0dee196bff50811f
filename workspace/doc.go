// Copyright 2026 The Atelier Authors
// SPDX-License-Identifier: Apache-2.0

// Package workspace holds a participant's replicated view of the
// shared workspace and the machinery that persists it.
//
//   - store.go: FileStore, the flat filename→content map every
//     participant replicates; every mutation is tagged with its origin
//     (local edit vs applied remote event) so the sync engine can tell
//     an echo from a genuine change.
//   - backend.go: the storage capability interface and ReplicaBackend,
//     the memory-only implementation collaborators use.
//   - local.go: LocalBackend, the owner's real-directory
//     implementation.
//   - bridge.go: the owner-only persistence bridge, which turns store
//     mutations into debounced whole-file writes.
//
// Ownership: each participant process owns its FileStore outright.
// Convergence between participants happens only through the hub's
// broadcast protocol, never through shared memory.
package workspace
