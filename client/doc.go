// Copyright 2026 The Atelier Authors
// SPDX-License-Identifier: Apache-2.0

// Package client implements the participant side of a collaboration
// session: the replicated file state, the debounced outbound edit
// stream, and the application of relayed events.
//
// A [SyncClient] serves one participant in at most one session. The
// sharer constructs it over a [workspace.LocalBackend] via [SyncClient.Share],
// which registers the session with the hub and wires the persistence
// bridge; collaborators use [SyncClient.Join] and hold the workspace in
// memory only. Either way the editing surface is identical: Edit,
// SwitchFile, and the file lifecycle operations mutate the local
// replica first and broadcast afterwards, while relayed events from
// other participants arrive through the [Handlers] callbacks.
//
// Echo suppression is origin-based: every replica mutation is tagged
// local or remote, and an Edit whose content matches a remote-origin
// mutation is recognized as the editor echoing an applied update and
// is not re-emitted.
package client
