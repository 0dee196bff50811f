// Copyright 2026 The Atelier Authors
// SPDX-License-Identifier: Apache-2.0

// Package registry implements the hub side of Atelier collaboration:
// the session table, the websocket connection handling, and the relay
// fan-out that gives every session a total event order.
//
//   - registry.go: the Registry service object, session lifecycle,
//     and the per-session relay operations.
//   - conn.go: per-connection read loop and write pump.
//   - store.go: the SessionStore snapshot interface and MemoryStore.
//   - redis.go: RedisStore, zstd-compressed CBOR snapshots in redis
//     for hub-restart durability.
//   - http.go: the HTTP surface (session creation and the websocket
//     upgrade endpoint).
//   - discovery.go: optional mDNS advertisement on the LAN.
//
// The registry is the single relay point for a session: every
// code_change is applied to the session snapshot and fanned out under
// one lock, so all participants observe updates for a session in the
// same order (last-delivered-wins per file). The registry performs no
// merging and no diffing.
//
// A Registry is an explicit service object constructed once per
// process with an injected SessionStore; there is no package-level
// session state.
package registry
