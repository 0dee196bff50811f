// Copyright 2026 The Atelier Authors
// SPDX-License-Identifier: Apache-2.0

package workspace

import (
	"log/slog"
	"time"

	"sync"

	"github.com/zeebo/blake3"

	"github.com/atelier-dev/atelier/lib/clock"
)

// DefaultPersistDelay is the idle period before a debounced write
// reaches disk. Matches the editor's auto-save delay.
const DefaultPersistDelay = 1200 * time.Millisecond

// BridgeConfig configures a Bridge.
type BridgeConfig struct {
	// Backend receives the writes. For the owner this is a
	// *LocalBackend; collaborators do not construct a Bridge at all.
	Backend Backend

	// Clock schedules the debounce timers.
	Clock clock.Clock

	// Delay is the idle period before a pending write fires.
	// Defaults to DefaultPersistDelay.
	Delay time.Duration

	// Logger records write failures. Required.
	Logger *slog.Logger

	// OnWriteError, if set, is called with each failed write so the
	// shell can surface it. Failures never propagate to replication.
	OnWriteError func(name string, err error)
}

// Bridge persists FileStore mutations to the owner's real storage.
// Each changed filename gets its own debounce timer: a burst of
// changes produces one write carrying the final content, and
// re-arming cancels the prior timer. A remote-origin change to the
// file the owner has open is written immediately instead, keeping the
// window where disk and hub snapshot disagree as small as possible.
//
// A blake3 hash of the last successful write per filename suppresses
// writes whose content is unchanged, which is common when an echo of
// the owner's own edit arrives or a switch_file repeats content.
type Bridge struct {
	backend      Backend
	clock        clock.Clock
	delay        time.Duration
	logger       *slog.Logger
	onWriteError func(name string, err error)

	mu      sync.Mutex
	pending map[string]*pendingWrite
	written map[string][32]byte
	closed  bool
}

// pendingWrite is one armed debounce timer and the content it will
// write when it fires.
type pendingWrite struct {
	content string
	timer   *clock.Timer
}

// NewBridge constructs a Bridge. Panics if Backend, Clock, or Logger
// is nil: a bridge without storage or time is a programming error,
// not a runtime condition.
func NewBridge(config BridgeConfig) *Bridge {
	if config.Backend == nil || config.Clock == nil || config.Logger == nil {
		panic("workspace.NewBridge: Backend, Clock, and Logger are required")
	}
	delay := config.Delay
	if delay <= 0 {
		delay = DefaultPersistDelay
	}
	return &Bridge{
		backend:      config.Backend,
		clock:        config.Clock,
		delay:        delay,
		logger:       config.Logger,
		onWriteError: config.OnWriteError,
		pending:      make(map[string]*pendingWrite),
		written:      make(map[string][32]byte),
	}
}

// FileChanged schedules persistence for name. openFile reports
// whether name is the file the owner currently has open; combined
// with a remote origin it selects the immediate-write path.
func (b *Bridge) FileChanged(name, content string, origin Origin, openFile bool) {
	b.mu.Lock()
	if b.closed {
		b.mu.Unlock()
		return
	}

	if origin == OriginRemote && openFile {
		// Cancel any pending debounce; the immediate write
		// supersedes it.
		if pending, ok := b.pending[name]; ok {
			pending.timer.Stop()
			delete(b.pending, name)
		}
		b.mu.Unlock()
		b.write(name, content)
		return
	}

	if pending, ok := b.pending[name]; ok {
		pending.content = content
		pending.timer.Reset(b.delay)
		b.mu.Unlock()
		return
	}
	pending := &pendingWrite{content: content}
	pending.timer = b.clock.AfterFunc(b.delay, func() { b.fire(name) })
	b.pending[name] = pending
	b.mu.Unlock()
}

// FileRemoved cancels any pending write for name and forgets its
// content hash, so a later re-create is written even with identical
// content.
func (b *Bridge) FileRemoved(name string) {
	b.mu.Lock()
	defer b.mu.Unlock()
	if pending, ok := b.pending[name]; ok {
		pending.timer.Stop()
		delete(b.pending, name)
	}
	delete(b.written, name)
}

// FileRenamed transfers pending state from oldName to newName.
func (b *Bridge) FileRenamed(oldName, newName string) {
	b.mu.Lock()
	defer b.mu.Unlock()
	if pending, ok := b.pending[oldName]; ok {
		pending.timer.Stop()
		delete(b.pending, oldName)
		// The content that was waiting under the old name persists
		// under the new one after its own idle period.
		renamed := &pendingWrite{content: pending.content}
		renamed.timer = b.clock.AfterFunc(b.delay, func() { b.fire(newName) })
		b.pending[newName] = renamed
	}
	if hash, ok := b.written[oldName]; ok {
		b.written[newName] = hash
		delete(b.written, oldName)
	}
}

// Flush writes all pending content immediately and cancels the
// associated timers. Called when the owner leaves the session.
func (b *Bridge) Flush() {
	b.mu.Lock()
	drained := make(map[string]string, len(b.pending))
	for name, pending := range b.pending {
		pending.timer.Stop()
		drained[name] = pending.content
	}
	b.pending = make(map[string]*pendingWrite)
	b.mu.Unlock()

	for name, content := range drained {
		b.write(name, content)
	}
}

// Close flushes pending writes and stops accepting new ones.
func (b *Bridge) Close() {
	b.mu.Lock()
	if b.closed {
		b.mu.Unlock()
		return
	}
	b.closed = true
	b.mu.Unlock()
	b.Flush()
}

// fire is the debounce timer callback for name.
func (b *Bridge) fire(name string) {
	b.mu.Lock()
	pending, ok := b.pending[name]
	if !ok {
		b.mu.Unlock()
		return
	}
	delete(b.pending, name)
	content := pending.content
	b.mu.Unlock()

	b.write(name, content)
}

// write performs one whole-file write, skipping it when the content
// hash matches the last successful write for name.
func (b *Bridge) write(name, content string) {
	hash := blake3.Sum256([]byte(content))

	b.mu.Lock()
	if previous, ok := b.written[name]; ok && previous == hash {
		b.mu.Unlock()
		return
	}
	b.mu.Unlock()

	if err := b.backend.WriteFile(name, content); err != nil {
		// Persistence failures stay local: other participants remain
		// synchronized through the hub regardless.
		b.logger.Warn("persist failed", "file", name, "error", err)
		if b.onWriteError != nil {
			b.onWriteError(name, err)
		}
		return
	}

	b.mu.Lock()
	b.written[name] = hash
	b.mu.Unlock()
}
