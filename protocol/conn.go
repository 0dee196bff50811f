// Copyright 2026 The Atelier Authors
// SPDX-License-Identifier: Apache-2.0

package protocol

import (
	"bytes"
	"fmt"
	"sync"

	"github.com/gorilla/websocket"

	"github.com/atelier-dev/atelier/lib/codec"
)

// maxEventSize is the maximum size of a single encoded envelope.
// 16 MB is generous for whole-file content; a join snapshot of a
// large workspace is the biggest event the protocol carries.
const maxEventSize = 16 * 1024 * 1024

// EventConn is the bidirectional event stream between a participant
// and the hub. *Conn implements it over a websocket; tests substitute
// in-memory implementations.
type EventConn interface {
	// ReadEvent blocks until the next envelope arrives or the
	// connection fails.
	ReadEvent() (Envelope, error)

	// WriteEvent sends one envelope. Safe for concurrent use.
	WriteEvent(Envelope) error

	// Close tears the connection down. Pending reads unblock with an
	// error. Idempotent.
	Close() error
}

// Conn carries envelopes over a websocket, one CBOR-encoded envelope
// per binary frame. The websocket package permits only one concurrent
// writer, so writes are serialized with a mutex.
type Conn struct {
	ws *websocket.Conn

	writeMu sync.Mutex

	closeOnce sync.Once
	closeErr  error
}

// NewConn wraps an established websocket connection.
func NewConn(ws *websocket.Conn) *Conn {
	ws.SetReadLimit(maxEventSize)
	return &Conn{ws: ws}
}

// ReadEvent reads the next envelope from the socket. Text frames and
// other non-binary message types are skipped.
func (c *Conn) ReadEvent() (Envelope, error) {
	for {
		messageType, data, err := c.ws.ReadMessage()
		if err != nil {
			return Envelope{}, fmt.Errorf("read event frame: %w", err)
		}
		if messageType != websocket.BinaryMessage {
			continue
		}
		var envelope Envelope
		if err := codec.Unmarshal(data, &envelope); err != nil {
			return Envelope{}, fmt.Errorf("decode event frame: %w", err)
		}
		if envelope.Type == "" {
			return Envelope{}, fmt.Errorf("event frame missing type")
		}
		return envelope, nil
	}
}

// WriteEvent encodes and sends one envelope as a binary frame.
func (c *Conn) WriteEvent(envelope Envelope) error {
	var buffer bytes.Buffer
	if err := codec.NewEncoder(&buffer).Encode(envelope); err != nil {
		return fmt.Errorf("encode %s event: %w", envelope.Type, err)
	}

	c.writeMu.Lock()
	defer c.writeMu.Unlock()
	if err := c.ws.WriteMessage(websocket.BinaryMessage, buffer.Bytes()); err != nil {
		return fmt.Errorf("write %s event: %w", envelope.Type, err)
	}
	return nil
}

// Close closes the underlying websocket. Idempotent.
func (c *Conn) Close() error {
	c.closeOnce.Do(func() {
		c.closeErr = c.ws.Close()
	})
	return c.closeErr
}
