// Copyright 2026 The Atelier Authors
// SPDX-License-Identifier: Apache-2.0

package registry

import (
	"context"

	"github.com/google/uuid"

	"github.com/atelier-dev/atelier/protocol"
)

// ServeConn runs the hub side of one participant connection: a write
// pump draining the participant's ordered queue, and a read loop
// dispatching inbound events. Blocks until the connection fails or
// closes, then cleans up membership. The caller owns events and can
// be a websocket (production) or an in-memory pipe (tests).
func (r *Registry) ServeConn(ctx context.Context, events protocol.EventConn) {
	p := &participant{
		id:   uuid.NewString(),
		send: make(chan protocol.Envelope, sendQueueSize),
		kick: func() { events.Close() },
	}

	writePumpDone := make(chan struct{})
	go func() {
		defer close(writePumpDone)
		for envelope := range p.send {
			if err := events.WriteEvent(envelope); err != nil {
				// The connection is gone. Drain the queue so
				// relayers never block, then let the read loop
				// unwind.
				for range p.send {
				}
				return
			}
		}
		// Queue closed: session teardown or normal disconnect.
		events.Close()
	}()

	c := &connection{
		registry:    r,
		participant: p,
		events:      events,
	}
	c.readLoop(ctx)

	// Membership is gone; now it is safe to close the queue (no
	// relayer can hold a reference to p anymore).
	p.closeSend()
	<-writePumpDone
	events.Close()
}

// connection is the read-loop state for one participant: at most one
// joined session at a time, matching the one-workspace-per-window
// model of the editor shell.
type connection struct {
	registry    *Registry
	participant *participant
	events      protocol.EventConn

	// joinedSession is the id of the session this connection is a
	// member of, or "". Touched only by the read loop.
	joinedSession string
}

// readLoop dispatches inbound events until the connection fails, then
// leaves the joined session (tearing it down if this was the owner).
func (c *connection) readLoop(ctx context.Context) {
	r := c.registry
	for {
		envelope, err := c.events.ReadEvent()
		if err != nil {
			if c.joinedSession != "" {
				r.leave(ctx, c.participant, c.joinedSession)
				c.joinedSession = ""
			}
			return
		}
		c.dispatch(ctx, envelope)
	}
}

// dispatch routes one inbound event. Malformed payloads and failed
// joins are answered with an error event on this connection only;
// they never disturb the session.
func (c *connection) dispatch(ctx context.Context, envelope protocol.Envelope) {
	r := c.registry
	switch envelope.Type {
	case protocol.EventJoin:
		var join protocol.JoinPayload
		if err := envelope.DecodePayload(&join); err != nil {
			c.replyError(err.Error())
			return
		}
		if c.joinedSession != "" && c.joinedSession != join.SessionID {
			r.leave(ctx, c.participant, c.joinedSession)
			c.joinedSession = ""
		}
		seed, err := r.join(ctx, c.participant, join.SessionID)
		if err != nil {
			c.replyError(err.Error())
			return
		}
		c.joinedSession = join.SessionID
		c.reply(protocol.MustEvent(protocol.EventSessionJoined, seed))

	case protocol.EventLeave:
		var leave protocol.LeavePayload
		if err := envelope.DecodePayload(&leave); err != nil {
			c.replyError(err.Error())
			return
		}
		r.leave(ctx, c.participant, leave.SessionID)
		if c.joinedSession == leave.SessionID {
			c.joinedSession = ""
		}

	case protocol.EventCodeChange:
		var change protocol.CodeChangePayload
		if err := envelope.DecodePayload(&change); err != nil {
			c.replyError(err.Error())
			return
		}
		r.applyCodeChange(ctx, c.participant, change)

	case protocol.EventSwitchFile:
		var switched protocol.SwitchFilePayload
		if err := envelope.DecodePayload(&switched); err != nil {
			c.replyError(err.Error())
			return
		}
		r.switchFile(ctx, c.participant, switched)

	case protocol.EventFileOperation:
		var operation protocol.FileOperationPayload
		if err := envelope.DecodePayload(&operation); err != nil {
			c.replyError(err.Error())
			return
		}
		if err := r.applyFileOperation(ctx, c.participant, operation); err != nil {
			c.replyError(err.Error())
		}

	default:
		r.logger.Debug("unknown event type ignored", "type", envelope.Type)
	}
}

// reply enqueues an envelope for this connection only. The read loop
// is alive (it is the caller), so the queue cannot be closed yet.
func (c *connection) reply(envelope protocol.Envelope) {
	if !c.participant.enqueue(envelope) {
		c.participant.kick()
	}
}

// replyError sends an error event back to this connection.
func (c *connection) replyError(message string) {
	c.reply(protocol.MustEvent(protocol.EventError, protocol.ErrorPayload{Message: message}))
}
