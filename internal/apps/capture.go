package apps

import (
	"fmt"
	"log/slog"

	"github.com/dantte-lp/elvis/internal/core"
	"github.com/dantte-lp/elvis/internal/protocols/udp"
)

// Capture is a User-layer application that listens on one UDP endpoint,
// records the first message it receives, and asks the simulation to end
// one tick after that message arrived. The one-tick delay matters:
// Machine.Awake dispatches every pending inbound message through Demux
// before calling Awake on any protocol for that same tick (see
// internal/core/machine.go), so a message that arrives on tick T is
// already recorded by the time Capture.Awake runs for tick T -- ending
// the simulation immediately on that same call would never let the
// caller observe the message having arrived on tick T versus T+1, which
// is exactly the distinction the "second tick" / "next tick" scenario in
// the specification draws.
type Capture struct {
	id        core.ProtocolId
	local     Endpoint
	listening bool
	message   *core.Message
	armed     bool
	logger    *slog.Logger
}

// NewCapture returns a Capture bound to id that will listen on local the
// first time it wakes.
func NewCapture(id core.ProtocolId, local Endpoint, logger *slog.Logger) *Capture {
	if logger == nil {
		logger = slog.Default()
	}
	return &Capture{id: id, local: local, logger: logger.With(slog.String("component", "capture"))}
}

// ID returns this application's protocol identity.
func (a *Capture) ID() core.ProtocolId { return a.id }

// OpenActive is never called on Capture; it only ever opens passively.
func (a *Capture) OpenActive(core.ProtocolId, core.Control, *core.ProtocolContext) (core.Session, error) {
	return nil, fmt.Errorf("capture: OpenActive: %w", ErrUnsupportedCall)
}

// Listen is never called on Capture by a lower layer; Capture itself
// calls Listen on UDP from its own Awake.
func (a *Capture) Listen(core.ProtocolId, core.Control, *core.ProtocolContext) error {
	return fmt.Errorf("capture: Listen: %w", ErrUnsupportedCall)
}

// Demux records message as the captured message. Only the first call
// has any effect; later arrivals are dropped, since Capture exists to
// observe exactly one message per scenario.
func (a *Capture) Demux(message core.Message, ctx *core.ProtocolContext) error {
	if a.message != nil {
		return nil
	}
	body := message
	a.message = &body
	a.logger.Info("captured message", slog.Int("bytes", message.Len()))
	return nil
}

// Awake registers this Capture's listen binding the first time it is
// called, then returns EndSimulation once a message captured on a prior
// tick has been observed.
func (a *Capture) Awake(ctx *core.ProtocolContext) (core.ControlFlow, error) {
	if !a.listening {
		udpProtocol, ok := ctx.Protocol(udp.ID)
		if !ok {
			return core.Continue, ErrUdpUnavailable
		}
		if err := udpProtocol.Listen(a.id, listenParticipants(a.local), ctx); err != nil {
			return core.Continue, fmt.Errorf("capture: listen: %w", err)
		}
		a.listening = true
		return core.Continue, nil
	}

	if a.message == nil {
		return core.Continue, nil
	}
	if !a.armed {
		a.armed = true
		return core.Continue, nil
	}
	return core.EndSimulation, nil
}

// Message returns the captured message, if one has arrived yet.
func (a *Capture) Message() (core.Message, bool) {
	if a.message == nil {
		return core.Message{}, false
	}
	return *a.message, true
}
