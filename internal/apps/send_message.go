package apps

import (
	"errors"
	"fmt"
	"log/slog"

	"github.com/dantte-lp/elvis/internal/core"
	"github.com/dantte-lp/elvis/internal/protocols/udp"
)

// ErrUdpUnavailable indicates the UDP protocol was not registered on the
// machine this application is running on.
var ErrUdpUnavailable = errors.New("apps: udp protocol not found on this machine")

// ErrUnsupportedCall indicates a Protocol method an application never
// implements (it has no sessions or listen bindings of its own) was
// invoked on it anyway.
var ErrUnsupportedCall = errors.New("apps: application does not accept this call")

// SendMessage is a User-layer application that opens one UDP connection
// and sends a single message the first time it wakes, then never sends
// again. It never receives -- Demux always fails.
type SendMessage struct {
	id     core.ProtocolId
	local  Endpoint
	remote Endpoint
	body   core.Message
	sent   bool
	logger *slog.Logger
}

// NewSendMessage returns a SendMessage bound to id that will send body
// from local to remote on its first Awake.
func NewSendMessage(id core.ProtocolId, local, remote Endpoint, body core.Message, logger *slog.Logger) *SendMessage {
	if logger == nil {
		logger = slog.Default()
	}
	return &SendMessage{
		id: id, local: local, remote: remote, body: body,
		logger: logger.With(slog.String("component", "send-message")),
	}
}

// ID returns this application's protocol identity.
func (a *SendMessage) ID() core.ProtocolId { return a.id }

// OpenActive is never called on an application by a lower layer.
func (a *SendMessage) OpenActive(core.ProtocolId, core.Control, *core.ProtocolContext) (core.Session, error) {
	return nil, fmt.Errorf("send-message: OpenActive: %w", ErrUnsupportedCall)
}

// Listen is never called on SendMessage; it only ever opens actively.
func (a *SendMessage) Listen(core.ProtocolId, core.Control, *core.ProtocolContext) error {
	return fmt.Errorf("send-message: Listen: %w", ErrUnsupportedCall)
}

// Demux is never called: SendMessage never listens or holds a session
// that anything demultiplexes to.
func (a *SendMessage) Demux(core.Message, *core.ProtocolContext) error {
	return fmt.Errorf("send-message: Demux: %w", ErrUnsupportedCall)
}

// Awake opens a UDP session to remote and sends body the first time it
// is called; every later call is a no-op.
func (a *SendMessage) Awake(ctx *core.ProtocolContext) (core.ControlFlow, error) {
	if a.sent {
		return core.Continue, nil
	}
	a.sent = true

	udpProtocol, ok := ctx.Protocol(udp.ID)
	if !ok {
		return core.Continue, ErrUdpUnavailable
	}
	session, err := udpProtocol.OpenActive(a.id, participants(a.local, a.remote), ctx)
	if err != nil {
		return core.Continue, fmt.Errorf("send-message: open active: %w", err)
	}
	if err := session.Send(a.body, ctx); err != nil {
		return core.Continue, fmt.Errorf("send-message: send: %w", err)
	}
	a.logger.Info("sent message", slog.Int("bytes", a.body.Len()))
	return core.Continue, nil
}
