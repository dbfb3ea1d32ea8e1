// Package tap implements the Tap protocol: the first responder to
// whatever arrives off a Network, and the last stop before a frame
// leaves a Machine. Its header is two bytes -- the encoded ProtocolId
// of whichever protocol above it should receive the frame -- grounded
// on the Nic protocol in the original simulation core
// (protocols/nic.rs).
package tap

import (
	"errors"
	"fmt"

	"github.com/dantte-lp/elvis/internal/core"
)

// ID is the Tap's fixed protocol identity.
var ID = core.NewProtocolId(core.LayerLink, 0)

const headerLen = 2

// ErrHeaderTooShort indicates a frame arrived with fewer than two bytes,
// too short to carry a ProtocolId.
var ErrHeaderTooShort = errors.New("tap: frame shorter than the 2-byte header")

// ErrProtocolNotFound indicates the ProtocolId named in a frame's header
// has no registered Protocol on this machine.
var ErrProtocolNotFound = errors.New("tap: no protocol registered for header")

// ErrPassiveOpenUnsupported indicates Listen was called on the Tap. Only
// the protocols above it open passively; the Tap has nothing to listen
// for.
var ErrPassiveOpenUnsupported = errors.New("tap: passive open is not supported")

// ErrDemuxUnsupported indicates Demux was called on the Tap directly.
// Inbound frames reach the Tap through AcceptIncoming, never through the
// ordinary Demux call a session uses to hand a message to its own
// protocol.
var ErrDemuxUnsupported = errors.New("tap: use AcceptIncoming, not Demux, for inbound frames")

// ErrSessionNotFound indicates no Tap session exists for the requested
// (upstream, network) pair.
var ErrSessionNotFound = errors.New("tap: no session for that upstream/network pair")

// sessionKey identifies a Tap session by the upstream protocol it serves
// and the local network index it is attached to.
type sessionKey struct {
	upstream core.ProtocolId
	network  uint8
}

// Tap is a Machine's link-layer protocol: it tags outgoing frames with
// the destination protocol's id and, on the way in, strips that tag to
// decide which protocol's Demux should see the frame.
type Tap struct {
	sessions map[sessionKey]*Session
}

// New returns an empty Tap.
func New() *Tap {
	return &Tap{sessions: make(map[sessionKey]*Session)}
}

// ID returns the Tap's protocol identity.
func (t *Tap) ID() core.ProtocolId { return ID }

// OpenActive returns the Tap session for (upstream, network), creating
// it if this is the first request for that pair. participants must
// carry core.NetworkIndex; it is the only demultiplexing hint the Tap
// understands, since it has no address space of its own.
func (t *Tap) OpenActive(upstream core.ProtocolId, participants core.Control, ctx *core.ProtocolContext) (core.Session, error) {
	network, err := participants.GetU8(core.NetworkIndex)
	if err != nil {
		return nil, fmt.Errorf("tap open active: %w", err)
	}
	key := sessionKey{upstream: upstream, network: network}
	if s, ok := t.sessions[key]; ok {
		return s, nil
	}
	s := &Session{upstream: upstream, network: network}
	t.sessions[key] = s
	return s, nil
}

// Listen always fails: nothing ever opens passively below the Tap.
func (t *Tap) Listen(core.ProtocolId, core.Control, *core.ProtocolContext) error {
	return ErrPassiveOpenUnsupported
}

// Demux always fails: inbound frames reach the Tap through
// AcceptIncoming instead, since the Tap immediately forwards to the
// protocol named in its header rather than selecting one of its own
// sessions.
func (t *Tap) Demux(core.Message, *core.ProtocolContext) error {
	return ErrDemuxUnsupported
}

// Awake wakes every Tap session; none of them do anything on a tick, so
// this always continues.
func (t *Tap) Awake(ctx *core.ProtocolContext) (core.ControlFlow, error) {
	for _, s := range t.sessions {
		if err := s.Awake(ctx); err != nil {
			return core.Continue, err
		}
	}
	return core.Continue, nil
}

// AcceptIncoming strips the Tap's 2-byte header from message, records
// which network it arrived on in ctx.Info, and hands the remainder to
// the named protocol's Demux. It returns the ProtocolId named in the
// header whenever decoding got that far, even if Demux itself then
// rejects the frame, so a caller tracking delivery metrics can
// attribute the drop to a protocol rather than to a malformed header.
func (t *Tap) AcceptIncoming(message core.Message, network uint8, ctx *core.ProtocolContext) (core.ProtocolId, error) {
	header, ok := message.Take(headerLen)
	if !ok {
		return core.ProtocolId{}, ErrHeaderTooShort
	}
	pid, err := core.DecodeProtocolId(uint16(header[0])<<8 | uint16(header[1]))
	if err != nil {
		return core.ProtocolId{}, fmt.Errorf("tap accept incoming: %w", err)
	}
	protocol, ok := ctx.Protocol(pid)
	if !ok {
		return pid, fmt.Errorf("tap accept incoming %s: %w", pid, ErrProtocolNotFound)
	}
	ctx.Info.Insert(core.NetworkIndex, core.U8Primitive(network))
	if err := protocol.Demux(message.Slice(headerLen), ctx); err != nil {
		return pid, err
	}
	return pid, nil
}

// Outgoing drains every session's queued frames, keyed by the local
// network index they should be transmitted on.
func (t *Tap) Outgoing() map[uint8][]core.Message {
	out := make(map[uint8][]core.Message)
	for _, s := range t.sessions {
		if msgs := s.drain(); len(msgs) > 0 {
			out[s.network] = append(out[s.network], msgs...)
		}
	}
	return out
}

// Session is a Tap's per-(upstream, network) session: a queue of
// outgoing frames tagged with the upstream protocol's id.
type Session struct {
	upstream core.ProtocolId
	network  uint8
	outgoing []core.Message
}

// Protocol returns the Tap's protocol id; all Tap sessions share it.
func (s *Session) Protocol() core.ProtocolId { return ID }

// Send prepends the upstream protocol's 2-byte id and queues the frame
// for transmission on this session's network.
func (s *Session) Send(message core.Message, ctx *core.ProtocolContext) error {
	header := s.upstream.EncodeBytes()
	s.outgoing = append(s.outgoing, message.WithHeader(header[:]))
	return nil
}

// Recv always fails: nothing above the Tap calls Recv on it, since
// inbound traffic arrives through the protocol's own AcceptIncoming,
// not through a session.
func (s *Session) Recv(core.Message, *core.ProtocolContext) error {
	return errors.New("tap: session has no Recv; inbound frames arrive via AcceptIncoming")
}

// Awake is a no-op; a Tap session has nothing to do on a tick.
func (s *Session) Awake(*core.ProtocolContext) error { return nil }

func (s *Session) drain() []core.Message {
	out := s.outgoing
	s.outgoing = nil
	return out
}
