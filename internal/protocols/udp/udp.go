// Package udp implements the UDP transport-layer protocol: port-keyed
// session demultiplexing layered over IPv4, grounded on
// original_source/sim/src/protocols/udp.rs and mirroring the shape of
// internal/protocols/ipv4.
package udp

import (
	"errors"
	"fmt"

	"github.com/dantte-lp/elvis/internal/core"
	"github.com/dantte-lp/elvis/internal/protocols/ipv4"
)

// ID is UDP's fixed protocol identity.
var ID = core.NewProtocolId(core.LayerTransport, 17)

var (
	// ErrSessionExists indicates OpenActive was called for a 4-tuple that
	// already has a session.
	ErrSessionExists = errors.New("udp: session already exists for this 4-tuple")

	// ErrBindingExists indicates Listen was called for a (local address,
	// local port) pair that already has a listen binding.
	ErrBindingExists = errors.New("udp: listen binding already exists for this local address/port")

	// ErrMissingSession indicates an inbound frame matched neither an
	// existing session nor a listen binding.
	ErrMissingSession = errors.New("udp: no session or listen binding for this frame")

	// ErrIpv4Unavailable indicates the IPv4 protocol was not registered
	// on this machine's protocol table.
	ErrIpv4Unavailable = errors.New("udp: ipv4 protocol not found on this machine")

	// ErrNoCurrentSession indicates Demux was called without a current
	// session in context, so a freshly matched listen binding has no
	// downstream to attach to.
	ErrNoCurrentSession = errors.New("udp: no current session to use as downstream for passive open")
)

// connID is a UDP session's demultiplexing key: the local and remote
// (address, port) pairs of the connection.
type connID struct {
	localAddr  uint32
	localPort  uint16
	remoteAddr uint32
	remotePort uint16
}

// listenID is a UDP listen binding's key: the local address and port
// traffic must be addressed to for the binding to match.
type listenID struct {
	localAddr uint32
	localPort uint16
}

// Protocol is UDP's per-machine state: listen bindings keyed by
// (local address, local port), and sessions keyed by the full 4-tuple.
type Protocol struct {
	listenBindings map[listenID]core.ProtocolId
	sessions       map[connID]*Session
}

// New returns an empty UDP protocol.
func New() *Protocol {
	return &Protocol{
		listenBindings: make(map[listenID]core.ProtocolId),
		sessions:       make(map[connID]*Session),
	}
}

// ID returns UDP's protocol identity.
func (p *Protocol) ID() core.ProtocolId { return ID }

func participantConnID(participants core.Control) (connID, error) {
	localAddr, err := participants.GetU32(core.LocalAddress)
	if err != nil {
		return connID{}, fmt.Errorf("local address: %w", err)
	}
	remoteAddr, err := participants.GetU32(core.RemoteAddress)
	if err != nil {
		return connID{}, fmt.Errorf("remote address: %w", err)
	}
	localPort, err := participants.GetU16(core.LocalPort)
	if err != nil {
		return connID{}, fmt.Errorf("local port: %w", err)
	}
	remotePort, err := participants.GetU16(core.RemotePort)
	if err != nil {
		return connID{}, fmt.Errorf("remote port: %w", err)
	}
	return connID{localAddr: localAddr, localPort: localPort, remoteAddr: remoteAddr, remotePort: remotePort}, nil
}

// OpenActive creates a UDP session for the 4-tuple carried in
// participants, opening an IPv4 session beneath it to carry the
// session's framed traffic.
func (p *Protocol) OpenActive(upstream core.ProtocolId, participants core.Control, ctx *core.ProtocolContext) (core.Session, error) {
	id, err := participantConnID(participants)
	if err != nil {
		return nil, fmt.Errorf("udp open active: %w", err)
	}
	if _, exists := p.sessions[id]; exists {
		return nil, fmt.Errorf("udp open active %#x:%d -> %#x:%d: %w", id.localAddr, id.localPort, id.remoteAddr, id.remotePort, ErrSessionExists)
	}

	ipProtocol, ok := ctx.Protocol(ipv4.ID)
	if !ok {
		return nil, ErrIpv4Unavailable
	}
	ipCtx := ctx.Clone()
	ipCtx.Info.Insert(core.LocalAddress, core.U32Primitive(id.localAddr))
	ipCtx.Info.Insert(core.RemoteAddress, core.U32Primitive(id.remoteAddr))
	downstream, err := ipProtocol.OpenActive(ID, participants, &ipCtx)
	if err != nil {
		return nil, fmt.Errorf("udp open active: %w", err)
	}

	session := &Session{downstream: downstream, upstream: upstream, id: id}
	p.sessions[id] = session
	return session, nil
}

// Listen registers upstream to receive inbound traffic addressed to the
// (LocalAddress, LocalPort) carried in participants, and forwards the
// same participants to IPv4's Listen so the network layer also accepts
// frames for this local address.
func (p *Protocol) Listen(upstream core.ProtocolId, participants core.Control, ctx *core.ProtocolContext) error {
	localAddr, err := participants.GetU32(core.LocalAddress)
	if err != nil {
		return fmt.Errorf("udp listen: local address: %w", err)
	}
	localPort, err := participants.GetU16(core.LocalPort)
	if err != nil {
		return fmt.Errorf("udp listen: local port: %w", err)
	}
	key := listenID{localAddr: localAddr, localPort: localPort}
	if _, exists := p.listenBindings[key]; exists {
		return fmt.Errorf("udp listen %#x:%d: %w", localAddr, localPort, ErrBindingExists)
	}

	ipProtocol, ok := ctx.Protocol(ipv4.ID)
	if !ok {
		return ErrIpv4Unavailable
	}
	if err := ipProtocol.Listen(ID, participants, ctx); err != nil {
		return fmt.Errorf("udp listen: %w", err)
	}

	p.listenBindings[key] = upstream
	return nil
}

// Demux parses the 8-byte UDP header, derives LocalPort/RemotePort from
// the destination/source ports against the LocalAddress/RemoteAddress
// IPv4 already placed in ctx.Info, and locates or creates the session
// for the resulting 4-tuple.
func (p *Protocol) Demux(message core.Message, ctx *core.ProtocolContext) error {
	headerBytes, ok := message.Take(HeaderLen)
	if !ok {
		return fmt.Errorf("udp demux: %w", errHeaderTooShort)
	}
	hdr, ok := ParseHeader(headerBytes)
	if !ok {
		return fmt.Errorf("udp demux: %w", errHeaderTooShort)
	}

	localAddr, err := ctx.Info.GetU32(core.LocalAddress)
	if err != nil {
		return fmt.Errorf("udp demux: local address: %w", err)
	}
	remoteAddr, err := ctx.Info.GetU32(core.RemoteAddress)
	if err != nil {
		return fmt.Errorf("udp demux: remote address: %w", err)
	}

	localPort := hdr.DestinationPort
	remotePort := hdr.SourcePort
	ctx.Info.Insert(core.LocalPort, core.U16Primitive(localPort))
	ctx.Info.Insert(core.RemotePort, core.U16Primitive(remotePort))

	id := connID{localAddr: localAddr, localPort: localPort, remoteAddr: remoteAddr, remotePort: remotePort}
	body := message.Slice(HeaderLen)
	if session, ok := p.sessions[id]; ok {
		return session.Recv(body, ctx)
	}

	upstream, ok := p.listenBindings[listenID{localAddr: localAddr, localPort: localPort}]
	if !ok {
		return fmt.Errorf("udp demux %#x:%d: %w", localAddr, localPort, ErrMissingSession)
	}
	downstream, ok := ctx.CurrentSession()
	if !ok {
		return ErrNoCurrentSession
	}

	session := &Session{downstream: downstream, upstream: upstream, id: id}
	p.sessions[id] = session
	return session.Recv(body, ctx)
}

// Awake is a no-op: UDP has nothing to do independent of a Send/Recv
// call.
func (p *Protocol) Awake(ctx *core.ProtocolContext) (core.ControlFlow, error) {
	return core.Continue, nil
}

var errHeaderTooShort = errors.New("udp: frame shorter than the 8-byte header")

// Session is a UDP session identified by a 4-tuple, for a single
// upstream protocol.
type Session struct {
	downstream core.Session
	upstream   core.ProtocolId
	id         connID
}

// Protocol returns UDP's protocol id; all UDP sessions share it.
func (s *Session) Protocol() core.ProtocolId { return ID }

// Send builds the 8-byte UDP header for message's length, with a zero
// checksum, and prepends it before delegating to the IPv4 session.
func (s *Session) Send(message core.Message, ctx *core.ProtocolContext) error {
	hdr := Header{
		SourcePort:      s.id.localPort,
		DestinationPort: s.id.remotePort,
		Length:          uint16(HeaderLen + message.Len()),
	}
	framed := message.WithHeader(hdr.Marshal())
	return s.downstream.Send(framed, ctx)
}

// Recv hands message (already stripped of its UDP header by Demux) to
// this session's upstream protocol.
func (s *Session) Recv(message core.Message, ctx *core.ProtocolContext) error {
	upstreamProtocol, ok := ctx.Protocol(s.upstream)
	if !ok {
		return fmt.Errorf("udp recv: upstream %s not found", s.upstream)
	}
	upCtx := ctx.WithSession(s)
	return upstreamProtocol.Demux(message, &upCtx)
}

// Awake is a no-op; a UDP session has nothing to do on a tick.
func (s *Session) Awake(ctx *core.ProtocolContext) error { return nil }
