// Package ipv4 implements the IPv4 network-layer protocol: address-keyed
// session demultiplexing over the Tap, grounded on
// original_source/sim/src/protocols/ipv4.rs. Where the original's
// open_passive is left an unfinished todo!(), this package completes it
// per the resolved design recorded in DESIGN.md: the passive session's
// downstream is obtained the same way an active session's is, by asking
// the Tap for a session on the arrival network index (carried in
// ctx.Info, set by Tap.AcceptIncoming).
package ipv4

import (
	"errors"
	"fmt"

	"github.com/dantte-lp/elvis/internal/core"
	"github.com/dantte-lp/elvis/internal/protocols/tap"
)

// ID is IPv4's fixed protocol identity.
var ID = core.NewProtocolId(core.LayerNetwork, 4)

const (
	sendTTL     = 30
	udpProtoNum = 17
	tcpProtoNum = 6
)

var (
	// ErrSessionExists indicates OpenActive was called for a
	// (local, remote) pair that already has a session.
	ErrSessionExists = errors.New("ipv4: session already exists for this local/remote pair")

	// ErrBindingExists indicates Listen was called for a local address
	// that already has a listen binding.
	ErrBindingExists = errors.New("ipv4: listen binding already exists for this local address")

	// ErrMissingListenBinding indicates an inbound frame's destination
	// address matched neither an existing session nor a listen binding.
	ErrMissingListenBinding = errors.New("ipv4: no listen binding for destination address")

	// ErrUnknownUpstreamProtocol indicates a session's upstream protocol
	// id was neither UDP nor TCP, so no IPv4 protocol-number mapping
	// exists for it.
	ErrUnknownUpstreamProtocol = errors.New("ipv4: unrecognized upstream protocol for IP protocol number")

	// ErrTapUnavailable indicates the Tap protocol was not registered on
	// this machine's protocol table.
	ErrTapUnavailable = errors.New("ipv4: tap protocol not found on this machine")
)

// identifier is an IPv4 session's demultiplexing key: its own address
// paired with its peer's.
type identifier struct {
	local  uint32
	remote uint32
}

// Protocol is IPv4's per-machine state: listen bindings keyed by local
// address, and sessions keyed by (local, remote).
type Protocol struct {
	listenBindings map[uint32]core.ProtocolId
	sessions       map[identifier]*Session
}

// New returns an empty IPv4 protocol.
func New() *Protocol {
	return &Protocol{
		listenBindings: make(map[uint32]core.ProtocolId),
		sessions:       make(map[identifier]*Session),
	}
}

// ID returns IPv4's protocol identity.
func (p *Protocol) ID() core.ProtocolId { return ID }

// OpenActive creates (or, on a repeat request, fails for) a session
// between the LocalAddress and RemoteAddress carried in ctx.Info,
// opening a Tap session to carry the session's framed traffic.
//
// Which network the Tap session should use is not yet decided by
// routing in this implementation -- network index 0 is always used, a
// limitation carried over unchanged from the original source.
func (p *Protocol) OpenActive(upstream core.ProtocolId, participants core.Control, ctx *core.ProtocolContext) (core.Session, error) {
	local, err := ctx.Info.GetU32(core.LocalAddress)
	if err != nil {
		return nil, fmt.Errorf("ipv4 open active: local address: %w", err)
	}
	remote, err := ctx.Info.GetU32(core.RemoteAddress)
	if err != nil {
		return nil, fmt.Errorf("ipv4 open active: remote address: %w", err)
	}
	id := identifier{local: local, remote: remote}
	if _, exists := p.sessions[id]; exists {
		return nil, fmt.Errorf("ipv4 open active %#x -> %#x: %w", local, remote, ErrSessionExists)
	}

	downstream, err := p.tapSession(ctx, 0)
	if err != nil {
		return nil, err
	}
	session := &Session{downstream: downstream, upstream: upstream, id: id}
	p.sessions[id] = session
	return session, nil
}

// Listen registers upstream to receive inbound traffic addressed to the
// LocalAddress carried in participants.
func (p *Protocol) Listen(upstream core.ProtocolId, participants core.Control, ctx *core.ProtocolContext) error {
	local, err := participants.GetU32(core.LocalAddress)
	if err != nil {
		return fmt.Errorf("ipv4 listen: local address: %w", err)
	}
	if _, exists := p.listenBindings[local]; exists {
		return fmt.Errorf("ipv4 listen %#x: %w", local, ErrBindingExists)
	}
	p.listenBindings[local] = upstream
	return nil
}

// Demux parses the 20-byte IPv4 header, records LocalAddress and
// RemoteAddress in ctx.Info, and locates or creates the session for
// (destination, source), delivering message (still carrying its
// header) to that session's Recv.
func (p *Protocol) Demux(message core.Message, ctx *core.ProtocolContext) error {
	headerBytes, ok := message.Take(HeaderLen)
	if !ok {
		return ErrHeaderTooShort
	}
	hdr, err := ParseHeader(headerBytes)
	if err != nil {
		return fmt.Errorf("ipv4 demux: %w", err)
	}

	ctx.Info.Insert(core.LocalAddress, core.U32Primitive(hdr.Destination))
	ctx.Info.Insert(core.RemoteAddress, core.U32Primitive(hdr.Source))

	id := identifier{local: hdr.Destination, remote: hdr.Source}
	if session, ok := p.sessions[id]; ok {
		return session.Recv(message, ctx)
	}

	upstream, ok := p.listenBindings[hdr.Destination]
	if !ok {
		return fmt.Errorf("ipv4 demux dest=%#x: %w", hdr.Destination, ErrMissingListenBinding)
	}

	networkIndex, err := ctx.Info.GetU8(core.NetworkIndex)
	if err != nil {
		return fmt.Errorf("ipv4 demux: arrival network index: %w", err)
	}
	downstream, err := p.tapSession(ctx, networkIndex)
	if err != nil {
		return err
	}
	session := &Session{downstream: downstream, upstream: upstream, id: id}
	p.sessions[id] = session
	return session.Recv(message, ctx)
}

// Awake is a no-op: IPv4 has nothing to do independent of a Send/Recv
// call.
func (p *Protocol) Awake(ctx *core.ProtocolContext) (core.ControlFlow, error) {
	return core.Continue, nil
}

func (p *Protocol) tapSession(ctx *core.ProtocolContext, networkIndex uint8) (core.Session, error) {
	tapProtocol, ok := ctx.Protocol(tap.ID)
	if !ok {
		return nil, ErrTapUnavailable
	}
	participants := core.NewControl()
	participants.Insert(core.NetworkIndex, core.U8Primitive(networkIndex))
	return tapProtocol.OpenActive(ID, participants, ctx)
}

// Session is an IPv4 session between a local and remote address, for a
// single upstream protocol.
type Session struct {
	downstream core.Session
	upstream   core.ProtocolId
	id         identifier
}

// Protocol returns IPv4's protocol id; all IPv4 sessions share it.
func (s *Session) Protocol() core.ProtocolId { return ID }

// Send builds the 20-byte IPv4 header for message's length, with TTL
// fixed at 30 and the protocol number derived from this session's
// upstream, and prepends it before delegating to the Tap session.
func (s *Session) Send(message core.Message, ctx *core.ProtocolContext) error {
	protoNum, err := protocolNumber(s.upstream)
	if err != nil {
		return err
	}
	hdr := Header{
		TotalLength: uint16(HeaderLen + message.Len()),
		TTL:         sendTTL,
		Protocol:    protoNum,
		Source:      s.id.local,
		Destination: s.id.remote,
	}
	framed := message.WithHeader(hdr.Marshal())
	return s.downstream.Send(framed, ctx)
}

// Recv slices off the 20-byte header that Demux already validated and
// delivers the body to this session's upstream protocol, marking this
// session as the current one so a freshly-demultiplexed upper session
// can record it as its downstream.
func (s *Session) Recv(message core.Message, ctx *core.ProtocolContext) error {
	upstreamProtocol, ok := ctx.Protocol(s.upstream)
	if !ok {
		return fmt.Errorf("ipv4 recv: upstream %s: %w", s.upstream, ErrUnknownUpstreamProtocol)
	}
	upCtx := ctx.WithSession(s)
	return upstreamProtocol.Demux(message.Slice(HeaderLen), &upCtx)
}

// Awake is a no-op; an IPv4 session has nothing to do on a tick.
func (s *Session) Awake(ctx *core.ProtocolContext) error { return nil }

func protocolNumber(upstream core.ProtocolId) (uint8, error) {
	switch {
	case upstream.Layer == core.LayerTransport && upstream.Code == udpProtoNum:
		return udpProtoNum, nil
	case upstream.Layer == core.LayerTransport && upstream.Code == tcpProtoNum:
		return tcpProtoNum, nil
	default:
		return 0, fmt.Errorf("ipv4 send: upstream %s: %w", upstream, ErrUnknownUpstreamProtocol)
	}
}
