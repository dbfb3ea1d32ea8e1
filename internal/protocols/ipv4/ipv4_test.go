package ipv4_test

import (
	"errors"
	"testing"

	"github.com/dantte-lp/elvis/internal/core"
	"github.com/dantte-lp/elvis/internal/protocols/ipv4"
	"github.com/dantte-lp/elvis/internal/protocols/tap"
)

const (
	localAddr  uint32 = 0x0A000001
	remoteAddr uint32 = 0x0A000002
)

var udpID = core.NewProtocolId(core.LayerTransport, 17)

type fakeTapSession struct {
	network uint8
	sent    []core.Message
}

func (s *fakeTapSession) Protocol() core.ProtocolId              { return tap.ID }
func (s *fakeTapSession) Send(m core.Message, _ *core.ProtocolContext) error {
	s.sent = append(s.sent, m)
	return nil
}
func (s *fakeTapSession) Recv(core.Message, *core.ProtocolContext) error { return nil }
func (s *fakeTapSession) Awake(*core.ProtocolContext) error             { return nil }

type fakeTap struct {
	sessions map[uint8]*fakeTapSession
}

func (t *fakeTap) ID() core.ProtocolId { return tap.ID }
func (t *fakeTap) OpenActive(_ core.ProtocolId, participants core.Control, _ *core.ProtocolContext) (core.Session, error) {
	n, err := participants.GetU8(core.NetworkIndex)
	if err != nil {
		return nil, err
	}
	if t.sessions == nil {
		t.sessions = map[uint8]*fakeTapSession{}
	}
	if s, ok := t.sessions[n]; ok {
		return s, nil
	}
	s := &fakeTapSession{network: n}
	t.sessions[n] = s
	return s, nil
}
func (t *fakeTap) Listen(core.ProtocolId, core.Control, *core.ProtocolContext) error {
	return errors.New("fakeTap: Listen unused in this test")
}
func (t *fakeTap) Demux(core.Message, *core.ProtocolContext) error {
	return errors.New("fakeTap: Demux unused in this test")
}
func (t *fakeTap) Awake(*core.ProtocolContext) (core.ControlFlow, error) {
	return core.Continue, nil
}

type fakeUpstream struct {
	id                  core.ProtocolId
	demuxedBodies       []string
	sawCurrentSession   []bool
}

func (u *fakeUpstream) ID() core.ProtocolId { return u.id }
func (u *fakeUpstream) OpenActive(core.ProtocolId, core.Control, *core.ProtocolContext) (core.Session, error) {
	return nil, errors.New("fakeUpstream: OpenActive unused in this test")
}
func (u *fakeUpstream) Listen(core.ProtocolId, core.Control, *core.ProtocolContext) error {
	return errors.New("fakeUpstream: Listen unused in this test")
}
func (u *fakeUpstream) Demux(message core.Message, ctx *core.ProtocolContext) error {
	u.demuxedBodies = append(u.demuxedBodies, string(message.Bytes()))
	_, ok := ctx.CurrentSession()
	u.sawCurrentSession = append(u.sawCurrentSession, ok)
	return nil
}
func (u *fakeUpstream) Awake(*core.ProtocolContext) (core.ControlFlow, error) {
	return core.Continue, nil
}

func newTestContext(t *testing.T, ft *fakeTap, upstream *fakeUpstream) (*ipv4.Protocol, core.ProtocolContext) {
	t.Helper()
	p := ipv4.New()
	table := core.ProtocolTable{
		tap.ID: ft,
		ipv4.ID: p,
	}
	if upstream != nil {
		table[upstream.id] = upstream
	}
	return p, core.NewProtocolContext(table)
}

func TestIpv4OpenActiveThenSend(t *testing.T) {
	ft := &fakeTap{}
	p, ctx := newTestContext(t, ft, nil)

	ctx.Info.Insert(core.LocalAddress, core.U32Primitive(localAddr))
	ctx.Info.Insert(core.RemoteAddress, core.U32Primitive(remoteAddr))

	session, err := p.OpenActive(udpID, core.NewControl(), &ctx)
	if err != nil {
		t.Fatalf("OpenActive: %v", err)
	}
	if err := session.Send(core.NewMessageString("payload"), &ctx); err != nil {
		t.Fatalf("Send: %v", err)
	}

	tapSession, ok := ft.sessions[0]
	if !ok || len(tapSession.sent) != 1 {
		t.Fatalf("tap session 0 sent = %v, want one frame", ft.sessions)
	}
	framed := tapSession.sent[0]
	header, ok := framed.Take(ipv4.HeaderLen)
	if !ok {
		t.Fatalf("framed message shorter than header")
	}
	hdr, err := ipv4.ParseHeader(header)
	if err != nil {
		t.Fatalf("ParseHeader on sent frame: %v", err)
	}
	if hdr.TTL != 30 {
		t.Fatalf("TTL = %d, want 30", hdr.TTL)
	}
	if hdr.Protocol != 17 {
		t.Fatalf("Protocol = %d, want 17 (UDP)", hdr.Protocol)
	}
	if hdr.Source != localAddr || hdr.Destination != remoteAddr {
		t.Fatalf("Source/Destination = %#x/%#x, want %#x/%#x", hdr.Source, hdr.Destination, localAddr, remoteAddr)
	}
	if body := string(framed.Slice(ipv4.HeaderLen).Bytes()); body != "payload" {
		t.Fatalf("body = %q, want %q", body, "payload")
	}
}

func TestIpv4OpenActiveRejectsDuplicateSession(t *testing.T) {
	ft := &fakeTap{}
	p, ctx := newTestContext(t, ft, nil)
	ctx.Info.Insert(core.LocalAddress, core.U32Primitive(localAddr))
	ctx.Info.Insert(core.RemoteAddress, core.U32Primitive(remoteAddr))

	if _, err := p.OpenActive(udpID, core.NewControl(), &ctx); err != nil {
		t.Fatalf("first OpenActive: %v", err)
	}
	if _, err := p.OpenActive(udpID, core.NewControl(), &ctx); !errors.Is(err, ipv4.ErrSessionExists) {
		t.Fatalf("second OpenActive: err = %v, want ErrSessionExists", err)
	}
}

func TestIpv4DemuxPassiveOpenAndReuse(t *testing.T) {
	ft := &fakeTap{}
	upstream := &fakeUpstream{id: udpID}
	p, ctx := newTestContext(t, ft, upstream)

	participants := core.NewControl()
	participants.Insert(core.LocalAddress, core.U32Primitive(localAddr))
	if err := p.Listen(udpID, participants, &ctx); err != nil {
		t.Fatalf("Listen: %v", err)
	}

	hdr := ipv4.Header{TTL: 30, Protocol: 17, Source: remoteAddr, Destination: localAddr, TotalLength: 27}
	frame := core.NewMessageString("payload").WithHeader(hdr.Marshal())

	ctx.Info.Insert(core.NetworkIndex, core.U8Primitive(2))
	if err := p.Demux(frame, &ctx); err != nil {
		t.Fatalf("Demux: %v", err)
	}

	if len(upstream.demuxedBodies) != 1 || upstream.demuxedBodies[0] != "payload" {
		t.Fatalf("upstream.demuxedBodies = %v, want [\"payload\"]", upstream.demuxedBodies)
	}
	if !upstream.sawCurrentSession[0] {
		t.Fatalf("upstream did not see a current session on passive demux")
	}
	if got, err := ctx.Info.GetU32(core.LocalAddress); err != nil || got != localAddr {
		t.Fatalf("ctx.Info LocalAddress = %d, %v, want %d", got, err, localAddr)
	}
	if got, err := ctx.Info.GetU32(core.RemoteAddress); err != nil || got != remoteAddr {
		t.Fatalf("ctx.Info RemoteAddress = %d, %v, want %d", got, err, remoteAddr)
	}
	if tapSession, ok := ft.sessions[2]; !ok || tapSession.network != 2 {
		t.Fatalf("tap session opened on network 2: ft.sessions = %v", ft.sessions)
	}

	// A second inbound frame for the same pair must reuse the existing
	// session instead of opening another Tap session.
	if err := p.Demux(frame, &ctx); err != nil {
		t.Fatalf("second Demux: %v", err)
	}
	if len(ft.sessions) != 1 {
		t.Fatalf("ft.sessions after two demuxes = %v, want exactly one tap session", ft.sessions)
	}
	if len(upstream.demuxedBodies) != 2 {
		t.Fatalf("upstream.demuxedBodies after two demuxes = %v, want 2 entries", upstream.demuxedBodies)
	}
}

func TestIpv4DemuxMissingListenBinding(t *testing.T) {
	ft := &fakeTap{}
	p, ctx := newTestContext(t, ft, nil)
	ctx.Info.Insert(core.NetworkIndex, core.U8Primitive(0))

	hdr := ipv4.Header{TTL: 30, Protocol: 17, Source: remoteAddr, Destination: localAddr, TotalLength: 27}
	frame := core.NewMessageString("payload").WithHeader(hdr.Marshal())

	if err := p.Demux(frame, &ctx); !errors.Is(err, ipv4.ErrMissingListenBinding) {
		t.Fatalf("Demux with no listen binding: err = %v, want ErrMissingListenBinding", err)
	}
}

func TestIpv4SendRejectsUnknownUpstream(t *testing.T) {
	ft := &fakeTap{}
	p, ctx := newTestContext(t, ft, nil)
	ctx.Info.Insert(core.LocalAddress, core.U32Primitive(localAddr))
	ctx.Info.Insert(core.RemoteAddress, core.U32Primitive(remoteAddr))

	unknownUpstream := core.NewProtocolId(core.LayerTransport, 200)
	session, err := p.OpenActive(unknownUpstream, core.NewControl(), &ctx)
	if err != nil {
		t.Fatalf("OpenActive: %v", err)
	}
	if err := session.Send(core.NewMessageString("x"), &ctx); !errors.Is(err, ipv4.ErrUnknownUpstreamProtocol) {
		t.Fatalf("Send with unknown upstream: err = %v, want ErrUnknownUpstreamProtocol", err)
	}
}
