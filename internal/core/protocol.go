package core

// ControlFlow is the cooperative tick-termination signal returned from
// Protocol.Awake. EndSimulation from any protocol on any machine stops the
// Internet's run loop before the next tick begins; it is not an error.
type ControlFlow uint8

const (
	// Continue means the simulation should keep ticking.
	Continue ControlFlow = iota
	// EndSimulation means the current tick is the last one.
	EndSimulation
)

// Protocol is per-machine state for one layer of the stack: networking
// protocols such as the Tap, IPv4, and UDP, as well as applications. A
// Machine holds exactly one instance of each Protocol it is configured
// with, keyed by ProtocolId.
type Protocol interface {
	// ID returns this protocol's identity.
	ID() ProtocolId

	// OpenActive creates or returns an outbound Session for upstream,
	// keyed by the demultiplexing hints in participants (read from
	// ctx.Info by the callee, not from the participants value directly,
	// except where noted per protocol). Fails with a session-collision
	// error if an identical connection already exists.
	OpenActive(upstream ProtocolId, participants Control, ctx *ProtocolContext) (Session, error)

	// Listen registers a passive binding so inbound traffic matching
	// participants' local keys is delivered up to upstream. Fails with a
	// binding-collision error if the key tuple is already bound.
	Listen(upstream ProtocolId, participants Control, ctx *ProtocolContext) error

	// Demux is called by the lower layer to pass an inbound message up.
	// The protocol parses its header, updates ctx.Info with the keys it
	// now knows, locates or creates the matching session, and delivers
	// to it.
	Demux(message Message, ctx *ProtocolContext) error

	// Awake is called once per machine tick.
	Awake(ctx *ProtocolContext) (ControlFlow, error)
}

// Session is per-connection state at one layer, shared between the
// owning Protocol's session table and whichever call chain is currently
// operating on it.
type Session interface {
	// Protocol returns the id of the protocol that owns this session.
	Protocol() ProtocolId

	// Send prepends this layer's header and delegates to the downstream
	// Session's Send. The Tap's session has no downstream; it queues the
	// framed message for its network instead.
	Send(message Message, ctx *ProtocolContext) error

	// Recv strips this layer's header and hands the remainder up, either
	// to a upstream Session it already knows about or, for a freshly
	// demultiplexed session, to the upstream Protocol's Demux.
	Recv(message Message, ctx *ProtocolContext) error

	// Awake is a per-tick hook; most sessions no-op.
	Awake(ctx *ProtocolContext) error
}
