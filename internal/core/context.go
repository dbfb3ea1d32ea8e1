package core

// ProtocolTable maps each protocol a Machine owns to its ProtocolId. It is
// built once at Machine construction and shared, read-only, by every
// ProtocolContext created during the machine's ticks.
type ProtocolTable map[ProtocolId]Protocol

// ProtocolContext is the per-delivery scratch value threaded through every
// OpenActive/Listen/Demux/Recv/Send call: the shared protocol table, the
// Control accumulating demux keys as a frame ascends the stack, and a
// reference to the session that invoked the current call (so a passively
// opened upper session can record its downstream without rediscovering
// it). It is cloned cheaply on each layer transition: the protocol table
// and current session are shared by reference, and Info is copied.
type ProtocolContext struct {
	protocols      ProtocolTable
	Info           Control
	currentSession Session
}

// NewProtocolContext builds a fresh ProtocolContext for one machine tick,
// sharing protocols and starting with an empty Control and no current
// session.
func NewProtocolContext(protocols ProtocolTable) ProtocolContext {
	return ProtocolContext{protocols: protocols, Info: NewControl()}
}

// Protocol looks up a protocol by id. A miss is always a setup error, not
// a runtime condition -- callers are expected to build the machine with
// every protocol the stack references.
func (c *ProtocolContext) Protocol(id ProtocolId) (Protocol, bool) {
	p, ok := c.protocols[id]
	return p, ok
}

// CurrentSession returns the session that invoked the call currently in
// progress, if any.
func (c *ProtocolContext) CurrentSession() (Session, bool) {
	return c.currentSession, c.currentSession != nil
}

// Clone returns a context sharing this one's protocol table and current
// session but holding an independent copy of Info, safe to mutate without
// affecting the caller's context.
func (c *ProtocolContext) Clone() ProtocolContext {
	return ProtocolContext{
		protocols:      c.protocols,
		Info:           c.Info.Clone(),
		currentSession: c.currentSession,
	}
}

// WithSession returns a clone of this context with its current session
// set to s. A Session calls this on itself before delegating to an
// upstream Protocol's Demux, so that a passive open at that layer can
// record s as its downstream.
func (c *ProtocolContext) WithSession(s Session) ProtocolContext {
	next := c.Clone()
	next.currentSession = s
	return next
}
