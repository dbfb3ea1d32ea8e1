package core

import "log/slog"

// TapProtocol is the subset of the Tap's interface a Machine drives
// directly every tick: handing it newly-arrived frames and draining
// whatever it has queued for transmission. It is declared here, rather
// than imported from internal/protocols/tap, so that internal/core has
// no dependency on any concrete protocol.
type TapProtocol interface {
	Protocol
	// AcceptIncoming hands the Tap a Message that arrived on the
	// attached network at networkIndex, so it can strip its own header
	// and demultiplex to the protocol named within. It returns the
	// ProtocolId the frame was (or would have been) demultiplexed to,
	// when the header decoded far enough to name one, so the caller can
	// attribute metrics even on a Demux-level drop.
	AcceptIncoming(message Message, networkIndex uint8, ctx *ProtocolContext) (ProtocolId, error)
	// Outgoing drains and returns every Message queued for transmission,
	// keyed by the local network index it should be sent on.
	Outgoing() map[uint8][]Message
}

// PendingMessage is a Message waiting to be delivered to a Machine,
// tagged with the local index of the network it arrived on.
type PendingMessage struct {
	Message      Message
	NetworkIndex uint8
}

// MachineContext is the per-tick view a Machine needs of the Internet it
// is attached to: which messages are waiting for it, and which Networks
// it can transmit on, indexed identically.
type MachineContext interface {
	// Pending returns the messages that arrived for this machine since
	// its last tick, each tagged with the local network index it arrived
	// on.
	Pending() []PendingMessage
	// Networks returns the Networks attached to this machine, in the
	// same order as the local network indices used elsewhere.
	Networks() []*Network
}

// Machine is one host in the simulation: an identity, a Tap connecting
// it to its attached networks, and the protocol stack layered above the
// Tap. Protocols are keyed by ProtocolId; configuring the same
// ProtocolId twice is a construction-time mistake, not a runtime one.
type Machine struct {
	id        MachineID
	tap       TapProtocol
	protocols ProtocolTable
	logger    *slog.Logger
	metrics   MetricsReporter
	hadWork   bool
}

// MachineOption configures a Machine at construction.
type MachineOption func(*Machine)

// WithMetrics attaches a MetricsReporter to the machine. If mr is nil,
// the default no-op reporter is used.
func WithMetrics(mr MetricsReporter) MachineOption {
	return func(m *Machine) {
		if mr != nil {
			m.metrics = mr
		}
	}
}

// NewMachine builds a Machine from its Tap and the rest of its protocol
// stack. It panics if two protocols share a ProtocolId or either one
// collides with the Tap's id: a stack like that can never route
// correctly, and the mistake is always in the caller's wiring.
func NewMachine(id MachineID, tap TapProtocol, protocols []Protocol, logger *slog.Logger, opts ...MachineOption) *Machine {
	table := make(ProtocolTable, len(protocols)+1)
	table[tap.ID()] = tap
	for _, p := range protocols {
		pid := p.ID()
		if _, exists := table[pid]; exists {
			panic("core: duplicate protocol id " + pid.String() + " on machine")
		}
		table[pid] = p
	}
	if logger == nil {
		logger = slog.Default()
	}
	m := &Machine{
		id:        id,
		tap:       tap,
		protocols: table,
		logger:    logger.With(slog.String("component", "machine"), slog.Int("machine", int(id))),
		metrics:   noopMetrics{},
	}
	for _, opt := range opts {
		opt(m)
	}
	return m
}

// ID returns the machine's identity.
func (m *Machine) ID() MachineID { return m.id }

// Protocols returns the machine's protocol table, keyed by ProtocolId.
// Callers use this to reach into a machine's stack when wiring a
// scenario (e.g. to call Listen on its UDP protocol before the
// simulation starts).
func (m *Machine) Protocols() ProtocolTable { return m.protocols }

// Awake runs one tick for this machine: incoming frames are handed to
// the Tap, every protocol gets its Awake call, and whatever the Tap has
// queued for transmission is placed on the matching attached network.
// Errors surfaced while accepting an individual frame or waking an
// individual protocol are logged and do not abort the tick; the cost of
// one broken frame or protocol should never be the rest of the stack's
// tick.
func (m *Machine) Awake(ctx MachineContext) ControlFlow {
	pctx := NewProtocolContext(m.protocols)

	pending := ctx.Pending()
	hadWork := len(pending) > 0

	for _, p := range pending {
		pid, err := m.tap.AcceptIncoming(p.Message, p.NetworkIndex, &pctx)
		if err != nil {
			m.logger.Warn("dropped incoming frame", slog.Any("error", err))
			reason := "undecodable_frame"
			if pid != (ProtocolId{}) {
				reason = "rejected_by_" + pid.String()
			}
			m.metrics.IncMessagesDropped(reason)
			continue
		}
		m.metrics.IncMessagesDelivered(pid)
	}

	flow := Continue
	for id, protocol := range m.protocols {
		awakeCtx := pctx.Clone()
		f, err := protocol.Awake(&awakeCtx)
		if err != nil {
			m.logger.Warn("protocol awake failed", slog.String("protocol", id.String()), slog.Any("error", err))
			continue
		}
		if f == EndSimulation {
			flow = EndSimulation
		}
	}

	networks := ctx.Networks()
	for networkIndex, messages := range m.tap.Outgoing() {
		if len(messages) > 0 {
			hadWork = true
		}
		if int(networkIndex) >= len(networks) {
			m.logger.Warn("tap queued a frame for an unattached network", slog.Int("network_index", int(networkIndex)))
			m.metrics.IncMessagesDropped("unattached_network")
			continue
		}
		net := networks[networkIndex]
		for _, msg := range messages {
			net.Send(m.id, BroadcastAddress(), msg)
		}
	}

	m.hadWork = hadWork
	return flow
}

// HasWork reports whether this machine's most recently completed tick
// consumed any inbound frame or produced any outgoing one. Internet.Run
// checks this, together with every Network's HasWork, to stop the
// simulation once it has quiesced even when no protocol ever returns
// EndSimulation.
func (m *Machine) HasWork() bool {
	return m.hadWork
}
