package core

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
)

// ErrUnknownNetworkAttachment indicates a Machine was attached to a
// network index that has no corresponding Network.
var ErrUnknownNetworkAttachment = errors.New("attachment references unknown network")

// ErrDuplicateMachine indicates two machines were registered under the
// same MachineID.
var ErrDuplicateMachine = errors.New("duplicate machine id")

// machineContext is the concrete MachineContext the Internet builds for
// each machine on each tick.
type machineContext struct {
	machineID MachineID
	networks  []*Network
}

func (c *machineContext) Pending() []PendingMessage {
	var out []PendingMessage
	for i, net := range c.networks {
		for _, msg := range net.MessagesFor(c.machineID) {
			out = append(out, PendingMessage{Message: msg, NetworkIndex: uint8(i)})
		}
	}
	return out
}

func (c *machineContext) Networks() []*Network { return c.networks }

// Internet is the top-level simulation: a set of machines, the networks
// connecting them, and the attachment of each machine to a subset of
// those networks. Run drives the whole thing forward one cooperative
// tick at a time.
type Internet struct {
	machines    map[MachineID]*Machine
	order       []MachineID
	networks    []*Network
	attachments map[MachineID][]int
	logger      *slog.Logger
	maxTicks    int
	onTick      func()
}

// InternetOption configures an Internet at construction.
type InternetOption func(*Internet)

// WithMaxTicks bounds the number of ticks Run will execute before
// giving up and returning, as a safety net against a scenario whose
// protocols never signal EndSimulation. Zero (the default) means
// unbounded.
func WithMaxTicks(n int) InternetOption {
	return func(i *Internet) { i.maxTicks = n }
}

// WithTickHook registers fn to be called once at the end of every
// completed tick, after every machine has woken and every network has
// advanced. It exists so external instrumentation (e.g. a metrics
// collector) can observe tick progress without Internet depending on
// any particular instrumentation library.
func WithTickHook(fn func()) InternetOption {
	return func(i *Internet) { i.onTick = fn }
}

// NewInternet builds an Internet from its machines, its networks, and
// the attachment map assigning each machine the (ordered) list of
// network indices it can reach. Attachment order determines a machine's
// local network indices, which is also the indexing Tap.Outgoing uses.
func NewInternet(machines []*Machine, networks []*Network, attachments map[MachineID][]int, logger *slog.Logger, opts ...InternetOption) (*Internet, error) {
	byID := make(map[MachineID]*Machine, len(machines))
	order := make([]MachineID, 0, len(machines))
	for _, m := range machines {
		if _, exists := byID[m.ID()]; exists {
			return nil, fmt.Errorf("machine %d: %w", m.ID(), ErrDuplicateMachine)
		}
		byID[m.ID()] = m
		order = append(order, m.ID())
	}
	for id, indices := range attachments {
		for _, idx := range indices {
			if idx < 0 || idx >= len(networks) {
				return nil, fmt.Errorf("machine %d attachment %d: %w", id, idx, ErrUnknownNetworkAttachment)
			}
		}
	}
	if logger == nil {
		logger = slog.Default()
	}
	in := &Internet{
		machines:    byID,
		order:       order,
		networks:    networks,
		attachments: attachments,
		logger:      logger.With(slog.String("component", "internet")),
	}
	for _, opt := range opts {
		opt(in)
	}
	return in, nil
}

// Machine returns the machine registered under id, if any.
func (in *Internet) Machine(id MachineID) (*Machine, bool) {
	m, ok := in.machines[id]
	return m, ok
}

// Network returns the network at the given global index, if any.
func (in *Internet) Network(index int) (*Network, bool) {
	if index < 0 || index >= len(in.networks) {
		return nil, false
	}
	return in.networks[index], true
}

func (in *Internet) networksFor(id MachineID) []*Network {
	indices := in.attachments[id]
	nets := make([]*Network, len(indices))
	for i, idx := range indices {
		nets[i] = in.networks[idx]
	}
	return nets
}

// Run drives the simulation forward, round-robin waking every machine
// once per tick, then advancing every network so messages sent this
// tick become visible next tick. It stops when any protocol on any
// machine returns EndSimulation, when ctx is cancelled, when (if
// WithMaxTicks was set) the configured number of ticks elapses, or when
// the simulation has quiesced -- no network has a message in flight or
// pending delivery and no machine consumed or produced one on the tick
// just finished, per §4.7's "while ... at least one network or machine
// has work."
func (in *Internet) Run(ctx context.Context) error {
	tick := 0
	for {
		if err := ctx.Err(); err != nil {
			return err
		}
		if in.maxTicks > 0 && tick >= in.maxTicks {
			in.logger.Warn("stopping: max ticks reached", slog.Int("max_ticks", in.maxTicks))
			return nil
		}

		flow := Continue
		anyMachineHasWork := false
		for _, id := range in.order {
			mc := &machineContext{machineID: id, networks: in.networksFor(id)}
			machine := in.machines[id]
			if f := machine.Awake(mc); f == EndSimulation {
				flow = EndSimulation
			}
			if machine.HasWork() {
				anyMachineHasWork = true
			}
		}

		anyNetworkHasWork := false
		for _, net := range in.networks {
			net.Advance()
			if net.HasWork() {
				anyNetworkHasWork = true
			}
		}

		tick++
		if in.onTick != nil {
			in.onTick()
		}
		if flow == EndSimulation {
			in.logger.Info("simulation ended", slog.Int("ticks", tick))
			return nil
		}
		if !anyMachineHasWork && !anyNetworkHasWork {
			in.logger.Info("stopping: simulation quiesced", slog.Int("ticks", tick))
			return nil
		}
	}
}
