package core

// MachineID identifies a Machine within an Internet.
type MachineID int

// PhysicalAddress names the recipient(s) of a Message placed on a
// Network: either every attached machine (Broadcast) or one specific
// machine. Routing beyond a flat broadcast medium is out of scope, so
// this is the entire addressing model.
type PhysicalAddress struct {
	broadcast bool
	target    MachineID
}

// BroadcastAddress returns the PhysicalAddress meaning "every attached
// machine".
func BroadcastAddress() PhysicalAddress {
	return PhysicalAddress{broadcast: true}
}

// UnicastAddress returns the PhysicalAddress naming a single machine.
func UnicastAddress(id MachineID) PhysicalAddress {
	return PhysicalAddress{target: id}
}

// matches reports whether addr names id.
func (a PhysicalAddress) matches(id MachineID) bool {
	return a.broadcast || a.target == id
}

// queuedMessage is a Message in flight on a Network, tagged with the
// machine that sent it (so the sender never observes its own broadcast)
// and the intended PhysicalAddress.
type queuedMessage struct {
	sender MachineID
	addr   PhysicalAddress
	msg    Message
}

// Network is a simulated broadcast medium connecting machines. Messages
// sent during tick T become visible to every other attached machine only
// once Advance is called, i.e. during tick T+1 -- a Network never
// delivers a message during the same tick it was sent on.
type Network struct {
	inFlight []queuedMessage
	pending  []queuedMessage
}

// NewNetwork returns an empty Network.
func NewNetwork() *Network {
	return &Network{}
}

// Send enqueues msg from sender to addr. It becomes visible to matching
// machines (other than sender) after the next call to Advance.
func (n *Network) Send(sender MachineID, addr PhysicalAddress, msg Message) {
	n.inFlight = append(n.inFlight, queuedMessage{sender: sender, addr: addr, msg: msg})
}

// MessagesFor returns the Messages currently pending delivery to id,
// excluding any the machine sent to itself this round.
func (n *Network) MessagesFor(id MachineID) []Message {
	var out []Message
	for _, qm := range n.pending {
		if qm.sender == id {
			continue
		}
		if qm.addr.matches(id) {
			out = append(out, qm.msg)
		}
	}
	return out
}

// Advance retires the messages sent during the tick just finished into
// the pending set delivered on the next tick.
func (n *Network) Advance() {
	n.pending = n.inFlight
	n.inFlight = nil
}

// HasWork reports whether any message is in flight or pending delivery.
func (n *Network) HasWork() bool {
	return len(n.inFlight) > 0 || len(n.pending) > 0
}
