// Package apps provides the demo application collaborators named in the
// simulation core's external interface: opaque User-layer protocols that
// open or listen on a UDP socket and send or capture a single message.
// Capture signals EndSimulation once its work is done; SendMessage never
// does. They are not part of the
// core being specified -- SendMessage and Capture are grounded on
// original_source/sim/src/applications/send_message.rs and capture.rs --
// but the core's demux/session machinery has no other way to be
// exercised end-to-end without something playing this role.
package apps

import (
	"github.com/dantte-lp/elvis/internal/core"
)

// Endpoint names a UDP socket by its IPv4 address and port, the pair an
// application needs to open or listen on a connection.
type Endpoint struct {
	Address uint32
	Port    uint16
}

func participants(local, remote Endpoint) core.Control {
	c := core.NewControl()
	c.Insert(core.LocalAddress, core.U32Primitive(local.Address))
	c.Insert(core.RemoteAddress, core.U32Primitive(remote.Address))
	c.Insert(core.LocalPort, core.U16Primitive(local.Port))
	c.Insert(core.RemotePort, core.U16Primitive(remote.Port))
	return c
}

func listenParticipants(local Endpoint) core.Control {
	c := core.NewControl()
	c.Insert(core.LocalAddress, core.U32Primitive(local.Address))
	c.Insert(core.LocalPort, core.U16Primitive(local.Port))
	return c
}
