// Package core implements the foundational abstractions for building
// Internet simulations in the x-kernel style: layered, composable
// protocols and sessions driven by a discrete-time tick loop.
//
// Organization:
//   - Message and Control provide utilities common to most protocols.
//   - Protocol and Session implement individual network layers.
//   - Machine, Network, and Internet work together to run the simulation.
//
// A Session contains the state for a single open connection on a single
// protocol. Sessions are created by a Protocol either in response to a
// program opening a connection (active open) or in response to a new
// connection being demultiplexed for a listening program (passive open).
// Protocols also route incoming packets to the correct Session. A Machine
// bundles a set of Protocols and coordinates them on each simulation tick.
package core
