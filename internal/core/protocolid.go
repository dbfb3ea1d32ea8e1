package core

import (
	"errors"
	"fmt"
)

// ErrInvalidNetworkLayer indicates a ProtocolId was decoded from a u16
// whose high (layer) byte does not correspond to a known NetworkLayer.
var ErrInvalidNetworkLayer = errors.New("invalid network layer")

// NetworkLayer places a ProtocolId within the stack, mirroring the
// classical link/network/transport/application split.
type NetworkLayer uint8

const (
	// LayerLink is the link layer (the Tap).
	LayerLink NetworkLayer = iota
	// LayerNetwork is the network layer (IPv4).
	LayerNetwork
	// LayerTransport is the transport layer (UDP, TCP).
	LayerTransport
	// LayerUser is the application layer.
	LayerUser
)

// String returns the layer's name, for log messages and error text.
func (l NetworkLayer) String() string {
	switch l {
	case LayerLink:
		return "Link"
	case LayerNetwork:
		return "Network"
	case LayerTransport:
		return "Transport"
	case LayerUser:
		return "User"
	default:
		return fmt.Sprintf("NetworkLayer(%d)", uint8(l))
	}
}

// ProtocolId identifies a protocol by its layer and a per-layer code,
// e.g. (Network, 4) for IPv4 or (Transport, 17) for UDP.
type ProtocolId struct {
	Layer NetworkLayer
	Code  uint8
}

// NewProtocolId builds a ProtocolId from a layer and code.
func NewProtocolId(layer NetworkLayer, code uint8) ProtocolId {
	return ProtocolId{Layer: layer, Code: code}
}

// Encode packs the ProtocolId into the compact u16 wire form used by the
// Tap header: (layer << 8 | code).
func (p ProtocolId) Encode() uint16 {
	return uint16(p.Layer)<<8 | uint16(p.Code)
}

// EncodeBytes returns the big-endian two-byte encoding of the ProtocolId,
// exactly as the Tap prepends it to outgoing frames.
func (p ProtocolId) EncodeBytes() [2]byte {
	v := p.Encode()
	return [2]byte{byte(v >> 8), byte(v)}
}

// DecodeProtocolId unpacks a u16 produced by Encode. Returns
// ErrInvalidNetworkLayer if the high byte does not name a known layer.
func DecodeProtocolId(v uint16) (ProtocolId, error) {
	layer := NetworkLayer(v >> 8)
	if layer > LayerUser {
		return ProtocolId{}, fmt.Errorf("decode protocol id 0x%04x: %w", v, ErrInvalidNetworkLayer)
	}
	return ProtocolId{Layer: layer, Code: uint8(v)}, nil
}

// String renders the ProtocolId as "Layer/code", e.g. "Transport/17".
func (p ProtocolId) String() string {
	return fmt.Sprintf("%s/%d", p.Layer, p.Code)
}
