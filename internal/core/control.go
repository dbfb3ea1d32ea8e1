package core

import (
	"errors"
	"fmt"
)

// ErrWrongPrimitiveType indicates a Control value was fetched as a type
// other than the one it was stored with.
var ErrWrongPrimitiveType = errors.New("control value has a different primitive type")

// ErrControlKeyMissing indicates a required Control key was not present.
var ErrControlKeyMissing = errors.New("control key missing")

// ControlKey identifies one of the small, fixed set of demultiplexing hints
// that protocols pass to each other alongside a Message.
type ControlKey uint8

const (
	// LocalAddress is the IPv4 address of this endpoint (u32).
	LocalAddress ControlKey = iota
	// RemoteAddress is the IPv4 address of the peer (u32).
	RemoteAddress
	// LocalPort is the UDP/TCP port of this endpoint (u16).
	LocalPort
	// RemotePort is the UDP/TCP port of the peer (u16).
	RemotePort
	// NetworkIndex identifies which attached network carried a frame (u8).
	NetworkIndex
	// ProtocolIDKey is the upper-layer protocol id (u16).
	ProtocolIDKey
)

// String returns the name of the key, for log messages and error text.
func (k ControlKey) String() string {
	switch k {
	case LocalAddress:
		return "LocalAddress"
	case RemoteAddress:
		return "RemoteAddress"
	case LocalPort:
		return "LocalPort"
	case RemotePort:
		return "RemotePort"
	case NetworkIndex:
		return "NetworkIndex"
	case ProtocolIDKey:
		return "ProtocolId"
	default:
		return fmt.Sprintf("ControlKey(%d)", uint8(k))
	}
}

// primitiveKind tags which fixed-width unsigned type a Primitive holds.
type primitiveKind uint8

const (
	kindU8 primitiveKind = iota
	kindU16
	kindU32
	kindU64
)

// Primitive is a tagged fixed-width unsigned integer, the only kind of
// value a Control may carry. Fetching it as the wrong width is an error
// rather than a silent truncation or widening.
type Primitive struct {
	kind primitiveKind
	bits uint64
}

// U8Primitive wraps a uint8 as a Primitive.
func U8Primitive(v uint8) Primitive { return Primitive{kind: kindU8, bits: uint64(v)} }

// U16Primitive wraps a uint16 as a Primitive.
func U16Primitive(v uint16) Primitive { return Primitive{kind: kindU16, bits: uint64(v)} }

// U32Primitive wraps a uint32 as a Primitive.
func U32Primitive(v uint32) Primitive { return Primitive{kind: kindU32, bits: uint64(v)} }

// U64Primitive wraps a uint64 as a Primitive.
func U64Primitive(v uint64) Primitive { return Primitive{kind: kindU64, bits: v} }

// U8 returns the wrapped value as a uint8, or ErrWrongPrimitiveType if the
// Primitive was not stored as a u8.
func (p Primitive) U8() (uint8, error) {
	if p.kind != kindU8 {
		return 0, fmt.Errorf("read u8: %w", ErrWrongPrimitiveType)
	}
	return uint8(p.bits), nil
}

// U16 returns the wrapped value as a uint16, or ErrWrongPrimitiveType if
// the Primitive was not stored as a u16.
func (p Primitive) U16() (uint16, error) {
	if p.kind != kindU16 {
		return 0, fmt.Errorf("read u16: %w", ErrWrongPrimitiveType)
	}
	return uint16(p.bits), nil
}

// U32 returns the wrapped value as a uint32, or ErrWrongPrimitiveType if
// the Primitive was not stored as a u32.
func (p Primitive) U32() (uint32, error) {
	if p.kind != kindU32 {
		return 0, fmt.Errorf("read u32: %w", ErrWrongPrimitiveType)
	}
	return uint32(p.bits), nil
}

// U64 returns the wrapped value as a uint64, or ErrWrongPrimitiveType if
// the Primitive was not stored as a u64.
func (p Primitive) U64() (uint64, error) {
	if p.kind != kindU64 {
		return 0, fmt.Errorf("read u64: %w", ErrWrongPrimitiveType)
	}
	return p.bits, nil
}

// Control is a mapping from ControlKey to a tagged primitive value,
// threaded alongside a Message through a protocol stack to carry
// demultiplexing hints (addresses, ports, the arrival network index)
// without embedding them in the message body.
type Control struct {
	values map[ControlKey]Primitive
}

// NewControl returns an empty Control.
func NewControl() Control {
	return Control{values: make(map[ControlKey]Primitive)}
}

// Clone returns a Control with an independent copy of the underlying map,
// so that mutations to the clone are never observed by the original.
func (c Control) Clone() Control {
	values := make(map[ControlKey]Primitive, len(c.values))
	for k, v := range c.values {
		values[k] = v
	}
	return Control{values: values}
}

// Insert sets key to value, overwriting any existing entry.
func (c Control) Insert(key ControlKey, value Primitive) {
	c.values[key] = value
}

// Get returns the value stored under key, if any.
func (c Control) Get(key ControlKey) (Primitive, bool) {
	v, ok := c.values[key]
	return v, ok
}

// GetU8 fetches key and unwraps it as a u8.
func (c Control) GetU8(key ControlKey) (uint8, error) {
	v, ok := c.values[key]
	if !ok {
		return 0, fmt.Errorf("get %s: %w", key, ErrControlKeyMissing)
	}
	return v.U8()
}

// GetU16 fetches key and unwraps it as a u16.
func (c Control) GetU16(key ControlKey) (uint16, error) {
	v, ok := c.values[key]
	if !ok {
		return 0, fmt.Errorf("get %s: %w", key, ErrControlKeyMissing)
	}
	return v.U16()
}

// GetU32 fetches key and unwraps it as a u32.
func (c Control) GetU32(key ControlKey) (uint32, error) {
	v, ok := c.values[key]
	if !ok {
		return 0, fmt.Errorf("get %s: %w", key, ErrControlKeyMissing)
	}
	return v.U32()
}
