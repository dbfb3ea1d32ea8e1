package core_test

import (
	"errors"
	"testing"

	"github.com/dantte-lp/elvis/internal/core"
)

func TestProtocolIdEncodeDecodeRoundTrip(t *testing.T) {
	tests := []core.ProtocolId{
		core.NewProtocolId(core.LayerLink, 0),
		core.NewProtocolId(core.LayerNetwork, 4),
		core.NewProtocolId(core.LayerTransport, 17),
		core.NewProtocolId(core.LayerUser, 255),
	}
	for _, pid := range tests {
		decoded, err := core.DecodeProtocolId(pid.Encode())
		if err != nil {
			t.Fatalf("DecodeProtocolId(%v): %v", pid, err)
		}
		if decoded != pid {
			t.Fatalf("round trip: got %v, want %v", decoded, pid)
		}
	}
}

func TestProtocolIdEncodeBytesMatchesEncode(t *testing.T) {
	pid := core.NewProtocolId(core.LayerTransport, 17)
	b := pid.EncodeBytes()
	got := uint16(b[0])<<8 | uint16(b[1])
	if got != pid.Encode() {
		t.Fatalf("EncodeBytes = %v, Encode = 0x%04x, mismatch", b, pid.Encode())
	}
}

func TestDecodeProtocolIdRejectsUnknownLayer(t *testing.T) {
	invalid := uint16(0xFF00)
	if _, err := core.DecodeProtocolId(invalid); !errors.Is(err, core.ErrInvalidNetworkLayer) {
		t.Fatalf("DecodeProtocolId(0x%04x): err = %v, want ErrInvalidNetworkLayer", invalid, err)
	}
}

func TestProtocolIdString(t *testing.T) {
	pid := core.NewProtocolId(core.LayerTransport, 17)
	if got, want := pid.String(), "Transport/17"; got != want {
		t.Fatalf("String() = %q, want %q", got, want)
	}
}
