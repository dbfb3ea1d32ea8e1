package core_test

import (
	"errors"
	"testing"

	"github.com/dantte-lp/elvis/internal/core"
)

func TestControlGetSet(t *testing.T) {
	c := core.NewControl()
	c.Insert(core.LocalPort, core.U16Primitive(53))

	v, err := c.GetU16(core.LocalPort)
	if err != nil {
		t.Fatalf("GetU16: %v", err)
	}
	if v != 53 {
		t.Fatalf("GetU16 = %d, want 53", v)
	}
}

func TestControlMissingKey(t *testing.T) {
	c := core.NewControl()
	if _, err := c.GetU32(core.RemoteAddress); !errors.Is(err, core.ErrControlKeyMissing) {
		t.Fatalf("GetU32 on missing key: err = %v, want ErrControlKeyMissing", err)
	}
}

func TestControlWrongWidth(t *testing.T) {
	c := core.NewControl()
	c.Insert(core.NetworkIndex, core.U8Primitive(1))

	if _, err := c.GetU32(core.NetworkIndex); !errors.Is(err, core.ErrWrongPrimitiveType) {
		t.Fatalf("GetU32 on u8 value: err = %v, want ErrWrongPrimitiveType", err)
	}
}

func TestControlCloneIsIndependent(t *testing.T) {
	original := core.NewControl()
	original.Insert(core.LocalAddress, core.U32Primitive(1))

	clone := original.Clone()
	clone.Insert(core.LocalAddress, core.U32Primitive(2))

	v, err := original.GetU32(core.LocalAddress)
	if err != nil {
		t.Fatalf("GetU32: %v", err)
	}
	if v != 1 {
		t.Fatalf("mutating a clone changed the original: original LocalAddress = %d, want 1", v)
	}
}
