package core_test

import (
	"bytes"
	"testing"

	"github.com/dantte-lp/elvis/internal/core"
)

func TestMessageWithHeaderAndBytes(t *testing.T) {
	body := core.NewMessageString("payload")
	framed := body.WithHeader([]byte("HDR:"))

	if got, want := framed.Bytes(), []byte("HDR:payload"); !bytes.Equal(got, want) {
		t.Fatalf("Bytes() = %q, want %q", got, want)
	}
	if got, want := body.Bytes(), []byte("payload"); !bytes.Equal(got, want) {
		t.Fatalf("original message mutated: Bytes() = %q, want %q", got, want)
	}
}

func TestMessageSlice(t *testing.T) {
	m := core.NewMessageString("payload").WithHeader([]byte("HDR:"))

	tests := []struct {
		name  string
		start int
		want  string
	}{
		{"zero", 0, "HDR:payload"},
		{"within first chunk", 2, "R:payload"},
		{"exact boundary", 4, "payload"},
		{"into second chunk", 6, "yload"},
		{"past end", 100, ""},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := string(m.Slice(tt.start).Bytes()); got != tt.want {
				t.Fatalf("Slice(%d) = %q, want %q", tt.start, got, tt.want)
			}
		})
	}
}

func TestMessageSliceDoesNotShareHistory(t *testing.T) {
	original := core.NewMessageString("payload").WithHeader([]byte("HDR:"))
	sliced := original.Slice(4)

	if original.Len() != 11 {
		t.Fatalf("original.Len() = %d, want 11", original.Len())
	}
	if sliced.Len() != 7 {
		t.Fatalf("sliced.Len() = %d, want 7", sliced.Len())
	}
}

func TestMessageTake(t *testing.T) {
	m := core.NewMessageString("payload").WithHeader([]byte("HD"))

	header, ok := m.Take(2)
	if !ok {
		t.Fatalf("Take(2) ok = false, want true")
	}
	if string(header) != "HD" {
		t.Fatalf("Take(2) = %q, want %q", header, "HD")
	}

	// Take must not consume -- the message is unaffected.
	if m.Len() != 9 {
		t.Fatalf("m.Len() after Take = %d, want 9", m.Len())
	}

	if _, ok := m.Take(100); ok {
		t.Fatalf("Take(100) ok = true, want false for a 9-byte message")
	}
}

func TestEmptyMessage(t *testing.T) {
	var m core.Message
	if m.Len() != 0 {
		t.Fatalf("zero-value Message.Len() = %d, want 0", m.Len())
	}
	if len(m.Bytes()) != 0 {
		t.Fatalf("zero-value Message.Bytes() = %v, want empty", m.Bytes())
	}
}
