package core

// Message is an ordered, immutable sequence of bytes composed of zero or
// more prepended headers plus a body. It is represented as a persistent
// stack of byte-slice chunks rather than a single contiguous buffer, so
// that WithHeader and Slice never copy body bytes: every chunk is a view
// into storage the caller already owns, and cloning a Message is just
// copying a small slice of slice headers.
//
// No operation on a Message observably mutates any Message derived from
// it -- WithHeader and Slice always build a new chunk list, never mutate
// an existing one in place.
type Message struct {
	chunks [][]byte
}

// NewMessage builds a Message whose sole chunk is body. The caller must
// not mutate body afterward; Message assumes ownership of the view.
func NewMessage(body []byte) Message {
	if len(body) == 0 {
		return Message{}
	}
	return Message{chunks: [][]byte{body}}
}

// NewMessageString builds a Message from the UTF-8 bytes of s. Used
// throughout tests and the demo applications to construct message bodies
// from literal text.
func NewMessageString(s string) Message {
	return NewMessage([]byte(s))
}

// WithHeader returns a new Message logically equal to header++m, sharing
// every existing chunk by reference. header is prepended as a new chunk
// without copying.
func (m Message) WithHeader(header []byte) Message {
	if len(header) == 0 {
		return m
	}
	chunks := make([][]byte, 0, len(m.chunks)+1)
	chunks = append(chunks, header)
	chunks = append(chunks, m.chunks...)
	return Message{chunks: chunks}
}

// Slice returns a new Message with the first start bytes dropped. Chunks
// entirely within the dropped range are discarded outright; a chunk that
// straddles the cut point is re-sliced (still zero-copy -- Go slice
// expressions never copy the underlying array). Slicing past the end of
// the Message yields an empty Message.
func (m Message) Slice(start int) Message {
	if start <= 0 {
		return m
	}
	remaining := start
	for i, chunk := range m.chunks {
		if remaining < len(chunk) {
			chunks := make([][]byte, 0, len(m.chunks)-i)
			chunks = append(chunks, chunk[remaining:])
			chunks = append(chunks, m.chunks[i+1:]...)
			return Message{chunks: chunks}
		}
		remaining -= len(chunk)
	}
	return Message{}
}

// Len returns the total number of bytes across all chunks.
func (m Message) Len() int {
	n := 0
	for _, chunk := range m.chunks {
		n += len(chunk)
	}
	return n
}

// Bytes flattens the Message into a single contiguous slice. This copies
// every chunk; callers on a hot path should prefer iterating chunks
// directly or slicing in place rather than calling Bytes repeatedly.
func (m Message) Bytes() []byte {
	out := make([]byte, 0, m.Len())
	for _, chunk := range m.chunks {
		out = append(out, chunk...)
	}
	return out
}

// Take copies the first n bytes of the Message into a freshly allocated
// slice, the way a protocol reads a fixed-size header off the front of an
// inbound Message before calling Slice to drop it. Returns nil and
// ok=false if the Message is shorter than n.
func (m Message) Take(n int) (header []byte, ok bool) {
	if m.Len() < n {
		return nil, false
	}
	header = make([]byte, 0, n)
	for _, chunk := range m.chunks {
		if len(header) >= n {
			break
		}
		need := n - len(header)
		if need > len(chunk) {
			need = len(chunk)
		}
		header = append(header, chunk[:need]...)
	}
	return header, true
}
