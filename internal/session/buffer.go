package session

// outgoingBuffer is an ordered byte buffer of application bytes awaiting
// acknowledgment (spec.md §3's outgoing_data). Bytes stay in the buffer
// until the peer's ACK covers them; Peek never consumes, mirroring the
// teacher's buffer_read_remaining_bytes(..., consume=FALSE) in
// original_source/util/dns/dnscat2/client/session.c.
type outgoingBuffer struct {
	data []byte
}

// Append adds bytes to the end of the buffer.
func (b *outgoingBuffer) Append(p []byte) {
	b.data = append(b.data, p...)
}

// Peek returns up to n bytes from the front of the buffer without
// removing them. A negative or zero n returns nil.
func (b *outgoingBuffer) Peek(n int) []byte {
	if n <= 0 || len(b.data) == 0 {
		return nil
	}
	if n > len(b.data) {
		n = len(b.data)
	}
	out := make([]byte, n)
	copy(out, b.data[:n])
	return out
}

// Consume removes n bytes from the front of the buffer. n must not
// exceed Len(); callers validate this before calling (spec.md §4.4's
// bad-ACK check happens before Consume is ever reached).
func (b *outgoingBuffer) Consume(n int) {
	if n <= 0 {
		return
	}
	if n >= len(b.data) {
		b.data = b.data[:0]
		return
	}
	b.data = append(b.data[:0], b.data[n:]...)
}

// Len reports the number of unacknowledged bytes currently buffered.
func (b *outgoingBuffer) Len() int {
	return len(b.data)
}

// Compact frees the buffer's backing storage once it's empty, mirroring
// handle_heartbeat's buffer_clear call in the teacher source.
func (b *outgoingBuffer) Compact() {
	if len(b.data) == 0 {
		b.data = nil
	}
}
