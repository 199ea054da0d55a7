package ipc

// StdinRelay collects the raw stdin tail that follows a request envelope.
// A relay is reused for every request on a connection.
type StdinRelay struct {
	want   int
	buf    []byte
	active bool
}

// BeginExpecting resets the relay to collect exactly n bytes. It reports
// whether the tail is already complete, which is the case when n is zero.
func (r *StdinRelay) BeginExpecting(n int) bool {
	if n < 0 {
		n = 0
	}
	r.want = n
	r.buf = make([]byte, 0, min(n, 64<<10))
	r.active = true
	return n == 0
}

// Append adds up to the declared remainder from p. Bytes beyond the
// remainder are returned untouched.
func (r *StdinRelay) Append(p []byte) (rest []byte, complete bool) {
	if !r.active {
		return p, false
	}
	need := r.want - len(r.buf)
	if need > len(p) {
		need = len(p)
	}
	r.buf = append(r.buf, p[:need]...)
	return p[need:], len(r.buf) == r.want
}

// Take hands out the collected bytes and resets the relay so nothing leaks
// into the next request. A second call returns nil.
func (r *StdinRelay) Take() []byte {
	out := r.buf
	r.want = 0
	r.buf = nil
	r.active = false
	return out
}

// Active reports whether the relay is collecting a tail.
func (r *StdinRelay) Active() bool {
	return r.active
}

// Received returns how many tail bytes have been collected so far.
func (r *StdinRelay) Received() int {
	return len(r.buf)
}

// Remaining returns how many tail bytes are still expected.
func (r *StdinRelay) Remaining() int {
	if !r.active {
		return 0
	}
	return r.want - len(r.buf)
}
