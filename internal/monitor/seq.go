package monitor

// seqCounter is a per-connection outbound sequence counter. It starts at 0
// and is incremented before every send, so the first value handed out is 1.
// A fresh counter is created for every new connection — sequence numbers
// restart on reconnect.
type seqCounter struct {
	n int64
}

func (c *seqCounter) next() int64 {
	c.n++
	return c.n
}
