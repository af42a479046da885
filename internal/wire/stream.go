package wire

// Accumulator buffers inbound bytes from a connection and peels off
// complete frames one at a time, exactly mirroring the decode contract:
// a short read never loses the partial frame it contains.
type Accumulator struct {
	buf []byte
}

// Feed appends newly read bytes to the accumulator.
func (a *Accumulator) Feed(p []byte) {
	a.buf = append(a.buf, p...)
}

// Next attempts to decode one frame from the front of the buffer. It
// returns ok == false (with no error) when the buffer holds only an
// incomplete prefix so far — the caller should read more and call Next
// again. A non-nil error means the stream is corrupt and must be closed.
func (a *Accumulator) Next() (msg *Message, ok bool, err error) {
	if len(a.buf) == 0 {
		return nil, false, nil
	}
	m, n, decErr := DecodeMessage(a.buf)
	if decErr != nil {
		if decErr == ErrNeedMoreInput {
			return nil, false, nil
		}
		return nil, false, decErr
	}
	a.buf = a.buf[n:]
	return m, true, nil
}

// Len reports the number of unconsumed, buffered bytes.
func (a *Accumulator) Len() int { return len(a.buf) }
