package audio

// Chunker re-slices an arbitrary byte stream into fixed-length frames.
// Partial trailing data is buffered across Push calls, never dropped, so frame
// boundaries are independent of the read sizes the capture subprocess happens
// to deliver. Create one per recording; not safe for concurrent use.
type Chunker struct {
	frameBytes int
	buf        []byte
}

// NewChunker returns a Chunker producing frames of frameBytes bytes.
// If frameBytes <= 0 it defaults to [FrameBytes].
func NewChunker(frameBytes int) *Chunker {
	if frameBytes <= 0 {
		frameBytes = FrameBytes
	}
	return &Chunker{frameBytes: frameBytes}
}

// Push appends data to the internal buffer and returns all complete frames
// now available, in order. Each returned frame is exactly frameBytes long and
// owned by the caller.
func (c *Chunker) Push(data []byte) [][]byte {
	c.buf = append(c.buf, data...)
	var frames [][]byte
	for len(c.buf) >= c.frameBytes {
		frame := make([]byte, c.frameBytes)
		copy(frame, c.buf[:c.frameBytes])
		frames = append(frames, frame)
		c.buf = c.buf[c.frameBytes:]
	}
	return frames
}

// Pending returns the number of buffered bytes that have not yet formed a
// complete frame.
func (c *Chunker) Pending() int {
	return len(c.buf)
}
