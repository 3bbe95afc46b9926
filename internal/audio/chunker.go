package audio

// Chunker cuts an arbitrary-length sample stream into frames of a fixed size.
// Sources that do not naturally produce whole frames (files, resizing device reads)
// feed it and take frames out as they complete.
type Chunker struct {
	frameSamples int
	pending      []int16

	framesOut uint64
	paddedOut uint64
	samplesIn uint64
}

// ChunkerStats represents chunker statistics for monitoring
type ChunkerStats struct {
	FrameSamples int    `json:"frame_samples"`
	Pending      int    `json:"pending_samples"`
	SamplesIn    uint64 `json:"samples_in"`
	FramesOut    uint64 `json:"frames_out"`
	PaddedFrames uint64 `json:"padded_frames"`
}

// NewChunker creates a chunker emitting frames of frameSamples interleaved samples
func NewChunker(frameSamples int) *Chunker {
	return &Chunker{
		frameSamples: frameSamples,
		pending:      make([]int16, 0, frameSamples*2),
	}
}

// Write appends samples to the pending stream
func (c *Chunker) Write(samples []int16) {
	c.pending = append(c.pending, samples...)
	c.samplesIn += uint64(len(samples))
}

// Next returns the next complete frame, if one is pending
func (c *Chunker) Next() (Frame, bool) {
	if len(c.pending) < c.frameSamples {
		return nil, false
	}

	frame := make(Frame, c.frameSamples)
	copy(frame, c.pending)
	c.consume(c.frameSamples)
	c.framesOut++
	return frame, true
}

// Flush returns the remaining partial frame padded with silence.
// It reports false when nothing is pending.
func (c *Chunker) Flush() (Frame, bool) {
	if len(c.pending) == 0 {
		return nil, false
	}
	if len(c.pending) >= c.frameSamples {
		return c.Next()
	}

	frame := Silence(c.frameSamples)
	copy(frame, c.pending)
	c.pending = c.pending[:0]
	c.framesOut++
	c.paddedOut++
	return frame, true
}

// GetStats returns current chunker statistics
func (c *Chunker) GetStats() ChunkerStats {
	return ChunkerStats{
		FrameSamples: c.frameSamples,
		Pending:      len(c.pending),
		SamplesIn:    c.samplesIn,
		FramesOut:    c.framesOut,
		PaddedFrames: c.paddedOut,
	}
}

// consume drops n samples from the front of the pending stream, reusing its storage
func (c *Chunker) consume(n int) {
	remaining := copy(c.pending, c.pending[n:])
	c.pending = c.pending[:remaining]
}
