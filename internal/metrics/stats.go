// Package metrics holds the per-session stream counters and their Prometheus exposition.
package metrics

import "sync/atomic"

// StreamStats are the running counters of one session. Every field only grows; reads
// are eventually consistent with concurrent increments.
type StreamStats struct {
	bytesSent          atomic.Uint64
	bytesReceived      atomic.Uint64
	framesSent         atomic.Uint64
	framesReceived     atomic.Uint64
	underruns          atomic.Uint64
	overflows          atomic.Uint64
	datagramsDiscarded atomic.Uint64
	sendErrors         atomic.Uint64
}

// Snapshot is a point-in-time copy of StreamStats
type Snapshot struct {
	BytesSent          uint64 `json:"bytes_sent"`
	BytesReceived      uint64 `json:"bytes_received"`
	FramesSent         uint64 `json:"frames_sent"`
	FramesReceived     uint64 `json:"frames_received"`
	Underruns          uint64 `json:"underruns"`
	Overflows          uint64 `json:"overflow_drops"`
	DatagramsDiscarded uint64 `json:"datagrams_discarded"`
	SendErrors         uint64 `json:"send_errors"`
}

// NewStreamStats creates zeroed counters
func NewStreamStats() *StreamStats {
	return &StreamStats{}
}

// AddBytesSent records one datagram handed to the network
func (s *StreamStats) AddBytesSent(n int) {
	s.bytesSent.Add(uint64(n))
	s.framesSent.Add(1)
}

// AddBytesReceived records one valid datagram
func (s *StreamStats) AddBytesReceived(n int) {
	s.bytesReceived.Add(uint64(n))
	s.framesReceived.Add(1)
}

// RecordUnderrun records playback finding the jitter buffer empty
func (s *StreamStats) RecordUnderrun() {
	s.underruns.Add(1)
}

// RecordOverflow records a frame lost to a full jitter buffer
func (s *StreamStats) RecordOverflow() {
	s.overflows.Add(1)
}

// RecordDiscard records a mis-sized datagram
func (s *StreamStats) RecordDiscard() {
	s.datagramsDiscarded.Add(1)
}

// RecordSendError records a transient send failure
func (s *StreamStats) RecordSendError() {
	s.sendErrors.Add(1)
}

// Snapshot reads every counter. Fields are read one by one, so the result may mix
// values from either side of a concurrent increment.
func (s *StreamStats) Snapshot() Snapshot {
	return Snapshot{
		BytesSent:          s.bytesSent.Load(),
		BytesReceived:      s.bytesReceived.Load(),
		FramesSent:         s.framesSent.Load(),
		FramesReceived:     s.framesReceived.Load(),
		Underruns:          s.underruns.Load(),
		Overflows:          s.overflows.Load(),
		DatagramsDiscarded: s.datagramsDiscarded.Load(),
		SendErrors:         s.sendErrors.Load(),
	}
}

// AverageFrameBytes returns the mean datagram size in each direction
func (s Snapshot) AverageFrameBytes() (sent, received uint64) {
	if s.FramesSent > 0 {
		sent = s.BytesSent / s.FramesSent
	}
	if s.FramesReceived > 0 {
		received = s.BytesReceived / s.FramesReceived
	}
	return sent, received
}
