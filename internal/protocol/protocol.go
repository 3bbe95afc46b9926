package protocol

import (
	"encoding/binary"
	"errors"
	"fmt"

	"github.com/shehabattia96/carry-sound/internal/audio"
)

// BytesPerSample is the wire width of one sample
const BytesPerSample = 2

// ErrInvalidDatagram is returned for any datagram whose size is not exactly one frame
var ErrInvalidDatagram = errors.New("invalid datagram")

// Counters receives the byte and discard accounting of both codec halves
type Counters interface {
	AddBytesReceived(n int)
	RecordDiscard()
}

// Packetizer serializes frames of a fixed size into datagrams
type Packetizer struct {
	frameSamples int
}

// NewPacketizer creates a packetizer for frames of frameSamples interleaved samples
func NewPacketizer(frameSamples int) *Packetizer {
	return &Packetizer{frameSamples: frameSamples}
}

// DatagramSize returns the exact payload size of every datagram
func (p *Packetizer) DatagramSize() int {
	return p.frameSamples * BytesPerSample
}

// Pack serializes a frame into a newly allocated datagram
func (p *Packetizer) Pack(frame audio.Frame) ([]byte, error) {
	return p.PackInto(make([]byte, p.DatagramSize()), frame)
}

// PackInto serializes a frame into dst, which must hold at least DatagramSize bytes,
// and returns the datagram slice of dst. The capture loop reuses one dst per session.
func (p *Packetizer) PackInto(dst []byte, frame audio.Frame) ([]byte, error) {
	if len(frame) != p.frameSamples {
		return nil, fmt.Errorf("frame has %d samples, expected %d", len(frame), p.frameSamples)
	}

	size := p.DatagramSize()
	if len(dst) < size {
		return nil, fmt.Errorf("datagram buffer too short: need %d bytes, got %d", size, len(dst))
	}

	datagram := dst[:size]
	for i, sample := range frame {
		binary.LittleEndian.PutUint16(datagram[i*BytesPerSample:], uint16(sample))
	}
	return datagram, nil
}

// Depacketizer turns datagrams back into frames, discarding anything mis-sized
type Depacketizer struct {
	frameSamples int
	counters     Counters
}

// NewDepacketizer creates a depacketizer for frames of frameSamples interleaved samples.
// counters may be nil.
func NewDepacketizer(frameSamples int, counters Counters) *Depacketizer {
	return &Depacketizer{frameSamples: frameSamples, counters: counters}
}

// DatagramSize returns the only datagram size Unpack accepts
func (d *Depacketizer) DatagramSize() int {
	return d.frameSamples * BytesPerSample
}

// Unpack decodes a datagram into a new frame. A datagram of any other length than
// DatagramSize yields ErrInvalidDatagram and only the discard counter moves.
func (d *Depacketizer) Unpack(datagram []byte) (audio.Frame, error) {
	if len(datagram) != d.DatagramSize() {
		if d.counters != nil {
			d.counters.RecordDiscard()
		}
		return nil, fmt.Errorf("%w: expected %d bytes, got %d", ErrInvalidDatagram, d.DatagramSize(), len(datagram))
	}

	frame := make(audio.Frame, d.frameSamples)
	for i := range frame {
		frame[i] = int16(binary.LittleEndian.Uint16(datagram[i*BytesPerSample:]))
	}

	if d.counters != nil {
		d.counters.AddBytesReceived(len(datagram))
	}
	return frame, nil
}
