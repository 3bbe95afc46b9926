package audio

import (
	"bytes"
	"encoding/binary"
	"errors"
	"fmt"
	"io"
	"os"
	"time"
)

const wavHeaderSize = 44

// WAVHeader represents the canonical 44-byte header of a PCM WAV file
type WAVHeader struct {
	ChunkID       [4]byte // "RIFF"
	ChunkSize     uint32  // File size - 8 bytes
	Format        [4]byte // "WAVE"
	Subchunk1ID   [4]byte // "fmt "
	Subchunk1Size uint32  // 16 for PCM
	AudioFormat   uint16  // 1 for PCM
	NumChannels   uint16  // Number of channels
	SampleRate    uint32  // Sample rate
	ByteRate      uint32  // SampleRate * NumChannels * BitsPerSample / 8
	BlockAlign    uint16  // NumChannels * BitsPerSample / 8
	BitsPerSample uint16  // Bits per sample
	Subchunk2ID   [4]byte // "data"
	Subchunk2Size uint32  // Number of bytes in the data
}

// WAVFormat describes the stream stored in a WAV file
type WAVFormat struct {
	SampleRate int `json:"sample_rate"`
	Channels   int `json:"channels"`
}

func newWAVHeader(sampleRate, channels int, dataSize uint32) WAVHeader {
	bitsPerSample := uint16(16)
	return WAVHeader{
		ChunkID:       [4]byte{'R', 'I', 'F', 'F'},
		ChunkSize:     36 + dataSize,
		Format:        [4]byte{'W', 'A', 'V', 'E'},
		Subchunk1ID:   [4]byte{'f', 'm', 't', ' '},
		Subchunk1Size: 16,
		AudioFormat:   1, // PCM
		NumChannels:   uint16(channels),
		SampleRate:    uint32(sampleRate),
		ByteRate:      uint32(sampleRate) * uint32(channels) * uint32(bitsPerSample) / 8,
		BlockAlign:    uint16(channels) * bitsPerSample / 8,
		BitsPerSample: bitsPerSample,
		Subchunk2ID:   [4]byte{'d', 'a', 't', 'a'},
		Subchunk2Size: dataSize,
	}
}

// EncodeWAV encodes interleaved PCM-16 samples into WAV format
func EncodeWAV(samples []int16, sampleRate, channels int) ([]byte, error) {
	if len(samples) == 0 {
		return nil, fmt.Errorf("cannot encode empty audio samples")
	}

	if sampleRate <= 0 {
		return nil, fmt.Errorf("sample rate must be positive, got %d", sampleRate)
	}

	if channels < 1 {
		return nil, fmt.Errorf("channels must be positive, got %d", channels)
	}

	header := newWAVHeader(sampleRate, channels, uint32(len(samples)*2))
	buf := bytes.NewBuffer(make([]byte, 0, wavHeaderSize+len(samples)*2))

	if err := binary.Write(buf, binary.LittleEndian, header); err != nil {
		return nil, fmt.Errorf("failed to write WAV header: %w", err)
	}

	if err := binary.Write(buf, binary.LittleEndian, samples); err != nil {
		return nil, fmt.Errorf("failed to write audio data: %w", err)
	}

	return buf.Bytes(), nil
}

// DecodeWAV decodes a 16-bit PCM WAV file into interleaved samples.
// Chunks other than "fmt " and "data" are skipped.
func DecodeWAV(data []byte) ([]int16, WAVFormat, error) {
	var format WAVFormat

	if len(data) < 12 {
		return nil, format, fmt.Errorf("WAV data too short: need at least 12 bytes, got %d", len(data))
	}

	if string(data[0:4]) != "RIFF" {
		return nil, format, fmt.Errorf("invalid WAV file: missing RIFF header")
	}

	if string(data[8:12]) != "WAVE" {
		return nil, format, fmt.Errorf("invalid WAV file: missing WAVE format")
	}

	var (
		haveFmt bool
		pcm     []byte
	)
	for offset := 12; offset+8 <= len(data); {
		id := string(data[offset : offset+4])
		size := int(binary.LittleEndian.Uint32(data[offset+4 : offset+8]))
		body := offset + 8
		if body+size > len(data) {
			// Truncated recordings are common; take what is there
			size = len(data) - body
		}

		switch id {
		case "fmt ":
			if size < 16 {
				return nil, format, fmt.Errorf("invalid WAV file: fmt chunk too short (%d bytes)", size)
			}
			audioFormat := binary.LittleEndian.Uint16(data[body : body+2])
			bitsPerSample := binary.LittleEndian.Uint16(data[body+14 : body+16])
			if audioFormat != 1 {
				return nil, format, fmt.Errorf("unsupported audio format: %d (only PCM is supported)", audioFormat)
			}
			if bitsPerSample != 16 {
				return nil, format, fmt.Errorf("unsupported bit depth: %d (only 16-bit is supported)", bitsPerSample)
			}
			format.Channels = int(binary.LittleEndian.Uint16(data[body+2 : body+4]))
			format.SampleRate = int(binary.LittleEndian.Uint32(data[body+4 : body+8]))
			haveFmt = true
		case "data":
			pcm = data[body : body+size]
		}

		// Chunks are word aligned
		offset = body + size + size%2
	}

	if !haveFmt {
		return nil, format, fmt.Errorf("invalid WAV file: missing fmt chunk")
	}

	if pcm == nil {
		return nil, format, fmt.Errorf("invalid WAV file: missing data chunk")
	}

	samples := make([]int16, len(pcm)/2)
	for i := range samples {
		samples[i] = int16(binary.LittleEndian.Uint16(pcm[i*2:]))
	}

	return samples, format, nil
}

// pacer releases one tick per interval so file endpoints run at the speed of a device
type pacer struct {
	interval time.Duration
	next     time.Time
}

func (p *pacer) wait() {
	if p.interval <= 0 {
		return
	}
	now := time.Now()
	if p.next.IsZero() || now.Sub(p.next) > p.interval {
		// First tick, or too far behind to catch up without a burst
		p.next = now
	}
	if d := p.next.Sub(now); d > 0 {
		time.Sleep(d)
	}
	p.next = p.next.Add(p.interval)
}

// WAVSource plays a WAV file as if it were a capture device
type WAVSource struct {
	path    string
	samples []int16
	offset  int
	loop    bool
	chunker *Chunker
	pacer   pacer
}

// NewWAVSource loads a WAV file whose format must match the stream exactly.
// With a non-zero interval Capture returns one frame per interval; with loop the file
// restarts at its end instead of returning io.EOF.
func NewWAVSource(path string, sampleRate, channels, chunkSize int, interval time.Duration, loop bool) (*WAVSource, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, &DeviceError{Op: "open", Device: path, Err: err}
	}

	samples, format, err := DecodeWAV(data)
	if err != nil {
		return nil, &DeviceError{Op: "open", Device: path, Err: err}
	}

	if format.SampleRate != sampleRate || format.Channels != channels {
		return nil, &DeviceError{Op: "open", Device: path, Err: fmt.Errorf(
			"file is %d Hz / %d ch, stream is configured for %d Hz / %d ch",
			format.SampleRate, format.Channels, sampleRate, channels)}
	}

	if loop && len(samples) == 0 {
		return nil, &DeviceError{Op: "open", Device: path, Err: errors.New("cannot loop an empty file")}
	}

	return &WAVSource{
		path:    path,
		samples: samples,
		loop:    loop,
		chunker: NewChunker(chunkSize * channels),
		pacer:   pacer{interval: interval},
	}, nil
}

// Capture returns the next frame of the file, padding the last one with silence.
// It returns io.EOF once the file is exhausted and looping is off.
func (s *WAVSource) Capture() (Frame, error) {
	frame, ok := s.chunker.Next()
	for !ok {
		if s.offset >= len(s.samples) {
			if !s.loop {
				if frame, ok = s.chunker.Flush(); !ok {
					return nil, io.EOF
				}
				break
			}
			s.offset = 0
		}
		end := min(s.offset+s.chunker.frameSamples, len(s.samples))
		s.chunker.Write(s.samples[s.offset:end])
		s.offset = end
		frame, ok = s.chunker.Next()
	}

	s.pacer.wait()
	return frame, nil
}

// GetStats returns the chunking statistics of the frames read so far
func (s *WAVSource) GetStats() ChunkerStats {
	return s.chunker.GetStats()
}

// Close releases the file contents
func (s *WAVSource) Close() error {
	s.samples = nil
	return nil
}

// WAVSink records played frames into a WAV file. The header sizes are patched on Close.
type WAVSink struct {
	path         string
	file         *os.File
	sampleRate   int
	channels     int
	frameSamples int
	dataSize     uint32
	scratch      []byte
	pacer        pacer
}

// NewWAVSink creates (or truncates) a WAV file for a stream of the given format.
// With a non-zero interval Play accepts one frame per interval like a playback device.
func NewWAVSink(path string, sampleRate, channels, chunkSize int, interval time.Duration) (*WAVSink, error) {
	file, err := os.Create(path)
	if err != nil {
		return nil, &DeviceError{Op: "open", Device: path, Err: err}
	}

	header := newWAVHeader(sampleRate, channels, 0)
	if err := binary.Write(file, binary.LittleEndian, header); err != nil {
		file.Close()
		return nil, &DeviceError{Op: "open", Device: path, Err: fmt.Errorf("failed to write WAV header: %w", err)}
	}

	return &WAVSink{
		path:         path,
		file:         file,
		sampleRate:   sampleRate,
		channels:     channels,
		frameSamples: chunkSize * channels,
		scratch:      make([]byte, chunkSize*channels*2),
		pacer:        pacer{interval: interval},
	}, nil
}

// Play appends one frame to the file
func (s *WAVSink) Play(frame Frame) error {
	if len(frame) != s.frameSamples {
		return fmt.Errorf("frame has %d samples, sink expects %d", len(frame), s.frameSamples)
	}

	s.pacer.wait()

	for i, sample := range frame {
		binary.LittleEndian.PutUint16(s.scratch[i*2:], uint16(sample))
	}
	if _, err := s.file.Write(s.scratch); err != nil {
		return &DeviceError{Op: "play", Device: s.path, Err: err}
	}
	s.dataSize += uint32(len(s.scratch))
	return nil
}

// Close finalizes the header and closes the file
func (s *WAVSink) Close() error {
	header := newWAVHeader(s.sampleRate, s.channels, s.dataSize)
	buf := bytes.NewBuffer(make([]byte, 0, wavHeaderSize))
	if err := binary.Write(buf, binary.LittleEndian, header); err != nil {
		s.file.Close()
		return fmt.Errorf("failed to encode WAV header: %w", err)
	}

	if _, err := s.file.WriteAt(buf.Bytes(), 0); err != nil {
		s.file.Close()
		return &DeviceError{Op: "close", Device: s.path, Err: err}
	}

	if err := s.file.Close(); err != nil {
		return &DeviceError{Op: "close", Device: s.path, Err: err}
	}
	return nil
}
