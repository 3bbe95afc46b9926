package audio

import (
	"errors"
	"fmt"
)

// ErrDevice is matched by every *DeviceError
var ErrDevice = errors.New("audio device error")

// Frame is one fixed-size block of signed 16-bit samples interleaved by channel.
// A frame is owned by exactly one stage at a time; stages hand it on instead of sharing it.
type Frame []int16

// Silence returns a zero-filled frame of n interleaved samples
func Silence(n int) Frame {
	return make(Frame, n)
}

// Clone returns a copy of the frame that the caller owns
func (f Frame) Clone() Frame {
	c := make(Frame, len(f))
	copy(c, f)
	return c
}

// Equal reports whether both frames hold the same samples
func (f Frame) Equal(o Frame) bool {
	if len(f) != len(o) {
		return false
	}
	for i := range f {
		if f[i] != o[i] {
			return false
		}
	}
	return true
}

// IsSilent reports whether every sample is zero
func (f Frame) IsSilent() bool {
	for _, s := range f {
		if s != 0 {
			return false
		}
	}
	return true
}

// Source produces frames of exactly the configured size.
// Capture blocks until a whole frame is available.
type Source interface {
	Capture() (Frame, error)
	Close() error
}

// Sink consumes frames of exactly the configured size.
// Play may block until the device accepts the frame and must not retain it after returning.
type Sink interface {
	Play(Frame) error
	Close() error
}

// DeviceError reports a fatal failure of an audio endpoint: a missing device,
// an unsupported format or a revoked permission
type DeviceError struct {
	Op     string // open, start, capture, play, close
	Device string
	Err    error
}

func (e *DeviceError) Error() string {
	return fmt.Sprintf("audio device %q: %s: %v", e.Device, e.Op, e.Err)
}

func (e *DeviceError) Unwrap() error {
	return e.Err
}

// Is lets errors.Is(err, ErrDevice) match any DeviceError
func (e *DeviceError) Is(target error) bool {
	return target == ErrDevice
}
