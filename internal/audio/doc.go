// Package audio handles frames of interleaved PCM samples and the stages that hold them.
// It implements the receive-side jitter buffer, the fixed-size chunker, the Source and Sink
// contracts devices must satisfy, and WAV file sources and sinks for device-free streaming.
package audio
