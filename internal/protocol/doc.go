// Package protocol implements the header-free datagram format.
// A datagram is exactly one frame of little-endian signed 16-bit samples, interleaved by
// channel, with no sequence number, timestamp or version field. Reordered or duplicated
// datagrams are therefore indistinguishable from normal delivery and play as they arrive.
package protocol
