// Package stream runs the two ends of an audio link. A Sender captures frames and sends
// them as datagrams; a Receiver buffers incoming datagrams and plays them out. Each
// session owns its audio endpoint and socket from construction until it ends.
package stream
