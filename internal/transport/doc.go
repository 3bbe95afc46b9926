// Package transport provides the unreliable, connectionless datagram channel between sender
// and receiver. Sends are fire-and-forget with a short deadline; receives block until one
// datagram arrives. Nothing is acknowledged or retried.
package transport
