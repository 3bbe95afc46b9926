// Package server implements the optional status HTTP API of a sender or receiver:
// health, live statistics, effective configuration and Prometheus metrics.
package server
