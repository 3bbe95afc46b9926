// Package config provides configuration loading and validation for the audio sender and receiver.
// It handles the optional YAML configuration file, the documented stream defaults and the
// derived frame sizes and latencies every other package relies on.
package config
