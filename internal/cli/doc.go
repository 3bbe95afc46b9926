// Package cli builds the sender and receiver commands: flag parsing on top of the YAML
// configuration, logger setup, device or WAV endpoint selection and session lifecycle.
package cli
