// Package device opens sound cards through PortAudio as audio.Source and audio.Sink
// implementations and lists the devices available on the host.
package device
