// Package main provides the entry point for the timberwatch CLI.
//
// Timberwatch is an acoustic threat detection hub for remote forest
// deployments. It ingests sensor telemetry and spectrogram evidence
// over a lossy radio link, classifies completed captures through a
// cascade of cloud and on-device backends, and queues detections for
// authoritative confirmation when the uplink is down.
//
// Usage:
//
//	timberwatch run --simulate
//	timberwatch queue
//	timberwatch report
//
// See --help for all available options.
package main

// main is the entry point for timberwatch.
func main() {
	Execute()
}
