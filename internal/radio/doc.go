// Package radio is the boundary to the long-range radio driver. The
// driver's register-level bring-up lives outside this repository; what
// crosses the boundary is a stream of raw frames with signal strength
// readings.
//
// The package also ships a simulated source that fabricates realistic
// node traffic, including multi-frame spectrogram transfers with
// configurable loss, so the whole pipeline can run on a bench without
// hardware.
package radio
