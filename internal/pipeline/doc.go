// Package pipeline runs the hub: three free-running workers under one
// errgroup. The intake worker blocks on the frame source and pushes
// into a bounded channel; the ingest worker drains that channel on a
// short tick, feeds frames through reassembly, and classifies each
// completed artifact synchronously; the sync worker drains the offline
// queue on its own schedule.
//
// The ingest worker is the only goroutine touching session state, so
// reassembly needs no locks. Counters live as fields on the Hub, never
// as package globals, so two hubs in one process cannot see each
// other's numbers.
package pipeline
