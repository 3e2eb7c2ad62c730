// Package database provides SQLite-based persistence for the hub: the
// offline detection queue, classified detections, node telemetry, and
// the connectivity and sync audit logs.
//
// All state shares one database file. The queue tables are the
// durability contract of the system: a detection that reached the
// queue survives process restarts and is eventually either synced or
// terminally failed, never silently lost.
package database
