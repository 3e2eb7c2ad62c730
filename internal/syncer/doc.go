// Package syncer drains the offline detection queue. A background
// scheduler wakes on a fixed interval, probes connectivity, and when
// online pushes the oldest pending detections through the
// authoritative classification path, marking each synced or counting
// the failure against its retry ceiling.
package syncer
