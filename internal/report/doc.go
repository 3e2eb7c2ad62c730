// Package report renders operator-facing summaries of hub activity.
//
// The daily report collects the last day of detections, the offline
// queue state, node health, and recent sync passes into one markdown
// document suitable for sharing or archiving.
//
// Design decision: Gathering and rendering are separate steps. Gather
// reads the store once into a plain Daily value; writers only format,
// so new output formats never touch the database layer.
package report
