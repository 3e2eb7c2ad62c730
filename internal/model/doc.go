// Package model defines the core data types shared across the timberwatch
// pipeline: radio frames, reassembled artifacts, classification results,
// offline queue items, and the ordered threat tier scale.
//
// Types in this package are plain data records. They carry no behavior
// beyond derivation helpers (threat tier mapping) and string conversion,
// so they can be freely serialized to JSON for the event sink and stored
// in the database without adapters.
package model
