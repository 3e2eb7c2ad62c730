// Package reassembly rebuilds spectrogram transfers from the radio's
// unordered, lossy packet stream.
//
// Each transfer is a START frame, up to 256 DATA frames, and an END
// frame, all sharing a (node hash, session id) key. The tracker
// collects chunks per session, drops duplicates, evicts sessions that
// outlive the session timeout counted from their START frame, and on
// END judges completeness: a
// transfer that delivered at least the completion threshold of its
// declared frames is decompressed into an artifact, anything below is
// dropped with a reason.
//
// The tracker is not safe for concurrent use. The pipeline feeds it
// from a single goroutine, which keeps session state free of locks.
package reassembly
