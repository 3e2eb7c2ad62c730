package classify

import "errors"

var (
	// ErrBackendUnavailable means the backend could not be reached or
	// did not answer in time.
	ErrBackendUnavailable = errors.New("classification backend unavailable")

	// ErrMalformedResponse means the backend answered with something
	// that does not parse as a classification.
	ErrMalformedResponse = errors.New("malformed backend response")

	// ErrUnknownMode means the requested routing mode is not one of
	// the supported values.
	ErrUnknownMode = errors.New("unknown classification mode")
)

// Error strings carried in failed ClassificationResults. Downstream
// consumers match on these, so they are part of the result contract.
const (
	// ErrorNetworkUnavailable marks a request that demanded
	// authoritative truth while no network was available.
	ErrorNetworkUnavailable = "network-unavailable"

	// ErrorRateLimited marks a request refused by the rate window
	// before any backend was called.
	ErrorRateLimited = "rate-limited"

	// ErrorAllBackendsFailed marks a request whose whole cascade
	// failed.
	ErrorAllBackendsFailed = "all-backends-failed"
)
