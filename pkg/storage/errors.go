package storage

import "errors"

var (
	// ErrIO wraps any append/read/rewrite failure. Callers treat a
	// failed append as "this sample was not persisted" and retry at
	// the next poll cycle, never in-line.
	ErrIO = errors.New("storage io failure")

	// ErrUnsupportedInterval rejects rollup intervals other than the
	// two resolutions kept on disk.
	ErrUnsupportedInterval = errors.New("unsupported rollup interval")

	// ErrUnsupportedFormat rejects export formats other than csv/json.
	ErrUnsupportedFormat = errors.New("unsupported export format")
)
