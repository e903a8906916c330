package acquire

import "errors"

var (
	// ErrInconsistentReferences means the provider returned no references, or
	// pages that could not be reconciled with the declared total.
	ErrInconsistentReferences = errors.New("inconsistent reference response")

	// ErrUnexpected is returned by Acquire, after the whole batch has been
	// processed, when a reference fetch failed for a reason other than a
	// missing identifier or an inconsistent response.
	ErrUnexpected = errors.New("unexpected provider error")

	// ErrAccounting means the parallel workers did not report one result per
	// identifier. The run is unusable.
	ErrAccounting = errors.New("parallel acquisition accounting mismatch")

	// ErrNoMetadata means a FULL response carried no publication record.
	ErrNoMetadata = errors.New("provider returned no metadata")
)
