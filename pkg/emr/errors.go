package emr

import "errors"

// Error taxonomy for controller operations. Stale-handle conditions are
// recovered internally and never reach callers; only ErrConnection from
// an initial Start aborts a call chain.
var (
	// ErrConnection means the automation surface could not be created
	// or has been lost entirely.
	ErrConnection = errors.New("automation surface unavailable")

	// ErrLogin means the credential fields were not found within the
	// wait budget. Non-fatal; a later EnsureHome retries via restart.
	ErrLogin = errors.New("login form not found")

	// ErrContextLost means a context handle went stale. The registry
	// converts this to "not open" before it can propagate.
	ErrContextLost = errors.New("context handle lost")

	// ErrNotFound means a lookup matched nothing.
	ErrNotFound = errors.New("not found")

	// ErrAmbiguousResult means a patient search matched more than one
	// record; the caller must narrow the query.
	ErrAmbiguousResult = errors.New("ambiguous search result")

	// ErrNoPatient means the operation needs a current patient and
	// none is selected.
	ErrNoPatient = errors.New("no patient selected")
)
