// Package fault classifies failures into the small taxonomy that drives
// retry decisions and caller-visible reporting.
//
// Classification happens once, at the boundary where a raw error enters the
// system (the upstream client, the retry loop). Every later layer works with
// *Error values and never re-derives the kind:
//
//	err := fault.Classify(rawErr)
//	if err.Kind.Retryable() {
//	    // back off and try again
//	}
//
// A *Error matches the per-kind sentinels with errors.Is:
//
//	if errors.Is(err, fault.ErrNotFound) {
//	    // surface "no such data"
//	}
//
// Tracker keeps a bounded history of classified failures for the stats
// endpoint.
package fault
