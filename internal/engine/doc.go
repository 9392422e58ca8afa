// Package engine runs inference requests against a pluggable model on a
// single dedicated worker goroutine. Callers submit work with Schedule and
// collect results with TryPollResponse; neither call blocks. Each completed
// response carries lightweight request metadata and timing, never the
// original payload.
package engine
