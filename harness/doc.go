// Package harness validates tool generation offline: it re-issues a
// generation call until the reply passes a Validator, giving up with a
// MAX_RETRIES_EXCEEDED error after a bounded number of attempts, and tracks
// the success rate across runs.
package harness
