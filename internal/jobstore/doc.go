// Package jobstore owns the sqlite journal of solver jobs.
//
// Every submitted study becomes one row that moves pending -> running ->
// done or failed. Study and result payloads are stored as JSON blobs so the
// admin surface can return them without re-encoding.
package jobstore
