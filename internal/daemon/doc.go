// Package daemon runs the caseflow background service: the HTTP API,
// the session sweeper, and single-instance enforcement.
package daemon
