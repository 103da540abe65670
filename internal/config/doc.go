// Package config loads, validates, and normalizes caseflow configuration
// from TOML files. Configuration covers storage paths, the API bind
// address, the static token-to-user table supplying request identity,
// queue session lifetimes, and logging output.
package config
