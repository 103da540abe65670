// Package logging builds slog loggers for the daemon and CLI, with a
// console handler for interactive use, a JSON handler for machine
// consumption, and standardized field keys for request-scoped context.
package logging
