package queuesvc

import "errors"

var (
	// ErrInvalidStatus reports a status the operation does not accept.
	ErrInvalidStatus = errors.New("invalid status")
	// ErrSessionNotFound reports a session id that does not resolve to
	// a live session owned by the caller.
	ErrSessionNotFound = errors.New("queue session not found")
	// ErrCaseNotFound reports a case id absent from the catalog.
	ErrCaseNotFound = errors.New("case not found")
)
