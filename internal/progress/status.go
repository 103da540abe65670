package progress

import (
	"fmt"
	"strings"
)

// Status describes how a user has interacted with a case within one
// filter context.
type Status string

const (
	// StatusCompleted marks a case the user finished reviewing.
	StatusCompleted Status = "completed"
	// StatusSkipped marks a case the user chose to pass over.
	StatusSkipped Status = "skipped"
	// StatusInProgress marks the case a queue session is currently
	// presenting. At most one per user and scope.
	StatusInProgress Status = "in_progress_queue"
	// StatusViewed marks a case that was presented and left behind
	// without a terminal decision.
	StatusViewed Status = "viewed_in_queue"
)

// ParseStatus validates a status string. "viewed" is accepted as an
// alias for viewed_in_queue.
func ParseStatus(value string) (Status, error) {
	switch Status(strings.TrimSpace(value)) {
	case StatusCompleted:
		return StatusCompleted, nil
	case StatusSkipped:
		return StatusSkipped, nil
	case StatusInProgress:
		return StatusInProgress, nil
	case StatusViewed, Status("viewed"):
		return StatusViewed, nil
	default:
		return "", fmt.Errorf("unknown progress status %q", value)
	}
}

// IsTerminal reports whether the status removes a case from queues in
// its scope.
func (s Status) IsTerminal() bool {
	return s == StatusCompleted || s == StatusSkipped
}
