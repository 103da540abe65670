// Package api defines the JSON payloads exchanged between the caseflow
// daemon and its clients.
package api

import (
	"encoding/json"
	"time"

	"caseflow/internal/catalog"
	"caseflow/internal/progress"
	"caseflow/internal/queuesvc"
)

// CaseView is the client-facing shape of a catalog case.
type CaseView struct {
	ID         string            `json:"id"`
	Title      string            `json:"title,omitempty"`
	Attributes map[string]string `json:"attributes"`
	Content    json.RawMessage   `json:"content,omitempty"`
}

// CaseSummary lists a case without its content payload.
type CaseSummary struct {
	ID         string            `json:"id"`
	Title      string            `json:"title,omitempty"`
	Attributes map[string]string `json:"attributes"`
}

// StartSessionRequest opens a review queue for the given filters. A
// missing or empty filters object starts an unfiltered queue.
type StartSessionRequest struct {
	Filters map[string]any `json:"filters"`
}

// AdvanceRequest moves a session forward, optionally recording a
// status for the case being left behind.
type AdvanceRequest struct {
	PreviousCaseID     string `json:"previousCaseId"`
	PreviousCaseStatus string `json:"previousCaseStatus"`
}

// MarkStatusRequest records a terminal decision for a case. A missing
// filterContext records the decision globally.
type MarkStatusRequest struct {
	Status        string         `json:"status"`
	FilterContext map[string]any `json:"filterContext"`
	SessionID     string         `json:"sessionId"`
}

// MarkStatusResponse echoes the stored progress record.
type MarkStatusResponse struct {
	CaseID        string `json:"caseId"`
	Status        string `json:"status"`
	Scope         string `json:"scope,omitempty"`
	SessionID     string `json:"sessionId,omitempty"`
	LastUpdatedAt string `json:"lastUpdatedAt"`
}

// QueueStateResponse describes the session after a start or advance.
// QueuePosition is the zero-based index of the current case in the
// session's candidate sequence, or -1 when no case is presented.
type QueueStateResponse struct {
	SessionID     string    `json:"sessionId,omitempty"`
	CurrentCase   *CaseView `json:"currentCase"`
	QueuePosition int       `json:"queuePosition"`
	TotalInQueue  int       `json:"totalInQueue"`
	Message       string    `json:"message,omitempty"`
}

// CaseListResponse lists catalog cases.
type CaseListResponse struct {
	Cases []CaseSummary `json:"cases"`
	Total int           `json:"total"`
}

// DaemonStatus reports daemon runtime information.
type DaemonStatus struct {
	Running      bool   `json:"running"`
	PID          int    `json:"pid"`
	DatabasePath string `json:"databasePath"`
	LockFilePath string `json:"lockFilePath"`
	CaseCount    int    `json:"caseCount"`
}

// ErrorResponse is the uniform error body.
type ErrorResponse struct {
	Error string `json:"error"`
}

// FromCase converts a catalog case to its full client view.
func FromCase(record *catalog.Case) *CaseView {
	if record == nil {
		return nil
	}
	attrs := record.Attributes
	if attrs == nil {
		attrs = map[string]string{}
	}
	return &CaseView{
		ID:         record.ID,
		Title:      record.Title,
		Attributes: attrs,
		Content:    record.Content,
	}
}

// FromCaseSummary converts a catalog case to its list view.
func FromCaseSummary(record *catalog.Case) CaseSummary {
	attrs := record.Attributes
	if attrs == nil {
		attrs = map[string]string{}
	}
	return CaseSummary{ID: record.ID, Title: record.Title, Attributes: attrs}
}

// FromQueueState converts a service queue state to its response shape.
func FromQueueState(state *queuesvc.QueueState) QueueStateResponse {
	if state == nil {
		return QueueStateResponse{QueuePosition: -1}
	}
	return QueueStateResponse{
		SessionID:     state.SessionID,
		CurrentCase:   FromCase(state.Current),
		QueuePosition: state.Position,
		TotalInQueue:  state.Total,
		Message:       state.Message,
	}
}

// FromProgressRecord converts a stored progress record.
func FromProgressRecord(record *progress.Record) MarkStatusResponse {
	if record == nil {
		return MarkStatusResponse{}
	}
	return MarkStatusResponse{
		CaseID:        record.CaseID,
		Status:        string(record.Status),
		Scope:         record.Scope,
		SessionID:     record.SessionID,
		LastUpdatedAt: record.LastUpdatedAt.UTC().Format(time.RFC3339Nano),
	}
}
