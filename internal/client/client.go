// Package client is the HTTP client the CLI uses to talk to a running
// caseflow daemon.
package client

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"

	"caseflow/internal/api"
)

// Client talks to the daemon API.
type Client struct {
	baseURL string
	token   string
	http    *http.Client
}

// New builds a client for the daemon at baseURL. The token may be
// empty when the daemon runs without authentication.
func New(baseURL, token string) *Client {
	return &Client{
		baseURL: strings.TrimRight(strings.TrimSpace(baseURL), "/"),
		token:   strings.TrimSpace(token),
		http:    &http.Client{Timeout: 30 * time.Second},
	}
}

// APIError is a non-2xx response from the daemon.
type APIError struct {
	StatusCode int
	Message    string
}

func (e *APIError) Error() string {
	return fmt.Sprintf("daemon returned %d: %s", e.StatusCode, e.Message)
}

// Status fetches daemon runtime information.
func (c *Client) Status(ctx context.Context) (*api.DaemonStatus, error) {
	var out api.DaemonStatus
	if err := c.do(ctx, http.MethodGet, "/api/status", nil, &out); err != nil {
		return nil, err
	}
	return &out, nil
}

// Cases lists the catalog.
func (c *Client) Cases(ctx context.Context) (*api.CaseListResponse, error) {
	var out api.CaseListResponse
	if err := c.do(ctx, http.MethodGet, "/api/cases", nil, &out); err != nil {
		return nil, err
	}
	return &out, nil
}

// Case fetches one case with its content payload.
func (c *Client) Case(ctx context.Context, caseID string) (*api.CaseView, error) {
	var out api.CaseView
	if err := c.do(ctx, http.MethodGet, "/api/cases/"+caseID, nil, &out); err != nil {
		return nil, err
	}
	return &out, nil
}

// StartSession opens a review queue for the given filters.
func (c *Client) StartSession(ctx context.Context, filters map[string]any) (*api.QueueStateResponse, error) {
	var out api.QueueStateResponse
	req := api.StartSessionRequest{Filters: filters}
	if err := c.do(ctx, http.MethodPost, "/api/queue/session/start", req, &out); err != nil {
		return nil, err
	}
	return &out, nil
}

// NextCase advances a session, optionally recording a status for the
// case being left.
func (c *Client) NextCase(ctx context.Context, sessionID, previousCaseID, previousStatus string) (*api.QueueStateResponse, error) {
	var out api.QueueStateResponse
	req := api.AdvanceRequest{PreviousCaseID: previousCaseID, PreviousCaseStatus: previousStatus}
	path := fmt.Sprintf("/api/queue/session/%s/next", sessionID)
	if err := c.do(ctx, http.MethodPost, path, req, &out); err != nil {
		return nil, err
	}
	return &out, nil
}

// MarkCase records a terminal decision for a case.
func (c *Client) MarkCase(ctx context.Context, caseID, status string, filterContext map[string]any, sessionID string) (*api.MarkStatusResponse, error) {
	var out api.MarkStatusResponse
	req := api.MarkStatusRequest{Status: status, FilterContext: filterContext, SessionID: sessionID}
	if err := c.do(ctx, http.MethodPost, "/api/cases/"+caseID+"/status", req, &out); err != nil {
		return nil, err
	}
	return &out, nil
}

func (c *Client) do(ctx context.Context, method, path string, body, out any) error {
	var payload io.Reader
	if body != nil {
		encoded, err := json.Marshal(body)
		if err != nil {
			return fmt.Errorf("encode request: %w", err)
		}
		payload = bytes.NewReader(encoded)
	}

	req, err := http.NewRequestWithContext(ctx, method, c.baseURL+path, payload)
	if err != nil {
		return fmt.Errorf("build request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")
	if c.token != "" {
		req.Header.Set("Authorization", "Bearer "+c.token)
	}

	resp, err := c.http.Do(req)
	if err != nil {
		return fmt.Errorf("call daemon: %w", err)
	}
	defer resp.Body.Close()

	data, err := io.ReadAll(resp.Body)
	if err != nil {
		return fmt.Errorf("read response: %w", err)
	}
	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		var apiErr api.ErrorResponse
		message := strings.TrimSpace(string(data))
		if err := json.Unmarshal(data, &apiErr); err == nil && apiErr.Error != "" {
			message = apiErr.Error
		}
		return &APIError{StatusCode: resp.StatusCode, Message: message}
	}
	if out == nil {
		return nil
	}
	if err := json.Unmarshal(data, out); err != nil {
		return fmt.Errorf("decode response: %w", err)
	}
	return nil
}
