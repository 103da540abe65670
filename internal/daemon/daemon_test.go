package daemon_test

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"testing"
	"time"

	"caseflow/internal/api"
	"caseflow/internal/daemon"
	"caseflow/internal/logging"
	"caseflow/internal/testsupport"
)

type harness struct {
	t    *testing.T
	base string
}

func startDaemon(t *testing.T) *harness {
	t.Helper()
	cfg := testsupport.NewConfig(t)
	db := testsupport.MustOpenDB(t, cfg)
	testsupport.SeedCase(t, db, "case-1", map[string]string{"modality": "CT"})
	testsupport.SeedCase(t, db, "case-2", map[string]string{"modality": "CT"})
	testsupport.SeedCase(t, db, "case-3", map[string]string{"modality": "MR"})

	d, err := daemon.New(cfg, db, logging.NewNop())
	if err != nil {
		t.Fatalf("daemon.New: %v", err)
	}
	ctx, cancel := context.WithCancel(context.Background())
	if err := d.Start(ctx); err != nil {
		t.Fatalf("daemon.Start: %v", err)
	}
	t.Cleanup(func() {
		cancel()
		d.Stop()
	})
	return &harness{t: t, base: "http://" + d.APIAddr()}
}

func (h *harness) request(method, path, token string, body any) (*http.Response, []byte) {
	h.t.Helper()
	var payload bytes.Buffer
	if body != nil {
		if err := json.NewEncoder(&payload).Encode(body); err != nil {
			h.t.Fatalf("encode body: %v", err)
		}
	}
	req, err := http.NewRequest(method, h.base+path, &payload)
	if err != nil {
		h.t.Fatalf("new request: %v", err)
	}
	if token != "" {
		req.Header.Set("Authorization", "Bearer "+token)
	}
	req.Header.Set("Content-Type", "application/json")

	client := &http.Client{Timeout: 5 * time.Second}
	resp, err := client.Do(req)
	if err != nil {
		h.t.Fatalf("%s %s: %v", method, path, err)
	}
	defer resp.Body.Close()
	var out bytes.Buffer
	if _, err := out.ReadFrom(resp.Body); err != nil {
		h.t.Fatalf("read response: %v", err)
	}
	return resp, out.Bytes()
}

func decode[T any](t *testing.T, data []byte) T {
	t.Helper()
	var value T
	if err := json.Unmarshal(data, &value); err != nil {
		t.Fatalf("decode response %s: %v", data, err)
	}
	return value
}

func TestRequestsWithoutTokenAreRejected(t *testing.T) {
	h := startDaemon(t)
	resp, _ := h.request(http.MethodGet, "/api/status", "", nil)
	if resp.StatusCode != http.StatusUnauthorized {
		t.Fatalf("expected 401, got %d", resp.StatusCode)
	}
	resp, _ = h.request(http.MethodGet, "/api/status", "wrong-token", nil)
	if resp.StatusCode != http.StatusUnauthorized {
		t.Fatalf("expected 401 for unknown token, got %d", resp.StatusCode)
	}
}

func TestStatusEndpoint(t *testing.T) {
	h := startDaemon(t)
	resp, body := h.request(http.MethodGet, "/api/status", testsupport.Token, nil)
	if resp.StatusCode != http.StatusOK {
		t.Fatalf("expected 200, got %d: %s", resp.StatusCode, body)
	}
	status := decode[api.DaemonStatus](t, body)
	if !status.Running || status.CaseCount != 3 {
		t.Fatalf("unexpected status: %+v", status)
	}
}

func TestQueueSessionLifecycleOverHTTP(t *testing.T) {
	h := startDaemon(t)

	resp, body := h.request(http.MethodPost, "/api/queue/session/start", testsupport.Token,
		api.StartSessionRequest{Filters: map[string]any{"modality": "CT"}})
	if resp.StatusCode != http.StatusOK {
		t.Fatalf("start: expected 200, got %d: %s", resp.StatusCode, body)
	}
	state := decode[api.QueueStateResponse](t, body)
	if state.SessionID == "" || state.CurrentCase == nil || state.CurrentCase.ID != "case-1" {
		t.Fatalf("unexpected start state: %+v", state)
	}
	if state.TotalInQueue != 2 || state.QueuePosition != 0 {
		t.Fatalf("unexpected start counters: %+v", state)
	}

	resp, body = h.request(http.MethodPost,
		fmt.Sprintf("/api/queue/session/%s/next", state.SessionID), testsupport.Token,
		api.AdvanceRequest{PreviousCaseID: "case-1", PreviousCaseStatus: "completed"})
	if resp.StatusCode != http.StatusOK {
		t.Fatalf("advance: expected 200, got %d: %s", resp.StatusCode, body)
	}
	state = decode[api.QueueStateResponse](t, body)
	if state.CurrentCase == nil || state.CurrentCase.ID != "case-2" || state.QueuePosition != 1 {
		t.Fatalf("unexpected advance state: %+v", state)
	}

	resp, body = h.request(http.MethodPost,
		fmt.Sprintf("/api/queue/session/%s/next", state.SessionID), testsupport.Token,
		api.AdvanceRequest{PreviousCaseID: "case-2", PreviousCaseStatus: "completed"})
	if resp.StatusCode != http.StatusOK {
		t.Fatalf("final advance: expected 200, got %d: %s", resp.StatusCode, body)
	}
	state = decode[api.QueueStateResponse](t, body)
	if state.CurrentCase != nil || state.QueuePosition != -1 || state.Message == "" {
		t.Fatalf("expected end of queue, got %+v", state)
	}
}

func TestMarkStatusEndpoint(t *testing.T) {
	h := startDaemon(t)

	resp, body := h.request(http.MethodPost, "/api/cases/case-3/status", testsupport.Token,
		api.MarkStatusRequest{Status: "completed", FilterContext: map[string]any{"modality": "MR"}})
	if resp.StatusCode != http.StatusOK {
		t.Fatalf("expected 200, got %d: %s", resp.StatusCode, body)
	}
	mark := decode[api.MarkStatusResponse](t, body)
	if mark.CaseID != "case-3" || mark.Status != "completed" || mark.Scope == "" {
		t.Fatalf("unexpected mark response: %+v", mark)
	}

	// Starting the MR queue afterwards finds nothing presentable.
	resp, body = h.request(http.MethodPost, "/api/queue/session/start", testsupport.Token,
		api.StartSessionRequest{Filters: map[string]any{"modality": "MR"}})
	if resp.StatusCode != http.StatusOK {
		t.Fatalf("start: expected 200, got %d: %s", resp.StatusCode, body)
	}
	state := decode[api.QueueStateResponse](t, body)
	if state.CurrentCase != nil || state.TotalInQueue != 0 || state.QueuePosition != -1 {
		t.Fatalf("expected settled queue, got %+v", state)
	}
}

func TestErrorMapping(t *testing.T) {
	h := startDaemon(t)

	resp, _ := h.request(http.MethodPost, "/api/cases/case-1/status", testsupport.Token,
		api.MarkStatusRequest{Status: "viewed_in_queue"})
	if resp.StatusCode != http.StatusBadRequest {
		t.Fatalf("non-terminal status: expected 400, got %d", resp.StatusCode)
	}

	resp, _ = h.request(http.MethodPost, "/api/cases/ghost/status", testsupport.Token,
		api.MarkStatusRequest{Status: "completed"})
	if resp.StatusCode != http.StatusNotFound {
		t.Fatalf("unknown case: expected 404, got %d", resp.StatusCode)
	}

	resp, _ = h.request(http.MethodPost, "/api/queue/session/ghost/next", testsupport.Token,
		api.AdvanceRequest{})
	if resp.StatusCode != http.StatusNotFound {
		t.Fatalf("unknown session: expected 404, got %d", resp.StatusCode)
	}

	resp, _ = h.request(http.MethodPost, "/api/queue/session/start", testsupport.Token,
		api.StartSessionRequest{Filters: map[string]any{"nested": map[string]any{"x": 1}}})
	if resp.StatusCode != http.StatusBadRequest {
		t.Fatalf("nested criteria: expected 400, got %d", resp.StatusCode)
	}

	resp, _ = h.request(http.MethodGet, "/api/cases/ghost", testsupport.Token, nil)
	if resp.StatusCode != http.StatusNotFound {
		t.Fatalf("missing case: expected 404, got %d", resp.StatusCode)
	}
}

func TestCaseListEndpoint(t *testing.T) {
	h := startDaemon(t)
	resp, body := h.request(http.MethodGet, "/api/cases", testsupport.Token, nil)
	if resp.StatusCode != http.StatusOK {
		t.Fatalf("expected 200, got %d", resp.StatusCode)
	}
	list := decode[api.CaseListResponse](t, body)
	if list.Total != 3 || len(list.Cases) != 3 {
		t.Fatalf("unexpected case list: %+v", list)
	}
	if list.Cases[0].ID != "case-1" {
		t.Fatalf("cases not ordered: %+v", list.Cases)
	}
}
