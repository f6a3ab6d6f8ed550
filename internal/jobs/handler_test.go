package jobs

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/go-chi/chi/v5"

	"github.com/hiredraft/hiredraft/internal/flow"
)

func newTestHandler(t *testing.T, runner TurnRunner) (*Manager, http.Handler) {
	t.Helper()
	m, err := NewManager(runner)
	if err != nil {
		t.Fatalf("NewManager() error = %v", err)
	}
	r := chi.NewRouter()
	NewHandler(m).Routes(r)
	return m, r
}

func TestKickoffAndStatusEndpoints(t *testing.T) {
	runner := &fakeRunner{fn: func(ctx context.Context, conversationID, userMessage string, progress func(string)) (*flow.TurnResult, error) {
		return &flow.TurnResult{Branch: flow.BranchConverse, Reply: "hello there"}, nil
	}}
	m, handler := newTestHandler(t, runner)

	body := `{"inputs":{"user_message":"hi","id":"conv-1"}}`
	req := httptest.NewRequest(http.MethodPost, "/kickoff", strings.NewReader(body))
	rec := httptest.NewRecorder()
	handler.ServeHTTP(rec, req)

	if rec.Code != http.StatusOK {
		t.Fatalf("kickoff status = %d, body %s", rec.Code, rec.Body.String())
	}
	var kick struct {
		KickoffID string `json:"kickoff_id"`
	}
	if err := json.Unmarshal(rec.Body.Bytes(), &kick); err != nil {
		t.Fatalf("decode kickoff response: %v", err)
	}
	if kick.KickoffID == "" {
		t.Fatal("kickoff_id is empty")
	}

	m.Wait()

	req = httptest.NewRequest(http.MethodGet, "/status/"+kick.KickoffID, nil)
	rec = httptest.NewRecorder()
	handler.ServeHTTP(rec, req)

	if rec.Code != http.StatusOK {
		t.Fatalf("status code = %d, body %s", rec.Code, rec.Body.String())
	}
	var status struct {
		State            string          `json:"state"`
		Result           json.RawMessage `json:"result"`
		LastExecutedTask *string         `json:"last_executed_task"`
	}
	if err := json.Unmarshal(rec.Body.Bytes(), &status); err != nil {
		t.Fatalf("decode status response: %v", err)
	}
	if status.State != "SUCCESS" {
		t.Errorf("state = %q", status.State)
	}
	if string(status.Result) != `{"chat_response":"hello there"}` {
		t.Errorf("result = %s", status.Result)
	}
	if status.LastExecutedTask == nil || *status.LastExecutedTask != "completed" {
		t.Errorf("last_executed_task = %v", status.LastExecutedTask)
	}
}

func TestKickoffEndpointRejectsBadRequests(t *testing.T) {
	_, handler := newTestHandler(t, &fakeRunner{})

	tests := []struct {
		name string
		body string
	}{
		{name: "malformed json", body: `{"inputs":`},
		{name: "empty message", body: `{"inputs":{"user_message":""}}`},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			req := httptest.NewRequest(http.MethodPost, "/kickoff", strings.NewReader(tt.body))
			rec := httptest.NewRecorder()
			handler.ServeHTTP(rec, req)

			if rec.Code != http.StatusBadRequest {
				t.Fatalf("status = %d, want 400", rec.Code)
			}
			var errResp struct {
				Error struct {
					Type    string `json:"type"`
					Message string `json:"message"`
				} `json:"error"`
			}
			if err := json.Unmarshal(rec.Body.Bytes(), &errResp); err != nil {
				t.Fatalf("decode error response: %v", err)
			}
			if errResp.Error.Type != "invalid_request" {
				t.Errorf("error type = %q", errResp.Error.Type)
			}
		})
	}
}

func TestStatusEndpointUnknownID(t *testing.T) {
	_, handler := newTestHandler(t, &fakeRunner{})

	req := httptest.NewRequest(http.MethodGet, "/status/not-a-job", nil)
	rec := httptest.NewRecorder()
	handler.ServeHTTP(rec, req)

	if rec.Code != http.StatusNotFound {
		t.Fatalf("status = %d, want 404", rec.Code)
	}
}

func TestStatusEndpointWhilePending(t *testing.T) {
	block := make(chan struct{})
	runner := &fakeRunner{fn: func(ctx context.Context, conversationID, userMessage string, progress func(string)) (*flow.TurnResult, error) {
		<-block
		return &flow.TurnResult{Branch: flow.BranchConverse, Reply: "done"}, nil
	}}
	m, handler := newTestHandler(t, runner)
	defer func() {
		close(block)
		m.Wait()
	}()

	id, err := m.Kickoff(KickoffInputs{UserMessage: "hi"})
	if err != nil {
		t.Fatalf("Kickoff() error = %v", err)
	}

	req := httptest.NewRequest(http.MethodGet, "/status/"+id, nil)
	rec := httptest.NewRecorder()
	handler.ServeHTTP(rec, req)

	if rec.Code != http.StatusOK {
		t.Fatalf("status = %d", rec.Code)
	}
	var status struct {
		State  string          `json:"state"`
		Result json.RawMessage `json:"result"`
	}
	if err := json.Unmarshal(rec.Body.Bytes(), &status); err != nil {
		t.Fatalf("decode status response: %v", err)
	}
	if status.State != "PENDING" && status.State != "RUNNING" {
		t.Errorf("state = %q, want PENDING or RUNNING", status.State)
	}
	if string(status.Result) != "null" && len(status.Result) != 0 {
		t.Errorf("result = %s, want null before completion", status.Result)
	}
}
