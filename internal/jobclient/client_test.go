package jobclient

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"sync/atomic"
	"testing"
	"time"
)

func newTestClient(t *testing.T, handler http.Handler) (*Client, *httptest.Server) {
	t.Helper()
	srv := httptest.NewServer(handler)
	t.Cleanup(srv.Close)
	c, err := New(srv.URL, "test-token")
	if err != nil {
		t.Fatalf("New() error = %v", err)
	}
	return c, srv
}

func TestNewRequiresConfiguration(t *testing.T) {
	if _, err := New("", "token"); err == nil {
		t.Error("New() accepted empty base URL")
	}
	if _, err := New("https://gateway.example", ""); err == nil {
		t.Error("New() accepted empty token")
	}
}

func TestKickoff(t *testing.T) {
	c, _ := newTestClient(t, http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.Method != http.MethodPost || r.URL.Path != "/kickoff" {
			t.Errorf("unexpected request: %s %s", r.Method, r.URL.Path)
		}
		if got := r.Header.Get("Authorization"); got != "Bearer test-token" {
			t.Errorf("Authorization = %q", got)
		}
		var req struct {
			Inputs struct {
				UserMessage string `json:"user_message"`
				ID          string `json:"id"`
			} `json:"inputs"`
		}
		if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
			t.Errorf("decode request: %v", err)
		}
		if req.Inputs.UserMessage != "hello" || req.Inputs.ID != "conv-1" {
			t.Errorf("inputs = %+v", req.Inputs)
		}
		json.NewEncoder(w).Encode(map[string]string{"kickoff_id": "job-123"})
	}))

	id, err := c.Kickoff(context.Background(), "hello", "conv-1")
	if err != nil {
		t.Fatalf("Kickoff() error = %v", err)
	}
	if id != "job-123" {
		t.Errorf("id = %q", id)
	}
}

func TestKickoffMissingID(t *testing.T) {
	c, _ := newTestClient(t, http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		json.NewEncoder(w).Encode(map[string]string{})
	}))
	if _, err := c.Kickoff(context.Background(), "hello", "conv-1"); err == nil {
		t.Fatal("Kickoff() error = nil for response without kickoff_id")
	}
}

func TestPollSuccessShapes(t *testing.T) {
	tests := []struct {
		name   string
		result string
		want   string
	}{
		{
			name:   "object result",
			result: `{"chat_response":"the answer"}`,
			want:   "the answer",
		},
		{
			name:   "string-encoded object result",
			result: `"{\"chat_response\":\"the answer\"}"`,
			want:   "the answer",
		},
		{
			name:   "plain string result",
			result: `"the answer"`,
			want:   "the answer",
		},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			c, _ := newTestClient(t, http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
				w.Write([]byte(`{"state":"SUCCESS","result":` + tt.result + `,"last_executed_task":"completed"}`))
			}))

			status := c.Poll(context.Background(), "job-123")
			if status.State != "SUCCESS" {
				t.Fatalf("State = %q", status.State)
			}
			if got := ExtractAnswer(status.Result); got != tt.want {
				t.Errorf("ExtractAnswer() = %q, want %q", got, tt.want)
			}
			if status.ProgressNote != "completed" {
				t.Errorf("ProgressNote = %q", status.ProgressNote)
			}
		})
	}
}

func TestPollSynthesizesErrorState(t *testing.T) {
	t.Run("http failure", func(t *testing.T) {
		c, _ := newTestClient(t, http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			http.Error(w, "boom", http.StatusInternalServerError)
		}))
		status := c.Poll(context.Background(), "job-123")
		if status.State != StateError {
			t.Errorf("State = %q, want ERROR", status.State)
		}
		if status.Terminal() {
			t.Error("ERROR must not be terminal")
		}
	})

	t.Run("transport failure", func(t *testing.T) {
		srv := httptest.NewServer(http.NotFoundHandler())
		c, err := New(srv.URL, "test-token")
		if err != nil {
			t.Fatalf("New() error = %v", err)
		}
		srv.Close()

		status := c.Poll(context.Background(), "job-123")
		if status.State != StateError {
			t.Errorf("State = %q, want ERROR", status.State)
		}
	})

	t.Run("malformed body", func(t *testing.T) {
		c, _ := newTestClient(t, http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			w.Write([]byte(`{"state":`))
		}))
		status := c.Poll(context.Background(), "job-123")
		if status.State != StateError {
			t.Errorf("State = %q, want ERROR", status.State)
		}
	})
}

func TestPollUntilDoneRetriesThroughErrors(t *testing.T) {
	var calls atomic.Int64
	c, _ := newTestClient(t, http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		switch calls.Add(1) {
		case 1:
			w.Write([]byte(`{"state":"RUNNING","result":null,"last_executed_task":"processing turn"}`))
		case 2:
			http.Error(w, "blip", http.StatusBadGateway)
		default:
			w.Write([]byte(`{"state":"SUCCESS","result":{"response":"done"},"last_executed_task":"completed"}`))
		}
	}))

	status, err := c.PollUntilDone(context.Background(), "job-123", 5*time.Millisecond)
	if err != nil {
		t.Fatalf("PollUntilDone() error = %v", err)
	}
	if status.State != "SUCCESS" {
		t.Errorf("State = %q", status.State)
	}
	if got := ExtractAnswer(status.Result); got != "done" {
		t.Errorf("ExtractAnswer() = %q", got)
	}
	if calls.Load() < 3 {
		t.Errorf("calls = %d, want at least 3", calls.Load())
	}
}

func TestPollUntilDoneHonorsContext(t *testing.T) {
	c, _ := newTestClient(t, http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Write([]byte(`{"state":"RUNNING","result":null,"last_executed_task":null}`))
	}))

	ctx, cancel := context.WithTimeout(context.Background(), 30*time.Millisecond)
	defer cancel()

	status, err := c.PollUntilDone(ctx, "job-123", 5*time.Millisecond)
	if err == nil {
		t.Fatal("PollUntilDone() error = nil, want context deadline")
	}
	if status.Terminal() {
		t.Errorf("State = %q, want non-terminal", status.State)
	}
}

func TestNormalizeResult(t *testing.T) {
	tests := []struct {
		name string
		raw  string
		want map[string]any
	}{
		{
			name: "object passes through",
			raw:  `{"response":"a","extra":1}`,
			want: map[string]any{"response": "a", "extra": float64(1)},
		},
		{
			name: "string holding serialized object",
			raw:  `"{\"response\":\"a\"}"`,
			want: map[string]any{"response": "a"},
		},
		{
			name: "plain string wraps",
			raw:  `"just text"`,
			want: map[string]any{"response": "just text"},
		},
		{
			name: "non-object non-string wraps raw text",
			raw:  `42`,
			want: map[string]any{"response": "42"},
		},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got := NormalizeResult(json.RawMessage(tt.raw))
			if len(got) != len(tt.want) {
				t.Fatalf("NormalizeResult() = %v, want %v", got, tt.want)
			}
			for k, v := range tt.want {
				if got[k] != v {
					t.Errorf("key %q = %v, want %v", k, got[k], v)
				}
			}
		})
	}
}

func TestExtractAnswerAliasPriority(t *testing.T) {
	result := map[string]any{
		"response":      "from search",
		"chat_response": "from chat",
	}
	if got := ExtractAnswer(result); got != "from search" {
		t.Errorf("ExtractAnswer() = %q, want response to win", got)
	}

	if got := ExtractAnswer(map[string]any{"chat_response": "from chat"}); got != "from chat" {
		t.Errorf("ExtractAnswer() = %q", got)
	}
	if got := ExtractAnswer(map[string]any{"other": "x"}); got != "" {
		t.Errorf("ExtractAnswer() = %q, want empty", got)
	}
	if got := ExtractAnswer(map[string]any{"response": 7}); got != "" {
		t.Errorf("ExtractAnswer() = %q for non-string value", got)
	}
}
