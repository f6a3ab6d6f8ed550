// Package jobclient is the remote caller's view of the job gateway:
// kickoff a message, poll for a terminal state, and decode a result that
// may arrive in more than one shape.
package jobclient

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"strings"
	"time"
)

// StateError is synthesized client-side when the job's real status could
// not be learned this time (network, auth, malformed response). It is not a
// worker failure; polling again is safe.
const StateError = "ERROR"

// answerAliases is the fixed priority order for extracting the logical
// answer from a result payload.
var answerAliases = []string{"response", "chat_response"}

// Status is one observation of a job.
type Status struct {
	State        string
	Result       map[string]any
	ProgressNote string
}

// Terminal reports whether the gateway will never change this state again.
// ERROR is not terminal: it means this poll failed, not the job.
func (s Status) Terminal() bool {
	switch s.State {
	case "SUCCESS", "FAILURE", "TIMEOUT":
		return true
	}
	return false
}

// Client talks to the job gateway.
type Client struct {
	baseURL    string
	token      string
	httpClient *http.Client
	logger     *slog.Logger
}

// Option configures a Client.
type Option func(*Client)

// WithHTTPClient sets a custom HTTP client.
func WithHTTPClient(httpClient *http.Client) Option {
	return func(c *Client) { c.httpClient = httpClient }
}

// WithLogger sets the logger.
func WithLogger(logger *slog.Logger) Option {
	return func(c *Client) { c.logger = logger }
}

// New builds a gateway client. Both the base URL and the bearer token are
// required configuration; missing either fails immediately with no retry.
func New(baseURL, token string, opts ...Option) (*Client, error) {
	if strings.TrimSpace(baseURL) == "" {
		return nil, errors.New("jobclient: base URL is not configured")
	}
	if strings.TrimSpace(token) == "" {
		return nil, errors.New("jobclient: bearer token is not configured")
	}
	c := &Client{
		baseURL:    strings.TrimSuffix(baseURL, "/"),
		token:      token,
		httpClient: &http.Client{Timeout: 30 * time.Second},
		logger:     slog.Default(),
	}
	for _, opt := range opts {
		opt(c)
	}
	return c, nil
}

type kickoffRequest struct {
	Inputs struct {
		UserMessage string `json:"user_message"`
		ID          string `json:"id"`
	} `json:"inputs"`
}

type kickoffResponse struct {
	KickoffID string `json:"kickoff_id"`
}

// Kickoff submits a message for a conversation and returns the job id.
func (c *Client) Kickoff(ctx context.Context, userMessage, conversationID string) (string, error) {
	var req kickoffRequest
	req.Inputs.UserMessage = userMessage
	req.Inputs.ID = conversationID

	body, err := json.Marshal(req)
	if err != nil {
		return "", fmt.Errorf("jobclient: marshal kickoff: %w", err)
	}
	respBody, err := c.do(ctx, http.MethodPost, "/kickoff", body)
	if err != nil {
		return "", err
	}
	var out kickoffResponse
	if err := json.Unmarshal(respBody, &out); err != nil {
		return "", fmt.Errorf("jobclient: unmarshal kickoff response: %w", err)
	}
	if out.KickoffID == "" {
		return "", errors.New("jobclient: kickoff response missing kickoff_id")
	}
	return out.KickoffID, nil
}

type statusWire struct {
	State            string          `json:"state"`
	Result           json.RawMessage `json:"result"`
	LastExecutedTask *string         `json:"last_executed_task"`
}

// Poll observes a job once. It never returns an error: any transport or
// decode failure on the poll itself is reported as the synthetic ERROR
// state, which the caller may retry.
func (c *Client) Poll(ctx context.Context, kickoffID string) Status {
	respBody, err := c.do(ctx, http.MethodGet, "/status/"+kickoffID, nil)
	if err != nil {
		c.logger.Warn("poll failed", slog.String("kickoff_id", kickoffID), slog.String("error", err.Error()))
		return Status{State: StateError}
	}
	var wire statusWire
	if err := json.Unmarshal(respBody, &wire); err != nil {
		c.logger.Warn("poll response malformed", slog.String("kickoff_id", kickoffID), slog.String("error", err.Error()))
		return Status{State: StateError}
	}

	status := Status{State: wire.State}
	if wire.LastExecutedTask != nil {
		status.ProgressNote = *wire.LastExecutedTask
	}
	if wire.State == "SUCCESS" && len(wire.Result) > 0 {
		status.Result = NormalizeResult(wire.Result)
	}
	return status
}

// PollUntilDone polls at the given cadence until the job reaches a terminal
// state or ctx expires. ERROR observations are retried; the job itself may
// still complete later and remains available for a subsequent poll.
func (c *Client) PollUntilDone(ctx context.Context, kickoffID string, interval time.Duration) (Status, error) {
	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	for {
		status := c.Poll(ctx, kickoffID)
		if status.Terminal() {
			return status, nil
		}
		select {
		case <-ctx.Done():
			return status, ctx.Err()
		case <-ticker.C:
		}
	}
}

// NormalizeResult turns a raw SUCCESS result into a structured payload.
// Objects pass through; strings holding serialized objects are decoded;
// anything else is wrapped as {"response": <raw text>}. Callers always get
// a structured payload, never a bare string or a decode error.
func NormalizeResult(raw json.RawMessage) map[string]any {
	var asObject map[string]any
	if err := json.Unmarshal(raw, &asObject); err == nil {
		return asObject
	}
	var asString string
	if err := json.Unmarshal(raw, &asString); err == nil {
		var nested map[string]any
		if err := json.Unmarshal([]byte(asString), &nested); err == nil {
			return nested
		}
		return map[string]any{"response": asString}
	}
	return map[string]any{"response": string(raw)}
}

// ExtractAnswer returns the logical answer from a normalized result by
// checking each known field alias in priority order. The search path
// produces "response"; the casual chat path produces "chat_response". An
// empty string means no alias held a value.
func ExtractAnswer(result map[string]any) string {
	for _, alias := range answerAliases {
		if v, ok := result[alias].(string); ok && v != "" {
			return v
		}
	}
	return ""
}

func (c *Client) do(ctx context.Context, method, path string, body []byte) ([]byte, error) {
	var reader io.Reader
	if body != nil {
		reader = bytes.NewReader(body)
	}
	req, err := http.NewRequestWithContext(ctx, method, c.baseURL+path, reader)
	if err != nil {
		return nil, fmt.Errorf("jobclient: create request: %w", err)
	}
	req.Header.Set("Authorization", "Bearer "+c.token)
	if body != nil {
		req.Header.Set("Content-Type", "application/json")
	}

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return nil, fmt.Errorf("jobclient: request failed: %w", err)
	}
	defer resp.Body.Close()

	respBody, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, fmt.Errorf("jobclient: read response: %w", err)
	}
	if resp.StatusCode != http.StatusOK {
		return nil, fmt.Errorf("jobclient: gateway status %d: %s", resp.StatusCode, string(respBody))
	}
	return respBody, nil
}
