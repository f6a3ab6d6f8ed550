// Package llm provides the HTTP client for OpenAI-compatible chat
// completion APIs. It is the only package that talks to the model provider;
// everything above it sees plain text in, plain text out.
package llm

import (
	"encoding/json"
	"fmt"
)

// ChatMessage is a single message in a chat completion request or response.
type ChatMessage struct {
	Role    string `json:"role"`
	Content string `json:"content"`
}

// ChatRequest is an OpenAI-style chat completion request.
type ChatRequest struct {
	Model          string          `json:"model"`
	Messages       []ChatMessage   `json:"messages"`
	Temperature    *float32        `json:"temperature,omitempty"`
	MaxTokens      int             `json:"max_tokens,omitempty"`
	ResponseFormat *ResponseFormat `json:"response_format,omitempty"`
}

// ResponseFormat selects between free text and JSON object output.
type ResponseFormat struct {
	Type string `json:"type"`
}

// ChatResponse is an OpenAI-style chat completion response.
type ChatResponse struct {
	ID      string   `json:"id"`
	Object  string   `json:"object"`
	Created int64    `json:"created"`
	Model   string   `json:"model"`
	Choices []Choice `json:"choices"`
	Usage   Usage    `json:"usage,omitempty"`
}

// Choice is a single completion choice.
type Choice struct {
	Index        int         `json:"index"`
	Message      ChatMessage `json:"message"`
	FinishReason string      `json:"finish_reason"`
}

// Usage reports token consumption for a completion.
type Usage struct {
	PromptTokens     int `json:"prompt_tokens"`
	CompletionTokens int `json:"completion_tokens"`
	TotalTokens      int `json:"total_tokens"`
}

// APIError is a non-2xx response from the provider. It retains the HTTP
// status code so callers can distinguish rate limiting from other failures.
type APIError struct {
	StatusCode int    `json:"-"`
	Type       string `json:"type"`
	Message    string `json:"message"`
}

func (e *APIError) Error() string {
	return fmt.Sprintf("llm: API error (status %d, type %s): %s", e.StatusCode, e.Type, e.Message)
}

// HTTPStatusCode returns the upstream HTTP status.
func (e *APIError) HTTPStatusCode() int { return e.StatusCode }

type errorEnvelope struct {
	Error struct {
		Type    string `json:"type"`
		Message string `json:"message"`
	} `json:"error"`
}

func parseAPIError(statusCode int, body []byte) *APIError {
	var env errorEnvelope
	if err := json.Unmarshal(body, &env); err == nil && env.Error.Message != "" {
		return &APIError{StatusCode: statusCode, Type: env.Error.Type, Message: env.Error.Message}
	}
	return &APIError{StatusCode: statusCode, Type: "api_error", Message: string(body)}
}
