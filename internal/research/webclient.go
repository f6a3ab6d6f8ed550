package research

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"
)

// WebClient implements Searcher and Fetcher against a hosted search API
// (bearer-authenticated, JSON over HTTP). The service itself is an opaque
// collaborator; this client only speaks its wire shape.
type WebClient struct {
	baseURL    string
	token      string
	httpClient *http.Client
}

// WebClientOption configures a WebClient.
type WebClientOption func(*WebClient)

// WithWebHTTPClient sets a custom HTTP client.
func WithWebHTTPClient(httpClient *http.Client) WebClientOption {
	return func(c *WebClient) { c.httpClient = httpClient }
}

// NewWebClient builds a search client. Base URL and token are both
// required; a missing credential fails fast.
func NewWebClient(baseURL, token string, opts ...WebClientOption) (*WebClient, error) {
	if strings.TrimSpace(baseURL) == "" {
		return nil, errors.New("research: search base URL is not configured")
	}
	if strings.TrimSpace(token) == "" {
		return nil, errors.New("research: search token is not configured")
	}
	c := &WebClient{
		baseURL:    strings.TrimSuffix(baseURL, "/"),
		token:      token,
		httpClient: http.DefaultClient,
	}
	for _, opt := range opts {
		opt(c)
	}
	return c, nil
}

type searchRequest struct {
	Query string `json:"query"`
}

type searchResponse struct {
	Results []Result `json:"results"`
}

// Search runs one query against the search endpoint.
func (c *WebClient) Search(ctx context.Context, query string) ([]Result, error) {
	body, err := json.Marshal(searchRequest{Query: query})
	if err != nil {
		return nil, fmt.Errorf("research: marshal search request: %w", err)
	}
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.baseURL+"/search", bytes.NewReader(body))
	if err != nil {
		return nil, fmt.Errorf("research: create search request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("Authorization", "Bearer "+c.token)

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return nil, fmt.Errorf("research: search request failed: %w", err)
	}
	defer resp.Body.Close()

	respBody, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, fmt.Errorf("research: read search response: %w", err)
	}
	if resp.StatusCode != http.StatusOK {
		return nil, fmt.Errorf("research: search API status %d: %s", resp.StatusCode, string(respBody))
	}
	var out searchResponse
	if err := json.Unmarshal(respBody, &out); err != nil {
		return nil, fmt.Errorf("research: unmarshal search response: %w", err)
	}
	return out.Results, nil
}

// Fetch retrieves one source's content via the scrape endpoint.
func (c *WebClient) Fetch(ctx context.Context, target string) (string, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet,
		c.baseURL+"/scrape?url="+url.QueryEscape(target), nil)
	if err != nil {
		return "", fmt.Errorf("research: create fetch request: %w", err)
	}
	req.Header.Set("Authorization", "Bearer "+c.token)

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return "", fmt.Errorf("research: fetch request failed: %w", err)
	}
	defer resp.Body.Close()

	respBody, err := io.ReadAll(resp.Body)
	if err != nil {
		return "", fmt.Errorf("research: read fetch response: %w", err)
	}
	if resp.StatusCode != http.StatusOK {
		return "", fmt.Errorf("research: scrape API status %d: %s", resp.StatusCode, string(respBody))
	}
	return string(respBody), nil
}
