// Package research runs the bounded two-phase retrieval sub-task: search
// every query cheaply first, and only escalate to deep-fetching individual
// pages when the snippets are insufficient. Deep fetches are hard-capped so
// a branch can never trigger unbounded scraping.
package research

import (
	"context"
	"fmt"
	"log/slog"
	"strings"
)

// MaxDeepFetches caps phase-two page fetches per gather, regardless of how
// many queries were issued.
const MaxDeepFetches = 3

const defaultMinSnippets = 5

// Result is one lightweight search hit.
type Result struct {
	Title   string `json:"title"`
	URL     string `json:"url"`
	Snippet string `json:"snippet"`
}

// Page is one deep-fetched source.
type Page struct {
	URL     string `json:"url"`
	Content string `json:"content"`
}

// Findings is everything a gather produced, in retrieval order.
type Findings struct {
	Results []Result
	Pages   []Page
}

// Empty reports whether the gather produced nothing usable.
func (f *Findings) Empty() bool {
	return f == nil || (len(f.Results) == 0 && len(f.Pages) == 0)
}

// Transcript renders the findings as numbered context for a generation
// prompt. Numbering matches the citation markers the generator is told to
// use.
func (f *Findings) Transcript() string {
	var b strings.Builder
	n := 0
	for _, r := range f.Results {
		n++
		fmt.Fprintf(&b, "[%d] %s (%s)\n%s\n\n", n, r.Title, r.URL, r.Snippet)
	}
	for _, p := range f.Pages {
		n++
		fmt.Fprintf(&b, "[%d] %s\n%s\n\n", n, p.URL, p.Content)
	}
	return strings.TrimSpace(b.String())
}

// Searcher returns lightweight results for one query.
type Searcher interface {
	Search(ctx context.Context, query string) ([]Result, error)
}

// Fetcher retrieves the content of a single source.
type Fetcher interface {
	Fetch(ctx context.Context, url string) (string, error)
}

// Runner executes the two-phase gather policy.
type Runner struct {
	searcher    Searcher
	fetcher     Fetcher
	minSnippets int
	logger      *slog.Logger
}

// RunnerOption configures a Runner.
type RunnerOption func(*Runner)

// WithMinSnippets sets the snippet count below which the gather escalates
// to deep fetching.
func WithMinSnippets(n int) RunnerOption {
	return func(r *Runner) {
		if n > 0 {
			r.minSnippets = n
		}
	}
}

// WithLogger sets the logger.
func WithLogger(logger *slog.Logger) RunnerOption {
	return func(r *Runner) { r.logger = logger }
}

// NewRunner builds a Runner over the supplied capabilities.
func NewRunner(searcher Searcher, fetcher Fetcher, opts ...RunnerOption) *Runner {
	r := &Runner{
		searcher:    searcher,
		fetcher:     fetcher,
		minSnippets: defaultMinSnippets,
		logger:      slog.Default(),
	}
	for _, opt := range opts {
		opt(r)
	}
	return r
}

// Gather searches every query, then deep-fetches at most MaxDeepFetches
// distinct sources if the snippets alone look insufficient. Any search or
// fetch error aborts the gather; the caller treats it as a branch failure.
func (r *Runner) Gather(ctx context.Context, queries []string) (*Findings, error) {
	findings := &Findings{}
	for _, q := range queries {
		results, err := r.searcher.Search(ctx, q)
		if err != nil {
			return nil, fmt.Errorf("research: search %q: %w", q, err)
		}
		findings.Results = append(findings.Results, results...)
	}

	if len(findings.Results) >= r.minSnippets {
		r.logger.Debug("snippets sufficient, skipping deep fetch",
			slog.Int("results", len(findings.Results)))
		return findings, nil
	}
	if r.fetcher == nil {
		return findings, nil
	}

	seen := make(map[string]bool)
	for _, res := range findings.Results {
		if len(findings.Pages) >= MaxDeepFetches {
			break
		}
		if res.URL == "" || seen[res.URL] {
			continue
		}
		seen[res.URL] = true
		content, err := r.fetcher.Fetch(ctx, res.URL)
		if err != nil {
			return nil, fmt.Errorf("research: fetch %s: %w", res.URL, err)
		}
		findings.Pages = append(findings.Pages, Page{URL: res.URL, Content: content})
		r.logger.Debug("deep fetched source", slog.String("url", res.URL))
	}
	return findings, nil
}
