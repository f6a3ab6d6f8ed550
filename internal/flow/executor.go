package flow

import (
	"context"
	"fmt"
	"log/slog"

	"github.com/hiredraft/hiredraft/internal/llm"
	"github.com/hiredraft/hiredraft/internal/research"
)

// LLMClient is the narrow generation capability the flow needs.
type LLMClient interface {
	Chat(ctx context.Context, messages []llm.ChatMessage, opts llm.ChatOptions) (string, error)
}

type branchFunc func(ctx context.Context, st *State, progress func(string)) (string, error)

// Executor runs the branch selected by the router and commits its output
// into the working state. Exactly one branch runs per turn.
type Executor struct {
	llm      LLMClient
	research *research.Runner
	logger   *slog.Logger
	handlers map[Branch]branchFunc
}

// ExecutorOption configures an Executor.
type ExecutorOption func(*Executor)

// WithResearch enables the bounded retrieval sub-task for the compose
// branch. Without it, postings are generated from the slots alone.
func WithResearch(runner *research.Runner) ExecutorOption {
	return func(e *Executor) { e.research = runner }
}

// WithExecutorLogger sets the logger.
func WithExecutorLogger(logger *slog.Logger) ExecutorOption {
	return func(e *Executor) { e.logger = logger }
}

// NewExecutor builds an Executor with its branch dispatch table.
func NewExecutor(llmClient LLMClient, opts ...ExecutorOption) (*Executor, error) {
	if llmClient == nil {
		return nil, fmt.Errorf("flow: llm client must not be nil")
	}
	e := &Executor{
		llm:    llmClient,
		logger: slog.Default(),
	}
	for _, opt := range opts {
		opt(e)
	}
	e.handlers = map[Branch]branchFunc{
		BranchConverse: e.converse,
		BranchCompose:  e.compose,
		BranchRevise:   e.revise,
	}
	return e, nil
}

// Run dispatches to the branch handler and returns the assistant reply for
// this turn. On failure the state keeps its pre-branch posting and slots.
func (e *Executor) Run(ctx context.Context, branch Branch, st *State, progress func(string)) (string, error) {
	handler, ok := e.handlers[branch]
	if !ok {
		return "", &BranchExecutionError{Branch: branch, Err: fmt.Errorf("no handler registered")}
	}
	reply, err := handler(ctx, st, progress)
	if err != nil {
		return "", &BranchExecutionError{Branch: branch, Err: err}
	}
	return reply, nil
}

func (e *Executor) converse(ctx context.Context, st *State, progress func(string)) (string, error) {
	note(progress, "replying to the user")
	reply, err := e.llm.Chat(ctx, []llm.ChatMessage{promptMessage(conversePrompt(st))}, llm.ChatOptions{})
	if err != nil {
		return "", err
	}
	return reply, nil
}

func (e *Executor) compose(ctx context.Context, st *State, progress func(string)) (string, error) {
	var findings *research.Findings
	if e.research != nil {
		note(progress, "researching company and role")
		var err error
		findings, err = e.research.Gather(ctx, searchQueries(st.Slots))
		if err != nil {
			return "", err
		}
	}

	note(progress, "drafting posting")
	e.logger.Info("composing posting",
		slog.String("conversation_id", st.ConversationID),
		slog.String("job_role", st.Slots.JobRole),
		slog.String("company", st.Slots.CompanyName),
	)
	posting, err := e.llm.Chat(ctx, []llm.ChatMessage{promptMessage(composePrompt(st, findings))}, llm.ChatOptions{})
	if err != nil {
		return "", err
	}
	if findings != nil && !findings.Empty() {
		if err := research.ValidateCitations(posting); err != nil {
			return "", err
		}
	}
	st.Posting = posting
	return posting, nil
}

func (e *Executor) revise(ctx context.Context, st *State, progress func(string)) (string, error) {
	note(progress, "revising posting")
	e.logger.Info("revising posting",
		slog.String("conversation_id", st.ConversationID),
		slog.String("feedback", st.PendingFeedback),
	)
	temp := float32(0.3)
	posting, err := e.llm.Chat(ctx, []llm.ChatMessage{promptMessage(revisePrompt(st))}, llm.ChatOptions{Temperature: &temp})
	if err != nil {
		return "", err
	}
	st.Posting = posting
	st.PendingFeedback = ""
	return posting, nil
}

// searchQueries derives the research queries from the collected slots.
func searchQueries(s Slots) []string {
	return []string{
		s.CompanyName + " company overview",
		s.JobRole + " responsibilities and requirements",
		fmt.Sprintf("%s salary range %s", s.JobRole, s.Location),
	}
}

func note(progress func(string), msg string) {
	if progress != nil {
		progress(msg)
	}
}
