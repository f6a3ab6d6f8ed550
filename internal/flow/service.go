package flow

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"sync"

	"github.com/hiredraft/hiredraft/internal/llm"
)

// Store persists conversation state. Load returns a fresh default state for
// an unknown id. Save is called at most once per completed turn, after both
// router and executor succeed, so a failed turn never persists a partial
// mutation.
type Store interface {
	Load(ctx context.Context, conversationID string) (*State, error)
	Save(ctx context.Context, st *State) error
}

// TurnResult is what one successful turn produced.
type TurnResult struct {
	Branch  Branch
	Reply   string
	Posting string
}

// Service drives one conversation turn end to end: load, classify, merge,
// route, execute, commit. Turns for the same conversation are serialized;
// different conversations proceed independently.
type Service struct {
	llm         LLMClient
	exec        *Executor
	store       Store
	trimmer     *llm.HistoryTrimmer
	resetPolicy ResetPolicy
	logger      *slog.Logger

	mu    sync.Mutex
	locks map[string]*sync.Mutex
}

// ServiceOption configures a Service.
type ServiceOption func(*Service)

// WithResetPolicy sets how much state a new-posting restart clears.
func WithResetPolicy(p ResetPolicy) ServiceOption {
	return func(s *Service) { s.resetPolicy = p }
}

// WithHistoryTrimmer bounds the history embedded in classifier prompts.
func WithHistoryTrimmer(t *llm.HistoryTrimmer) ServiceOption {
	return func(s *Service) { s.trimmer = t }
}

// WithServiceLogger sets the logger.
func WithServiceLogger(logger *slog.Logger) ServiceOption {
	return func(s *Service) { s.logger = logger }
}

// NewService builds the turn service.
func NewService(llmClient LLMClient, exec *Executor, store Store, opts ...ServiceOption) (*Service, error) {
	if llmClient == nil {
		return nil, errors.New("flow: llm client must not be nil")
	}
	if exec == nil {
		return nil, errors.New("flow: executor must not be nil")
	}
	if store == nil {
		return nil, errors.New("flow: store must not be nil")
	}
	s := &Service{
		llm:         llmClient,
		exec:        exec,
		store:       store,
		resetPolicy: ResetPosting,
		logger:      slog.Default(),
		locks:       make(map[string]*sync.Mutex),
	}
	for _, opt := range opts {
		opt(s)
	}
	return s, nil
}

// RunTurn processes one user message for one conversation. progress may be
// nil; when set it receives coarse human-readable notes as the turn
// advances. On any error the persisted state is unchanged.
func (s *Service) RunTurn(ctx context.Context, conversationID, userMessage string, progress func(string)) (*TurnResult, error) {
	userMessage = strings.TrimSpace(userMessage)
	if userMessage == "" {
		return nil, errors.New("flow: user message must not be empty")
	}
	if strings.TrimSpace(conversationID) == "" {
		return nil, errors.New("flow: conversation id must not be empty")
	}

	lock := s.lockFor(conversationID)
	lock.Lock()
	defer lock.Unlock()

	loaded, err := s.store.Load(ctx, conversationID)
	if err != nil {
		return nil, fmt.Errorf("flow: load state: %w", err)
	}

	// Work on a copy so a failed branch leaves the stored state untouched.
	work := loaded.Clone()
	work.LatestUserMessage = userMessage
	work.AddMessage(RoleUser, userMessage)

	note(progress, "classifying intent")
	decision, err := s.classify(ctx, work)
	if err != nil {
		return nil, &ClassificationError{Err: err}
	}
	work.Apply(decision)

	branch, startOver := Route(work, decision)
	if startOver {
		s.logger.Info("restarting for a new posting",
			slog.String("conversation_id", conversationID),
			slog.String("reset_policy", string(s.resetPolicy)),
		)
		work.Reset(s.resetPolicy)
		if s.resetPolicy == ResetAll {
			// Re-merge so fields extracted this turn survive the wipe.
			work.Apply(decision)
		}
		branch, _ = Route(work, decision)
	}

	s.logger.Info("routed turn",
		slog.String("conversation_id", conversationID),
		slog.String("intent", string(decision.Intent)),
		slog.String("branch", string(branch)),
	)

	reply, err := s.exec.Run(ctx, branch, work, progress)
	if err != nil {
		return nil, err
	}
	work.AddMessage(RoleAssistant, reply)

	if err := s.store.Save(ctx, work); err != nil {
		return nil, fmt.Errorf("flow: save state: %w", err)
	}

	return &TurnResult{Branch: branch, Reply: reply, Posting: work.Posting}, nil
}

func (s *Service) classify(ctx context.Context, work *State) (*Decision, error) {
	prompt := work
	if s.trimmer != nil {
		trimmed := s.trimHistory(work.History)
		if len(trimmed) != len(work.History) {
			view := *work
			view.History = trimmed
			prompt = &view
		}
	}
	raw, err := s.llm.Chat(ctx, []llm.ChatMessage{promptMessage(classifyPrompt(prompt))}, llm.ChatOptions{JSONResponse: true})
	if err != nil {
		return nil, err
	}
	return ParseDecision(raw)
}

func (s *Service) trimHistory(history []Message) []Message {
	chat := make([]llm.ChatMessage, len(history))
	for i, m := range history {
		chat[i] = llm.ChatMessage{Role: string(m.Role), Content: m.Content}
	}
	kept := s.trimmer.Trim(chat)
	return history[len(history)-len(kept):]
}

func (s *Service) lockFor(conversationID string) *sync.Mutex {
	s.mu.Lock()
	defer s.mu.Unlock()
	lock, ok := s.locks[conversationID]
	if !ok {
		lock = &sync.Mutex{}
		s.locks[conversationID] = lock
	}
	return lock
}
