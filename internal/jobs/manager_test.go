package jobs

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/hiredraft/hiredraft/internal/flow"
)

type fakeRunner struct {
	fn func(ctx context.Context, conversationID, userMessage string, progress func(string)) (*flow.TurnResult, error)
}

func (f *fakeRunner) RunTurn(ctx context.Context, conversationID, userMessage string, progress func(string)) (*flow.TurnResult, error) {
	return f.fn(ctx, conversationID, userMessage, progress)
}

type memJobStore struct {
	mu   sync.Mutex
	jobs map[string]*Job
}

func newMemJobStore() *memJobStore {
	return &memJobStore{jobs: make(map[string]*Job)}
}

func (s *memJobStore) SaveJob(ctx context.Context, job *Job) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	cp := *job
	s.jobs[job.ID] = &cp
	return nil
}

func (s *memJobStore) GetJob(ctx context.Context, id string) (*Job, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	job, ok := s.jobs[id]
	if !ok {
		return nil, ErrNotFound
	}
	cp := *job
	return &cp, nil
}

func TestKickoffConverseLifecycle(t *testing.T) {
	runner := &fakeRunner{fn: func(ctx context.Context, conversationID, userMessage string, progress func(string)) (*flow.TurnResult, error) {
		progress("classifying intent")
		return &flow.TurnResult{Branch: flow.BranchConverse, Reply: "What role are you hiring for?"}, nil
	}}
	m, err := NewManager(runner)
	if err != nil {
		t.Fatalf("NewManager() error = %v", err)
	}

	id, err := m.Kickoff(KickoffInputs{UserMessage: "I want to hire someone"})
	if err != nil {
		t.Fatalf("Kickoff() error = %v", err)
	}
	m.Wait()

	job, err := m.Get(context.Background(), id)
	if err != nil {
		t.Fatalf("Get() error = %v", err)
	}
	if job.Status != StatusSuccess {
		t.Fatalf("Status = %q, want SUCCESS", job.Status)
	}
	if string(job.Result) != `{"chat_response":"What role are you hiring for?"}` {
		t.Errorf("Result = %s", job.Result)
	}
	if job.ProgressNote != "completed" {
		t.Errorf("ProgressNote = %q", job.ProgressNote)
	}
	if job.ConversationID == "" {
		t.Error("ConversationID not defaulted")
	}
}

func TestKickoffComposeResultShape(t *testing.T) {
	runner := &fakeRunner{fn: func(ctx context.Context, conversationID, userMessage string, progress func(string)) (*flow.TurnResult, error) {
		return &flow.TurnResult{
			Branch:  flow.BranchCompose,
			Reply:   "# Nurse at Acme Health",
			Posting: "# Nurse at Acme Health",
		}, nil
	}}
	m, err := NewManager(runner)
	if err != nil {
		t.Fatalf("NewManager() error = %v", err)
	}

	id, err := m.Kickoff(KickoffInputs{UserMessage: "nurse, Boston, Acme Health", ConversationID: "conv-1"})
	if err != nil {
		t.Fatalf("Kickoff() error = %v", err)
	}
	m.Wait()

	job, err := m.Get(context.Background(), id)
	if err != nil {
		t.Fatalf("Get() error = %v", err)
	}
	if string(job.Result) != `{"response":"# Nurse at Acme Health"}` {
		t.Errorf("Result = %s", job.Result)
	}
	if job.ConversationID != "conv-1" {
		t.Errorf("ConversationID = %q", job.ConversationID)
	}
}

func TestKickoffFailure(t *testing.T) {
	runner := &fakeRunner{fn: func(ctx context.Context, conversationID, userMessage string, progress func(string)) (*flow.TurnResult, error) {
		return nil, errors.New("upstream unavailable")
	}}
	m, err := NewManager(runner)
	if err != nil {
		t.Fatalf("NewManager() error = %v", err)
	}

	id, err := m.Kickoff(KickoffInputs{UserMessage: "hello"})
	if err != nil {
		t.Fatalf("Kickoff() error = %v", err)
	}
	m.Wait()

	job, err := m.Get(context.Background(), id)
	if err != nil {
		t.Fatalf("Get() error = %v", err)
	}
	if job.Status != StatusFailure {
		t.Errorf("Status = %q, want FAILURE", job.Status)
	}
	if job.ProgressNote != "upstream unavailable" {
		t.Errorf("ProgressNote = %q", job.ProgressNote)
	}
	if len(job.Result) != 0 {
		t.Errorf("Result = %s, want empty", job.Result)
	}
}

func TestKickoffTimeout(t *testing.T) {
	runner := &fakeRunner{fn: func(ctx context.Context, conversationID, userMessage string, progress func(string)) (*flow.TurnResult, error) {
		<-ctx.Done()
		return nil, ctx.Err()
	}}
	m, err := NewManager(runner, WithJobTimeout(20*time.Millisecond))
	if err != nil {
		t.Fatalf("NewManager() error = %v", err)
	}

	id, err := m.Kickoff(KickoffInputs{UserMessage: "hello"})
	if err != nil {
		t.Fatalf("Kickoff() error = %v", err)
	}
	m.Wait()

	job, err := m.Get(context.Background(), id)
	if err != nil {
		t.Fatalf("Get() error = %v", err)
	}
	if job.Status != StatusTimeout {
		t.Errorf("Status = %q, want TIMEOUT", job.Status)
	}
}

func TestKickoffRejectsEmptyMessage(t *testing.T) {
	m, err := NewManager(&fakeRunner{})
	if err != nil {
		t.Fatalf("NewManager() error = %v", err)
	}
	if _, err := m.Kickoff(KickoffInputs{UserMessage: "   "}); err == nil {
		t.Error("Kickoff() accepted blank message")
	}
}

func TestGetUnknownJob(t *testing.T) {
	m, err := NewManager(&fakeRunner{})
	if err != nil {
		t.Fatalf("NewManager() error = %v", err)
	}
	if _, err := m.Get(context.Background(), "nope"); !errors.Is(err, ErrNotFound) {
		t.Errorf("Get() error = %v, want ErrNotFound", err)
	}
}

func TestTerminalJobsAreImmutable(t *testing.T) {
	runner := &fakeRunner{fn: func(ctx context.Context, conversationID, userMessage string, progress func(string)) (*flow.TurnResult, error) {
		return &flow.TurnResult{Branch: flow.BranchConverse, Reply: "done"}, nil
	}}
	m, err := NewManager(runner)
	if err != nil {
		t.Fatalf("NewManager() error = %v", err)
	}

	id, err := m.Kickoff(KickoffInputs{UserMessage: "hello"})
	if err != nil {
		t.Fatalf("Kickoff() error = %v", err)
	}
	m.Wait()

	// Late transitions and notes against a terminal job must be dropped.
	m.transition(id, StatusRunning, "late transition")
	m.setNote(id, "late note")

	job, err := m.Get(context.Background(), id)
	if err != nil {
		t.Fatalf("Get() error = %v", err)
	}
	if job.Status != StatusSuccess {
		t.Errorf("Status = %q after late transition", job.Status)
	}
	if job.ProgressNote != "completed" {
		t.Errorf("ProgressNote = %q after late note", job.ProgressNote)
	}
}

func TestRepeatedPollsAreStable(t *testing.T) {
	runner := &fakeRunner{fn: func(ctx context.Context, conversationID, userMessage string, progress func(string)) (*flow.TurnResult, error) {
		return &flow.TurnResult{Branch: flow.BranchConverse, Reply: "done"}, nil
	}}
	m, err := NewManager(runner)
	if err != nil {
		t.Fatalf("NewManager() error = %v", err)
	}

	id, err := m.Kickoff(KickoffInputs{UserMessage: "hello"})
	if err != nil {
		t.Fatalf("Kickoff() error = %v", err)
	}
	m.Wait()

	first, err := m.Get(context.Background(), id)
	if err != nil {
		t.Fatalf("Get() error = %v", err)
	}
	second, err := m.Get(context.Background(), id)
	if err != nil {
		t.Fatalf("Get() error = %v", err)
	}
	if first.Status != second.Status || string(first.Result) != string(second.Result) {
		t.Errorf("polls disagree: %+v vs %+v", first, second)
	}
}

func TestGetFallsBackToStore(t *testing.T) {
	store := newMemJobStore()
	runner := &fakeRunner{fn: func(ctx context.Context, conversationID, userMessage string, progress func(string)) (*flow.TurnResult, error) {
		return &flow.TurnResult{Branch: flow.BranchConverse, Reply: "done"}, nil
	}}
	m, err := NewManager(runner, WithJobStore(store))
	if err != nil {
		t.Fatalf("NewManager() error = %v", err)
	}

	id, err := m.Kickoff(KickoffInputs{UserMessage: "hello"})
	if err != nil {
		t.Fatalf("Kickoff() error = %v", err)
	}
	m.Wait()

	// Simulate a restart: the in-memory table is gone, the store is not.
	m.mu.Lock()
	delete(m.jobs, id)
	m.mu.Unlock()

	job, err := m.Get(context.Background(), id)
	if err != nil {
		t.Fatalf("Get() after eviction error = %v", err)
	}
	if job.Status != StatusSuccess {
		t.Errorf("Status = %q from store", job.Status)
	}
	if string(job.Result) != `{"chat_response":"done"}` {
		t.Errorf("Result = %s from store", job.Result)
	}
}

func TestAdvanceRefusesBackwardMoves(t *testing.T) {
	j := &Job{Status: StatusRunning}
	if j.advance(StatusPending) {
		t.Error("advance() allowed RUNNING -> PENDING")
	}
	if !j.advance(StatusSuccess) {
		t.Error("advance() refused RUNNING -> SUCCESS")
	}
	if j.advance(StatusRunning) {
		t.Error("advance() allowed leaving a terminal status")
	}
}
