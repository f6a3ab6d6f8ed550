package jobs

import (
	"context"
	"encoding/json"
	"errors"
	"log/slog"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/hiredraft/hiredraft/internal/flow"
)

const defaultJobTimeout = 5 * time.Minute

// TurnRunner runs one conversation turn. flow.Service satisfies this.
type TurnRunner interface {
	RunTurn(ctx context.Context, conversationID, userMessage string, progress func(string)) (*flow.TurnResult, error)
}

// KickoffInputs is a validated kickoff request.
type KickoffInputs struct {
	UserMessage    string
	ConversationID string
}

// Manager owns the job table. The table is the only structure shared
// between workers and pollers: writes go through the manager under its
// lock with exactly one worker per job, reads return copies.
type Manager struct {
	runner  TurnRunner
	store   JobStore
	timeout time.Duration
	logger  *slog.Logger

	mu   sync.RWMutex
	jobs map[string]*Job
	wg   sync.WaitGroup
}

// ManagerOption configures a Manager.
type ManagerOption func(*Manager)

// WithJobStore persists job snapshots for retrieval across restarts.
func WithJobStore(store JobStore) ManagerOption {
	return func(m *Manager) { m.store = store }
}

// WithJobTimeout bounds how long one worker may run a turn.
func WithJobTimeout(d time.Duration) ManagerOption {
	return func(m *Manager) {
		if d > 0 {
			m.timeout = d
		}
	}
}

// WithManagerLogger sets the logger.
func WithManagerLogger(logger *slog.Logger) ManagerOption {
	return func(m *Manager) { m.logger = logger }
}

// NewManager builds a job manager over the turn runner.
func NewManager(runner TurnRunner, opts ...ManagerOption) (*Manager, error) {
	if runner == nil {
		return nil, errors.New("jobs: turn runner must not be nil")
	}
	m := &Manager{
		runner:  runner,
		timeout: defaultJobTimeout,
		logger:  slog.Default(),
		jobs:    make(map[string]*Job),
	}
	for _, opt := range opts {
		opt(m)
	}
	return m, nil
}

// Kickoff validates the request, registers a PENDING job, starts its worker,
// and returns the fresh job id without waiting for completion.
func (m *Manager) Kickoff(inputs KickoffInputs) (string, error) {
	if strings.TrimSpace(inputs.UserMessage) == "" {
		return "", errors.New("jobs: inputs.user_message must not be empty")
	}
	if strings.TrimSpace(inputs.ConversationID) == "" {
		inputs.ConversationID = uuid.NewString()
	}

	now := time.Now().UTC()
	job := &Job{
		ID:             uuid.NewString(),
		ConversationID: inputs.ConversationID,
		Status:         StatusPending,
		CreatedAt:      now,
		UpdatedAt:      now,
	}

	m.mu.Lock()
	m.jobs[job.ID] = job
	m.mu.Unlock()
	m.persist(job.ID)

	m.logger.Info("job kicked off",
		slog.String("job_id", job.ID),
		slog.String("conversation_id", job.ConversationID),
	)

	m.wg.Add(1)
	go m.run(job.ID, inputs)
	return job.ID, nil
}

// Get returns a read-only snapshot of a job. Jobs evicted from memory (for
// example after a restart) are looked up in the persistent store.
func (m *Manager) Get(ctx context.Context, id string) (Job, error) {
	m.mu.RLock()
	job, ok := m.jobs[id]
	if ok {
		snapshot := *job
		m.mu.RUnlock()
		return snapshot, nil
	}
	m.mu.RUnlock()

	if m.store != nil {
		stored, err := m.store.GetJob(ctx, id)
		if err != nil {
			return Job{}, err
		}
		return *stored, nil
	}
	return Job{}, ErrNotFound
}

// Wait blocks until all workers have finished. Used by shutdown and tests.
func (m *Manager) Wait() {
	m.wg.Wait()
}

func (m *Manager) run(id string, inputs KickoffInputs) {
	defer m.wg.Done()

	// Workers outlive the kickoff request on purpose; a caller that stops
	// polling does not cancel the turn.
	ctx, cancel := context.WithTimeout(context.Background(), m.timeout)
	defer cancel()

	m.transition(id, StatusRunning, "processing turn")

	result, err := m.runner.RunTurn(ctx, inputs.ConversationID, inputs.UserMessage, func(note string) {
		m.setNote(id, note)
	})
	if err != nil {
		if errors.Is(err, context.DeadlineExceeded) {
			m.transition(id, StatusTimeout, "turn exceeded deadline")
		} else {
			m.transition(id, StatusFailure, err.Error())
		}
		m.logger.Error("job failed", slog.String("job_id", id), slog.String("error", err.Error()))
		return
	}

	payload := resultPayload(result)
	raw, err := json.Marshal(payload)
	if err != nil {
		m.transition(id, StatusFailure, "encode result: "+err.Error())
		return
	}

	m.mu.Lock()
	if job, ok := m.jobs[id]; ok && job.advance(StatusSuccess) {
		job.Result = raw
		job.ProgressNote = "completed"
	}
	m.mu.Unlock()
	m.persist(id)

	m.logger.Info("job completed",
		slog.String("job_id", id),
		slog.String("branch", string(result.Branch)),
	)
}

// resultPayload keys the answer by the branch that produced it, matching
// the two field names remote decoders know about.
func resultPayload(result *flow.TurnResult) map[string]string {
	if result.Branch == flow.BranchConverse {
		return map[string]string{"chat_response": result.Reply}
	}
	return map[string]string{"response": result.Posting}
}

func (m *Manager) transition(id string, next Status, note string) {
	m.mu.Lock()
	if job, ok := m.jobs[id]; ok && job.advance(next) {
		job.ProgressNote = note
	}
	m.mu.Unlock()
	m.persist(id)
}

func (m *Manager) setNote(id string, note string) {
	m.mu.Lock()
	if job, ok := m.jobs[id]; ok && !job.Status.Terminal() {
		job.ProgressNote = note
		job.UpdatedAt = time.Now().UTC()
	}
	m.mu.Unlock()
}

func (m *Manager) persist(id string) {
	if m.store == nil {
		return
	}
	m.mu.RLock()
	job, ok := m.jobs[id]
	var snapshot Job
	if ok {
		snapshot = *job
	}
	m.mu.RUnlock()
	if !ok {
		return
	}
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	if err := m.store.SaveJob(ctx, &snapshot); err != nil {
		m.logger.Error("persist job snapshot", slog.String("job_id", id), slog.String("error", err.Error()))
	}
}
