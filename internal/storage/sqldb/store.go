// Package sqldb persists conversation state and job records in SQLite via
// sqlx. It is the durable side of the flow.Store and jobs.JobStore
// contracts.
package sqldb

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/jmoiron/sqlx"
	_ "modernc.org/sqlite"

	"github.com/hiredraft/hiredraft/internal/flow"
	"github.com/hiredraft/hiredraft/internal/jobs"
)

// Store is a SQLite-backed implementation of the state and job stores.
type Store struct {
	db *sqlx.DB
}

var _ flow.Store = (*Store)(nil)
var _ jobs.JobStore = (*Store)(nil)

// New opens (or creates) the database at path and initializes the schema.
// Use "file:name?mode=memory&cache=shared" for an in-memory database.
func New(path string) (*Store, error) {
	db, err := sqlx.Open("sqlite", path)
	if err != nil {
		return nil, fmt.Errorf("sqldb: open database: %w", err)
	}

	pragmas := []string{
		"PRAGMA journal_mode = WAL",
		"PRAGMA busy_timeout = 5000",
		"PRAGMA foreign_keys = ON",
	}
	for _, stmt := range pragmas {
		if _, err := db.Exec(stmt); err != nil {
			db.Close()
			return nil, fmt.Errorf("sqldb: execute pragma: %w", err)
		}
	}

	s := &Store{db: db}
	if err := s.initSchema(); err != nil {
		db.Close()
		return nil, fmt.Errorf("sqldb: initialize schema: %w", err)
	}
	return s, nil
}

// Close closes the database.
func (s *Store) Close() error {
	return s.db.Close()
}

func (s *Store) initSchema() error {
	statements := []string{
		`CREATE TABLE IF NOT EXISTS flow_states (
			conversation_id TEXT PRIMARY KEY,
			latest_user_message TEXT NOT NULL DEFAULT '',
			job_role TEXT NOT NULL DEFAULT '',
			location TEXT NOT NULL DEFAULT '',
			company_name TEXT NOT NULL DEFAULT '',
			posting TEXT NOT NULL DEFAULT '',
			pending_feedback TEXT NOT NULL DEFAULT '',
			updated_at TIMESTAMP NOT NULL
		)`,
		`CREATE TABLE IF NOT EXISTS messages (
			seq INTEGER PRIMARY KEY AUTOINCREMENT,
			id TEXT NOT NULL,
			conversation_id TEXT NOT NULL,
			role TEXT NOT NULL,
			content TEXT NOT NULL,
			created_at TIMESTAMP NOT NULL
		)`,
		`CREATE INDEX IF NOT EXISTS idx_messages_conversation
			ON messages(conversation_id, seq)`,
		`CREATE TABLE IF NOT EXISTS jobs (
			id TEXT PRIMARY KEY,
			conversation_id TEXT NOT NULL,
			status TEXT NOT NULL,
			progress_note TEXT NOT NULL DEFAULT '',
			result TEXT,
			created_at TIMESTAMP NOT NULL,
			updated_at TIMESTAMP NOT NULL
		)`,
	}
	for _, stmt := range statements {
		if _, err := s.db.Exec(stmt); err != nil {
			return err
		}
	}
	return nil
}

type stateRow struct {
	ConversationID    string    `db:"conversation_id"`
	LatestUserMessage string    `db:"latest_user_message"`
	JobRole           string    `db:"job_role"`
	Location          string    `db:"location"`
	CompanyName       string    `db:"company_name"`
	Posting           string    `db:"posting"`
	PendingFeedback   string    `db:"pending_feedback"`
	UpdatedAt         time.Time `db:"updated_at"`
}

type messageRow struct {
	Seq            int64     `db:"seq"`
	ID             string    `db:"id"`
	ConversationID string    `db:"conversation_id"`
	Role           string    `db:"role"`
	Content        string    `db:"content"`
	CreatedAt      time.Time `db:"created_at"`
}

// Load returns the state for a conversation, or a fresh default state when
// the conversation has never been seen.
func (s *Store) Load(ctx context.Context, conversationID string) (*flow.State, error) {
	var row stateRow
	err := s.db.GetContext(ctx, &row,
		`SELECT conversation_id, latest_user_message, job_role, location,
			company_name, posting, pending_feedback, updated_at
		 FROM flow_states WHERE conversation_id = ?`, conversationID)
	if errors.Is(err, sql.ErrNoRows) {
		return flow.NewState(conversationID), nil
	}
	if err != nil {
		return nil, fmt.Errorf("sqldb: load state: %w", err)
	}

	st := &flow.State{
		ConversationID:    row.ConversationID,
		LatestUserMessage: row.LatestUserMessage,
		Slots: flow.Slots{
			JobRole:     row.JobRole,
			Location:    row.Location,
			CompanyName: row.CompanyName,
		},
		Posting:         row.Posting,
		PendingFeedback: row.PendingFeedback,
	}

	var msgs []messageRow
	err = s.db.SelectContext(ctx, &msgs,
		`SELECT seq, id, conversation_id, role, content, created_at
		 FROM messages WHERE conversation_id = ? ORDER BY seq`, conversationID)
	if err != nil {
		return nil, fmt.Errorf("sqldb: load messages: %w", err)
	}
	for _, m := range msgs {
		st.History = append(st.History, flow.Message{
			Role:      flow.Role(m.Role),
			Content:   m.Content,
			Timestamp: m.CreatedAt,
		})
	}
	return st, nil
}

// Save upserts the conversation state and appends any history messages not
// yet stored. History is append-only, so the tail beyond the stored count is
// exactly the new messages from this turn.
func (s *Store) Save(ctx context.Context, st *flow.State) error {
	tx, err := s.db.BeginTxx(ctx, nil)
	if err != nil {
		return fmt.Errorf("sqldb: begin save: %w", err)
	}
	defer tx.Rollback()

	now := time.Now().UTC()
	_, err = tx.ExecContext(ctx,
		`INSERT INTO flow_states (conversation_id, latest_user_message,
			job_role, location, company_name, posting, pending_feedback, updated_at)
		 VALUES (?, ?, ?, ?, ?, ?, ?, ?)
		 ON CONFLICT(conversation_id) DO UPDATE SET
			latest_user_message = excluded.latest_user_message,
			job_role = excluded.job_role,
			location = excluded.location,
			company_name = excluded.company_name,
			posting = excluded.posting,
			pending_feedback = excluded.pending_feedback,
			updated_at = excluded.updated_at`,
		st.ConversationID, st.LatestUserMessage,
		st.Slots.JobRole, st.Slots.Location, st.Slots.CompanyName,
		st.Posting, st.PendingFeedback, now)
	if err != nil {
		return fmt.Errorf("sqldb: upsert state: %w", err)
	}

	var stored int
	if err := tx.GetContext(ctx, &stored,
		`SELECT COUNT(*) FROM messages WHERE conversation_id = ?`, st.ConversationID); err != nil {
		return fmt.Errorf("sqldb: count messages: %w", err)
	}
	for _, m := range st.History[min(stored, len(st.History)):] {
		_, err := tx.ExecContext(ctx,
			`INSERT INTO messages (id, conversation_id, role, content, created_at)
			 VALUES (?, ?, ?, ?, ?)`,
			uuid.NewString(), st.ConversationID, string(m.Role), m.Content, m.Timestamp)
		if err != nil {
			return fmt.Errorf("sqldb: append message: %w", err)
		}
	}

	if err := tx.Commit(); err != nil {
		return fmt.Errorf("sqldb: commit save: %w", err)
	}
	return nil
}

// SaveJob upserts a job snapshot. Terminal jobs stay retrievable across
// restarts; eviction is left to operators.
func (s *Store) SaveJob(ctx context.Context, job *jobs.Job) error {
	var result any
	if len(job.Result) > 0 {
		result = string(job.Result)
	}
	_, err := s.db.ExecContext(ctx,
		`INSERT INTO jobs (id, conversation_id, status, progress_note, result, created_at, updated_at)
		 VALUES (?, ?, ?, ?, ?, ?, ?)
		 ON CONFLICT(id) DO UPDATE SET
			status = excluded.status,
			progress_note = excluded.progress_note,
			result = excluded.result,
			updated_at = excluded.updated_at`,
		job.ID, job.ConversationID, string(job.Status), job.ProgressNote,
		result, job.CreatedAt, job.UpdatedAt)
	if err != nil {
		return fmt.Errorf("sqldb: save job: %w", err)
	}
	return nil
}

// GetJob loads a job snapshot by id. Returns jobs.ErrNotFound when absent.
func (s *Store) GetJob(ctx context.Context, id string) (*jobs.Job, error) {
	var row struct {
		ID             string         `db:"id"`
		ConversationID string         `db:"conversation_id"`
		Status         string         `db:"status"`
		ProgressNote   string         `db:"progress_note"`
		Result         sql.NullString `db:"result"`
		CreatedAt      time.Time      `db:"created_at"`
		UpdatedAt      time.Time      `db:"updated_at"`
	}
	err := s.db.GetContext(ctx, &row,
		`SELECT id, conversation_id, status, progress_note, result, created_at, updated_at
		 FROM jobs WHERE id = ?`, id)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, jobs.ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("sqldb: get job: %w", err)
	}
	job := &jobs.Job{
		ID:             row.ID,
		ConversationID: row.ConversationID,
		Status:         jobs.Status(row.Status),
		ProgressNote:   row.ProgressNote,
		CreatedAt:      row.CreatedAt,
		UpdatedAt:      row.UpdatedAt,
	}
	if row.Result.Valid {
		job.Result = []byte(row.Result.String)
	}
	return job, nil
}
