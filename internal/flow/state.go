// Package flow implements the per-turn conversation state machine: intent
// classification, slot accumulation across turns, branch dispatch, and the
// atomic commit of a completed turn.
package flow

import (
	"time"
)

// Role identifies the author of a conversation message.
type Role string

const (
	RoleUser      Role = "user"
	RoleAssistant Role = "assistant"
)

// Message is a single entry in a conversation history. Messages are
// append-only: once added they are never reordered or deleted.
type Message struct {
	Role      Role      `json:"role"`
	Content   string    `json:"content"`
	Timestamp time.Time `json:"timestamp"`
}

// Slots are the facts collected across turns. A slot, once set to a
// non-empty value, is only ever replaced by another non-empty value.
type Slots struct {
	JobRole     string `json:"job_role,omitempty"`
	Location    string `json:"location,omitempty"`
	CompanyName string `json:"company_name,omitempty"`
}

// Complete reports whether every required slot is populated.
func (s Slots) Complete() bool {
	return s.JobRole != "" && s.Location != "" && s.CompanyName != ""
}

// Collected returns human-readable "name: value" entries for populated slots.
func (s Slots) Collected() []string {
	var out []string
	if s.JobRole != "" {
		out = append(out, "Job Role: "+s.JobRole)
	}
	if s.Location != "" {
		out = append(out, "Location: "+s.Location)
	}
	if s.CompanyName != "" {
		out = append(out, "Company: "+s.CompanyName)
	}
	return out
}

// Missing returns the names of slots that still need values.
func (s Slots) Missing() []string {
	var out []string
	if s.JobRole == "" {
		out = append(out, "job role")
	}
	if s.Location == "" {
		out = append(out, "location")
	}
	if s.CompanyName == "" {
		out = append(out, "company name")
	}
	return out
}

// State is the full persisted state of one conversation. It is owned by the
// store; the router and executor receive it for the duration of a single
// turn and must not retain it afterward.
type State struct {
	ConversationID    string    `json:"conversation_id"`
	LatestUserMessage string    `json:"latest_user_message"`
	History           []Message `json:"message_history"`
	Slots             Slots     `json:"slots"`
	Posting           string    `json:"posting,omitempty"`
	PendingFeedback   string    `json:"pending_feedback,omitempty"`
}

// NewState returns an empty state for a conversation id.
func NewState(conversationID string) *State {
	return &State{ConversationID: conversationID}
}

// AddMessage appends a message to the history.
func (st *State) AddMessage(role Role, content string) {
	st.History = append(st.History, Message{
		Role:      role,
		Content:   content,
		Timestamp: time.Now().UTC(),
	})
}

// Clone returns a deep copy. A turn works on a copy so that a failed branch
// leaves the loaded state untouched.
func (st *State) Clone() *State {
	cp := *st
	cp.History = make([]Message, len(st.History))
	copy(cp.History, st.History)
	return &cp
}

// ResetPolicy controls how much state is cleared when the user asks for a
// new posting while one already exists.
type ResetPolicy string

const (
	// ResetPosting clears only the generated posting and pending feedback.
	// Previously collected slots are kept.
	ResetPosting ResetPolicy = "posting"
	// ResetAll additionally clears every collected slot.
	ResetAll ResetPolicy = "full"
)

// Reset clears state for a fresh posting according to the policy.
func (st *State) Reset(policy ResetPolicy) {
	st.Posting = ""
	st.PendingFeedback = ""
	if policy == ResetAll {
		st.Slots = Slots{}
	}
}

// Apply merges a router decision into the state. Only non-empty extracted
// values overwrite stored ones; empty values never clear a known slot.
func (st *State) Apply(d *Decision) {
	if d.JobRole != "" {
		st.Slots.JobRole = d.JobRole
	}
	if d.Location != "" {
		st.Slots.Location = d.Location
	}
	if d.CompanyName != "" {
		st.Slots.CompanyName = d.CompanyName
	}
	if d.Feedback != "" {
		st.PendingFeedback = d.Feedback
	}
}
