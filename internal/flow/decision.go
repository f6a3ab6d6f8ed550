package flow

import (
	"bytes"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"strings"
)

// Intent is the classified purpose of a user turn.
type Intent string

const (
	// IntentConversation covers greetings, questions, and turns where
	// required slots are still missing.
	IntentConversation Intent = "conversation"
	// IntentJobCreation means the user wants a posting generated (or wants
	// to start over with a new one).
	IntentJobCreation Intent = "job_creation"
	// IntentRefinement means the user is giving feedback on an existing
	// posting.
	IntentRefinement Intent = "refinement"
)

// Decision is the structured output of one classification call. It is
// transient: produced once per turn and consumed immediately by the router.
type Decision struct {
	Intent      Intent `json:"user_intent"`
	JobRole     string `json:"job_role,omitempty"`
	Location    string `json:"location,omitempty"`
	CompanyName string `json:"company_name,omitempty"`
	Feedback    string `json:"feedback,omitempty"`
	Reasoning   string `json:"reasoning"`
}

// ParseDecision decodes and validates the classifier's JSON output. The
// schema is enforced strictly: unknown fields, trailing data, or an intent
// outside the enum are all rejected so the router never acts on a fabricated
// or half-parsed decision.
func ParseDecision(raw string) (*Decision, error) {
	var d Decision
	dec := json.NewDecoder(bytes.NewBufferString(strings.TrimSpace(raw)))
	dec.DisallowUnknownFields()
	if err := dec.Decode(&d); err != nil {
		return nil, fmt.Errorf("flow: decode decision: %w", err)
	}
	if err := dec.Decode(&struct{}{}); !errors.Is(err, io.EOF) {
		if err == nil {
			return nil, errors.New("flow: decode decision: multiple JSON values")
		}
		return nil, fmt.Errorf("flow: decode decision trailing data: %w", err)
	}
	switch d.Intent {
	case IntentConversation, IntentJobCreation, IntentRefinement:
	default:
		return nil, fmt.Errorf("flow: unknown intent %q", d.Intent)
	}
	d.JobRole = strings.TrimSpace(d.JobRole)
	d.Location = strings.TrimSpace(d.Location)
	d.CompanyName = strings.TrimSpace(d.CompanyName)
	d.Feedback = strings.TrimSpace(d.Feedback)
	return &d, nil
}
