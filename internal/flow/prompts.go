package flow

import (
	"fmt"
	"strings"

	"github.com/hiredraft/hiredraft/internal/llm"
	"github.com/hiredraft/hiredraft/internal/research"
)

func orNotCollected(v string) string {
	if v == "" {
		return "Not yet collected"
	}
	return v
}

func historyTranscript(history []Message) string {
	if len(history) == 0 {
		return "(no prior messages)"
	}
	var b strings.Builder
	for _, m := range history {
		fmt.Fprintf(&b, "%s: %s\n", m.Role, m.Content)
	}
	return b.String()
}

// classifyPrompt asks the model to classify intent and extract slots. The
// already-collected values are included so the classifier distinguishes
// "still missing" from "already known" and never nulls out known values.
func classifyPrompt(st *State) string {
	hasPosting := "No posting yet"
	if st.Posting != "" {
		hasPosting = "Yes - a posting has already been generated"
	}
	return strings.Join([]string{
		"You are the router for a job posting assistant. Analyze the user's",
		"message and the conversation history, extract job creation details,",
		"and determine intent.",
		"",
		"Extract any of these fields mentioned so far:",
		"- job_role: the job title being created",
		"- location: where the job is based",
		"- company_name: the company the job is for",
		"",
		"Already collected values (preserve these, do NOT return them empty):",
		"- job_role: " + orNotCollected(st.Slots.JobRole),
		"- location: " + orNotCollected(st.Slots.Location),
		"- company_name: " + orNotCollected(st.Slots.CompanyName),
		"",
		"Existing posting: " + hasPosting,
		"",
		"Routing rules:",
		`- "refinement" if a posting already exists and the user is giving`,
		"  feedback or requesting changes. Also fill the feedback field with a",
		"  concise summary of the requested changes.",
		`- "job_creation" if all three fields are populated and no posting`,
		"  exists yet, or if the user wants a completely new posting for a",
		"  different role or company.",
		`- "conversation" if any field is still missing and no posting exists.`,
		"  When in doubt between content and conversation, prefer",
		`  "conversation" and ask a clarifying question.`,
		"",
		"Current user message:",
		st.LatestUserMessage,
		"",
		"Conversation history:",
		historyTranscript(st.History),
		"",
		"Return JSON only with keys user_intent, job_role, location,",
		"company_name, feedback, reasoning. Omit fields you did not extract.",
	}, "\n")
}

// conversePrompt produces the gather/acknowledgment reply.
func conversePrompt(st *State) string {
	collected := "Nothing yet"
	if c := st.Slots.Collected(); len(c) > 0 {
		collected = strings.Join(c, ", ")
	}
	missing := "Nothing - all details are collected"
	if m := st.Slots.Missing(); len(m) > 0 {
		missing = strings.Join(m, ", ")
	}
	return strings.Join([]string{
		"You are a friendly HR assistant helping the user create a job",
		"posting. You need three details: job role, location, and company",
		"name.",
		"",
		"Current user message:",
		st.LatestUserMessage,
		"",
		"Conversation history:",
		historyTranscript(st.History),
		"",
		"Already collected: " + collected,
		"Still needed: " + missing,
		"",
		"Respond naturally, acknowledge what was already provided, and ask",
		"for the missing details. Be professional and concise. If the user",
		"has not mentioned job creation yet, introduce yourself and explain",
		"what you can do.",
	}, "\n")
}

// composePrompt generates a full posting, optionally grounded in research
// findings. When findings are present the output must follow the citation
// contract checked by research.ValidateCitations.
func composePrompt(st *State, findings *research.Findings) string {
	parts := []string{
		fmt.Sprintf("Write a complete job posting for a %s at %s in %s.",
			st.Slots.JobRole, st.Slots.CompanyName, st.Slots.Location),
		"",
		"Use markdown with sections for the role summary, responsibilities,",
		"requirements, and benefits.",
	}
	if findings != nil && !findings.Empty() {
		parts = append(parts,
			"",
			"Ground every factual claim about the company or market in the",
			"research findings below, citing them with numbered markers like",
			"[1]. End the posting with a \"Sources:\" section listing every",
			"cited number as \"[n] title - url\". Do not cite numbers that",
			"have no source entry.",
			"",
			"Research findings:",
			findings.Transcript(),
		)
	}
	return strings.Join(parts, "\n")
}

// revisePrompt rewrites an existing posting per feedback. The model must
// return a complete replacement, not a diff.
func revisePrompt(st *State) string {
	return strings.Join([]string{
		"You are an expert HR editor refining a job posting based on",
		"feedback.",
		"",
		"Current job posting:",
		st.Posting,
		"",
		"User feedback:",
		st.PendingFeedback,
		"",
		"Make ONLY the changes the feedback asks for. Preserve the overall",
		"structure and every section the feedback does not touch. Return the",
		"complete updated posting in markdown.",
	}, "\n")
}

func promptMessage(content string) llm.ChatMessage {
	return llm.ChatMessage{Role: "user", Content: content}
}
