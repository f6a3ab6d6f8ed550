package flow

// Branch names the single terminal handler that runs for one turn.
type Branch string

const (
	// BranchConverse produces a short conversational reply, typically
	// asking for still-missing slots.
	BranchConverse Branch = "converse"
	// BranchCompose generates a new posting from the collected slots.
	BranchCompose Branch = "compose"
	// BranchRevise rewrites the existing posting per user feedback.
	BranchRevise Branch = "revise"
)

// Route selects exactly one branch from the merged state and the decision.
// It is a pure function: no I/O, no mutation.
//
// startOver is true when the user asked for a new posting while one already
// exists; the caller resets state per its policy and routes again.
//
// A refinement intent without an existing posting falls back to the
// conversational branch: there is nothing to revise, so the cheap,
// reversible branch wins.
func Route(st *State, d *Decision) (branch Branch, startOver bool) {
	switch d.Intent {
	case IntentRefinement:
		if st.Posting != "" {
			return BranchRevise, false
		}
		return BranchConverse, false
	case IntentJobCreation:
		startOver = st.Posting != ""
		if st.Slots.Complete() {
			return BranchCompose, startOver
		}
		return BranchConverse, startOver
	default:
		return BranchConverse, false
	}
}
