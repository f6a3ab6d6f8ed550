package flow

import "fmt"

// ClassificationError means the classifier failed or returned an unusable
// shape. The turn is aborted before any merge, so persisted state is
// unchanged; callers should surface a generic retryable failure.
type ClassificationError struct {
	Err error
}

func (e *ClassificationError) Error() string {
	return fmt.Sprintf("flow: classification failed: %v", e.Err)
}

func (e *ClassificationError) Unwrap() error { return e.Err }

// BranchExecutionError means the selected branch's generation or retrieval
// sub-task failed. The pre-branch posting and slots are preserved; no
// partial artifact is committed.
type BranchExecutionError struct {
	Branch Branch
	Err    error
}

func (e *BranchExecutionError) Error() string {
	return fmt.Sprintf("flow: branch %s failed: %v", e.Branch, e.Err)
}

func (e *BranchExecutionError) Unwrap() error { return e.Err }
