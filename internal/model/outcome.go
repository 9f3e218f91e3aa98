package model

import "fmt"

type OutcomeKind string

const (
	OutcomeCommitted     OutcomeKind = "committed"
	OutcomeRequestOpened OutcomeKind = "request_opened"
	OutcomeRejected      OutcomeKind = "rejected"
	OutcomeFailed        OutcomeKind = "failed"
)

type FailureKind string

const (
	FailureNetwork               FailureKind = "network"
	FailureAuth                  FailureKind = "auth"
	FailureConflict              FailureKind = "conflict"
	FailureAllocationExhausted   FailureKind = "allocation_exhausted"
	FailureReviewRequestCreation FailureKind = "review_request_creation"
	FailureBranchCollision       FailureKind = "branch_collision"
	FailureForge                 FailureKind = "forge"
	FailureInternal              FailureKind = "internal"
	FailureCancelled             FailureKind = "cancelled"
)

// Status is the coarse result shown to visitors. Detailed kinds stay in logs.
type Status string

const (
	StatusPublished Status = "published"
	StatusPending   Status = "pending"
	StatusRejected  Status = "rejected"
	StatusFailed    Status = "failed"
)

// PublishOutcome is the terminal result of one submission.
type PublishOutcome struct {
	Kind       OutcomeKind     `json:"kind"`
	CommitRef  string          `json:"commit_ref,omitempty"`
	RequestRef string          `json:"request_ref,omitempty"`
	RequestURL string          `json:"request_url,omitempty"`
	BranchRef  string          `json:"branch_ref,omitempty"` // partial success: branch left for recovery
	Path       string          `json:"path,omitempty"`
	Token      Token           `json:"token,omitempty"`
	State      ModerationState `json:"state,omitempty"`
	Reason     RejectReason    `json:"reason,omitempty"`
	Failure    FailureKind     `json:"failure,omitempty"`
	Err        error           `json:"-"`
}

func Committed(commitRef string, rendered RenderedComment) PublishOutcome {
	return PublishOutcome{
		Kind:      OutcomeCommitted,
		CommitRef: commitRef,
		Path:      rendered.Path,
		Token:     rendered.Token,
		State:     rendered.State,
	}
}

func RequestOpened(requestRef, requestURL, branchRef string, rendered RenderedComment) PublishOutcome {
	return PublishOutcome{
		Kind:       OutcomeRequestOpened,
		RequestRef: requestRef,
		RequestURL: requestURL,
		BranchRef:  branchRef,
		Path:       rendered.Path,
		Token:      rendered.Token,
		State:      rendered.State,
	}
}

func Rejected(reason RejectReason, err error) PublishOutcome {
	return PublishOutcome{Kind: OutcomeRejected, Reason: reason, Err: err}
}

func Failed(kind FailureKind, err error) PublishOutcome {
	return PublishOutcome{Kind: OutcomeFailed, Failure: kind, Err: err}
}

// PartialSuccess reports whether work was left behind on the forge that a
// recovery task can finish.
func (o PublishOutcome) PartialSuccess() bool {
	return o.Kind == OutcomeFailed && o.Failure == FailureReviewRequestCreation && o.BranchRef != ""
}

func (o PublishOutcome) Status() Status {
	switch o.Kind {
	case OutcomeCommitted:
		if o.State == ModerationPending {
			return StatusPending
		}
		return StatusPublished
	case OutcomeRequestOpened:
		return StatusPending
	case OutcomeRejected:
		return StatusRejected
	default:
		// the comment is on a branch, an operator or the recovery worker opens the request
		if o.PartialSuccess() {
			return StatusPending
		}
		return StatusFailed
	}
}

func (o PublishOutcome) String() string {
	switch o.Kind {
	case OutcomeCommitted:
		if o.CommitRef == "" {
			return fmt.Sprintf("committed at %s", o.Path)
		}
		return fmt.Sprintf("committed %s at %s", o.CommitRef, o.Path)
	case OutcomeRequestOpened:
		return fmt.Sprintf("request %s opened from %s", o.RequestRef, o.BranchRef)
	case OutcomeRejected:
		return fmt.Sprintf("rejected: %s", o.Reason)
	default:
		if o.Err != nil {
			return fmt.Sprintf("failed (%s): %v", o.Failure, o.Err)
		}
		return fmt.Sprintf("failed (%s)", o.Failure)
	}
}
