package model

// ModerationState is persisted in the comment metadata and picks its directory.
type ModerationState string

const (
	ModerationApproved ModerationState = "approved"
	ModerationPending  ModerationState = "pending"
)

func (s ModerationState) Valid() bool {
	return s == ModerationApproved || s == ModerationPending
}

type DecisionKind string

const (
	DecisionAutoApprove DecisionKind = "auto_approve"
	DecisionHold        DecisionKind = "hold"
	DecisionReject      DecisionKind = "reject"
)

type RejectReason string

const (
	ReasonInvalidSubmission RejectReason = "invalid_submission"
	ReasonUnknownContent    RejectReason = "unknown_content"
	ReasonBlockedTerm       RejectReason = "blocked_term"
	ReasonBodyTooLong       RejectReason = "body_too_long"
)

type ModerationDecision struct {
	Kind   DecisionKind
	Reason RejectReason // set for DecisionReject only
}

func AutoApprove() ModerationDecision {
	return ModerationDecision{Kind: DecisionAutoApprove}
}

func Hold() ModerationDecision {
	return ModerationDecision{Kind: DecisionHold}
}

func Reject(reason RejectReason) ModerationDecision {
	return ModerationDecision{Kind: DecisionReject, Reason: reason}
}

func (d ModerationDecision) Rejected() bool {
	return d.Kind == DecisionReject
}

// State maps a publishable decision to the state written into the file.
func (d ModerationDecision) State() ModerationState {
	if d.Kind == DecisionAutoApprove {
		return ModerationApproved
	}
	return ModerationPending
}
