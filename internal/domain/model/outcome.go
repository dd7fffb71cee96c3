package model

// Response is the outbound action a handler or guard produces. An empty Text
// means no reply is sent (a no-op from the user's point of view).
type Response struct {
	Text string `json:"text"`
}

// RejectReason is a stable reason code attached to rejected updates.
type RejectReason string

const (
	ReasonUnauthorized   RejectReason = "unauthorized"
	ReasonRateLimited    RejectReason = "rate_limited"
	ReasonUnknownCommand RejectReason = "unknown_command"
)

// FailureKind distinguishes handler errors from deadline expiries for alerting.
type FailureKind string

const (
	FailureHandler FailureKind = "handler_error"
	FailureTimeout FailureKind = "timeout"
)

// MiddlewareVerdict tags a guard's decision.
type MiddlewareVerdict int

const (
	VerdictAllow MiddlewareVerdict = iota
	VerdictReject
	VerdictShortCircuit
)

// MiddlewareResult is produced fresh per update by each guard.
type MiddlewareResult struct {
	Verdict MiddlewareVerdict
	Reason  RejectReason // set for VerdictReject
	Reply   Response     // set for VerdictShortCircuit
}

func Allow() MiddlewareResult {
	return MiddlewareResult{Verdict: VerdictAllow}
}

func Reject(reason RejectReason) MiddlewareResult {
	return MiddlewareResult{Verdict: VerdictReject, Reason: reason}
}

func ShortCircuit(reply Response) MiddlewareResult {
	return MiddlewareResult{Verdict: VerdictShortCircuit, Reply: reply}
}

// OutcomeKind tags the terminal state of one update's processing.
type OutcomeKind int

const (
	OutcomeHandled OutcomeKind = iota
	OutcomeRejected
	OutcomeFailed
)

func (k OutcomeKind) String() string {
	switch k {
	case OutcomeHandled:
		return "handled"
	case OutcomeRejected:
		return "rejected"
	case OutcomeFailed:
		return "failed"
	}
	return "unknown"
}

// DispatchOutcome is produced exactly once per update and handed to the
// outcome sinks for replies, logging and metrics.
type DispatchOutcome struct {
	Kind    OutcomeKind
	Reply   Response     // for OutcomeHandled
	Reason  RejectReason // for OutcomeRejected
	Failure FailureKind  // for OutcomeFailed
	Err     error        // for OutcomeFailed
}

func Handled(reply Response) DispatchOutcome {
	return DispatchOutcome{Kind: OutcomeHandled, Reply: reply}
}

func Rejected(reason RejectReason) DispatchOutcome {
	return DispatchOutcome{Kind: OutcomeRejected, Reason: reason}
}

func Failed(kind FailureKind, err error) DispatchOutcome {
	return DispatchOutcome{Kind: OutcomeFailed, Failure: kind, Err: err}
}
