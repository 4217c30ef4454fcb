package gating

import "strings"

// Outcome is the kind of decision produced by one gating evaluation
type Outcome string

const (
	OutcomeAllowed         Outcome = "allowed"
	OutcomeDeniedRetryable Outcome = "denied_retryable"
	OutcomeDeniedEscalate  Outcome = "denied_escalate"
)

// Reason distinguishes why a retryable denial was produced
type Reason string

const (
	ReasonNone              Reason = ""
	ReasonRuleDenied        Reason = "rule_denied"
	ReasonOracleUnavailable Reason = "oracle_unavailable"
)

// User-facing messages
const (
	DefaultDenyMessage       = "Action not allowed by policy."
	EscalationMessage        = "Escalating to human agent."
	OracleUnavailableMessage = "The policy check is temporarily unavailable. Please try again."
)

// Decision is the synchronous result of Engine.Evaluate
type Decision struct {
	Outcome    Outcome `json:"outcome"`
	Message    string  `json:"message,omitempty"`
	RetryCount int     `json:"retry_count"`
	Reason     Reason  `json:"reason,omitempty"`
}

// Allowed returns an approving decision
func Allowed(retryCount int) *Decision {
	return &Decision{Outcome: OutcomeAllowed, RetryCount: retryCount}
}

// DeniedRetryable returns a denial the user may retry
func DeniedRetryable(message string, retryCount int, reason Reason) *Decision {
	return &Decision{
		Outcome:    OutcomeDeniedRetryable,
		Message:    message,
		RetryCount: retryCount,
		Reason:     reason,
	}
}

// DeniedEscalate returns a denial that hands the user to a human agent
func DeniedEscalate(retryCount int) *Decision {
	return &Decision{
		Outcome:    OutcomeDeniedEscalate,
		Message:    EscalationMessage,
		RetryCount: retryCount,
		Reason:     ReasonRuleDenied,
	}
}

// IsAllowed reports whether the caller may perform the side effect
func (d *Decision) IsAllowed() bool {
	return d != nil && d.Outcome == OutcomeAllowed
}

// IsEscalated reports whether the user was handed to a human agent
func (d *Decision) IsEscalated() bool {
	return d != nil && d.Outcome == OutcomeDeniedEscalate
}

// CombineRuleText renders rule conditions one per line, preserving order
func CombineRuleText(conditions []string) string {
	lines := make([]string, 0, len(conditions))
	for _, c := range conditions {
		lines = append(lines, "> "+strings.TrimSpace(c))
	}
	return strings.Join(lines, "\n")
}
