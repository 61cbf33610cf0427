package model

// Remediation actions.
const (
	ActionMonitor        = "monitor"
	ActionPromptOperator = "prompt_operator"
	ActionAutoRemediate  = "auto_remediate"
)

// Remediation modes.
const (
	ModePrompt = "prompt"
	ModeSilent = "silent"
)

// Firewall decisions carried by apply_remediation commands.
const (
	DecisionBlock  = "block"
	DecisionReview = "review"
)

// RemediationDecision is the outcome of applying the remediation policy to one report.
type RemediationDecision struct {
	Action      string  `json:"action"`
	NodeID      string  `json:"node_id"`
	Score       float64 `json:"score"`
	Reason      string  `json:"reason"`
	Mode        string  `json:"mode"`
	AutoApplied bool    `json:"auto_applied"`
}
