package remediation

import "portmap-ai/pkg/model"

// BuildCommand turns a decision into an apply_remediation command aimed at the
// highest-scoring port of the report. Monitor decisions produce no command.
func BuildCommand(ports []map[string]interface{}, d model.RemediationDecision) (model.Command, bool) {
	var verdict string
	switch d.Action {
	case model.ActionAutoRemediate:
		verdict = model.DecisionBlock
	case model.ActionPromptOperator:
		verdict = model.DecisionReview
	default:
		return nil, false
	}

	cmd := model.Command{
		"type":     model.CommandApplyRemediation,
		"decision": verdict,
		"reason":   d.Reason,
		"score":    d.Score,
		"metadata": map[string]interface{}{"mode": d.Mode},
	}
	if top := TopPort(ports); top != nil {
		cmd["connection"] = model.CloneMap(top)
	}
	return cmd, true
}

// TopPort returns the port with the highest score; the earliest one wins ties.
func TopPort(ports []map[string]interface{}) map[string]interface{} {
	var (
		best      map[string]interface{}
		bestScore float64
	)
	for _, p := range ports {
		s := ScoreOf(p["score"])
		if best == nil || s > bestScore {
			best, bestScore = p, s
		}
	}
	return best
}
