// Package remediation maps risk scores to remediation decisions and commands.
// Everything here is pure: no I/O, no clocks.
package remediation

import (
	"encoding/json"
	"math"
	"strconv"
	"strings"

	"portmap-ai/pkg/model"
)

// DefaultThreshold is used when configuration does not set one.
const DefaultThreshold = 0.75

const unknownNode = "unknown-node"

// NormalizeMode returns prompt for anything other than prompt or silent.
func NormalizeMode(mode string) string {
	switch m := strings.ToLower(strings.TrimSpace(mode)); m {
	case model.ModePrompt, model.ModeSilent:
		return m
	default:
		return model.ModePrompt
	}
}

// Decide applies the threshold and mode to a score.
func Decide(nodeID string, score float64, mode string, threshold float64) model.RemediationDecision {
	mode = NormalizeMode(mode)
	if nodeID == "" {
		nodeID = unknownNode
	}
	d := model.RemediationDecision{
		NodeID: nodeID,
		Score:  score,
		Mode:   mode,
	}
	switch {
	case score < threshold:
		d.Action = model.ActionMonitor
		d.Reason = "score<threshold"
	case mode == model.ModeSilent:
		d.Action = model.ActionAutoRemediate
		d.Reason = "silent_mode"
		d.AutoApplied = true
	default:
		d.Action = model.ActionPromptOperator
		d.Reason = "threshold_exceeded"
	}
	return d
}

// DecidePayload decides for a raw telemetry object. A missing or unparseable score counts as 0.
func DecidePayload(payload map[string]interface{}, mode string, threshold float64) model.RemediationDecision {
	nodeID, _ := payload["node_id"].(string)
	return Decide(nodeID, ScoreOf(payload["score"]), mode, threshold)
}

// ScoreOf converts a loosely typed JSON value into a score. It never fails; anything
// it cannot read, including NaN and infinities, is 0.
func ScoreOf(v interface{}) float64 {
	var f float64
	switch t := v.(type) {
	case float64:
		f = t
	case float32:
		f = float64(t)
	case int:
		f = float64(t)
	case int64:
		f = float64(t)
	case json.Number:
		n, err := t.Float64()
		if err != nil {
			return 0
		}
		f = n
	case string:
		n, err := strconv.ParseFloat(strings.TrimSpace(t), 64)
		if err != nil {
			return 0
		}
		f = n
	default:
		return 0
	}
	if math.IsNaN(f) || math.IsInf(f, 0) {
		return 0
	}
	return f
}
