package model

// TelemetryReport is what a worker submits to the master once per cycle.
type TelemetryReport struct {
	NodeID    string             `json:"node_id"`
	Timestamp int64              `json:"timestamp"`
	Ports     []ConnectionRecord `json:"ports"`
	Anomalies []string           `json:"anomalies"`
	Score     float64            `json:"score"`
}

// Ack is the master's best-effort reply to a telemetry report.
type Ack struct {
	Status      string               `json:"status"`
	Remediation *RemediationDecision `json:"remediation,omitempty"`
	Error       string               `json:"error,omitempty"`
}
