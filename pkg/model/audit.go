package model

import "time"

// TelemetryEvent is the compact audit line written for every accepted report.
type TelemetryEvent struct {
	Timestamp   time.Time                `json:"ts"`
	NodeID      string                   `json:"node_id"`
	Score       float64                  `json:"score"`
	Anomalies   []interface{}            `json:"anomalies"`
	PortsSample []map[string]interface{} `json:"ports_sample"`
}

// RemediationEvent records a policy decision for the audit trail.
type RemediationEvent struct {
	ID        string    `json:"id" gorm:"primaryKey;size:36"`
	Timestamp time.Time `json:"timestamp" gorm:"index"`
	NodeID    string    `json:"node_id" gorm:"index;size:128"`
	Action    string    `json:"action" gorm:"size:32"`
	Reason    string    `json:"reason" gorm:"size:128"`
	Score     float64   `json:"score"`
	Mode      string    `json:"mode" gorm:"size:16"`
	Port      *int      `json:"port,omitempty"`
	Program   string    `json:"program,omitempty" gorm:"size:256"`
}

// State is the orchestrator's persisted snapshot.
type State struct {
	Nodes    map[string]Node      `json:"nodes"`
	Commands map[string][]Command `json:"commands"`
}

// RegistryEvent is broadcast to dashboard subscribers after a registry mutation.
type RegistryEvent struct {
	Type      string    `json:"type"` // register/heartbeat/enqueue
	NodeID    string    `json:"node_id"`
	Status    string    `json:"status,omitempty"`
	Command   string    `json:"command,omitempty"`
	Drained   int       `json:"drained,omitempty"`
	Timestamp time.Time `json:"timestamp"`
}
