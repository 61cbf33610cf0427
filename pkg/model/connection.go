package model

import "encoding/json"

// Connection directions reported by scanners.
const (
	DirectionIncoming = "incoming"
	DirectionOutgoing = "outgoing"
	DirectionUnknown  = "unknown"
)

// MaxPayloadLen bounds the payload excerpt carried in a report.
const MaxPayloadLen = 300

// ConnectionRecord is one observed port/process pair. It is a plain value: labels are
// strings, never references back to the record.
type ConnectionRecord struct {
	Program      string  `json:"program"`
	PID          int     `json:"pid"`
	Port         int     `json:"port"`
	Protocol     string  `json:"protocol,omitempty"`
	Direction    string  `json:"direction,omitempty"`
	Flags        string  `json:"flags,omitempty"`
	Payload      string  `json:"payload,omitempty"`
	Score        float64 `json:"score"`
	BehaviorFlag string  `json:"behavior_flag,omitempty"`
	DPIFlag      string  `json:"dpi_flag,omitempty"`
}

// CapPayload truncates the payload to MaxPayloadLen bytes.
func (c *ConnectionRecord) CapPayload() {
	if len(c.Payload) > MaxPayloadLen {
		c.Payload = c.Payload[:MaxPayloadLen] + "..."
	}
}

// ConnectionFromMap converts a loosely typed JSON object (as carried inside commands)
// into a record. Fields that do not fit are left zero.
func ConnectionFromMap(m map[string]interface{}) ConnectionRecord {
	var rec ConnectionRecord
	if len(m) == 0 {
		return rec
	}
	b, err := json.Marshal(m)
	if err != nil {
		return rec
	}
	if err := json.Unmarshal(b, &rec); err != nil {
		// retry field by field so one bad value does not drop the rest
		rec = ConnectionRecord{}
		for k, v := range m {
			fb, _ := json.Marshal(map[string]interface{}{k: v})
			_ = json.Unmarshal(fb, &rec)
		}
	}
	return rec
}
