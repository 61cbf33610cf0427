package model

// Node roles.
const (
	RoleMaster       = "master"
	RoleWorker       = "worker"
	RoleOrchestrator = "orchestrator"
)

// StatusRegistered is the status a node carries until its first heartbeat.
const StatusRegistered = "registered"

// Node captures a registered fleet member and its liveness bookkeeping.
type Node struct {
	NodeID   string                 `json:"node_id"`
	Role     string                 `json:"role"`
	Address  string                 `json:"address"`
	Meta     map[string]interface{} `json:"meta"`
	LastSeen int64                  `json:"last_seen"` // unix seconds
	Status   string                 `json:"status"`
}

// Clone returns a copy whose meta map is not shared with n.
func (n Node) Clone() Node {
	out := n
	out.Meta = CloneMap(n.Meta)
	return out
}

// CloneMap copies a JSON-style map, recursing into nested maps and slices.
func CloneMap(m map[string]interface{}) map[string]interface{} {
	out := make(map[string]interface{}, len(m))
	for k, v := range m {
		out[k] = cloneValue(v)
	}
	return out
}

func cloneValue(v interface{}) interface{} {
	switch t := v.(type) {
	case map[string]interface{}:
		return CloneMap(t)
	case []interface{}:
		out := make([]interface{}, len(t))
		for i := range t {
			out[i] = cloneValue(t[i])
		}
		return out
	default:
		return v
	}
}
