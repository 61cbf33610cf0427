package model

// Command types understood by workers.
const (
	CommandScanNow          = "scan_now"
	CommandSetInterval      = "set_interval"
	CommandSetAutolearn     = "set_autolearn"
	CommandReloadConfig     = "reload_config"
	CommandApplyRemediation = "apply_remediation"
)

// Command is a queued instruction for a node. It is kept as a raw JSON object so the
// orchestrator delivers exactly what was enqueued; only "type" is interpreted.
type Command map[string]interface{}

// Type returns the command type, or "" when absent or not a string.
func (c Command) Type() string {
	t, _ := c["type"].(string)
	return t
}

// Clone copies the command so queued values never alias caller maps.
func (c Command) Clone() Command {
	return Command(CloneMap(c))
}
