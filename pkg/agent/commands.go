package agent

import (
	"context"
	"math"
	"strconv"
	"strings"
	"time"

	"portmap-ai/pkg/model"
)

// ProcessCommands applies orchestrator commands in order and reports whether an
// extra scan was requested.
func (a *Agent) ProcessCommands(ctx context.Context, cmds []model.Command) bool {
	extraScan := false
	for _, cmd := range cmds {
		switch cmd.Type() {
		case model.CommandScanNow:
			extraScan = true
		case model.CommandSetInterval:
			n, ok := intValue(cmd["value"])
			if !ok || n <= 0 || n > maxIntervalSeconds {
				a.logger.Warn("invalid interval command", "value", cmd["value"])
				continue
			}
			a.mu.Lock()
			a.interval = time.Duration(n) * time.Second
			a.mu.Unlock()
			a.logger.Info("interval updated via orchestrator", "interval", a.Interval().String())
		case model.CommandSetAutolearn:
			on := truthy(cmd["value"])
			a.mu.Lock()
			a.autolearn = on
			a.mu.Unlock()
			a.logger.Info("autolearn toggled via orchestrator", "autolearn", on)
		case model.CommandReloadConfig:
			a.reload()
		case model.CommandApplyRemediation:
			a.applyRemediation(ctx, cmd)
		default:
			a.logger.Warn("unknown orchestrator command", "type", cmd["type"])
		}
	}
	return extraScan
}

func (a *Agent) reload() {
	if a.loader == nil {
		a.logger.Warn("reload_config ignored: no config file")
		return
	}
	a.logger.Info("reloading agent configuration per orchestrator command")
	cfg, err := a.loader()
	if err != nil {
		a.logger.Error("config reload failed", "err", err)
		return
	}
	a.applyConfig(cfg)
}

func (a *Agent) applyRemediation(ctx context.Context, cmd model.Command) {
	decision, _ := cmd["decision"].(string)
	if decision == "" {
		decision = model.DecisionReview
	}
	reason, _ := cmd["reason"].(string)
	connMap, _ := cmd["connection"].(map[string]interface{})
	conn := model.ConnectionFromMap(connMap)
	a.logger.Info("applying remediation action from orchestrator", "decision", decision, "reason", reason)

	entry := JournalEntry{
		Time:     time.Now(),
		Decision: decision,
		Program:  conn.Program,
		Port:     conn.Port,
		Reason:   reason,
		Outcome:  "ok",
	}
	if err := a.firewall.Execute(ctx, conn, decision); err != nil {
		a.logger.Error("failed to execute remediation action", "err", err)
		entry.Outcome = "error"
		entry.Detail = err.Error()
	}
	if a.journal != nil {
		if err := a.journal.Record(ctx, entry); err != nil {
			a.logger.Warn("journal write failed", "err", err)
		}
	}
}

// maxIntervalSeconds is the largest interval a time.Duration can hold.
const maxIntervalSeconds = int64(math.MaxInt64 / int64(time.Second))

func intValue(v interface{}) (int64, bool) {
	switch t := v.(type) {
	case int:
		return int64(t), true
	case int64:
		return t, true
	case float64:
		if math.IsNaN(t) || t >= math.MaxInt64 || t <= math.MinInt64 {
			return 0, false
		}
		return int64(t), true
	case string:
		n, err := strconv.ParseInt(strings.TrimSpace(t), 10, 64)
		return n, err == nil
	default:
		return 0, false
	}
}

// truthy follows JSON-ish truthiness: false, 0, "" and null are false.
func truthy(v interface{}) bool {
	switch t := v.(type) {
	case nil:
		return false
	case bool:
		return t
	case float64:
		return t != 0
	case int:
		return t != 0
	case string:
		return t != ""
	default:
		return true
	}
}
