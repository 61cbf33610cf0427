//go:build !consul

package store

import (
	"log/slog"
)

// NewConsulSnapshotter falls back to the state file when the consul build tag is not enabled.
func NewConsulSnapshotter(addr, fallbackPath string, logger *slog.Logger) (Snapshotter, error) {
	logger.Warn("consul state backend requested but consul build tag not enabled; using state file",
		"consul_addr", addr, "state_file", fallbackPath)
	return NewFileSnapshotter(fallbackPath), nil
}
