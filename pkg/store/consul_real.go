//go:build consul

package store

import (
	"log/slog"

	"portmap-ai/pkg/consul"
)

// NewConsulSnapshotter stores registry state in Consul KV (requires build tag consul).
func NewConsulSnapshotter(addr, _ string, _ *slog.Logger) (Snapshotter, error) {
	return consul.NewSnapshotter(addr)
}
