package store

import (
	"errors"

	"portmap-ai/pkg/model"
)

// ErrNotFound is returned for operations on a node that never registered.
var ErrNotFound = errors.New("node not found")

// NodeStore is the orchestrator's registry of nodes and their pending command queues.
type NodeStore interface {
	Register(nodeID, role, address string, meta map[string]interface{}) (model.Node, error)
	Heartbeat(nodeID, status string, meta map[string]interface{}) (model.Node, []model.Command, error)
	Enqueue(nodeID string, cmd model.Command) error
	ListNodes() []model.Node
	GetNode(nodeID string) (model.Node, bool)
}

// Snapshotter persists and restores the full registry state.
type Snapshotter interface {
	Load() (model.State, error)
	Save(model.State) error
}
