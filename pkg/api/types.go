package api

import (
	"errors"

	"portmap-ai/pkg/model"
)

// ErrValidation marks a request that is missing required fields or is otherwise malformed.
var ErrValidation = errors.New("validation error")

// RegisterRequest is sent by nodes when they come up.
type RegisterRequest struct {
	NodeID  string                 `json:"node_id"`
	Role    string                 `json:"role"`
	Address string                 `json:"address"`
	Meta    map[string]interface{} `json:"meta,omitempty"`
}

// HeartbeatRequest refreshes liveness and collects queued commands.
type HeartbeatRequest struct {
	NodeID string                 `json:"node_id"`
	Status string                 `json:"status"`
	Meta   map[string]interface{} `json:"meta,omitempty"`
}

// CommandRequest queues a command for a node.
type CommandRequest struct {
	NodeID  string        `json:"node_id"`
	Command model.Command `json:"command"`
}

type NodeResponse struct {
	Node model.Node `json:"node"`
}

type HeartbeatResponse struct {
	Node     model.Node      `json:"node"`
	Commands []model.Command `json:"commands"`
}

type NodesResponse struct {
	Nodes []model.Node `json:"nodes"`
}

type StatusResponse struct {
	Status string `json:"status"`
}

type ErrorResponse struct {
	Error string `json:"error"`
}
