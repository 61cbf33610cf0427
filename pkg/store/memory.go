package store

import (
	"fmt"
	"log/slog"
	"sort"
	"sync"
	"time"

	"portmap-ai/pkg/model"
)

// MemoryStore keeps nodes and command queues in memory and writes a snapshot after each
// mutation. One mutex serializes every operation, including the snapshot write.
type MemoryStore struct {
	mu       sync.Mutex
	nodes    map[string]model.Node
	commands map[string][]model.Command

	snap   Snapshotter
	now    func() time.Time
	logger *slog.Logger
}

// Option configures a MemoryStore.
type Option func(*MemoryStore)

// WithClock overrides the time source used for last_seen.
func WithClock(now func() time.Time) Option {
	return func(m *MemoryStore) { m.now = now }
}

// WithSnapshotter sets where state is loaded from and saved to.
func WithSnapshotter(s Snapshotter) Option {
	return func(m *MemoryStore) { m.snap = s }
}

// WithLogger sets the logger used for persistence failures.
func WithLogger(l *slog.Logger) Option {
	return func(m *MemoryStore) { m.logger = l }
}

// NewMemoryStore builds an empty store. Use Open to restore a snapshot.
func NewMemoryStore(opts ...Option) *MemoryStore {
	m := &MemoryStore{
		nodes:    make(map[string]model.Node),
		commands: make(map[string][]model.Command),
		snap:     NopSnapshotter{},
		now:      time.Now,
		logger:   slog.Default(),
	}
	for _, o := range opts {
		o(m)
	}
	return m
}

// Open builds a store and loads the snapshot. Queues for unknown nodes are dropped.
func Open(opts ...Option) (*MemoryStore, error) {
	m := NewMemoryStore(opts...)
	st, err := m.snap.Load()
	if err != nil {
		return nil, fmt.Errorf("load state: %w", err)
	}
	for id, n := range st.Nodes {
		if n.NodeID == "" {
			n.NodeID = id
		}
		if n.Meta == nil {
			n.Meta = map[string]interface{}{}
		}
		m.nodes[id] = n
	}
	for id, q := range st.Commands {
		if _, ok := m.nodes[id]; !ok {
			m.logger.Warn("dropping orphan command queue", "node_id", id, "commands", len(q))
			continue
		}
		m.commands[id] = q
	}
	for id := range m.nodes {
		if m.commands[id] == nil {
			m.commands[id] = []model.Command{}
		}
	}
	return m, nil
}

func (m *MemoryStore) Register(nodeID, role, address string, meta map[string]interface{}) (model.Node, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	n := model.Node{
		NodeID:   nodeID,
		Role:     role,
		Address:  address,
		Meta:     model.CloneMap(meta),
		LastSeen: m.now().Unix(),
		Status:   model.StatusRegistered,
	}
	m.nodes[nodeID] = n
	if _, ok := m.commands[nodeID]; !ok {
		m.commands[nodeID] = []model.Command{}
	}
	m.persistLocked()
	return n.Clone(), nil
}

func (m *MemoryStore) Heartbeat(nodeID, status string, meta map[string]interface{}) (model.Node, []model.Command, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	n, ok := m.nodes[nodeID]
	if !ok {
		return model.Node{}, nil, fmt.Errorf("heartbeat %s: %w", nodeID, ErrNotFound)
	}
	n.LastSeen = m.now().Unix()
	n.Status = status
	if n.Meta == nil {
		n.Meta = map[string]interface{}{}
	}
	for k, v := range model.CloneMap(meta) {
		n.Meta[k] = v
	}
	m.nodes[nodeID] = n
	drained := m.commands[nodeID]
	if drained == nil {
		drained = []model.Command{}
	}
	m.commands[nodeID] = []model.Command{}
	m.persistLocked()
	return n.Clone(), drained, nil
}

func (m *MemoryStore) Enqueue(nodeID string, cmd model.Command) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if _, ok := m.nodes[nodeID]; !ok {
		return fmt.Errorf("enqueue %s: %w", nodeID, ErrNotFound)
	}
	m.commands[nodeID] = append(m.commands[nodeID], cmd.Clone())
	m.persistLocked()
	return nil
}

func (m *MemoryStore) ListNodes() []model.Node {
	m.mu.Lock()
	defer m.mu.Unlock()
	out := make([]model.Node, 0, len(m.nodes))
	for _, n := range m.nodes {
		out = append(out, n.Clone())
	}
	sort.Slice(out, func(i, j int) bool { return out[i].NodeID < out[j].NodeID })
	return out
}

func (m *MemoryStore) GetNode(nodeID string) (model.Node, bool) {
	m.mu.Lock()
	defer m.mu.Unlock()
	n, ok := m.nodes[nodeID]
	if !ok {
		return model.Node{}, false
	}
	return n.Clone(), true
}

// Pending reports the queued command count for a node.
func (m *MemoryStore) Pending(nodeID string) int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return len(m.commands[nodeID])
}

func (m *MemoryStore) persistLocked() {
	st := model.State{
		Nodes:    make(map[string]model.Node, len(m.nodes)),
		Commands: make(map[string][]model.Command, len(m.commands)),
	}
	for id, n := range m.nodes {
		st.Nodes[id] = n
	}
	for id, q := range m.commands {
		st.Commands[id] = q
	}
	if err := m.snap.Save(st); err != nil {
		m.logger.Error("persist state failed", "err", err)
	}
}
