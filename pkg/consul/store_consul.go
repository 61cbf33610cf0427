//go:build consul

package consul

import (
	"encoding/json"
	"fmt"

	consulapi "github.com/hashicorp/consul/api"

	"portmap-ai/pkg/model"
)

const stateKey = "portmap-ai/orchestrator/state"

// Snapshotter keeps the orchestrator state document under a single Consul KV key.
type Snapshotter struct {
	cli *consulapi.Client
	key string
}

func NewSnapshotter(addr string) (*Snapshotter, error) {
	cfg := consulapi.DefaultConfig()
	if addr != "" {
		cfg.Address = addr
	}
	cli, err := consulapi.NewClient(cfg)
	if err != nil {
		return nil, fmt.Errorf("consul client: %w", err)
	}
	return &Snapshotter{cli: cli, key: stateKey}, nil
}

func (s *Snapshotter) Load() (model.State, error) {
	var st model.State
	kv, _, err := s.cli.KV().Get(s.key, nil)
	if err != nil {
		return st, err
	}
	if kv == nil || len(kv.Value) == 0 {
		return st, nil
	}
	if err := json.Unmarshal(kv.Value, &st); err != nil {
		return st, fmt.Errorf("decode %s: %w", s.key, err)
	}
	return st, nil
}

func (s *Snapshotter) Save(st model.State) error {
	b, err := json.Marshal(st)
	if err != nil {
		return err
	}
	_, err = s.cli.KV().Put(&consulapi.KVPair{Key: s.key, Value: b}, nil)
	return err
}
