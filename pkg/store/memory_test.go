package store

import (
	"path/filepath"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"portmap-ai/pkg/model"
)

func fixedClock(sec int64) func() time.Time {
	return func() time.Time { return time.Unix(sec, 0) }
}

func TestRegister_SecondWins(t *testing.T) {
	s := NewMemoryStore(WithClock(fixedClock(100)))
	_, err := s.Register("w1", model.RoleWorker, "10.0.0.1", map[string]interface{}{"a": 1})
	require.NoError(t, err)
	require.NoError(t, s.Enqueue("w1", model.Command{"type": "scan_now"}))

	n, err := s.Register("w1", model.RoleWorker, "10.0.0.9", nil)
	require.NoError(t, err)
	assert.Equal(t, "10.0.0.9", n.Address)
	assert.Equal(t, model.StatusRegistered, n.Status)
	assert.Equal(t, int64(100), n.LastSeen)
	assert.Len(t, s.ListNodes(), 1)
	assert.Equal(t, 1, s.Pending("w1"), "re-register keeps the queue")
}

func TestHeartbeat_DrainsInOrder(t *testing.T) {
	s := NewMemoryStore()
	_, _ = s.Register("w1", model.RoleWorker, "", nil)
	for i := 0; i < 3; i++ {
		require.NoError(t, s.Enqueue("w1", model.Command{"type": "set_interval", "value": i}))
	}
	_, cmds, err := s.Heartbeat("w1", "online", nil)
	require.NoError(t, err)
	require.Len(t, cmds, 3)
	for i, c := range cmds {
		assert.Equal(t, i, c["value"])
	}
	_, cmds, err = s.Heartbeat("w1", "online", nil)
	require.NoError(t, err)
	assert.Empty(t, cmds)
	assert.NotNil(t, cmds)
}

func TestHeartbeat_MergesMeta(t *testing.T) {
	s := NewMemoryStore(WithClock(fixedClock(5)))
	_, _ = s.Register("w1", model.RoleWorker, "", map[string]interface{}{"interval": 10, "zone": "a"})
	n, _, err := s.Heartbeat("w1", "online", map[string]interface{}{"interval": 30})
	require.NoError(t, err)
	assert.Equal(t, "online", n.Status)
	assert.Equal(t, 30, n.Meta["interval"])
	assert.Equal(t, "a", n.Meta["zone"])

	n.Meta["zone"] = "mutated"
	got, ok := s.GetNode("w1")
	require.True(t, ok)
	assert.Equal(t, "a", got.Meta["zone"])
}

func TestUnknownNode(t *testing.T) {
	s := NewMemoryStore()
	_, _, err := s.Heartbeat("ghost", "online", nil)
	assert.ErrorIs(t, err, ErrNotFound)
	assert.ErrorIs(t, s.Enqueue("ghost", model.Command{"type": "scan_now"}), ErrNotFound)
	_, ok := s.GetNode("ghost")
	assert.False(t, ok)
	assert.Empty(t, s.ListNodes())
}

func TestEnqueue_CopiesCommand(t *testing.T) {
	s := NewMemoryStore()
	_, _ = s.Register("w1", model.RoleWorker, "", nil)
	cmd := model.Command{"type": "scan_now"}
	require.NoError(t, s.Enqueue("w1", cmd))
	cmd["type"] = "changed"
	_, cmds, _ := s.Heartbeat("w1", "online", nil)
	require.Len(t, cmds, 1)
	assert.Equal(t, "scan_now", cmds[0].Type())
}

func TestListNodes_Sorted(t *testing.T) {
	s := NewMemoryStore()
	for _, id := range []string{"w3", "m1", "w1"} {
		_, _ = s.Register(id, model.RoleWorker, "", nil)
	}
	var ids []string
	for _, n := range s.ListNodes() {
		ids = append(ids, n.NodeID)
	}
	assert.Equal(t, []string{"m1", "w1", "w3"}, ids)
}

func TestPersistence_RoundTrip(t *testing.T) {
	path := filepath.Join(t.TempDir(), "data", "state.json")
	s, err := Open(WithSnapshotter(NewFileSnapshotter(path)), WithClock(fixedClock(42)))
	require.NoError(t, err)
	_, _ = s.Register("m1", model.RoleMaster, "10.0.0.1", map[string]interface{}{"port": float64(9000)})
	_, _ = s.Register("w1", model.RoleWorker, "10.0.0.2", nil)
	require.NoError(t, s.Enqueue("w1", model.Command{"type": "scan_now"}))

	reopened, err := Open(WithSnapshotter(NewFileSnapshotter(path)))
	require.NoError(t, err)
	assert.Equal(t, s.ListNodes(), reopened.ListNodes())
	_, cmds, err := reopened.Heartbeat("w1", "online", nil)
	require.NoError(t, err)
	require.Len(t, cmds, 1)
	assert.Equal(t, "scan_now", cmds[0].Type())
}

type staticSnap struct{ st model.State }

func (s staticSnap) Load() (model.State, error) { return s.st, nil }
func (s staticSnap) Save(model.State) error     { return nil }

func TestOpen_DropsOrphanQueues(t *testing.T) {
	snap := staticSnap{st: model.State{
		Nodes:    map[string]model.Node{"w1": {NodeID: "w1", Role: model.RoleWorker}},
		Commands: map[string][]model.Command{"gone": {{"type": "scan_now"}}},
	}}
	s, err := Open(WithSnapshotter(snap))
	require.NoError(t, err)
	assert.Equal(t, 0, s.Pending("gone"))
	assert.Equal(t, 0, s.Pending("w1"))
	_, _, err = s.Heartbeat("w1", "online", nil)
	assert.NoError(t, err)
}

func TestScanNowScenario(t *testing.T) {
	s := NewMemoryStore()
	_, _ = s.Register("w1", model.RoleWorker, "", nil)
	require.NoError(t, s.Enqueue("w1", model.Command{"type": model.CommandScanNow}))
	_, cmds, err := s.Heartbeat("w1", "online", nil)
	require.NoError(t, err)
	assert.Equal(t, []model.Command{{"type": "scan_now"}}, cmds)
	_, cmds, _ = s.Heartbeat("w1", "online", nil)
	assert.Empty(t, cmds)
}

func TestConcurrentEnqueue(t *testing.T) {
	s := NewMemoryStore()
	_, _ = s.Register("w1", model.RoleWorker, "", nil)
	var wg sync.WaitGroup
	for i := 0; i < 50; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			_ = s.Enqueue("w1", model.Command{"type": "scan_now"})
		}()
	}
	wg.Wait()
	_, cmds, _ := s.Heartbeat("w1", "online", nil)
	assert.Len(t, cmds, 50)
}
