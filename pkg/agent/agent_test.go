package agent

import (
	"context"
	"encoding/json"
	"errors"
	"net"
	"net/http"
	"net/http/httptest"
	"path/filepath"
	"strconv"
	"strings"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"portmap-ai/pkg/api"
	"portmap-ai/pkg/config"
	"portmap-ai/pkg/logging"
	"portmap-ai/pkg/model"
	"portmap-ai/pkg/store"
)

type fixedScorer struct {
	scores map[int]float64
	fail   map[int]bool
}

func (f fixedScorer) Score(_ context.Context, rec model.ConnectionRecord, _ bool) (float64, error) {
	if f.fail[rec.Port] {
		return 0, errors.New("model unavailable")
	}
	return f.scores[rec.Port], nil
}

type recordingFirewall struct {
	mu    sync.Mutex
	calls []string
	err   error
}

func (r *recordingFirewall) Execute(_ context.Context, conn model.ConnectionRecord, decision string) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.calls = append(r.calls, decision+":"+strconv.Itoa(conn.Port))
	return r.err
}

type memJournal struct {
	mu      sync.Mutex
	entries []JournalEntry
}

func (m *memJournal) Record(_ context.Context, e JournalEntry) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.entries = append(m.entries, e)
	return nil
}
func (m *memJournal) Recent(context.Context, int) ([]JournalEntry, error) { return m.entries, nil }
func (m *memJournal) Close() error                                        { return nil }

// fakeMaster counts reports and acks each one.
type fakeMaster struct {
	ln      net.Listener
	reports atomic.Int32
	last    atomic.Value
}

func startFakeMaster(t *testing.T) *fakeMaster {
	t.Helper()
	ln, err := net.Listen("tcp", "127.0.0.1:0")
	require.NoError(t, err)
	m := &fakeMaster{ln: ln}
	go func() {
		for {
			conn, err := ln.Accept()
			if err != nil {
				return
			}
			var rep model.TelemetryReport
			if err := json.NewDecoder(conn).Decode(&rep); err == nil {
				m.reports.Add(1)
				m.last.Store(rep)
				_ = json.NewEncoder(conn).Encode(model.Ack{Status: "ok"})
			}
			conn.Close()
		}
	}()
	t.Cleanup(func() { ln.Close() })
	return m
}

func testConfig(t *testing.T, masterAddr string) *config.Config {
	t.Helper()
	cfg := config.Defaults(model.RoleWorker)
	cfg.NodeID = "w1"
	cfg.OrchestratorURL = ""
	cfg.Timeout = 1
	cfg.ScanInterval = 1
	if masterAddr != "" {
		host, port, err := net.SplitHostPort(masterAddr)
		require.NoError(t, err)
		cfg.MasterIP = host
		cfg.Port, _ = strconv.Atoi(port)
	}
	return cfg
}

func TestBuildReport(t *testing.T) {
	recs := []model.ConnectionRecord{
		{Program: "a", Port: 80, Payload: strings.Repeat("x", 400)},
		{Program: "b", Port: 443},
		{Program: "c", Port: 22},
	}
	scorer := fixedScorer{scores: map[int]float64{80: 0.2, 443: 0.5}, fail: map[int]bool{22: true}}
	rep := BuildReport(context.Background(), "w1", recs, scorer, false, logging.Discard())
	assert.Equal(t, "w1", rep.NodeID)
	require.Len(t, rep.Ports, 3)
	assert.Equal(t, 0.35, rep.Score)
	assert.Equal(t, model.MaxPayloadLen+3, len(rep.Ports[0].Payload))
	assert.Equal(t, 0.0, rep.Ports[2].Score)
	assert.NotNil(t, rep.Anomalies)

	empty := BuildReport(context.Background(), "w1", nil, scorer, false, logging.Discard())
	assert.Equal(t, 0.0, empty.Score)
	assert.Empty(t, empty.Ports)
}

func TestCycle_SendsToMaster(t *testing.T) {
	m := startFakeMaster(t)
	a := New(testConfig(t, m.ln.Addr().String()), Options{Logger: logging.Discard(), Scorer: NewRandomScorer(7)})
	ack, err := a.Cycle(context.Background())
	require.NoError(t, err)
	require.NotNil(t, ack)
	assert.Equal(t, "ok", ack.Status)
	rep := m.last.Load().(model.TelemetryReport)
	assert.Equal(t, "w1", rep.NodeID)
	require.Len(t, rep.Ports, 2)
	for _, p := range rep.Ports {
		assert.GreaterOrEqual(t, p.Score, 0.2)
		assert.LessOrEqual(t, p.Score, 0.95)
	}
}

type failingScanner struct{}

func (failingScanner) Scan(context.Context) ([]model.ConnectionRecord, error) {
	return nil, errors.New("permission denied reading /proc/net")
}

func TestCycle_ScanFailureSendsEmptyReport(t *testing.T) {
	m := startFakeMaster(t)
	a := New(testConfig(t, m.ln.Addr().String()), Options{Logger: logging.Discard(), Scanner: failingScanner{}})
	ack, err := a.Cycle(context.Background())
	require.NoError(t, err)
	require.NotNil(t, ack)
	assert.Equal(t, "ok", ack.Status)
	assert.Equal(t, int32(1), m.reports.Load())
	rep := m.last.Load().(model.TelemetryReport)
	assert.Equal(t, "w1", rep.NodeID)
	assert.NotNil(t, rep.Ports)
	assert.Empty(t, rep.Ports)
	assert.Equal(t, 0.0, rep.Score)
}

func TestCycle_MasterDown(t *testing.T) {
	ln, err := net.Listen("tcp", "127.0.0.1:0")
	require.NoError(t, err)
	addr := ln.Addr().String()
	ln.Close()
	a := New(testConfig(t, addr), Options{Logger: logging.Discard()})
	ack, err := a.Cycle(context.Background())
	assert.Error(t, err)
	assert.Nil(t, ack)
}

func TestProcessCommands(t *testing.T) {
	fw := &recordingFirewall{}
	j := &memJournal{}
	a := New(testConfig(t, ""), Options{Logger: logging.Discard(), Firewall: fw, Journal: j})

	extra := a.ProcessCommands(context.Background(), []model.Command{
		{"type": "set_interval", "value": float64(30)},
		{"type": "set_interval", "value": 0},
		{"type": "set_interval", "value": 1e10},
		{"type": "set_interval", "value": 1e300},
		{"type": "set_interval", "value": "99999999999999"},
		{"type": "set_autolearn", "value": true},
		{"type": "bogus"},
		{"type": "apply_remediation", "decision": "block", "reason": "silent_mode",
			"connection": map[string]interface{}{"program": "b", "port": float64(8443), "score": 0.95}},
	})
	assert.False(t, extra)
	assert.Equal(t, 30*time.Second, a.Interval())
	assert.True(t, a.Autolearn())
	assert.Equal(t, []string{"block:8443"}, fw.calls)
	require.Len(t, j.entries, 1)
	assert.Equal(t, "ok", j.entries[0].Outcome)
	assert.Equal(t, "b", j.entries[0].Program)

	assert.True(t, a.ProcessCommands(context.Background(), []model.Command{{"type": "scan_now"}}))
}

func TestApplyRemediation_FirewallErrorJournaled(t *testing.T) {
	fw := &recordingFirewall{err: errors.New("denied")}
	j := &memJournal{}
	a := New(testConfig(t, ""), Options{Logger: logging.Discard(), Firewall: fw, Journal: j})
	a.ProcessCommands(context.Background(), []model.Command{{"type": "apply_remediation"}})
	assert.Equal(t, []string{"review:0"}, fw.calls)
	require.Len(t, j.entries, 1)
	assert.Equal(t, "error", j.entries[0].Outcome)
	assert.Equal(t, "denied", j.entries[0].Detail)
}

func TestReloadConfig(t *testing.T) {
	cfg := testConfig(t, "")
	reloaded := testConfig(t, "")
	reloaded.ScanInterval = 42
	reloaded.EnableAutolearn = true
	a := New(cfg, Options{Logger: logging.Discard(), Loader: func() (*config.Config, error) { return reloaded, nil }})
	a.ProcessCommands(context.Background(), []model.Command{{"type": "set_interval", "value": 9}})
	assert.Equal(t, 9*time.Second, a.Interval())
	a.ProcessCommands(context.Background(), []model.Command{{"type": "reload_config"}})
	assert.Equal(t, 42*time.Second, a.Interval())
	assert.True(t, a.Autolearn())
}

func TestRunOnce_ScanNowTriggersExtraCycle(t *testing.T) {
	m := startFakeMaster(t)
	st := store.NewMemoryStore(store.WithLogger(logging.Discard()))
	mux := http.NewServeMux()
	api.RegisterRoutes(mux, st, api.Options{Logger: logging.Discard()})
	orch := httptest.NewServer(mux)
	defer orch.Close()

	cfg := testConfig(t, m.ln.Addr().String())
	cfg.OrchestratorURL = orch.URL
	a := New(cfg, Options{Logger: logging.Discard()})
	a.register(context.Background())
	_, ok := st.GetNode("w1")
	require.True(t, ok)
	require.NoError(t, st.Enqueue("w1", model.Command{"type": "scan_now"}))

	a.RunOnce(context.Background())
	assert.Equal(t, int32(2), m.reports.Load())
	assert.Equal(t, 0, st.Pending("w1"))
	node, _ := st.GetNode("w1")
	assert.Equal(t, "online", node.Status)
	assert.Equal(t, float64(1), node.Meta["interval"])
}

func TestHeartbeat_ReregistersWhenUnknown(t *testing.T) {
	st := store.NewMemoryStore(store.WithLogger(logging.Discard()))
	mux := http.NewServeMux()
	api.RegisterRoutes(mux, st, api.Options{Logger: logging.Discard()})
	orch := httptest.NewServer(mux)
	defer orch.Close()

	cfg := testConfig(t, "")
	cfg.OrchestratorURL = orch.URL
	a := New(cfg, Options{Logger: logging.Discard()})
	_, err := a.heartbeat(context.Background())
	assert.Error(t, err)
	_, ok := st.GetNode("w1")
	assert.True(t, ok)
}

func TestStartStop(t *testing.T) {
	m := startFakeMaster(t)
	a := New(testConfig(t, m.ln.Addr().String()), Options{Logger: logging.Discard()})
	require.NoError(t, a.Start(context.Background()))
	require.NoError(t, a.Start(context.Background()))
	require.Eventually(t, func() bool { return m.reports.Load() >= 1 }, 2*time.Second, 10*time.Millisecond)

	var wg sync.WaitGroup
	for i := 0; i < 3; i++ {
		wg.Add(1)
		go func() { defer wg.Done(); a.Stop() }()
	}
	wg.Wait()
	select {
	case <-a.Done():
	default:
		t.Fatal("loop still running after Stop")
	}
	n := m.reports.Load()
	time.Sleep(1500 * time.Millisecond)
	assert.Equal(t, n, m.reports.Load())
}

func TestStopBeforeStart(t *testing.T) {
	a := New(testConfig(t, ""), Options{Logger: logging.Discard()})
	a.Stop()
	a.Stop()
}

func TestSQLiteJournal(t *testing.T) {
	j, err := OpenJournal(filepath.Join(t.TempDir(), "data", "journal.db"))
	require.NoError(t, err)
	defer j.Close()
	ctx := context.Background()
	require.NoError(t, j.Record(ctx, JournalEntry{Decision: "block", Program: "a", Port: 1, Outcome: "ok"}))
	require.NoError(t, j.Record(ctx, JournalEntry{Decision: "review", Program: "b", Port: 2, Outcome: "error", Detail: "x"}))
	got, err := j.Recent(ctx, 10)
	require.NoError(t, err)
	require.Len(t, got, 2)
	assert.Equal(t, "review", got[0].Decision)
	assert.Equal(t, 1, got[1].Port)
}
