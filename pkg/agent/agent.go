// Package agent runs the worker side: scan, score, report to the master and follow
// orchestrator commands.
package agent

import (
	"context"
	"errors"
	"log/slog"
	"net"
	"os"
	"sync"
	"time"

	"portmap-ai/pkg/api"
	"portmap-ai/pkg/config"
	"portmap-ai/pkg/model"
)

// Orchestrator is the part of the orchestrator API a worker uses. *api.Client implements it.
type Orchestrator interface {
	Register(ctx context.Context, req api.RegisterRequest) (model.Node, error)
	Heartbeat(ctx context.Context, req api.HeartbeatRequest) (api.HeartbeatResponse, error)
}

// Options supplies the agent's collaborators. Nil fields get defaults.
type Options struct {
	Scanner      Scanner
	Scorer       Scorer
	Firewall     FirewallHook
	Journal      Journal
	Orchestrator Orchestrator
	Loader       func() (*config.Config, error)
	Logger       *slog.Logger
	// IntervalOverride pins the loop interval across config reloads.
	IntervalOverride time.Duration
}

// Agent is a worker node.
type Agent struct {
	scanner  Scanner
	scorer   Scorer
	firewall FirewallHook
	journal  Journal
	orch     Orchestrator
	loader   func() (*config.Config, error)
	logger   *slog.Logger
	override time.Duration

	mu        sync.Mutex
	cfg       *config.Config
	interval  time.Duration
	autolearn bool
	started   bool

	stopOnce sync.Once
	stop     chan struct{}
	done     chan struct{}
}

func New(cfg *config.Config, opts Options) *Agent {
	a := &Agent{
		scanner:  opts.Scanner,
		scorer:   opts.Scorer,
		firewall: opts.Firewall,
		journal:  opts.Journal,
		orch:     opts.Orchestrator,
		loader:   opts.Loader,
		logger:   opts.Logger,
		override: opts.IntervalOverride,
		stop:     make(chan struct{}),
		done:     make(chan struct{}),
	}
	if a.logger == nil {
		a.logger = slog.Default()
	}
	if a.scanner == nil {
		a.scanner = StubScanner{}
	}
	if a.scorer == nil {
		a.scorer = NewRandomScorer(0)
	}
	if a.firewall == nil {
		a.firewall = LogFirewall{Logger: a.logger}
	}
	if a.orch == nil && cfg.OrchestratorURL != "" {
		a.orch = api.NewClient(cfg.OrchestratorURL, cfg.OrchestratorToken, cfg.NetTimeout())
	}
	if a.loader == nil && cfg.Path != "" {
		a.loader = cfg.Loader()
	}
	a.applyConfig(cfg)
	return a
}

func (a *Agent) applyConfig(cfg *config.Config) {
	a.mu.Lock()
	defer a.mu.Unlock()
	a.cfg = cfg
	a.interval = cfg.Interval()
	if a.override > 0 {
		a.interval = a.override
	}
	a.autolearn = cfg.EnableAutolearn
}

// Interval is the current loop period.
func (a *Agent) Interval() time.Duration {
	a.mu.Lock()
	defer a.mu.Unlock()
	return a.interval
}

// Autolearn reports whether the scorer runs in learning mode.
func (a *Agent) Autolearn() bool {
	a.mu.Lock()
	defer a.mu.Unlock()
	return a.autolearn
}

func (a *Agent) config() *config.Config {
	a.mu.Lock()
	defer a.mu.Unlock()
	return a.cfg
}

// Start registers with the orchestrator and launches the scan loop. Calling it
// again is a no-op.
func (a *Agent) Start(ctx context.Context) error {
	a.mu.Lock()
	if a.started {
		a.mu.Unlock()
		return nil
	}
	a.started = true
	cfg, interval, autolearn := a.cfg, a.interval, a.autolearn
	a.mu.Unlock()

	a.logger.Info("starting agent", "node_id", cfg.NodeID, "master", cfg.MasterAddr(),
		"interval", interval.String(), "autolearn", autolearn)
	a.register(ctx)
	go a.loop(ctx)
	return nil
}

// Stop asks the loop to exit and waits up to one interval plus a second.
// It is safe to call more than once and from any goroutine.
func (a *Agent) Stop() {
	a.stopOnce.Do(func() { close(a.stop) })
	a.mu.Lock()
	started := a.started
	a.mu.Unlock()
	if !started {
		return
	}
	select {
	case <-a.done:
	case <-time.After(a.Interval() + time.Second):
		a.logger.Warn("agent loop did not stop in time")
	}
	a.logger.Info("agent stopped")
}

// Done is closed when the loop exits.
func (a *Agent) Done() <-chan struct{} { return a.done }

func (a *Agent) loop(ctx context.Context) {
	defer close(a.done)
	for {
		select {
		case <-a.stop:
			return
		case <-ctx.Done():
			return
		default:
		}
		a.RunOnce(ctx)

		timer := time.NewTimer(a.Interval())
		select {
		case <-a.stop:
			timer.Stop()
			return
		case <-ctx.Done():
			timer.Stop()
			return
		case <-timer.C:
		}
	}
}

// RunOnce performs one cycle, then a heartbeat and the commands it delivers.
func (a *Agent) RunOnce(ctx context.Context) {
	if _, err := a.Cycle(ctx); err != nil {
		a.logger.Error("failed to send to master", "err", err)
	}
	if a.orch == nil {
		return
	}
	resp, err := a.heartbeat(ctx)
	if err != nil {
		a.logger.Warn("orchestrator heartbeat failed", "err", err)
		return
	}
	if a.ProcessCommands(ctx, resp.Commands) {
		a.logger.Info("executing orchestrator-triggered scan")
		if _, err := a.Cycle(ctx); err != nil {
			a.logger.Error("failed to send to master", "err", err)
		}
	}
}

func (a *Agent) register(ctx context.Context) {
	if a.orch == nil {
		return
	}
	cfg := a.config()
	req := api.RegisterRequest{
		NodeID:  cfg.NodeID,
		Role:    model.RoleWorker,
		Address: localAddress(),
		Meta: map[string]interface{}{
			"master_ip": cfg.MasterIP,
			"port":      cfg.Port,
			"interval":  int(a.Interval() / time.Second),
		},
	}
	if _, err := a.orch.Register(ctx, req); err != nil {
		a.logger.Warn("failed to register with orchestrator", "err", err)
		return
	}
	a.logger.Info("registered with orchestrator", "url", cfg.OrchestratorURL)
}

func (a *Agent) heartbeat(ctx context.Context) (api.HeartbeatResponse, error) {
	cfg := a.config()
	resp, err := a.orch.Heartbeat(ctx, api.HeartbeatRequest{
		NodeID: cfg.NodeID,
		Status: "online",
		Meta: map[string]interface{}{
			"interval":  int(a.Interval() / time.Second),
			"autolearn": a.Autolearn(),
		},
	})
	var se *api.StatusError
	if errors.As(err, &se) && se.NotFound() {
		// the orchestrator lost our registration; register again for the next beat
		a.register(ctx)
	}
	return resp, err
}

// localAddress picks the first non-loopback IPv4 address, falling back to the hostname.
func localAddress() string {
	if addrs, err := net.InterfaceAddrs(); err == nil {
		for _, addr := range addrs {
			if ipn, ok := addr.(*net.IPNet); ok && !ipn.IP.IsLoopback() && ipn.IP.To4() != nil {
				return ipn.IP.String()
			}
		}
	}
	host, _ := os.Hostname()
	return host
}
