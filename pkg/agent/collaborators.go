package agent

import (
	"context"
	"log/slog"
	"math"
	"math/rand"
	"strings"
	"sync"
	"time"

	"portmap-ai/pkg/model"
)

// Scanner lists the connections currently visible on the host.
type Scanner interface {
	Scan(ctx context.Context) ([]model.ConnectionRecord, error)
}

// Scorer rates a connection in [0,1]. autolearn selects the learned model when the
// implementation has one.
type Scorer interface {
	Score(ctx context.Context, rec model.ConnectionRecord, autolearn bool) (float64, error)
}

// FirewallHook carries out a remediation decision for one connection.
type FirewallHook interface {
	Execute(ctx context.Context, conn model.ConnectionRecord, decision string) error
}

// StubScanner returns fixed placeholder connections.
type StubScanner struct{}

func (StubScanner) Scan(context.Context) ([]model.ConnectionRecord, error) {
	return []model.ConnectionRecord{
		{Program: "dummy_app", PID: 1234, Port: 8080, Payload: "GET /", Flags: "S", Protocol: "HTTP", Direction: model.DirectionUnknown},
		{Program: "dummy_db", PID: 5678, Port: 3306, Payload: "SELECT * FROM users;", Protocol: "MySQL", Direction: model.DirectionUnknown},
	}, nil
}

// RandomScorer returns uniform scores in [0.2, 0.95] rounded to 3 decimals.
type RandomScorer struct {
	mu  sync.Mutex
	rng *rand.Rand
}

func NewRandomScorer(seed int64) *RandomScorer {
	if seed == 0 {
		seed = time.Now().UnixNano()
	}
	return &RandomScorer{rng: rand.New(rand.NewSource(seed))}
}

func (s *RandomScorer) Score(context.Context, model.ConnectionRecord, bool) (float64, error) {
	s.mu.Lock()
	v := 0.2 + s.rng.Float64()*0.75
	s.mu.Unlock()
	return round3(v), nil
}

// LogFirewall only logs the action it would take.
type LogFirewall struct {
	Logger *slog.Logger
}

func (f LogFirewall) Execute(_ context.Context, conn model.ConnectionRecord, decision string) error {
	logger := f.Logger
	if logger == nil {
		logger = slog.Default()
	}
	verb := "ALLOW"
	switch decision {
	case model.DecisionBlock:
		verb = "BLOCK"
	case model.DecisionReview:
		verb = "REVIEW"
	}
	logger.Info("[FIREWALL ACTION]", "action", verb, "decision", strings.ToLower(decision),
		"program", conn.Program, "pid", conn.PID, "port", conn.Port)
	return nil
}

func round3(v float64) float64 {
	return math.Round(v*1000) / 1000
}
