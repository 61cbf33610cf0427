// Package master accepts worker telemetry over TCP, applies the remediation policy
// and forwards resulting commands to the orchestrator.
package master

import (
	"context"
	"encoding/json"
	"errors"
	"log/slog"
	"net"
	"time"

	"github.com/google/uuid"

	"portmap-ai/pkg/metrics"
	"portmap-ai/pkg/model"
	"portmap-ai/pkg/remediation"
)

// Forwarder queues a command on the orchestrator. *api.Client implements it.
type Forwarder interface {
	Enqueue(ctx context.Context, nodeID string, cmd model.Command) error
}

// Options configures a Server. Zero durations fall back to 5s.
type Options struct {
	Mode           string
	Threshold      float64
	ReadTimeout    time.Duration
	ForwardTimeout time.Duration

	Forwarder Forwarder
	Audit     AuditSink
	Metrics   *metrics.Master
	Logger    *slog.Logger
}

// Server handles one worker connection at a time, in arrival order.
type Server struct {
	opts      Options
	validator *Validator
	logger    *slog.Logger
	now       func() time.Time
}

func NewServer(opts Options) (*Server, error) {
	v, err := NewValidator()
	if err != nil {
		return nil, err
	}
	if opts.ReadTimeout <= 0 {
		opts.ReadTimeout = 5 * time.Second
	}
	if opts.ForwardTimeout <= 0 {
		opts.ForwardTimeout = 5 * time.Second
	}
	if opts.Metrics == nil {
		opts.Metrics = metrics.NewMaster()
	}
	opts.Mode = remediation.NormalizeMode(opts.Mode)
	logger := opts.Logger
	if logger == nil {
		logger = slog.Default()
	}
	return &Server{opts: opts, validator: v, logger: logger, now: time.Now}, nil
}

// Serve accepts connections on ln until ctx is cancelled. It closes ln on return.
func (s *Server) Serve(ctx context.Context, ln net.Listener) error {
	stop := make(chan struct{})
	defer close(stop)
	go func() {
		select {
		case <-ctx.Done():
		case <-stop:
		}
		_ = ln.Close()
	}()
	s.logger.Info("master listening", "addr", ln.Addr().String(), "mode", s.opts.Mode, "threshold", s.opts.Threshold)
	for {
		conn, err := ln.Accept()
		if err != nil {
			if ctx.Err() != nil || errors.Is(err, net.ErrClosed) {
				s.logger.Info("master stopping")
				return nil
			}
			s.logger.Warn("accept failed", "err", err)
			time.Sleep(50 * time.Millisecond)
			continue
		}
		s.handle(ctx, conn)
	}
}

func (s *Server) handle(ctx context.Context, conn net.Conn) {
	defer conn.Close()
	addr := conn.RemoteAddr().String()
	s.logger.Info("connection", "remote", addr)
	_ = conn.SetReadDeadline(s.now().Add(s.opts.ReadTimeout))

	payload, err := s.validator.Decode(conn)
	if errors.Is(err, ErrEmptyPayload) {
		s.logger.Debug("received empty payload", "remote", addr)
		return
	}
	if err != nil {
		s.opts.Metrics.MalformedTotal.Inc()
		s.logger.Warn("error parsing worker payload", "remote", addr, "err", err)
		s.writeAck(conn, model.Ack{Status: "error", Error: err.Error()})
		return
	}

	decision, cmd, ok := s.Process(ctx, payload)
	s.writeAck(conn, model.Ack{Status: "ok", Remediation: &decision})
	if ok {
		s.forward(ctx, decision.NodeID, cmd)
	}
}

// Process audits a validated report and decides on remediation. It returns the
// command to forward, if any.
func (s *Server) Process(ctx context.Context, payload map[string]interface{}) (model.RemediationDecision, model.Command, bool) {
	nodeID := nodeIDOf(payload)
	ports := portsOf(payload)
	anomalies, _ := payload["anomalies"].([]interface{})
	if anomalies == nil {
		anomalies = []interface{}{}
	}
	score := remediation.ScoreOf(payload["score"])
	s.opts.Metrics.ReportsTotal.Inc()
	s.logger.Info("received report", "node_id", nodeID, "score", score, "ports", len(ports), "anomalies", len(anomalies))

	sample := ports
	if len(sample) > 5 {
		sample = sample[:5]
	}
	s.record(func(sink AuditSink) error {
		return sink.RecordTelemetry(ctx, model.TelemetryEvent{
			Timestamp:   s.now().UTC().Truncate(time.Second),
			NodeID:      nodeID,
			Score:       score,
			Anomalies:   anomalies,
			PortsSample: sample,
		})
	})

	decision := remediation.DecidePayload(payload, s.opts.Mode, s.opts.Threshold)
	s.opts.Metrics.DecisionsTotal.WithLabelValues(decision.Action).Inc()
	switch decision.Action {
	case model.ActionMonitor:
		s.logger.Debug("remediation monitor", "node_id", decision.NodeID, "score", decision.Score)
	case model.ActionPromptOperator:
		s.logger.Warn("remediation prompt required", "node_id", decision.NodeID, "score", decision.Score)
	default:
		s.logger.Error("auto-remediation triggered", "node_id", decision.NodeID, "score", decision.Score)
	}

	ev := model.RemediationEvent{
		ID:        uuid.NewString(),
		Timestamp: s.now().UTC().Truncate(time.Second),
		NodeID:    decision.NodeID,
		Action:    decision.Action,
		Reason:    decision.Reason,
		Score:     decision.Score,
		Mode:      decision.Mode,
	}
	if top := remediation.TopPort(ports); top != nil {
		if _, ok := top["port"]; ok {
			p := int(remediation.ScoreOf(top["port"]))
			ev.Port = &p
		}
		ev.Program, _ = top["program"].(string)
	}
	s.record(func(sink AuditSink) error { return sink.RecordRemediation(ctx, ev) })

	cmd, ok := remediation.BuildCommand(ports, decision)
	return decision, cmd, ok
}

func (s *Server) record(fn func(AuditSink) error) {
	if s.opts.Audit == nil {
		return
	}
	if err := fn(s.opts.Audit); err != nil {
		s.opts.Metrics.AuditErrorsTotal.Inc()
		s.logger.Warn("audit write failed", "err", err)
	}
}

func (s *Server) writeAck(conn net.Conn, ack model.Ack) {
	_ = conn.SetWriteDeadline(s.now().Add(s.opts.ReadTimeout))
	if err := json.NewEncoder(conn).Encode(ack); err != nil {
		s.logger.Warn("failed to send ack", "remote", conn.RemoteAddr().String(), "err", err)
		return
	}
	s.logger.Debug("sent ack", "status", ack.Status)
}

func (s *Server) forward(ctx context.Context, nodeID string, cmd model.Command) {
	if s.opts.Forwarder == nil {
		return
	}
	fctx, cancel := context.WithTimeout(ctx, s.opts.ForwardTimeout)
	defer cancel()
	if err := s.opts.Forwarder.Enqueue(fctx, nodeID, cmd); err != nil {
		s.opts.Metrics.ForwardErrorsTotal.Inc()
		s.logger.Warn("failed to queue remediation command", "node_id", nodeID, "err", err)
		return
	}
	s.logger.Info("queued remediation command", "node_id", nodeID, "decision", cmd["decision"])
}
