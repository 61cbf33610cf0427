package agent

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"net"
	"os"
	"time"

	"portmap-ai/pkg/model"
)

const ackTimeout = time.Second

// Cycle scans, scores and sends one report to the master. The returned ack is nil
// when the master did not answer in time.
func (a *Agent) Cycle(ctx context.Context) (*model.Ack, error) {
	cfg := a.config()
	recs, err := a.scanner.Scan(ctx)
	if err != nil {
		a.logger.Warn("scan failed", "err", err)
		recs = nil
	}
	a.logger.Debug("collected connections", "count", len(recs))
	report := BuildReport(ctx, cfg.NodeID, recs, a.scorer, a.Autolearn(), a.logger)
	if len(report.Ports) == 0 {
		a.logger.Info("no connections found, sending heartbeat only")
	}
	return SendReport(ctx, cfg.MasterAddr(), cfg.NetTimeout(), report, a.logger)
}

// BuildReport scores records and computes the mean score over the ones that scored.
// A record whose scoring fails stays in the report with score 0.
func BuildReport(ctx context.Context, nodeID string, recs []model.ConnectionRecord, scorer Scorer, autolearn bool, logger *slog.Logger) model.TelemetryReport {
	report := model.TelemetryReport{
		NodeID:    nodeID,
		Timestamp: time.Now().Unix(),
		Ports:     []model.ConnectionRecord{},
		Anomalies: []string{},
	}
	var (
		total  float64
		scored int
	)
	for _, rec := range recs {
		rec.CapPayload()
		s, err := scorer.Score(ctx, rec, autolearn)
		if err != nil {
			logger.Warn("scoring failed", "program", rec.Program, "port", rec.Port, "err", err)
		} else {
			rec.Score = s
			total += s
			scored++
		}
		report.Ports = append(report.Ports, rec)
	}
	if scored > 0 {
		report.Score = round3(total / float64(scored))
	}
	return report
}

// SendReport delivers report over a fresh TCP connection and waits briefly for the ack.
func SendReport(ctx context.Context, addr string, timeout time.Duration, report model.TelemetryReport, logger *slog.Logger) (*model.Ack, error) {
	if timeout <= 0 {
		timeout = 5 * time.Second
	}
	data, err := json.Marshal(report)
	if err != nil {
		return nil, fmt.Errorf("marshal report: %w", err)
	}
	logger.Info("connecting to master", "addr", addr, "timeout", timeout.String())
	d := net.Dialer{Timeout: timeout}
	conn, err := d.DialContext(ctx, "tcp", addr)
	if err != nil {
		return nil, fmt.Errorf("dial master %s: %w", addr, err)
	}
	defer conn.Close()

	_ = conn.SetWriteDeadline(time.Now().Add(timeout))
	if _, err := conn.Write(data); err != nil {
		return nil, fmt.Errorf("send to master %s: %w", addr, err)
	}
	if tc, ok := conn.(*net.TCPConn); ok {
		_ = tc.CloseWrite()
	}
	logger.Info("sent payload", "bytes", len(data), "score", report.Score, "ports", len(report.Ports))

	_ = conn.SetReadDeadline(time.Now().Add(ackTimeout))
	var ack model.Ack
	if err := json.NewDecoder(conn).Decode(&ack); err != nil {
		if errors.Is(err, os.ErrDeadlineExceeded) {
			logger.Debug("ack timeout reached")
		} else {
			logger.Debug("no usable ack", "err", err)
		}
		return nil, nil
	}
	logger.Info("ack from master", "status", ack.Status)
	if ack.Remediation != nil {
		logger.Info("master remediation response", "action", ack.Remediation.Action, "reason", ack.Remediation.Reason)
	}
	return &ack, nil
}
