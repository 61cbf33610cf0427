package bus

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"time"

	"github.com/nats-io/nats.go"

	"portmap-ai/pkg/model"
)

const (
	// DefaultSubject carries remediation decisions.
	DefaultSubject = "portmap.remediation"
	ConnectTimeout = 5 * time.Second
	ReconnectWait  = 2 * time.Second
)

// Publisher sends remediation events to NATS. It satisfies the master's audit sink.
type Publisher struct {
	conn    *nats.Conn
	subject string
	logger  *slog.Logger
}

// NewPublisher connects to natsURL; the nats client keeps reconnecting afterwards.
func NewPublisher(natsURL, subject string, logger *slog.Logger) (*Publisher, error) {
	if subject == "" {
		subject = DefaultSubject
	}
	if logger == nil {
		logger = slog.Default()
	}
	conn, err := nats.Connect(natsURL,
		nats.Name("portmap-master"),
		nats.Timeout(ConnectTimeout),
		nats.ReconnectWait(ReconnectWait),
		nats.MaxReconnects(-1),
		nats.DisconnectErrHandler(func(_ *nats.Conn, err error) {
			if err != nil {
				logger.Warn("nats disconnected", "err", err)
			}
		}),
		nats.ReconnectHandler(func(c *nats.Conn) {
			logger.Info("nats reconnected", "url", c.ConnectedUrl())
		}),
	)
	if err != nil {
		return nil, fmt.Errorf("connect nats %s: %w", natsURL, err)
	}
	logger.Info("nats publisher initialized", "url", natsURL, "subject", subject)
	return &Publisher{conn: conn, subject: subject, logger: logger}, nil
}

// NewPublisherConn wraps an existing connection.
func NewPublisherConn(conn *nats.Conn, subject string, logger *slog.Logger) *Publisher {
	if subject == "" {
		subject = DefaultSubject
	}
	if logger == nil {
		logger = slog.Default()
	}
	return &Publisher{conn: conn, subject: subject, logger: logger}
}

// RecordTelemetry is not published; only decisions go on the bus.
func (p *Publisher) RecordTelemetry(context.Context, model.TelemetryEvent) error { return nil }

// RecordRemediation publishes ev as JSON with identifying headers.
func (p *Publisher) RecordRemediation(ctx context.Context, ev model.RemediationEvent) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	data, err := json.Marshal(ev)
	if err != nil {
		return fmt.Errorf("marshal remediation event: %w", err)
	}
	msg := nats.NewMsg(p.subject)
	msg.Data = data
	msg.Header.Set("x-event-id", ev.ID)
	msg.Header.Set("x-node-id", ev.NodeID)
	msg.Header.Set("x-action", ev.Action)
	if err := p.conn.PublishMsg(msg); err != nil {
		return fmt.Errorf("publish %s: %w", p.subject, err)
	}
	p.logger.Debug("remediation event published", "event_id", ev.ID, "subject", p.subject)
	return nil
}

// Subject is the subject events are published on.
func (p *Publisher) Subject() string { return p.subject }

// Ready reports whether the connection is currently usable.
func (p *Publisher) Ready() bool {
	return p.conn != nil && p.conn.IsConnected()
}

func (p *Publisher) Close() error {
	if p.conn == nil {
		return nil
	}
	if err := p.conn.Drain(); err != nil {
		p.conn.Close()
		return err
	}
	return nil
}
