package master

import (
	"context"
	"encoding/json"
	"errors"
	"os"
	"path/filepath"
	"sync"

	"portmap-ai/pkg/model"
)

// Audit file names inside the log directory.
const (
	TelemetryLogName   = "master_events.log"
	RemediationLogName = "remediation_events.jsonl"
)

// AuditSink records accepted reports and remediation decisions.
type AuditSink interface {
	RecordTelemetry(ctx context.Context, ev model.TelemetryEvent) error
	RecordRemediation(ctx context.Context, ev model.RemediationEvent) error
}

// FileAudit appends JSON lines to the master audit files.
type FileAudit struct {
	dir string
	mu  sync.Mutex
}

func NewFileAudit(dir string) (*FileAudit, error) {
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return nil, err
	}
	return &FileAudit{dir: dir}, nil
}

func (f *FileAudit) RecordTelemetry(_ context.Context, ev model.TelemetryEvent) error {
	return f.appendLine(TelemetryLogName, ev)
}

func (f *FileAudit) RecordRemediation(_ context.Context, ev model.RemediationEvent) error {
	return f.appendLine(RemediationLogName, ev)
}

func (f *FileAudit) appendLine(name string, v interface{}) error {
	b, err := json.Marshal(v)
	if err != nil {
		return err
	}
	f.mu.Lock()
	defer f.mu.Unlock()
	fh, err := os.OpenFile(filepath.Join(f.dir, name), os.O_CREATE|os.O_APPEND|os.O_WRONLY, 0o644)
	if err != nil {
		return err
	}
	if _, err := fh.Write(append(b, '\n')); err != nil {
		fh.Close()
		return err
	}
	return fh.Close()
}

// MultiSink fans out to every sink and joins their errors.
type MultiSink []AuditSink

func (m MultiSink) RecordTelemetry(ctx context.Context, ev model.TelemetryEvent) error {
	var errs []error
	for _, s := range m {
		if err := s.RecordTelemetry(ctx, ev); err != nil {
			errs = append(errs, err)
		}
	}
	return errors.Join(errs...)
}

func (m MultiSink) RecordRemediation(ctx context.Context, ev model.RemediationEvent) error {
	var errs []error
	for _, s := range m {
		if err := s.RecordRemediation(ctx, ev); err != nil {
			errs = append(errs, err)
		}
	}
	return errors.Join(errs...)
}
