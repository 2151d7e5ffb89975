package file

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"sync"

	"github.com/upb/multicloud-dashboard/models"
	"github.com/upb/multicloud-dashboard/repositories"
	"gopkg.in/natefinch/lumberjack.v2"
)

// Config configures an NDJSON log file
type Config struct {
	Path       string
	MaxSizeMB  int
	MaxBackups int
}

// Writer appends one JSON object per line. Rotation is handled by lumberjack;
// lines are never rewritten.
type Writer struct {
	mu  sync.Mutex
	out io.WriteCloser
}

var (
	_ repositories.AuditRepository     = (*Writer)(nil)
	_ repositories.AccessLogRepository = (*Writer)(nil)
)

// NewWriter opens (or creates) the log file at cfg.Path
func NewWriter(cfg Config) (*Writer, error) {
	if cfg.Path == "" {
		return nil, fmt.Errorf("log path is required")
	}
	if err := os.MkdirAll(filepath.Dir(cfg.Path), 0o755); err != nil {
		return nil, fmt.Errorf("failed to create log directory: %w", err)
	}
	if cfg.MaxSizeMB <= 0 {
		cfg.MaxSizeMB = 100
	}
	if cfg.MaxBackups <= 0 {
		cfg.MaxBackups = 10
	}
	return NewWriterTo(&lumberjack.Logger{
		Filename:   cfg.Path,
		MaxSize:    cfg.MaxSizeMB,
		MaxBackups: cfg.MaxBackups,
		Compress:   true,
	}), nil
}

// NewWriterTo wraps an arbitrary destination
func NewWriterTo(out io.WriteCloser) *Writer {
	return &Writer{out: out}
}

// Append encodes v as a single line
func (w *Writer) Append(v interface{}) error {
	line, err := json.Marshal(v)
	if err != nil {
		return fmt.Errorf("failed to encode log line: %w", err)
	}
	line = append(line, '\n')

	w.mu.Lock()
	defer w.mu.Unlock()
	if _, err := w.out.Write(line); err != nil {
		return fmt.Errorf("failed to write log line: %w", err)
	}
	return nil
}

// Insert appends an audit event
func (w *Writer) Insert(_ context.Context, event *models.AuditEvent) error {
	return w.Append(event)
}

// InsertAccess appends an access log entry
func (w *Writer) InsertAccess(_ context.Context, entry *models.AccessLogEntry) error {
	return w.Append(entry)
}

// Close flushes and closes the underlying file
func (w *Writer) Close() error {
	w.mu.Lock()
	defer w.mu.Unlock()
	return w.out.Close()
}
