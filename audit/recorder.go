package audit

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"os"
	"sync"
	"time"
)

// SlogRecorder writes audit entries to a structured logger. Severity maps
// to the log level: info → Info, warning → Warn, critical → Error.
type SlogRecorder struct {
	logger *slog.Logger
}

// NewSlogRecorder creates a recorder backed by logger.
func NewSlogRecorder(logger *slog.Logger) *SlogRecorder {
	return &SlogRecorder{logger: logger}
}

// Record implements Recorder.
func (r *SlogRecorder) Record(ctx context.Context, e *Entry) error {
	attrs := []any{
		slog.String("resource", e.Resource),
		slog.String("resource_id", e.ResourceID),
		slog.String("category", e.Category),
		slog.String("outcome", e.Outcome),
	}
	if e.Reason != "" {
		attrs = append(attrs, slog.String("reason", e.Reason))
	}
	if len(e.Metadata) > 0 {
		attrs = append(attrs, slog.Any("metadata", e.Metadata))
	}

	switch e.Severity {
	case SeverityCritical:
		r.logger.ErrorContext(ctx, e.Action, attrs...)
	case SeverityWarning:
		r.logger.WarnContext(ctx, e.Action, attrs...)
	default:
		r.logger.InfoContext(ctx, e.Action, attrs...)
	}
	return nil
}

// FileRecorder appends audit entries to a JSON-lines file. Writes are
// serialized, so entries appear in record order.
type FileRecorder struct {
	mu   sync.Mutex
	f    *os.File
	enc  *json.Encoder
	path string
}

// fileEntry adds the record timestamp to the persisted form.
type fileEntry struct {
	Time time.Time `json:"time"`
	*Entry
}

// NewFileRecorder opens (or creates) the JSONL file at path for appending.
func NewFileRecorder(path string) (*FileRecorder, error) {
	f, err := os.OpenFile(path, os.O_CREATE|os.O_WRONLY|os.O_APPEND, 0o644)
	if err != nil {
		return nil, fmt.Errorf("audit: open %s: %w", path, err)
	}
	return &FileRecorder{f: f, enc: json.NewEncoder(f), path: path}, nil
}

// Record implements Recorder.
func (r *FileRecorder) Record(_ context.Context, e *Entry) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	if err := r.enc.Encode(fileEntry{Time: time.Now().UTC(), Entry: e}); err != nil {
		return fmt.Errorf("audit: append %s: %w", r.path, err)
	}
	return nil
}

// Close closes the underlying file.
func (r *FileRecorder) Close() error {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.f.Close()
}
