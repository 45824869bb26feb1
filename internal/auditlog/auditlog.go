// Package auditlog is an append-only, line-delimited JSON sink for
// every decision the pipeline makes (spec §4.6).
package auditlog

import (
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"sync"
	"time"

	"github.com/safe-pkgs/safe-pkgs/internal/types"
)

// Record is one audit log line.
type Record struct {
	Timestamp string          `json:"timestamp"`
	Context   string          `json:"context"`
	Package   string          `json:"package"`
	Requested *string         `json:"requested,omitempty"`
	Registry  string          `json:"registry"`
	Allow     bool            `json:"allow"`
	Risk      types.Severity  `json:"risk"`
	Reasons   []string        `json:"reasons"`
	Metadata  *types.Metadata `json:"metadata,omitempty"`
	Cached    bool            `json:"cached"`
}

// PackageDecision builds a Record for a single package evaluation,
// stamping the current time.
func PackageDecision(context, pkg string, requested *string, registry string, allow bool, risk types.Severity, reasons []string, metadata *types.Metadata, cached bool) Record {
	return Record{
		Timestamp: time.Now().UTC().Format(time.RFC3339),
		Context:   context,
		Package:   pkg,
		Requested: requested,
		Registry:  registry,
		Allow:     allow,
		Risk:      risk,
		Reasons:   reasons,
		Metadata:  metadata,
		Cached:    cached,
	}
}

// Logger appends Records to a single file, one JSON object per line.
// Writes are serialized and flushed before returning (spec §5).
type Logger struct {
	mu   sync.Mutex
	file *os.File
}

// Open opens (creating if necessary) the log file at path for
// appending.
func Open(path string) (*Logger, error) {
	if dir := filepath.Dir(path); dir != "" {
		if err := os.MkdirAll(dir, 0o755); err != nil {
			return nil, fmt.Errorf("create audit log directory: %w", err)
		}
	}
	file, err := os.OpenFile(path, os.O_CREATE|os.O_APPEND|os.O_WRONLY, 0o644)
	if err != nil {
		return nil, fmt.Errorf("open audit log: %w", err)
	}
	return &Logger{file: file}, nil
}

// Close closes the underlying file.
func (l *Logger) Close() error {
	return l.file.Close()
}

// Log appends one record as a single JSON line, never swallowing a
// write failure (spec §7).
func (l *Logger) Log(record Record) error {
	encoded, err := json.Marshal(record)
	if err != nil {
		return fmt.Errorf("encode audit record: %w", err)
	}
	encoded = append(encoded, '\n')

	l.mu.Lock()
	defer l.mu.Unlock()

	if _, err := l.file.Write(encoded); err != nil {
		return fmt.Errorf("write audit record: %w", err)
	}
	return l.file.Sync()
}

// DefaultPath returns the audit log path, honoring the
// SAFE_PKGS_AUDIT_LOG_FILE_PATH override (spec §6).
func DefaultPath() string {
	if explicit := os.Getenv("SAFE_PKGS_AUDIT_LOG_FILE_PATH"); explicit != "" {
		return explicit
	}
	home, err := os.UserHomeDir()
	if err != nil {
		home = "."
	}
	return filepath.Join(home, ".local", "share", "safe-pkgs", "audit.log")
}
