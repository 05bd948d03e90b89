package storage

import (
	"fmt"
	"os"
	"path/filepath"
	"sync"

	"github.com/neurofed/axon/pkg/types"
)

// AuditLog is the append-only text mirror of the audit trail. One line per
// state transition, never rewritten.
type AuditLog struct {
	mu   sync.Mutex
	file *os.File
}

// OpenAuditLog opens (or creates) the audit log at path.
func OpenAuditLog(path string) (*AuditLog, error) {
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return nil, fmt.Errorf("failed to create audit directory: %w", err)
	}
	f, err := os.OpenFile(path, os.O_CREATE|os.O_WRONLY|os.O_APPEND, 0o644)
	if err != nil {
		return nil, fmt.Errorf("failed to open audit log: %w", err)
	}
	return &AuditLog{file: f}, nil
}

// Append writes one record and syncs it to disk.
func (l *AuditLog) Append(record *types.AuditRecord) error {
	l.mu.Lock()
	defer l.mu.Unlock()

	line := fmt.Sprintf("%s request=%s %s->%s principal=%q notes=%q\n",
		record.Timestamp.UTC().Format("2006-01-02T15:04:05.000Z07:00"),
		record.RequestID,
		record.FromState,
		record.ToState,
		record.Principal,
		record.Notes,
	)
	if _, err := l.file.WriteString(line); err != nil {
		return fmt.Errorf("failed to append audit record: %w", err)
	}
	return l.file.Sync()
}

// Close closes the underlying file.
func (l *AuditLog) Close() error {
	l.mu.Lock()
	defer l.mu.Unlock()
	return l.file.Close()
}
