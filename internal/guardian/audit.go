package guardian

import (
	"encoding/json"
	"fmt"
	"os"
	"sync"
	"time"
)

// AuditEntry is one line of the Guardian audit log.
type AuditEntry struct {
	ScanID        string    `json:"scan_id"`
	Timestamp     time.Time `json:"timestamp"`
	Source        string    `json:"source"`
	Tool          string    `json:"tool"`
	MCP           string    `json:"mcp"`
	ContentHash   string    `json:"content_hash"`
	ContentLength int       `json:"content_length"`
	Safe          bool      `json:"safe"`
	Confidence    float64   `json:"confidence"`
	Threats       []string  `json:"threats"`
	Model         string    `json:"model"`
	LatencyMs     int64     `json:"latency_ms"`
}

// AuditLog is an append-only JSONL writer, one line per scan.
type AuditLog struct {
	mu   sync.Mutex
	file *os.File
}

// OpenAuditLog opens (creating if necessary) the audit log at path for
// appending.
func OpenAuditLog(path string) (*AuditLog, error) {
	f, err := os.OpenFile(path, os.O_CREATE|os.O_WRONLY|os.O_APPEND, 0o644)
	if err != nil {
		return nil, fmt.Errorf("guardian: open audit log %s: %w", path, err)
	}
	return &AuditLog{file: f}, nil
}

// Append writes one JSONL line. Safe for concurrent use.
func (a *AuditLog) Append(entry AuditEntry) error {
	line, err := json.Marshal(entry)
	if err != nil {
		return err
	}
	line = append(line, '\n')

	a.mu.Lock()
	defer a.mu.Unlock()
	_, err = a.file.Write(line)
	return err
}

// Close closes the underlying file.
func (a *AuditLog) Close() error {
	return a.file.Close()
}
