package httpapi

import (
	"encoding/json"
	"os"
	"sync"
	"time"

	"github.com/hatchflow/provisioning/pkg/logger"
)

// auditEntry records one provisioning-relevant API action.
type auditEntry struct {
	Timestamp           time.Time `json:"timestamp"`
	Action              string    `json:"action"`
	TenantID            string    `json:"tenant_id"`
	ActivationRequestID string    `json:"activation_request_id,omitempty"`
	Outcome             string    `json:"outcome"`
	Detail              string    `json:"detail,omitempty"`
}

// auditLog keeps a bounded in-memory ring of recent entries and optionally
// appends each entry to a JSONL file.
type auditLog struct {
	mu      sync.Mutex
	entries []auditEntry
	limit   int
	next    int
	full    bool
	sink    *fileAuditSink
	log     *logger.Logger
}

func newAuditLog(limit int, filePath string, log *logger.Logger) *auditLog {
	if limit <= 0 {
		limit = 256
	}
	if log == nil {
		log = logger.NewDefault("audit")
	}
	a := &auditLog{
		entries: make([]auditEntry, limit),
		limit:   limit,
		log:     log,
	}
	if filePath != "" {
		sink, err := newFileAuditSink(filePath)
		if err != nil {
			log.WithError(err).Warn("audit file sink unavailable, keeping in-memory only")
		} else {
			a.sink = sink
		}
	}
	return a
}

func (a *auditLog) record(entry auditEntry) {
	if entry.Timestamp.IsZero() {
		entry.Timestamp = time.Now().UTC()
	}

	a.mu.Lock()
	a.entries[a.next] = entry
	a.next = (a.next + 1) % a.limit
	if a.next == 0 {
		a.full = true
	}
	sink := a.sink
	a.mu.Unlock()

	if sink != nil {
		if err := sink.write(entry); err != nil {
			a.log.WithError(err).Warn("audit file write failed")
		}
	}
}

// recent returns up to n entries, newest first.
func (a *auditLog) recent(n int) []auditEntry {
	a.mu.Lock()
	defer a.mu.Unlock()

	size := a.next
	if a.full {
		size = a.limit
	}
	if n <= 0 || n > size {
		n = size
	}

	out := make([]auditEntry, 0, n)
	for i := 0; i < n; i++ {
		idx := (a.next - 1 - i + a.limit) % a.limit
		out = append(out, a.entries[idx])
	}
	return out
}

type fileAuditSink struct {
	mu   sync.Mutex
	file *os.File
}

func newFileAuditSink(path string) (*fileAuditSink, error) {
	f, err := os.OpenFile(path, os.O_CREATE|os.O_WRONLY|os.O_APPEND, 0o640)
	if err != nil {
		return nil, err
	}
	return &fileAuditSink{file: f}, nil
}

func (s *fileAuditSink) write(entry auditEntry) error {
	data, err := json.Marshal(entry)
	if err != nil {
		return err
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, err := s.file.Write(append(data, '\n')); err != nil {
		return err
	}
	return nil
}

func (s *fileAuditSink) close() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.file.Close()
}
