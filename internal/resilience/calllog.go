package resilience

import (
	"sync"
	"time"
)

// CallRecord captures one outbound call for health inspection.
type CallRecord struct {
	RequestID    string    `json:"request_id"`
	Source       string    `json:"source"`
	Method       string    `json:"method"`
	URL          string    `json:"url"`
	Start        time.Time `json:"start"`
	End          time.Time `json:"end"`
	Status       int       `json:"status,omitempty"`
	Attempts     int       `json:"attempts"`
	CircuitState string    `json:"circuit_state"`
	Error        string    `json:"error,omitempty"`
}

// CallLog is a fixed-capacity ring buffer of call records. Oldest entries
// are overwritten, so memory stays bounded on long-lived processes.
type CallLog struct {
	mu      sync.Mutex
	records []CallRecord
	next    int
	full    bool
}

// NewCallLog creates a ring buffer holding up to capacity records.
func NewCallLog(capacity int) *CallLog {
	if capacity <= 0 {
		capacity = 256
	}
	return &CallLog{records: make([]CallRecord, capacity)}
}

// Append stores a record, overwriting the oldest when full.
func (l *CallLog) Append(r CallRecord) {
	l.mu.Lock()
	defer l.mu.Unlock()

	l.records[l.next] = r
	l.next++
	if l.next == len(l.records) {
		l.next = 0
		l.full = true
	}
}

// Records returns the stored records, oldest first.
func (l *CallLog) Records() []CallRecord {
	l.mu.Lock()
	defer l.mu.Unlock()

	if !l.full {
		out := make([]CallRecord, l.next)
		copy(out, l.records[:l.next])
		return out
	}
	out := make([]CallRecord, 0, len(l.records))
	out = append(out, l.records[l.next:]...)
	out = append(out, l.records[:l.next]...)
	return out
}
