package fusion

import "sync"

// AuditLog collects merge conflicts. It is safe for concurrent use.
type AuditLog struct {
	mu      sync.Mutex
	entries []Conflict
}

// Record appends conflicts to the log.
func (l *AuditLog) Record(conflicts ...Conflict) {
	if len(conflicts) == 0 {
		return
	}
	l.mu.Lock()
	defer l.mu.Unlock()
	l.entries = append(l.entries, conflicts...)
}

// Entries returns a copy of everything recorded so far.
func (l *AuditLog) Entries() []Conflict {
	l.mu.Lock()
	defer l.mu.Unlock()
	out := make([]Conflict, len(l.entries))
	copy(out, l.entries)
	return out
}

// Len returns the number of recorded conflicts.
func (l *AuditLog) Len() int {
	l.mu.Lock()
	defer l.mu.Unlock()
	return len(l.entries)
}
