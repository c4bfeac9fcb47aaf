package services

import (
	"log"
	"sync"
	"time"
)

// Audit actions recorded against the cultural protocol.
const (
	AuditActionPlacementDenied = "placement_denied"
	AuditActionStoryExcluded   = "story_excluded"
	AuditActionRuleSkipped     = "rule_skipped"
)

// AuditEvent is one structured record in the cultural-protocol audit trail.
type AuditEvent struct {
	RunID    string    `json:"run_id"`
	StoryID  uint      `json:"story_id,omitempty"`
	Page     string    `json:"page"`
	Section  string    `json:"section"`
	Action   string    `json:"action"`
	Reason   string    `json:"reason"`
	Occurred time.Time `json:"occurred"`
}

// AuditSink receives protocol audit events. The engine emits to an injected
// sink rather than printing directly so the trail is testable and routable.
type AuditSink interface {
	Record(event AuditEvent)
}

// LogAuditSink writes audit events to the application log.
type LogAuditSink struct{}

// NewLogAuditSink creates the default, log-backed audit sink.
func NewLogAuditSink() *LogAuditSink {
	return &LogAuditSink{}
}

// Record logs one audit event.
func (s *LogAuditSink) Record(event AuditEvent) {
	log.Printf("WARN: [ProtocolAudit] run=%s story=%d slot=%s/%s action=%s reason='%s' at=%s",
		event.RunID, event.StoryID, event.Page, event.Section, event.Action, event.Reason,
		event.Occurred.Format(time.RFC3339))
}

// MemoryAuditSink collects audit events in memory, for tests.
type MemoryAuditSink struct {
	mu     sync.Mutex
	events []AuditEvent
}

// NewMemoryAuditSink creates an in-memory audit sink.
func NewMemoryAuditSink() *MemoryAuditSink {
	return &MemoryAuditSink{}
}

// Record stores one audit event.
func (s *MemoryAuditSink) Record(event AuditEvent) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.events = append(s.events, event)
}

// Events returns a copy of the recorded events.
func (s *MemoryAuditSink) Events() []AuditEvent {
	s.mu.Lock()
	defer s.mu.Unlock()
	copied := make([]AuditEvent, len(s.events))
	copy(copied, s.events)
	return copied
}
