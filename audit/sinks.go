package audit

import (
	"sync"

	"github.com/hupe1980/collabmesh/core"
	"github.com/hupe1980/collabmesh/logging"
)

// RecordingSink stores every emitted event in memory for later
// inspection. It is safe for concurrent use.
type RecordingSink struct {
	mu     sync.Mutex
	events []core.AuditEvent
}

// NewRecordingSink constructs an empty recording sink.
func NewRecordingSink() *RecordingSink {
	return &RecordingSink{}
}

// Emit appends the event.
func (s *RecordingSink) Emit(event core.AuditEvent) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.events = append(s.events, event)
}

// Events returns a copy of everything emitted so far.
func (s *RecordingSink) Events() []core.AuditEvent {
	s.mu.Lock()
	defer s.mu.Unlock()
	out := make([]core.AuditEvent, len(s.events))
	copy(out, s.events)
	return out
}

// OfKind returns the emitted events of one kind, in emission order.
func (s *RecordingSink) OfKind(kind core.AuditEventKind) []core.AuditEvent {
	s.mu.Lock()
	defer s.mu.Unlock()
	var out []core.AuditEvent
	for _, e := range s.events {
		if e.Kind == kind {
			out = append(out, e)
		}
	}
	return out
}

// LoggerSink writes each audit event through a logging.Logger.
type LoggerSink struct {
	logger logging.Logger
}

// NewLoggerSink constructs a sink writing to the given logger; a nil
// logger falls back to NoOpLogger.
func NewLoggerSink(logger logging.Logger) *LoggerSink {
	if logger == nil {
		logger = logging.NoOpLogger{}
	}
	return &LoggerSink{logger: logger}
}

// Emit logs the event with its identifying fields.
func (s *LoggerSink) Emit(event core.AuditEvent) {
	s.logger.Info("audit event",
		"kind", string(event.Kind),
		"document_id", event.DocumentID,
		"client_id", event.ClientID,
		"revision", event.Revision,
		"reason", event.Reason,
	)
}
