package audit

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/hupe1980/collabmesh/core"
	"github.com/hupe1980/collabmesh/internal/testutil"
)

func TestRecordingSinkKeepsEmissionOrder(t *testing.T) {
	sink := NewRecordingSink()

	accepted := testutil.NewBatchBuilder("alice").Base(0).Insert(0, "hi").Build()
	rejected := testutil.NewBatchBuilder("bob").Base(9).Insert(0, "no").Build()

	sink.Emit(core.AuditEvent{
		Kind:       core.AuditBatchAccepted,
		DocumentID: "doc-1",
		ClientID:   accepted.ClientID,
		Revision:   1,
		Batch:      &accepted,
		Timestamp:  time.Now(),
	})
	sink.Emit(core.AuditEvent{
		Kind:       core.AuditBatchRejected,
		DocumentID: "doc-1",
		ClientID:   rejected.ClientID,
		Reason:     "invalid_revision",
		Batch:      &rejected,
		Timestamp:  time.Now(),
	})

	events := sink.Events()
	require.Len(t, events, 2)
	assert.Equal(t, core.AuditBatchAccepted, events[0].Kind)
	assert.Equal(t, core.AuditBatchRejected, events[1].Kind)

	rejections := sink.OfKind(core.AuditBatchRejected)
	require.Len(t, rejections, 1)
	assert.Equal(t, "bob", rejections[0].ClientID)
	assert.Equal(t, "invalid_revision", rejections[0].Reason)

	assert.Empty(t, sink.OfKind(core.AuditConflictDetected))
}

func TestEventsReturnsACopy(t *testing.T) {
	sink := NewRecordingSink()
	sink.Emit(core.AuditEvent{Kind: core.AuditBatchAccepted, DocumentID: "doc-1"})

	events := sink.Events()
	events[0].DocumentID = "mutated"

	assert.Equal(t, "doc-1", sink.Events()[0].DocumentID)
}

type captureLogger struct {
	msgs []string
}

func (c *captureLogger) Debug(string, ...any)      {}
func (c *captureLogger) Info(msg string, _ ...any) { c.msgs = append(c.msgs, msg) }
func (c *captureLogger) Warn(string, ...any)       {}
func (c *captureLogger) Error(string, ...any)      {}

func TestLoggerSinkWritesThroughLogger(t *testing.T) {
	logger := &captureLogger{}
	sink := NewLoggerSink(logger)

	sink.Emit(core.AuditEvent{Kind: core.AuditBatchAccepted, DocumentID: "doc-1", Revision: 3})

	require.Len(t, logger.msgs, 1)
	assert.Equal(t, "audit event", logger.msgs[0])
}

func TestLoggerSinkNilLoggerFallsBack(t *testing.T) {
	sink := NewLoggerSink(nil)
	assert.NotPanics(t, func() {
		sink.Emit(core.AuditEvent{Kind: core.AuditBatchRejected})
	})
}
