package testutil

import (
	"time"

	"github.com/hupe1980/collabmesh/core"
)

// PresenceBuilder helps construct presence records with fluent chaining
// for tests. Example:
//
//	rec := NewPresenceBuilder("alice").Cursor(4).Select(0, 4).Build()
type PresenceBuilder struct {
	participantID string
	cursor        int
	selection     *core.Selection
	state         core.ActivityState
	lastActivity  time.Time
	color         string
	displayName   string
}

// NewPresenceBuilder creates a builder for the given participant.
func NewPresenceBuilder(participantID string) *PresenceBuilder {
	return &PresenceBuilder{participantID: participantID}
}

// Cursor sets the cursor position (chainable).
func (b *PresenceBuilder) Cursor(pos int) *PresenceBuilder { b.cursor = pos; return b }

// Select sets the selection range (chainable).
func (b *PresenceBuilder) Select(start, end int) *PresenceBuilder {
	b.selection = &core.Selection{Start: start, End: end}
	return b
}

// State sets the activity state (chainable). Defaults to active.
func (b *PresenceBuilder) State(s core.ActivityState) *PresenceBuilder { b.state = s; return b }

// At sets the last-activity timestamp (chainable).
func (b *PresenceBuilder) At(ts time.Time) *PresenceBuilder { b.lastActivity = ts; return b }

// Color sets the display color (chainable).
func (b *PresenceBuilder) Color(c string) *PresenceBuilder { b.color = c; return b }

// Name sets the display name (chainable).
func (b *PresenceBuilder) Name(n string) *PresenceBuilder { b.displayName = n; return b }

// Build assembles the record.
func (b *PresenceBuilder) Build() core.PresenceRecord {
	state := b.state
	if state == "" {
		state = core.ActivityActive
	}
	return core.PresenceRecord{
		ParticipantID: b.participantID,
		Cursor:        b.cursor,
		Selection:     b.selection,
		ActivityState: state,
		LastActivity:  b.lastActivity,
		Color:         b.color,
		DisplayName:   b.displayName,
	}
}
