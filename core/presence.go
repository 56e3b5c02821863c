package core

import "time"

// ActivityState is the time-driven presence state of a participant on one
// document. Transitions: Active --30s idle--> Idle --270s more--> Away.
// Any update resets to Active.
type ActivityState string

const (
	// ActivityActive means the participant updated presence recently.
	ActivityActive ActivityState = "active"
	// ActivityIdle means no update for the idle threshold.
	ActivityIdle ActivityState = "idle"
	// ActivityAway means no update for the away threshold. Away records
	// are broadcast with cursor and selection cleared but persist until
	// TTL expiry or disconnect.
	ActivityAway ActivityState = "away"
)

// Selection is a half-open cursor range [Start, End). A collapsed
// selection (Start == End) is just a caret.
type Selection struct {
	Start int `json:"start"`
	End   int `json:"end"`
}

// PresenceRecord is the ephemeral, non-authoritative state of one
// (document, participant) pair. It is created on the first cursor update,
// refreshed on every update and removed on disconnect or TTL expiry.
type PresenceRecord struct {
	ParticipantID string        `json:"participant_id"`
	Cursor        int           `json:"cursor"`
	Selection     *Selection    `json:"selection,omitempty"`
	ActivityState ActivityState `json:"activity_state"`
	LastActivity  time.Time     `json:"last_activity_ts"`
	Color         string        `json:"color,omitempty"`
	DisplayName   string        `json:"display_name,omitempty"`
}

// Clone returns an independent copy.
func (r *PresenceRecord) Clone() *PresenceRecord {
	c := *r
	if r.Selection != nil {
		sel := *r.Selection
		c.Selection = &sel
	}
	return &c
}

// ForBroadcast returns the record as it should leave the engine: Away
// records have cursor and selection cleared.
func (r *PresenceRecord) ForBroadcast() *PresenceRecord {
	c := r.Clone()
	if c.ActivityState == ActivityAway {
		c.Cursor = 0
		c.Selection = nil
	}
	return c
}
