package presence

import (
	"sync"
	"time"

	"github.com/hupe1980/collabmesh/core"
	"github.com/hupe1980/collabmesh/crdt"
	"github.com/hupe1980/collabmesh/logging"
	"github.com/hupe1980/collabmesh/ot"
)

// Default thresholds for the activity state machine. All four are
// configurable; tests shrink them to milliseconds.
const (
	// DefaultIdleThreshold is the silence after which a participant turns
	// idle.
	DefaultIdleThreshold = 30 * time.Second
	// DefaultAwayThreshold is the total silence after which a participant
	// turns away.
	DefaultAwayThreshold = 300 * time.Second
	// DefaultTTL is how long an away record persists before it is
	// removed. It counts from the away transition; an update at any point
	// resets everything.
	DefaultTTL = 30 * time.Second
	// DefaultBroadcastInterval throttles presence broadcasts to one per
	// participant per interval; excess updates coalesce, last write wins.
	DefaultBroadcastInterval = 50 * time.Millisecond
)

// Options configures an Engine.
type Options struct {
	// Publisher receives presence broadcasts. Defaults to a no-op.
	Publisher core.Publisher
	// Logger defaults to NoOpLogger.
	Logger logging.Logger

	IdleThreshold     time.Duration
	AwayThreshold     time.Duration
	TTL               time.Duration
	BroadcastInterval time.Duration
}

type noopPublisher struct{}

func (noopPublisher) Publish(string, core.Broadcast) {}

// Engine maps (document, participant) to a presence record and drives its
// activity state machine. Timers race independently per pair; an incoming
// update always cancels and reschedules the pending transition atomically
// (under the engine lock) rather than stacking a second timer.
type Engine struct {
	publisher core.Publisher
	logger    logging.Logger

	idleThreshold     time.Duration
	awayThreshold     time.Duration
	ttl               time.Duration
	broadcastInterval time.Duration

	mu   sync.Mutex
	docs map[string]*documentPresence
}

// documentPresence is all presence state of one document.
type documentPresence struct {
	participants map[string]*participantState
	roster       crdt.ORSet[string]
	updates      crdt.GCounter
}

// participantState is one (document, participant) pair.
type participantState struct {
	register crdt.LWWRegister[core.PresenceRecord]
	state    core.ActivityState

	// transition is the single pending state-machine timer (idle, away or
	// expiry). It is always stopped before being replaced.
	transition *time.Timer

	// Broadcast throttling: pending holds the latest coalesced record
	// while flush is scheduled.
	lastBroadcast time.Time
	pending       *core.PresenceRecord
	flush         *time.Timer
}

// New constructs a presence engine with optional overrides.
func New(optFns ...func(o *Options)) *Engine {
	opts := Options{
		Publisher:         noopPublisher{},
		Logger:            logging.NoOpLogger{},
		IdleThreshold:     DefaultIdleThreshold,
		AwayThreshold:     DefaultAwayThreshold,
		TTL:               DefaultTTL,
		BroadcastInterval: DefaultBroadcastInterval,
	}
	for _, fn := range optFns {
		fn(&opts)
	}
	return &Engine{
		publisher:         opts.Publisher,
		logger:            opts.Logger,
		idleThreshold:     opts.IdleThreshold,
		awayThreshold:     opts.AwayThreshold,
		ttl:               opts.TTL,
		broadcastInterval: opts.BroadcastInterval,
		docs:              make(map[string]*documentPresence),
	}
}

// Update records a presence update for update.ParticipantID on docID. The
// record is created on first update, refreshed otherwise: state resets to
// active and the pending transition timer restarts. A zero
// update.LastActivity is stamped with the current time; an update whose
// timestamp loses the LWW merge (a stale duplicate) is ignored entirely:
// the record, activity state and timers are untouched.
//
// Update never fails. Malformed payloads (missing participant id,
// negative cursor, inverted selection) are dropped and logged.
func (e *Engine) Update(docID string, update core.PresenceRecord) {
	if !validUpdate(docID, update) {
		e.logger.Warn("dropping malformed presence update", "document_id", docID, "participant_id", update.ParticipantID)
		return
	}
	if update.LastActivity.IsZero() {
		update.LastActivity = time.Now().UTC()
	}
	update.ActivityState = core.ActivityActive

	e.mu.Lock()
	defer e.mu.Unlock()

	doc := e.doc(docID)
	ps, ok := doc.participants[update.ParticipantID]
	if !ok {
		ps = &participantState{
			register: crdt.NewLWWRegister(update, update.LastActivity, update.ParticipantID),
			state:    core.ActivityActive,
		}
		doc.participants[update.ParticipantID] = ps
		doc.roster, _ = doc.roster.Add(update.ParticipantID)
	} else {
		var won bool
		ps.register, won = ps.register.Apply(crdt.NewLWWRegister(update, update.LastActivity, update.ParticipantID))
		if !won {
			e.logger.Debug("stale presence update ignored", "document_id", docID, "participant_id", update.ParticipantID)
			return
		}
	}
	doc.updates = doc.updates.Increment(update.ParticipantID)

	if ps.state != core.ActivityActive {
		e.logger.Debug("presence transition", "document_id", docID, "participant_id", update.ParticipantID, "activity_state", string(core.ActivityActive))
	}
	ps.state = core.ActivityActive
	e.reschedule(docID, update.ParticipantID, ps, e.idleThreshold)
	e.throttledBroadcast(docID, ps)
}

// Disconnect removes the participant's record immediately and broadcasts
// the departure. Unknown participants are a no-op.
func (e *Engine) Disconnect(docID, participantID string) {
	e.mu.Lock()
	defer e.mu.Unlock()
	e.removeLocked(docID, participantID)
}

// Get returns the participant's record, with activity state as of now.
func (e *Engine) Get(docID, participantID string) (*core.PresenceRecord, bool) {
	e.mu.Lock()
	defer e.mu.Unlock()
	doc, ok := e.docs[docID]
	if !ok {
		return nil, false
	}
	ps, ok := doc.participants[participantID]
	if !ok {
		return nil, false
	}
	return e.snapshotLocked(ps), true
}

// List returns all live records of a document.
func (e *Engine) List(docID string) []*core.PresenceRecord {
	e.mu.Lock()
	defer e.mu.Unlock()
	doc, ok := e.docs[docID]
	if !ok {
		return nil
	}
	out := make([]*core.PresenceRecord, 0, len(doc.participants))
	for _, ps := range doc.participants {
		out = append(out, e.snapshotLocked(ps))
	}
	return out
}

// Roster returns the participant ids present on a document, per the
// observed-remove set.
func (e *Engine) Roster(docID string) []string {
	e.mu.Lock()
	defer e.mu.Unlock()
	doc, ok := e.docs[docID]
	if !ok {
		return nil
	}
	return doc.roster.Values()
}

// UpdateCount returns how many presence updates the document has seen.
func (e *Engine) UpdateCount(docID string) uint64 {
	e.mu.Lock()
	defer e.mu.Unlock()
	doc, ok := e.docs[docID]
	if !ok {
		return 0
	}
	return doc.updates.Value()
}

// RebaseCursors shifts every stored cursor and selection on docID across
// a committed operation batch, keeping carets attached to the content
// they pointed at as it moves underneath them. The shift is positional
// bookkeeping, not a participant write: the register timestamp is
// untouched and nothing is broadcast.
func (e *Engine) RebaseCursors(docID string, ops []core.Operation) {
	if len(ops) == 0 {
		return
	}
	e.mu.Lock()
	defer e.mu.Unlock()
	doc, ok := e.docs[docID]
	if !ok {
		return
	}
	for _, ps := range doc.participants {
		rec := &ps.register.Value
		for _, op := range ops {
			rec.Cursor = ot.TransformCursor(rec.Cursor, op)
			if rec.Selection != nil {
				rec.Selection.Start = ot.TransformCursor(rec.Selection.Start, op)
				rec.Selection.End = ot.TransformCursor(rec.Selection.End, op)
			}
		}
	}
}

// MergeRoster merges a remote replica's roster into the document's,
// converging under any delivery order.
func (e *Engine) MergeRoster(docID string, remote crdt.ORSet[string]) {
	e.mu.Lock()
	defer e.mu.Unlock()
	doc := e.doc(docID)
	doc.roster = doc.roster.Merge(remote)
}

// Close stops every pending timer. Records are left in place; Close is
// for tests and shutdown, not a presence event.
func (e *Engine) Close() {
	e.mu.Lock()
	defer e.mu.Unlock()
	for _, doc := range e.docs {
		for _, ps := range doc.participants {
			if ps.transition != nil {
				ps.transition.Stop()
			}
			if ps.flush != nil {
				ps.flush.Stop()
			}
		}
	}
}

func (e *Engine) doc(docID string) *documentPresence {
	doc, ok := e.docs[docID]
	if !ok {
		doc = &documentPresence{
			participants: make(map[string]*participantState),
			roster:       crdt.NewORSet[string](),
			updates:      crdt.NewGCounter(),
		}
		e.docs[docID] = doc
	}
	return doc
}

func validUpdate(docID string, update core.PresenceRecord) bool {
	if docID == "" || update.ParticipantID == "" || update.Cursor < 0 {
		return false
	}
	if sel := update.Selection; sel != nil && (sel.Start < 0 || sel.End < sel.Start) {
		return false
	}
	return true
}

// snapshotLocked returns the record with its current activity state
// applied. Callers must hold e.mu.
func (e *Engine) snapshotLocked(ps *participantState) *core.PresenceRecord {
	rec := ps.register.Value.Clone()
	rec.ActivityState = ps.state
	return rec
}

// reschedule atomically replaces the pending transition timer. Callers
// must hold e.mu.
func (e *Engine) reschedule(docID, participantID string, ps *participantState, d time.Duration) {
	if ps.transition != nil {
		ps.transition.Stop()
	}
	ps.transition = time.AfterFunc(d, func() {
		e.advance(docID, participantID)
	})
}

// advance moves the state machine one step:
// active -> idle -> away -> removed.
func (e *Engine) advance(docID, participantID string) {
	e.mu.Lock()
	defer e.mu.Unlock()

	doc, ok := e.docs[docID]
	if !ok {
		return
	}
	ps, ok := doc.participants[participantID]
	if !ok {
		return
	}

	switch ps.state {
	case core.ActivityActive:
		ps.state = core.ActivityIdle
		e.logger.Debug("presence transition", "document_id", docID, "participant_id", participantID, "activity_state", string(core.ActivityIdle))
		e.reschedule(docID, participantID, ps, e.awayThreshold-e.idleThreshold)
		e.broadcastLocked(docID, ps)
	case core.ActivityIdle:
		ps.state = core.ActivityAway
		e.logger.Debug("presence transition", "document_id", docID, "participant_id", participantID, "activity_state", string(core.ActivityAway))
		e.reschedule(docID, participantID, ps, e.ttl)
		// Away broadcasts go out with cursor and selection cleared.
		e.broadcastLocked(docID, ps)
	case core.ActivityAway:
		e.removeLocked(docID, participantID)
	}
}

// removeLocked drops the record, updates the roster and broadcasts the
// departure. Callers must hold e.mu.
func (e *Engine) removeLocked(docID, participantID string) {
	doc, ok := e.docs[docID]
	if !ok {
		return
	}
	ps, ok := doc.participants[participantID]
	if !ok {
		return
	}
	if ps.transition != nil {
		ps.transition.Stop()
	}
	if ps.flush != nil {
		ps.flush.Stop()
	}
	delete(doc.participants, participantID)
	doc.roster = doc.roster.Remove(participantID)

	e.logger.Debug("presence removed", "document_id", docID, "participant_id", participantID)
	e.publisher.Publish(docID, core.Broadcast{
		DocumentID: docID,
		Presence:   &core.PresenceRecord{ParticipantID: participantID, LastActivity: time.Now().UTC()},
		Left:       true,
	})
}

// broadcastLocked publishes the record immediately, bypassing the
// throttle. Used for state transitions, which are rare by construction.
// Callers must hold e.mu.
func (e *Engine) broadcastLocked(docID string, ps *participantState) {
	rec := e.snapshotLocked(ps).ForBroadcast()
	ps.lastBroadcast = time.Now()
	e.publisher.Publish(docID, core.Broadcast{DocumentID: docID, Presence: rec})
}

// throttledBroadcast publishes at most one update per participant per
// broadcast interval; excess updates coalesce and the latest record is
// flushed when the interval elapses. Callers must hold e.mu.
func (e *Engine) throttledBroadcast(docID string, ps *participantState) {
	now := time.Now()
	if since := now.Sub(ps.lastBroadcast); since >= e.broadcastInterval {
		ps.lastBroadcast = now
		rec := e.snapshotLocked(ps).ForBroadcast()
		e.publisher.Publish(docID, core.Broadcast{DocumentID: docID, Presence: rec})
		return
	}

	ps.pending = e.snapshotLocked(ps).ForBroadcast()
	if ps.flush != nil {
		// A flush is already scheduled; it will pick up the newer record.
		return
	}
	wait := e.broadcastInterval - now.Sub(ps.lastBroadcast)
	participantID := ps.pending.ParticipantID
	ps.flush = time.AfterFunc(wait, func() {
		e.flushPending(docID, participantID)
	})
}

func (e *Engine) flushPending(docID, participantID string) {
	e.mu.Lock()
	defer e.mu.Unlock()
	doc, ok := e.docs[docID]
	if !ok {
		return
	}
	ps, ok := doc.participants[participantID]
	if !ok {
		return
	}
	ps.flush = nil
	if ps.pending == nil {
		return
	}
	rec := ps.pending
	ps.pending = nil
	ps.lastBroadcast = time.Now()
	e.publisher.Publish(docID, core.Broadcast{DocumentID: docID, Presence: rec})
}
