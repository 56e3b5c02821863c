// Package engine wires the collaboration core together: the OT
// coordinator, the presence engine, the conflict arbiter and the external
// collaborator set (store, publisher, permission checker, audit sink,
// agent controller).
//
// A submission travels permission check, then arbitration when an agent
// action collides with a recent human action, then the coordinator's
// serialized apply pipeline. Presence updates bypass all of that and go
// straight to the presence engine; they never touch document state.
//
// The engine is configured with functional options and ships with
// in-memory defaults for every collaborator, so a bare New() yields a
// fully working single-process instance.
package engine
