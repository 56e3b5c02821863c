// Package core defines the shared domain model of collabmesh: document
// edit operations and batches, revision history entries, presence records,
// conflict entities, the error taxonomy, and the collaborator interfaces
// (publisher, permission checker, audit sink, agent controller) that bind
// the engine to its host system.
//
// The package contains no behavior beyond validation and application of
// single operations; transformation lives in the ot package and
// coordination in the coordinator package. Types here are deliberately
// plain so external collaborators can be implemented without importing
// anything else from the module.
package core
