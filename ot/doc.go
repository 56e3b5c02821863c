// Package ot implements the operational transform functions that make
// concurrent edits converge. Everything here is pure: transforms take
// operations in, return operations out, and touch no state, so they can be
// run freely in parallel across documents.
//
// Transform rewrites one operation so it applies correctly after another
// concurrent operation has been applied. Ties between inserts at the same
// position are broken by the explicit Priority argument; the coordinator
// derives that priority from client identity so the outcome is independent
// of arrival order.
package ot
