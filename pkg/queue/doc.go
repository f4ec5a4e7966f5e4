// Package queue defines the data model and persistence contracts of the
// scheduled email pipeline.
//
// An [EmailJob] is one scheduled send of one template to one recipient. Jobs
// move through a small state machine:
//
//	scheduled -> processing -> sent | failed
//	failed    -> scheduled                 (retry sweep, bounded by attempts)
//	scheduled -> cancelled                 (out-of-band cancel, terminal)
//
// The package has no storage of its own. Implementations live in
// subpackages:
//
//   - memory: in-process store for tests and local development
//   - postgres: pgx-backed store with goose migrations
//   - cached: read-through caching decorators for templates and sequences
//   - s3log: archive sink for the append-only send log
//
// # Claims
//
// [JobStore.ClaimDue] is the only way the dispatcher reserves work. It must
// select and transition rows in a single atomic step so that two concurrent
// processor runs never dispatch the same job. [JobStore.Claim] offers the
// same guarantee for callers that fetched ids with [JobStore.FindDue]: a row
// is claimed only if it is still scheduled.
//
// # Variables
//
// Template variables are a tagged union of scalars ([Value]). Loose input
// such as decoded JSON is converted with [VarsFromMap], which rejects nested
// objects and arrays.
package queue
