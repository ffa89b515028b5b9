// Package repo is the typed repository client of the lanyards record layer.
//
// A [Client] validates payloads against the schema registry before anything is
// sent, encodes them with the record codec and talks to a record store through
// a [Transport]. The store offers single-record atomicity only: every update
// and delete carries the CommitRef the caller last observed and fails with a
// [*ConflictError] when the record has moved on.
//
// # Failure classes
//
// Logical failures ([ErrNotFound], [ErrAlreadyExists], [ErrConflict]) are
// returned to the caller untouched and never retried, since retrying a
// compare-and-swap without re-reading would overwrite a concurrent change.
// Transport failures marked temporary, and calls that exceed
// [Config.CallTimeout], are retried up to [Config.MaxAttempts] times with
// exponential backoff and jitter.
//
// Validation errors and unknown collections are detected before the first
// network call and are never retried.
//
// # Listing
//
// [Client.List] returns a lazy sequence. Pages are fetched as the caller
// iterates, in the order the store returns them, and iteration stops at the
// first error.
package repo
