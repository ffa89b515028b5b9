// Package saga applies multi-record changes on a store that is only atomic
// per record.
//
// A [Unit] lists the writes that make up one logical change. [Orchestrator.Execute]
// runs it in four steps:
//
//  1. Every intended payload is validated against the active schema. Any
//     failure aborts before the store is touched.
//  2. Every target record is read. The snapshot supplies the CommitRef each
//     write swaps against and the prior value used to undo it. Expectations
//     (a record must exist, must not exist, or must still be at a given
//     commit) are checked here, before any write.
//  3. Writes are issued one at a time in ascending (collection, key) order,
//     so two units touching overlapping records contend in the same order.
//  4. On the first failed write the remaining writes are skipped and the
//     committed ones are undone in reverse order: an update is reverted to
//     its snapshot, a create is deleted and a delete is re-created under the
//     same key. If every undo succeeds the original error is returned as is.
//     Otherwise a [*PartialFailure] names which records were left in the new
//     state and which were rolled back.
//
// A write that fails with a transport fault or timeout may still have been
// applied. Such a failure always yields a [*PartialFailure] with that record
// in Unknown, even when every earlier write was rolled back.
//
// Cancelling the context stops the unit before its next write. Writes that
// already happened are not undone by cancellation alone; the caller receives
// a [*PartialFailure] listing them.
//
// The orchestrator holds no locks. Independent units run concurrently and
// the store's compare-and-swap is the only concurrency control.
package saga
