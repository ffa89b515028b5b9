// Package projection builds and caches the public profile of an actor.
//
// A [Profile] is assembled from four collections read in parallel: the root
// profile record (mandatory), the availability status, and every affiliation
// and link. It is never persisted and can always be rebuilt from the store.
//
// Cached profiles are dropped when a write touches one of their sources. The
// cache depends on the exact (actor, collection, key) of single-record
// sections and on the whole (actor, collection) of list sections, so writes
// to unrelated collections of the same actor leave the entry in place.
//
// Register [Cache.Invalidate] with every writer that can change a source. A
// [*repo.Client] passed to [New] is registered automatically; writes made by
// other processes arrive through the stream package.
package projection
