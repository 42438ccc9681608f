// Package fingerprint caches serialized responses keyed by resource.
//
// A Token is a BLAKE3 keyed digest of the exact bytes served, so the same
// document yields the same ETag across processes and across snapshots that
// produce identical bytes.
//
// Cache.GetOrBuild runs a resource's builder at most once per Cache, using
// golang.org/x/sync/singleflight to coalesce concurrent first requests. Reads
// of cached entries only take a read lock, so unrelated keys never wait on
// each other. Each Entry carries the identity body plus precomputed zstd and
// gzip bodies.
//
// A Cache lives as long as the snapshot it serves; a hot-swapped snapshot
// gets a new Cache.
package fingerprint
