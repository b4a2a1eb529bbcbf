// Package store provides SQLite-backed build history for dyngen.
//
// Every generation run is recorded as a build together with the
// declarations each generated scope emitted:
//   - Builds: one row per run (model, build directory, mode, outcome, hashes)
//   - Emissions: the incremental required set of every scope of the kernel
//
// # Ordering
//
// Builds carry a logical sequence number assigned at write time. Queries
// order by seq ASC, id ASC COLLATE BINARY and never by timestamp, so
// history listings are identical regardless of wall time.
//
// # Prebuilt kernels
//
// LatestBuild returns the last build of a build directory that produced a
// kernel. A require build reuses what is installed without generating, and
// takes the kernel hash of its record from there.
//
// The schema version is kept in PRAGMA user_version; Open refuses a
// history stamped by a newer dyngen.
//
// Declared sets are stored as RFC 8785 canonical JSON (internal/ir).
package store
