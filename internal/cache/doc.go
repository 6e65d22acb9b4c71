// Package cache memoizes analysis results keyed by the content of the
// project they were computed from.
//
// A project is fingerprinted by hashing every regular file under its root
// (minus excluded directories such as .git and node_modules). Results are
// stored under "{project_hash}_{operation}[_{params_hash}]" in a pluggable
// Store: FileStore keeps one compressed blob per key next to a JSON index,
// BadgerStore keeps both in an embedded key-value database.
//
// Entries older than the TTL are deleted the first time they are read and
// reported as misses. When the project has changed since the last run,
// GetOrDifferential hands back the previous result annotated with the old
// and new project hashes rather than recomputing.
package cache
