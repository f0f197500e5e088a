// Package ingest loads text files from a folder, splits them into
// overlapping chunks, tags every chunk with a document type and writes the
// embedded chunks to a vector store collection.
//
// When redaction is enabled, credentials detected in a file are masked
// before it is split, so no chunk ever carries the raw value.
//
// A run is single-shot and single-threaded. Failures abort the run and leave
// whatever was already upserted in place; re-running over the same folder
// inserts duplicates.
package ingest
