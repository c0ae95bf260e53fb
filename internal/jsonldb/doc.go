// Package jsonldb provides a generic, concurrent-safe, JSONL-backed record store.
//
// # Overview
//
// [Table] stores rows in a JSONL (JSON Lines) file with full in-memory caching
// for fast reads. Tables are safe for concurrent use by multiple goroutines.
//
// [Schema] describes the static columns of a record type: their names, types,
// default values and which one is the primary key. [SchemaFromType] derives a
// schema from a Go struct using JSON Schema reflection.
//
// # File Format
//
// JSONL files with line 1 as schema header, subsequent lines as JSON rows.
//
// # Coercion
//
// Values written to typed columns are normalized with SQLite-compatible type
// affinity rules, see [CoerceValue].
package jsonldb
