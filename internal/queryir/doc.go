// Package queryir is a small query representation for reading stored
// records by field filters.
//
// Filters are built from Equals and And nodes and attached to a Select
// naming the table, the columns and the sort keys. Backends compile a
// Select into their own query language; querysql targets SQLite.
//
// Query and Predicate are sealed: only this package implements them, so
// backends can switch over them exhaustively.
//
// Rules checked by Validate against a Schema:
//   - the table and every referenced column exist
//   - columns are listed explicitly (no SELECT *)
//   - compared values are scalars (string, int, bool)
package queryir
