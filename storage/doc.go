// Package storage implements a column-oriented, multi-version in-memory
// store. Fixed-size raw blocks are carved into per-column mini blocks, each
// a null bitmap followed by values; tuples live in slots allocated by
// flipping presence bits under CAS. Writes go through projected rows,
// packed self-describing records over a subset of columns, and every update
// pushes a before-image undo record onto the tuple's version chain. The
// chain head doubles as the write lock: readers walk it to reconstruct the
// version visible at their read timestamp, and writers conflict when the
// head carries another transaction's uncommitted id.
package storage
